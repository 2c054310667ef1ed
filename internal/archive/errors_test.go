package archive

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMessageContract(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", ErrorMessage(nil))
	require.Equal(t, "network down", ErrorMessage(errors.New("network down")))
	require.Equal(t, "upload: network down", ErrorMessage(&NetworkError{Op: "upload", Err: errors.New("network down")}))
	require.Equal(t, "Title is required", ErrorMessage(NewValidationError("title", "Title is required")))
}

func TestNewScrapeErrorWrapsOnce(t *testing.T) {
	t.Parallel()

	base := errors.New("injection blocked")
	err := NewScrapeError(7, base)
	var se *ScrapeError
	require.True(t, errors.As(err, &se))
	require.Equal(t, 7, se.TabID)
	require.ErrorIs(t, err, base)

	wrapped := fmt.Errorf("outer: %w", err)
	again := NewScrapeError(9, wrapped)
	require.Same(t, wrapped, again)
	require.Nil(t, NewScrapeError(1, nil))
}
