// Package uuid generates task identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator implements archive.IDGenerator with UUIDv7 values, which sort by
// creation time.
type Generator struct{}

// New returns a Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a new task id.
func (*Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("new task id: %w", err)
	}
	return id.String(), nil
}
