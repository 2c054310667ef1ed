package progress

import "context"

// Sink receives batches from a Hub. Consume is called from a single
// goroutine with a deadline-bound ctx; Close is called once after the last
// batch.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter accepts single events. The tracker depends on this rather than on
// Hub.
type Emitter interface {
	Emit(evt Event)
}

// Nop is an Emitter that discards events.
type Nop struct{}

// Emit discards evt.
func (Nop) Emit(Event) {}
