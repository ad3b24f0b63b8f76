package tasks

import "context"

// Gate bounds how many heavy transcodes run at once across the whole
// process. Rendering an animated item frame by frame is expensive enough
// that unbounded parallelism would exhaust memory, so every conversion
// shares one explicitly constructed gate instead of a package-level
// singleton.
type Gate struct {
	slots chan struct{}
}

// NewGate creates a gate admitting at most capacity holders.
func NewGate(capacity int) *Gate {
	if capacity <= 0 {
		capacity = 1
	}
	return &Gate{slots: make(chan struct{}, capacity)}
}

// Acquire blocks until a slot is free or the context is cancelled.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot previously taken by Acquire.
func (g *Gate) Release() {
	<-g.slots
}
