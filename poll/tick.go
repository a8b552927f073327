package poll

import (
	"context"
	"sync"
)

// Tick is one execution of the poll factory. It completes exactly once.
type Tick struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newTick() *Tick {
	return &Tick{done: make(chan struct{})}
}

func (t *Tick) complete(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

// Done is closed when the tick has completed.
func (t *Tick) Done() <-chan struct{} {
	return t.done
}

// Err returns the tick result. It is only meaningful once Done is closed.
func (t *Tick) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the tick completes or ctx is done.
func (t *Tick) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
