package bridge

import "context"

// wakeSignal coalesces any number of Post calls between two Waits into a
// single wakeup, so the realtime side never blocks posting and the waiting
// side never wakes more often than it has work to do. Built on a
// buffered channel of size 1 with a non-blocking send, the idiomatic Go
// coalesced-wakeup primitive: a full channel means a wakeup is already
// pending, so a second Post is simply dropped.
type wakeSignal struct {
	ch chan struct{}
}

func newWakeSignal() *wakeSignal {
	return &wakeSignal{ch: make(chan struct{}, 1)}
}

// Post marks a wakeup pending, if one is not already. Never blocks.
func (w *wakeSignal) Post() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until Post has been called at least once since the last
// Wait, or ctx is canceled.
func (w *wakeSignal) Wait(ctx context.Context) error {
	select {
	case <-w.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
