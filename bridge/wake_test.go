package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWakeSignalPostThenWaitUnblocks(t *testing.T) {
	w := newWakeSignal()
	w.Post()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Wait(ctx))
}

func TestWakeSignalCoalescesMultiplePosts(t *testing.T) {
	w := newWakeSignal()
	w.Post()
	w.Post()
	w.Post()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Wait(ctx))

	// A second Wait with no intervening Post should block until ctx expires.
	shortCtx, shortCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer shortCancel()
	err := w.Wait(shortCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWakeSignalWaitRespectsCancellation(t *testing.T) {
	w := newWakeSignal()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
