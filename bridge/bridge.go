package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jackaudio/a2jmidid/internal/bridgelog"
)

type bridgeState int32

const (
	stateStopped bridgeState = iota
	stateStarting
	stateRunning
	stateStopping
)

// Bridge owns the full seq<->jack mirroring lifecycle: opening both sides,
// seeding and running the topology reconciler, activating the realtime
// callback, and running the seq input/output workers, then tearing all of
// it back down in reverse order.
type Bridge struct {
	seq  SeqClient
	jack JackClient

	clientName string
	serverName string
	log        *bridgelog.Logger

	state    atomic.Int32
	exportHW atomic.Bool

	mu         sync.Mutex
	engine     *jackEngine
	reconciler *Reconciler
	cancel     context.CancelFunc
	group      *errgroup.Group
}

// NewBridge returns a Bridge in the Stopped state.
func NewBridge(seq SeqClient, jack JackClient, clientName, serverName string) *Bridge {
	return &Bridge{
		seq:        seq,
		jack:       jack,
		clientName: clientName,
		serverName: serverName,
		log:        bridgelog.Default("bridge"),
	}
}

// Start brings the bridge from Stopped to Running. Any failure unwinds
// fully back to Stopped.
func (b *Bridge) Start(ctx context.Context) error {
	if !b.state.CompareAndSwap(int32(stateStopped), int32(stateStarting)) {
		return ErrAlreadyRunning
	}

	if err := b.seq.Open(ctx, b.clientName); err != nil {
		b.state.Store(int32(stateStopped))
		return fmt.Errorf("%w: %v", ErrSeqOpenFailed, err)
	}
	if err := b.jack.Open(b.clientName, b.serverName); err != nil {
		_ = b.seq.Close()
		b.state.Store(int32(stateStopped))
		return fmt.Errorf("%w: %v", ErrJackOpenFailed, err)
	}

	engine := newJackEngine()
	reconciler := NewReconciler(b.seq, b.jack, engine, b.log)
	reconciler.SetHWExport(b.exportHW.Load())

	runCtx, cancel := context.WithCancel(ctx)
	g, runCtx := errgroup.WithContext(runCtx)

	if err := reconciler.Seed(runCtx); err != nil {
		cancel()
		_ = b.jack.Close()
		_ = b.seq.Close()
		b.state.Store(int32(stateStopped))
		return err
	}

	if err := b.jack.Activate(engine.process); err != nil {
		cancel()
		_ = b.jack.Close()
		_ = b.seq.Close()
		b.state.Store(int32(stateStopped))
		return fmt.Errorf("%w: %v", ErrJackOpenFailed, err)
	}

	epoch := time.Now()
	lookupCapture := func(remote RemoteAddress) (*Port, bool) {
		return reconciler.LookupPort(Capture, remote)
	}
	input := newSeqInputWorker(b.seq, engine, lookupCapture, b.log)
	output := newSeqOutputWorker(b.seq, engine, epoch, b.log)

	g.Go(func() error {
		reconciler.Run(runCtx)
		return nil
	})
	g.Go(func() error { return quietCancel(input.run(runCtx)) })
	g.Go(func() error { return quietCancel(output.run(runCtx)) })

	b.mu.Lock()
	b.engine = engine
	b.reconciler = reconciler
	b.cancel = cancel
	b.group = g
	b.mu.Unlock()

	b.state.Store(int32(stateRunning))
	return nil
}

// quietCancel collapses a worker's context-cancellation error into nil, so
// a clean Stop doesn't surface as an errgroup failure.
func quietCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop brings the bridge from Running back to Stopped, waiting for every
// worker to exit.
func (b *Bridge) Stop(ctx context.Context) error {
	if !b.state.CompareAndSwap(int32(stateRunning), int32(stateStopping)) {
		return ErrNotRunning
	}

	b.mu.Lock()
	cancel := b.cancel
	g := b.group
	b.mu.Unlock()

	cancel()
	_ = b.jack.Deactivate()
	err := g.Wait()

	_ = b.jack.Close()
	_ = b.seq.Close()

	b.mu.Lock()
	b.engine = nil
	b.reconciler = nil
	b.cancel = nil
	b.group = nil
	b.mu.Unlock()

	b.state.Store(int32(stateStopped))
	return err
}

// IsStarted reports whether the bridge is in the Running state.
func (b *Bridge) IsStarted() bool {
	return bridgeState(b.state.Load()) == stateRunning
}

// ClientName returns the name the bridge registers itself under on both the
// seq and jack sides.
func (b *Bridge) ClientName() string {
	return b.clientName
}

// SetHWExport toggles whether non-exportable endpoints are mirrored. It
// returns ErrHWExportWhileRunning if the bridge is currently Running.
func (b *Bridge) SetHWExport(enabled bool) error {
	if b.IsStarted() {
		return ErrHWExportWhileRunning
	}
	b.exportHW.Store(enabled)
	return nil
}

// HWExport reports the current hardware-export setting.
func (b *Bridge) HWExport() bool {
	return b.exportHW.Load()
}

// Snapshot returns every currently tracked port, for diagnostics. Returns
// nil when the bridge is not running.
func (b *Bridge) Snapshot() []*Port {
	b.mu.Lock()
	r := b.reconciler
	b.mu.Unlock()
	if r == nil {
		return nil
	}
	return r.Snapshot()
}

// OverflowDropped reports how many events have been dropped to queue
// overflow since the bridge last started. Returns 0 when not running.
func (b *Bridge) OverflowDropped() int64 {
	b.mu.Lock()
	e := b.engine
	b.mu.Unlock()
	if e == nil {
		return 0
	}
	return e.OverflowDropped()
}

// FreewheelSkips reports how many realtime cycles were skipped while
// freewheeling since the bridge last started. Returns 0 when not running.
func (b *Bridge) FreewheelSkips() int64 {
	b.mu.Lock()
	e := b.engine
	b.mu.Unlock()
	if e == nil {
		return 0
	}
	return e.FreewheelSkips()
}

// CodecFailures reports how many events have been discarded for failing to
// decode or encode since the bridge last started. Returns 0 when not
// running.
func (b *Bridge) CodecFailures() int64 {
	b.mu.Lock()
	e := b.engine
	b.mu.Unlock()
	if e == nil {
		return 0
	}
	return e.CodecFailures()
}

// PortSkips reports how many endpoints have failed to mirror since the
// bridge last started. Returns 0 when not running.
func (b *Bridge) PortSkips() int64 {
	b.mu.Lock()
	r := b.reconciler
	b.mu.Unlock()
	if r == nil {
		return 0
	}
	return r.PortSkips()
}
