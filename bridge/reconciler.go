package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackaudio/a2jmidid/internal/bridgelog"
)

// Reconciler is the non-realtime glue between SeqClient announcements and
// the realtime jack callback: it builds and tears down Port records off
// the realtime thread and hands live ones to the callback through each
// direction's new-port queue. It never touches a Registry directly, only
// the callback goroutine does that.
type Reconciler struct {
	seq    SeqClient
	jack   JackClient
	engine *jackEngine
	log    *bridgelog.Logger

	mu       sync.Mutex
	exportHW bool
	tracked  [NumDirections]map[RemoteAddress]*Port

	portSkips atomic.Int64
}

// NewReconciler returns a Reconciler ready to Seed and Run.
func NewReconciler(seq SeqClient, jack JackClient, engine *jackEngine, log *bridgelog.Logger) *Reconciler {
	r := &Reconciler{seq: seq, jack: jack, engine: engine, log: log}
	r.tracked[Capture] = make(map[RemoteAddress]*Port)
	r.tracked[Playback] = make(map[RemoteAddress]*Port)
	return r
}

// PortSkips reports how many endpoints could not be mirrored because
// registration or subscription failed, or a new-port handoff overflowed.
func (r *Reconciler) PortSkips() int64 {
	return r.portSkips.Load()
}

// SetHWExport toggles whether non-exportable ("hardware") endpoints are
// mirrored.
func (r *Reconciler) SetHWExport(enabled bool) {
	r.mu.Lock()
	r.exportHW = enabled
	r.mu.Unlock()
}

// HWExport reports the current hardware-export setting.
func (r *Reconciler) HWExport() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exportHW
}

// Seed walks existing endpoints at startup and builds their ports exactly
// as Run would for a port-start announcement, so the bridge mirrors what
// is already there before the first topology change is ever observed.
func (r *Reconciler) Seed(ctx context.Context) error {
	descriptors, err := r.seq.Seed(ctx)
	if err != nil {
		return err
	}
	for _, d := range descriptors {
		r.onStart(d)
	}
	return nil
}

// Run drains announcements and periodically finalizes deletions until ctx
// is canceled.
func (r *Reconciler) Run(ctx context.Context) {
	ch := r.seq.Announcements()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			r.handle(ev)
		case <-ticker.C:
			r.finalizeDeletions()
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reconciler) handle(ev AnnouncementEvent) {
	switch ev.Kind {
	case AnnouncementPortStart:
		r.onStart(ev.Descriptor)
	case AnnouncementPortChange:
		r.onChange(ev.Descriptor)
	case AnnouncementPortExit, AnnouncementClientExit:
		r.onExit(ev.Descriptor.Remote)
	}
}

func (r *Reconciler) onStart(d EndpointDescriptor) {
	if !d.Exportable && !r.HWExport() {
		r.log.Debug("skipping hardware endpoint", "client", d.ClientName, "port", d.PortName)
		return
	}
	for _, dir := range d.Capabilities.Directions() {
		r.create(dir, d)
	}
}

// onChange reconciles a capability or name change against what is already
// tracked: directions no longer offered are torn down, newly offered ones
// are created.
func (r *Reconciler) onChange(d EndpointDescriptor) {
	for dir := Capture; dir < NumDirections; dir++ {
		_, tracked := r.LookupPort(dir, d.Remote)
		wants := d.Capabilities&capabilityFor(dir) != 0
		switch {
		case tracked && !wants:
			r.onExitDirection(dir, d.Remote)
		case !tracked && wants:
			r.create(dir, d)
		}
	}
}

func capabilityFor(dir Direction) Capability {
	if dir == Capture {
		return CapRead
	}
	return CapWrite
}

func (r *Reconciler) create(dir Direction, d EndpointDescriptor) {
	r.mu.Lock()
	_, exists := r.tracked[dir][d.Remote]
	r.mu.Unlock()
	if exists {
		return
	}

	jp, err := r.jack.RegisterPort(dir, BuildDisplayName(dir, d.ClientName, d.PortName))
	if err != nil {
		r.portSkips.Add(1)
		r.log.Warn("port skipped", "error", ErrPortRegisterSkip, "cause", err, "client", d.ClientName, "port", d.PortName, "direction", dir)
		return
	}
	sub, err := r.seq.Subscribe(dir, d.Remote)
	if err != nil {
		_ = r.jack.UnregisterPort(jp)
		r.portSkips.Add(1)
		r.log.Warn("port skipped", "error", ErrPortSubscribeSkip, "cause", err, "client", d.ClientName, "port", d.PortName, "direction", dir)
		return
	}

	p := newPort(dir, d.Remote, d.ClientName, d.PortName)
	p.jackPort = jp
	p.seqSub = sub

	r.mu.Lock()
	r.tracked[dir][d.Remote] = p
	r.mu.Unlock()

	if r.engine.streams[dir].newPorts.Enqueue(&p) != nil {
		r.mu.Lock()
		delete(r.tracked[dir], d.Remote)
		r.mu.Unlock()
		_ = sub.Close()
		_ = r.jack.UnregisterPort(jp)
		r.portSkips.Add(1)
		r.log.Warn("port skipped: new-port handoff overflowed", "client", d.ClientName, "port", d.PortName, "direction", dir)
		return
	}

	r.log.Info("port created", "client", d.ClientName, "port", d.PortName, "direction", dir)
}

func (r *Reconciler) onExit(remote RemoteAddress) {
	for dir := Capture; dir < NumDirections; dir++ {
		r.onExitDirection(dir, remote)
	}
}

// onExitDirection marks a tracked port dead; the jack callback detaches it
// from its Registry on the next cycle and hands it to the deletion queue,
// which finalizeDeletions then closes out.
func (r *Reconciler) onExitDirection(dir Direction, remote RemoteAddress) {
	r.mu.Lock()
	p, ok := r.tracked[dir][remote]
	if ok {
		delete(r.tracked[dir], remote)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	r.log.Info("port exiting", "client", p.RemoteClientName, "port", p.RemotePortName, "direction", dir)
	p.SetDead()
}

func (r *Reconciler) finalizeDeletions() {
	for {
		p, err := r.engine.deletions.Dequeue()
		if err != nil {
			return
		}
		_ = p.seqSub.Close()
		_ = r.jack.UnregisterPort(p.jackPort)
	}
}

// LookupPort finds the tracked Port for remote in direction dir, if any.
// Safe to call from any goroutine, including the seq input worker.
func (r *Reconciler) LookupPort(dir Direction, remote RemoteAddress) (*Port, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.tracked[dir][remote]
	return p, ok
}

// FindByDisplayName scans every tracked port for one whose DisplayName
// matches, for remote-control diagnostics.
func (r *Reconciler) FindByDisplayName(name string) (*Port, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for dir := Capture; dir < NumDirections; dir++ {
		for _, p := range r.tracked[dir] {
			if p.DisplayName == name {
				return p, true
			}
		}
	}
	return nil, false
}

// Snapshot returns every currently tracked port, for diagnostics.
func (r *Reconciler) Snapshot() []*Port {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Port
	for dir := Capture; dir < NumDirections; dir++ {
		for _, p := range r.tracked[dir] {
			out = append(out, p)
		}
	}
	return out
}
