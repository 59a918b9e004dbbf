package bridge

import (
	"strings"
	"sync/atomic"
)

// Direction is which way a mirrored Port carries MIDI.
type Direction int

const (
	// Capture ports carry messages seq -> jack.
	Capture Direction = iota
	// Playback ports carry messages jack -> seq.
	Playback
)

func (d Direction) String() string {
	if d == Capture {
		return "capture"
	}
	return "playback"
}

// NumDirections is the number of Direction values; used to size
// per-direction arrays ([2]T instead of a map).
const NumDirections = 2

// RemoteAddress is the seq-side identity of a mirrored endpoint: a
// (client_id, port_id) pair.
type RemoteAddress struct {
	ClientID uint8
	PortID   uint8
}

// portState is a Port's lifecycle stage.
type portState int32

const (
	portCreated portState = iota
	portLive
	portDead
)

// maxDisplayNameLen is the jack port name length limit. JACK_PORT_NAME_SIZE
// in the real project is 320; this rewrite keeps the same bound.
const maxDisplayNameLen = 320

// Port is one mirrored remote endpoint, for one direction.
//
// Registry mutation (insert/remove) happens exclusively on the jack
// callback goroutine; RemoteClientName/RemotePortName/DisplayName are set
// once at construction and never mutated afterward, so they may be read
// from any goroutine (e.g. remote control) without synchronization. State
// and the dead flag are touched from multiple goroutines and so are
// atomics.
type Port struct {
	Remote           RemoteAddress
	Direction        Direction
	RemoteClientName string
	RemotePortName   string
	DisplayName      string

	jackPort JackPort
	seqSub   SeqSubscription

	// inbound carries (InboundEvent header, payload) pairs written by the
	// seq input worker and drained by the jack callback; capacity is
	// 16 * MaxEventSize. Allocated for both directions for uniformity,
	// though only Capture ports are ever written to.
	inbound *ByteFIFO

	lastDeliveredNanos int64 // atomic; touched only by the seq output worker, but read cross-goroutine by tests

	state    atomic.Int32
	deadFlag atomic.Bool

	cycleBuf *MidiCycleBuffer // reused every cycle; contents meaningful only during the current callback invocation
	incoming *incomingQueue   // externally injected playback-direction MIDI, drained into cycleBuf each cycle
}

const inboundFIFOMultiplier = 16

// newPort constructs a Port record in the Created state. Jack/seq
// registration is performed by the caller, which rolls the Port back on
// failure instead of handing it to the registry.
func newPort(dir Direction, remote RemoteAddress, remoteClient, remotePort string) *Port {
	p := &Port{
		Remote:           remote,
		Direction:        dir,
		RemoteClientName: remoteClient,
		RemotePortName:   remotePort,
		DisplayName:      BuildDisplayName(dir, remoteClient, remotePort),
		inbound:          NewByteFIFO(inboundFIFOMultiplier * MaxEventSize),
		cycleBuf:         NewMidiCycleBuffer(defaultCycleBufferEvents),
		incoming:         newIncomingQueue(defaultCycleBufferEvents),
	}
	p.state.Store(int32(portCreated))
	return p
}

// MarkLive transitions Created -> Live; called by the jack callback the
// first cycle after the reconciler hands the Port off via the new-ports
// handoff queue.
func (p *Port) MarkLive() {
	p.state.CompareAndSwap(int32(portCreated), int32(portLive))
}

// SetDead sets the dead flag. Any thread may call this: the seq input
// worker on PORT_EXIT, or the topology reconciler on capability revocation.
func (p *Port) SetDead() {
	p.deadFlag.Store(true)
	p.state.Store(int32(portDead))
}

// IsDead reports whether SetDead has been called.
func (p *Port) IsDead() bool {
	return p.deadFlag.Load()
}

// LastDeliveredNanos returns the monotonic stamp of the last event emitted
// on the seq side for this Port. Never decreases.
func (p *Port) LastDeliveredNanos() int64 {
	return atomic.LoadInt64(&p.lastDeliveredNanos)
}

// AdvanceLastDelivered sets the last-delivered stamp to max(current, nanos)
// and returns the resulting (possibly unchanged) value.
func (p *Port) AdvanceLastDelivered(nanos int64) int64 {
	for {
		cur := atomic.LoadInt64(&p.lastDeliveredNanos)
		effective := nanos
		if cur > effective {
			effective = cur
		}
		if effective == cur {
			return cur
		}
		if atomic.CompareAndSwapInt64(&p.lastDeliveredNanos, cur, effective) {
			return effective
		}
	}
}

// Inject queues a MIDI message for delivery jack -> seq on the next cycle
// the callback drains this Port's incoming mailbox. Only meaningful for
// Playback direction ports; it reports false if the mailbox is full.
func (p *Port) Inject(offset uint32, payload []byte) bool {
	return p.incoming.Push(offset, payload)
}

// BuildDisplayName composes the jack port name: "<remote client name>
// (<capture|playback>): <remote port name>", with every character that is
// not alphanumeric and not one of "( ) :" replaced by a space, runs of
// spaces collapsed, the result trimmed, and finally truncated to
// maxDisplayNameLen.
func BuildDisplayName(dir Direction, remoteClient, remotePort string) string {
	raw := remoteClient + " (" + dir.String() + "): " + remotePort
	sanitized := sanitizePortName(raw)
	if len(sanitized) > maxDisplayNameLen {
		sanitized = sanitized[:maxDisplayNameLen]
	}
	return sanitized
}

func sanitizePortName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastWasSpace := false
	for _, r := range s {
		allowed := (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			r == '(' || r == ')' || r == ':'
		if !allowed {
			r = ' '
		}
		if r == ' ' {
			if lastWasSpace {
				continue
			}
			lastWasSpace = true
		} else {
			lastWasSpace = false
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// Registry is the per-direction set of live Port records, keyed by remote
// address.
//
// All mutating methods are called exclusively from the jack realtime
// callback goroutine: the topology reconciler produces creation/destruction
// intents but never touches the registry directly. Because exactly one
// goroutine ever touches this type, it needs no locking: taking a mutex on
// the realtime thread is forbidden.
type Registry struct {
	ports map[RemoteAddress]*Port
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{ports: make(map[RemoteAddress]*Port)}
}

// Find looks up the Port for remote, if any.
func (r *Registry) Find(remote RemoteAddress) (*Port, bool) {
	p, ok := r.ports[remote]
	return p, ok
}

// Insert adds port, which must not already have an entry under its
// address.
func (r *Registry) Insert(port *Port) {
	r.ports[port.Remote] = port
}

// Remove detaches port from the registry without freeing it; the caller
// (the jack callback) is expected to hand it to the deletion queue
// immediately after.
func (r *Registry) Remove(port *Port) {
	delete(r.ports, port.Remote)
}

// Iter calls fn for every currently-live Port. fn may Remove the Port it
// was given (the callback phases detach dead ports this way); inserting
// from within fn is not supported.
func (r *Registry) Iter(fn func(*Port)) {
	for _, p := range r.ports {
		fn(p)
	}
}

// Len reports how many Ports are currently registered.
func (r *Registry) Len() int {
	return len(r.ports)
}
