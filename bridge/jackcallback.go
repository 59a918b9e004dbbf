package bridge

import "sync/atomic"

// directionState groups the per-direction realtime state: the Registry of
// live ports for that direction, the queue the reconciler hands freshly
// built ports through, and a per-direction Codec. The callback does not
// use that Codec: wire-format normalization happens in the seq input and
// output workers, each with its own Codec. One of these is kept per
// Direction, so capture and playback ports never share a registry.
type directionState struct {
	dir      Direction
	registry *Registry
	newPorts *newPortQueue
	codec    *Codec
}

func newDirectionState(dir Direction) *directionState {
	return &directionState{
		dir:      dir,
		registry: NewRegistry(),
		newPorts: newNewPortQueue(),
		codec:    NewCodec(),
	}
}

// jackEngine is the realtime-side state the process callback closes over.
// It never takes a lock and never allocates once running.
type jackEngine struct {
	streams   [NumDirections]*directionState
	deletions *deletionQueue
	outbound  *outboundQueue
	wake      *wakeSignal

	freewheelSkips   atomic.Int64
	overflowDropped  atomic.Int64
	codecFailures    atomic.Int64
	currentFrameTime atomic.Uint32
}

func newJackEngine() *jackEngine {
	e := &jackEngine{
		deletions: newDeletionQueue(),
		outbound:  newOutboundQueue(),
		wake:      newWakeSignal(),
	}
	e.streams[Capture] = newDirectionState(Capture)
	e.streams[Playback] = newDirectionState(Playback)
	return e
}

// FreewheelSkips reports how many cycles were skipped while the engine was
// freewheeling.
func (e *jackEngine) FreewheelSkips() int64 {
	return e.freewheelSkips.Load()
}

// OverflowDropped reports how many events were dropped to queue overflow
// since startup.
func (e *jackEngine) OverflowDropped() int64 {
	return e.overflowDropped.Load()
}

// CodecFailures reports how many inbound or outbound events were discarded
// for failing to decode or encode since startup.
func (e *jackEngine) CodecFailures() int64 {
	return e.codecFailures.Load()
}

// process is the realtime callback: no allocation, no blocking call, no
// mutex. nframes is the period size, cycleStart the frame time of the
// cycle's first frame.
func (e *jackEngine) process(nframes uint32, cycleStart uint32, sampleRate uint32, freewheeling bool) {
	e.currentFrameTime.Store(cycleStart)

	if freewheeling {
		e.freewheelSkips.Add(1)
		return
	}

	e.capturePhase(nframes, cycleStart)

	woke := e.playbackPhase(nframes, cycleStart, sampleRate)
	if woke {
		e.wake.Post()
	}
}

// capturePhase moves seq -> jack: it absorbs freshly registered ports,
// detaches dead ones, and drains each live port's inbound byte FIFO into
// its per-cycle MIDI buffer.
func (e *jackEngine) capturePhase(nframes uint32, cycleStart uint32) {
	stream := e.streams[Capture]
	e.absorbNewPorts(stream)

	var header [inboundHeaderSize]byte
	var record [inboundHeaderSize + MaxEventSize]byte

	stream.registry.Iter(func(p *Port) {
		if p.IsDead() {
			e.detach(stream, p)
			return
		}

		p.cycleBuf.Reset()
		for {
			if p.inbound.Peek(header[:]) < inboundHeaderSize {
				break
			}
			frameTime, length := decodeInboundHeader(header[:])
			total := inboundHeaderSize + int(length)
			if p.inbound.Peek(record[:total]) < total {
				break
			}

			offset := IntraCycleOffset(frameTime, cycleStart, nframes)
			if !p.cycleBuf.Reserve(offset, record[inboundHeaderSize:total]) {
				e.overflowDropped.Add(1)
			}
			p.inbound.ReadAdvance(total)
		}
	})
}

// playbackPhase moves jack -> seq: it absorbs freshly registered ports,
// detaches dead ones, drains each live port's externally injected MIDI
// into its per-cycle buffer, and forwards every resulting event to the
// outbound queue for the seq output worker. It reports whether at least
// one event was queued.
func (e *jackEngine) playbackPhase(nframes uint32, cycleStart uint32, sampleRate uint32) bool {
	stream := e.streams[Playback]
	e.absorbNewPorts(stream)

	woke := false
	stream.registry.Iter(func(p *Port) {
		if p.IsDead() {
			e.detach(stream, p)
			return
		}

		p.cycleBuf.Reset()
		p.incoming.DrainInto(p.cycleBuf)

		for i := 0; i < p.cycleBuf.Len(); i++ {
			offset, payload := p.cycleBuf.Event(i)
			var ev DeliveryEvent
			ev.Port = p
			ev.AbsoluteNanos = FramesToNanos(cycleStart+offset, sampleRate)
			ev.Length = uint16(copy(ev.Payload[:], payload))
			if e.outbound.Enqueue(&ev) != nil {
				e.overflowDropped.Add(1)
				continue
			}
			woke = true
		}
	})
	return woke
}

func (e *jackEngine) absorbNewPorts(stream *directionState) {
	for {
		p, err := stream.newPorts.Dequeue()
		if err != nil {
			return
		}
		p.MarkLive()
		stream.registry.Insert(p)
	}
}

// detach hands a dead Port to the deletion queue for the reconciler to
// finish tearing down. It only removes p from the registry once the
// handoff succeeds; if deletions is full, p is left registered so a later
// cycle observes its dead flag again and retries.
func (e *jackEngine) detach(stream *directionState, p *Port) {
	if e.deletions.Enqueue(&p) != nil {
		e.overflowDropped.Add(1)
		return
	}
	stream.registry.Remove(p)
}
