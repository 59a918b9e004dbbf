package bridge

import (
	"fmt"
	"sync"

	"code.hybscloud.com/lfq"
	"github.com/gordonklaus/portaudio"
)

// ProcessFunc is a jack-style realtime process callback. nframes is the
// period size, cycleStart the frame time of the first frame of this cycle,
// sampleRate the engine's current rate, and freewheeling reports whether
// the engine is running detached from the audio clock.
type ProcessFunc func(nframes uint32, cycleStart uint32, sampleRate uint32, freewheeling bool)

// JackPort is a handle to one registered jack port.
type JackPort interface {
	Name() string
	Direction() Direction
}

// JackClient is the jack-side collaborator: client lifecycle, port
// registration, and realtime callback scheduling. A real deployment binds
// this to libjack; no cgo binding for that exists in this module, so the
// concrete type below substitutes portaudio's realtime callback as a pure
// period clock. portaudio carries no MIDI itself: capture/playback MIDI
// payloads continue to flow through each Port's own MidiCycleBuffer.
type JackClient interface {
	Open(clientName, serverName string) error
	Close() error

	RegisterPort(dir Direction, name string) (JackPort, error)
	UnregisterPort(p JackPort) error

	Activate(cb ProcessFunc) error
	Deactivate() error

	SampleRate() uint32
}

type jackPortImpl struct {
	name string
	dir  Direction
}

func (p *jackPortImpl) Name() string        { return p.name }
func (p *jackPortImpl) Direction() Direction { return p.dir }

// portaudioJackClient grounds the realtime period clock on
// github.com/gordonklaus/portaudio's callback-driven stream, the nearest
// real cgo realtime-audio-callback library available. Only frame-time
// bookkeeping is taken from the callback; no audio sample data is read or
// written.
type portaudioJackClient struct {
	mu         sync.Mutex
	stream     *portaudio.Stream
	sampleRate uint32
	frameTime  uint32
	periodSize uint32

	serverName string
	clientName string
}

// NewPortaudioJackClient returns a JackClient whose realtime callback
// cadence is driven by the default portaudio output device.
func NewPortaudioJackClient() JackClient {
	return &portaudioJackClient{periodSize: 256}
}

func (c *portaudioJackClient) Open(clientName, serverName string) error {
	c.clientName = clientName
	c.serverName = serverName
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: %v", ErrJackOpenFailed, err)
	}
	return nil
}

func (c *portaudioJackClient) Close() error {
	if c.stream != nil {
		_ = c.stream.Close()
		c.stream = nil
	}
	return portaudio.Terminate()
}

func (c *portaudioJackClient) RegisterPort(dir Direction, name string) (JackPort, error) {
	return &jackPortImpl{name: name, dir: dir}, nil
}

func (c *portaudioJackClient) UnregisterPort(p JackPort) error {
	return nil
}

func (c *portaudioJackClient) Activate(cb ProcessFunc) error {
	c.sampleRate = 48000

	stream, err := portaudio.OpenDefaultStream(0, 2, float64(c.sampleRate), int(c.periodSize), func(_ []float32) {
		c.mu.Lock()
		start := c.frameTime
		c.frameTime += c.periodSize
		c.mu.Unlock()
		cb(c.periodSize, start, c.sampleRate, false)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJackOpenFailed, err)
	}
	if err := stream.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrJackOpenFailed, err)
	}
	c.stream = stream
	return nil
}

func (c *portaudioJackClient) Deactivate() error {
	if c.stream == nil {
		return nil
	}
	return c.stream.Stop()
}

func (c *portaudioJackClient) SampleRate() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sampleRate == 0 {
		return 48000
	}
	return c.sampleRate
}

// injectedEvent is one externally-supplied playback-direction MIDI message
// queued for the next cycle. Fixed-size so enqueue/dequeue never allocate.
type injectedEvent struct {
	offset  uint32
	length  uint16
	payload [MaxEventSize]byte
}

// incomingQueue is the realtime-safe mailbox a Playback Port uses to
// receive externally-injected MIDI ahead of the callback cycle that will
// deliver it, grounded on code.hybscloud.com/lfq's SPSC ring (the same
// cached-index design ByteFIFO hand-builds on atomix for a byte stream,
// used here directly with a fixed-size record since each entry already
// carries its own offset/length).
type incomingQueue struct {
	q *lfq.SPSC[injectedEvent]
}

func newIncomingQueue(capacity int) *incomingQueue {
	return &incomingQueue{q: lfq.NewSPSC[injectedEvent](capacity)}
}

// Push enqueues one event for the next cycle that drains this queue. It
// reports false if the queue is full or payload exceeds MaxEventSize.
func (q *incomingQueue) Push(offset uint32, payload []byte) bool {
	if len(payload) > MaxEventSize {
		return false
	}
	var ev injectedEvent
	ev.offset = offset
	ev.length = uint16(copy(ev.payload[:], payload))
	return q.q.Enqueue(&ev) == nil
}

// DrainInto dequeues every currently-queued event into dst, returning the
// count moved. Events that do not fit in dst are discarded without being
// counted. Called once per cycle by the jack callback.
func (q *incomingQueue) DrainInto(dst *MidiCycleBuffer) int {
	n := 0
	for {
		ev, err := q.q.Dequeue()
		if err != nil {
			return n
		}
		if !dst.Reserve(ev.offset, ev.payload[:ev.length]) {
			continue
		}
		n++
	}
}
