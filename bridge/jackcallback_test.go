package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLivePort(t *testing.T, e *jackEngine, dir Direction, remote RemoteAddress) *Port {
	p := newPort(dir, remote, "client", "port")
	require.NoError(t, e.streams[dir].newPorts.Enqueue(&p))
	e.absorbNewPorts(e.streams[dir])
	return p
}

func TestJackEngineFreewheelingSkipsBothPhases(t *testing.T) {
	e := newJackEngine()
	e.process(256, 0, 48000, true)
	assert.Equal(t, int64(1), e.FreewheelSkips())
}

func TestJackEngineCapturePhaseDeliversToCycleBuffer(t *testing.T) {
	e := newJackEngine()
	p := newLivePort(t, e, Capture, RemoteAddress{ClientID: 1})

	var header [inboundHeaderSize]byte
	encodeInboundHeader(header[:], 0, 3)
	record := append(header[:], []byte{0x90, 0x40, 0x7f}...)
	require.True(t, p.inbound.Write(record))

	e.process(256, 0, 48000, false)

	assert.Equal(t, 1, p.cycleBuf.Len())
}

func TestJackEnginePlaybackPhaseDeliversToOutboundQueue(t *testing.T) {
	e := newJackEngine()
	p := newLivePort(t, e, Playback, RemoteAddress{ClientID: 2})

	require.True(t, p.Inject(10, []byte{0x80, 0x40, 0x00}))

	e.process(256, 1000, 48000, false)

	ev, err := e.outbound.Dequeue()
	require.NoError(t, err)
	assert.Same(t, p, ev.Port)
	assert.Equal(t, uint16(3), ev.Length)
	assert.Equal(t, []byte{0x80, 0x40, 0x00}, ev.Payload[:ev.Length])
}

func TestJackEngineDetachesDeadPortsToDeletionQueue(t *testing.T) {
	e := newJackEngine()
	p := newLivePort(t, e, Capture, RemoteAddress{ClientID: 3})
	p.SetDead()

	e.process(256, 0, 48000, false)

	assert.Equal(t, 0, e.streams[Capture].registry.Len())
	got, err := e.deletions.Dequeue()
	require.NoError(t, err)
	assert.Same(t, p, got)
}

func TestJackEngineRetainsDeadPortWhenDeletionQueueFull(t *testing.T) {
	e := newJackEngine()
	p := newLivePort(t, e, Capture, RemoteAddress{ClientID: 4})
	p.SetDead()

	for i := 0; i < deletionQueueCapacity; i++ {
		filler := newPort(Capture, RemoteAddress{ClientID: uint8(100 + i)}, "c", "p")
		require.NoError(t, e.deletions.Enqueue(&filler))
	}

	before := e.OverflowDropped()
	e.process(256, 0, 48000, false)

	// The handoff overflowed, so the dead port must still be in the
	// registry for the next cycle to retry rather than being leaked.
	assert.Equal(t, 1, e.streams[Capture].registry.Len())
	assert.Greater(t, e.OverflowDropped(), before)

	for i := 0; i < deletionQueueCapacity; i++ {
		_, err := e.deletions.Dequeue()
		require.NoError(t, err)
	}

	e.process(256, 0, 48000, false)

	assert.Equal(t, 0, e.streams[Capture].registry.Len())
	got, err := e.deletions.Dequeue()
	require.NoError(t, err)
	assert.Same(t, p, got)
}
