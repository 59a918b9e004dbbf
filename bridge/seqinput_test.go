package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeqInputWorkerAppliesNoteOffFixupAndStampsInbound(t *testing.T) {
	seq := newFakeSeqClient()
	engine := newJackEngine()
	engine.currentFrameTime.Store(12345)

	port := newPort(Capture, RemoteAddress{ClientID: 1}, "c", "p")
	lookup := func(remote RemoteAddress) (*Port, bool) {
		if remote == port.Remote {
			return port, true
		}
		return nil, false
	}
	worker := newSeqInputWorker(seq, engine, lookup, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go worker.run(ctx)
	defer cancel()

	seq.inject(RawSeqEvent{Source: port.Remote, Payload: []byte{0x91, 0x40, 0x00}})

	var header [inboundHeaderSize]byte
	require.Eventually(t, func() bool {
		return port.inbound.Peek(header[:]) == inboundHeaderSize
	}, time.Second, 5*time.Millisecond)

	frameTime, length := decodeInboundHeader(header[:])
	assert.Equal(t, uint32(12345), frameTime)
	assert.Equal(t, uint16(3), length)

	record := make([]byte, inboundHeaderSize+int(length))
	port.inbound.Peek(record)
	assert.Equal(t, byte(0x81), record[inboundHeaderSize])
	assert.Equal(t, fixedUpNoteOffVelocity, record[inboundHeaderSize+2])
}

func TestSeqInputWorkerSkipsUnknownDestination(t *testing.T) {
	seq := newFakeSeqClient()
	engine := newJackEngine()
	lookup := func(RemoteAddress) (*Port, bool) { return nil, false }
	worker := newSeqInputWorker(seq, engine, lookup, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	seq.inject(RawSeqEvent{Source: RemoteAddress{ClientID: 9}, Payload: []byte{0x90, 0x40, 0x7f}})

	err := worker.run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSeqInputWorkerSkipsDeadDestination(t *testing.T) {
	seq := newFakeSeqClient()
	engine := newJackEngine()
	port := newPort(Capture, RemoteAddress{ClientID: 2}, "c", "p")
	port.SetDead()
	lookup := func(remote RemoteAddress) (*Port, bool) { return port, true }
	worker := newSeqInputWorker(seq, engine, lookup, testLogger())

	seq.inject(RawSeqEvent{Source: port.Remote, Payload: []byte{0x90, 0x40, 0x7f}})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = worker.run(ctx)

	assert.Equal(t, 0, port.inbound.ReadSpace())
}
