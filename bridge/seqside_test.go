package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapabilityDirections(t *testing.T) {
	assert.Equal(t, []Direction{Capture}, CapRead.Directions())
	assert.Equal(t, []Direction{Playback}, CapWrite.Directions())
	assert.Equal(t, []Direction{Capture, Playback}, (CapRead | CapWrite).Directions())
	assert.Nil(t, Capability(0).Directions())
}

func TestAnnouncementKindString(t *testing.T) {
	assert.Equal(t, "port-start", AnnouncementPortStart.String())
	assert.Equal(t, "port-change", AnnouncementPortChange.String())
	assert.Equal(t, "port-exit", AnnouncementPortExit.String())
	assert.Equal(t, "client-exit", AnnouncementClientExit.String())
}

func TestUdevSeqClientSendEventRequiresSubscription(t *testing.T) {
	client := NewUdevSeqClient().(*udevSeqClient)
	remote := RemoteAddress{ClientID: 1, PortID: 1}

	err := client.SendEvent(OutgoingSeqEvent{Dest: remote, Payload: []byte{0x90, 0x40, 0x7f}})
	assert.ErrorIs(t, err, ErrPortSubscribeSkip)

	sub, err := client.Subscribe(Playback, remote)
	require.NoError(t, err)

	err = client.SendEvent(OutgoingSeqEvent{Dest: remote, Payload: []byte{0x90, 0x40, 0x7f}})
	assert.NoError(t, err)

	require.NoError(t, sub.Close())
	err = client.SendEvent(OutgoingSeqEvent{Dest: remote, Payload: []byte{0x90, 0x40, 0x7f}})
	assert.ErrorIs(t, err, ErrPortSubscribeSkip)
}

func TestUdevSeqClientInjectDeliversThroughReceiveEvent(t *testing.T) {
	client := NewUdevSeqClient().(*udevSeqClient)
	remote := RemoteAddress{ClientID: 2, PortID: 3}

	client.Inject(RawSeqEvent{Source: remote, Payload: []byte{0x80, 0x40, 0x00}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ev, err := client.ReceiveEvent(ctx)
	require.NoError(t, err)
	assert.Equal(t, remote, ev.Source)
	assert.Equal(t, []byte{0x80, 0x40, 0x00}, ev.Payload)
}

func TestUdevSeqClientReceiveEventRespectsContextCancellation(t *testing.T) {
	client := NewUdevSeqClient().(*udevSeqClient)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.ReceiveEvent(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
