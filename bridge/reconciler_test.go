package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcilerSeedCreatesPortsForEachCapability(t *testing.T) {
	remote := RemoteAddress{ClientID: 1, PortID: 1}
	seq := newFakeSeqClient(EndpointDescriptor{
		Remote:       remote,
		ClientName:   "synth",
		PortName:     "in",
		Capabilities: CapRead | CapWrite,
		Exportable:   true,
	})
	jack := newFakeJackClient()
	engine := newJackEngine()
	r := NewReconciler(seq, jack, engine, testLogger())

	require.NoError(t, r.Seed(context.Background()))

	_, ok := r.LookupPort(Capture, remote)
	assert.True(t, ok)
	_, ok = r.LookupPort(Playback, remote)
	assert.True(t, ok)
	assert.Equal(t, 2, jack.openPortCount())
	assert.Equal(t, 2, seq.subscriptionCount(remote))
}

func TestReconcilerSkipsNonExportableUnlessHWExportEnabled(t *testing.T) {
	remote := RemoteAddress{ClientID: 2}
	seq := newFakeSeqClient(EndpointDescriptor{
		Remote:       remote,
		ClientName:   "hw",
		PortName:     "in",
		Capabilities: CapRead,
		Exportable:   false,
	})
	jack := newFakeJackClient()
	engine := newJackEngine()
	r := NewReconciler(seq, jack, engine, testLogger())

	require.NoError(t, r.Seed(context.Background()))
	_, ok := r.LookupPort(Capture, remote)
	assert.False(t, ok)

	r.SetHWExport(true)
	r.onStart(EndpointDescriptor{Remote: remote, ClientName: "hw", PortName: "in", Capabilities: CapRead, Exportable: false})
	_, ok = r.LookupPort(Capture, remote)
	assert.True(t, ok)
}

func TestReconcilerRunHandlesPortStartAndExit(t *testing.T) {
	seq := newFakeSeqClient()
	jack := newFakeJackClient()
	engine := newJackEngine()
	r := NewReconciler(seq, jack, engine, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	remote := RemoteAddress{ClientID: 5}
	seq.announce <- AnnouncementEvent{
		Kind: AnnouncementPortStart,
		Descriptor: EndpointDescriptor{
			Remote: remote, ClientName: "x", PortName: "y",
			Capabilities: CapWrite, Exportable: true,
		},
	}

	require.Eventually(t, func() bool {
		_, ok := r.LookupPort(Playback, remote)
		return ok
	}, time.Second, 5*time.Millisecond)

	seq.announce <- AnnouncementEvent{
		Kind:       AnnouncementPortExit,
		Descriptor: EndpointDescriptor{Remote: remote},
	}

	require.Eventually(t, func() bool {
		p, ok := r.LookupPort(Playback, remote)
		return ok && p.IsDead()
	}, time.Second, 5*time.Millisecond)

	engine.absorbNewPorts(engine.streams[Playback])
	engine.streams[Playback].registry.Iter(func(p *Port) {
		if p.IsDead() {
			engine.detach(engine.streams[Playback], p)
		}
	})

	require.Eventually(t, func() bool {
		return jack.openPortCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReconcilerFindByDisplayName(t *testing.T) {
	remote := RemoteAddress{ClientID: 9}
	seq := newFakeSeqClient(EndpointDescriptor{
		Remote: remote, ClientName: "box", PortName: "midi",
		Capabilities: CapRead, Exportable: true,
	})
	jack := newFakeJackClient()
	engine := newJackEngine()
	r := NewReconciler(seq, jack, engine, testLogger())
	require.NoError(t, r.Seed(context.Background()))

	name := BuildDisplayName(Capture, "box", "midi")
	p, ok := r.FindByDisplayName(name)
	require.True(t, ok)
	assert.Equal(t, remote, p.Remote)

	_, ok = r.FindByDisplayName("nonexistent")
	assert.False(t, ok)
}
