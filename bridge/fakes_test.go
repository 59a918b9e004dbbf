package bridge

import (
	"context"
	"io"
	"sync"

	"github.com/jackaudio/a2jmidid/internal/bridgelog"
)

// testLogger returns a Logger discarding everything it's given, so tests
// exercising logged failure paths don't spam stderr.
func testLogger() *bridgelog.Logger {
	return bridgelog.New(io.Discard, "test")
}

// fakeSeqClient is an in-memory SeqClient test double: Seed returns a fixed
// set of descriptors, topology changes are injected via announce, and
// inbound/outbound MIDI flows through plain channels/slices instead of any
// real transport.
type fakeSeqClient struct {
	mu          sync.Mutex
	seedList    []EndpointDescriptor
	announce    chan AnnouncementEvent
	inbox       chan RawSeqEvent
	sent        []OutgoingSeqEvent
	subscribed  map[RemoteAddress]int
	openErr     error
	subscribeErr error
}

func newFakeSeqClient(seed ...EndpointDescriptor) *fakeSeqClient {
	return &fakeSeqClient{
		seedList:   seed,
		announce:   make(chan AnnouncementEvent, 32),
		inbox:      make(chan RawSeqEvent, 32),
		subscribed: make(map[RemoteAddress]int),
	}
}

func (f *fakeSeqClient) Open(ctx context.Context, clientName string) error { return f.openErr }
func (f *fakeSeqClient) Close() error                                     { return nil }

func (f *fakeSeqClient) Announcements() <-chan AnnouncementEvent { return f.announce }

func (f *fakeSeqClient) Seed(ctx context.Context) ([]EndpointDescriptor, error) {
	return f.seedList, nil
}

func (f *fakeSeqClient) Subscribe(dir Direction, remote RemoteAddress) (SeqSubscription, error) {
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	f.mu.Lock()
	f.subscribed[remote]++
	f.mu.Unlock()
	return &fakeSubscription{client: f, remote: remote}, nil
}

func (f *fakeSeqClient) ReceiveEvent(ctx context.Context) (RawSeqEvent, error) {
	select {
	case ev := <-f.inbox:
		return ev, nil
	case <-ctx.Done():
		return RawSeqEvent{}, ctx.Err()
	}
}

func (f *fakeSeqClient) SendEvent(ev OutgoingSeqEvent) error {
	f.mu.Lock()
	f.sent = append(f.sent, ev)
	f.mu.Unlock()
	return nil
}

func (f *fakeSeqClient) inject(ev RawSeqEvent) {
	f.inbox <- ev
}

func (f *fakeSeqClient) sentEvents() []OutgoingSeqEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]OutgoingSeqEvent, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeSeqClient) subscriptionCount(remote RemoteAddress) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribed[remote]
}

type fakeSubscription struct {
	client *fakeSeqClient
	remote RemoteAddress
}

func (s *fakeSubscription) Close() error {
	s.client.mu.Lock()
	s.client.subscribed[s.remote]--
	s.client.mu.Unlock()
	return nil
}

// fakeJackClient is an in-memory JackClient test double: Activate stores
// the callback without ever invoking it on a timer, so tests drive the
// realtime callback deterministically by calling it directly.
type fakeJackClient struct {
	mu          sync.Mutex
	activated   ProcessFunc
	sampleRate  uint32
	openErr     error
	activateErr error
	portsOpen   int
}

func newFakeJackClient() *fakeJackClient {
	return &fakeJackClient{sampleRate: 48000}
}

func (f *fakeJackClient) Open(clientName, serverName string) error { return f.openErr }
func (f *fakeJackClient) Close() error                             { return nil }

func (f *fakeJackClient) RegisterPort(dir Direction, name string) (JackPort, error) {
	f.mu.Lock()
	f.portsOpen++
	f.mu.Unlock()
	return &jackPortImpl{name: name, dir: dir}, nil
}

func (f *fakeJackClient) UnregisterPort(p JackPort) error {
	f.mu.Lock()
	f.portsOpen--
	f.mu.Unlock()
	return nil
}

func (f *fakeJackClient) Activate(cb ProcessFunc) error {
	if f.activateErr != nil {
		return f.activateErr
	}
	f.mu.Lock()
	f.activated = cb
	f.mu.Unlock()
	return nil
}

func (f *fakeJackClient) Deactivate() error { return nil }
func (f *fakeJackClient) SampleRate() uint32 { return f.sampleRate }

func (f *fakeJackClient) fire(nframes, cycleStart uint32, freewheeling bool) {
	f.mu.Lock()
	cb := f.activated
	rate := f.sampleRate
	f.mu.Unlock()
	if cb != nil {
		cb(nframes, cycleStart, rate, freewheeling)
	}
}

func (f *fakeJackClient) openPortCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.portsOpen
}
