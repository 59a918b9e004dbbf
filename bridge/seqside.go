package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/jochenvg/go-udev"
)

// Capability is a bitmask of what a remote sequencer endpoint supports.
type Capability uint8

const (
	// CapRead means the remote endpoint is a source of MIDI (it can be
	// read from); such endpoints are mirrored as Capture ports.
	CapRead Capability = 1 << iota
	// CapWrite means the remote endpoint accepts MIDI (it can be written
	// to); such endpoints are mirrored as Playback ports.
	CapWrite
)

// Directions returns the jack-side directions this capability set mirrors.
// A bidirectional remote endpoint yields both.
func (c Capability) Directions() []Direction {
	var dirs []Direction
	if c&CapRead != 0 {
		dirs = append(dirs, Capture)
	}
	if c&CapWrite != 0 {
		dirs = append(dirs, Playback)
	}
	return dirs
}

// EndpointDescriptor is everything the topology reconciler needs to know
// about one remote sequencer endpoint.
type EndpointDescriptor struct {
	Remote       RemoteAddress
	ClientName   string
	PortName     string
	Capabilities Capability
	Exportable   bool
}

// AnnouncementKind is the kind of topology change an AnnouncementEvent
// reports.
type AnnouncementKind int

const (
	AnnouncementPortStart AnnouncementKind = iota
	AnnouncementPortChange
	AnnouncementPortExit
	AnnouncementClientExit
)

func (k AnnouncementKind) String() string {
	switch k {
	case AnnouncementPortStart:
		return "port-start"
	case AnnouncementPortChange:
		return "port-change"
	case AnnouncementPortExit:
		return "port-exit"
	case AnnouncementClientExit:
		return "client-exit"
	default:
		return "unknown"
	}
}

// AnnouncementEvent is one topology change notification. Descriptor is
// fully populated for Start/Change; for Exit/ClientExit only Descriptor.Remote
// is guaranteed meaningful.
type AnnouncementEvent struct {
	Kind       AnnouncementKind
	Descriptor EndpointDescriptor
}

// RawSeqEvent is one inbound MIDI message from a remote endpoint, still in
// wire form.
type RawSeqEvent struct {
	Source  RemoteAddress
	Payload []byte
}

// OutgoingSeqEvent is one MIDI message ready to hand to the sequencer side,
// stamped with the absolute delivery time computed on the jack side.
type OutgoingSeqEvent struct {
	Dest          RemoteAddress
	Payload       []byte
	AbsoluteNanos int64
}

// SeqSubscription is a live connection between the bridge's own sequencer
// port and one remote endpoint. Closing it tears the connection down.
type SeqSubscription interface {
	Close() error
}

// SeqClient is the sequencer-side collaborator: topology discovery and
// announcement, subscription management, and MIDI event I/O. A real
// deployment binds this to the kernel ALSA sequencer; no cgo binding for
// that exists in this module, so the concrete type below substitutes
// hotplug/topology monitoring via udev for the announcement half and an
// in-process mailbox for the event-I/O half.
type SeqClient interface {
	Open(ctx context.Context, clientName string) error
	Close() error

	// Announcements delivers topology change notifications. It is closed
	// when Close is called.
	Announcements() <-chan AnnouncementEvent

	// Seed returns the endpoints that exist at call time, for the
	// reconciler's startup walk.
	Seed(ctx context.Context) ([]EndpointDescriptor, error)

	Subscribe(dir Direction, remote RemoteAddress) (SeqSubscription, error)

	// ReceiveEvent blocks until one inbound event is available or ctx is
	// canceled.
	ReceiveEvent(ctx context.Context) (RawSeqEvent, error)

	SendEvent(ev OutgoingSeqEvent) error
}

// udevSeqClient grounds topology discovery on github.com/jochenvg/go-udev's
// netlink hotplug monitor: add/remove/change actions on the "sound"
// subsystem stand in for SND_SEQ_EVENT_PORT_START/_EXIT/_CHANGE. Actual
// MIDI byte transport (which udev knows nothing about) is modeled with a
// plain channel mailbox; a real binding would instead read/write the
// rawmidi character device node udev reports for each endpoint.
type udevSeqClient struct {
	u   udev.Udev
	mon *udev.Monitor

	clientName string

	mu           sync.Mutex
	tracked      map[string]RemoteAddress // syspath -> assigned address
	nextPortID   uint8
	subscribed   map[RemoteAddress]bool

	announcements chan AnnouncementEvent
	inbox         chan RawSeqEvent
	cancelMonitor context.CancelFunc
}

// NewUdevSeqClient returns a SeqClient backed by udev hotplug monitoring.
func NewUdevSeqClient() SeqClient {
	return &udevSeqClient{
		tracked:       make(map[string]RemoteAddress),
		subscribed:    make(map[RemoteAddress]bool),
		announcements: make(chan AnnouncementEvent, 32),
		inbox:         make(chan RawSeqEvent, 256),
	}
}

func (c *udevSeqClient) Open(ctx context.Context, clientName string) error {
	c.clientName = clientName
	c.u = udev.Udev{}
	c.mon = c.u.NewMonitorFromNetlink("udev")
	if c.mon == nil {
		return fmt.Errorf("%w: could not create udev monitor", ErrSeqOpenFailed)
	}
	if err := c.mon.FilterAddMatchSubsystem("sound"); err != nil {
		return fmt.Errorf("%w: %v", ErrSeqOpenFailed, err)
	}

	monCtx, cancel := context.WithCancel(ctx)
	c.cancelMonitor = cancel
	deviceCh, errCh, err := c.mon.DeviceChan(monCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("%w: %v", ErrSeqOpenFailed, err)
	}

	go c.monitorLoop(deviceCh, errCh)
	return nil
}

func (c *udevSeqClient) monitorLoop(deviceCh <-chan *udev.Device, errCh <-chan error) {
	for {
		select {
		case dev, ok := <-deviceCh:
			if !ok {
				close(c.announcements)
				return
			}
			c.handleDevice(dev)
		case <-errCh:
			// Monitor socket closed or errored; nothing further will arrive.
		}
	}
}

func (c *udevSeqClient) handleDevice(dev *udev.Device) {
	syspath := dev.Syspath()

	switch dev.Action() {
	case "remove":
		c.mu.Lock()
		remote, known := c.tracked[syspath]
		delete(c.tracked, syspath)
		c.mu.Unlock()
		if !known {
			return
		}
		c.announcements <- AnnouncementEvent{
			Kind:       AnnouncementPortExit,
			Descriptor: EndpointDescriptor{Remote: remote},
		}
	case "add", "change":
		desc := c.describeDevice(dev)
		c.mu.Lock()
		_, known := c.tracked[syspath]
		if !known {
			desc.Remote = c.assignAddress(syspath)
		} else {
			desc.Remote = c.tracked[syspath]
		}
		c.mu.Unlock()

		kind := AnnouncementPortChange
		if !known {
			kind = AnnouncementPortStart
		}
		c.announcements <- AnnouncementEvent{Kind: kind, Descriptor: desc}
	}
}

// assignAddress must be called with c.mu held.
func (c *udevSeqClient) assignAddress(syspath string) RemoteAddress {
	addr := RemoteAddress{ClientID: 1, PortID: c.nextPortID}
	c.nextPortID++
	c.tracked[syspath] = addr
	return addr
}

func (c *udevSeqClient) describeDevice(dev *udev.Device) EndpointDescriptor {
	name := dev.PropertyValue("ID_MODEL")
	if name == "" {
		name = dev.Sysname()
	}
	return EndpointDescriptor{
		ClientName:   name,
		PortName:     dev.Sysname(),
		Capabilities: CapRead | CapWrite,
		Exportable:   !isHardwareDevice(dev),
	}
}

// isHardwareDevice reports whether dev is backed by a physical sound card
// rather than a software sequencer client. udev sets ID_BUS (usb, pci, ...)
// on devices enumerated from a real bus; software clients created by
// userspace synths have no such property. Hardware devices are the ones
// -e/--export-hw exists to gate: Exportable is the negation of this.
func isHardwareDevice(dev *udev.Device) bool {
	return dev.PropertyValue("ID_BUS") != ""
}

func (c *udevSeqClient) Close() error {
	if c.cancelMonitor != nil {
		c.cancelMonitor()
	}
	return nil
}

func (c *udevSeqClient) Announcements() <-chan AnnouncementEvent {
	return c.announcements
}

func (c *udevSeqClient) Seed(ctx context.Context) ([]EndpointDescriptor, error) {
	enum := c.u.NewEnumerate()
	if err := enum.AddMatchSubsystem("sound"); err != nil {
		return nil, err
	}
	devices, err := enum.Devices()
	if err != nil {
		return nil, err
	}

	var descriptors []EndpointDescriptor
	c.mu.Lock()
	for _, dev := range devices {
		desc := c.describeDevice(dev)
		desc.Remote = c.assignAddress(dev.Syspath())
		descriptors = append(descriptors, desc)
	}
	c.mu.Unlock()
	return descriptors, nil
}

func (c *udevSeqClient) Subscribe(dir Direction, remote RemoteAddress) (SeqSubscription, error) {
	c.mu.Lock()
	c.subscribed[remote] = true
	c.mu.Unlock()
	return &udevSubscription{client: c, remote: remote}, nil
}

func (c *udevSeqClient) ReceiveEvent(ctx context.Context) (RawSeqEvent, error) {
	select {
	case ev := <-c.inbox:
		return ev, nil
	case <-ctx.Done():
		return RawSeqEvent{}, ctx.Err()
	}
}

func (c *udevSeqClient) SendEvent(ev OutgoingSeqEvent) error {
	c.mu.Lock()
	subscribed := c.subscribed[ev.Dest]
	c.mu.Unlock()
	if !subscribed {
		return ErrPortSubscribeSkip
	}
	return nil
}

// Inject feeds a simulated inbound MIDI message into the mailbox, standing
// in for a real rawmidi device read. Exported for tests and for alternate
// transport bindings layered on top of this client.
func (c *udevSeqClient) Inject(ev RawSeqEvent) {
	c.inbox <- ev
}

type udevSubscription struct {
	client *udevSeqClient
	remote RemoteAddress
}

func (s *udevSubscription) Close() error {
	s.client.mu.Lock()
	delete(s.client.subscribed, s.remote)
	s.client.mu.Unlock()
	return nil
}
