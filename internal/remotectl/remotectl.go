// Package remotectl exposes bridge start/stop control to something other
// than the CLI itself, and announces the bridge's presence on the local
// network via DNS-SD.
package remotectl

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/brutella/dnssd"
	"github.com/rs/xid"

	"github.com/jackaudio/a2jmidid/bridge"
	"github.com/jackaudio/a2jmidid/internal/bridgelog"
)

const dnssdServiceType = "_a2jmidid._tcp"

// Signal is one of the lifecycle notifications the remote-control surface
// emits, mirroring the bridge_started/bridge_stopped signals a real D-Bus
// collaborator would broadcast.
type Signal int

const (
	SignalBridgeStarted Signal = iota
	SignalBridgeStopped
)

func (s Signal) String() string {
	if s == SignalBridgeStarted {
		return "bridge_started"
	}
	return "bridge_stopped"
}

// signalBacklog bounds how many unconsumed signals Controller buffers;
// once it is full, each newly emitted signal is dropped (and logged) while
// the buffered ones are kept. A remote front end is expected to drain
// Signals() promptly.
const signalBacklog = 8

// Controller wraps a *bridge.Bridge with the full method/signal surface a
// remote front end needs: start/stop/query/mapping methods plus
// bridge_started/bridge_stopped signals, and a session identifier that
// stays stable across restarts of the underlying bridge so log lines from
// one invocation can be correlated.
type Controller struct {
	log      *bridgelog.Logger
	sessID   string
	announce string

	mu      sync.Mutex
	b       *bridge.Bridge
	exited  bool
	signals chan Signal

	respondCancel context.CancelFunc
}

// New returns a Controller driving b, with announceName used for DNS-SD
// presence (falling back to the session id if empty).
func New(b *bridge.Bridge, announceName string) *Controller {
	sessID := xid.New().String()
	if announceName == "" {
		announceName = "a2jmidid-" + sessID
	}
	return &Controller{
		log:      bridgelog.Default("remotectl").With("session", sessID),
		sessID:   sessID,
		announce: announceName,
		b:        b,
		signals:  make(chan Signal, signalBacklog),
	}
}

// SessionID returns the identifier this controller stamps its log lines
// with.
func (c *Controller) SessionID() string {
	return c.sessID
}

// Signals delivers bridge_started/bridge_stopped notifications. It is
// closed once Exit has been called.
func (c *Controller) Signals() <-chan Signal {
	return c.signals
}

func (c *Controller) emit(sig Signal) {
	select {
	case c.signals <- sig:
	default:
		c.log.Warn("signal dropped: consumer not keeping up", "signal", sig)
	}
}

// Start starts the underlying bridge and begins advertising it over
// DNS-SD. port is informational only; a2jmidid has no listening socket of
// its own, but name-based discovery is still useful for remote front ends
// that expect to find "an a2jmidid on the network".
func (c *Controller) Start(ctx context.Context, port int) error {
	if err := c.b.Start(ctx); err != nil {
		return err
	}
	c.log.Info("bridge started")
	c.emit(SignalBridgeStarted)

	if err := c.announceDNSSD(port); err != nil {
		c.log.Warn("DNS-SD announce failed", "error", err)
	}
	return nil
}

func (c *Controller) announceDNSSD(port int) error {
	cfg := dnssd.Config{
		Name: c.announce,
		Type: dnssdServiceType,
		Port: port,
	}
	sv, err := dnssd.NewService(cfg)
	if err != nil {
		return fmt.Errorf("remotectl: creating service: %w", err)
	}
	rp, err := dnssd.NewResponder()
	if err != nil {
		return fmt.Errorf("remotectl: creating responder: %w", err)
	}
	if _, err := rp.Add(sv); err != nil {
		return fmt.Errorf("remotectl: adding service: %w", err)
	}

	respondCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.respondCancel = cancel
	c.mu.Unlock()

	go func() {
		if err := rp.Respond(respondCtx); err != nil && respondCtx.Err() == nil {
			c.log.Warn("DNS-SD responder exited", "error", err)
		}
	}()

	c.log.Info("announcing on DNS-SD", "name", c.announce, "type", dnssdServiceType)
	return nil
}

// Stop stops DNS-SD advertisement and the underlying bridge.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel := c.respondCancel
	c.respondCancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	err := c.b.Stop(ctx)
	c.log.Info("bridge stopped")
	c.emit(SignalBridgeStopped)
	return err
}

// Exit stops the bridge if running, then permanently closes Signals. It is
// the remote-control surface's equivalent of quitting the outer program;
// the Controller must not be used again afterward.
func (c *Controller) Exit(ctx context.Context) error {
	c.mu.Lock()
	if c.exited {
		c.mu.Unlock()
		return nil
	}
	c.exited = true
	c.mu.Unlock()

	var err error
	if c.IsStarted() {
		err = c.Stop(ctx)
	}
	close(c.signals)
	return err
}

// IsStarted reports whether the underlying bridge is running.
func (c *Controller) IsStarted() bool {
	return c.b.IsStarted()
}

// SetHWExport forwards to the underlying bridge.
func (c *Controller) SetHWExport(enabled bool) error {
	return c.b.SetHWExport(enabled)
}

// GetHWExport forwards to the underlying bridge.
func (c *Controller) GetHWExport() bool {
	return c.b.HWExport()
}

// GetJackClientName returns the name the bridge registers itself under on
// the jack side.
func (c *Controller) GetJackClientName() string {
	return c.b.ClientName()
}

// Snapshot forwards to the underlying bridge.
func (c *Controller) Snapshot() []*bridge.Port {
	return c.b.Snapshot()
}

// ErrPortNotMapped is returned by MapAlsaToJackPort and MapJackPortToAlsa
// when no currently tracked port matches the given address or name.
var ErrPortNotMapped = errors.New("remotectl: no such port")

// MapAlsaToJackPort resolves the alsa-side (clientID, portID) address to
// the jack port name the bridge mirrors it as. mapPlayback selects the
// Playback-direction mirror instead of the default Capture one.
func (c *Controller) MapAlsaToJackPort(clientID, portID uint8, mapPlayback bool) (string, error) {
	dir := bridge.Capture
	if mapPlayback {
		dir = bridge.Playback
	}
	remote := bridge.RemoteAddress{ClientID: clientID, PortID: portID}
	for _, p := range c.b.Snapshot() {
		if p.Direction == dir && p.Remote == remote {
			return p.DisplayName, nil
		}
	}
	return "", ErrPortNotMapped
}

// MapJackPortToAlsa resolves a mirrored jack port name back to its alsa
// (clientID, portID) address and remote client/port names.
func (c *Controller) MapJackPortToAlsa(jackPortName string) (clientID, portID uint8, clientName, portName string, err error) {
	for _, p := range c.b.Snapshot() {
		if p.DisplayName == jackPortName {
			return p.Remote.ClientID, p.Remote.PortID, p.RemoteClientName, p.RemotePortName, nil
		}
	}
	return 0, 0, "", "", ErrPortNotMapped
}
