package bridge

import "errors"

// Fatal startup errors. Any of these during Start unwinds the bridge fully
// back to Stopped.
var (
	ErrSeqOpenFailed   = errors.New("bridge: failed to open sequencer client")
	ErrJackOpenFailed  = errors.New("bridge: failed to open jack client")
	ErrQueueAllocation = errors.New("bridge: failed to allocate sequencer queue")
	ErrPortRegister    = errors.New("bridge: failed to register bridge's own seq port")
)

// Lifecycle errors.
var (
	// ErrAlreadyRunning is returned by Start when the bridge is Running or
	// Starting: a second start while running is a no-op error, not a restart.
	ErrAlreadyRunning = errors.New("bridge: already running")
	// ErrNotRunning is returned by Stop when the bridge is not Running.
	ErrNotRunning = errors.New("bridge: not running")
	// ErrHWExportWhileRunning is returned by SetHWExport while Running.
	ErrHWExportWhileRunning = errors.New("bridge: cannot change hardware export while running")
)

// Recoverable per-port errors. These never stop the bridge; the topology
// reconciler logs them and skips the port.
var (
	ErrPortRegisterSkip   = errors.New("bridge: jack port registration failed")
	ErrPortSubscribeSkip  = errors.New("bridge: sequencer subscription failed")
	ErrPortDescriptorSkip = errors.New("bridge: remote endpoint descriptor unavailable")
)

// ErrCodecFailure is a per-event decode/encode failure. The event is
// discarded; the worker continues.
var ErrCodecFailure = errors.New("bridge: codec failure")
