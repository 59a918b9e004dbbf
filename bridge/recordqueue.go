package bridge

import (
	"encoding/binary"

	"code.hybscloud.com/lfq"
)

// inboundHeaderSize is the size of the fixed header prefixing every record
// in a Port's inbound ByteFIFO: a 4-byte frame time the event logically
// arrived at, and a 2-byte payload length.
const inboundHeaderSize = 6

func encodeInboundHeader(buf []byte, frameTime uint32, length uint16) {
	binary.LittleEndian.PutUint32(buf[0:4], frameTime)
	binary.LittleEndian.PutUint16(buf[4:6], length)
}

func decodeInboundHeader(buf []byte) (frameTime uint32, length uint16) {
	frameTime = binary.LittleEndian.Uint32(buf[0:4])
	length = binary.LittleEndian.Uint16(buf[4:6])
	return
}

// DeliveryEvent is one MIDI message bound for the sequencer side, captured
// during a jack callback's playback phase and drained by the seq output
// worker. Fixed-size so both producer and consumer never allocate.
type DeliveryEvent struct {
	Port          *Port
	AbsoluteNanos int64
	Length        uint16
	Payload       [MaxEventSize]byte
}

// newPortQueue and deletionQueue move *Port handles between the topology
// reconciler and the realtime jack callback: the reconciler constructs a
// Port (registering it on both sides) off the realtime thread, then hands
// it to the callback via a newPortQueue to be inserted into the Registry
// and marked live; once the callback observes a Port's dead flag it detaches
// it from the Registry and hands it back via deletionQueue for the
// reconciler to finish tearing down. outboundQueue carries playback-phase
// captures to the seq output worker.
//
// All three are specializations of code.hybscloud.com/lfq's cached-index
// SPSC ring, the same primitive ByteFIFO is hand-built on for variable-
// length byte records.
type newPortQueue = lfq.SPSC[*Port]
type deletionQueue = lfq.SPSC[*Port]
type outboundQueue = lfq.SPSC[DeliveryEvent]

const (
	newPortQueueCapacity  = 64
	deletionQueueCapacity = 64
	outboundQueueCapacity = 4096
)

func newNewPortQueue() *newPortQueue   { return lfq.NewSPSC[*Port](newPortQueueCapacity) }
func newDeletionQueue() *deletionQueue { return lfq.NewSPSC[*Port](deletionQueueCapacity) }
func newOutboundQueue() *outboundQueue { return lfq.NewSPSC[DeliveryEvent](outboundQueueCapacity) }
