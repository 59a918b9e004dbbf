package bridge

// MaxEventSize is the largest MIDI message this bridge will carry end to
// end. Both directions' codecs share this bound for their scratch buffers.
const MaxEventSize = 1024

// statusNoteOn and statusNoteOff are the high nibble of a MIDI channel
// voice status byte.
const (
	statusNoteOn  byte = 0x90
	statusNoteOff byte = 0x80
)

// fixedUpNoteOffVelocity is the velocity a NoteOn-with-velocity-0 is
// rewritten to carry once normalized to NoteOff.
const fixedUpNoteOffVelocity byte = 0x40

// Codec decodes raw MIDI wire bytes arriving from one side of the bridge
// and encodes outgoing messages for the other side. The seq input worker
// owns one instance (Decode) and the seq output worker another (Encode),
// mirroring the real a2jmidid's snd_midi_event_t pair.
//
// ALSA sequencer events arrive already framed as complete messages, so this
// is a small validate-and-normalize step rather than a byte-stream state
// machine; no running-status reconstruction is needed. No third-party MIDI
// codec library covers this, so it is hand-rolled.
type Codec struct {
	scratch [MaxEventSize]byte
}

// NewCodec returns a ready-to-use Codec.
func NewCodec() *Codec {
	return &Codec{}
}

// Decode validates wire bytes and applies the one sanctioned semantic
// fix-up: a NoteOn with velocity 0 is rewritten to NoteOff with velocity
// 0x40, channel preserved. The returned slice aliases the Codec's internal
// scratch buffer and is only valid until the next Decode call.
func (c *Codec) Decode(wire []byte) ([]byte, error) {
	if len(wire) == 0 || len(wire) > MaxEventSize {
		return nil, ErrCodecFailure
	}

	n := copy(c.scratch[:], wire)
	msg := c.scratch[:n]

	if n == 3 && msg[0]&0xF0 == statusNoteOn && msg[2] == 0 {
		msg[0] = statusNoteOff | (msg[0] & 0x0F)
		msg[2] = fixedUpNoteOffVelocity
	}

	return msg, nil
}

// Encode validates an outgoing message for transmission. It performs no
// rewriting: the fix-up is applied only at Decode time, on the seq -> jack
// path; jack -> seq messages reach the sequencer side unchanged.
func (c *Codec) Encode(msg []byte) ([]byte, error) {
	if len(msg) == 0 || len(msg) > MaxEventSize {
		return nil, ErrCodecFailure
	}
	return msg, nil
}
