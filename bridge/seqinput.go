package bridge

import (
	"context"

	"github.com/jackaudio/a2jmidid/internal/bridgelog"
)

// seqInputWorker drains RawSeqEvents from the SeqClient, applies the codec
// fix-up (the only place it is applied; jack -> seq traffic is not decoded),
// stamps each event with the frame time of whichever jack cycle is
// current, and appends it to the destination Port's inbound FIFO for the
// next callback invocation to pick up.
type seqInputWorker struct {
	seq    SeqClient
	engine *jackEngine
	lookup func(RemoteAddress) (*Port, bool)
	codec  *Codec
	log    *bridgelog.Logger
}

func newSeqInputWorker(seq SeqClient, engine *jackEngine, lookup func(RemoteAddress) (*Port, bool), log *bridgelog.Logger) *seqInputWorker {
	return &seqInputWorker{seq: seq, engine: engine, lookup: lookup, codec: NewCodec(), log: log}
}

// run blocks until ctx is canceled or the SeqClient reports a fatal error.
func (w *seqInputWorker) run(ctx context.Context) error {
	var record [inboundHeaderSize + MaxEventSize]byte

	for {
		raw, err := w.seq.ReceiveEvent(ctx)
		if err != nil {
			return err
		}

		port, ok := w.lookup(raw.Source)
		if !ok || port.IsDead() {
			continue
		}

		decoded, err := w.codec.Decode(raw.Payload)
		if err != nil {
			w.engine.codecFailures.Add(1)
			w.log.Warn("discarding malformed inbound event", "error", err, "source", raw.Source)
			continue
		}

		frameTime := w.engine.currentFrameTime.Load()
		encodeInboundHeader(record[:inboundHeaderSize], frameTime, uint16(len(decoded)))
		n := copy(record[inboundHeaderSize:], decoded)
		total := inboundHeaderSize + n

		if !port.inbound.Write(record[:total]) {
			w.engine.overflowDropped.Add(1)
		}
	}
}
