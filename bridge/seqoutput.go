package bridge

import (
	"context"
	"sort"
	"time"

	"github.com/jackaudio/a2jmidid/internal/bridgelog"
)

// seqOutputWorker drains the outbound queue the jack callback fills, orders
// events by their absolute delivery time (captures across ports can arrive
// out of global time order even though each port's own stream is ordered),
// and emits them to the sequencer side no earlier than their scheduled
// instant.
type seqOutputWorker struct {
	seq    SeqClient
	engine *jackEngine
	codec  *Codec
	epoch  time.Time
	log    *bridgelog.Logger

	pending []DeliveryEvent
}

func newSeqOutputWorker(seq SeqClient, engine *jackEngine, epoch time.Time, log *bridgelog.Logger) *seqOutputWorker {
	return &seqOutputWorker{seq: seq, engine: engine, codec: NewCodec(), epoch: epoch, log: log}
}

// run blocks until ctx is canceled.
func (w *seqOutputWorker) run(ctx context.Context) error {
	for {
		if err := w.engine.wake.Wait(ctx); err != nil {
			return err
		}
		w.drainAndEmit(ctx)
	}
}

func (w *seqOutputWorker) drainAndEmit(ctx context.Context) {
	w.pending = w.pending[:0]
	for {
		ev, err := w.engine.outbound.Dequeue()
		if err != nil {
			break
		}
		w.pending = append(w.pending, ev)
	}

	sort.SliceStable(w.pending, func(i, j int) bool {
		return w.pending[i].AbsoluteNanos < w.pending[j].AbsoluteNanos
	})

	for _, ev := range w.pending {
		if ctx.Err() != nil {
			return
		}
		w.emit(ctx, ev)
	}
}

func (w *seqOutputWorker) emit(ctx context.Context, ev DeliveryEvent) {
	port := ev.Port
	if port.IsDead() {
		return
	}

	effective := port.AdvanceLastDelivered(ev.AbsoluteNanos)

	target := w.epoch.Add(time.Duration(effective))
	if d := time.Until(target); d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}

	wire, err := w.codec.Encode(ev.Payload[:ev.Length])
	if err != nil {
		w.engine.codecFailures.Add(1)
		w.log.Warn("discarding malformed outbound event", "error", err, "dest", port.Remote)
		return
	}

	if err := w.seq.SendEvent(OutgoingSeqEvent{
		Dest:          port.Remote,
		Payload:       wire,
		AbsoluteNanos: effective,
	}); err != nil {
		w.log.Warn("outbound send failed", "error", err, "dest", port.Remote)
	}
}
