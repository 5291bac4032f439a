package executor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/quantpulse/pulsebot/internal/domain"
)

const (
	outcomePollInterval = 2 * time.Second
	outcomeBatchSize    = 100
)

// OutcomeConsumer ingests settled-trade reports from the StreamOutcomes
// Redis stream and applies them to the account. It starts from the
// beginning of the retained stream on every boot; the sink's per-trade
// idempotency makes the replay harmless, so no read position needs to be
// persisted. A report that fails to apply is retried from the same stream
// position until it succeeds, giving at-least-once delivery.
type OutcomeConsumer struct {
	bus    domain.SignalBus
	sink   OutcomeSink
	logger *slog.Logger

	lastID string
}

// NewOutcomeConsumer creates an OutcomeConsumer reading StreamOutcomes.
func NewOutcomeConsumer(bus domain.SignalBus, sink OutcomeSink, logger *slog.Logger) *OutcomeConsumer {
	return &OutcomeConsumer{
		bus:    bus,
		sink:   sink,
		logger: logger.With(slog.String("component", "outcome_consumer")),
		lastID: "0",
	}
}

// Run polls the stream until the context is cancelled.
func (oc *OutcomeConsumer) Run(ctx context.Context) error {
	oc.logger.Info("outcome consumer started", slog.String("stream", StreamOutcomes))
	defer oc.logger.Info("outcome consumer stopped")

	ticker := time.NewTicker(outcomePollInterval)
	defer ticker.Stop()

	oc.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			oc.drain(ctx)
		}
	}
}

// drain reads batches until the stream has nothing past lastID.
func (oc *OutcomeConsumer) drain(ctx context.Context) {
	for {
		msgs, err := oc.bus.StreamRead(ctx, StreamOutcomes, oc.lastID, outcomeBatchSize)
		if err != nil {
			oc.logger.Warn("outcome stream read failed",
				slog.String("error", err.Error()),
			)
			return
		}
		if len(msgs) == 0 {
			return
		}
		for _, msg := range msgs {
			if !oc.apply(ctx, msg) {
				return
			}
			oc.lastID = msg.ID
		}
	}
}

// apply processes one stream entry. It returns false when the entry must be
// retried from the same position; malformed entries are skipped so a poison
// payload cannot wedge the stream.
func (oc *OutcomeConsumer) apply(ctx context.Context, msg domain.StreamMessage) bool {
	var rep domain.OutcomeReport
	if err := json.Unmarshal(msg.Payload, &rep); err != nil {
		oc.logger.Warn("malformed outcome entry skipped",
			slog.String("stream_id", msg.ID),
			slog.String("error", err.Error()),
		)
		return true
	}

	_, err := oc.sink.ApplyOutcome(ctx, rep)
	switch {
	case errors.Is(err, domain.ErrDuplicateOutcome):
		oc.logger.Debug("duplicate outcome entry",
			slog.String("trade_id", rep.TradeID),
		)
	case err != nil:
		oc.logger.Warn("outcome apply failed, will retry",
			slog.String("trade_id", rep.TradeID),
			slog.String("error", err.Error()),
		)
		return false
	default:
		oc.logger.Info("outcome ingested",
			slog.String("trade_id", rep.TradeID),
			slog.String("result", string(rep.Result)),
			slog.Float64("pnl", rep.PnL),
		)
	}
	return true
}
