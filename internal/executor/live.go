package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantpulse/pulsebot/internal/domain"
)

// LiveExecutor hands approved decisions to an external executor over a
// durable Redis stream. The external side places the real position and
// reports settlement back through the outcomes webhook or stream; this
// process never touches an exchange itself.
type LiveExecutor struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewLiveExecutor creates a LiveExecutor publishing to StreamDecisions.
func NewLiveExecutor(bus domain.SignalBus, logger *slog.Logger) *LiveExecutor {
	return &LiveExecutor{
		bus:    bus,
		logger: logger.With(slog.String("component", "live_executor")),
	}
}

// Name identifies the executor in logs and status output.
func (l *LiveExecutor) Name() string { return "live" }

// Execute appends the decision to the handoff stream. The stream is the
// contract boundary: once the append succeeds the decision is the external
// executor's to act on.
func (l *LiveExecutor) Execute(ctx context.Context, d domain.TradeDecision, _ domain.Signal, _ time.Time) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("executor: marshal decision %s: %w", d.ID, err)
	}
	if err := l.bus.StreamAppend(ctx, StreamDecisions, payload); err != nil {
		return fmt.Errorf("executor: hand off decision %s: %w", d.ID, err)
	}

	l.logger.Info("decision handed off",
		slog.String("decision_id", d.ID),
		slog.String("asset", d.Asset),
		slog.String("direction", string(d.Direction)),
		slog.Float64("size", d.Size),
		slog.Int("confidence", d.Confidence),
	)
	return nil
}

var _ TradeExecutor = (*LiveExecutor)(nil)
