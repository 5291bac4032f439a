package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/quantpulse/pulsebot/internal/domain"
)

// Pub/sub channels observed by the watcher.
const (
	channelDecision = "ch:decision"
	channelAccount  = "ch:account"
)

// accountEvent mirrors the payloads the account service publishes on
// ch:account. Only the fields relevant to the event type are populated.
type accountEvent struct {
	Event           string  `json:"event"`
	TradeID         string  `json:"trade_id"`
	Result          string  `json:"result"`
	PnL             float64 `json:"pnl"`
	Capital         float64 `json:"capital"`
	WinStreak       int     `json:"win_streak"`
	LossStreak      int     `json:"loss_streak"`
	Reason          string  `json:"reason"`
	TradingDay      string  `json:"trading_day"`
	DayStartCapital float64 `json:"day_start_capital"`
}

// Watcher turns bus traffic into operator notifications. It subscribes to
// the decision and account channels, formats noteworthy events into short
// human-readable messages, and hands them to the Notifier. Delivery failures
// are logged and swallowed; the watcher never feeds errors back into the
// trading path.
type Watcher struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewWatcher creates a Watcher that forwards bus events to the notifier.
func NewWatcher(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *Watcher {
	return &Watcher{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_watcher")),
	}
}

// Run consumes bus events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	decisions, err := w.bus.Subscribe(ctx, channelDecision)
	if err != nil {
		return fmt.Errorf("notify: subscribe %s: %w", channelDecision, err)
	}
	account, err := w.bus.Subscribe(ctx, channelAccount)
	if err != nil {
		return fmt.Errorf("notify: subscribe %s: %w", channelAccount, err)
	}

	w.logger.InfoContext(ctx, "notification watcher started")
	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "notification watcher stopped")
			return ctx.Err()
		case payload, ok := <-decisions:
			if !ok {
				return nil
			}
			w.handleDecision(ctx, payload)
		case payload, ok := <-account:
			if !ok {
				return nil
			}
			w.handleAccount(ctx, payload)
		}
	}
}

// handleDecision notifies on approved decisions. Rejections stay out of the
// operator channel; they are visible in the decision log and the API.
func (w *Watcher) handleDecision(ctx context.Context, payload []byte) {
	var d domain.TradeDecision
	if err := json.Unmarshal(payload, &d); err != nil {
		w.logger.WarnContext(ctx, "undecodable decision payload",
			slog.String("error", err.Error()),
		)
		return
	}
	if !d.Approved {
		return
	}

	title, message := decisionMessage(d)
	if err := w.notifier.Notify(ctx, EventDecision, title, message); err != nil {
		w.logger.WarnContext(ctx, "decision notification failed",
			slog.String("decision_id", d.ID),
			slog.String("error", err.Error()),
		)
	}
}

// handleAccount routes account events to their notification type.
func (w *Watcher) handleAccount(ctx context.Context, payload []byte) {
	var ev accountEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		w.logger.WarnContext(ctx, "undecodable account payload",
			slog.String("error", err.Error()),
		)
		return
	}

	var event, title, message string
	switch ev.Event {
	case "outcome_applied":
		event = EventOutcome
		title, message = outcomeMessage(ev)
	case "trading_halted":
		event = EventHalt
		title, message = haltMessage(ev)
	case "daily_reset":
		event = EventDailyReset
		title, message = dailyResetMessage(ev)
	default:
		w.logger.DebugContext(ctx, "ignoring account event",
			slog.String("event", ev.Event),
		)
		return
	}

	if err := w.notifier.Notify(ctx, event, title, message); err != nil {
		w.logger.WarnContext(ctx, "account notification failed",
			slog.String("event", ev.Event),
			slog.String("error", err.Error()),
		)
	}
}

// decisionMessage formats an approved decision.
//
//	Trade approved
//	BTC UP $12.50 (4.2% of capital) at confidence 88 [momentum]
func decisionMessage(d domain.TradeDecision) (string, string) {
	return "Trade approved", fmt.Sprintf("%s %s $%.2f (%.1f%% of capital) at confidence %d [%s]",
		d.Asset, d.Direction, d.Size, d.SizePct*100, d.Confidence, d.Strategy)
}

// outcomeMessage formats a settled trade with the running streak.
//
//	Trade settled
//	t-123 WIN +$15.00, capital $315.00, 3-win streak
func outcomeMessage(ev accountEvent) (string, string) {
	msg := fmt.Sprintf("%s %s %s, capital $%.2f", ev.TradeID, ev.Result, signedDollars(ev.PnL), ev.Capital)
	switch {
	case ev.WinStreak > 1:
		msg += fmt.Sprintf(", %d-win streak", ev.WinStreak)
	case ev.LossStreak > 1:
		msg += fmt.Sprintf(", %d-loss streak", ev.LossStreak)
	}
	return "Trade settled", msg
}

// haltMessage formats the halt latch engaging.
func haltMessage(ev accountEvent) (string, string) {
	return "Trading halted", fmt.Sprintf("%s, capital $%.2f. Manual reset required.", ev.Reason, ev.Capital)
}

// dailyResetMessage formats the UTC-midnight rollover.
func dailyResetMessage(ev accountEvent) (string, string) {
	return "New trading day", fmt.Sprintf("%s started with $%.2f", ev.TradingDay, ev.DayStartCapital)
}

// signedDollars renders a PnL amount with an explicit sign, e.g. "+$15.00"
// or "-$10.00".
func signedDollars(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-$%.2f", -v)
	}
	return fmt.Sprintf("+$%.2f", v)
}
