package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrRateLimited      = errors.New("rate limited")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrWSDisconnect     = errors.New("websocket disconnected")
	ErrContextDone      = errors.New("context cancelled")
	ErrLockHeld         = errors.New("lock already held")
	ErrHalted           = errors.New("trading halted")
	ErrNoSignal         = errors.New("no signal available")
	ErrDuplicateOutcome = errors.New("outcome already applied for trade")
)

// OutOfOrderError reports a sample older than the newest one already
// recorded for the asset. The sample is dropped, not inserted.
type OutOfOrderError struct {
	Asset  string
	Sample time.Time
	Latest time.Time
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("out-of-order sample for %s: %s is behind latest %s",
		e.Asset, e.Sample.Format(time.RFC3339Nano), e.Latest.Format(time.RFC3339Nano))
}

// InsufficientDataError reports that a feature cannot be computed yet because
// the sample window does not cover the required lookback. Callers should skip
// the cycle and retry once more data has arrived.
type InsufficientDataError struct {
	Asset  string
	Metric string
	Need   int
	Have   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: %s needs %d samples, have %d",
		e.Asset, e.Metric, e.Need, e.Have)
}

// IsInsufficientData reports whether err wraps an InsufficientDataError.
func IsInsufficientData(err error) bool {
	var ide *InsufficientDataError
	return errors.As(err, &ide)
}
