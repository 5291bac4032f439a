package domain

import "time"

// PriceSample is a single observed spot price for one asset.
type PriceSample struct {
	Asset     string
	Price     float64
	Volume    float64 // base-asset volume for the sample interval, 0 when the source reports none
	Timestamp time.Time
}

// Age returns how old the sample is relative to now.
func (s PriceSample) Age(now time.Time) time.Duration {
	return now.Sub(s.Timestamp)
}
