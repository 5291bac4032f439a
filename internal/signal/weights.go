package signal

import (
	"fmt"
	"math"
)

// Factor names one independent input a weight profile combines.
type Factor string

const (
	FactorMomentum      Factor = "momentum"
	FactorAcceleration  Factor = "acceleration"
	FactorTrend         Factor = "trend"
	FactorVolatility    Factor = "volatility"
	FactorMeanReversion Factor = "mean_reversion"
	FactorRSI           Factor = "rsi"
	FactorROC           Factor = "roc"
)

// Profile is a named weight set plus the thresholds that turn a weighted
// score into a direction and confidence. Weights must sum to 1.0 and every
// factor contribution is clamped to [-1, 1] before weighting, so no factor
// can push the score beyond its weight.
type Profile struct {
	Name    string
	Weights map[Factor]float64
	// Threshold is the neutral band half-width: |score| must exceed it for
	// a directional call.
	Threshold float64
	// BiasToAction falls back to the sign of 30s momentum when the score
	// sits inside the neutral band, only holding when that momentum is
	// itself inside DeadZonePct of zero.
	BiasToAction bool
	DeadZonePct  float64
	// ConfFloor and ConfCap bound confidence = floor + |score|*100 for any
	// actionable direction.
	ConfFloor int
	ConfCap   int
}

// Validate checks the profile's internal consistency.
func (p Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile: name must not be empty")
	}
	if len(p.Weights) == 0 {
		return fmt.Errorf("profile %s: no weights", p.Name)
	}
	var sum float64
	for factor, w := range p.Weights {
		if w < 0 {
			return fmt.Errorf("profile %s: negative weight for %s", p.Name, factor)
		}
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("profile %s: weights sum to %.4f, want 1.0", p.Name, sum)
	}
	if p.Threshold <= 0 || p.Threshold >= 1 {
		return fmt.Errorf("profile %s: threshold %.2f outside (0, 1)", p.Name, p.Threshold)
	}
	if p.ConfFloor < 0 || p.ConfCap > 100 || p.ConfFloor > p.ConfCap {
		return fmt.Errorf("profile %s: confidence bounds [%d, %d] invalid", p.Name, p.ConfFloor, p.ConfCap)
	}
	return nil
}

// MomentumProfile is the momentum-dominant weight set. It is the default and
// runs in bias-to-action mode: inside the neutral band it still follows the
// sign of 30s momentum unless that momentum is inside the dead zone.
func MomentumProfile() Profile {
	return Profile{
		Name: "momentum",
		Weights: map[Factor]float64{
			FactorMomentum:      0.40,
			FactorAcceleration:  0.20,
			FactorTrend:         0.20,
			FactorVolatility:    0.10,
			FactorMeanReversion: 0.10,
		},
		Threshold:    0.15,
		BiasToAction: true,
		DeadZonePct:  0.05,
		ConfFloor:    50,
		ConfCap:      95,
	}
}

// QuantProfile is the six-factor indicator set scored from a resampled bar
// series. It holds inside the neutral band instead of biasing to action.
func QuantProfile() Profile {
	return Profile{
		Name: "quant",
		Weights: map[Factor]float64{
			FactorRSI:           0.25,
			FactorROC:           0.20,
			FactorTrend:         0.20,
			FactorMomentum:      0.15,
			FactorMeanReversion: 0.15,
			FactorVolatility:    0.05,
		},
		Threshold:    0.15,
		BiasToAction: false,
		ConfFloor:    55,
		ConfCap:      95,
	}
}
