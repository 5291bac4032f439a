package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quantpulse/pulsebot/internal/domain"
)

func TestQuantScorerWarmsUp(t *testing.T) {
	s := NewQuantScorer()
	fs := featureFixture()

	sig := s.Score(fs, []float64{100, 101, 102})
	assert.Equal(t, domain.DirectionNone, sig.Direction)
	assert.Zero(t, sig.Confidence)
	assert.Contains(t, sig.Reasons[0], "warming up")
}

func TestQuantScorerOversoldBounce(t *testing.T) {
	s := NewQuantScorer()
	fs := featureFixture()

	// A long decline followed by three up bars: RSI deeply oversold, recent
	// momentum positive, price back above its 5-bar mean.
	closes := make([]float64, 0, quantMinBars)
	price := 120.0
	for i := 0; i < 18; i++ {
		closes = append(closes, price)
		price--
	}
	closes = append(closes, 103.2, 103.6, 104.0)

	sig := s.Score(fs, closes)
	assert.Equal(t, domain.DirectionUp, sig.Direction)
	assert.Greater(t, sig.Score, QuantProfile().Threshold)
	assert.GreaterOrEqual(t, sig.Confidence, QuantProfile().ConfFloor)
	assert.Positive(t, sig.Components[string(FactorRSI)], "oversold RSI leans up")
	assert.Positive(t, sig.Components[string(FactorMomentum)])
}

func TestQuantScorerDeterministic(t *testing.T) {
	s := NewQuantScorer()
	fs := featureFixture()
	closes := make([]float64, quantMinBars)
	for i := range closes {
		closes[i] = 100 + float64(i%5)
	}

	a := s.Score(fs, closes)
	b := s.Score(fs, closes)
	assert.Equal(t, a, b)
}

func TestRSIContribution(t *testing.T) {
	assert.InDelta(t, (35.0-20.0)/35.0, rsiContribution(20), 1e-9)
	assert.InDelta(t, -(80.0-65.0)/35.0, rsiContribution(80), 1e-9)
	assert.Zero(t, rsiContribution(50))
	assert.InDelta(t, 1.0, rsiContribution(0), 1e-9)
}

func TestROCContribution(t *testing.T) {
	assert.InDelta(t, 1.0, rocContribution(0.6, 1.2), 1e-9)
	assert.InDelta(t, 0.5, rocContribution(0.6, 0.2), 1e-9)
	assert.InDelta(t, -1.0, rocContribution(-0.6, -1.2), 1e-9)
	assert.Zero(t, rocContribution(0.3, 0.8))
}

func TestSMATrendContribution(t *testing.T) {
	assert.Equal(t, 1.0, smaTrendContribution(105, 103, 101), "full bullish stack")
	assert.Equal(t, -1.0, smaTrendContribution(99, 103, 105), "full bearish stack")
	assert.Equal(t, 0.5, smaTrendContribution(105, 103, 104))
	assert.Equal(t, -0.5, smaTrendContribution(101, 103, 102))
	assert.Equal(t, 0.0, smaTrendContribution(103, 103, 103))
}

func TestDiffMomentumContribution(t *testing.T) {
	assert.InDelta(t, 1.0, diffMomentumContribution([]float64{99, 100, 101, 102, 103}), 1e-9)
	assert.InDelta(t, -1.0, diffMomentumContribution([]float64{103, 102, 101, 100}), 1e-9)
	assert.InDelta(t, 1.0/3.0, diffMomentumContribution([]float64{100, 101, 100, 101, 102}), 1e-9)
	assert.Zero(t, diffMomentumContribution([]float64{100, 101}))
}

func TestVolRegimeContribution(t *testing.T) {
	assert.InDelta(t, 0.3, volRegimeContribution(2.5), 1e-9)
	assert.InDelta(t, -0.5, volRegimeContribution(0.4), 1e-9)
	assert.Zero(t, volRegimeContribution(1.0))
	assert.Zero(t, volRegimeContribution(0), "unknown regime stays neutral")
}
