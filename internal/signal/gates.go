package signal

import (
	"fmt"
	"math"

	"github.com/quantpulse/pulsebot/internal/domain"
)

// instMinBars covers the 5-bar momentum lookback plus the current bar.
const instMinBars = 6

// Gate confidence building blocks. Passing gates add their base credits;
// regime bonuses stack on top, capped at the ceiling. A directional call
// additionally needs the floor: a bare 2-of-3 quorum scores at most 60, so
// two-gate entries only fire with reinforcing regime bonuses.
const (
	gateMomentumCredit   = 25
	gateVolatilityCredit = 20
	gateExtremeCredit    = 25
	bonusStrongDeviation = 10
	bonusHighVolRegime   = 10
	bonusActiveSession   = 10
	gateConfidenceCap    = 95
	gateConfidenceFloor  = 70
)

// GateConfig holds the institutional evaluator's thresholds.
type GateConfig struct {
	// AccelFactor is the multiple of |mom3| that |mom1| must exceed for a
	// fresh acceleration.
	AccelFactor float64
	// ExpansionRatio is the VolRatio above which gate two passes.
	ExpansionRatio float64
	// RangeHigh and RangeLow are the range-position deciles that trip the
	// extreme gate.
	RangeHigh float64
	RangeLow  float64
	// VWAPDevPct trips the extreme gate on a true VWAP; VWAPProxyDevPct
	// applies when the VWAP fell back to a time-weighted mean.
	VWAPDevPct      float64
	VWAPProxyDevPct float64
	Session         SessionPolicy
}

// DefaultGateConfig returns the standard institutional thresholds.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		AccelFactor:     1.5,
		ExpansionRatio:  1.2,
		RangeHigh:       0.90,
		RangeLow:        0.10,
		VWAPDevPct:      1.0,
		VWAPProxyDevPct: 1.5,
		Session:         DefaultSessionPolicy(),
	}
}

// InstitutionalScorer endorses a trade only when a quorum of three
// independent confirmation gates passes and the additive confidence clears
// the floor: momentum exhaustion or fresh acceleration, volatility
// expansion, and a range or VWAP extreme. The session policy decides whether
// 2-of-3 or 3-of-3 is required. Exhaustion setups fade the decaying
// momentum; acceleration setups follow it; reversal and breakout are treated
// as equally valid entries.
type InstitutionalScorer struct {
	cfg GateConfig
}

var _ Scorer = (*InstitutionalScorer)(nil)

// NewInstitutionalScorer creates the gate evaluator. Zero-valued config
// fields fall back to the defaults.
func NewInstitutionalScorer(cfg GateConfig) *InstitutionalScorer {
	def := DefaultGateConfig()
	if cfg.AccelFactor <= 0 {
		cfg.AccelFactor = def.AccelFactor
	}
	if cfg.ExpansionRatio <= 0 {
		cfg.ExpansionRatio = def.ExpansionRatio
	}
	if cfg.RangeHigh <= 0 {
		cfg.RangeHigh = def.RangeHigh
	}
	if cfg.RangeLow <= 0 {
		cfg.RangeLow = def.RangeLow
	}
	if cfg.VWAPDevPct <= 0 {
		cfg.VWAPDevPct = def.VWAPDevPct
	}
	if cfg.VWAPProxyDevPct <= 0 {
		cfg.VWAPProxyDevPct = def.VWAPProxyDevPct
	}
	if len(cfg.Session.Windows) == 0 {
		cfg.Session = def.Session
	}
	return &InstitutionalScorer{cfg: cfg}
}

func (s *InstitutionalScorer) Name() string { return "institutional" }

func (s *InstitutionalScorer) Bars() int { return instMinBars }

// Score evaluates the three gates against the bar series and feature set.
func (s *InstitutionalScorer) Score(fs domain.FeatureSet, closes []float64) domain.Signal {
	if len(closes) < instMinBars {
		return holdSignal(fs, s.Name(),
			fmt.Sprintf("warming up: %d of %d bars", len(closes), instMinBars))
	}

	price := closes[len(closes)-1]
	mom1 := pctChange(closes[len(closes)-2], price)
	mom3 := pctChange(closes[len(closes)-4], price)
	mom5 := pctChange(closes[len(closes)-6], price)

	momPassed, momDir, momReason := s.momentumGate(mom1, mom3, mom5)
	volPassed := fs.VolRatio > s.cfg.ExpansionRatio
	extPassed, extDir, extReason := s.extremeGate(fs)

	passed := 0
	reasons := make([]string, 0, 4)
	if momPassed {
		passed++
		reasons = append(reasons, momReason)
	}
	if volPassed {
		passed++
		reasons = append(reasons, fmt.Sprintf("volatility expansion: ratio %.2f > %.2f", fs.VolRatio, s.cfg.ExpansionRatio))
	}
	if extPassed {
		passed++
		reasons = append(reasons, extReason)
	}

	quorum := s.cfg.Session.Quorum(fs.Timestamp, fs.VolRatio)
	components := map[string]float64{
		"momentum_1":      mom1,
		"momentum_3":      mom3,
		"momentum_5":      mom5,
		"gate_momentum":   boolToFloat(momPassed),
		"gate_volatility": boolToFloat(volPassed),
		"gate_extreme":    boolToFloat(extPassed),
		"quorum":          float64(quorum),
	}

	dir := domain.DirectionNone
	if passed >= quorum {
		switch {
		case momDir != domain.DirectionNone:
			dir = momDir
		case extDir != domain.DirectionNone:
			dir = extDir
		}
	}

	conf := 0
	if dir != domain.DirectionNone {
		conf = s.gateConfidence(momPassed, volPassed, extPassed, fs, &reasons)
	}

	switch {
	case passed < quorum:
		reasons = append(reasons, fmt.Sprintf("quorum not met: %d of %d gates", passed, quorum))
	case dir == domain.DirectionNone:
		reasons = append(reasons, "quorum met but no gate resolved a direction")
	case conf < gateConfidenceFloor:
		reasons = append(reasons, fmt.Sprintf("confidence %d below the %d floor", conf, gateConfidenceFloor))
		dir = domain.DirectionNone
		conf = 0
	}

	if dir == domain.DirectionNone {
		return domain.Signal{
			Asset:      fs.Asset,
			Strategy:   s.Name(),
			Direction:  domain.DirectionNone,
			Score:      0,
			Confidence: 0,
			Price:      fs.Price,
			Components: components,
			Reasons:    reasons,
			CreatedAt:  fs.Timestamp,
		}
	}

	score := float64(conf) / 100
	if dir == domain.DirectionDown {
		score = -score
	}
	return domain.Signal{
		Asset:      fs.Asset,
		Strategy:   s.Name(),
		Direction:  dir,
		Score:      score,
		Confidence: conf,
		Price:      fs.Price,
		Components: components,
		Reasons:    reasons,
		CreatedAt:  fs.Timestamp,
	}
}

// momentumGate passes on monotonic same-sign deceleration (an exhaustion
// setup faded against the momentum) or on a fresh acceleration (followed
// with the momentum).
func (s *InstitutionalScorer) momentumGate(mom1, mom3, mom5 float64) (bool, domain.Direction, string) {
	sameSign := (mom1 > 0 && mom3 > 0 && mom5 > 0) || (mom1 < 0 && mom3 < 0 && mom5 < 0)
	if sameSign && math.Abs(mom1) < math.Abs(mom3) && math.Abs(mom3) < math.Abs(mom5) {
		dir := domain.DirectionUp
		if mom1 > 0 {
			dir = domain.DirectionDown
		}
		return true, dir, fmt.Sprintf("momentum exhaustion: |%.3f| < |%.3f| < |%.3f|, fading", mom1, mom3, mom5)
	}
	if mom1 != 0 && math.Abs(mom1) > s.cfg.AccelFactor*math.Abs(mom3) {
		dir := domain.DirectionUp
		if mom1 < 0 {
			dir = domain.DirectionDown
		}
		return true, dir, fmt.Sprintf("fresh acceleration: |%.3f| > %.1fx|%.3f|, following", mom1, s.cfg.AccelFactor, mom3)
	}
	return false, domain.DirectionNone, ""
}

// extremeGate passes when price sits in the outer deciles of the rolling
// range or when the VWAP deviation is stretched; both cases hint a fade
// direction back toward the mean.
func (s *InstitutionalScorer) extremeGate(fs domain.FeatureSet) (bool, domain.Direction, string) {
	switch {
	case fs.RangePosition >= s.cfg.RangeHigh:
		return true, domain.DirectionDown,
			fmt.Sprintf("range extreme: position %.2f >= %.2f, fading down", fs.RangePosition, s.cfg.RangeHigh)
	case fs.RangePosition <= s.cfg.RangeLow:
		return true, domain.DirectionUp,
			fmt.Sprintf("range extreme: position %.2f <= %.2f, fading up", fs.RangePosition, s.cfg.RangeLow)
	}
	threshold := s.cfg.VWAPDevPct
	if fs.VWAPProxied {
		threshold = s.cfg.VWAPProxyDevPct
	}
	if math.Abs(fs.VWAPDeviation) > threshold {
		dir := domain.DirectionUp
		if fs.VWAPDeviation > 0 {
			dir = domain.DirectionDown
		}
		return true, dir,
			fmt.Sprintf("vwap deviation %.2f%% beyond %.1f%%, fading", fs.VWAPDeviation, threshold)
	}
	return false, domain.DirectionNone, ""
}

// gateConfidence adds the passing gates' credits and the regime bonuses.
func (s *InstitutionalScorer) gateConfidence(momPassed, volPassed, extPassed bool, fs domain.FeatureSet, reasons *[]string) int {
	conf := 0
	if momPassed {
		conf += gateMomentumCredit
	}
	if volPassed {
		conf += gateVolatilityCredit
	}
	if extPassed {
		conf += gateExtremeCredit
	}

	devThreshold := s.cfg.VWAPDevPct
	if fs.VWAPProxied {
		devThreshold = s.cfg.VWAPProxyDevPct
	}
	if math.Abs(fs.VWAPDeviation) > 2*devThreshold ||
		fs.RangePosition >= 0.95 || fs.RangePosition <= 0.05 {
		conf += bonusStrongDeviation
		*reasons = append(*reasons, "strong deviation bonus")
	}
	if s.cfg.Session.VolOverride > 0 && fs.VolRatio > s.cfg.Session.VolOverride {
		conf += bonusHighVolRegime
		*reasons = append(*reasons, "high volatility regime bonus")
	}
	if s.cfg.Session.Active(fs.Timestamp) {
		conf += bonusActiveSession
		*reasons = append(*reasons, "active session bonus")
	}
	if conf > gateConfidenceCap {
		conf = gateConfidenceCap
	}
	return conf
}

func pctChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
