package signal

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/quantpulse/pulsebot/internal/domain"
)

// Momentum horizons. Every FeatureSet carries all four; extraction fails
// with *domain.InsufficientDataError until the buffer covers the longest.
const (
	HorizonShort  = 15 * time.Second
	HorizonMedium = 30 * time.Second
	HorizonLong   = 60 * time.Second
	HorizonMax    = 120 * time.Second
)

// ExtractorConfig holds the tunable policy constants of feature extraction.
type ExtractorConfig struct {
	// RecentWindow and BaselineWindow are sample counts for the volatility
	// regime comparison.
	RecentWindow   int
	BaselineWindow int
	// ExpansionRatio is the recent/baseline ratio above which the
	// volatility state is expanding.
	ExpansionRatio float64
	// StrongBiasPct is the absolute momentum (percent) that upgrades a
	// directional bias to strong.
	StrongBiasPct float64
	ZScoreWindow  time.Duration
	VWAPWindow    time.Duration
	RangeWindow   time.Duration
}

// DefaultExtractorConfig returns the standard extraction constants.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		RecentWindow:   10,
		BaselineWindow: 30,
		ExpansionRatio: 1.2,
		StrongBiasPct:  0.3,
		ZScoreWindow:   2 * time.Minute,
		VWAPWindow:     5 * time.Minute,
		RangeWindow:    5 * time.Minute,
	}
}

// Extractor derives a FeatureSet from a Sampler's buffered window. Extraction
// is a pure read of the buffer; it never mutates sampler state.
type Extractor struct {
	sampler *Sampler
	cfg     ExtractorConfig
}

// NewExtractor creates an Extractor over the given sampler. Zero-valued
// config fields fall back to the defaults.
func NewExtractor(sampler *Sampler, cfg ExtractorConfig) *Extractor {
	def := DefaultExtractorConfig()
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = def.RecentWindow
	}
	if cfg.BaselineWindow <= 0 {
		cfg.BaselineWindow = def.BaselineWindow
	}
	if cfg.ExpansionRatio <= 0 {
		cfg.ExpansionRatio = def.ExpansionRatio
	}
	if cfg.StrongBiasPct <= 0 {
		cfg.StrongBiasPct = def.StrongBiasPct
	}
	if cfg.ZScoreWindow <= 0 {
		cfg.ZScoreWindow = def.ZScoreWindow
	}
	if cfg.VWAPWindow <= 0 {
		cfg.VWAPWindow = def.VWAPWindow
	}
	if cfg.RangeWindow <= 0 {
		cfg.RangeWindow = def.RangeWindow
	}
	return &Extractor{sampler: sampler, cfg: cfg}
}

// Extract derives the FeatureSet for the asset at the current instant.
func (e *Extractor) Extract(asset string) (domain.FeatureSet, error) {
	return e.ExtractAt(asset, time.Now().UTC())
}

// ExtractAt derives the FeatureSet for the asset at an explicit instant. It
// returns *domain.InsufficientDataError when the buffer does not yet cover
// the longest momentum horizon; callers treat that as a skipped cycle.
func (e *Extractor) ExtractAt(asset string, now time.Time) (domain.FeatureSet, error) {
	window := e.sampler.WindowAt(asset, e.sampler.retention, now)
	if len(window) == 0 {
		return domain.FeatureSet{}, &domain.InsufficientDataError{
			Asset: asset, Metric: "price_window", Need: 1, Have: 0,
		}
	}

	price := window[len(window)-1].Price

	mom15, err := momentumAt(window, now, HorizonShort, asset, "momentum_15s")
	if err != nil {
		return domain.FeatureSet{}, err
	}
	mom30, err := momentumAt(window, now, HorizonMedium, asset, "momentum_30s")
	if err != nil {
		return domain.FeatureSet{}, err
	}
	mom60, err := momentumAt(window, now, HorizonLong, asset, "momentum_60s")
	if err != nil {
		return domain.FeatureSet{}, err
	}
	mom120, err := momentumAt(window, now, HorizonMax, asset, "momentum_120s")
	if err != nil {
		return domain.FeatureSet{}, err
	}

	recentVol := pctReturnStdDev(tailPrices(window, e.cfg.RecentWindow))
	baselineVol := pctReturnStdDev(tailPrices(window, e.cfg.BaselineWindow))
	volRatio := 0.0
	if baselineVol > 0 {
		volRatio = recentVol / baselineVol
	}

	vwap, proxied := vwapOf(e.sampler.WindowAt(asset, e.cfg.VWAPWindow, now), now)
	vwapDev := 0.0
	if vwap > 0 {
		vwapDev = (price - vwap) / vwap * 100
	}

	fs := domain.FeatureSet{
		Asset:     asset,
		Timestamp: now,
		Price:     price,

		Momentum15s:  mom15,
		Momentum30s:  mom30,
		Momentum60s:  mom60,
		Momentum120s: mom120,
		Slope:        mom30 - mom120,

		RecentVol:    recentVol,
		BaselineVol:  baselineVol,
		VolRatio:     volRatio,
		VolExpanding: volRatio > e.cfg.ExpansionRatio,

		Bias: trendBias(mom30, mom120, e.cfg.StrongBiasPct),

		VWAP:          vwap,
		VWAPProxied:   proxied,
		VWAPDeviation: vwapDev,
		ZScore:        zscoreOf(e.sampler.WindowAt(asset, e.cfg.ZScoreWindow, now), price),
		RangePosition: rangePosition(e.sampler.WindowAt(asset, e.cfg.RangeWindow, now), price),

		SampleCount: len(window),
	}
	return fs, nil
}

// momentumAt computes the percent return from the nearest sample at or
// before now-h to the latest price at or before now.
func momentumAt(window []domain.PriceSample, now time.Time, h time.Duration, asset, metric string) (float64, error) {
	ref, ok := sampleAtOrBefore(window, now.Add(-h))
	if !ok {
		return 0, &domain.InsufficientDataError{Asset: asset, Metric: metric, Need: 1, Have: 0}
	}
	cur, ok := sampleAtOrBefore(window, now)
	if !ok || ref.Price == 0 {
		return 0, &domain.InsufficientDataError{Asset: asset, Metric: metric, Need: 1, Have: 0}
	}
	return (cur.Price - ref.Price) / ref.Price * 100, nil
}

// trendBias folds short and long momentum into the five-level categorical.
// Agreement in sign sets the direction; short-horizon magnitude above the
// strong threshold upgrades it.
func trendBias(short, long, strongPct float64) domain.TrendBias {
	switch {
	case short > 0 && long > 0:
		if short > strongPct {
			return domain.BiasStrongUp
		}
		return domain.BiasUp
	case short < 0 && long < 0:
		if short < -strongPct {
			return domain.BiasStrongDown
		}
		return domain.BiasDown
	default:
		return domain.BiasNeutral
	}
}

// pctReturnStdDev returns the population standard deviation of consecutive
// percent returns, 0 when fewer than two returns exist.
func pctReturnStdDev(prices []float64) float64 {
	rets := pctReturns(prices)
	if len(rets) < 2 {
		return 0
	}
	return math.Sqrt(stat.PopVariance(rets, nil))
}

func pctReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	rets := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		rets = append(rets, (prices[i]-prices[i-1])/prices[i-1]*100)
	}
	return rets
}

// tailPrices returns the last n sample prices, or all of them when fewer.
func tailPrices(window []domain.PriceSample, n int) []float64 {
	start := 0
	if len(window) > n {
		start = len(window) - n
	}
	out := make([]float64, 0, len(window)-start)
	for _, s := range window[start:] {
		out = append(out, s.Price)
	}
	return out
}

// vwapOf computes the volume-weighted average price over the window. When the
// window carries no volume at all it falls back to a time-weighted mean,
// each price weighted by how long it was current; the second return reports
// that fallback.
func vwapOf(window []domain.PriceSample, now time.Time) (float64, bool) {
	if len(window) == 0 {
		return 0, false
	}
	var pv, vol float64
	for _, s := range window {
		pv += s.Price * s.Volume
		vol += s.Volume
	}
	if vol > 0 {
		return pv / vol, false
	}
	if len(window) == 1 {
		return window[0].Price, true
	}
	var sum, wsum float64
	for i, s := range window {
		until := now
		if i+1 < len(window) {
			until = window[i+1].Timestamp
		}
		w := until.Sub(s.Timestamp).Seconds()
		if w <= 0 {
			continue
		}
		sum += s.Price * w
		wsum += w
	}
	if wsum == 0 {
		return window[len(window)-1].Price, true
	}
	return sum / wsum, true
}

// zscoreOf places price relative to the window's mean in stddev units. A
// zero-variance window yields 0 rather than a division error.
func zscoreOf(window []domain.PriceSample, price float64) float64 {
	if len(window) < 2 {
		return 0
	}
	prices := tailPrices(window, len(window))
	mean := stat.Mean(prices, nil)
	sd := math.Sqrt(stat.PopVariance(prices, nil))
	if sd == 0 {
		return 0
	}
	return (price - mean) / sd
}

// rangePosition places price within the window's observed [low, high] range.
// A flat range yields the midpoint 0.5.
func rangePosition(window []domain.PriceSample, price float64) float64 {
	if len(window) == 0 {
		return 0.5
	}
	lo, hi := window[0].Price, window[0].Price
	for _, s := range window[1:] {
		if s.Price < lo {
			lo = s.Price
		}
		if s.Price > hi {
			hi = s.Price
		}
	}
	if hi == lo {
		return 0.5
	}
	pos := (price - lo) / (hi - lo)
	if pos < 0 {
		return 0
	}
	if pos > 1 {
		return 1
	}
	return pos
}
