package signal

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/pulsebot/internal/domain"
)

func newTestEngine(assets ...string) *Engine {
	sampler := NewSampler(DefaultRetention)
	extractor := NewExtractor(sampler, DefaultExtractorConfig())
	logger := slog.New(slog.DiscardHandler)
	return NewEngine(EngineConfig{Assets: assets}, sampler, extractor,
		DefaultRegistry(), NewSnapshot(assets), nil, nil, logger)
}

func TestEngineTickPublishesEveryAsset(t *testing.T) {
	eng := newTestEngine("BTC", "ETH")
	require.NoError(t, eng.SetActive("momentum"))

	// BTC has full coverage and rises; ETH has no samples at all.
	for i := 0; i <= 150; i += 5 {
		require.NoError(t, eng.sampler.Record(sampleAt("BTC", 100+float64(i)*0.1, t0.Add(time.Duration(i)*time.Second))))
	}
	now := t0.Add(150 * time.Second)
	eng.tick(context.Background(), now)

	btc, ok := eng.Latest("BTC")
	require.True(t, ok)
	assert.Equal(t, domain.DirectionUp, btc.Direction)
	assert.NotEmpty(t, btc.ID)
	assert.Equal(t, now.Add(eng.cfg.SignalTTL), btc.ExpiresAt)

	eth, ok := eng.Latest("ETH")
	require.True(t, ok, "warming assets still publish a fresh NO_TRADE")
	assert.Equal(t, domain.DirectionNone, eth.Direction)
	assert.Zero(t, eth.Confidence)

	recent := eng.RecentSignals(10)
	assert.Len(t, recent, 2)
}

func TestEngineSetActiveUnknownScorer(t *testing.T) {
	eng := newTestEngine("BTC")

	assert.Error(t, eng.SetActive("nope"))
	assert.Equal(t, []string{"institutional", "momentum", "quant"}, eng.ListNames())
}

func TestEngineTickWithoutScorerIsNoOp(t *testing.T) {
	eng := newTestEngine("BTC")

	eng.tick(context.Background(), t0)

	_, ok := eng.Latest("BTC")
	assert.False(t, ok)
	assert.Empty(t, eng.RecentSignals(5))
	assert.Equal(t, "", eng.ActiveName())
}

func TestEngineDegradedSignalCarriesLatestPrice(t *testing.T) {
	eng := newTestEngine("BTC")
	require.NoError(t, eng.SetActive("momentum"))
	require.NoError(t, eng.sampler.Record(sampleAt("BTC", 101.5, t0)))

	eng.tick(context.Background(), t0)

	sig, ok := eng.Latest("BTC")
	require.True(t, ok)
	assert.Equal(t, domain.DirectionNone, sig.Direction)
	assert.Equal(t, "momentum", sig.Strategy)
	assert.Equal(t, 101.5, sig.Price, "thin-buffer NO_TRADE still reports spot")
	assert.NotEmpty(t, sig.Reasons)
}

func TestEngineRecentSignalsNewestFirstAndCapped(t *testing.T) {
	eng := newTestEngine("BTC")
	total := eng.recentN + 20
	for i := 0; i < total; i++ {
		eng.remember(domain.Signal{ID: fmt.Sprintf("s-%d", i), Asset: "BTC"})
	}

	recent := eng.RecentSignals(3)
	require.Len(t, recent, 3)
	assert.Equal(t, fmt.Sprintf("s-%d", total-1), recent[0].ID)
	assert.Equal(t, fmt.Sprintf("s-%d", total-2), recent[1].ID)
	assert.Equal(t, fmt.Sprintf("s-%d", total-3), recent[2].ID)

	all := eng.RecentSignals(total)
	assert.Len(t, all, eng.recentN, "history is bounded")
}
