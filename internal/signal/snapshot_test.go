package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/pulsebot/internal/domain"
)

func TestSnapshotLastWriteWins(t *testing.T) {
	snap := NewSnapshot([]string{"BTC", "ETH"})

	_, ok := snap.Latest("BTC")
	assert.False(t, ok, "nothing published yet")

	snap.Publish(domain.Signal{ID: "a", Asset: "BTC", Direction: domain.DirectionUp})
	snap.Publish(domain.Signal{ID: "b", Asset: "BTC", Direction: domain.DirectionDown})

	sig, ok := snap.Latest("BTC")
	require.True(t, ok)
	assert.Equal(t, "b", sig.ID, "readers only ever see the most recent value")
	assert.Equal(t, domain.DirectionDown, sig.Direction)

	_, ok = snap.Latest("ETH")
	assert.False(t, ok, "assets are independent")
}

func TestSnapshotIgnoresUnknownAssets(t *testing.T) {
	snap := NewSnapshot([]string{"BTC"})
	snap.Publish(domain.Signal{ID: "x", Asset: "DOGE"})

	_, ok := snap.Latest("DOGE")
	assert.False(t, ok)
	assert.Equal(t, []string{"BTC"}, snap.Assets())
}
