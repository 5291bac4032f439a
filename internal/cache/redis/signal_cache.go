package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/quantpulse/pulsebot/internal/domain"
	"github.com/redis/go-redis/v9"
)

// signalCacheTTL outlives the signal's own freshness bound so dashboards can
// still show the last call alongside its expiry.
const signalCacheTTL = 5 * time.Minute

// SignalCache implements domain.SignalCache using Redis hashes with
// JSON-serialized Signal data.
//
// Key schema:
//
//	signal:{asset} - hash with field "data" containing JSON
type SignalCache struct {
	rdb *redis.Client
}

// NewSignalCache creates a SignalCache backed by the given Client.
func NewSignalCache(c *Client) *SignalCache {
	return &SignalCache{rdb: c.Underlying()}
}

func signalKey(asset string) string { return "signal:" + asset }

// Set stores the latest signal for its asset with a 5-minute TTL.
func (sc *SignalCache) Set(ctx context.Context, sig domain.Signal) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("redis: marshal signal %s: %w", sig.Asset, err)
	}

	key := signalKey(sig.Asset)

	pipe := sc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, signalCacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set signal %s: %w", sig.Asset, err)
	}
	return nil
}

// Get retrieves the latest signal for an asset.
// It returns domain.ErrNotFound when the key does not exist.
func (sc *SignalCache) Get(ctx context.Context, asset string) (domain.Signal, error) {
	data, err := sc.rdb.HGet(ctx, signalKey(asset), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Signal{}, domain.ErrNotFound
		}
		return domain.Signal{}, fmt.Errorf("redis: get signal %s: %w", asset, err)
	}

	var sig domain.Signal
	if err := json.Unmarshal(data, &sig); err != nil {
		return domain.Signal{}, fmt.Errorf("redis: unmarshal signal %s: %w", asset, err)
	}
	return sig, nil
}

// Compile-time interface check.
var _ domain.SignalCache = (*SignalCache)(nil)
