// Package signal computes short-horizon directional signals for 15-minute
// binary markets from a streaming price feed. Samples flow into a Sampler,
// features are derived by an Extractor, and a named Scorer turns features
// into a scored, confidence-weighted direction.
package signal

import (
	"sort"
	"sync"
	"time"

	"github.com/quantpulse/pulsebot/internal/domain"
)

// DefaultRetention bounds the in-memory sample history per asset. It must
// cover the longest feature lookback plus the slowest scorer's bar series.
const DefaultRetention = 15 * time.Minute

// Sampler maintains a time-ordered sliding window of price samples per asset.
// Timestamps must be monotonically non-decreasing per asset; an equal
// timestamp replaces the previous sample so the buffer never holds duplicate
// instants. Samples older than the retention horizon are evicted lazily on
// each Record call.
type Sampler struct {
	mu        sync.RWMutex
	retention time.Duration
	buffers   map[string][]domain.PriceSample
}

// NewSampler creates a Sampler with the given retention horizon. A
// non-positive retention falls back to DefaultRetention.
func NewSampler(retention time.Duration) *Sampler {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Sampler{
		retention: retention,
		buffers:   make(map[string][]domain.PriceSample),
	}
}

// Record appends a sample to the asset's buffer. A sample older than the
// newest recorded timestamp is rejected with *domain.OutOfOrderError; a
// sample at the exact same timestamp replaces the previous one.
func (s *Sampler) Record(sample domain.PriceSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.buffers[sample.Asset]
	if n := len(buf); n > 0 {
		last := buf[n-1].Timestamp
		if sample.Timestamp.Before(last) {
			return &domain.OutOfOrderError{
				Asset:  sample.Asset,
				Sample: sample.Timestamp,
				Latest: last,
			}
		}
		if sample.Timestamp.Equal(last) {
			buf[n-1] = sample
			s.buffers[sample.Asset] = buf
			return nil
		}
	}

	buf = append(buf, sample)
	s.buffers[sample.Asset] = s.evict(buf, sample.Timestamp)
	return nil
}

// Window returns a copy of the samples within [now-dur, now]. An empty slice
// means no data yet; that is the boot state, not an error.
func (s *Sampler) Window(asset string, dur time.Duration) []domain.PriceSample {
	return s.WindowAt(asset, dur, time.Now().UTC())
}

// WindowAt is Window against an explicit reference instant, for
// deterministic evaluation and tests.
func (s *Sampler) WindowAt(asset string, dur time.Duration, now time.Time) []domain.PriceSample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf := s.buffers[asset]
	if len(buf) == 0 {
		return nil
	}
	from := now.Add(-dur)
	lo := sort.Search(len(buf), func(i int) bool { return !buf[i].Timestamp.Before(from) })
	hi := sort.Search(len(buf), func(i int) bool { return buf[i].Timestamp.After(now) })
	if lo >= hi {
		return nil
	}
	out := make([]domain.PriceSample, hi-lo)
	copy(out, buf[lo:hi])
	return out
}

// Latest returns the newest sample for the asset, if any.
func (s *Sampler) Latest(asset string) (domain.PriceSample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf := s.buffers[asset]
	if len(buf) == 0 {
		return domain.PriceSample{}, false
	}
	return buf[len(buf)-1], true
}

// Len returns the number of buffered samples for the asset.
func (s *Sampler) Len(asset string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buffers[asset])
}

// Assets returns the asset ids with at least one buffered sample, sorted.
func (s *Sampler) Assets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.buffers))
	for asset, buf := range s.buffers {
		if len(buf) > 0 {
			out = append(out, asset)
		}
	}
	sort.Strings(out)
	return out
}

// Resample builds a bar series of closes at fixed spacing ending now: the
// last element is the price at or before now, the one before it the price at
// or before now-bar, and so on. Bars older than the buffer's coverage are
// omitted, so the result may be shorter than count.
func (s *Sampler) Resample(asset string, bar time.Duration, count int) []float64 {
	return s.ResampleAt(asset, bar, count, time.Now().UTC())
}

// ResampleAt is Resample against an explicit reference instant.
func (s *Sampler) ResampleAt(asset string, bar time.Duration, count int, now time.Time) []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf := s.buffers[asset]
	if len(buf) == 0 || count <= 0 || bar <= 0 {
		return nil
	}
	out := make([]float64, 0, count)
	for i := count - 1; i >= 0; i-- {
		at := now.Add(-time.Duration(i) * bar)
		sample, ok := sampleAtOrBefore(buf, at)
		if !ok {
			// No coverage this far back yet; the series starts at the
			// oldest bar the buffer can answer.
			continue
		}
		out = append(out, sample.Price)
	}
	return out
}

// sampleAtOrBefore returns the newest sample with Timestamp <= at. The
// caller must hold the read lock; buf must be sorted by timestamp.
func sampleAtOrBefore(buf []domain.PriceSample, at time.Time) (domain.PriceSample, bool) {
	idx := sort.Search(len(buf), func(i int) bool { return buf[i].Timestamp.After(at) })
	if idx == 0 {
		return domain.PriceSample{}, false
	}
	return buf[idx-1], true
}

// evict drops samples older than the retention horizon relative to the
// newest timestamp. The caller must hold the write lock.
func (s *Sampler) evict(buf []domain.PriceSample, newest time.Time) []domain.PriceSample {
	cutoff := newest.Add(-s.retention)
	i := 0
	for i < len(buf) && buf[i].Timestamp.Before(cutoff) {
		i++
	}
	if i == 0 {
		return buf
	}
	return append(buf[:0:0], buf[i:]...)
}
