package signal

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SessionWindow is a half-open UTC hour range [Start, End).
type SessionWindow struct {
	Start int
	End   int
}

// Contains reports whether t falls inside the window.
func (w SessionWindow) Contains(t time.Time) bool {
	h := t.UTC().Hour()
	return h >= w.Start && h < w.End
}

func (w SessionWindow) String() string {
	return fmt.Sprintf("%d-%d", w.Start, w.End)
}

// SessionPolicy relaxes the institutional gate quorum during high-liquidity
// hours, with an elevated-volatility override for off-session regimes.
type SessionPolicy struct {
	Windows []SessionWindow
	// VolOverride relaxes the quorum off-session once VolRatio exceeds it.
	VolOverride float64
}

// DefaultSessionPolicy covers the London and New York cash sessions.
func DefaultSessionPolicy() SessionPolicy {
	return SessionPolicy{
		Windows:     []SessionWindow{{Start: 8, End: 16}, {Start: 13, End: 21}},
		VolOverride: 1.5,
	}
}

// Active reports whether t falls inside any configured session window.
func (p SessionPolicy) Active(t time.Time) bool {
	for _, w := range p.Windows {
		if w.Contains(t) {
			return true
		}
	}
	return false
}

// Quorum returns how many of the three gates must pass at instant t given
// the current volatility ratio: 2 in-session or in an elevated regime,
// otherwise 3.
func (p SessionPolicy) Quorum(t time.Time, volRatio float64) int {
	if p.Active(t) || (p.VolOverride > 0 && volRatio > p.VolOverride) {
		return 2
	}
	return 3
}

// ParseSessionWindows parses a comma-separated list of "start-end" UTC hour
// ranges, e.g. "8-16,13-21".
func ParseSessionWindows(s string) ([]SessionWindow, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]SessionWindow, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		lo, hi, ok := strings.Cut(part, "-")
		if !ok {
			return nil, fmt.Errorf("session window %q: want start-end", part)
		}
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("session window %q: %w", part, err)
		}
		end, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, fmt.Errorf("session window %q: %w", part, err)
		}
		if start < 0 || start > 23 || end < 1 || end > 24 || start >= end {
			return nil, fmt.Errorf("session window %q: hours must satisfy 0 <= start < end <= 24", part)
		}
		out = append(out, SessionWindow{Start: start, End: end})
	}
	return out, nil
}
