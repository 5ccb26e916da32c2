// Package directory knows which ticker symbols exist.
package directory

import (
	"context"
	"sort"

	"marketpulse/internal/market"
)

// Source yields the current universe of valid symbols.
type Source interface {
	Universe(ctx context.Context) (*Universe, error)
}

// Universe is an immutable set of symbols.
type Universe struct {
	set      map[string]struct{}
	sorted   []string
	fallback bool
}

// NewUniverse normalizes, de-duplicates and sorts symbols.
func NewUniverse(symbols []string) *Universe {
	u := &Universe{set: make(map[string]struct{}, len(symbols))}
	for _, s := range symbols {
		s = market.NormalizeTicker(s)
		if s == "" {
			continue
		}
		if _, dup := u.set[s]; dup {
			continue
		}
		u.set[s] = struct{}{}
		u.sorted = append(u.sorted, s)
	}
	sort.Strings(u.sorted)
	return u
}

// FallbackUniverse is the default set used when the directory cannot be loaded.
func FallbackUniverse() *Universe {
	u := NewUniverse(market.DefaultTickers())
	u.fallback = true
	return u
}

func (u *Universe) Contains(ticker string) bool {
	_, ok := u.set[market.NormalizeTicker(ticker)]
	return ok
}

// Symbols returns a sorted copy.
func (u *Universe) Symbols() []string {
	return append([]string(nil), u.sorted...)
}

func (u *Universe) Len() int { return len(u.sorted) }

// Fallback reports whether this is the built-in default set.
func (u *Universe) Fallback() bool { return u.fallback }

// Filter keeps the tickers present in u, preserving order.
func (u *Universe) Filter(tickers []string) []string {
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if u.Contains(t) {
			out = append(out, market.NormalizeTicker(t))
		}
	}
	return out
}

// Static is a Source that always returns the same universe.
type Static struct{ U *Universe }

func (s Static) Universe(context.Context) (*Universe, error) { return s.U, nil }
