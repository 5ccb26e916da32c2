// Package store holds the latest published snapshot of ticker records.
//
// Publishers are serialized and build a fresh map on every publish; the new
// snapshot is then swapped in with a single atomic store. Readers only ever
// load the pointer, so they never block and never observe a half-applied
// update.
package store

import (
	"sync"
	"sync/atomic"
	"time"

	"marketpulse/internal/market"
	"marketpulse/internal/metrics"
)

// Snapshot is one immutable published version of the cache.
type Snapshot struct {
	Records   map[string]market.TickerRecord
	UpdatedAt time.Time // zero until the first publish
	Version   uint64
}

// Len returns the number of records.
func (s *Snapshot) Len() int { return len(s.Records) }

// Store is the cache. The zero value is not usable; call New.
type Store struct {
	mu  sync.Mutex // serializes publishers
	cur atomic.Pointer[Snapshot]
	now func() time.Time
}

func New() *Store {
	s := &Store{now: time.Now}
	s.cur.Store(&Snapshot{Records: map[string]market.TickerRecord{}})
	return s
}

// Load returns the current snapshot. It never blocks. Callers must treat the
// snapshot and the records inside it as read-only.
func (s *Store) Load() *Snapshot { return s.cur.Load() }

// PublishFull replaces the entire snapshot with records.
func (s *Store) PublishFull(records []market.TickerRecord) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]market.TickerRecord, len(records))
	for _, r := range records {
		if r.Ticker == "" {
			continue
		}
		next[r.Ticker] = r
	}
	return s.swap(next, "full")
}

// PublishSubset replaces only the keys present in records; every other
// entry keeps its previous value.
func (s *Store) PublishSubset(records []market.TickerRecord) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.cur.Load()
	next := make(map[string]market.TickerRecord, len(prev.Records)+len(records))
	for k, v := range prev.Records {
		next[k] = v
	}
	for _, r := range records {
		if r.Ticker == "" {
			continue
		}
		next[r.Ticker] = r
	}
	return s.swap(next, "subset")
}

// swap must be called with s.mu held.
func (s *Store) swap(records map[string]market.TickerRecord, kind string) *Snapshot {
	prev := s.cur.Load()
	snap := &Snapshot{Records: records, UpdatedAt: s.now().UTC(), Version: prev.Version + 1}
	s.cur.Store(snap)

	metrics.CachePublishes.WithLabelValues(kind).Inc()
	metrics.CacheRecords.Set(float64(len(records)))
	return snap
}

// Read returns records from the current snapshot. See Snapshot.Read.
func (s *Store) Read(tickers ...string) []market.TickerRecord {
	return s.Load().Read(tickers...)
}

// Read returns records from this snapshot. With no tickers it returns every
// record sorted by ticker; otherwise the requested tickers in request order,
// skipping ones that are not cached.
func (s *Snapshot) Read(tickers ...string) []market.TickerRecord {
	if len(tickers) == 0 {
		out := make([]market.TickerRecord, 0, len(s.Records))
		for _, r := range s.Records {
			out = append(out, r)
		}
		market.SortRecords(out)
		return out
	}
	out := make([]market.TickerRecord, 0, len(tickers))
	seen := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		t = market.NormalizeTicker(t)
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if r, ok := s.Records[t]; ok {
			out = append(out, r)
		}
	}
	return out
}
