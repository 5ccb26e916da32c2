package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpulse/internal/market"
)

func rec(t string, price float64) market.TickerRecord {
	return market.TickerRecord{Ticker: t, Price: &price}
}

func TestStore_EmptyBeforePublish(t *testing.T) {
	s := New()

	snap := s.Load()
	require.NotNil(t, snap)
	assert.Zero(t, snap.Len())
	assert.True(t, snap.UpdatedAt.IsZero())
	assert.Empty(t, s.Read())
}

func TestStore_PublishFullReplacesEverything(t *testing.T) {
	// Arrange
	s := New()
	s.PublishFull([]market.TickerRecord{rec("AAPL", 1), rec("TSLA", 2)})

	// Act
	snap := s.PublishFull([]market.TickerRecord{rec("MSFT", 3)})

	// Assert
	require.Equal(t, 1, snap.Len())
	_, ok := snap.Records["AAPL"]
	assert.False(t, ok)
	assert.Equal(t, uint64(2), snap.Version)
	assert.False(t, snap.UpdatedAt.IsZero())
}

func TestStore_PublishSubsetKeepsOtherKeys(t *testing.T) {
	// Arrange
	s := New()
	s.PublishFull([]market.TickerRecord{rec("AAPL", 1), rec("TSLA", 2), rec("MSFT", 3)})
	before := s.Load()

	// Act
	s.PublishSubset([]market.TickerRecord{rec("TSLA", 20), rec("NVDA", 40)})

	// Assert
	got := s.Load()
	require.Equal(t, 4, got.Len())
	assert.Equal(t, 20.0, *got.Records["TSLA"].Price)
	assert.Equal(t, 40.0, *got.Records["NVDA"].Price)
	assert.Same(t, before.Records["AAPL"].Price, got.Records["AAPL"].Price)
	assert.Same(t, before.Records["MSFT"].Price, got.Records["MSFT"].Price)

	// the earlier snapshot is untouched
	assert.Equal(t, 3, before.Len())
	assert.Equal(t, 2.0, *before.Records["TSLA"].Price)
}

func TestStore_SkipsEmptyTicker(t *testing.T) {
	s := New()
	snap := s.PublishFull([]market.TickerRecord{{}, rec("AAPL", 1)})
	assert.Equal(t, 1, snap.Len())
}

func TestStore_Read(t *testing.T) {
	s := New()
	s.PublishFull([]market.TickerRecord{rec("TSLA", 2), rec("AAPL", 1), rec("MSFT", 3)})

	all := s.Read()
	require.Len(t, all, 3)
	assert.Equal(t, []string{"AAPL", "MSFT", "TSLA"}, tickers(all))

	some := s.Read("msft", "XYZ123", "AAPL", "MSFT")
	assert.Equal(t, []string{"MSFT", "AAPL"}, tickers(some))
}

func TestSnapshot_ReadStaysOnItsVersion(t *testing.T) {
	s := New()
	s.PublishFull([]market.TickerRecord{rec("AAPL", 1)})
	snap := s.Load()

	s.PublishFull([]market.TickerRecord{rec("AAPL", 2), rec("TSLA", 2)})

	got := snap.Read()
	require.Len(t, got, 1)
	assert.Equal(t, 1.0, *got[0].Price)
	assert.Equal(t, uint64(1), snap.Version)
	assert.Len(t, s.Read(), 2)
}

func TestStore_ConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	s := New()
	const n = 20
	batch := func(v float64) []market.TickerRecord {
		out := make([]market.TickerRecord, n)
		for i := range out {
			out[i] = rec(fmt.Sprintf("T%02d", i), v)
		}
		return out
	}
	s.PublishFull(batch(0))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan string, 8)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := s.Load()
				if snap.Len() != n {
					errs <- fmt.Sprintf("len %d", snap.Len())
					return
				}
				// all records in a full publish carry the same value
				first := *snap.Records["T00"].Price
				for _, r := range snap.Records {
					if *r.Price != first {
						errs <- "mixed snapshot"
						return
					}
				}
			}
		}()
	}

	for v := 1; v <= 200; v++ {
		s.PublishFull(batch(float64(v)))
	}
	close(stop)
	wg.Wait()
	close(errs)

	for e := range errs {
		t.Fatal(e)
	}
	assert.Equal(t, uint64(201), s.Load().Version)
}

func tickers(recs []market.TickerRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Ticker
	}
	return out
}
