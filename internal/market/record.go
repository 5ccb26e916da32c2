package market

import (
	"sort"
	"strings"
	"time"
)

// HistoryDays bounds TickerRecord.History.
const HistoryDays = 5

// DefaultTickers returns the universe used when nothing better is known.
// Each call returns a new slice.
func DefaultTickers() []string { return []string{"AAPL", "TSLA", "MSFT"} }

// PricePoint is one daily close.
type PricePoint struct {
	Date  string  `json:"date"` // YYYY-MM-DD
	Close float64 `json:"close"`
}

// SourceItem is a news article or community post.
type SourceItem struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// TickerRecord is the merged per-ticker view published to the cache.
// Records are rebuilt from scratch on every refresh and must not be
// mutated once published.
type TickerRecord struct {
	Ticker        string       `json:"ticker"`
	Price         *float64     `json:"price,omitempty"`
	Volume        *int64       `json:"volume,omitempty"`
	MarketCap     *int64       `json:"market_cap,omitempty"`
	PreviousClose *float64     `json:"previous_close,omitempty"`
	Open          *float64     `json:"open,omitempty"`
	History       []PricePoint `json:"history,omitempty"`
	Sentiment     float64      `json:"sentiment"`
	News          []SourceItem `json:"news,omitempty"`
	Social        []SourceItem `json:"social,omitempty"`

	// Error marks a ticker-level failure; only Ticker is meaningful then.
	Error string `json:"error,omitempty"`
	// SourceErrors maps a failed source name to its normalized error.
	SourceErrors map[string]string `json:"source_errors,omitempty"`

	FetchedAt time.Time `json:"fetched_at"`
}

// Failed reports whether the record carries a ticker-level error.
func (r TickerRecord) Failed() bool { return r.Error != "" }

// Items returns news followed by social items.
func (r TickerRecord) Items() []SourceItem {
	out := make([]SourceItem, 0, len(r.News)+len(r.Social))
	out = append(out, r.News...)
	return append(out, r.Social...)
}

// NormalizeTicker trims and upper-cases a symbol. Empty input stays empty.
func NormalizeTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ParseTickers accepts free-form input ("aapl, tsla" or several such
// strings) and returns canonical, de-duplicated symbols in first-seen order.
func ParseTickers(in ...string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(in))
	for _, chunk := range in {
		for _, p := range strings.Split(chunk, ",") {
			t := NormalizeTicker(p)
			if t == "" {
				continue
			}
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// SortRecords orders records by ticker.
func SortRecords(recs []TickerRecord) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].Ticker < recs[j].Ticker })
}
