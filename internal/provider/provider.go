package provider

import (
	"context"
	"sort"
	"time"
)

// Source is the contract every upstream adapter satisfies: given one
// ticker, return data or an error. Callers normalize errors with Normalize.
type Source[T any] interface {
	Name() string
	Fetch(ctx context.Context, ticker string) (T, error)
}

// Quote is the normalized shape returned by price sources.
type Quote struct {
	Symbol        string
	Price         float64
	Volume        *int64
	MarketCap     *int64
	PreviousClose *float64
	Open          *float64
	History       []Close // ascending by date, at most 5
	ReceivedAt    time.Time
}

// Close is one daily closing price.
type Close struct {
	Date  time.Time // exchange-local; its calendar day is the trading day
	Price float64
}

// DailyCloses sorts closes by date and keeps one per trading day, the latest
// one seen for that day. The input is not modified.
func DailyCloses(in []Close) []Close {
	if len(in) == 0 {
		return nil
	}
	out := append([]Close(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	n := 0
	for _, c := range out {
		if n > 0 && sameDay(out[n-1].Date, c.Date) {
			out[n-1] = c
			continue
		}
		out[n] = c
		n++
	}
	return out[:n]
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Item is a news article or social post.
type Item struct {
	Title string
	URL   string
}

type (
	PriceSource = Source[Quote]
	ItemSource  = Source[[]Item]
)

// MaxItems caps what item sources return.
const MaxItems = 5

// SourceFunc adapts a function to Source.
type SourceFunc[T any] struct {
	N string
	F func(ctx context.Context, ticker string) (T, error)
}

func (s SourceFunc[T]) Name() string { return s.N }

func (s SourceFunc[T]) Fetch(ctx context.Context, ticker string) (T, error) {
	return s.F(ctx, ticker)
}
