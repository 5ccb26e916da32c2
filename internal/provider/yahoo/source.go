package yahoo

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"marketpulse/internal/market"
	"marketpulse/internal/provider"
)

// Source adapts Client to provider.PriceSource.
type Source struct {
	client *Client
	name   string
	days   int
	logger *zap.Logger
	now    func() time.Time
}

// NewSource builds the price source. days bounds the history; values
// outside 1..market.HistoryDays fall back to market.HistoryDays.
func NewSource(client *Client, days int, logger *zap.Logger) *Source {
	if days <= 0 || days > market.HistoryDays {
		days = market.HistoryDays
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{client: client, name: "yahoo", days: days, logger: logger, now: time.Now}
}

func (s *Source) Name() string { return s.name }

// Fetch returns the current quote plus up to s.days ascending daily closes.
func (s *Source) Fetch(ctx context.Context, ticker string) (provider.Quote, error) {
	chart, err := s.client.GetChart(ctx, ticker, "5d")
	if err != nil {
		return provider.Quote{}, err
	}

	q := provider.Quote{Symbol: ticker, ReceivedAt: s.now().UTC()}
	for _, b := range chart.Bars {
		if b.Close == nil {
			continue
		}
		q.History = append(q.History, provider.Close{Date: b.Time, Price: market.Round2(*b.Close)})
	}
	// bars can arrive out of order, and the live bar may repeat the last day
	q.History = provider.DailyCloses(q.History)
	if n := len(q.History); n > s.days {
		q.History = q.History[n-s.days:]
	}

	switch {
	case chart.RegularMarketPrice != nil:
		q.Price = market.Round2(*chart.RegularMarketPrice)
	case len(q.History) > 0:
		q.Price = q.History[len(q.History)-1].Price
	default:
		return provider.Quote{}, fmt.Errorf("chart %s: no prices: %w", ticker, provider.ErrNotFound)
	}

	q.PreviousClose = round(chart.PreviousClose)
	if q.PreviousClose == nil && len(q.History) >= 2 {
		v := q.History[len(q.History)-2].Price
		q.PreviousClose = &v
	}
	if q.PreviousClose == nil {
		q.PreviousClose = round(chart.ChartPreviousClose)
	}

	q.Volume = chart.RegularVolume
	if n := len(chart.Bars); n > 0 {
		last := chart.Bars[0]
		for _, bar := range chart.Bars[1:] {
			if !bar.Time.Before(last.Time) {
				last = bar
			}
		}
		q.Open = round(last.Open)
		if q.Volume == nil {
			q.Volume = last.Volume
		}
	}

	// market cap comes from the quote endpoint, which is often gated
	mc, err := s.client.GetMarketCap(ctx, ticker)
	if err != nil {
		s.logger.Debug("market cap unavailable", zap.String("ticker", ticker), zap.Error(err))
	}
	q.MarketCap = mc
	return q, nil
}

func round(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := market.Round2(*v)
	return &r
}
