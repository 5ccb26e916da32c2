package yahoo

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"marketpulse/internal/provider"
)

// Chart is the parsed daily chart for one symbol.
type Chart struct {
	Symbol             string
	Currency           string
	RegularMarketPrice *float64
	RegularVolume      *int64
	PreviousClose      *float64
	ChartPreviousClose *float64
	Location           *time.Location
	Bars               []Bar
}

// Bar is one daily bar; nil fields were null upstream.
type Bar struct {
	Time   time.Time
	Open   *float64
	Close  *float64
	Volume *int64
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string   `json:"symbol"`
				Currency           string   `json:"currency"`
				RegularMarketPrice *float64 `json:"regularMarketPrice"`
				RegularMarketVol   *int64   `json:"regularMarketVolume"`
				PreviousClose      *float64 `json:"previousClose"`
				ChartPreviousClose *float64 `json:"chartPreviousClose"`
				GMTOffset          int      `json:"gmtoffset"`
				ExchangeTimezone   string   `json:"exchangeTimezoneName"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *apiError `json:"error"`
	} `json:"chart"`
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// GetChart retrieves daily bars for symbol over the given range ("5d", "1mo", ...).
func (c *Client) GetChart(ctx context.Context, symbol, rng string) (*Chart, error) {
	query := url.Values{}
	query.Set("range", rng)
	query.Set("interval", "1d")
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(symbol), query.Encode())

	var body chartResponse
	if err := c.getJSON(ctx, u, &body); err != nil {
		return nil, err
	}
	if body.Chart.Error != nil || len(body.Chart.Result) == 0 {
		desc := "empty result"
		if body.Chart.Error != nil {
			desc = body.Chart.Error.Description
		}
		return nil, fmt.Errorf("chart %s: %s: %w", symbol, desc, provider.ErrNotFound)
	}

	res := body.Chart.Result[0]
	loc := time.FixedZone(res.Meta.ExchangeTimezone, res.Meta.GMTOffset)
	chart := &Chart{
		Symbol:             res.Meta.Symbol,
		Currency:           res.Meta.Currency,
		RegularMarketPrice: res.Meta.RegularMarketPrice,
		RegularVolume:      res.Meta.RegularMarketVol,
		PreviousClose:      res.Meta.PreviousClose,
		ChartPreviousClose: res.Meta.ChartPreviousClose,
		Location:           loc,
	}
	if len(res.Indicators.Quote) == 0 {
		return chart, nil
	}
	q := res.Indicators.Quote[0]
	chart.Bars = make([]Bar, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		chart.Bars = append(chart.Bars, Bar{
			Time:   time.Unix(ts, 0).In(loc),
			Open:   at(q.Open, i),
			Close:  at(q.Close, i),
			Volume: at(q.Volume, i),
		})
	}
	return chart, nil
}

func at[T any](s []*T, i int) *T {
	if i < len(s) {
		return s[i]
	}
	return nil
}
