package yahoo

import (
	"context"
	"fmt"
	"net/url"
)

type quoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol    string `json:"symbol"`
			MarketCap *int64 `json:"marketCap"`
		} `json:"result"`
	} `json:"quoteResponse"`
}

// GetMarketCap retrieves the market capitalization for symbol.
// A nil result with nil error means Yahoo had no figure.
func (c *Client) GetMarketCap(ctx context.Context, symbol string) (*int64, error) {
	query := url.Values{}
	query.Set("symbols", symbol)
	u := fmt.Sprintf("%s/v7/finance/quote?%s", c.baseURL, query.Encode())

	var body quoteResponse
	if err := c.getJSON(ctx, u, &body); err != nil {
		return nil, err
	}
	for _, r := range body.QuoteResponse.Result {
		if r.Symbol == symbol {
			return r.MarketCap, nil
		}
	}
	return nil, nil
}
