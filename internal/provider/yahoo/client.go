package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"marketpulse/internal/provider"
)

const baseURL = "https://query1.finance.yahoo.com"

//go:generate mockgen -package=yahoo_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the Yahoo Finance chart (v8) and quote (v7) endpoints.
type Client struct {
	baseURL    string
	httpClient HTTPClient
	header     http.Header // sent on every request; Yahoo rejects requests without a browser User-Agent
}

type ClientOption func(*Client)

// WithBaseURL points the client at another host. Empty keeps the default.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

func WithHTTPClient(hc HTTPClient) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithHeader adds header to every request.
func WithHeader(header http.Header) ClientOption {
	return func(c *Client) {
		for k, vs := range header {
			for _, v := range vs {
				c.header.Add(k, v)
			}
		}
	}
}

func NewClient(options ...ClientOption) *Client {
	c := &Client{baseURL: baseURL, httpClient: http.DefaultClient, header: http.Header{}}
	for _, option := range options {
		option(c)
	}
	return c
}

// getJSON fetches u and decodes the body into v. A 404 is how Yahoo answers
// an unknown symbol and maps to provider.ErrNotFound.
func (c *Client) getJSON(ctx context.Context, u string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header = c.header.Clone()
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return fmt.Errorf("GET %s: %w", req.URL.Path, provider.ErrNotFound)
	case res.StatusCode < 200 || res.StatusCode >= 300:
		b, _ := io.ReadAll(io.LimitReader(res.Body, 2<<10))
		return &provider.StatusError{Method: http.MethodGet, URL: req.URL.Path, Code: res.StatusCode, Body: string(b)}
	}

	if err := json.NewDecoder(res.Body).Decode(v); err != nil {
		return &provider.DecodeError{Err: err}
	}
	return nil
}
