package newsdata

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"marketpulse/internal/httpx"
	"marketpulse/internal/provider"
	"marketpulse/internal/provider/htmltext"
)

// Config controls the newsdata.io source.
type Config struct {
	Name     string
	Endpoint string // default https://newsdata.io/api/1/news
	APIKey   string
	Language string // default en
	Category string // default business
	MaxItems int    // default provider.MaxItems
}

// Source fetches recent articles mentioning a ticker.
type Source struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Source {
	if cfg.Name == "" {
		cfg.Name = "news"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://newsdata.io/api/1/news"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.Category == "" {
		cfg.Category = "business"
	}
	if cfg.MaxItems <= 0 || cfg.MaxItems > provider.MaxItems {
		cfg.MaxItems = provider.MaxItems
	}
	return &Source{cfg: cfg, client: hc}
}

func (s *Source) Name() string { return s.cfg.Name }

type apiResponse struct {
	Status  string    `json:"status"`
	Results []article `json:"results"`
	Message string    `json:"message"` // set on some error responses
}

type article struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

func (s *Source) Fetch(ctx context.Context, ticker string) ([]provider.Item, error) {
	if s.cfg.APIKey == "" {
		return nil, fmt.Errorf("newsdata: missing api key: %w", provider.ErrUnavailable)
	}
	q := url.Values{}
	q.Set("apikey", s.cfg.APIKey)
	q.Set("q", ticker)
	q.Set("language", s.cfg.Language)
	q.Set("category", s.cfg.Category)

	var body apiResponse
	if err := s.client.GetJSON(ctx, s.cfg.Endpoint+"?"+q.Encode(), nil, &body); err != nil {
		return nil, err
	}
	if strings.EqualFold(body.Status, "error") {
		return nil, &provider.DecodeError{Err: errors.New("newsdata error status: " + body.Message)}
	}

	out := make([]provider.Item, 0, s.cfg.MaxItems)
	for _, a := range body.Results {
		if len(out) == s.cfg.MaxItems {
			break
		}
		title := htmltext.Plain(a.Title)
		if title == "" {
			continue
		}
		out = append(out, provider.Item{Title: title, URL: a.Link})
	}
	return out, nil
}
