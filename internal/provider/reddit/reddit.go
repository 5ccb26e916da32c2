package reddit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"marketpulse/internal/httpx"
	"marketpulse/internal/provider"
	"marketpulse/internal/provider/htmltext"
)

// Config controls the Reddit source.
type Config struct {
	Name      string
	BaseURL   string // default https://www.reddit.com
	Subreddit string // default stocks
	MaxItems  int
}

// Source fetches recent community posts mentioning a ticker.
type Source struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Source {
	if cfg.Name == "" {
		cfg.Name = "social"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.reddit.com"
	}
	if cfg.Subreddit == "" {
		cfg.Subreddit = "stocks"
	}
	if cfg.MaxItems <= 0 || cfg.MaxItems > provider.MaxItems {
		cfg.MaxItems = provider.MaxItems
	}
	return &Source{cfg: cfg, client: hc}
}

func (s *Source) Name() string { return s.cfg.Name }

type listing struct {
	Data struct {
		Children []struct {
			Data struct {
				Title     string `json:"title"`
				Permalink string `json:"permalink"`
				URL       string `json:"url"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

func (s *Source) Fetch(ctx context.Context, ticker string) ([]provider.Item, error) {
	q := url.Values{}
	q.Set("q", ticker)
	q.Set("restrict_sr", "1")
	q.Set("sort", "new")
	q.Set("limit", fmt.Sprint(s.cfg.MaxItems))
	u := fmt.Sprintf("%s/r/%s/search.json?%s", strings.TrimRight(s.cfg.BaseURL, "/"), url.PathEscape(s.cfg.Subreddit), q.Encode())

	var body listing
	if err := s.client.GetJSON(ctx, u, http.Header{"Accept": []string{"application/json"}}, &body); err != nil {
		return nil, err
	}

	out := make([]provider.Item, 0, s.cfg.MaxItems)
	for _, c := range body.Data.Children {
		if len(out) == s.cfg.MaxItems {
			break
		}
		title := htmltext.Plain(c.Data.Title)
		if title == "" {
			continue
		}
		link := c.Data.URL
		if c.Data.Permalink != "" {
			link = "https://www.reddit.com" + c.Data.Permalink
		}
		out = append(out, provider.Item{Title: title, URL: link})
	}
	return out, nil
}
