package newsdata

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketpulse/internal/httpx"
	"marketpulse/internal/provider"
)

func TestFetch_FiltersAndCaps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "k", q.Get("apikey"))
		require.Equal(t, "AAPL", q.Get("q"))
		require.Equal(t, "en", q.Get("language"))
		require.Equal(t, "business", q.Get("category"))

		var rs []string
		rs = append(rs, `{"title":""}`)
		for i := 0; i < 7; i++ {
			rs = append(rs, fmt.Sprintf(`{"title":"Apple &amp; friends %d","link":"https://n/%d"}`, i, i))
		}
		fmt.Fprintf(w, `{"status":"success","results":[%s]}`, strings.Join(rs, ","))
	}))
	defer srv.Close()

	src := New(Config{Endpoint: srv.URL, APIKey: "k"}, httpx.New(2*time.Second))
	items, err := src.Fetch(t.Context(), "AAPL")
	require.NoError(t, err)
	require.Len(t, items, 5)
	require.Equal(t, "Apple & friends 0", items[0].Title)
	require.Equal(t, "https://n/0", items[0].URL)
	require.Equal(t, "news", src.Name())
}

func TestFetch_MissingKey(t *testing.T) {
	src := New(Config{}, httpx.New(time.Second))
	_, err := src.Fetch(t.Context(), "AAPL")
	require.ErrorIs(t, err, provider.ErrUnavailable)
}

func TestFetch_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","message":"quota"}`))
	}))
	defer srv.Close()

	src := New(Config{Endpoint: srv.URL, APIKey: "k"}, httpx.New(2*time.Second))
	_, err := src.Fetch(t.Context(), "AAPL")
	require.Equal(t, provider.KindDecode, provider.Normalize(src.Name(), "AAPL", err).Kind)
}

func TestFetch_HTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	src := New(Config{Endpoint: srv.URL, APIKey: "k"}, httpx.New(2*time.Second))
	_, err := src.Fetch(t.Context(), "AAPL")
	require.Equal(t, provider.KindStatus, provider.Normalize(src.Name(), "AAPL", err).Kind)
}
