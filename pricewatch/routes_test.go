package pricewatch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/pricewatch/selectorstore"
	"github.com/hazyhaar/pricewatch/shield"
)

func TestRoutes(t *testing.T) {
	pages := newPageTier()
	pages.set(kettleURL, "29.95")
	svc := testService(t, Config{}, pages)
	require.NoError(t, svc.Selectors().Learn(context.Background(), "shop.example", "price", "[itemprop=price]", "29.95", selectorstore.SourceCSS))

	srv := httptest.NewServer(svc.Routes(nil))
	t.Cleanup(srv.Close)

	get := func(path string) (*http.Response, string) {
		t.Helper()
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp, string(b)
	}

	t.Run("health", func(t *testing.T) {
		resp, body := get("/health")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"status":"ok","tiers":["http"]}`, body)
		assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

		head, err := http.Head(srv.URL + "/health")
		require.NoError(t, err)
		head.Body.Close()
		assert.Equal(t, http.StatusOK, head.StatusCode)
	})

	t.Run("leaderboard", func(t *testing.T) {
		resp, body := get("/leaderboard")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
		assert.Contains(t, body, "shop.example")
	})

	t.Run("selectors", func(t *testing.T) {
		resp, body := get("/selectors/shop.example?field=price")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var out struct {
			Domain    string                          `json:"domain"`
			Selectors []selectorstore.LearnedSelector `json:"selectors"`
		}
		require.NoError(t, json.Unmarshal([]byte(body), &out))
		require.Len(t, out.Selectors, 1)
		assert.Equal(t, "[itemprop=price]", out.Selectors[0].Selector)
	})

	post := func(body string) *http.Response {
		t.Helper()
		resp, err := http.Post(srv.URL+"/track", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	t.Run("track", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, post(`{"product_id":"kettle","target":{"url":"`+kettleURL+`"}}`).StatusCode)
		assert.Equal(t, http.StatusBadRequest, post(`{"product_id":"kettle","target":{"url":"gopher://x"}}`).StatusCode)
		assert.Equal(t, http.StatusBadRequest, post(`{"target":{"url":"`+kettleURL+`"}}`).StatusCode)
		assert.Equal(t, http.StatusBadRequest, post(`{`).StatusCode)
		assert.Equal(t, http.StatusBadGateway, post(`{"product_id":"mug","target":{"url":"https://shop.example/p/mug"}}`).StatusCode)
	})
}

func TestRoutes_Shield(t *testing.T) {
	pages := newPageTier()
	pages.set(kettleURL, "29.95")
	svc := testService(t, Config{Shield: shield.Config{
		MaxBodyBytes: 128,
		RateLimits:   map[string]shield.Rule{"POST /track": {MaxRequests: 2, Window: time.Hour}},
	}}, pages)
	srv := httptest.NewServer(svc.Routes(nil))
	t.Cleanup(srv.Close)

	post := func(body string) *http.Response {
		t.Helper()
		resp, err := http.Post(srv.URL+"/track", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	huge := `{"product_id":"kettle","retailer":"` + strings.Repeat("x", 256) + `","target":{"url":"` + kettleURL + `"}}`
	assert.Equal(t, http.StatusRequestEntityTooLarge, post(huge).StatusCode)
	assert.Equal(t, http.StatusOK, post(`{"product_id":"kettle","target":{"url":"`+kettleURL+`"}}`).StatusCode)

	resp := post(`{"product_id":"kettle","target":{"url":"` + kettleURL + `"}}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}
