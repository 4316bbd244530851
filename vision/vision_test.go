package vision

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/pricewatch/extract"
)

var pngStub = []byte("\x89PNG\r\n\x1a\nstub")

func TestRead(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		answer := `{"price":{"value":"€ 1.299,00","locator":".product-price"},"title":"Espresso machine","brand":{"value":"Sage","locator":"div > span"},"stock":{"value":""}}`
		json.NewEncoder(w).Encode(chatResponse{Message: message{Role: "assistant", Content: answer}})
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL + "/", Model: "llava:7b"})
	fields := []extract.Field{extract.FieldPrice, extract.FieldTitle, extract.FieldBrand, extract.FieldStock}
	readings, err := c.Read(t.Context(), pngStub, fields)
	require.NoError(t, err)

	assert.Equal(t, Reading{Value: "€ 1.299,00", Locator: ".product-price"}, readings[extract.FieldPrice])
	assert.Equal(t, Reading{Value: "Espresso machine"}, readings[extract.FieldTitle])
	assert.Equal(t, Reading{Value: "Sage"}, readings[extract.FieldBrand], "locator outside the grammar is dropped")
	_, ok := readings[extract.FieldStock]
	assert.False(t, ok, "empty values are absent")

	assert.Equal(t, "llava:7b", got.Model)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 1)
	require.Len(t, got.Messages[0].Images, 1)
	decoded, err := base64.StdEncoding.DecodeString(got.Messages[0].Images[0])
	require.NoError(t, err)
	assert.Equal(t, pngStub, decoded)
	assert.Contains(t, got.Messages[0].Content, "price")
}

func TestRead_NumericValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{Message: message{Content: `{"price": 49.95}`}})
	}))
	defer srv.Close()

	readings, err := New(Config{Endpoint: srv.URL}).Read(t.Context(), pngStub, []extract.Field{extract.FieldPrice})
	require.NoError(t, err)
	assert.Equal(t, "49.95", readings[extract.FieldPrice].Value)
}

func TestRead_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(chatResponse{Error: "model not found"})
	}))
	defer srv.Close()

	_, err := New(Config{Endpoint: srv.URL}).Read(t.Context(), pngStub, []extract.Field{extract.FieldPrice})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}

func TestRead_GarbageAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{Message: message{Content: "I see a kettle."}})
	}))
	defer srv.Close()

	_, err := New(Config{Endpoint: srv.URL}).Read(t.Context(), pngStub, []extract.Field{extract.FieldPrice})
	assert.Error(t, err)
}

func TestRead_EmptyScreenshot(t *testing.T) {
	_, err := New(Config{}).Read(t.Context(), nil, []extract.Field{extract.FieldPrice})
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()
	assert.NoError(t, New(Config{Endpoint: srv.URL}).Ping(t.Context()))
}
