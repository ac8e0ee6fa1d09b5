package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWSURL(t *testing.T) {
	u, err := wsURL("http://localhost:8080", "news", "")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/channel/news/ws", u)

	u, err = wsURL("https://hub.example.com/", "news", "/2024/01/02/")
	require.NoError(t, err)
	assert.Equal(t, "wss://hub.example.com/channel/news/2024/01/02/ws", u)
}

func TestPostItem(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/channel/news", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		got = string(body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"_links":{"self":{"href":"http://hub/channel/news/2024/01/01/00/00/00/000000"}},"key":"2024/01/01/00/00/00/000000"}`))
	}))
	defer srv.Close()

	uri, err := postItem(srv.URL, "news", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
	assert.Equal(t, "http://hub/channel/news/2024/01/01/00/00/00/000000", uri)
}

func TestEnsureChannelAcceptsExisting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	require.NoError(t, ensureChannel(srv.URL, "news"))
}
