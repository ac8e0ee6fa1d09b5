package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/channel-hub/pkg/bus"
	"github.com/mahaj/channel-hub/pkg/channel"
	"github.com/mahaj/channel-hub/pkg/feed"
	"github.com/mahaj/channel-hub/pkg/hub"
	"github.com/mahaj/channel-hub/pkg/live"
)

const testBase = "http://hub.test"

type testGateway struct {
	srv      *httptest.Server
	hub      *hub.Hub
	live     *live.Registry
	bus      *bus.Local
	channels *channel.Memory
}

func newTestGateway(t *testing.T) *testGateway {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	channels := channel.NewMemory()
	local := bus.NewLocal()
	h := hub.New(feed.NewMemory(), channels, nil, local, hub.Config{BaseURL: testBase, Logger: logger})
	join, leave := presenceHooks(channels, logger)
	registry := live.NewRegistry(live.Config{
		Logger:        logger,
		OnSubscribe:   join,
		OnUnsubscribe: leave,
	})
	local.Handle(newFanout(registry, logger).handle)

	_, err := h.CreateChannel(context.Background(), "news", "")
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(h, registry, logger).Routes())
	t.Cleanup(func() {
		registry.Close()
		srv.Close()
	})
	return &testGateway{srv: srv, hub: h, live: registry, bus: local, channels: channels}
}

func (g *testGateway) post(t *testing.T, channelName, body string) insertResponse {
	resp, err := http.Post(g.srv.URL+"/channel/"+channelName, "text/plain", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var ret insertResponse
	require.NoError(t, jsoniter.NewDecoder(resp.Body).Decode(&ret))
	assert.Equal(t, ret.Links.Self.Href, resp.Header.Get("Location"))
	return ret
}

func (g *testGateway) dial(t *testing.T, path string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(g.srv.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestInsertThenRead(t *testing.T) {
	g := newTestGateway(t)
	created := g.post(t, "news", "hello")
	require.True(t, strings.HasPrefix(created.Links.Self.Href, testBase+"/channel/news/"))
	path := strings.TrimPrefix(created.Links.Self.Href, testBase)

	resp, err := http.Get(g.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("Creation-Date"))
	var body bytes.Buffer
	_, err = body.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", body.String())

	day := strings.Join(strings.Split(created.Key, "/")[:3], "/")
	for _, scope := range []string{"", "/" + day} {
		resp, err := http.Get(g.srv.URL + "/channel/news" + scope)
		require.NoError(t, err)
		var ranged rangeResponse
		require.NoError(t, jsoniter.NewDecoder(resp.Body).Decode(&ranged))
		resp.Body.Close()
		assert.Equal(t, []string{created.Links.Self.Href}, ranged.Links.URIs, scope)
	}

	resp, err = http.Get(g.srv.URL + "/channel/news/2001/01/01")
	require.NoError(t, err)
	var empty rangeResponse
	require.NoError(t, jsoniter.NewDecoder(resp.Body).Decode(&empty))
	resp.Body.Close()
	assert.Empty(t, empty.Links.URIs)
	assert.Equal(t, testBase+"/channel/news/2001/01/01", empty.Links.Self.Href)
}

func TestLatestRedirects(t *testing.T) {
	g := newTestGateway(t)
	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Get(g.srv.URL + "/channel/news/latest")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	g.post(t, "news", "one")
	second := g.post(t, "news", "two")

	resp, err = client.Get(g.srv.URL + "/channel/news/latest")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, second.Links.Self.Href, resp.Header.Get("Location"))
}

func TestReadErrors(t *testing.T) {
	g := newTestGateway(t)

	for path, status := range map[string]int{
		"/channel/missing":                          http.StatusNotFound,
		"/channel/news/2024/13/01":                  http.StatusBadRequest,
		"/channel/news/2024/01":                     http.StatusBadRequest,
		"/channel/news/2024/01/01/00/00/00/000000":  http.StatusNotFound,
		"/channel/news/2024/01/01/00/00/00/notanum": http.StatusBadRequest,
	} {
		resp, err := http.Get(g.srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, status, resp.StatusCode, path)
	}

	resp, err := http.Post(g.srv.URL+"/channel/missing", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebsocketReceivesNewItems(t *testing.T) {
	g := newTestGateway(t)
	conn := g.dial(t, "/channel/news/ws")
	require.Eventually(t, func() bool { return g.live.Count("news") == 1 }, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		listeners, _ := g.channels.Listeners(context.Background(), "news")
		return len(listeners) == 1
	}, time.Second, 5*time.Millisecond)

	first := g.post(t, "news", "one")
	second := g.post(t, "news", "two")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for _, want := range []string{first.Links.Self.Href, second.Links.Self.Href} {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, want, string(msg))
	}
}

func TestWebsocketScopeFilters(t *testing.T) {
	g := newTestGateway(t)
	past := g.dial(t, "/channel/news/2001/01/01/ws")
	all := g.dial(t, "/channel/news/ws")
	require.Eventually(t, func() bool { return g.live.Count("news") == 2 }, time.Second, 5*time.Millisecond)

	created := g.post(t, "news", "one")

	require.NoError(t, all.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := all.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, created.Links.Self.Href, string(msg))

	require.NoError(t, past.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err = past.ReadMessage()
	assert.Error(t, err)
}

func TestWebsocketClosedWhenChannelDeleted(t *testing.T) {
	g := newTestGateway(t)
	conn := g.dial(t, "/channel/news/ws")
	require.Eventually(t, func() bool { return g.live.Count("news") == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, g.hub.DeleteChannel(context.Background(), "news"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "%v", err)
	require.Eventually(t, func() bool {
		listeners, _ := g.channels.Listeners(context.Background(), "news")
		return len(listeners) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestWebsocketUnknownChannel(t *testing.T) {
	g := newTestGateway(t)
	url := "ws" + strings.TrimPrefix(g.srv.URL, "http") + "/channel/missing/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
