package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mahaj/channel-hub/pkg/contentkey"
	"github.com/mahaj/channel-hub/pkg/live"
	"github.com/mahaj/channel-hub/pkg/web"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Listeners only send control frames.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsTransport writes item URIs as text frames. Pings and the close frame go through
// WriteControl, which may run concurrently with Send.
type wsTransport struct {
	conn      *websocket.Conn
	closeOnce sync.Once
}

func (t *wsTransport) Send(uri string) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return errors.Wrap(t.conn.WriteMessage(websocket.TextMessage, []byte(uri)), "write uri")
}

func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		err = t.conn.Close()
	})
	return err
}

func (t *wsTransport) ping(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readPump consumes control frames until the peer goes away, then unsubscribes.
func (t *wsTransport) readPump(handle *live.Handle, logger logrus.FieldLogger) {
	defer handle.Close()
	t.conn.SetReadLimit(maxMessageSize)
	_ = t.conn.SetReadDeadline(time.Now().Add(pongWait))
	t.conn.SetPongHandler(func(string) error {
		return t.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := t.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WithError(err).Debug("Listener connection closed unexpectedly")
			}
			return
		}
	}
}

// serveWs upgrades the request and subscribes it to new items of channelName inside scope.
func (s *Server) serveWs(w http.ResponseWriter, r *http.Request, channelName string, scope contentkey.Scope) {
	if _, err := s.hub.Channel(r.Context(), channelName); err != nil {
		web.WriteError(w, s.logger, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Debug("Websocket upgrade failed")
		return
	}

	t := &wsTransport{conn: conn}
	handle := s.live.Subscribe(channelName, scope, t)
	logger := s.logger.WithFields(logrus.Fields{
		"channel":  channelName,
		"scope":    scope.String(),
		"listener": handle.ID().String(),
	})
	logger.Info("Listener connected")

	go t.ping(handle.Done())
	t.readPump(handle, logger)
	logger.Info("Listener disconnected")
}
