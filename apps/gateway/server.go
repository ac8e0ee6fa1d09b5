package main

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/handlers"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mahaj/channel-hub/pkg/contentkey"
	"github.com/mahaj/channel-hub/pkg/hub"
	"github.com/mahaj/channel-hub/pkg/live"
	"github.com/mahaj/channel-hub/pkg/model"
	"github.com/mahaj/channel-hub/pkg/web"
)

// Maximum accepted item size.
const maxItemSize = 20 << 20

type Server struct {
	hub    *hub.Hub
	live   *live.Registry
	logger logrus.FieldLogger
}

func NewServer(h *hub.Hub, registry *live.Registry, logger logrus.FieldLogger) *Server {
	return &Server{
		hub:    h,
		live:   registry,
		logger: logger,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.GetHead)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Route("/channel/{channel}", func(r chi.Router) {
		r.Post("/", s.insert)
		r.Get("/", s.read)
		r.Get("/*", s.read)
	})

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "HEAD", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
		handlers.ExposedHeaders([]string{"Location", "Creation-Date"}),
	)
	return cors(r)
}

type insertResponse struct {
	Links struct {
		Self web.Link `json:"self"`
	} `json:"_links"`
	Key string `json:"key"`
}

func (s *Server) insert(w http.ResponseWriter, r *http.Request) {
	channelName := chi.URLParam(r, "channel")
	content, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxItemSize))
	if err != nil {
		web.WriteError(w, s.logger, errors.Wrap(web.ErrBadRequest, err.Error()))
		return
	}

	item, uri, err := s.hub.Insert(r.Context(), channelName, content, r.Header.Get("Content-Type"))
	if err != nil {
		web.WriteError(w, s.logger, err)
		return
	}

	var resp insertResponse
	resp.Links.Self.Href = uri
	resp.Key = item.Key.Path()
	w.Header().Set("Location", uri)
	web.WriteJSON(w, http.StatusCreated, resp)
}

type rangeResponse struct {
	Links struct {
		Self web.Link `json:"self"`
		URIs []string `json:"uris"`
	} `json:"_links"`
}

// read serves everything below a channel: time bucket ranges, single items, the latest item
// and the websocket endpoints of each scope.
func (s *Server) read(w http.ResponseWriter, r *http.Request) {
	channelName := chi.URLParam(r, "channel")
	var segments []string
	for _, seg := range strings.Split(chi.URLParam(r, "*"), "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}

	if len(segments) == 1 && segments[0] == "latest" {
		s.latest(w, r, channelName)
		return
	}
	ws := len(segments) > 0 && segments[len(segments)-1] == "ws"
	if ws {
		segments = segments[:len(segments)-1]
	}

	scope, err := contentkey.ParseScope(segments)
	if err != nil {
		web.WriteError(w, s.logger, err)
		return
	}

	switch {
	case ws:
		s.serveWs(w, r, channelName, scope)
	case scope.Level() == contentkey.LevelItem:
		key, _ := scope.Key()
		s.item(w, r, channelName, key)
	default:
		s.query(w, r, channelName, scope)
	}
}

func (s *Server) query(w http.ResponseWriter, r *http.Request, channelName string, scope contentkey.Scope) {
	uris, err := s.hub.Query(r.Context(), channelName, scope)
	if err != nil {
		web.WriteError(w, s.logger, err)
		return
	}

	var resp rangeResponse
	resp.Links.Self.Href = scopeURI(s.hub.BaseURL(), channelName, scope)
	resp.Links.URIs = uris
	web.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) item(w http.ResponseWriter, r *http.Request, channelName string, key contentkey.Key) {
	item, err := s.hub.Get(r.Context(), channelName, key)
	if err != nil {
		web.WriteError(w, s.logger, err)
		return
	}

	w.Header().Set("Content-Type", item.ContentType)
	w.Header().Set("Creation-Date", item.Created.UTC().Format(time.RFC3339Nano))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(item.Content)
	}
}

func (s *Server) latest(w http.ResponseWriter, r *http.Request, channelName string) {
	uri, ok, err := s.hub.Latest(r.Context(), channelName)
	if err != nil {
		web.WriteError(w, s.logger, err)
		return
	}
	if !ok {
		web.WriteError(w, s.logger, errors.Wrapf(hub.ErrItemNotFound, "%s has no items", channelName))
		return
	}
	http.Redirect(w, r, uri, http.StatusSeeOther)
}

func scopeURI(baseURL, channelName string, scope contentkey.Scope) string {
	uri := model.ChannelURI(baseURL, channelName)
	if p := scope.Path(); p != "" {
		uri += "/" + p
	}
	return uri
}
