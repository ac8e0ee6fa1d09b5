package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/handlers"
	"github.com/sirupsen/logrus"

	"github.com/mahaj/channel-hub/pkg/bus"
)

type Handler struct {
	channels ChannelService
	webhooks WebhookStore
	presence Presence
	tail     FeedTail
	events   Publisher
	baseURL  string
	logger   logrus.FieldLogger
}

func New(channels ChannelService, webhooks WebhookStore, presence Presence, tail FeedTail, events Publisher, baseURL string, logger logrus.FieldLogger) *Handler {
	return &Handler{
		channels: channels,
		webhooks: webhooks,
		presence: presence,
		tail:     tail,
		events:   events,
		baseURL:  baseURL,
		logger:   logger,
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/channel", func(r chi.Router) {
		r.Get("/", h.ListChannels)
		r.Put("/{channel}", h.CreateChannel)
		r.Get("/{channel}", h.GetChannel)
		r.Delete("/{channel}", h.DeleteChannel)
		r.Get("/{channel}/listeners", h.Listeners)
	})

	r.Route("/webhook", func(r chi.Router) {
		r.Get("/", h.ListWebhooks)
		r.Put("/{webhook}", h.PutWebhook)
		r.Get("/{webhook}", h.GetWebhook)
		r.Delete("/{webhook}", h.DeleteWebhook)
		r.Post("/{webhook}/pause", h.PauseWebhook)
		r.Post("/{webhook}/resume", h.ResumeWebhook)
	})

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "PUT", "POST", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)
	return cors(r)
}

// announce tells the other services about a change. Failures are logged: the webhooks service
// also reconciles on a timer.
func (h *Handler) announce(r *http.Request, e bus.Event) {
	if err := h.events.Publish(r.Context(), e); err != nil {
		h.logger.WithError(err).WithField("type", e.Type).Warn("Failed to publish event")
	}
}
