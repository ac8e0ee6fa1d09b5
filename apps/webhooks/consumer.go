package main

import (
	"context"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/mahaj/channel-hub/pkg/bus"
	"github.com/mahaj/channel-hub/pkg/web"
	"github.com/mahaj/channel-hub/pkg/webhook"
)

// Consumer turns bus events into dispatcher signals.
type Consumer struct {
	supervisor *webhook.Supervisor
	logger     logrus.FieldLogger
}

func NewConsumer(supervisor *webhook.Supervisor, logger logrus.FieldLogger) *Consumer {
	return &Consumer{
		supervisor: supervisor,
		logger:     logger,
	}
}

func (c *Consumer) Handle(ctx context.Context, e bus.Event) {
	switch e.Type {
	case bus.ItemAppended:
		c.supervisor.NotifyAppend(e.Channel)
	case bus.WebhookChanged:
		if err := c.supervisor.NotifyWebhookChanged(ctx, e.Webhook); err != nil {
			c.logger.WithError(err).WithField("webhook", e.Webhook).Warn("Failed to apply webhook change, waiting for next sync")
		}
	case bus.ChannelDeleted:
		c.supervisor.NotifyChannelDeleted(e.Channel)
	default:
		c.logger.WithField("type", e.Type).Debug("Skipping event")
	}
}

type workerStatus struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// Routes serves the health and worker status endpoints.
func (c *Consumer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		names := c.supervisor.Workers()
		sort.Strings(names)
		ret := make([]workerStatus, 0, len(names))
		for _, name := range names {
			state, ok := c.supervisor.State(name)
			if !ok {
				continue
			}
			ret = append(ret, workerStatus{Name: name, State: state.String()})
		}
		web.WriteJSON(w, http.StatusOK, ret)
	})
	return r
}
