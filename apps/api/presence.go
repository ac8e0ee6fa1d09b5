package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mahaj/channel-hub/pkg/web"
)

type listenersResponse struct {
	Channel   string   `json:"channel"`
	Listeners []string `json:"listeners"`
}

// Listeners reports the live subscribers connected to any gateway.
func (h *Handler) Listeners(w http.ResponseWriter, r *http.Request) {
	channelName := chi.URLParam(r, "channel")
	if _, err := h.channels.Channel(r.Context(), channelName); err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	listeners, err := h.presence.Listeners(r.Context(), channelName)
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}
	if listeners == nil {
		listeners = []string{}
	}
	web.WriteJSON(w, http.StatusOK, listenersResponse{
		Channel:   channelName,
		Listeners: listeners,
	})
}
