package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mahaj/channel-hub/pkg/model"
	"github.com/mahaj/channel-hub/pkg/web"
)

type channelLinks struct {
	Self   web.Link `json:"self"`
	Latest web.Link `json:"latest"`
	WS     web.Link `json:"ws"`
}

type channelResponse struct {
	Links       channelLinks `json:"_links"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Created     time.Time    `json:"creationDate"`
}

type channelListResponse struct {
	Links struct {
		Self     web.Link         `json:"self"`
		Channels []channelSummary `json:"channels"`
	} `json:"_links"`
}

type channelSummary struct {
	Name string `json:"name"`
	Href string `json:"href"`
}

type createChannelRequest struct {
	Description string `json:"description"`
}

func (h *Handler) channelResponse(ch *model.Channel) channelResponse {
	uri := model.ChannelURI(h.baseURL, ch.Name)
	return channelResponse{
		Links: channelLinks{
			Self:   web.Link{Href: uri},
			Latest: web.Link{Href: uri + "/latest"},
			WS:     web.Link{Href: uri + "/ws"},
		},
		Name:        ch.Name,
		Description: ch.Description,
		Created:     ch.Created,
	}
}

func (h *Handler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	var req createChannelRequest
	if r.ContentLength != 0 {
		if err := web.ReadJSON(r, &req); err != nil {
			web.WriteError(w, h.logger, err)
			return
		}
	}

	ch, err := h.channels.CreateChannel(r.Context(), chi.URLParam(r, "channel"), req.Description)
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	resp := h.channelResponse(ch)
	w.Header().Set("Location", resp.Links.Self.Href)
	web.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) GetChannel(w http.ResponseWriter, r *http.Request) {
	ch, err := h.channels.Channel(r.Context(), chi.URLParam(r, "channel"))
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, h.channelResponse(ch))
}

func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.channels.Channels(r.Context())
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	var resp channelListResponse
	resp.Links.Self.Href = h.baseURL + "/channel"
	resp.Links.Channels = make([]channelSummary, 0, len(channels))
	for _, ch := range channels {
		resp.Links.Channels = append(resp.Links.Channels, channelSummary{
			Name: ch.Name,
			Href: model.ChannelURI(h.baseURL, ch.Name),
		})
	}
	web.WriteJSON(w, http.StatusOK, resp)
}

// DeleteChannel removes the channel with its items and webhooks. The channel service announces
// the deletion.
func (h *Handler) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	if err := h.channels.DeleteChannel(r.Context(), chi.URLParam(r, "channel")); err != nil {
		web.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
