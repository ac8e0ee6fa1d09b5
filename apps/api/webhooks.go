package main

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mahaj/channel-hub/pkg/bus"
	"github.com/mahaj/channel-hub/pkg/contentkey"
	"github.com/mahaj/channel-hub/pkg/model"
	"github.com/mahaj/channel-hub/pkg/web"
	"github.com/mahaj/channel-hub/pkg/webhook"
)

type webhookRequest struct {
	CallbackURL *string `json:"callbackUrl"`
	ChannelURL  string  `json:"channelUrl"`
	Channel     string  `json:"channel"`
	Paused      *bool   `json:"paused"`
	StartItem   string  `json:"startItem"`
	Secret      *string `json:"secret"`
}

type webhookResponse struct {
	Links struct {
		Self web.Link `json:"self"`
	} `json:"_links"`
	Name          string    `json:"name"`
	CallbackURL   string    `json:"callbackUrl"`
	ChannelURL    string    `json:"channelUrl"`
	Paused        bool      `json:"paused"`
	Signed        bool      `json:"signed"`
	LastCompleted string    `json:"lastCompleted"`
	Created       time.Time `json:"creationDate"`
}

type webhookListResponse struct {
	Links struct {
		Self     web.Link         `json:"self"`
		Webhooks []webhookSummary `json:"webhooks"`
	} `json:"_links"`
}

type webhookSummary struct {
	Name string `json:"name"`
	Href string `json:"href"`
}

func (h *Handler) webhookURI(name string) string {
	return strings.TrimRight(h.baseURL, "/") + "/webhook/" + name
}

func (h *Handler) webhookResponse(wh *webhook.Webhook) webhookResponse {
	var resp webhookResponse
	resp.Links.Self.Href = h.webhookURI(wh.Name)
	resp.Name = wh.Name
	resp.CallbackURL = wh.CallbackURL
	resp.ChannelURL = model.ChannelURI(h.baseURL, wh.Channel)
	resp.Paused = wh.Paused
	resp.Signed = wh.Secret != ""
	if !wh.Cursor.IsZero() {
		resp.LastCompleted = model.ItemURI(h.baseURL, wh.Channel, wh.Cursor)
	}
	resp.Created = wh.Created
	return resp
}

// channelName resolves the channel of a request from either its name or its URL.
func (req *webhookRequest) channelName() (string, error) {
	fromURL := ""
	if req.ChannelURL != "" {
		u, err := url.Parse(req.ChannelURL)
		if err != nil {
			return "", errors.Wrapf(web.ErrBadRequest, "channelUrl %q", req.ChannelURL)
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) != 2 || parts[0] != "channel" {
			return "", errors.Wrapf(web.ErrBadRequest, "channelUrl %q is not a channel url", req.ChannelURL)
		}
		fromURL = parts[1]
	}
	switch {
	case req.Channel == "" && fromURL == "":
		return "", errors.Wrap(web.ErrBadRequest, "channel or channelUrl is required")
	case req.Channel != "" && fromURL != "" && req.Channel != fromURL:
		return "", errors.Wrap(web.ErrBadRequest, "channel and channelUrl disagree")
	case req.Channel != "":
		return req.Channel, nil
	}
	return fromURL, nil
}

// startKey parses startItem as an item URI of channelName or a bare key path.
func (req *webhookRequest) startKey(channelName string) (*contentkey.Key, error) {
	if req.StartItem == "" {
		return nil, nil
	}
	if strings.Contains(req.StartItem, "/channel/") {
		ch, k, ok := model.ParseItemURI(req.StartItem)
		if !ok || ch != channelName {
			return nil, errors.Wrapf(web.ErrBadRequest, "startItem %q is not an item of %s", req.StartItem, channelName)
		}
		return &k, nil
	}
	k, err := contentkey.ParseKey(req.StartItem)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// PutWebhook creates the named webhook, or updates the callback, paused flag and secret of an
// existing one.
func (h *Handler) PutWebhook(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "webhook")
	var req webhookRequest
	if err := web.ReadJSON(r, &req); err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	existing, err := h.webhooks.Get(r.Context(), name)
	switch {
	case err == nil:
		h.updateWebhook(w, r, existing, &req)
	case errors.Is(err, webhook.ErrNotFound):
		h.createWebhook(w, r, name, &req)
	default:
		web.WriteError(w, h.logger, err)
	}
}

func (h *Handler) createWebhook(w http.ResponseWriter, r *http.Request, name string, req *webhookRequest) {
	ctx := r.Context()
	if req.CallbackURL == nil {
		web.WriteError(w, h.logger, errors.Wrap(web.ErrBadRequest, "callbackUrl is required"))
		return
	}
	channelName, err := req.channelName()
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	wh := &webhook.Webhook{
		Name:        name,
		Channel:     channelName,
		CallbackURL: *req.CallbackURL,
		Created:     time.Now().UTC(),
	}
	if req.Paused != nil {
		wh.Paused = *req.Paused
	}
	if req.Secret != nil {
		wh.Secret = *req.Secret
	}
	if err := wh.Validate(); err != nil {
		web.WriteError(w, h.logger, err)
		return
	}
	start, err := req.startKey(channelName)
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}
	if _, err := h.channels.Channel(ctx, channelName); err != nil {
		web.WriteError(w, h.logger, err)
		return
	}
	if err := webhook.StartAfter(ctx, h.tail, wh, start); err != nil {
		web.WriteError(w, h.logger, err)
		return
	}
	if err := h.webhooks.Create(ctx, wh); err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"webhook": name,
		"channel": channelName,
	}).Info("Webhook created")
	h.announce(r, bus.NewWebhookChanged(name))

	resp := h.webhookResponse(wh)
	w.Header().Set("Location", resp.Links.Self.Href)
	web.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) updateWebhook(w http.ResponseWriter, r *http.Request, existing *webhook.Webhook, req *webhookRequest) {
	if req.Channel != "" || req.ChannelURL != "" {
		channelName, err := req.channelName()
		if err != nil {
			web.WriteError(w, h.logger, err)
			return
		}
		if channelName != existing.Channel {
			web.WriteError(w, h.logger, errors.Wrap(web.ErrBadRequest, "the channel of a webhook cannot change"))
			return
		}
	}
	if req.StartItem != "" {
		web.WriteError(w, h.logger, errors.Wrap(web.ErrBadRequest, "startItem only applies when creating a webhook"))
		return
	}
	if req.CallbackURL != nil {
		if err := webhook.ValidateCallbackURL(*req.CallbackURL); err != nil {
			web.WriteError(w, h.logger, err)
			return
		}
	}

	h.update(w, r, existing.Name, webhook.Update{
		CallbackURL: req.CallbackURL,
		Paused:      req.Paused,
		Secret:      req.Secret,
	})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request, name string, update webhook.Update) {
	wh, err := h.webhooks.Update(r.Context(), name, update)
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}
	h.announce(r, bus.NewWebhookChanged(name))
	web.WriteJSON(w, http.StatusOK, h.webhookResponse(wh))
}

func (h *Handler) PauseWebhook(w http.ResponseWriter, r *http.Request) {
	paused := true
	h.update(w, r, chi.URLParam(r, "webhook"), webhook.Update{Paused: &paused})
}

func (h *Handler) ResumeWebhook(w http.ResponseWriter, r *http.Request) {
	paused := false
	h.update(w, r, chi.URLParam(r, "webhook"), webhook.Update{Paused: &paused})
}

func (h *Handler) GetWebhook(w http.ResponseWriter, r *http.Request) {
	wh, err := h.webhooks.Get(r.Context(), chi.URLParam(r, "webhook"))
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}
	web.WriteJSON(w, http.StatusOK, h.webhookResponse(wh))
}

func (h *Handler) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	hooks, err := h.webhooks.List(r.Context(), r.URL.Query().Get("channel"))
	if err != nil {
		web.WriteError(w, h.logger, err)
		return
	}

	var resp webhookListResponse
	resp.Links.Self.Href = strings.TrimRight(h.baseURL, "/") + "/webhook"
	resp.Links.Webhooks = make([]webhookSummary, 0, len(hooks))
	for _, wh := range hooks {
		resp.Links.Webhooks = append(resp.Links.Webhooks, webhookSummary{
			Name: wh.Name,
			Href: h.webhookURI(wh.Name),
		})
	}
	web.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "webhook")
	if err := h.webhooks.Delete(r.Context(), name); err != nil {
		web.WriteError(w, h.logger, err)
		return
	}
	h.logger.WithField("webhook", name).Info("Webhook deleted")
	h.announce(r, bus.NewWebhookChanged(name))
	w.WriteHeader(http.StatusNoContent)
}
