// Package web holds the JSON response and error conventions shared by the HTTP services.
package web

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mahaj/channel-hub/pkg/channel"
	"github.com/mahaj/channel-hub/pkg/contentkey"
	"github.com/mahaj/channel-hub/pkg/feed"
	"github.com/mahaj/channel-hub/pkg/hub"
	"github.com/mahaj/channel-hub/pkg/webhook"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrBadRequest marks malformed client input.
var ErrBadRequest = errors.New("bad request")

type Link struct {
	Href string `json:"href"`
}

type errorBody struct {
	Error string `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "unable to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// ReadJSON decodes a request body into v, reporting malformed input as ErrBadRequest.
func ReadJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Wrap(ErrBadRequest, err.Error())
	}
	return nil
}

// Status maps an error to its HTTP status code.
func Status(err error) int {
	switch {
	case errors.Is(err, channel.ErrNotFound),
		errors.Is(err, feed.ErrNotFound),
		errors.Is(err, webhook.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, channel.ErrExists),
		errors.Is(err, webhook.ErrExists):
		return http.StatusConflict
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, webhook.ErrInvalid),
		errors.Is(err, hub.ErrInvalidChannel),
		errors.Is(err, contentkey.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, feed.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// WriteError responds with the status for err. Server errors are logged and their details are
// not sent to the client.
func WriteError(w http.ResponseWriter, logger logrus.FieldLogger, err error) {
	status := Status(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logger.WithError(err).Error("Request failed")
		msg = http.StatusText(status)
	}
	WriteJSON(w, status, errorBody{Error: msg})
}
