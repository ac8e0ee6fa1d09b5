package webhook

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/mahaj/channel-hub/pkg/auth"
)

var ErrDeliveryFailed = errors.New("delivery failed")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Delivery is one batch of item URIs for a webhook. Channel and Secret are used to sign the
// request and are not part of the body.
type Delivery struct {
	Name    string   `json:"name"`
	URIs    []string `json:"uris"`
	Channel string   `json:"-"`
	Secret  string   `json:"-"`
}

// Deliverer sends a batch to a callback URL. Any error counts as a failed attempt.
type Deliverer interface {
	Deliver(ctx context.Context, callbackURL string, d Delivery) error
}

const DefaultDeliveryTimeout = 10 * time.Second

type Client struct {
	httpClient *http.Client
	tokenTTL   time.Duration
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultDeliveryTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		tokenTTL:   auth.DefaultTTL,
	}
}

// Deliver POSTs the batch as JSON. Only a 2xx response is a success.
func (c *Client) Deliver(ctx context.Context, callbackURL string, d Delivery) error {
	body, err := json.Marshal(d)
	if err != nil {
		return errors.Wrap(err, "unable to encode delivery")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(ErrDeliveryFailed, "bad request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.Secret != "" {
		token, err := auth.SignDelivery(d.Secret, d.Name, d.Channel, body, c.tokenTTL)
		if err != nil {
			return errors.Wrap(err, "unable to sign delivery")
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(ErrDeliveryFailed, "%v", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Wrapf(ErrDeliveryFailed, "callback returned status %d", resp.StatusCode)
	}
	return nil
}
