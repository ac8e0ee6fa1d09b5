// Package webhook persists webhook subscriptions and drives at-least-once delivery of new item
// URIs to their callbacks.
package webhook

import (
	"context"
	"net/url"
	"regexp"
	"time"

	"github.com/pkg/errors"

	"github.com/mahaj/channel-hub/pkg/contentkey"
)

var (
	ErrNotFound = errors.New("webhook not found")
	ErrExists   = errors.New("webhook exists")
	ErrInvalid  = errors.New("invalid webhook")
)

// Webhook is a named, pausable registration that pushes the URIs of new items of a channel to a
// callback URL. Cursor is the last key confirmed as delivered; the zero key means nothing has
// been delivered and delivery starts at the beginning of the channel.
type Webhook struct {
	Name        string
	Channel     string
	CallbackURL string
	Paused      bool
	Secret      string
	Cursor      contentkey.Key
	Created     time.Time
}

// Update carries the mutable fields of a webhook. Nil fields are left unchanged.
type Update struct {
	CallbackURL *string
	Paused      *bool
	Secret      *string
}

// Store persists webhooks. The cursor is owned by the dispatcher: only AdvanceCursor moves it,
// and it never moves backward.
type Store interface {
	Create(ctx context.Context, wh *Webhook) error
	Update(ctx context.Context, name string, update Update) (*Webhook, error)
	Delete(ctx context.Context, name string) error
	Get(ctx context.Context, name string) (*Webhook, error)

	// List returns the webhooks of channel, or all webhooks when channel is empty, ordered by name.
	List(ctx context.Context, channel string) ([]*Webhook, error)

	// AdvanceCursor moves the cursor to the given key if it is greater than the stored one. It
	// reports whether the cursor moved.
	AdvanceCursor(ctx context.Context, name string, to contentkey.Key) (bool, error)
}

// Tail is the part of the channel feed the dispatcher reads.
type Tail interface {
	TailSince(ctx context.Context, channel string, after contentkey.Key, limit int) ([]contentkey.Key, error)
	Latest(ctx context.Context, channel string) (contentkey.Key, bool, error)
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,48}$`)

// Validate checks the fields supplied at registration time.
func (wh *Webhook) Validate() error {
	if !namePattern.MatchString(wh.Name) {
		return errors.Wrapf(ErrInvalid, "name %q must be 1-48 letters, digits or underscores", wh.Name)
	}
	if wh.Channel == "" {
		return errors.Wrap(ErrInvalid, "a channel is required")
	}
	return ValidateCallbackURL(wh.CallbackURL)
}

// ValidateCallbackURL requires an absolute http or https URL.
func ValidateCallbackURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Wrapf(ErrInvalid, "callback url %q must be an absolute http(s) url", raw)
	}
	return nil
}

// StartAfter sets the initial cursor of a new webhook. With a nil start, delivery begins with
// the first item appended after registration.
func StartAfter(ctx context.Context, tail Tail, wh *Webhook, start *contentkey.Key) error {
	if start != nil {
		wh.Cursor = *start
		return nil
	}
	latest, ok, err := tail.Latest(ctx, wh.Channel)
	if err != nil {
		return errors.Wrap(err, "unable to read latest item")
	}
	if ok {
		wh.Cursor = latest
	}
	return nil
}

func (u Update) apply(wh *Webhook) {
	if u.CallbackURL != nil {
		wh.CallbackURL = *u.CallbackURL
	}
	if u.Paused != nil {
		wh.Paused = *u.Paused
	}
	if u.Secret != nil {
		wh.Secret = *u.Secret
	}
}
