// Package bus carries hub events between the gateway, api and webhooks services.
package bus

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/mahaj/channel-hub/pkg/contentkey"
)

type EventType string

const (
	ItemAppended   EventType = "item.appended"
	WebhookChanged EventType = "webhook.changed"
	ChannelDeleted EventType = "channel.deleted"
)

type Event struct {
	Type    EventType `json:"type"`
	Channel string    `json:"channel,omitempty"`
	Key     string    `json:"key,omitempty"`
	URI     string    `json:"uri,omitempty"`
	Webhook string    `json:"webhook,omitempty"`
	Time    time.Time `json:"time"`
}

func NewItemAppended(channel string, k contentkey.Key, uri string) Event {
	return Event{
		Type:    ItemAppended,
		Channel: channel,
		Key:     k.Path(),
		URI:     uri,
		Time:    time.Now().UTC(),
	}
}

func NewWebhookChanged(name string) Event {
	return Event{
		Type:    WebhookChanged,
		Webhook: name,
		Time:    time.Now().UTC(),
	}
}

func NewChannelDeleted(channel string) Event {
	return Event{
		Type:    ChannelDeleted,
		Channel: channel,
		Time:    time.Now().UTC(),
	}
}

// ItemKey parses the key of an ItemAppended event.
func (e Event) ItemKey() (contentkey.Key, error) {
	if e.Type != ItemAppended {
		return contentkey.Key{}, errors.Errorf("%s event has no item key", e.Type)
	}
	return contentkey.ParseKey(e.Key)
}

type Handler func(ctx context.Context, e Event)

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber delivers events to h until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, h Handler) error
}
