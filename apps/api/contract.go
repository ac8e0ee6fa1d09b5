//go:generate mockgen -destination=mock_contract_test.go -package=${GOPACKAGE} -source=contract.go
package main

import (
	"context"

	"github.com/mahaj/channel-hub/pkg/bus"
	"github.com/mahaj/channel-hub/pkg/contentkey"
	"github.com/mahaj/channel-hub/pkg/model"
	"github.com/mahaj/channel-hub/pkg/webhook"
)

type ChannelService interface {
	CreateChannel(ctx context.Context, name, description string) (*model.Channel, error)
	Channel(ctx context.Context, name string) (*model.Channel, error)
	Channels(ctx context.Context) ([]*model.Channel, error)
	DeleteChannel(ctx context.Context, name string) error
}

type WebhookStore interface {
	Create(ctx context.Context, wh *webhook.Webhook) error
	Update(ctx context.Context, name string, update webhook.Update) (*webhook.Webhook, error)
	Delete(ctx context.Context, name string) error
	Get(ctx context.Context, name string) (*webhook.Webhook, error)
	List(ctx context.Context, channel string) ([]*webhook.Webhook, error)
}

type FeedTail interface {
	TailSince(ctx context.Context, channel string, after contentkey.Key, limit int) ([]contentkey.Key, error)
	Latest(ctx context.Context, channel string) (contentkey.Key, bool, error)
}

type Presence interface {
	Listeners(ctx context.Context, channel string) ([]string, error)
}

type Publisher interface {
	Publish(ctx context.Context, e bus.Event) error
}
