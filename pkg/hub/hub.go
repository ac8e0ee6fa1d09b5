// Package hub ties channel identity, storage and event publication into the write and read
// paths shared by the gateway and api services.
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mahaj/channel-hub/pkg/bus"
	"github.com/mahaj/channel-hub/pkg/channel"
	"github.com/mahaj/channel-hub/pkg/contentkey"
	"github.com/mahaj/channel-hub/pkg/feed"
	"github.com/mahaj/channel-hub/pkg/model"
	"github.com/mahaj/channel-hub/pkg/webhook"
)

var (
	ErrChannelNotFound = channel.ErrNotFound
	ErrItemNotFound    = feed.ErrNotFound
	ErrInvalidChannel  = errors.New("invalid channel name")
)

const DefaultContentType = "application/octet-stream"

type Config struct {
	BaseURL string
	Logger  logrus.FieldLogger
}

// Hub is safe for concurrent use. The webhook store may be nil in processes that never delete
// channels.
type Hub struct {
	feed     feed.Feed
	channels channel.Store
	webhooks webhook.Store
	bus      bus.Publisher
	assigner *contentkey.Assigner
	baseURL  string
	logger   logrus.FieldLogger
	now      func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(f feed.Feed, channels channel.Store, webhooks webhook.Store, publisher bus.Publisher, cfg Config) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		feed:     f,
		channels: channels,
		webhooks: webhooks,
		bus:      publisher,
		assigner: contentkey.NewAssigner(f.Latest),
		baseURL:  cfg.BaseURL,
		logger:   logger,
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (h *Hub) BaseURL() string {
	return h.baseURL
}

func (h *Hub) ItemURI(channel string, k contentkey.Key) string {
	return model.ItemURI(h.baseURL, channel, k)
}

func (h *Hub) writeLock(channel string) *sync.Mutex {
	h.locksMu.Lock()
	defer h.locksMu.Unlock()
	l, ok := h.locks[channel]
	if !ok {
		l = &sync.Mutex{}
		h.locks[channel] = l
	}
	return l
}

// Insert assigns the next key of channel, stores the item and announces it. The writer lock
// is held from assignment through append so the feed never exposes a later key before an
// earlier one.
func (h *Hub) Insert(ctx context.Context, channelName string, content []byte, contentType string) (*model.Item, string, error) {
	if _, err := h.channels.Get(ctx, channelName); err != nil {
		return nil, "", err
	}
	if contentType == "" {
		contentType = DefaultContentType
	}

	lock := h.writeLock(channelName)
	lock.Lock()
	// DeleteChannel takes the same lock; the channel may have gone since the check above.
	if _, err := h.channels.Get(ctx, channelName); err != nil {
		lock.Unlock()
		return nil, "", err
	}
	key, err := h.assigner.Assign(ctx, channelName)
	if err != nil {
		lock.Unlock()
		return nil, "", errors.Wrap(err, "unable to assign key")
	}
	item := &model.Item{
		Channel:     channelName,
		Key:         key,
		Content:     content,
		ContentType: contentType,
		Created:     h.now().UTC(),
	}
	err = h.feed.Append(ctx, item)
	if err != nil {
		// The assigner may be ahead of storage now; reseed on the next write.
		h.assigner.Forget(channelName)
	}
	lock.Unlock()
	if err != nil {
		return nil, "", err
	}

	uri := h.ItemURI(channelName, key)
	if err := h.bus.Publish(ctx, bus.NewItemAppended(channelName, key, uri)); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"channel": channelName,
			"key":     key.Path(),
		}).Warn("Failed to publish item event")
	}
	return item, uri, nil
}

// Query returns the URIs of channel items within scope in ascending key order.
func (h *Hub) Query(ctx context.Context, channelName string, scope contentkey.Scope) ([]string, error) {
	if _, err := h.channels.Get(ctx, channelName); err != nil {
		return nil, err
	}
	uris := []string{}
	for k, err := range h.feed.Range(ctx, channelName, scope) {
		if err != nil {
			return nil, err
		}
		uris = append(uris, h.ItemURI(channelName, k))
	}
	return uris, nil
}

func (h *Hub) Get(ctx context.Context, channelName string, k contentkey.Key) (*model.Item, error) {
	return h.feed.Get(ctx, channelName, k)
}

// Latest returns the URI of the newest item of channel.
func (h *Hub) Latest(ctx context.Context, channelName string) (string, bool, error) {
	if _, err := h.channels.Get(ctx, channelName); err != nil {
		return "", false, err
	}
	k, ok, err := h.feed.Latest(ctx, channelName)
	if err != nil || !ok {
		return "", false, err
	}
	return h.ItemURI(channelName, k), true, nil
}

func (h *Hub) CreateChannel(ctx context.Context, name, description string) (*model.Channel, error) {
	if !model.ValidChannelName(name) {
		return nil, errors.Wrap(ErrInvalidChannel, name)
	}
	ch := &model.Channel{
		Name:        name,
		Description: description,
		Created:     h.now().UTC(),
	}
	if err := h.channels.Create(ctx, ch); err != nil {
		return nil, err
	}
	return ch, nil
}

func (h *Hub) Channel(ctx context.Context, name string) (*model.Channel, error) {
	return h.channels.Get(ctx, name)
}

func (h *Hub) Channels(ctx context.Context) ([]*model.Channel, error) {
	return h.channels.List(ctx)
}

// DeleteChannel removes the channel's webhooks, its items and the registry entry, then
// announces the deletion so gateways drop their live subscribers.
func (h *Hub) DeleteChannel(ctx context.Context, name string) error {
	if _, err := h.channels.Get(ctx, name); err != nil {
		return err
	}
	logger := h.logger.WithField("channel", name)

	var hooks []*webhook.Webhook
	if h.webhooks != nil {
		var err error
		if hooks, err = h.webhooks.List(ctx, name); err != nil {
			return errors.Wrap(err, "unable to list channel webhooks")
		}
	}
	for _, wh := range hooks {
		if err := h.webhooks.Delete(ctx, wh.Name); err != nil && !errors.Is(err, webhook.ErrNotFound) {
			return errors.Wrapf(err, "unable to delete webhook %s", wh.Name)
		}
		if err := h.bus.Publish(ctx, bus.NewWebhookChanged(wh.Name)); err != nil {
			logger.WithError(err).Warn("Failed to publish webhook event")
		}
	}

	lock := h.writeLock(name)
	lock.Lock()
	err := h.feed.DeleteChannel(ctx, name)
	if err == nil {
		err = h.channels.Delete(ctx, name)
	}
	h.assigner.Forget(name)
	lock.Unlock()
	if err != nil && !errors.Is(err, channel.ErrNotFound) {
		return err
	}

	if err := h.bus.Publish(ctx, bus.NewChannelDeleted(name)); err != nil {
		logger.WithError(err).Warn("Failed to publish channel event")
	}
	logger.Info("Channel deleted")
	return nil
}
