// Package live tracks connected listeners and pushes new item URIs to them.
//
// Pushes are best effort: every subscription has a bounded queue and excess URIs are dropped for
// that subscriber only. Clients reconcile through range queries.
package live

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mahaj/channel-hub/pkg/contentkey"
)

// ErrSubscriberUnreachable wraps transport failures. The subscription is torn down, never retried.
var ErrSubscriberUnreachable = errors.New("subscriber unreachable")

const DefaultQueueSize = 256

// Transport delivers URIs to one listener. Send is only ever called from a single goroutine.
type Transport interface {
	Send(uri string) error
	Close() error
}

// Config configures a Registry. Zero values are replaced with defaults.
type Config struct {
	QueueSize int
	Logger    logrus.FieldLogger

	// OnSubscribe and OnUnsubscribe are invoked outside of the registry lock, e.g. to mirror
	// presence into an external store.
	OnSubscribe   func(channel string, id uuid.UUID)
	OnUnsubscribe func(channel string, id uuid.UUID)
}

type Registry struct {
	config Config

	mu       sync.RWMutex
	channels map[string]map[uuid.UUID]*subscription

	dropped atomic.Uint64
}

type subscription struct {
	id        uuid.UUID
	channel   string
	scope     contentkey.Scope
	transport Transport
	send      chan string
	done      chan struct{}
	closeOnce sync.Once
}

func NewRegistry(cfg Config) *Registry {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Registry{
		config:   cfg,
		channels: make(map[string]map[uuid.UUID]*subscription),
	}
}

// Handle refers to a subscription by id. Closing it is the only way to unsubscribe.
type Handle struct {
	registry *Registry
	channel  string
	id       uuid.UUID
	done     <-chan struct{}
}

func (h *Handle) ID() uuid.UUID {
	return h.id
}

// Done is closed once the subscription has been removed, whether by Close, a transport failure,
// or deletion of the channel.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Close unsubscribes. It is idempotent.
func (h *Handle) Close() {
	h.registry.remove(h.channel, h.id)
}

// Subscribe registers transport for items of channel that fall inside scope.
func (r *Registry) Subscribe(channel string, scope contentkey.Scope, transport Transport) *Handle {
	sub := &subscription{
		id:        uuid.New(),
		channel:   channel,
		scope:     scope,
		transport: transport,
		send:      make(chan string, r.config.QueueSize),
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	subs, ok := r.channels[channel]
	if !ok {
		subs = make(map[uuid.UUID]*subscription)
		r.channels[channel] = subs
	}
	subs[sub.id] = sub
	r.mu.Unlock()

	r.config.Logger.WithFields(logrus.Fields{
		"channel":      channel,
		"scope":        scope.String(),
		"subscription": sub.id.String(),
	}).Debug("live subscriber registered")
	if r.config.OnSubscribe != nil {
		r.config.OnSubscribe(channel, sub.id)
	}

	go r.pump(sub)

	return &Handle{
		registry: r,
		channel:  channel,
		id:       sub.id,
		done:     sub.done,
	}
}

func (r *Registry) pump(sub *subscription) {
	defer func() {
		if err := sub.transport.Close(); err != nil {
			r.config.Logger.WithField("subscription", sub.id.String()).Debug(errors.Wrap(err, "error closing transport"))
		}
	}()

	for {
		select {
		case uri := <-sub.send:
			if err := sub.transport.Send(uri); err != nil {
				r.config.Logger.WithFields(logrus.Fields{
					"channel":      sub.channel,
					"subscription": sub.id.String(),
				}).Info(errors.Wrap(ErrSubscriberUnreachable, err.Error()))
				r.remove(sub.channel, sub.id)
				return
			}
		case <-sub.done:
			return
		}
	}
}

// Publish pushes uri to every subscription of channel whose scope contains key. It never blocks.
func (r *Registry) Publish(channel string, key contentkey.Key, uri string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, sub := range r.channels[channel] {
		if !sub.scope.Contains(key) {
			continue
		}
		select {
		case sub.send <- uri:
		default:
			r.dropped.Add(1)
			r.config.Logger.WithFields(logrus.Fields{
				"channel":      channel,
				"subscription": sub.id.String(),
			}).Debug("live subscriber queue full, dropping uri")
		}
	}
}

func (r *Registry) remove(channel string, id uuid.UUID) {
	r.mu.Lock()
	sub, ok := r.channels[channel][id]
	if ok {
		delete(r.channels[channel], id)
		if len(r.channels[channel]) == 0 {
			delete(r.channels, channel)
		}
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	r.release(sub)
}

func (r *Registry) release(sub *subscription) {
	sub.closeOnce.Do(func() {
		close(sub.done)
		r.config.Logger.WithFields(logrus.Fields{
			"channel":      sub.channel,
			"subscription": sub.id.String(),
		}).Debug("live subscriber removed")
		if r.config.OnUnsubscribe != nil {
			r.config.OnUnsubscribe(sub.channel, sub.id)
		}
	})
}

// CloseChannel removes every subscription of channel.
func (r *Registry) CloseChannel(channel string) {
	r.mu.Lock()
	subs := r.channels[channel]
	delete(r.channels, channel)
	r.mu.Unlock()

	for _, sub := range subs {
		r.release(sub)
	}
}

// Close removes every subscription.
func (r *Registry) Close() {
	r.mu.Lock()
	channels := r.channels
	r.channels = make(map[string]map[uuid.UUID]*subscription)
	r.mu.Unlock()

	for _, subs := range channels {
		for _, sub := range subs {
			r.release(sub)
		}
	}
}

// Count returns the number of subscriptions on channel.
func (r *Registry) Count(channel string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels[channel])
}

// Dropped returns how many pushes were dropped because a subscriber queue was full.
func (r *Registry) Dropped() uint64 {
	return r.dropped.Load()
}
