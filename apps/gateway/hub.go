package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mahaj/channel-hub/pkg/bus"
	"github.com/mahaj/channel-hub/pkg/channel"
	"github.com/mahaj/channel-hub/pkg/live"
)

const presenceTimeout = 2 * time.Second

// fanout pushes bus events to the listeners connected to this gateway.
type fanout struct {
	live   *live.Registry
	logger logrus.FieldLogger
}

func newFanout(registry *live.Registry, logger logrus.FieldLogger) *fanout {
	return &fanout{
		live:   registry,
		logger: logger,
	}
}

func (f *fanout) handle(ctx context.Context, e bus.Event) {
	switch e.Type {
	case bus.ItemAppended:
		k, err := e.ItemKey()
		if err != nil {
			f.logger.WithError(err).Warn("Ignoring item event with a bad key")
			return
		}
		f.live.Publish(e.Channel, k, e.URI)
	case bus.ChannelDeleted:
		f.live.CloseChannel(e.Channel)
	}
}

// presenceHooks mirror local subscriptions into the shared presence sets.
func presenceHooks(p channel.Presence, logger logrus.FieldLogger) (func(string, uuid.UUID), func(string, uuid.UUID)) {
	join := func(channelName string, id uuid.UUID) {
		ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
		defer cancel()
		if err := p.Join(ctx, channelName, id.String()); err != nil {
			logger.WithError(err).WithField("channel", channelName).Warn("Failed to set presence")
		}
	}
	leave := func(channelName string, id uuid.UUID) {
		ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
		defer cancel()
		if err := p.Leave(ctx, channelName, id.String()); err != nil {
			logger.WithError(err).WithField("channel", channelName).Warn("Failed to delete presence")
		}
	}
	return join, leave
}
