// Package channel keeps the registry of named channels and who is listening to them.
package channel

import (
	"context"

	"github.com/pkg/errors"

	"github.com/mahaj/channel-hub/pkg/model"
)

var (
	ErrNotFound = errors.New("channel not found")
	ErrExists   = errors.New("channel exists")
)

type Store interface {
	Create(ctx context.Context, ch *model.Channel) error
	Get(ctx context.Context, name string) (*model.Channel, error)
	// List returns all channels ordered by name.
	List(ctx context.Context) ([]*model.Channel, error)
	Delete(ctx context.Context, name string) error
}

// Presence tracks the live listeners of each channel across gateways.
type Presence interface {
	Join(ctx context.Context, channel, listener string) error
	Leave(ctx context.Context, channel, listener string) error
	Listeners(ctx context.Context, channel string) ([]string, error)
	Clear(ctx context.Context, channel string) error
}
