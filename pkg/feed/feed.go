// Package feed stores the append-only sequence of items for every channel.
package feed

import (
	"context"
	"iter"

	"github.com/pkg/errors"

	"github.com/mahaj/channel-hub/pkg/contentkey"
	"github.com/mahaj/channel-hub/pkg/model"
)

var (
	// ErrConflict is returned by Append when the item's key is already present in the channel.
	ErrConflict = errors.New("identity conflict")

	// ErrNotFound is returned by Get for a key that is not stored.
	ErrNotFound = errors.New("item not found")

	// ErrUnavailable marks failures of the underlying storage.
	ErrUnavailable = errors.New("storage unavailable")
)

// Feed is the single source of truth for channel contents. Implementations must allow Range and
// TailSince to run concurrently with Append without blocking it, and must never expose a
// partially written item.
type Feed interface {
	// Append records the item at the tail of its channel.
	Append(ctx context.Context, item *model.Item) error

	// Get returns a stored item.
	Get(ctx context.Context, channel string, key contentkey.Key) (*model.Item, error)

	// Range yields the keys within the scope in ascending order. The sequence is lazy and may be
	// iterated more than once; each iteration reads the feed again.
	Range(ctx context.Context, channel string, scope contentkey.Scope) iter.Seq2[contentkey.Key, error]

	// TailSince returns up to limit keys strictly greater than after, in ascending order. The zero
	// key reads from the beginning of the channel. A limit of zero or less means no limit.
	TailSince(ctx context.Context, channel string, after contentkey.Key, limit int) ([]contentkey.Key, error)

	// Latest returns the newest key of the channel, if any.
	Latest(ctx context.Context, channel string) (contentkey.Key, bool, error)

	// DeleteChannel removes every item of the channel.
	DeleteChannel(ctx context.Context, channel string) error
}

// Collect drains a Range sequence into a slice, stopping at the first error.
func Collect(seq iter.Seq2[contentkey.Key, error]) ([]contentkey.Key, error) {
	var keys []contentkey.Key
	for k, err := range seq {
		if err != nil {
			return keys, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

type storageError struct {
	op    string
	cause error
}

func unavailable(cause error, op string) error {
	return &storageError{op: op, cause: cause}
}

func (e *storageError) Error() string {
	return e.op + ": " + ErrUnavailable.Error() + ": " + e.cause.Error()
}

func (e *storageError) Is(target error) bool {
	return target == ErrUnavailable
}

func (e *storageError) Unwrap() error {
	return e.cause
}
