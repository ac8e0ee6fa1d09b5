package contentkey

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// LatestFunc returns the newest key already stored in a channel, if any. The assigner uses it to
// seed a channel the first time it is seen so that a restarted process never reissues a key.
type LatestFunc func(ctx context.Context, channel string) (Key, bool, error)

// Assigner hands out strictly increasing keys per channel.
type Assigner struct {
	mu     sync.Mutex
	last   map[string]Key
	latest LatestFunc
	now    func() time.Time
}

func NewAssigner(latest LatestFunc) *Assigner {
	return &Assigner{
		last:   make(map[string]Key),
		latest: latest,
		now:    time.Now,
	}
}

// Assign returns the next key for the channel. Keys issued within the same second share the
// time and carry increasing sequences in the order Assign was called.
func (a *Assigner) Assign(ctx context.Context, channel string) (Key, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	last, ok := a.last[channel]
	if !ok && a.latest != nil {
		stored, found, err := a.latest(ctx, channel)
		if err != nil {
			return Key{}, errors.Wrapf(err, "unable to seed keys for channel %s", channel)
		}
		if found {
			last, ok = stored, true
		}
	}

	now := a.now().UTC().Truncate(time.Second)
	next := Key{Time: now}
	if ok {
		if now.Before(last.Time) {
			// Clock moved backwards, stay on the last issued second
			now = last.Time
		}
		if now.Equal(last.Time) {
			next = Key{Time: now, Seq: last.Seq + 1}
		} else {
			next = Key{Time: now}
		}
	}

	a.last[channel] = next
	return next, nil
}

// Forget drops the state of a deleted channel.
func (a *Assigner) Forget(channel string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.last, channel)
}
