package feed

import (
	"context"
	"iter"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/mahaj/channel-hub/pkg/contentkey"
	"github.com/mahaj/channel-hub/pkg/model"
)

// Memory is an in-process Feed. It is used by tests and by single-node development setups.
type Memory struct {
	mu       sync.RWMutex
	channels map[string]*memoryLog
}

type memoryLog struct {
	mu    sync.RWMutex
	items []*model.Item
}

func NewMemory() *Memory {
	return &Memory{
		channels: make(map[string]*memoryLog),
	}
}

func (m *Memory) log(channel string, create bool) *memoryLog {
	m.mu.RLock()
	l, ok := m.channels[channel]
	m.mu.RUnlock()
	if ok || !create {
		return l
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok = m.channels[channel]; !ok {
		l = &memoryLog{}
		m.channels[channel] = l
	}
	return l
}

// search returns the index of the first item whose key is not less than k.
func (l *memoryLog) search(k contentkey.Key) int {
	return sort.Search(len(l.items), func(i int) bool {
		return !l.items[i].Key.Less(k)
	})
}

func (m *Memory) Append(ctx context.Context, item *model.Item) error {
	stored := *item
	stored.Content = append([]byte(nil), item.Content...)

	l := m.log(item.Channel, true)
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.search(item.Key)
	if i < len(l.items) && l.items[i].Key.Equal(item.Key) {
		return errors.Wrapf(ErrConflict, "%s/%s", item.Channel, item.Key)
	}
	if i == len(l.items) {
		l.items = append(l.items, &stored)
		return nil
	}
	l.items = append(l.items, nil)
	copy(l.items[i+1:], l.items[i:])
	l.items[i] = &stored
	return nil
}

func (m *Memory) Get(ctx context.Context, channel string, key contentkey.Key) (*model.Item, error) {
	l := m.log(channel, false)
	if l == nil {
		return nil, errors.Wrapf(ErrNotFound, "%s/%s", channel, key)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	i := l.search(key)
	if i == len(l.items) || !l.items[i].Key.Equal(key) {
		return nil, errors.Wrapf(ErrNotFound, "%s/%s", channel, key)
	}
	item := *l.items[i]
	return &item, nil
}

// snapshot copies the keys in [from, to) while holding the read lock only for the copy.
func (l *memoryLog) snapshot(scope contentkey.Scope) []contentkey.Key {
	l.mu.RLock()
	defer l.mu.RUnlock()

	start, end := 0, len(l.items)
	if from, to, bounded := scope.Bounds(); bounded {
		start = l.search(contentkey.Key{Time: from})
		end = l.search(contentkey.Key{Time: to})
	}
	keys := make([]contentkey.Key, 0, end-start)
	for _, item := range l.items[start:end] {
		if scope.Contains(item.Key) {
			keys = append(keys, item.Key)
		}
	}
	return keys
}

func (m *Memory) Range(ctx context.Context, channel string, scope contentkey.Scope) iter.Seq2[contentkey.Key, error] {
	return func(yield func(contentkey.Key, error) bool) {
		l := m.log(channel, false)
		if l == nil {
			return
		}
		for _, k := range l.snapshot(scope) {
			if err := ctx.Err(); err != nil {
				yield(contentkey.Key{}, err)
				return
			}
			if !yield(k, nil) {
				return
			}
		}
	}
}

func (m *Memory) TailSince(ctx context.Context, channel string, after contentkey.Key, limit int) ([]contentkey.Key, error) {
	l := m.log(channel, false)
	if l == nil {
		return nil, nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	i := 0
	if !after.IsZero() {
		i = l.search(after)
		if i < len(l.items) && l.items[i].Key.Equal(after) {
			i++
		}
	}
	var keys []contentkey.Key
	for ; i < len(l.items); i++ {
		if limit > 0 && len(keys) == limit {
			break
		}
		keys = append(keys, l.items[i].Key)
	}
	return keys, nil
}

func (m *Memory) Latest(ctx context.Context, channel string) (contentkey.Key, bool, error) {
	l := m.log(channel, false)
	if l == nil {
		return contentkey.Key{}, false, nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.items) == 0 {
		return contentkey.Key{}, false, nil
	}
	return l.items[len(l.items)-1].Key, true, nil
}

func (m *Memory) DeleteChannel(ctx context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, channel)
	return nil
}
