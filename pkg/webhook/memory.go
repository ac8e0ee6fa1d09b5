package webhook

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/mahaj/channel-hub/pkg/contentkey"
)

// Memory is an in-process Store.
type Memory struct {
	mu       sync.RWMutex
	webhooks map[string]*Webhook
}

func NewMemory() *Memory {
	return &Memory{
		webhooks: make(map[string]*Webhook),
	}
}

func (m *Memory) Create(ctx context.Context, wh *Webhook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.webhooks[wh.Name]; ok {
		return errors.Wrap(ErrExists, wh.Name)
	}
	stored := *wh
	if stored.Created.IsZero() {
		stored.Created = time.Now().UTC()
	}
	m.webhooks[wh.Name] = &stored
	return nil
}

func (m *Memory) Update(ctx context.Context, name string, update Update) (*Webhook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wh, ok := m.webhooks[name]
	if !ok {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	update.apply(wh)
	ret := *wh
	return &ret, nil
}

func (m *Memory) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.webhooks[name]; !ok {
		return errors.Wrap(ErrNotFound, name)
	}
	delete(m.webhooks, name)
	return nil
}

func (m *Memory) Get(ctx context.Context, name string) (*Webhook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wh, ok := m.webhooks[name]
	if !ok {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	ret := *wh
	return &ret, nil
}

func (m *Memory) List(ctx context.Context, channel string) ([]*Webhook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ret []*Webhook
	for _, wh := range m.webhooks {
		if channel == "" || wh.Channel == channel {
			cp := *wh
			ret = append(ret, &cp)
		}
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].Name < ret[j].Name
	})
	return ret, nil
}

func (m *Memory) AdvanceCursor(ctx context.Context, name string, to contentkey.Key) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wh, ok := m.webhooks[name]
	if !ok {
		return false, errors.Wrap(ErrNotFound, name)
	}
	if !wh.Cursor.Less(to) {
		return false, nil
	}
	wh.Cursor = to
	return true, nil
}
