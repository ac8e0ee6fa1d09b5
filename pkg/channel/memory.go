package channel

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/mahaj/channel-hub/pkg/model"
)

type Memory struct {
	mu        sync.RWMutex
	channels  map[string]*model.Channel
	listeners map[string]map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		channels:  make(map[string]*model.Channel),
		listeners: make(map[string]map[string]struct{}),
	}
}

func (m *Memory) Create(ctx context.Context, ch *model.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[ch.Name]; ok {
		return errors.Wrap(ErrExists, ch.Name)
	}
	stored := *ch
	m.channels[ch.Name] = &stored
	return nil
}

func (m *Memory) Get(ctx context.Context, name string) (*model.Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	if !ok {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	ret := *ch
	return &ret, nil
}

func (m *Memory) List(ctx context.Context) ([]*model.Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ret := make([]*model.Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		cp := *ch
		ret = append(ret, &cp)
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].Name < ret[j].Name
	})
	return ret, nil
}

func (m *Memory) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[name]; !ok {
		return errors.Wrap(ErrNotFound, name)
	}
	delete(m.channels, name)
	delete(m.listeners, name)
	return nil
}

func (m *Memory) Join(ctx context.Context, channel, listener string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.listeners[channel]
	if !ok {
		set = make(map[string]struct{})
		m.listeners[channel] = set
	}
	set[listener] = struct{}{}
	return nil
}

func (m *Memory) Leave(ctx context.Context, channel, listener string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.listeners[channel]; ok {
		delete(set, listener)
		if len(set) == 0 {
			delete(m.listeners, channel)
		}
	}
	return nil
}

func (m *Memory) Listeners(ctx context.Context, channel string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ret := make([]string, 0, len(m.listeners[channel]))
	for l := range m.listeners[channel] {
		ret = append(ret, l)
	}
	sort.Strings(ret)
	return ret, nil
}

func (m *Memory) Clear(ctx context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, channel)
	return nil
}
