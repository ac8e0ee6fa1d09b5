package bus

import (
	"context"
	"sync"
)

// Local is an in-process bus. Publish runs every handler before returning.
type Local struct {
	mu       sync.RWMutex
	handlers map[uint64]Handler
	next     uint64
}

func NewLocal() *Local {
	return &Local{
		handlers: make(map[uint64]Handler),
	}
}

func (l *Local) Publish(ctx context.Context, e Event) error {
	l.mu.RLock()
	handlers := make([]Handler, 0, len(l.handlers))
	for _, h := range l.handlers {
		handlers = append(handlers, h)
	}
	l.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, e)
	}
	return nil
}

// Handle registers h and returns a function that removes it.
func (l *Local) Handle(h Handler) func() {
	l.mu.Lock()
	id := l.next
	l.next++
	l.handlers[id] = h
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.handlers, id)
		l.mu.Unlock()
	}
}

func (l *Local) Subscribe(ctx context.Context, h Handler) error {
	remove := l.Handle(h)
	defer remove()
	<-ctx.Done()
	return nil
}
