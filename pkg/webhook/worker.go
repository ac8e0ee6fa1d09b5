package webhook

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mahaj/channel-hub/pkg/contentkey"
)

type State int

const (
	StateIdle State = iota
	StateDelivering
	StateRetrying
	StatePaused
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDelivering:
		return "delivering"
	case StateRetrying:
		return "retrying"
	case StatePaused:
		return "paused"
	case StateDeleted:
		return "deleted"
	}
	return "unknown"
}

type worker struct {
	s    *Supervisor
	id   uint64
	name string

	// created tells this webhook apart from a later one registered under the same name.
	created time.Time

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	channel string
	state   State
}

func newWorker(s *Supervisor, id uint64, wh *Webhook) *worker {
	return &worker{
		s:       s,
		id:      id,
		name:    wh.Name,
		created: wh.Created,
		channel: wh.Channel,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
}

func (w *worker) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *worker) halt() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
}

func (w *worker) setChannel(channel string) {
	w.mu.Lock()
	w.channel = channel
	w.mu.Unlock()
}

func (w *worker) getChannel() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.channel
}

func (w *worker) setState(state State) {
	w.mu.Lock()
	w.state = state
	w.mu.Unlock()
}

func (w *worker) getState() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// wait blocks until a wake signal or the poll interval. It returns false once the worker must
// stop.
func (w *worker) wait(ctx context.Context) bool {
	timer := time.NewTimer(w.s.config.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-w.stop:
		return false
	case <-w.wake:
		return true
	case <-timer.C:
		return true
	}
}

// sleep waits out d. Wake signals do not cut it short.
func (w *worker) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-w.stop:
		return false
	case <-timer.C:
		return true
	}
}

func (w *worker) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-w.stop:
		return true
	default:
		return false
	}
}

// owns reports whether wh is the webhook this worker was started for.
func (w *worker) owns(wh *Webhook) bool {
	return wh.Created.Equal(w.created)
}

// load reads the worker's webhook. A webhook deleted and recreated under the same name reads
// as ErrNotFound.
func (w *worker) load(ctx context.Context) (*Webhook, error) {
	wh, err := w.s.store.Get(ctx, w.name)
	if err != nil {
		return nil, err
	}
	if !w.owns(wh) {
		return nil, errors.Wrapf(ErrNotFound, "%s was recreated", w.name)
	}
	return wh, nil
}

func (w *worker) run(ctx context.Context) {
	logger := w.s.logger.WithField("webhook", w.name)
	var lastURL string

	for !w.stopped(ctx) {
		wh, err := w.load(ctx)
		if errors.Is(err, ErrNotFound) {
			w.setState(StateDeleted)
			logger.Info("Webhook deleted, stopping worker")
			return
		}
		if err != nil {
			logger.WithError(err).Warn("Unable to read webhook")
			if !w.wait(ctx) {
				return
			}
			continue
		}
		w.setChannel(wh.Channel)

		if wh.Paused {
			w.setState(StatePaused)
			if !w.wait(ctx) {
				return
			}
			continue
		}

		if lastURL != "" && lastURL != wh.CallbackURL && w.s.config.URLChangePolicy == SkipOnNewURL {
			if err := w.skipToLatest(ctx, wh, logger); err != nil {
				logger.WithError(err).Warn("Unable to skip backlog after callback change")
				if !w.wait(ctx) {
					return
				}
				continue
			}
		}
		lastURL = wh.CallbackURL

		keys, err := w.s.tail.TailSince(ctx, wh.Channel, wh.Cursor, w.s.config.MaxBatch)
		if err != nil {
			logger.WithError(err).Warn("Unable to read channel tail")
			if !w.wait(ctx) {
				return
			}
			continue
		}
		if len(keys) == 0 {
			w.setState(StateIdle)
			if !w.wait(ctx) {
				return
			}
			continue
		}

		if !w.deliver(ctx, wh, keys, logger) {
			return
		}
	}
}

// deliver sends one batch until it succeeds and the cursor is advanced past it, or until the
// webhook is paused, deleted or redirected under the skip policy. It returns false when the
// worker must exit.
func (w *worker) deliver(ctx context.Context, wh *Webhook, keys []contentkey.Key, logger logrus.FieldLogger) bool {
	uris := w.s.itemURIs(wh.Channel, keys)
	last := keys[len(keys)-1]
	logger = logger.WithFields(logrus.Fields{
		"channel": wh.Channel,
		"key":     last.Path(),
	})

	w.setState(StateDelivering)
	retry := w.s.config.Backoff()
	for attempt := 1; ; attempt++ {
		err := w.s.deliverer.Deliver(ctx, wh.CallbackURL, Delivery{
			Name:    wh.Name,
			URIs:    uris,
			Channel: wh.Channel,
			Secret:  wh.Secret,
		})
		if err == nil {
			return w.advance(ctx, last, logger)
		}

		w.setState(StateRetrying)
		delay := retry.NextBackOff()
		logger.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"retry":   delay,
		}).Warn("Delivery failed")
		if !w.sleep(ctx, delay) {
			return false
		}

		current, err := w.load(ctx)
		if errors.Is(err, ErrNotFound) {
			w.setState(StateDeleted)
			logger.Info("Webhook deleted during retry, stopping worker")
			return false
		}
		if err != nil {
			logger.WithError(err).Warn("Unable to reread webhook, retrying with previous settings")
			continue
		}
		if current.Paused || current.Channel != wh.Channel {
			return true
		}
		if current.CallbackURL != wh.CallbackURL && w.s.config.URLChangePolicy == SkipOnNewURL {
			return true
		}
		wh = current
	}
}

// advance records a delivered batch. Storage errors are retried so the next batch never
// overlaps this one.
func (w *worker) advance(ctx context.Context, to contentkey.Key, logger logrus.FieldLogger) bool {
	retry := w.s.config.Backoff()
	for {
		_, err := w.load(ctx)
		if err == nil {
			_, err = w.s.store.AdvanceCursor(ctx, w.name, to)
		}
		if err == nil {
			logger.Debug("Delivered")
			return true
		}
		if errors.Is(err, ErrNotFound) {
			w.setState(StateDeleted)
			return false
		}
		logger.WithError(err).Warn("Unable to advance cursor")
		if !w.sleep(ctx, retry.NextBackOff()) {
			return false
		}
	}
}

func (w *worker) skipToLatest(ctx context.Context, wh *Webhook, logger logrus.FieldLogger) error {
	latest, ok, err := w.s.tail.Latest(ctx, wh.Channel)
	if err != nil {
		return err
	}
	if !ok || !wh.Cursor.Less(latest) {
		return nil
	}
	if _, err := w.s.store.AdvanceCursor(ctx, wh.Name, latest); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"from": wh.Cursor.Path(),
		"to":   latest.Path(),
	}).Info("Callback changed, skipped undelivered items")
	wh.Cursor = latest
	return nil
}
