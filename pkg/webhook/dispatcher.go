package webhook

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mahaj/channel-hub/pkg/contentkey"
	"github.com/mahaj/channel-hub/pkg/model"
)

// URLChangePolicy decides what happens to undelivered items when a callback URL changes.
type URLChangePolicy string

const (
	// RetryOnNewURL sends the pending batch to the new URL.
	RetryOnNewURL URLChangePolicy = "retry"
	// SkipOnNewURL moves the cursor to the channel's latest item, dropping the pending backlog.
	SkipOnNewURL URLChangePolicy = "skip"
)

func ParseURLChangePolicy(s string) (URLChangePolicy, error) {
	switch URLChangePolicy(s) {
	case "", RetryOnNewURL:
		return RetryOnNewURL, nil
	case SkipOnNewURL:
		return SkipOnNewURL, nil
	}
	return "", errors.Errorf("unknown url change policy %q", s)
}

type Config struct {
	// BaseURL prefixes item URIs in deliveries.
	BaseURL string

	// MaxBatch is the most URIs sent in one delivery. Defaults to 1.
	MaxBatch int

	// PollInterval is how often an idle or paused worker rechecks without a wake signal.
	PollInterval time.Duration

	// SyncInterval is how often the supervisor reconciles its workers with the store.
	SyncInterval time.Duration

	Backoff         BackoffPolicy
	URLChangePolicy URLChangePolicy
	Logger          logrus.FieldLogger
}

const (
	DefaultPollInterval = time.Second
	DefaultSyncInterval = 5 * time.Second
)

// Supervisor runs one worker per webhook. Workers are indexed by webhook name.
type Supervisor struct {
	store     Store
	tail      Tail
	deliverer Deliverer
	config    Config
	logger    logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	workers map[string]*worker
	nextID  uint64
	closed  bool
}

func NewSupervisor(store Store, tail Tail, deliverer Deliverer, config Config) *Supervisor {
	if config.MaxBatch <= 0 {
		config.MaxBatch = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.SyncInterval <= 0 {
		config.SyncInterval = DefaultSyncInterval
	}
	if config.Backoff == nil {
		config.Backoff = DefaultBackoff()
	}
	if config.URLChangePolicy == "" {
		config.URLChangePolicy = RetryOnNewURL
	}
	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		store:     store,
		tail:      tail,
		deliverer: deliverer,
		config:    config,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		workers:   make(map[string]*worker),
	}
}

// Run reconciles workers with the store every SyncInterval until ctx is done, then stops all
// workers.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.Close()

	if err := s.Sync(ctx); err != nil {
		s.logger.WithError(err).Error("Initial webhook sync failed")
	}

	ticker := time.NewTicker(s.config.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Sync(ctx); err != nil {
				s.logger.WithError(err).Warn("Webhook sync failed")
			}
		}
	}
}

// Sync starts workers for webhooks that lack one and stops workers whose webhook is gone.
func (s *Supervisor) Sync(ctx context.Context) error {
	hooks, err := s.store.List(ctx, "")
	if err != nil {
		return errors.Wrap(err, "unable to list webhooks")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	seen := make(map[string]struct{}, len(hooks))
	for _, wh := range hooks {
		seen[wh.Name] = struct{}{}
		if w, ok := s.workers[wh.Name]; ok {
			if w.owns(wh) {
				w.setChannel(wh.Channel)
				continue
			}
			s.stopLocked(w)
		}
		s.startLocked(wh)
	}
	for name, w := range s.workers {
		if _, ok := seen[name]; !ok {
			s.stopLocked(w)
		}
	}
	return nil
}

// NotifyWebhookChanged reconciles a single webhook after it was created, updated or deleted
// and wakes its worker.
func (s *Supervisor) NotifyWebhookChanged(ctx context.Context, name string) error {
	wh, err := s.store.Get(ctx, name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	w, running := s.workers[name]
	switch {
	case wh == nil:
		if running {
			s.stopLocked(w)
		}
	case !running:
		s.startLocked(wh)
	case !w.owns(wh):
		// Deleted and registered again under the same name: the old worker's batch is not the
		// new webhook's to deliver.
		s.stopLocked(w)
		s.startLocked(wh)
	default:
		w.setChannel(wh.Channel)
		w.signal()
	}
	return nil
}

// NotifyAppend wakes the workers of channel.
func (s *Supervisor) NotifyAppend(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.workers {
		if w.getChannel() == channel {
			w.signal()
		}
	}
}

// NotifyChannelDeleted stops the workers of a deleted channel's webhooks on their next check.
func (s *Supervisor) NotifyChannelDeleted(channel string) {
	s.NotifyAppend(channel)
}

// State reports the current state of a webhook's worker.
func (s *Supervisor) State(name string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[name]
	if !ok {
		return StateDeleted, false
	}
	return w.getState(), true
}

// Workers returns the names of webhooks with a running worker.
func (s *Supervisor) Workers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]string, 0, len(s.workers))
	for name := range s.workers {
		ret = append(ret, name)
	}
	return ret
}

// Close stops all workers and waits for them to exit. An in-flight delivery is abandoned and
// will be retried after restart since its cursor did not move.
func (s *Supervisor) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		for _, w := range s.workers {
			s.stopLocked(w)
		}
	}
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

func (s *Supervisor) startLocked(wh *Webhook) {
	s.nextID++
	w := newWorker(s, s.nextID, wh)
	s.workers[wh.Name] = w
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		w.run(s.ctx)
		s.exited(w)
	}()
	s.logger.WithFields(logrus.Fields{
		"webhook": wh.Name,
		"channel": wh.Channel,
	}).Info("Started webhook worker")
}

func (s *Supervisor) stopLocked(w *worker) {
	delete(s.workers, w.name)
	w.halt()
}

// exited removes a worker that stopped on its own, unless it was already replaced.
func (s *Supervisor) exited(w *worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.workers[w.name]; ok && cur.id == w.id {
		delete(s.workers, w.name)
	}
}

func (s *Supervisor) itemURIs(channel string, keys []contentkey.Key) []string {
	uris := make([]string, len(keys))
	for i, k := range keys {
		uris[i] = model.ItemURI(s.config.BaseURL, channel, k)
	}
	return uris
}
