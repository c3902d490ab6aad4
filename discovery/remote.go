package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dpup/passage/logging"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"golang.org/x/sync/singleflight"
)

// Defaults for snapshot lifetimes, overridable per manager.
const (
	DefaultRefreshInterval = 24 * time.Hour
	DefaultMaxStaleness    = 7 * 24 * time.Hour
)

// FetchFunc retrieves a provider's configuration document and key set. The
// pipeline operations supply this so fetching goes through the assembled
// handler plan rather than a second HTTP path.
type FetchFunc func(ctx context.Context) (*Document, jwk.Set, error)

// RemoteManager caches discovery metadata fetched through a FetchFunc.
//
// A snapshot younger than the refresh interval is served as-is. An older
// snapshot is still served, up to the staleness cap, while a background
// refresh runs; callers never block on a refresh when valid data exists. At
// most one refresh is in flight at a time, and a failed refresh is not
// retried until a backoff interval has passed. Only when no snapshot exists,
// or the snapshot has exceeded the staleness cap, does a caller block on the
// fetch, and then it makes a single attempt.
type RemoteManager struct {
	fetch           FetchFunc
	refreshInterval time.Duration
	maxStaleness    time.Duration
	log             logging.Logger
	clock           func() time.Time

	group singleflight.Group

	mu         sync.RWMutex
	doc        *Document
	keys       jwk.Set
	fetchedAt  time.Time
	retryAfter time.Time
	bo         *backoff.ExponentialBackOff
}

// RemoteOption configures a RemoteManager.
type RemoteOption func(*RemoteManager)

// WithRefreshInterval sets how long a snapshot is served without triggering a
// background refresh.
func WithRefreshInterval(d time.Duration) RemoteOption {
	return func(m *RemoteManager) {
		m.refreshInterval = d
	}
}

// WithMaxStaleness sets how old a snapshot may grow before callers block on a
// fresh fetch instead of being served stale data.
func WithMaxStaleness(d time.Duration) RemoteOption {
	return func(m *RemoteManager) {
		m.maxStaleness = d
	}
}

// WithLogger sets the logger used for refresh outcomes.
func WithLogger(log logging.Logger) RemoteOption {
	return func(m *RemoteManager) {
		m.log = log
	}
}

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) RemoteOption {
	return func(m *RemoteManager) {
		m.clock = clock
	}
}

// NewRemoteManager returns a Manager that fetches through fetch.
func NewRemoteManager(fetch FetchFunc, opts ...RemoteOption) *RemoteManager {
	m := &RemoteManager{
		fetch:           fetch,
		refreshInterval: DefaultRefreshInterval,
		maxStaleness:    DefaultMaxStaleness,
		log:             logging.Noop(),
		clock:           time.Now,
		bo:              backoff.NewExponentialBackOff(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *RemoteManager) Configuration(ctx context.Context) (*Document, error) {
	doc, _, err := m.current(ctx)
	return doc, err
}

func (m *RemoteManager) SigningKeys(ctx context.Context) (jwk.Set, error) {
	_, keys, err := m.current(ctx)
	if err != nil {
		return nil, err
	}
	if keys == nil {
		return nil, ErrNoSigningKeys
	}
	return keys, nil
}

// Refresh forces a fetch, bypassing the refresh interval. Concurrent calls
// share a single fetch.
func (m *RemoteManager) Refresh(ctx context.Context) error {
	_, err, _ := m.group.Do("refresh", func() (any, error) {
		return nil, m.doFetch(ctx)
	})
	return err
}

func (m *RemoteManager) current(ctx context.Context) (*Document, jwk.Set, error) {
	m.mu.RLock()
	doc, keys, fetchedAt := m.doc, m.keys, m.fetchedAt
	m.mu.RUnlock()

	age := m.clock().Sub(fetchedAt)
	switch {
	case doc != nil && age < m.refreshInterval:
		return doc, keys, nil

	case doc != nil && age < m.maxStaleness:
		m.refreshAsync(ctx)
		return doc, keys, nil
	}

	// No usable snapshot. Block for a single fetch attempt; concurrent
	// callers share it.
	_, err, _ := m.group.Do("refresh", func() (any, error) {
		// Another caller may have landed a snapshot while this one waited.
		m.mu.RLock()
		if m.doc != nil && m.clock().Sub(m.fetchedAt) < m.maxStaleness {
			m.mu.RUnlock()
			return nil, nil
		}
		m.mu.RUnlock()
		return nil, m.doFetch(ctx)
	})
	if err != nil {
		return nil, nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.doc, m.keys, nil
}

// refreshAsync starts a background refresh unless one is in flight or the
// last failure's backoff interval has not yet elapsed. The refresh uses a
// detached context so that it outlives the caller that triggered it.
func (m *RemoteManager) refreshAsync(ctx context.Context) {
	m.mu.RLock()
	gated := m.clock().Before(m.retryAfter)
	m.mu.RUnlock()
	if gated {
		return
	}

	detached := context.WithoutCancel(ctx)
	m.group.DoChan("refresh", func() (any, error) {
		if err := m.doFetch(detached); err != nil {
			m.log.Infow("background discovery refresh failed", "error", err)
		}
		return nil, nil
	})
}

func (m *RemoteManager) doFetch(ctx context.Context) error {
	doc, keys, err := m.fetch(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.retryAfter = m.clock().Add(m.bo.NextBackOff())
		return err
	}

	m.doc = doc
	m.keys = keys
	m.fetchedAt = m.clock()
	m.retryAfter = time.Time{}
	m.bo.Reset()
	m.log.Debugw("discovery snapshot refreshed", "issuer", doc.Issuer)
	return nil
}
