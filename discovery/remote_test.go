package discovery

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeySet(t *testing.T) jwk.Set {
	t.Helper()
	set, err := jwk.Parse([]byte(`{"keys":[{"kty":"oct","kid":"k1","k":"c2VjcmV0LXNlY3JldA"}]}`))
	require.NoError(t, err)
	return set
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func countingFetch(t *testing.T, calls *atomic.Int64) FetchFunc {
	t.Helper()
	keys := testKeySet(t)
	return func(ctx context.Context) (*Document, jwk.Set, error) {
		calls.Add(1)
		return &Document{Issuer: "https://idp.example.com"}, keys, nil
	}
}

func TestRemoteManagerFetchesOnFirstUse(t *testing.T) {
	var calls atomic.Int64
	m := NewRemoteManager(countingFetch(t, &calls))

	doc, err := m.Configuration(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://idp.example.com", doc.Issuer)
	assert.EqualValues(t, 1, calls.Load())

	keys, err := m.SigningKeys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, keys.Len())

	// Fresh snapshot, no second fetch.
	assert.EqualValues(t, 1, calls.Load())
}

func TestRemoteManagerServesStaleDuringRefresh(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}
	var calls atomic.Int64
	m := NewRemoteManager(countingFetch(t, &calls),
		WithClock(clock.Now),
		WithRefreshInterval(time.Hour),
		WithMaxStaleness(24*time.Hour))

	_, err := m.Configuration(context.Background())
	require.NoError(t, err)

	// Past the refresh interval but inside the staleness cap: the stale
	// snapshot is returned immediately and a refresh runs in the background.
	clock.Advance(2 * time.Hour)
	doc, err := m.Configuration(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://idp.example.com", doc.Issuer)

	assert.Eventually(t, func() bool {
		return calls.Load() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestRemoteManagerBlocksPastStalenessCap(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}
	var calls atomic.Int64
	m := NewRemoteManager(countingFetch(t, &calls),
		WithClock(clock.Now),
		WithRefreshInterval(time.Hour),
		WithMaxStaleness(24*time.Hour))

	_, err := m.Configuration(context.Background())
	require.NoError(t, err)

	clock.Advance(48 * time.Hour)
	_, err = m.Configuration(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestRemoteManagerPropagatesFetchError(t *testing.T) {
	m := NewRemoteManager(func(ctx context.Context) (*Document, jwk.Set, error) {
		return nil, nil, assert.AnError
	})

	_, err := m.Configuration(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestRemoteManagerDeduplicatesConcurrentFetches(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int64
	keys := testKeySet(t)
	m := NewRemoteManager(func(ctx context.Context) (*Document, jwk.Set, error) {
		calls.Add(1)
		<-release
		return &Document{Issuer: "https://idp.example.com"}, keys, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Configuration(context.Background())
			assert.NoError(t, err)
		}()
	}

	// Give the goroutines time to pile onto the shared fetch.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
}

func TestRemoteManagerBacksOffAfterFailedRefresh(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}
	var calls atomic.Int64
	keys := testKeySet(t)
	m := NewRemoteManager(func(ctx context.Context) (*Document, jwk.Set, error) {
		if calls.Add(1) > 1 {
			return nil, nil, assert.AnError
		}
		return &Document{Issuer: "https://idp.example.com"}, keys, nil
	},
		WithClock(clock.Now),
		WithRefreshInterval(time.Hour),
		WithMaxStaleness(100*24*time.Hour))

	_, err := m.Configuration(context.Background())
	require.NoError(t, err)

	// First stale read triggers a background refresh, which fails.
	clock.Advance(2 * time.Hour)
	_, err = m.Configuration(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return calls.Load() == 2
	}, time.Second, 5*time.Millisecond)

	// The clock has not reached the retry time, so further stale reads do
	// not re-trigger the fetch.
	for i := 0; i < 5; i++ {
		_, err = m.Configuration(context.Background())
		require.NoError(t, err)
	}
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 2, calls.Load())
}

func TestRemoteManagerRefreshForcesFetch(t *testing.T) {
	var calls atomic.Int64
	m := NewRemoteManager(countingFetch(t, &calls))

	_, err := m.Configuration(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.Refresh(context.Background()))
	assert.EqualValues(t, 2, calls.Load())
}

func TestStaticManager(t *testing.T) {
	doc := &Document{Issuer: "https://idp.example.com"}
	m := NewStaticManager(doc, nil)

	got, err := m.Configuration(context.Background())
	require.NoError(t, err)
	assert.Same(t, doc, got)

	_, err = m.SigningKeys(context.Background())
	assert.ErrorIs(t, err, ErrNoSigningKeys)

	withKeys := NewStaticManager(doc, testKeySet(t))
	keys, err := withKeys.SigningKeys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, keys.Len())
}
