package apps

import (
	"context"
	"sync"

	"github.com/dpup/passage"
	"github.com/dpup/passage/errors"
	"github.com/dpup/passage/internal/config"
	"github.com/dpup/passage/logging"
	"github.com/dpup/passage/secrets"
	"github.com/dpup/passage/storage"
	"github.com/google/uuid"
)

// Manager persists applications through a storage.Store, validating every
// write. An optional read-through cache serves lookups by id and client id;
// reads racing a concurrent write may observe the previous version, never a
// partial one.
type Manager struct {
	store  storage.Store
	hasher secrets.Hasher
	log    logging.Logger

	cacheEnabled bool
	mu           sync.RWMutex
	byID         map[string]*Application
	byClientID   map[string]*Application
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithHasher overrides the secret hasher.
func WithHasher(h secrets.Hasher) ManagerOption {
	return func(m *Manager) {
		m.hasher = h
	}
}

// WithLogger sets the manager's logger.
func WithLogger(log logging.Logger) ManagerOption {
	return func(m *Manager) {
		m.log = log
	}
}

// WithCache enables or disables the read-through cache.
func WithCache(enabled bool) ManagerOption {
	return func(m *Manager) {
		m.cacheEnabled = enabled
	}
}

// NewManager returns a Manager over the given store. The cache defaults to
// the `apps.cacheEnabled` config key; WithCache overrides it.
func NewManager(store storage.Store, opts ...ManagerOption) *Manager {
	config.EnsureDefaultsLoaded(passage.Config)
	m := &Manager{
		store:        store,
		hasher:       secrets.DefaultHasher,
		log:          logging.Noop(),
		cacheEnabled: passage.Config.Bool("apps.cacheEnabled"),
		byID:         map[string]*Application{},
		byClientID:   map[string]*Application{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create validates and persists a new application. A missing ID is assigned.
// A non-empty ClientSecret is treated as plaintext and hashed before the
// record is written.
func (m *Manager) Create(ctx context.Context, app *Application) error {
	if findings := ValidateApplication(app); len(findings) > 0 {
		return FindingsError(findings)
	}
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.ClientSecret != "" {
		envelope, err := m.hasher.Hash(app.ClientSecret)
		if err != nil {
			return err
		}
		app.ClientSecret = envelope
	}

	if err := m.store.Create(app); err != nil {
		return err
	}
	m.cachePut(app)
	logging.Track(ctx, "appCreated", app.ID)
	return nil
}

// Update validates and persists changes to an existing application. The
// ClientSecret field is written as-is; use UpdateSecret to rotate a secret.
func (m *Manager) Update(ctx context.Context, app *Application) error {
	if findings := ValidateApplication(app); len(findings) > 0 {
		return FindingsError(findings)
	}
	if err := m.store.Update(app); err != nil {
		return err
	}
	m.cachePut(app)
	return nil
}

// UpdateSecret hashes and stores a new client secret for an application.
func (m *Manager) UpdateSecret(ctx context.Context, id, secret string) error {
	app, err := m.FindByID(ctx, id)
	if err != nil {
		return err
	}
	envelope, err := m.hasher.Hash(secret)
	if err != nil {
		return err
	}
	app.ClientSecret = envelope
	return m.Update(ctx, app)
}

// Delete removes an application.
func (m *Manager) Delete(ctx context.Context, id string) error {
	app, err := m.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := m.store.Delete(&Application{ID: id}); err != nil {
		return err
	}
	m.cacheEvict(app)
	return nil
}

// FindByID returns the application with the given id.
func (m *Manager) FindByID(ctx context.Context, id string) (*Application, error) {
	if app, ok := m.cacheGet(m.byID, id); ok {
		return app, nil
	}
	var app Application
	if err := m.store.Read(id, &app); err != nil {
		return nil, err
	}
	m.cachePut(&app)
	return app.clone(), nil
}

// FindByClientID returns the application registered under the given client
// id.
func (m *Manager) FindByClientID(ctx context.Context, clientID string) (*Application, error) {
	if app, ok := m.cacheGet(m.byClientID, clientID); ok {
		return app, nil
	}
	var matches []*Application
	if err := m.store.List(&matches, &Application{ClientID: clientID}); err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, errors.Mark(storage.ErrNotFound, 0)
	}
	m.cachePut(matches[0])
	return matches[0].clone(), nil
}

// List returns all registered applications.
func (m *Manager) List(ctx context.Context) ([]*Application, error) {
	var all []*Application
	if err := m.store.List(&all, &Application{}); err != nil {
		return nil, err
	}
	return all, nil
}

// ValidateClientSecret reports whether the supplied plaintext secret matches
// the application's stored envelope. Verification failures are not errors.
func (m *Manager) ValidateClientSecret(ctx context.Context, app *Application, secret string) bool {
	if app.ClientSecret == "" {
		return false
	}
	ok := m.hasher.Verify(secret, app.ClientSecret)
	if !ok {
		m.log.Infow("client secret verification failed", "clientID", app.ClientID)
	}
	return ok
}

// ValidateRedirectURI reports whether the supplied redirect URI matches one
// of the application's registered URIs, applying the relaxed loopback rule
// for native applications.
func (m *Manager) ValidateRedirectURI(app *Application, supplied string) bool {
	for _, registered := range app.RedirectURIs {
		if MatchRedirectURI(supplied, registered, app.Native()) {
			return true
		}
	}
	m.log.Infow("redirect uri rejected", "clientID", app.ClientID, "uri", supplied)
	return false
}

func (m *Manager) cacheGet(index map[string]*Application, key string) (*Application, bool) {
	if !m.cacheEnabled {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if app, ok := index[key]; ok {
		return app.clone(), true
	}
	return nil, false
}

func (m *Manager) cachePut(app *Application) {
	if !m.cacheEnabled {
		return
	}
	c := app.clone()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[c.ID] = c
	m.byClientID[c.ClientID] = c
}

func (m *Manager) cacheEvict(app *Application) {
	if !m.cacheEnabled {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, app.ID)
	delete(m.byClientID, app.ClientID)
}
