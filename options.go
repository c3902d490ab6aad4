package passage

import (
	"net/http"
	"time"

	"github.com/dpup/passage/flows"
	"github.com/dpup/passage/logging"
	"github.com/dpup/passage/pipeline"
	"github.com/dpup/passage/registry"
)

// Option customizes the construction of a Passage instance.
type Option func(*builder)

// WithRegistration adds a provider registration. The registration is
// validated and normalized during New; it must not be mutated afterwards.
func WithRegistration(r *registry.Registration) Option {
	return func(b *builder) {
		b.registrations = append(b.registrations, r)
	}
}

// WithHandlers registers additional handler descriptors alongside the
// built-in catalog. Host descriptors customize behavior through ordering and
// filters; they never replace the catalog wholesale.
func WithHandlers(ds ...pipeline.Descriptor) Option {
	return func(b *builder) {
		b.handlers = append(b.handlers, ds...)
	}
}

// WithHTTPClient overrides the HTTP client used for all provider exchanges.
// When unset, a client with the configured httpTimeout is used.
func WithHTTPClient(client *http.Client) Option {
	return func(b *builder) {
		b.client = client
	}
}

// WithLogger sets the logger threaded through operations.
func WithLogger(log logging.Logger) Option {
	return func(b *builder) {
		b.log = log
	}
}

// WithIntrospection enables the token introspection operation. The
// introspection stages become required at assembly, so a missing handler
// surfaces at startup.
func WithIntrospection() Option {
	return func(b *builder) {
		b.introspection = true
	}
}

// WithRefreshInterval overrides how often remote discovery snapshots are
// refreshed.
func WithRefreshInterval(d time.Duration) Option {
	return func(b *builder) {
		b.refreshInterval = d
	}
}

// WithMaxStaleness overrides how long a stale discovery snapshot may be
// served while refreshes fail.
func WithMaxStaleness(d time.Duration) Option {
	return func(b *builder) {
		b.maxStaleness = d
	}
}

// WithAuthMethod selects how client credentials are presented to token and
// introspection endpoints.
func WithAuthMethod(m flows.AuthMethod) Option {
	return func(b *builder) {
		b.authMethod = m
	}
}
