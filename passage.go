// Package passage is an OAuth2 and OpenID Connect protocol actor whose
// behavior is assembled at configuration time from a catalog of composable
// handler descriptors. It fetches and caches provider metadata, requests and
// introspects tokens, verifies client secrets and redirect URIs, and
// validates JWTs against a provider's current signing keys.
//
// A Passage instance is built once, from validated registrations and an
// assembled handler plan, and is safe for concurrent use.
package passage

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dpup/passage/discovery"
	"github.com/dpup/passage/errors"
	"github.com/dpup/passage/flows"
	"github.com/dpup/passage/internal/config"
	"github.com/dpup/passage/logging"
	"github.com/dpup/passage/pipeline"
	"github.com/dpup/passage/registry"
	"github.com/dpup/passage/tokens"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"google.golang.org/grpc/codes"
)

type builder struct {
	registrations []*registry.Registration
	handlers      []pipeline.Descriptor
	client        *http.Client
	log           logging.Logger
	introspection bool

	httpTimeout     time.Duration
	refreshInterval time.Duration
	maxStaleness    time.Duration
	sizeLimit       int64
	authMethod      flows.AuthMethod
}

// Passage is the composed protocol actor: an immutable plan, validated
// registrations, and one discovery manager per registration.
type Passage struct {
	log           logging.Logger
	plan          *pipeline.Plan
	ops           *flows.Operations
	introspection bool

	// Keyed by lower-cased registration id; ids are unique
	// case-insensitively.
	registrations map[string]*registry.Registration
	managers      map[string]discovery.Manager
}

// New validates the configured registrations, assembles the handler catalog
// into an executable plan, and wires a discovery manager for every
// registration. Any configuration problem is fatal; nothing is lazily
// validated at request time.
func New(opts ...Option) (*Passage, error) {
	config.EnsureDefaultsLoaded(Config)

	b := &builder{
		log:             logging.Noop(),
		httpTimeout:     Config.Duration("httpTimeout"),
		refreshInterval: Config.Duration("discovery.refreshInterval"),
		maxStaleness:    Config.Duration("discovery.maxStaleness"),
		sizeLimit:       Config.Int64("discovery.responseSizeLimit"),
		authMethod:      flows.AuthMethodBasic,
	}
	for _, opt := range opts {
		opt(b)
	}

	if warnings := config.ValidateConfigKeys(Config); len(warnings) > 0 {
		b.log.Warnw("configuration contains unrecognized keys",
			"details", config.FormatValidationWarnings(warnings))
	}

	if err := registry.Validate(b.registrations, time.Now()); err != nil {
		return nil, err
	}

	required := []pipeline.Stage{}
	required = append(required, pipeline.ConfigurationStages()...)
	required = append(required, pipeline.CryptographyStages()...)
	required = append(required, pipeline.TokenStages()...)
	if b.introspection {
		required = append(required, pipeline.IntrospectionStages()...)
	}

	descriptors := append(flows.Catalog(), b.handlers...)
	plan, err := pipeline.Assemble(descriptors, pipeline.WithRequiredStages(required...))
	if err != nil {
		return nil, err
	}

	client := b.client
	if client == nil {
		client = &http.Client{Timeout: b.httpTimeout}
	}

	ops := flows.NewOperations(plan,
		flows.WithHTTPClient(client),
		flows.WithLogger(b.log),
		flows.WithResponseSizeLimit(b.sizeLimit),
		flows.WithAuthMethod(b.authMethod))

	p := &Passage{
		log:           b.log,
		plan:          plan,
		ops:           ops,
		introspection: b.introspection,
		registrations: map[string]*registry.Registration{},
		managers:      map[string]discovery.Manager{},
	}

	for _, reg := range b.registrations {
		key := strings.ToLower(reg.RegistrationID)
		p.registrations[key] = reg

		if reg.Configuration != nil {
			keys, err := staticKeySet(reg)
			if err != nil {
				return nil, err
			}
			p.managers[key] = discovery.NewStaticManager(reg.Configuration, keys)
			continue
		}
		p.managers[key] = discovery.NewRemoteManager(ops.Fetcher(reg),
			discovery.WithRefreshInterval(b.refreshInterval),
			discovery.WithMaxStaleness(b.maxStaleness),
			discovery.WithLogger(b.log.With("registration", reg.RegistrationID)))
	}

	return p, nil
}

// Registration returns a registration by id, case-insensitively.
func (p *Passage) Registration(id string) (*registry.Registration, error) {
	if reg, ok := p.registrations[strings.ToLower(id)]; ok {
		return reg, nil
	}
	return nil, errors.NewC("passage: unknown registration "+id, codes.NotFound)
}

// Configuration returns the provider configuration document for a
// registration, fetching or refreshing it as needed.
func (p *Passage) Configuration(ctx context.Context, id string) (*discovery.Document, error) {
	m, err := p.manager(id)
	if err != nil {
		return nil, err
	}
	return m.Configuration(p.logContext(ctx))
}

// SigningKeys returns the provider's current signing key set for a
// registration.
func (p *Passage) SigningKeys(ctx context.Context, id string) (jwk.Set, error) {
	m, err := p.manager(id)
	if err != nil {
		return nil, err
	}
	return m.SigningKeys(p.logContext(ctx))
}

// RequestToken performs a token request for a registration. params must
// include grant_type and any grant-specific parameters (code, refresh_token,
// and so on). Provider-reported protocol errors surface as a
// *pipeline.Rejection error.
func (p *Passage) RequestToken(ctx context.Context, id string, params url.Values) (*flows.TokenResponse, error) {
	reg, err := p.Registration(id)
	if err != nil {
		return nil, err
	}
	doc, err := p.Configuration(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.ops.Token(p.logContext(ctx), reg, doc, params)
}

// Introspect asks the provider about a token's state. Requires
// WithIntrospection at construction.
func (p *Passage) Introspect(ctx context.Context, id, token, tokenTypeHint string) (pipeline.Message, error) {
	if !p.introspection {
		return nil, errors.NewC(
			"passage: introspection is not enabled; construct with WithIntrospection",
			codes.FailedPrecondition)
	}
	reg, err := p.Registration(id)
	if err != nil {
		return nil, err
	}
	doc, err := p.Configuration(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.ops.Introspect(p.logContext(ctx), reg, doc, token, tokenTypeHint)
}

// Validator returns a token validator for a registration, wired to its
// discovery manager. When introspection is enabled the validator can also
// verify tokens remotely.
func (p *Passage) Validator(id string, opts ...tokens.ValidatorOption) (*tokens.Validator, error) {
	reg, err := p.Registration(id)
	if err != nil {
		return nil, err
	}
	m, err := p.manager(id)
	if err != nil {
		return nil, err
	}

	if p.introspection {
		opts = append(opts, tokens.WithIntrospection(
			func(ctx context.Context, token string) (pipeline.Message, error) {
				return p.Introspect(ctx, id, token, "")
			}))
	}
	return tokens.NewValidator(m, reg.Issuer, opts...), nil
}

// Refresh forces a discovery refresh for a registration. Registrations with
// static configuration are a no-op.
func (p *Passage) Refresh(ctx context.Context, id string) error {
	m, err := p.manager(id)
	if err != nil {
		return err
	}
	if rm, ok := m.(*discovery.RemoteManager); ok {
		return rm.Refresh(p.logContext(ctx))
	}
	return nil
}

func (p *Passage) manager(id string) (discovery.Manager, error) {
	if m, ok := p.managers[strings.ToLower(id)]; ok {
		return m, nil
	}
	return nil, errors.NewC("passage: unknown registration "+id, codes.NotFound)
}

func (p *Passage) logContext(ctx context.Context) context.Context {
	if logging.FromContext(ctx) == logging.Noop() {
		return logging.With(ctx, p.log)
	}
	return ctx
}

// staticKeySet converts a registration's signing credentials into a key set
// for the static manager. Registrations without credentials get no key set;
// token validation for them requires a jwks_uri.
func staticKeySet(reg *registry.Registration) (jwk.Set, error) {
	if len(reg.SigningCredentials) == 0 {
		return nil, nil
	}
	set := jwk.NewSet()
	for _, cred := range reg.SigningCredentials {
		key, err := jwk.Import(cred.Key)
		if err != nil {
			return nil, errors.WrapPrefix(err,
				"passage: importing signing credential for "+reg.RegistrationID+" failed", 0)
		}
		if cred.KeyID != "" {
			if err := key.Set(jwk.KeyIDKey, cred.KeyID); err != nil {
				return nil, errors.WrapPrefix(err, "passage: setting key id failed", 0)
			}
		}
		if cred.Algorithm != "" {
			if err := key.Set(jwk.AlgorithmKey, cred.Algorithm); err != nil {
				return nil, errors.WrapPrefix(err, "passage: setting key algorithm failed", 0)
			}
		}
		if err := set.AddKey(key); err != nil {
			return nil, errors.WrapPrefix(err, "passage: adding signing credential failed", 0)
		}
	}
	return set, nil
}
