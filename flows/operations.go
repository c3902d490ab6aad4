package flows

import (
	"context"
	"net/http"
	"net/url"

	"github.com/dpup/passage/discovery"
	"github.com/dpup/passage/errors"
	"github.com/dpup/passage/logging"
	"github.com/dpup/passage/pipeline"
	"github.com/dpup/passage/registry"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"google.golang.org/grpc/codes"
)

// Operations drives an assembled plan through the protocol operations. Each
// operation creates a fresh context, seeds the transaction properties, walks
// the operation's stages in order, and releases scoped resources on every
// exit path.
type Operations struct {
	plan      *pipeline.Plan
	client    *http.Client
	log       logging.Logger
	sizeLimit int64
	auth      AuthMethod
	agent     string
}

// Option configures Operations.
type Option func(*Operations)

// WithHTTPClient sets the client used for all provider exchanges.
func WithHTTPClient(client *http.Client) Option {
	return func(o *Operations) {
		o.client = client
	}
}

// WithLogger sets the logger threaded through pipeline walks.
func WithLogger(log logging.Logger) Option {
	return func(o *Operations) {
		o.log = log
	}
}

// WithResponseSizeLimit caps provider response bodies, in bytes.
func WithResponseSizeLimit(n int64) Option {
	return func(o *Operations) {
		o.sizeLimit = n
	}
}

// WithAuthMethod selects how client credentials are presented.
func WithAuthMethod(m AuthMethod) Option {
	return func(o *Operations) {
		o.auth = m
	}
}

// WithUserAgent overrides the User-Agent header on outgoing requests.
func WithUserAgent(ua string) Option {
	return func(o *Operations) {
		o.agent = ua
	}
}

// NewOperations returns Operations over an assembled plan.
func NewOperations(plan *pipeline.Plan, opts ...Option) *Operations {
	o := &Operations{
		plan:      plan,
		client:    http.DefaultClient,
		log:       logging.Noop(),
		sizeLimit: DefaultResponseSizeLimit,
		auth:      AuthMethodBasic,
		agent:     defaultUserAgent,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Operations) newContext(reg *registry.Registration) *pipeline.Context {
	c := pipeline.NewContext()
	SetRegistration(c, reg)
	SetHTTPClient(c, o.client)
	c.Set(propSizeLimit, o.sizeLimit)
	c.Set(propAuthMethod, o.auth)
	c.Set(propUserAgent, o.agent)
	return c
}

func (o *Operations) logContext(ctx context.Context, reg *registry.Registration, op string) context.Context {
	return logging.With(ctx, o.log.With("operation", op).With("registration", reg.RegistrationID))
}

// Configuration fetches the provider configuration document for a
// registration, or returns its static snapshot.
func (o *Operations) Configuration(ctx context.Context, reg *registry.Registration) (*discovery.Document, error) {
	c := o.newContext(reg)
	defer c.Release()

	if err := o.plan.RunAll(o.logContext(ctx, reg, "configuration"),
		pipeline.ConfigurationStages(), c); err != nil {
		return nil, err
	}
	doc := Document(c)
	if doc == nil {
		return nil, errors.NewC(
			"flows: configuration stages produced no document",
			codes.Internal)
	}
	return doc, nil
}

// Cryptography fetches the signing key set named by a configuration
// document.
func (o *Operations) Cryptography(ctx context.Context, reg *registry.Registration, doc *discovery.Document) (jwk.Set, error) {
	c := o.newContext(reg)
	defer c.Release()
	SetDocument(c, doc)

	if err := o.plan.RunAll(o.logContext(ctx, reg, "cryptography"),
		pipeline.CryptographyStages(), c); err != nil {
		return nil, err
	}
	set := KeySet(c)
	if set == nil {
		return nil, errors.NewC(
			"flows: cryptography stages produced no key set",
			codes.Internal)
	}
	return set, nil
}

// Token performs a token request with the given protocol parameters, which
// must include grant_type. Provider-reported protocol errors surface as a
// *pipeline.Rejection error.
func (o *Operations) Token(ctx context.Context, reg *registry.Registration, doc *discovery.Document, params url.Values) (*TokenResponse, error) {
	c := o.newContext(reg)
	defer c.Release()
	SetDocument(c, doc)
	for k, vs := range params {
		for _, v := range vs {
			c.Request.Add(k, v)
		}
	}

	if err := o.plan.RunAll(o.logContext(ctx, reg, "token"),
		pipeline.TokenStages(), c); err != nil {
		return nil, err
	}
	t := Result(c)
	if t == nil {
		return nil, errors.NewC(
			"flows: token stages produced no token response",
			codes.Internal)
	}
	return t, nil
}

// Introspect asks the provider about a token's current state, per RFC 7662.
// An inactive token surfaces as a *pipeline.Rejection error; an active one
// returns the full introspection payload.
func (o *Operations) Introspect(ctx context.Context, reg *registry.Registration, doc *discovery.Document, token, tokenTypeHint string) (pipeline.Message, error) {
	c := o.newContext(reg)
	defer c.Release()
	SetDocument(c, doc)
	c.Request.Set("token", token)
	if tokenTypeHint != "" {
		c.Request.Set("token_type_hint", tokenTypeHint)
	}

	if err := o.plan.RunAll(o.logContext(ctx, reg, "introspection"),
		pipeline.IntrospectionStages(), c); err != nil {
		return nil, err
	}
	return c.Response, nil
}

// Fetcher adapts the configuration and cryptography operations into the
// fetch function a discovery.RemoteManager needs. A document naming no
// jwks_uri yields a nil key set rather than an error.
func (o *Operations) Fetcher(reg *registry.Registration) discovery.FetchFunc {
	return func(ctx context.Context) (*discovery.Document, jwk.Set, error) {
		doc, err := o.Configuration(ctx, reg)
		if err != nil {
			return nil, nil, err
		}
		if doc.JWKSURI == "" {
			return doc, nil, nil
		}
		keys, err := o.Cryptography(ctx, reg, doc)
		if err != nil {
			return nil, nil, err
		}
		return doc, keys, nil
	}
}
