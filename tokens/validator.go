// Package tokens verifies JWT access and identity tokens against a
// registration's current signing keys. Key resolution goes through a
// discovery manager, so rotated keys are picked up with the provider's
// metadata; claim policy (issuer, audience, leeway) is fixed per validator.
package tokens

import (
	"context"
	"time"

	"github.com/dpup/passage/discovery"
	"github.com/dpup/passage/errors"
	"github.com/dpup/passage/logging"
	"github.com/dpup/passage/pipeline"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"google.golang.org/grpc/codes"
)

// IntrospectFunc asks the provider about a token's state, returning the
// introspection payload. Inactive tokens surface as a *pipeline.Rejection
// error.
type IntrospectFunc func(ctx context.Context, token string) (pipeline.Message, error)

// Validator verifies tokens issued by one provider.
type Validator struct {
	manager    discovery.Manager
	issuer     string
	audience   string
	leeway     time.Duration
	methods    []string
	introspect IntrospectFunc
	log        logging.Logger
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithAudience requires tokens to carry the given audience.
func WithAudience(aud string) ValidatorOption {
	return func(v *Validator) {
		v.audience = aud
	}
}

// WithLeeway sets the clock skew tolerated when checking expiry and
// not-before claims.
func WithLeeway(d time.Duration) ValidatorOption {
	return func(v *Validator) {
		v.leeway = d
	}
}

// WithMethods restricts the accepted signing algorithms.
func WithMethods(methods ...string) ValidatorOption {
	return func(v *Validator) {
		v.methods = methods
	}
}

// WithIntrospection enables remote validation through the provider's
// introspection endpoint.
func WithIntrospection(fn IntrospectFunc) ValidatorOption {
	return func(v *Validator) {
		v.introspect = fn
	}
}

// WithValidatorLogger sets the validator's logger.
func WithValidatorLogger(log logging.Logger) ValidatorOption {
	return func(v *Validator) {
		v.log = log
	}
}

// NewValidator returns a Validator for tokens issued by the given issuer,
// resolving keys through the manager.
func NewValidator(manager discovery.Manager, issuer string, opts ...ValidatorOption) *Validator {
	v := &Validator{
		manager: manager,
		issuer:  issuer,
		leeway:  time.Minute,
		log:     logging.Noop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate verifies the token's signature and claims and returns its claim
// set.
func (v *Validator) Validate(ctx context.Context, tokenString string) (jwt.MapClaims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithLeeway(v.leeway),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}
	if len(v.methods) > 0 {
		parserOpts = append(parserOpts, jwt.WithValidMethods(v.methods))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.NewParser(parserOpts...).ParseWithClaims(tokenString, claims, v.keyfunc(ctx))
	if err != nil {
		v.log.Infow("token validation failed", "error", err)
		return nil, errors.WrapPrefix(err, "tokens: validation failed", 0).
			WithCode(codes.Unauthenticated)
	}
	return claims, nil
}

// ValidateRemote verifies a token through the provider's introspection
// endpoint instead of locally. The introspection payload is returned for
// active tokens.
func (v *Validator) ValidateRemote(ctx context.Context, token string) (pipeline.Message, error) {
	if v.introspect == nil {
		return nil, errors.NewC(
			"tokens: introspection-based validation is not configured",
			codes.FailedPrecondition)
	}
	return v.introspect(ctx, token)
}

// keyfunc resolves the signing key for a token from the provider's current
// key set. A token without a kid is accepted only when the provider has
// exactly one key.
func (v *Validator) keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		set, err := v.manager.SigningKeys(ctx)
		if err != nil {
			return nil, err
		}

		var key jwk.Key
		if kid, ok := token.Header["kid"].(string); ok {
			key, ok = set.LookupKeyID(kid)
			if !ok {
				return nil, errors.NewC(
					"tokens: key "+kid+" not found in provider key set",
					codes.NotFound)
			}
		} else if set.Len() == 1 {
			key, _ = set.Key(0)
		} else {
			return nil, errors.NewC(
				"tokens: token names no key id and the provider has multiple keys",
				codes.InvalidArgument)
		}

		var raw any
		if err := jwk.Export(key, &raw); err != nil {
			return nil, errors.WrapPrefix(err, "tokens: exporting signing key failed", 0)
		}
		return raw, nil
	}
}
