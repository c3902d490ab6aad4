package flows

import (
	"context"

	"github.com/dpup/passage/discovery"
	"github.com/dpup/passage/errors"
	"github.com/dpup/passage/pipeline"
	"github.com/dpup/passage/registry"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"google.golang.org/grpc/codes"
)

// Configuration and cryptography stage handlers: fetching the provider
// configuration document and the signing key set it points at.

// useStaticConfiguration concludes the prepare stage for registrations that
// carry an explicit metadata snapshot. No request is made for them; the
// extract and apply handlers are filtered out by the absent request and
// response.
func useStaticConfiguration(ctx context.Context, c *pipeline.Context) error {
	SetDocument(c, Registration(c).Configuration)
	c.MarkHandled()
	return nil
}

func staticConfigurationFilter(c *pipeline.Context) bool {
	reg := Registration(c)
	return reg != nil && reg.Configuration != nil
}

// attachMetadataAddress resolves the discovery address for the registration,
// honoring a configured metadata address and deriving the well-known URL
// otherwise, including issuers with tenant or realm path segments.
func attachMetadataAddress(ctx context.Context, c *pipeline.Context) error {
	reg := Registration(c)
	if reg == nil {
		return errors.NewC("flows: no registration bound to operation", codes.FailedPrecondition)
	}
	addr, err := reg.DiscoveryAddress()
	if err != nil {
		return err
	}
	SetTargetURL(c, addr)
	return nil
}

// buildDocument turns the fetched body into a typed configuration document.
func buildDocument(ctx context.Context, c *pipeline.Context) error {
	doc, err := discovery.ParseDocument(Body(c))
	if err != nil {
		return err
	}
	SetDocument(c, doc)
	return nil
}

// validateIssuer rejects documents whose issuer does not match the
// registration. A mismatch means the document came from the wrong party, so
// nothing in it can be trusted.
func validateIssuer(ctx context.Context, c *pipeline.Context) error {
	reg := Registration(c)
	doc := Document(c)
	if doc.Issuer != reg.Issuer {
		return errors.NewC(
			"flows: configuration issuer "+doc.Issuer+" does not match registration issuer "+reg.Issuer,
			codes.FailedPrecondition)
	}
	return nil
}

// requireEndpoints checks that the document names the endpoints the
// registration's grants depend on.
func requireEndpoints(ctx context.Context, c *pipeline.Context) error {
	reg := Registration(c)
	doc := Document(c)

	if reg.Interactive() && doc.AuthorizationEndpoint == "" {
		return errors.NewC(
			"flows: configuration for "+reg.Issuer+" is missing the authorization endpoint",
			codes.FailedPrecondition)
	}
	if len(reg.GrantTypes) > 0 && !onlyImplicit(reg) && doc.TokenEndpoint == "" {
		return errors.NewC(
			"flows: configuration for "+reg.Issuer+" is missing the token endpoint",
			codes.FailedPrecondition)
	}
	return nil
}

func onlyImplicit(reg *registry.Registration) bool {
	for _, g := range reg.GrantTypes {
		if g != registry.GrantImplicit {
			return false
		}
	}
	return true
}

// attachJWKSAddress targets the document's key-set endpoint for the
// cryptography fetch. The configuration stages must have produced a document
// first.
func attachJWKSAddress(ctx context.Context, c *pipeline.Context) error {
	doc := Document(c)
	if doc == nil {
		return errors.NewC(
			"flows: cryptography stages require a configuration document",
			codes.FailedPrecondition)
	}
	if doc.JWKSURI == "" {
		return errors.NewC(
			"flows: configuration for "+doc.Issuer+" names no jwks_uri",
			codes.NotFound)
	}
	SetTargetURL(c, doc.JWKSURI)
	return nil
}

// parseJWKS decodes the fetched key set.
func parseJWKS(ctx context.Context, c *pipeline.Context) error {
	set, err := jwk.Parse(Body(c))
	if err != nil {
		return errors.WrapPrefix(err, "flows: malformed key set", 0)
	}
	SetKeySet(c, set)
	return nil
}

// requireKeys fails the operation when the provider serves an empty key set.
func requireKeys(ctx context.Context, c *pipeline.Context) error {
	set := KeySet(c)
	if set == nil || set.Len() == 0 {
		return errors.NewC("flows: provider served an empty key set", codes.NotFound)
	}
	return nil
}
