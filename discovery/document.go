// Package discovery models provider configuration metadata and the managers
// that keep it current. A Manager answers two questions about a provider: what
// does its configuration document say, and which keys does it currently sign
// with. StaticManager serves a fixed snapshot; RemoteManager fetches and
// refreshes metadata through a caller-supplied fetch function.
package discovery

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/dpup/passage/errors"
	"google.golang.org/grpc/codes"
)

// WellKnownPath is the suffix defined by OpenID Connect Discovery 1.0.
const WellKnownPath = "/.well-known/openid-configuration"

// Document is a provider configuration document, the JSON payload served from
// the issuer's well-known address. Field names follow the OIDC discovery and
// RFC 8414 registries.
type Document struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint,omitempty"`
	TokenEndpoint         string `json:"token_endpoint,omitempty"`
	IntrospectionEndpoint string `json:"introspection_endpoint,omitempty"`
	UserInfoEndpoint      string `json:"userinfo_endpoint,omitempty"`
	JWKSURI               string `json:"jwks_uri,omitempty"`
	EndSessionEndpoint    string `json:"end_session_endpoint,omitempty"`
	RegistrationEndpoint  string `json:"registration_endpoint,omitempty"`

	ScopesSupported                   []string `json:"scopes_supported,omitempty"`
	GrantTypesSupported               []string `json:"grant_types_supported,omitempty"`
	ResponseTypesSupported            []string `json:"response_types_supported,omitempty"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported,omitempty"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported,omitempty"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported,omitempty"`
}

// ParseDocument decodes a provider configuration response body.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.WrapPrefix(err, "discovery: malformed configuration document", 0)
	}
	if doc.Issuer == "" {
		return nil, errors.NewC("discovery: configuration document missing issuer", codes.FailedPrecondition)
	}
	return &doc, nil
}

// WellKnownConfiguration derives the provider configuration address for an
// issuer. Issuers with path components, common for multi-tenant providers
// (realms, tenant directories), get the well-known suffix appended after the
// path rather than at the host root.
func WellKnownConfiguration(issuer string) (string, error) {
	u, err := url.Parse(issuer)
	if err != nil {
		return "", errors.WrapPrefix(err, "discovery: invalid issuer", 0)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", errors.NewC("discovery: issuer must be an absolute URL", codes.InvalidArgument)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + WellKnownPath
	return u.String(), nil
}
