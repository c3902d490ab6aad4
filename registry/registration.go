package registry

import (
	"crypto/sha256"
	"encoding/base64"
	"slices"

	"github.com/dpup/passage/discovery"
	"github.com/dpup/passage/keys"
)

// Registration describes one configured provider relationship. Exactly one
// discovery source is active per registration: either Configuration carries a
// static metadata snapshot, or metadata is fetched from the provider's
// discovery endpoint (MetadataAddress when set, otherwise derived from the
// issuer).
type Registration struct {
	// Issuer is the provider's issuer identifier: an absolute URL without
	// query or fragment.
	Issuer string

	// RegistrationID uniquely identifies this registration. When empty, a
	// deterministic id is derived from the issuer and provider name.
	RegistrationID string

	ProviderName string
	ProviderType string

	// Client credentials issued by the provider. ClientSecret is the
	// plaintext secret used for token-endpoint authentication.
	ClientID     string
	ClientSecret string

	Scopes        []string
	GrantTypes    []GrantType
	ResponseTypes []ResponseType

	RedirectURIs           []string
	PostLogoutRedirectURIs []string

	// SigningCredentials and EncryptionCredentials are kept in preference
	// order after validation, most preferred first, with key ids assigned.
	SigningCredentials    []*keys.Credential
	EncryptionCredentials []*keys.Credential

	// Configuration, when set, is a static provider metadata snapshot and
	// disables endpoint discovery for this registration.
	Configuration *discovery.Document

	// MetadataAddress overrides the discovery address derived from the
	// issuer. Mutually exclusive with Configuration.
	MetadataAddress string
}

// ResolveID derives the deterministic registration id for an issuer and
// optional provider name. The same inputs always produce the same id, across
// restarts and hosts.
func ResolveID(issuer, providerName string) string {
	input := issuer
	if providerName != "" {
		input += providerName
	}
	sum := sha256.Sum256([]byte(input))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// EnsureID fills in RegistrationID when missing and returns it.
func (r *Registration) EnsureID() string {
	if r.RegistrationID == "" {
		r.RegistrationID = ResolveID(r.Issuer, r.ProviderName)
	}
	return r.RegistrationID
}

// DiscoveryAddress returns the address metadata is fetched from, or "" when
// the registration uses a static snapshot.
func (r *Registration) DiscoveryAddress() (string, error) {
	if r.Configuration != nil {
		return "", nil
	}
	if r.MetadataAddress != "" {
		return r.MetadataAddress, nil
	}
	return discovery.WellKnownConfiguration(r.Issuer)
}

// HasGrant reports whether the registration enables the given grant.
func (r *Registration) HasGrant(g GrantType) bool {
	return slices.Contains(r.GrantTypes, g)
}

// HasResponseType reports whether the registration enables the given
// authorization response type.
func (r *Registration) HasResponseType(rt ResponseType) bool {
	return slices.Contains(r.ResponseTypes, rt)
}

// Interactive reports whether any configured grant involves a user agent.
func (r *Registration) Interactive() bool {
	for _, g := range r.GrantTypes {
		if g.interactive() {
			return true
		}
	}
	return false
}
