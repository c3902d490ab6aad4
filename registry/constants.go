// Package registry holds the configured relying-party registrations and the
// startup validator that makes them safe to use: deterministic identity
// resolution, global uniqueness checks, grant/response-type consistency, and
// credential ordering. Registrations are validated once and immutable
// afterwards.
package registry

// GrantType names an OAuth2 grant.
type GrantType string

const (
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantImplicit          GrantType = "implicit"
	GrantClientCredentials GrantType = "client_credentials"
	GrantRefreshToken      GrantType = "refresh_token"
	GrantPassword          GrantType = "password"
	GrantDeviceCode        GrantType = "urn:ietf:params:oauth:grant-type:device_code"
)

// interactive reports whether the grant involves a user agent, which is what
// makes redirect URIs mandatory and refresh tokens obtainable.
func (g GrantType) interactive() bool {
	switch g {
	case GrantAuthorizationCode, GrantImplicit, GrantPassword, GrantDeviceCode:
		return true
	}
	return false
}

// ResponseType names an OAuth2 authorization response type.
type ResponseType string

const (
	ResponseCode    ResponseType = "code"
	ResponseToken   ResponseType = "token"
	ResponseIDToken ResponseType = "id_token"
)

// ClientType distinguishes clients that can keep a secret from those that
// cannot.
type ClientType string

const (
	ClientConfidential ClientType = "confidential"
	ClientPublic       ClientType = "public"
)
