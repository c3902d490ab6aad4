package flows

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dpup/passage/errors"
	"github.com/dpup/passage/pipeline"
	"github.com/dpup/passage/registry"
	"golang.org/x/oauth2"
	"google.golang.org/grpc/codes"
)

// AuthMethod selects how client credentials are presented to the token and
// introspection endpoints.
type AuthMethod string

const (
	AuthMethodBasic AuthMethod = "client_secret_basic"
	AuthMethodPost  AuthMethod = "client_secret_post"
)

// TokenResponse is the decoded result of a successful token request.
type TokenResponse struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	IDToken      string
	Scope        string
	ExpiresIn    int64

	// Expiry is the computed absolute expiration, zero when the provider
	// sent no expires_in.
	Expiry time.Time

	// Raw is the full decoded response payload, including any nonstandard
	// parameters the provider returned.
	Raw pipeline.Message
}

// Token converts the response into an oauth2 token, carrying the raw payload
// as extras.
func (t *TokenResponse) Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
	}
	return tok.WithExtra(map[string]any(t.Raw))
}

// attachGrantParameters validates the requested grant against the
// registration and fills in registration-level defaults.
func attachGrantParameters(ctx context.Context, c *pipeline.Context) error {
	reg := Registration(c)
	grant := registry.GrantType(c.Request.Get("grant_type"))

	if grant == "" {
		c.Reject(pipeline.ErrorInvalidRequest, "grant_type is required")
		return nil
	}
	if !reg.HasGrant(grant) {
		c.Reject(pipeline.ErrorUnsupportedGrantType,
			"grant type "+string(grant)+" is not enabled for this registration")
		return nil
	}

	if c.Request.Get("scope") == "" && len(reg.Scopes) > 0 {
		c.Request.Set("scope", strings.Join(reg.Scopes, " "))
	}
	return nil
}

// attachClientCredentials places the client identity on the request. Public
// clients always send client_id in the form; confidential clients use basic
// authentication by default, or the form when client_secret_post is
// selected. Basic credentials are attached when the request object is built.
func attachClientCredentials(ctx context.Context, c *pipeline.Context) error {
	reg := Registration(c)
	if reg.ClientSecret == "" || authMethod(c) == AuthMethodPost {
		c.Request.Set("client_id", reg.ClientID)
		if reg.ClientSecret != "" {
			c.Request.Set("client_secret", reg.ClientSecret)
		}
	}
	return nil
}

// createFormRequest builds the outgoing POST for the token and introspection
// endpoints, encoding the accumulated protocol parameters as a form body.
func createFormRequest(ctx context.Context, c *pipeline.Context) error {
	target := TargetURL(c)
	if target == "" {
		return errors.NewC("flows: no target address prepared", codes.FailedPrecondition)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target,
		strings.NewReader(c.Request.Encode()))
	if err != nil {
		return errors.WrapPrefix(err, "flows: building request failed", 0)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	reg := Registration(c)
	if reg.ClientSecret != "" && authMethod(c) == AuthMethodBasic {
		req.SetBasicAuth(reg.ClientID, reg.ClientSecret)
	}

	SetHTTPRequest(c, req)
	return nil
}

// attachTokenEndpoint targets the document's token endpoint.
func attachTokenEndpoint(ctx context.Context, c *pipeline.Context) error {
	doc := Document(c)
	if doc == nil || doc.TokenEndpoint == "" {
		return errors.NewC("flows: no token endpoint available", codes.FailedPrecondition)
	}
	SetTargetURL(c, doc.TokenEndpoint)
	return nil
}

// mapProtocolError turns an OAuth error payload into a context rejection, so
// provider-reported failures surface as structured protocol errors rather
// than status-code failures.
func mapProtocolError(ctx context.Context, c *pipeline.Context) error {
	c.RejectWithURI(
		c.Response.String("error"),
		c.Response.String("error_description"),
		c.Response.String("error_uri"))
	return nil
}

func hasProtocolError(c *pipeline.Context) bool {
	return c.Response.Has("error")
}

// requireTokenFields fails on responses missing the mandatory token fields.
// This is a provider contract violation, not a protocol error.
func requireTokenFields(ctx context.Context, c *pipeline.Context) error {
	if c.Response.String("access_token") == "" || c.Response.String("token_type") == "" {
		return errors.NewC(
			"flows: token response missing access_token or token_type",
			codes.Internal)
	}
	return nil
}

// buildTokenResponse assembles the typed result, computing the absolute
// expiry from expires_in.
func buildTokenResponse(ctx context.Context, c *pipeline.Context) error {
	t := &TokenResponse{
		AccessToken:  c.Response.String("access_token"),
		TokenType:    c.Response.String("token_type"),
		RefreshToken: c.Response.String("refresh_token"),
		IDToken:      c.Response.String("id_token"),
		Scope:        c.Response.String("scope"),
		ExpiresIn:    c.Response.Int64("expires_in"),
		Raw:          c.Response,
	}
	if t.ExpiresIn > 0 {
		t.Expiry = time.Now().Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	SetResult(c, t)
	return nil
}
