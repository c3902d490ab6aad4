package passage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/dpup/passage/discovery"
	"github.com/dpup/passage/flows"
	"github.com/dpup/passage/pipeline"
	"github.com/dpup/passage/registry"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var providerSecret = []byte("secret-secret")

// provider is a minimal OAuth2/OIDC test double: discovery, JWKS, token and
// introspection endpoints under one server.
func provider(t *testing.T) *httptest.Server {
	t.Helper()
	var issuer string
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 issuer,
			"token_endpoint":         issuer + "/oauth/token",
			"introspection_endpoint": issuer + "/oauth/introspect",
			"jwks_uri":               issuer + "/oauth/keys",
		})
	})
	mux.HandleFunc("/oauth/keys", func(w http.ResponseWriter, r *http.Request) {
		// base64url("secret-secret")
		w.Write([]byte(`{"keys":[{"kty":"oct","kid":"k1","k":"c2VjcmV0LXNlY3JldA"}]}`))
	})
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("grant_type") != "client_credentials" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{"error": "unsupported_grant_type"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-123",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/oauth/introspect", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		json.NewEncoder(w).Encode(map[string]any{
			"active": r.PostForm.Get("token") == "at-123",
			"sub":    "user-7",
		})
	})
	srv := httptest.NewServer(mux)
	issuer = srv.URL
	t.Cleanup(srv.Close)
	return srv
}

func providerRegistration(issuer string) *registry.Registration {
	return &registry.Registration{
		Issuer:         issuer,
		RegistrationID: "main",
		ClientID:       "client-1",
		ClientSecret:   "s3cret",
		GrantTypes:     []registry.GrantType{registry.GrantClientCredentials},
	}
}

func TestNewRejectsInvalidRegistration(t *testing.T) {
	_, err := New(WithRegistration(&registry.Registration{Issuer: ""}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no issuer")
}

func TestNewRejectsConflictingTerminalHandler(t *testing.T) {
	_, err := New(WithHandlers(pipeline.Descriptor{
		Name:     "second-sender",
		Stage:    pipeline.StageApplyTokenRequest,
		Terminal: true,
		Handle:   func(ctx context.Context, c *pipeline.Context) error { return nil },
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflicting terminal handlers")
}

func TestRegistrationLookupIsCaseInsensitive(t *testing.T) {
	srv := provider(t)
	p, err := New(WithRegistration(providerRegistration(srv.URL)))
	require.NoError(t, err)

	reg, err := p.Registration("MAIN")
	require.NoError(t, err)
	assert.Equal(t, "main", reg.RegistrationID)

	_, err = p.Registration("other")
	assert.Error(t, err)
}

func TestConfigurationAndSigningKeys(t *testing.T) {
	srv := provider(t)
	p, err := New(
		WithRegistration(providerRegistration(srv.URL)),
		WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	doc, err := p.Configuration(context.Background(), "main")
	require.NoError(t, err)
	assert.Equal(t, srv.URL, doc.Issuer)

	keys, err := p.SigningKeys(context.Background(), "main")
	require.NoError(t, err)
	assert.Equal(t, 1, keys.Len())
}

func TestRequestToken(t *testing.T) {
	srv := provider(t)
	p, err := New(
		WithRegistration(providerRegistration(srv.URL)),
		WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	res, err := p.RequestToken(context.Background(), "main",
		url.Values{"grant_type": {"client_credentials"}})
	require.NoError(t, err)
	assert.Equal(t, "at-123", res.AccessToken)
	assert.Equal(t, "Bearer", res.Token().TokenType)
}

func TestIntrospectRequiresOptIn(t *testing.T) {
	srv := provider(t)
	p, err := New(
		WithRegistration(providerRegistration(srv.URL)),
		WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = p.Introspect(context.Background(), "main", "at-123", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WithIntrospection")
}

func TestIntrospect(t *testing.T) {
	srv := provider(t)
	p, err := New(
		WithRegistration(providerRegistration(srv.URL)),
		WithHTTPClient(srv.Client()),
		WithIntrospection())
	require.NoError(t, err)

	res, err := p.Introspect(context.Background(), "main", "at-123", "access_token")
	require.NoError(t, err)
	assert.Equal(t, "user-7", res.String("sub"))

	// Inactive tokens surface as a rejection.
	_, err = p.Introspect(context.Background(), "main", "revoked", "")
	var rej *pipeline.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, pipeline.ErrorInvalidToken, rej.Code)
}

func TestValidator(t *testing.T) {
	srv := provider(t)
	p, err := New(
		WithRegistration(providerRegistration(srv.URL)),
		WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	v, err := p.Validator("main")
	require.NoError(t, err)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": srv.URL,
		"sub": "user-7",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	tok.Header["kid"] = "k1"
	signed, err := tok.SignedString(providerSecret)
	require.NoError(t, err)

	claims, err := v.Validate(context.Background(), signed)
	require.NoError(t, err)
	sub, err := claims.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, "user-7", sub)

	_, err = v.Validate(context.Background(), signed+"tampered")
	assert.Error(t, err)
}

func TestCustomHandlerParticipates(t *testing.T) {
	var sawHeader string
	mux := http.NewServeMux()
	var issuer string
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		sawHeader = r.Header.Get("X-Tenant")
		json.NewEncoder(w).Encode(map[string]any{
			"issuer":         issuer,
			"token_endpoint": issuer + "/oauth/token",
		})
	})
	srv := httptest.NewServer(mux)
	issuer = srv.URL
	t.Cleanup(srv.Close)

	p, err := New(
		WithRegistration(providerRegistration(srv.URL)),
		WithHTTPClient(srv.Client()),
		WithHandlers(pipeline.Descriptor{
			Name:  "attach-tenant-header",
			Stage: pipeline.StageApplyConfigurationRequest,
			// After the built-in request creation, before the send.
			Order: pipeline.OrderStandard + pipeline.OrderStep,
			Handle: func(ctx context.Context, c *pipeline.Context) error {
				if req := flows.HTTPRequest(c); req != nil {
					req.Header.Set("X-Tenant", "acme")
				}
				return nil
			},
		}))
	require.NoError(t, err)

	_, err = p.Configuration(context.Background(), "main")
	require.NoError(t, err)
	assert.Equal(t, "acme", sawHeader)
}

func TestStaticRegistrationServesWithoutNetwork(t *testing.T) {
	reg := providerRegistration("https://idp.example.com")
	reg.Configuration = &discovery.Document{
		Issuer:        "https://idp.example.com",
		TokenEndpoint: "https://idp.example.com/oauth/token",
	}

	p, err := New(WithRegistration(reg))
	require.NoError(t, err)

	doc, err := p.Configuration(context.Background(), "main")
	require.NoError(t, err)
	assert.Equal(t, "https://idp.example.com", doc.Issuer)

	// Refresh is a no-op for static registrations.
	assert.NoError(t, p.Refresh(context.Background(), "main"))
}
