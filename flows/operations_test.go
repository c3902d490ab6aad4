package flows

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/dpup/passage/discovery"
	"github.com/dpup/passage/errors"
	"github.com/dpup/passage/pipeline"
	"github.com/dpup/passage/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPlan(t *testing.T) *pipeline.Plan {
	t.Helper()
	plan, err := pipeline.Assemble(Catalog())
	require.NoError(t, err)
	return plan
}

func testRegistration(issuer string) *registry.Registration {
	return &registry.Registration{
		Issuer:         issuer,
		RegistrationID: "test",
		ClientID:       "client-1",
		ClientSecret:   "s3cret",
		GrantTypes:     []registry.GrantType{registry.GrantClientCredentials},
	}
}

// discoveryServer serves a configuration document and key set whose issuer
// is the server's own address.
func discoveryServer(t *testing.T) *httptest.Server {
	t.Helper()
	var issuer string
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"issuer":         issuer,
			"token_endpoint": issuer + "/oauth/token",
			"jwks_uri":       issuer + "/oauth/keys",
		})
	})
	mux.HandleFunc("/oauth/keys", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"keys":[{"kty":"oct","kid":"k1","k":"c2VjcmV0LXNlY3JldA"}]}`))
	})
	srv := httptest.NewServer(mux)
	issuer = srv.URL
	t.Cleanup(srv.Close)
	return srv
}

func TestConfigurationOperation(t *testing.T) {
	srv := discoveryServer(t)
	ops := NewOperations(newPlan(t), WithHTTPClient(srv.Client()))

	doc, err := ops.Configuration(context.Background(), testRegistration(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, srv.URL, doc.Issuer)
	assert.Equal(t, srv.URL+"/oauth/token", doc.TokenEndpoint)
	assert.Equal(t, srv.URL+"/oauth/keys", doc.JWKSURI)
}

func TestConfigurationStaticSnapshot(t *testing.T) {
	// No server at all: the static snapshot must satisfy the operation
	// without a network exchange.
	reg := testRegistration("https://idp.example.com")
	reg.Configuration = &discovery.Document{
		Issuer:        "https://idp.example.com",
		TokenEndpoint: "https://idp.example.com/oauth/token",
	}
	ops := NewOperations(newPlan(t))

	doc, err := ops.Configuration(context.Background(), reg)
	require.NoError(t, err)
	assert.Same(t, reg.Configuration, doc)
}

func TestConfigurationIssuerMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"issuer":         "https://impostor.example.com",
			"token_endpoint": "https://impostor.example.com/token",
		})
	}))
	t.Cleanup(srv.Close)

	ops := NewOperations(newPlan(t), WithHTTPClient(srv.Client()))
	_, err := ops.Configuration(context.Background(), testRegistration(srv.URL))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match registration issuer")
}

func TestConfigurationMissingTokenEndpoint(t *testing.T) {
	var issuer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"issuer": issuer})
	}))
	issuer = srv.URL
	t.Cleanup(srv.Close)

	ops := NewOperations(newPlan(t), WithHTTPClient(srv.Client()))
	_, err := ops.Configuration(context.Background(), testRegistration(srv.URL))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing the token endpoint")
}

func TestConfigurationGzipResponse(t *testing.T) {
	var issuer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Accept-Encoding"), "gzip")
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Type", "application/json")
		gz := gzip.NewWriter(w)
		json.NewEncoder(gz).Encode(map[string]any{
			"issuer":         issuer,
			"token_endpoint": issuer + "/token",
		})
		gz.Close()
	}))
	issuer = srv.URL
	t.Cleanup(srv.Close)

	// The test transport must not transparently decompress, that is the
	// extract stage's job.
	client := &http.Client{Transport: &http.Transport{DisableCompression: true}}
	ops := NewOperations(newPlan(t), WithHTTPClient(client))

	doc, err := ops.Configuration(context.Background(), testRegistration(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, issuer+"/token", doc.TokenEndpoint)
}

func TestConfigurationSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"issuer": "` + strings.Repeat("x", 4096) + `"}`))
	}))
	t.Cleanup(srv.Close)

	ops := NewOperations(newPlan(t),
		WithHTTPClient(srv.Client()), WithResponseSizeLimit(1024))
	_, err := ops.Configuration(context.Background(), testRegistration(srv.URL))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "size limit")
}

func TestConfigurationErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not here", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	ops := NewOperations(newPlan(t), WithHTTPClient(srv.Client()))
	_, err := ops.Configuration(context.Background(), testRegistration(srv.URL))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
	assert.Equal(t, http.StatusNotFound, errors.HTTPStatusCode(err))
}

func TestConfigurationCancellation(t *testing.T) {
	srv := discoveryServer(t)
	ops := NewOperations(newPlan(t), WithHTTPClient(srv.Client()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ops.Configuration(ctx, testRegistration(srv.URL))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCryptographyOperation(t *testing.T) {
	srv := discoveryServer(t)
	ops := NewOperations(newPlan(t), WithHTTPClient(srv.Client()))
	reg := testRegistration(srv.URL)

	doc, err := ops.Configuration(context.Background(), reg)
	require.NoError(t, err)

	set, err := ops.Cryptography(context.Background(), reg, doc)
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())
}

func TestCryptographyRequiresJWKSURI(t *testing.T) {
	ops := NewOperations(newPlan(t))
	reg := testRegistration("https://idp.example.com")

	_, err := ops.Cryptography(context.Background(), reg,
		&discovery.Document{Issuer: reg.Issuer})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwks_uri")
}

func TestCryptographyEmptyKeySet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"keys":[]}`))
	}))
	t.Cleanup(srv.Close)

	ops := NewOperations(newPlan(t), WithHTTPClient(srv.Client()))
	reg := testRegistration(srv.URL)
	_, err := ops.Cryptography(context.Background(), reg,
		&discovery.Document{Issuer: reg.Issuer, JWKSURI: srv.URL + "/keys"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty key set")
}

func TestTokenOperation(t *testing.T) {
	var gotAuthHeader string
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotAuthHeader = r.Header.Get("Authorization")
		gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-123",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"scope":        "api",
		})
	}))
	t.Cleanup(srv.Close)

	ops := NewOperations(newPlan(t), WithHTTPClient(srv.Client()))
	reg := testRegistration(srv.URL)
	reg.Scopes = []string{"api"}
	doc := &discovery.Document{Issuer: srv.URL, TokenEndpoint: srv.URL + "/token"}

	res, err := ops.Token(context.Background(), reg, doc,
		url.Values{"grant_type": {"client_credentials"}})
	require.NoError(t, err)

	assert.Equal(t, "at-123", res.AccessToken)
	assert.Equal(t, "Bearer", res.TokenType)
	assert.EqualValues(t, 3600, res.ExpiresIn)
	assert.False(t, res.Expiry.IsZero())

	// Default auth is client_secret_basic, scope defaulted from the
	// registration.
	assert.True(t, strings.HasPrefix(gotAuthHeader, "Basic "))
	assert.Equal(t, "client_credentials", gotForm.Get("grant_type"))
	assert.Equal(t, "api", gotForm.Get("scope"))
	assert.Empty(t, gotForm.Get("client_secret"))

	tok := res.Token()
	assert.Equal(t, "at-123", tok.AccessToken)
	assert.Equal(t, "api", tok.Extra("scope"))
}

func TestTokenClientSecretPost(t *testing.T) {
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-123", "token_type": "Bearer",
		})
	}))
	t.Cleanup(srv.Close)

	ops := NewOperations(newPlan(t),
		WithHTTPClient(srv.Client()), WithAuthMethod(AuthMethodPost))
	reg := testRegistration(srv.URL)
	doc := &discovery.Document{Issuer: srv.URL, TokenEndpoint: srv.URL + "/token"}

	_, err := ops.Token(context.Background(), reg, doc,
		url.Values{"grant_type": {"client_credentials"}})
	require.NoError(t, err)

	assert.Equal(t, "client-1", gotForm.Get("client_id"))
	assert.Equal(t, "s3cret", gotForm.Get("client_secret"))
}

func TestTokenProtocolErrorRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error":             "invalid_grant",
			"error_description": "grant expired",
		})
	}))
	t.Cleanup(srv.Close)

	ops := NewOperations(newPlan(t), WithHTTPClient(srv.Client()))
	reg := testRegistration(srv.URL)
	doc := &discovery.Document{Issuer: srv.URL, TokenEndpoint: srv.URL + "/token"}

	_, err := ops.Token(context.Background(), reg, doc,
		url.Values{"grant_type": {"client_credentials"}})
	require.Error(t, err)

	var rej *pipeline.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "invalid_grant", rej.Code)
	assert.Equal(t, "grant expired", rej.Description)
}

func TestTokenUnsupportedGrantRejected(t *testing.T) {
	ops := NewOperations(newPlan(t))
	reg := testRegistration("https://idp.example.com")
	doc := &discovery.Document{Issuer: reg.Issuer, TokenEndpoint: reg.Issuer + "/token"}

	_, err := ops.Token(context.Background(), reg, doc,
		url.Values{"grant_type": {"password"}})

	var rej *pipeline.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, pipeline.ErrorUnsupportedGrantType, rej.Code)

	_, err = ops.Token(context.Background(), reg, doc, url.Values{})
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, pipeline.ErrorInvalidRequest, rej.Code)
}

func TestTokenMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"token_type": "Bearer"})
	}))
	t.Cleanup(srv.Close)

	ops := NewOperations(newPlan(t), WithHTTPClient(srv.Client()))
	reg := testRegistration(srv.URL)
	doc := &discovery.Document{Issuer: srv.URL, TokenEndpoint: srv.URL + "/token"}

	_, err := ops.Token(context.Background(), reg, doc,
		url.Values{"grant_type": {"client_credentials"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing access_token")
}

func TestIntrospectOperation(t *testing.T) {
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		json.NewEncoder(w).Encode(map[string]any{
			"active": true,
			"sub":    "user-7",
			"scope":  "api",
		})
	}))
	t.Cleanup(srv.Close)

	ops := NewOperations(newPlan(t), WithHTTPClient(srv.Client()))
	reg := testRegistration(srv.URL)
	doc := &discovery.Document{Issuer: srv.URL, IntrospectionEndpoint: srv.URL + "/introspect"}

	res, err := ops.Introspect(context.Background(), reg, doc, "at-123", "access_token")
	require.NoError(t, err)

	assert.True(t, res.Bool("active"))
	assert.Equal(t, "user-7", res.String("sub"))
	assert.Equal(t, "at-123", gotForm.Get("token"))
	assert.Equal(t, "access_token", gotForm.Get("token_type_hint"))
}

func TestIntrospectInactiveTokenRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"active": false})
	}))
	t.Cleanup(srv.Close)

	ops := NewOperations(newPlan(t), WithHTTPClient(srv.Client()))
	reg := testRegistration(srv.URL)
	doc := &discovery.Document{Issuer: srv.URL, IntrospectionEndpoint: srv.URL + "/introspect"}

	_, err := ops.Introspect(context.Background(), reg, doc, "at-123", "")
	require.Error(t, err)

	var rej *pipeline.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, pipeline.ErrorInvalidToken, rej.Code)
}

func TestIntrospectRequiresToken(t *testing.T) {
	ops := NewOperations(newPlan(t))
	reg := testRegistration("https://idp.example.com")
	doc := &discovery.Document{Issuer: reg.Issuer, IntrospectionEndpoint: reg.Issuer + "/introspect"}

	_, err := ops.Introspect(context.Background(), reg, doc, "", "")
	var rej *pipeline.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, pipeline.ErrorInvalidRequest, rej.Code)
}

func TestFetcher(t *testing.T) {
	srv := discoveryServer(t)
	ops := NewOperations(newPlan(t), WithHTTPClient(srv.Client()))

	fetch := ops.Fetcher(testRegistration(srv.URL))
	doc, keys, err := fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, srv.URL, doc.Issuer)
	require.NotNil(t, keys)
	assert.Equal(t, 1, keys.Len())
}
