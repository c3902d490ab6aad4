package flows

import (
	"net/http"

	"github.com/dpup/passage/discovery"
	"github.com/dpup/passage/pipeline"
	"github.com/dpup/passage/registry"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// Transaction property keys. Accessors are exported so host descriptors can
// participate in the same transaction state as the built-in catalog.
type propKey int

const (
	propRegistration propKey = iota
	propHTTPClient
	propTargetURL
	propHTTPRequest
	propHTTPResponse
	propBody
	propDocument
	propKeySet
	propTokenResponse
	propAuthMethod
	propSizeLimit
	propUserAgent
)

// Registration returns the registration the operation acts on behalf of.
func Registration(c *pipeline.Context) *registry.Registration {
	r, _ := c.Get(propRegistration).(*registry.Registration)
	return r
}

// SetRegistration binds the operation to a registration.
func SetRegistration(c *pipeline.Context, r *registry.Registration) {
	c.Set(propRegistration, r)
}

// HTTPClient returns the transaction's HTTP client, falling back to
// http.DefaultClient.
func HTTPClient(c *pipeline.Context) *http.Client {
	if client, ok := c.Get(propHTTPClient).(*http.Client); ok {
		return client
	}
	return http.DefaultClient
}

// SetHTTPClient sets the HTTP client used by the send handler.
func SetHTTPClient(c *pipeline.Context, client *http.Client) {
	c.Set(propHTTPClient, client)
}

// TargetURL returns the address the outgoing request is aimed at.
func TargetURL(c *pipeline.Context) string {
	s, _ := c.Get(propTargetURL).(string)
	return s
}

// SetTargetURL sets the address for the outgoing request.
func SetTargetURL(c *pipeline.Context, u string) {
	c.Set(propTargetURL, u)
}

// HTTPRequest returns the partially built outgoing request, or nil.
func HTTPRequest(c *pipeline.Context) *http.Request {
	r, _ := c.Get(propHTTPRequest).(*http.Request)
	return r
}

// SetHTTPRequest stores the outgoing request for later handlers to decorate
// and send.
func SetHTTPRequest(c *pipeline.Context, r *http.Request) {
	c.Set(propHTTPRequest, r)
}

// HTTPResponse returns the received response, or nil. Its body is released
// when the operation finishes.
func HTTPResponse(c *pipeline.Context) *http.Response {
	r, _ := c.Get(propHTTPResponse).(*http.Response)
	return r
}

// SetHTTPResponse stores the received response.
func SetHTTPResponse(c *pipeline.Context, r *http.Response) {
	c.Set(propHTTPResponse, r)
}

// Body returns the fully read, decompressed response body.
func Body(c *pipeline.Context) []byte {
	b, _ := c.Get(propBody).([]byte)
	return b
}

// SetBody stores the response body bytes.
func SetBody(c *pipeline.Context, b []byte) {
	c.Set(propBody, b)
}

// Document returns the provider configuration document for this transaction,
// or nil.
func Document(c *pipeline.Context) *discovery.Document {
	d, _ := c.Get(propDocument).(*discovery.Document)
	return d
}

// SetDocument stores the provider configuration document.
func SetDocument(c *pipeline.Context, d *discovery.Document) {
	c.Set(propDocument, d)
}

// KeySet returns the provider's parsed key set, or nil.
func KeySet(c *pipeline.Context) jwk.Set {
	s, _ := c.Get(propKeySet).(jwk.Set)
	return s
}

// SetKeySet stores the provider's parsed key set.
func SetKeySet(c *pipeline.Context, s jwk.Set) {
	c.Set(propKeySet, s)
}

// Result returns the built token response, or nil.
func Result(c *pipeline.Context) *TokenResponse {
	t, _ := c.Get(propTokenResponse).(*TokenResponse)
	return t
}

// SetResult stores the built token response.
func SetResult(c *pipeline.Context, t *TokenResponse) {
	c.Set(propTokenResponse, t)
}

func authMethod(c *pipeline.Context) AuthMethod {
	if m, ok := c.Get(propAuthMethod).(AuthMethod); ok {
		return m
	}
	return AuthMethodBasic
}

func sizeLimit(c *pipeline.Context) int64 {
	if n, ok := c.Get(propSizeLimit).(int64); ok && n > 0 {
		return n
	}
	return DefaultResponseSizeLimit
}

func userAgent(c *pipeline.Context) string {
	if ua, ok := c.Get(propUserAgent).(string); ok && ua != "" {
		return ua
	}
	return defaultUserAgent
}
