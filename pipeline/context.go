package pipeline

import (
	"fmt"
	"net/url"
)

// Standard OAuth2 error codes used when rejecting a context.
const (
	ErrorInvalidRequest       = "invalid_request"
	ErrorInvalidClient        = "invalid_client"
	ErrorInvalidGrant         = "invalid_grant"
	ErrorUnauthorizedClient   = "unauthorized_client"
	ErrorUnsupportedGrantType = "unsupported_grant_type"
	ErrorInvalidScope         = "invalid_scope"
	ErrorInvalidToken         = "invalid_token"
	ErrorServerError          = "server_error"
)

// Message is a decoded protocol payload: the JSON body of a discovery
// document, token response, or introspection response. Typed getters paper
// over the loose typing that JSON decoding produces.
type Message map[string]any

// Has returns true when the parameter is present, even if null.
func (m Message) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// String returns the parameter as a string, or "" when absent or not a
// string.
func (m Message) String(key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// Strings returns the parameter as a string slice. JSON arrays decode as
// []any, so each element is converted; non-string elements are skipped.
func (m Message) Strings(key string) []string {
	switch v := m[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Int64 returns the parameter as an int64. JSON numbers decode as float64
// and are truncated.
func (m Message) Int64(key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

// Bool returns the parameter as a bool.
func (m Message) Bool(key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}

// Rejection is the terminal failure state of a context: a structured
// protocol error produced by a handler, as opposed to an infrastructure
// failure (which handlers return as a plain error).
type Rejection struct {
	// Code is the OAuth2 error code, e.g. "invalid_grant".
	Code string
	// Description is a human readable explanation of the error.
	Description string
	// URI optionally points at documentation for the error.
	URI string
}

func (r *Rejection) Error() string {
	if r.Description == "" {
		return r.Code
	}
	return fmt.Sprintf("%s: %s", r.Code, r.Description)
}

// Context is the mutable state for one in-flight protocol operation. It is
// created when the operation starts, owned exclusively by the executor for
// the duration of each pipeline walk, and discarded when the operation
// completes or faults. Contexts are never shared between concurrent
// operations.
type Context struct {
	// Request accumulates the outgoing protocol parameters before they are
	// encoded onto the transport.
	Request url.Values

	// Response holds the decoded protocol payload once a response has been
	// extracted.
	Response Message

	// props is the transaction-scoped bag of ambient state: the HTTP client,
	// partially-built request/response objects, the registration being
	// operated on. Keys are defined by the packages that own the values.
	props map[any]any

	// cleanups run, last-in first-out, when the operation finishes on any
	// path, releasing scoped resources such as open response bodies.
	cleanups []func()

	handled   bool
	rejection *Rejection
}

// NewContext creates an empty context for one protocol operation.
func NewContext() *Context {
	return &Context{
		Request: url.Values{},
		props:   map[any]any{},
	}
}

// Get returns a transaction property, or nil.
func (c *Context) Get(key any) any {
	return c.props[key]
}

// Set stores a transaction property.
func (c *Context) Set(key, value any) {
	c.props[key] = value
}

// Defer registers a release function that runs when the operation finishes,
// on every exit path including rejection, failure and cancellation.
func (c *Context) Defer(fn func()) {
	c.cleanups = append(c.cleanups, fn)
}

// Release runs the registered cleanups in reverse order. It is invoked by
// the operation that owns the context, exactly once.
func (c *Context) Release() {
	for i := len(c.cleanups) - 1; i >= 0; i-- {
		c.cleanups[i]()
	}
	c.cleanups = nil
}

// MarkHandled records that the operation has been fully handled: the
// executor stops walking the current stage and reports success without
// running the remaining handlers.
func (c *Context) MarkHandled() {
	c.handled = true
}

// IsHandled reports whether a handler marked the context handled.
func (c *Context) IsHandled() bool {
	return c.handled
}

// Reject marks the context as terminally failed with a structured protocol
// error. The executor stops immediately and propagates the rejection.
func (c *Context) Reject(code, description string) {
	c.RejectWithURI(code, description, "")
}

// RejectWithURI is Reject with an error documentation URI attached.
func (c *Context) RejectWithURI(code, description, uri string) {
	c.rejection = &Rejection{Code: code, Description: description, URI: uri}
}

// IsRejected reports whether a handler rejected the context.
func (c *Context) IsRejected() bool {
	return c.rejection != nil
}

// Rejection returns the structured protocol error, or nil.
func (c *Context) Rejection() *Rejection {
	return c.rejection
}
