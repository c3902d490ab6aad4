package pipeline

import "context"

// Filter is a predicate evaluated against a context before a handler runs.
// When any filter of a descriptor returns false, the handler is skipped for
// that operation with no side effects.
type Filter func(c *Context) bool

// Handler is one unit of pipeline behavior. Handlers may perform I/O; the
// executor does not advance to the next descriptor until the handler
// returns. Returning an error signals an infrastructure failure (transport
// fault, cancellation); expected protocol failures are signalled by
// rejecting the context instead.
type Handler func(ctx context.Context, c *Context) error

// Descriptor is the declarative registration record for a handler. The host
// integration produces descriptors as a flat collection and hands them to
// the assembler; a descriptor is never mutated after registration.
type Descriptor struct {
	// Name identifies the handler in logs and assembly errors.
	Name string

	// Stage binds the handler to one protocol stage.
	Stage Stage

	// Order positions the handler within its stage. Lower runs first; ties
	// are broken by registration order.
	Order int

	// Filters are evaluated in order before each run. All must accept.
	Filters []Filter

	// Terminal marks a handler that concludes its stage, such as the HTTP
	// send handler or a static-response handler. At most one terminal
	// handler may be registered per stage.
	Terminal bool

	// Handle is the behavior itself.
	Handle Handler
}

// Spacing for the built-in catalog's order values, leaving room for host
// descriptors to slot in between.
const (
	OrderEarly    = -50_000
	OrderStandard = 0
	OrderLate     = 50_000
	OrderStep     = 1_000
)
