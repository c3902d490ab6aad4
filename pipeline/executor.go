package pipeline

import (
	"context"

	"github.com/dpup/passage/errors"
	"github.com/dpup/passage/logging"
	"google.golang.org/grpc/codes"
)

// Run walks the assembled sequence for one stage against the given context.
//
// For each descriptor, in order: filters are evaluated first, and if any
// rejects the descriptor is skipped with no side effects. Otherwise the
// handler runs to completion, including any I/O it suspends on. After each
// handler the context's control flags decide how to proceed: a rejection
// stops the walk and surfaces as a *Rejection error; a handled mark stops
// the walk and reports success; otherwise the walk continues until the
// sequence is exhausted.
//
// A handler returning an error aborts the walk and the error is propagated
// as-is, so cancellation (context.Canceled, context.DeadlineExceeded)
// remains distinguishable from transport failures. Run holds no mutable
// state of its own; distinct contexts may be run concurrently.
func (p *Plan) Run(ctx context.Context, stage Stage, c *Context) error {
	log := logging.FromContext(ctx).With("stage", stage.String())

	for _, d := range p.stages[stage] {
		if err := ctx.Err(); err != nil {
			return err
		}

		if skipped(d, c) {
			log.Debugw("handler skipped by filter", "handler", d.Name)
			continue
		}

		if err := p.invoke(ctx, d, c); err != nil {
			return err
		}

		if r := c.Rejection(); r != nil {
			log.Infow("operation rejected",
				"handler", d.Name, "error", r.Code, "description", r.Description)
			return r
		}
		if c.IsHandled() {
			log.Debugw("operation handled", "handler", d.Name)
			return nil
		}
	}

	return nil
}

// RunAll runs a sequence of stages against the same context, stopping at the
// first rejection or failure. The handled flag is reset between stages: a
// handler that concludes one stage does not suppress the stages that follow.
func (p *Plan) RunAll(ctx context.Context, stages []Stage, c *Context) error {
	for _, stage := range stages {
		c.handled = false
		if err := p.Run(ctx, stage, c); err != nil {
			return err
		}
	}
	return nil
}

func skipped(d Descriptor, c *Context) bool {
	for _, f := range d.Filters {
		if !f(c) {
			return true
		}
	}
	return false
}

// invoke runs one handler, converting panics into errors so a misbehaving
// handler cannot take down unrelated operations sharing the process.
func (p *Plan) invoke(ctx context.Context, d Descriptor, c *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrap(r, 2).
				WithCode(codes.Internal).
				WithPublicMessage("handler " + d.Name + " panicked")
		}
	}()
	return d.Handle(ctx, c)
}
