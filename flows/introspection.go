package flows

import (
	"context"

	"github.com/dpup/passage/errors"
	"github.com/dpup/passage/pipeline"
	"google.golang.org/grpc/codes"
)

// Introspection stage handlers, implementing the RFC 7662 exchange.

// attachIntrospectionParameters validates that a token was supplied for
// introspection.
func attachIntrospectionParameters(ctx context.Context, c *pipeline.Context) error {
	if c.Request.Get("token") == "" {
		c.Reject(pipeline.ErrorInvalidRequest, "token is required for introspection")
	}
	return nil
}

// attachIntrospectionEndpoint targets the document's introspection endpoint.
func attachIntrospectionEndpoint(ctx context.Context, c *pipeline.Context) error {
	doc := Document(c)
	if doc == nil || doc.IntrospectionEndpoint == "" {
		return errors.NewC(
			"flows: provider configuration names no introspection endpoint",
			codes.FailedPrecondition)
	}
	SetTargetURL(c, doc.IntrospectionEndpoint)
	return nil
}

// requireActive rejects tokens the provider reports as inactive. Per RFC
// 7662 an inactive response carries no further claims, so there is nothing
// else to hand back.
func requireActive(ctx context.Context, c *pipeline.Context) error {
	if !c.Response.Bool("active") {
		c.Reject(pipeline.ErrorInvalidToken, "token is not active")
	}
	return nil
}
