package flows

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dpup/passage/errors"
	"github.com/dpup/passage/pipeline"
	"google.golang.org/grpc/codes"
)

const (
	// DefaultResponseSizeLimit caps how many bytes a provider response may
	// carry before it is rejected.
	DefaultResponseSizeLimit = 1 << 20

	defaultUserAgent = "passage/1.0"
)

// Filters shared across the catalog.

func hasRequest(c *pipeline.Context) bool {
	return HTTPRequest(c) != nil
}

func hasResponse(c *pipeline.Context) bool {
	return HTTPResponse(c) != nil
}

func hasBody(c *pipeline.Context) bool {
	return len(Body(c)) > 0
}

func hasDocument(c *pipeline.Context) bool {
	return Document(c) != nil
}

func noDocument(c *pipeline.Context) bool {
	return Document(c) == nil
}

// createGetRequest builds the outgoing GET request for the transaction's
// target address.
func createGetRequest(ctx context.Context, c *pipeline.Context) error {
	target := TargetURL(c)
	if target == "" {
		return errors.NewC("flows: no target address prepared", codes.FailedPrecondition)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return errors.WrapPrefix(err, "flows: building request failed", 0)
	}
	SetHTTPRequest(c, req)
	return nil
}

// attachStandardHeaders decorates the outgoing request. Accept-Encoding is
// set explicitly because decompression is handled by the extract stage, not
// the transport.
func attachStandardHeaders(ctx context.Context, c *pipeline.Context) error {
	req := HTTPRequest(c)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	req.Header.Set("User-Agent", userAgent(c))
	return nil
}

// sendRequest performs the HTTP exchange. It is the terminal handler of every
// apply stage. The response body is released when the operation finishes,
// whatever path it exits on.
func sendRequest(ctx context.Context, c *pipeline.Context) error {
	req := HTTPRequest(c)
	resp, err := HTTPClient(c).Do(req)
	if err != nil {
		// Cancellation surfaces as itself, not as a transport failure.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errors.WrapPrefix(err, "flows: request to "+req.URL.String()+" failed", 0).
			WithCode(codes.Unavailable)
	}
	SetHTTPResponse(c, resp)
	c.Defer(func() {
		resp.Body.Close()
	})
	return nil
}

// readBody drains the response body, decompressing by Content-Encoding and
// enforcing the transaction's size cap.
func readBody(ctx context.Context, c *pipeline.Context) error {
	resp := HTTPResponse(c)
	limit := sizeLimit(c)

	var reader io.Reader = resp.Body
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "", "identity":
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return errors.WrapPrefix(err, "flows: bad gzip response body", 0)
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		fr := flate.NewReader(resp.Body)
		defer fr.Close()
		reader = fr
	default:
		return errors.NewC(
			"flows: unsupported content encoding "+resp.Header.Get("Content-Encoding"),
			codes.Unimplemented)
	}

	data, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errors.WrapPrefix(err, "flows: reading response body failed", 0)
	}
	if int64(len(data)) > limit {
		return errors.NewC(
			fmt.Sprintf("flows: response exceeds size limit of %d bytes", limit),
			codes.ResourceExhausted)
	}
	SetBody(c, data)
	return nil
}

// validateStatus fails the operation on a non-2xx response. It is ordered
// after the error-mapping handlers so protocol error payloads become
// rejections rather than opaque status failures.
func validateStatus(ctx context.Context, c *pipeline.Context) error {
	resp := HTTPResponse(c)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	snippet := Body(c)
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	// The upstream status rides along so hosts surfacing this error over
	// HTTP can relay it.
	return errors.NewC(
		fmt.Sprintf("flows: unexpected status %d from %s: %s",
			resp.StatusCode, resp.Request.URL, strings.TrimSpace(string(snippet))),
		codes.Unavailable).WithHTTPStatusCode(resp.StatusCode)
}

// parseJSON decodes the response body into the context's response message. A
// malformed body on a non-2xx response is left for validateStatus to report.
func parseJSON(ctx context.Context, c *pipeline.Context) error {
	var m pipeline.Message
	if err := unmarshalBody(c, &m); err != nil {
		if resp := HTTPResponse(c); resp != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return errors.WrapPrefix(err, "flows: malformed response body", 0)
		}
		return nil
	}
	c.Response = m
	return nil
}

func unmarshalBody(c *pipeline.Context, v any) error {
	return json.Unmarshal(Body(c), v)
}
