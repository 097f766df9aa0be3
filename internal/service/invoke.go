package service

import (
	"context"
	"strings"

	"graceful-hc-proxy/internal/model"
)

// Caller performs one outbound HTTP call and returns the fully read response.
type Caller interface {
	Do(ctx context.Context, spec *model.OutboundCallSpec) (*model.UpstreamResponse, error)
}

// Method is the set of inbound methods the proxy knows how to forward.
type Method int

const (
	// MethodUnsupported covers every method that is not forwarded.
	MethodUnsupported Method = iota
	// MethodGet is forwarded to the upstream.
	MethodGet
)

// ParseMethod classifies an HTTP method, ignoring case.
func ParseMethod(m string) Method {
	switch strings.ToUpper(m) {
	case "GET":
		return MethodGet
	default:
		return MethodUnsupported
	}
}

// Invoke performs the outbound call. Only GET reaches the upstream; other
// methods get a fixed 405 outcome. Errors from the caller never escape and
// become transport failures instead.
func Invoke(ctx context.Context, c Caller, spec *model.OutboundCallSpec) model.UpstreamOutcome {
	switch ParseMethod(spec.Method) {
	case MethodGet:
		resp, err := c.Do(ctx, spec)
		if err != nil {
			return model.TransportFailure(err.Error())
		}
		return model.Success(resp)
	default:
		return model.MethodNotAllowed()
	}
}
