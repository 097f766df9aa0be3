// Package model defines shared types for the proxy.
package model

import (
	"net/http"
	"strconv"
	"time"
)

// InboundRequest is the part of a client request the proxy looks at.
type InboundRequest struct {
	Method   string
	Path     string
	RawPath  string
	RawQuery string
	Header   http.Header
}

// Timeout bounds a single upstream call. The zero value is unbounded.
type Timeout struct {
	Duration time.Duration
	Bounded  bool
}

// Unbounded returns a Timeout that applies no per-call deadline.
func Unbounded() Timeout {
	return Timeout{}
}

// Within returns a Timeout bounded by d.
func Within(d time.Duration) Timeout {
	return Timeout{Duration: d, Bounded: true}
}

func (t Timeout) String() string {
	if !t.Bounded {
		return "unbounded"
	}
	return t.Duration.String()
}

// OutboundCallSpec describes the single upstream call made for a request.
type OutboundCallSpec struct {
	Method  string
	URL     string
	Header  http.Header
	Timeout Timeout
}

// UpstreamResponse is a fully materialized upstream response.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OutcomeKind tags an UpstreamOutcome.
type OutcomeKind int

const (
	// OutcomeResponse means the upstream answered with a status code.
	OutcomeResponse OutcomeKind = iota
	// OutcomeTransportFailure means no response was obtained.
	OutcomeTransportFailure
	// OutcomeMethodNotAllowed means the method is not proxied and no call was made.
	OutcomeMethodNotAllowed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeResponse:
		return "response"
	case OutcomeTransportFailure:
		return "transport_failure"
	case OutcomeMethodNotAllowed:
		return "method_not_allowed"
	default:
		return "unknown"
	}
}

// UpstreamOutcome is the result of invoking the upstream for one request.
// Response is set for OutcomeResponse and OutcomeMethodNotAllowed; Cause is
// set for OutcomeTransportFailure.
type UpstreamOutcome struct {
	Kind     OutcomeKind
	Response *UpstreamResponse
	Cause    string
}

// Success wraps a real upstream response.
func Success(resp *UpstreamResponse) UpstreamOutcome {
	return UpstreamOutcome{Kind: OutcomeResponse, Response: resp}
}

// TransportFailure records a failed upstream call.
func TransportFailure(cause string) UpstreamOutcome {
	return UpstreamOutcome{Kind: OutcomeTransportFailure, Cause: cause}
}

// MethodNotAllowed is the fixed outcome for methods the proxy does not forward.
func MethodNotAllowed() UpstreamOutcome {
	return UpstreamOutcome{
		Kind: OutcomeMethodNotAllowed,
		Response: &UpstreamResponse{
			StatusCode: http.StatusMethodNotAllowed,
			Header:     http.Header{},
			Body:       []byte{},
		},
	}
}

// FinalResponse is what the proxy writes back to the caller.
type FinalResponse struct {
	StatusCode int
	Reason     string
	Header     http.Header
	Body       []byte
}

// StatusLine returns "<code> <reason>".
func (r *FinalResponse) StatusLine() string {
	return strconv.Itoa(r.StatusCode) + " " + r.Reason
}
