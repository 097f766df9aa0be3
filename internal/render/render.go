// Package render turns a grace decision into the response written to the caller.
package render

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"graceful-hc-proxy/internal/model"
)

// StatusUnknownError is the non-standard code used when the upstream could
// not be reached at all.
const StatusUnknownError = 520

// customReasons extends the standard reason phrase table.
var customReasons = map[int]string{
	StatusUnknownError: "Unknown Error",
}

// ReasonPhrase returns the reason phrase for code, or "unknown".
func ReasonPhrase(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	if text, ok := customReasons[code]; ok {
		return text
	}
	return "unknown"
}

// DecisionKind tags a Decision.
type DecisionKind int

const (
	// PassThrough forwards the upstream response untouched.
	PassThrough DecisionKind = iota
	// Diagnose replaces the response with a JSON failure report.
	Diagnose
)

// Decision is the outcome of the grace policy for one request.
type Decision struct {
	Kind DecisionKind

	// Response is forwarded for PassThrough and embedded in the report for
	// Diagnose when set.
	Response *model.UpstreamResponse

	// StatusCode and Cause describe a Diagnose decision.
	StatusCode int
	Cause      string
}

// report is the diagnostic body. Fields are declared in sorted key order.
type report struct {
	Cause            string          `json:"cause"`
	Failure          bool            `json:"failure"`
	UpstreamResponse *upstreamReport `json:"upstream_response,omitempty"`
}

type upstreamReport struct {
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
	Status  int               `json:"status"`
}

// Render maps a decision to the final response. Rendering the same decision
// twice yields identical bytes.
func Render(d Decision) (*model.FinalResponse, error) {
	if d.Kind == PassThrough {
		resp := d.Response
		if resp == nil {
			resp = &model.UpstreamResponse{StatusCode: http.StatusBadGateway}
		}
		header := resp.Header
		if header == nil {
			header = http.Header{}
		}
		return &model.FinalResponse{
			StatusCode: resp.StatusCode,
			Reason:     ReasonPhrase(resp.StatusCode),
			Header:     header,
			Body:       resp.Body,
		}, nil
	}

	r := report{Cause: d.Cause, Failure: true}
	if d.Response != nil {
		r.UpstreamResponse = &upstreamReport{
			Body:    string(d.Response.Body),
			Headers: flattenHeader(d.Response.Header),
			Status:  d.Response.StatusCode,
		}
	}

	body, err := encode(r)
	if err != nil {
		return nil, err
	}

	return &model.FinalResponse{
		StatusCode: d.StatusCode,
		Reason:     ReasonPhrase(d.StatusCode),
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       body,
	}, nil
}

// encode writes v as indented JSON. Map keys come out sorted.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// flattenHeader joins repeated header values the way they travel on one line.
func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vals := range h {
		out[k] = strings.Join(vals, ", ")
	}
	return out
}
