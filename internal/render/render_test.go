package render

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"graceful-hc-proxy/internal/model"
)

func TestReasonPhrase(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "OK"},
		{405, "Method Not Allowed"},
		{503, "Service Unavailable"},
		{520, "Unknown Error"},
		{299, "unknown"},
		{999, "unknown"},
	}

	for _, tt := range tests {
		if got := ReasonPhrase(tt.code); got != tt.want {
			t.Errorf("ReasonPhrase(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestRender_PassThrough(t *testing.T) {
	upstream := &model.UpstreamResponse{
		StatusCode: http.StatusServiceUnavailable,
		Header:     http.Header{"Content-Type": {"text/plain"}, "X-Upstream": {"a", "b"}},
		Body:       []byte("down"),
	}

	got, err := Render(Decision{Kind: PassThrough, Response: upstream})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	if got.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want %d", got.StatusCode, http.StatusServiceUnavailable)
	}
	if got.StatusLine() != "503 Service Unavailable" {
		t.Errorf("StatusLine() = %q, want %q", got.StatusLine(), "503 Service Unavailable")
	}
	if string(got.Body) != "down" {
		t.Errorf("Body = %q, want %q", got.Body, "down")
	}
	if vals := got.Header.Values("X-Upstream"); len(vals) != 2 || vals[0] != "a" || vals[1] != "b" {
		t.Errorf("X-Upstream = %v, want [a b]", vals)
	}
}

func TestRender_MaskedReport(t *testing.T) {
	d := Decision{
		Kind:       Diagnose,
		StatusCode: http.StatusOK,
		Cause:      "Upstream returned non 200 status.",
		Response: &model.UpstreamResponse{
			StatusCode: 503,
			Header:     http.Header{"Content-Type": {"text/plain"}, "Vary": {"Accept", "Origin"}},
			Body:       []byte("<down>"),
		},
	}

	got, err := Render(d)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	want := `{
    "cause": "Upstream returned non 200 status.",
    "failure": true,
    "upstream_response": {
        "body": "<down>",
        "headers": {
            "Content-Type": "text/plain",
            "Vary": "Accept, Origin"
        },
        "status": 503
    }
}`
	if string(got.Body) != want {
		t.Errorf("Body =\n%s\nwant\n%s", got.Body, want)
	}
	if got.StatusLine() != "200 OK" {
		t.Errorf("StatusLine() = %q, want %q", got.StatusLine(), "200 OK")
	}
	if ct := got.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}
}

func TestRender_TransportFailureReport(t *testing.T) {
	got, err := Render(Decision{Kind: Diagnose, StatusCode: StatusUnknownError, Cause: "connection refused"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	want := "{\n    \"cause\": \"connection refused\",\n    \"failure\": true\n}"
	if string(got.Body) != want {
		t.Errorf("Body = %q, want %q", got.Body, want)
	}
	if got.StatusLine() != "520 Unknown Error" {
		t.Errorf("StatusLine() = %q, want %q", got.StatusLine(), "520 Unknown Error")
	}

	var body map[string]any
	if err := json.Unmarshal(got.Body, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := body["upstream_response"]; ok {
		t.Error("upstream_response should be absent when there was no upstream response")
	}
}

func TestRender_Idempotent(t *testing.T) {
	d := Decision{
		Kind:       Diagnose,
		StatusCode: http.StatusOK,
		Cause:      "Upstream returned non 200 status.",
		Response: &model.UpstreamResponse{
			StatusCode: 500,
			Header: http.Header{
				"Zeta": {"1"}, "Alpha": {"2"}, "Mid": {"3"}, "Beta": {"4"}, "Omega": {"5"},
			},
			Body: []byte("boom"),
		},
	}

	first, err := Render(d)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	for range 20 {
		again, err := Render(d)
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		if !bytes.Equal(first.Body, again.Body) {
			t.Fatalf("Render() not deterministic:\n%s\nvs\n%s", first.Body, again.Body)
		}
	}
}

func TestRender_PassThroughNilHeader(t *testing.T) {
	got, err := Render(Decision{Kind: PassThrough, Response: &model.UpstreamResponse{StatusCode: 405}})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got.Header == nil {
		t.Error("Header should never be nil")
	}
	if got.StatusLine() != "405 Method Not Allowed" {
		t.Errorf("StatusLine() = %q, want %q", got.StatusLine(), "405 Method Not Allowed")
	}
}
