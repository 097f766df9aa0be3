package service

import (
	"net/http"
	"testing"

	"graceful-hc-proxy/internal/model"
	"graceful-hc-proxy/internal/render"
)

func TestDecide(t *testing.T) {
	ok := &model.UpstreamResponse{StatusCode: 200, Body: []byte("fine")}
	down := &model.UpstreamResponse{StatusCode: 503, Body: []byte("down")}

	tests := []struct {
		name       string
		outcome    model.UpstreamOutcome
		expired    bool
		wantKind   render.DecisionKind
		wantStatus int // only checked for Diagnose
		wantCause  string
		wantEmbed  bool
		wantMasked bool
	}{
		{name: "200 during grace", outcome: model.Success(ok), expired: false, wantKind: render.PassThrough},
		{name: "200 after grace", outcome: model.Success(ok), expired: true, wantKind: render.PassThrough},
		{name: "503 after grace", outcome: model.Success(down), expired: true, wantKind: render.PassThrough},
		{
			name: "503 during grace", outcome: model.Success(down), expired: false,
			wantKind: render.Diagnose, wantStatus: 200, wantCause: CauseNonOKStatus, wantEmbed: true, wantMasked: true,
		},
		{
			name: "transport failure after grace", outcome: model.TransportFailure("refused"), expired: true,
			wantKind: render.Diagnose, wantStatus: 520, wantCause: "refused",
		},
		{
			name: "transport failure during grace", outcome: model.TransportFailure("refused"), expired: false,
			wantKind: render.Diagnose, wantStatus: 200, wantCause: "refused", wantMasked: true,
		},
		{name: "405 during grace", outcome: model.MethodNotAllowed(), expired: false, wantKind: render.PassThrough},
		{name: "405 after grace", outcome: model.MethodNotAllowed(), expired: true, wantKind: render.PassThrough},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.outcome, tt.expired)

			if d.Kind != tt.wantKind {
				t.Fatalf("Kind = %v, want %v", d.Kind, tt.wantKind)
			}
			if Masked(d) != tt.wantMasked {
				t.Errorf("Masked() = %v, want %v", Masked(d), tt.wantMasked)
			}
			if d.Kind == render.PassThrough {
				if d.Response != tt.outcome.Response {
					t.Error("pass-through must forward the upstream response unchanged")
				}
				return
			}
			if d.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", d.StatusCode, tt.wantStatus)
			}
			if d.Cause != tt.wantCause {
				t.Errorf("Cause = %q, want %q", d.Cause, tt.wantCause)
			}
			if (d.Response != nil) != tt.wantEmbed {
				t.Errorf("embedded response = %v, want %v", d.Response != nil, tt.wantEmbed)
			}
		})
	}
}

func TestDecide_OKNeverMasked(t *testing.T) {
	resp := &model.UpstreamResponse{StatusCode: http.StatusOK, Header: http.Header{"X": {"1"}}, Body: []byte("b")}
	for _, expired := range []bool{true, false} {
		if d := Decide(model.Success(resp), expired); Masked(d) || d.Kind != render.PassThrough {
			t.Errorf("Decide(200, expired=%v) = %+v, want pass-through", expired, d)
		}
	}
}
