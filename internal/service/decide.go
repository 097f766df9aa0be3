package service

import (
	"net/http"

	"graceful-hc-proxy/internal/model"
	"graceful-hc-proxy/internal/render"
)

// CauseNonOKStatus is reported when a non-200 upstream response is masked.
const CauseNonOKStatus = "Upstream returned non 200 status."

// Decide applies the grace policy to an upstream outcome:
//
//   - a 200 response always passes through;
//   - while the grace period lasts, any other response is masked as a 200
//     report embedding the real one, and a transport failure becomes a 200
//     report carrying the error;
//   - once it has expired, responses pass through and transport failures
//     become a 520 report.
//
// The fixed 405 for unsupported methods is never masked.
func Decide(outcome model.UpstreamOutcome, expired bool) render.Decision {
	switch outcome.Kind {
	case model.OutcomeMethodNotAllowed:
		return render.Decision{Kind: render.PassThrough, Response: outcome.Response}

	case model.OutcomeTransportFailure:
		status := render.StatusUnknownError
		if !expired {
			status = http.StatusOK
		}
		return render.Decision{Kind: render.Diagnose, StatusCode: status, Cause: outcome.Cause}

	default:
		resp := outcome.Response
		if resp.StatusCode == http.StatusOK || expired {
			return render.Decision{Kind: render.PassThrough, Response: resp}
		}
		return render.Decision{
			Kind:       render.Diagnose,
			StatusCode: http.StatusOK,
			Cause:      CauseNonOKStatus,
			Response:   resp,
		}
	}
}

// Masked reports whether d hides a failure behind a 200.
func Masked(d render.Decision) bool {
	return d.Kind == render.Diagnose && d.StatusCode == http.StatusOK
}
