// Package service implements the grace-period proxy pipeline: translate the
// inbound request, call the upstream, apply the masking policy and render
// the result.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"graceful-hc-proxy/internal/client"
	"graceful-hc-proxy/internal/config"
	"graceful-hc-proxy/internal/grace"
	"graceful-hc-proxy/internal/metrics"
	"graceful-hc-proxy/internal/model"
	"graceful-hc-proxy/internal/render"
)

// ProxyService handles one inbound request at a time. It holds no mutable
// state, so a single instance serves all requests concurrently.
type ProxyService struct {
	caller  Caller
	gate    *grace.Gate
	baseURL *url.URL
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a ProxyService.
type Option func(*ProxyService)

// WithClock overrides the wall clock used to evaluate the grace period.
func WithClock(now func() time.Time) Option {
	return func(s *ProxyService) { s.now = now }
}

// WithMetrics records masking and transport failure counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *ProxyService) { s.metrics = m }
}

// NewProxyService creates a ProxyService for the configured upstream.
func NewProxyService(c Caller, gate *grace.Gate, cfg *config.Config, logger *slog.Logger, opts ...Option) (*ProxyService, error) {
	u, err := url.Parse(cfg.Upstream.Address)
	if err != nil {
		return nil, fmt.Errorf("parse upstream address: %w", err)
	}

	s := &ProxyService{
		caller:  c,
		gate:    gate,
		baseURL: u,
		logger:  logger.With("component", "proxy_service"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ProvideProxyService wires the production client and metrics into a ProxyService.
func ProvideProxyService(c *client.UpstreamClient, gate *grace.Gate, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*ProxyService, error) {
	return NewProxyService(c, gate, cfg, logger, WithMetrics(m))
}

// Handle runs the pipeline for one request. It always produces a response:
// upstream errors are reported in the body, never returned.
//
// The grace state is read once, before the call, and used for both the
// timeout and the masking decision. The upstream call does not inherit the
// caller's cancellation, so a disconnecting client does not abort it.
func (s *ProxyService) Handle(ctx context.Context, in *model.InboundRequest) *model.FinalResponse {
	now := s.now()
	expired := s.gate.Expired(now)

	spec := Translate(in, s.baseURL, s.gate.TimeoutFor(now))

	s.logger.Debug("forwarding request",
		"method", in.Method,
		"path", in.Path,
		"timeout", spec.Timeout.String(),
	)

	outcome := Invoke(context.WithoutCancel(ctx), s.caller, spec)
	if outcome.Kind == model.OutcomeTransportFailure {
		s.logger.Error("upstream transport failure",
			"method", in.Method,
			"path", in.Path,
			"err", outcome.Cause,
		)
		if s.metrics != nil {
			s.metrics.TransportFailures.Inc()
		}
	}

	decision := Decide(outcome, expired)
	if Masked(decision) {
		s.recordMasking(outcome, now)
	}

	resp, err := render.Render(decision)
	if err != nil {
		s.logger.Error("render response", "err", err)
		return &model.FinalResponse{
			StatusCode: http.StatusInternalServerError,
			Reason:     render.ReasonPhrase(http.StatusInternalServerError),
			Header:     http.Header{},
			Body:       []byte{},
		}
	}
	return resp
}

func (s *ProxyService) recordMasking(outcome model.UpstreamOutcome, now time.Time) {
	observed := render.StatusUnknownError
	reason := metrics.ReasonTransportFailure
	if outcome.Kind == model.OutcomeResponse {
		observed = outcome.Response.StatusCode
		reason = metrics.ReasonUpstreamStatus
	}

	s.logger.Warn("grace period in effect, masking upstream failure",
		"observed_status", observed,
		"reason", reason,
		"grace_remaining", s.gate.Remaining(now).Round(time.Millisecond).String(),
	)
	if s.metrics != nil {
		s.metrics.MaskedResponses.WithLabelValues(reason).Inc()
	}
}
