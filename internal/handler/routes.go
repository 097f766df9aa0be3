// Package handler adapts the proxy pipeline and admin endpoints to Echo.
package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"graceful-hc-proxy/internal/config"
	"graceful-hc-proxy/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance. Every path
// is proxied; enabled admin routes take precedence over the catch-all.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, proxy *ProxyHandler, status *StatusHandler, m *metrics.Metrics) {
	if cfg.Status.Enabled {
		e.GET(cfg.Status.Path, status.Status)
	}
	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	e.Any("/*", proxy.Handle)
}
