package handler

import (
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"

	"graceful-hc-proxy/internal/config"
	"graceful-hc-proxy/internal/grace"
)

// Version is a string type for dependency injection of the build version.
type Version string

// StatusHandler reports the proxy's own grace state. It never contacts the upstream.
type StatusHandler struct {
	cfg     *config.Config
	gate    *grace.Gate
	version Version
	now     func() time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(cfg *config.Config, gate *grace.Gate, v Version) *StatusHandler {
	return &StatusHandler{cfg: cfg, gate: gate, version: v, now: time.Now}
}

type statusResponse struct {
	Status           string  `json:"status"`
	Version          string  `json:"version"`
	Upstream         string  `json:"upstream"`
	StartTime        string  `json:"start_time"`
	GraceEnds        string  `json:"grace_ends"`
	GraceEndsIn      string  `json:"grace_ends_in"`
	GraceActive      bool    `json:"grace_active"`
	RemainingSeconds float64 `json:"remaining_seconds"`
}

// Status returns grace period information.
func (h *StatusHandler) Status(c echo.Context) error {
	now := h.now()
	end := h.gate.End()

	return c.JSON(http.StatusOK, statusResponse{
		Status:           "ok",
		Version:          string(h.version),
		Upstream:         h.cfg.Upstream.Address,
		StartTime:        h.gate.Start().UTC().Format(time.RFC3339Nano),
		GraceEnds:        end.UTC().Format(time.RFC3339Nano),
		GraceEndsIn:      humanize.RelTime(end, now, "ago", "from now"),
		GraceActive:      !h.gate.Expired(now),
		RemainingSeconds: h.gate.Remaining(now).Seconds(),
	})
}
