// Package config handles TOML configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/graceful-hc-proxy/config.toml",
	"configs/config.toml",
}

const (
	defaultGracePeriodSeconds    = 300
	defaultRequestTimeoutSeconds = 1
)

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config       string   `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host         string   `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port         int      `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	Upstream     string   `kong:"short='u',help='Upstream base address, e.g. http://127.0.0.1:8080 (overrides config).',env='UPSTREAM_ADDRESS'"`
	StartTime    string   `kong:"help='Instant the grace period starts from: RFC 3339 or Unix seconds (overrides config).',env='START_TIME'"`
	GracePeriod  *float64 `kong:"help='Grace period in seconds (overrides config, default 300).',env='GRACE_PERIOD'"`
	GraceTimeout *float64 `kong:"help='Upstream timeout in seconds while the grace period lasts (overrides config, default 1).',env='REQUEST_TIMEOUT_DURING_GRACE_PERIOD'"`
	LogLevel     string   `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Upstream UpstreamConfig `toml:"upstream"`
	Grace    GraceConfig    `toml:"grace"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Status   StatusConfig   `toml:"status"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host      string          `toml:"host"`
	Port      int             `toml:"port"` // 0 means "use default" (8000); TOML cannot distinguish 0 from unset
	RateLimit RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// UpstreamConfig holds upstream connection settings.
type UpstreamConfig struct {
	Address         string `toml:"address"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	IdleConnections int    `toml:"idle_connections"`
}

// GraceConfig holds the grace period settings. The durations are pointers
// so that an explicit 0 can be told apart from an omitted key.
type GraceConfig struct {
	StartTimeRaw          string   `toml:"start_time"`
	PeriodSeconds         *float64 `toml:"period_seconds"`
	RequestTimeoutSeconds *float64 `toml:"request_timeout_seconds"`

	// StartTime is StartTimeRaw parsed during Load.
	StartTime time.Time `toml:"-"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// StatusConfig controls the grace status endpoint.
type StatusConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file, if any, and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/graceful-hc-proxy/config.toml then configs/config.toml. Running
// without any config file is allowed; everything can come from flags and
// environment variables.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.Upstream != "" {
		c.Upstream.Address = cli.Upstream
	}
	if cli.StartTime != "" {
		c.Grace.StartTimeRaw = cli.StartTime
	}
	if cli.GracePeriod != nil {
		c.Grace.PeriodSeconds = cli.GracePeriod
	}
	if cli.GraceTimeout != nil {
		c.Grace.RequestTimeoutSeconds = cli.GraceTimeout
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	// Upstream address: required, http or https with a host.
	if c.Upstream.Address == "" {
		return errors.New("upstream.address is required (or set UPSTREAM_ADDRESS)")
	}
	u, err := url.Parse(c.Upstream.Address)
	if err != nil {
		return fmt.Errorf("upstream.address is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("upstream.address must use http or https; got %q", c.Upstream.Address)
	}
	if u.Host == "" {
		return fmt.Errorf("upstream.address has no host; got %q", c.Upstream.Address)
	}

	// Grace period.
	if c.Grace.StartTimeRaw == "" {
		return errors.New("grace.start_time is required (or set START_TIME)")
	}
	st, err := ParseStartTime(c.Grace.StartTimeRaw)
	if err != nil {
		return fmt.Errorf("grace.start_time: %w", err)
	}
	c.Grace.StartTime = st
	if p := c.Grace.PeriodSeconds; p != nil && !validSeconds(*p) {
		return fmt.Errorf("grace.period_seconds must be a non-negative number below %.0f; got %v", maxSeconds, *p)
	}
	if p := c.Grace.RequestTimeoutSeconds; p != nil && !validSeconds(*p) {
		return fmt.Errorf("grace.request_timeout_seconds must be a non-negative number below %.0f; got %v", maxSeconds, *p)
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Admin paths shadow upstream paths, so they must be well formed and distinct.
	if c.Metrics.Enabled && c.Metrics.Path != "" && c.Metrics.Path[0] != '/' {
		return fmt.Errorf("metrics.path must start with '/'; got %q", c.Metrics.Path)
	}
	if c.Status.Enabled && c.Status.Path != "" && c.Status.Path[0] != '/' {
		return fmt.Errorf("status.path must start with '/'; got %q", c.Status.Path)
	}
	if c.Metrics.Enabled && c.Status.Enabled && c.metricsPath() == c.statusPath() {
		return fmt.Errorf("metrics.path and status.path must differ; both are %q", c.metricsPath())
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, TimeoutSeconds, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key. Setting port=0 in
// the config file therefore results in the default port (8000).
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 120
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 16
	}
	if c.Grace.PeriodSeconds == nil {
		v := float64(defaultGracePeriodSeconds)
		c.Grace.PeriodSeconds = &v
	}
	if c.Grace.RequestTimeoutSeconds == nil {
		v := float64(defaultRequestTimeoutSeconds)
		c.Grace.RequestTimeoutSeconds = &v
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	c.Metrics.Path = c.metricsPath()
	c.Status.Path = c.statusPath()
}

func (c *Config) metricsPath() string {
	if c.Metrics.Path == "" {
		return "/metrics"
	}
	return c.Metrics.Path
}

func (c *Config) statusPath() string {
	if c.Status.Path == "" {
		return "/-/grace"
	}
	return c.Status.Path
}

// Period returns the grace period length, defaulting to 300s.
func (g *GraceConfig) Period() time.Duration {
	if g.PeriodSeconds == nil {
		return defaultGracePeriodSeconds * time.Second
	}
	return seconds(*g.PeriodSeconds)
}

// RequestTimeout returns the upstream timeout used during the grace period,
// defaulting to 1s.
func (g *GraceConfig) RequestTimeout() time.Duration {
	if g.RequestTimeoutSeconds == nil {
		return defaultRequestTimeoutSeconds * time.Second
	}
	return seconds(*g.RequestTimeoutSeconds)
}

// maxSeconds is the first value whose nanosecond count no longer fits a time.Duration.
const maxSeconds = math.MaxInt64 / float64(time.Second)

func validSeconds(v float64) bool {
	return v >= 0 && v*float64(time.Second) < math.MaxInt64 && !math.IsNaN(v)
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// startTimeLayouts are tried in order by ParseStartTime.
var startTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseStartTime parses a launcher-supplied start instant. It accepts RFC 3339
// timestamps (a missing zone means UTC) and Unix epoch seconds, optionally
// fractional.
func ParseStartTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty start time")
	}

	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(secs) || math.IsInf(secs, 0) {
			return time.Time{}, fmt.Errorf("invalid epoch seconds %q", s)
		}
		whole, frac := math.Modf(secs)
		return time.Unix(int64(whole), int64(frac*1e9)).UTC(), nil
	}

	for _, layout := range startTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized start time %q (want RFC 3339 or Unix seconds)", s)
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
