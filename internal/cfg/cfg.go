package cfg

import (
	"errors"
	"flag"
	"fmt"
	"strings"
)

// Config adds bosun-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	RedisChannelPrefix    string
	APIToken              string
	PollIntervalSeconds   int
	LivePageSize          int
	SweepIntervalSeconds  int
	RoutesFile            string
	StrictLinks           bool
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.StringVar(&c.RedisAddr, "redis-addr", "", "Redis address for the cross-instance change feed (empty = in-process feed)")
	fs.StringVar(&c.RedisPassword, "redis-password", "", "Redis password")
	fs.IntVar(&c.RedisDB, "redis-db", 0, "Redis logical database (0..15)")
	fs.StringVar(&c.RedisChannelPrefix, "redis-channel-prefix", "bosun:alerts", "prefix for per-tenant change channels")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on /api/v1 (empty = identity headers only)")
	fs.IntVar(&c.PollIntervalSeconds, "poll-interval-seconds", 30, "fallback refresh interval for live alert streams (1..3600)")
	fs.IntVar(&c.LivePageSize, "live-page-size", 20, "number of alerts in the live view (1..500)")
	fs.IntVar(&c.SweepIntervalSeconds, "sweep-interval-seconds", 60, "interval for releasing elapsed snoozes (1..3600)")
	fs.StringVar(&c.RoutesFile, "routes-file", "", "YAML file with deep-link routes (empty = built-in table)")
	fs.BoolVar(&c.StrictLinks, "strict-links", false, "disable prefix matching when resolving deep links")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.PollIntervalSeconds <= 0 || c.PollIntervalSeconds > 3600 {
		errs = append(errs, fmt.Errorf("invalid POLL_INTERVAL_SECONDS %d (must be 1..3600)", c.PollIntervalSeconds))
	}
	if c.SweepIntervalSeconds <= 0 || c.SweepIntervalSeconds > 3600 {
		errs = append(errs, fmt.Errorf("invalid SWEEP_INTERVAL_SECONDS %d (must be 1..3600)", c.SweepIntervalSeconds))
	}
	if c.LivePageSize <= 0 || c.LivePageSize > 500 {
		errs = append(errs, fmt.Errorf("invalid LIVE_PAGE_SIZE %d (must be 1..500)", c.LivePageSize))
	}

	// Redis settings only matter when a feed address is configured
	if c.RedisAddr != "" {
		if c.RedisDB < 0 || c.RedisDB > 15 {
			errs = append(errs, fmt.Errorf("invalid REDIS_DB %d (must be 0..15)", c.RedisDB))
		}
		if strings.TrimSpace(c.RedisChannelPrefix) == "" {
			errs = append(errs, errors.New("REDIS_CHANNEL_PREFIX is required when REDIS_ADDR is set"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
