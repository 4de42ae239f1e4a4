package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Dicklesworthstone/wrt_device_api/internal/logging"
	"github.com/Dicklesworthstone/wrt_device_api/internal/native"
)

// Config carries runtime options for wrtmon.
type Config struct {
	Interval     time.Duration
	JSON         bool
	JSONStream   bool
	EnableBatt   bool
	LogLevel     logging.Level
	LogFile      string
	FetchWorkers int
	AppID        string
	HTTPAddr     string
	Features     map[string]string
}

func Default() Config {
	return Config{
		Interval:     time.Second,
		JSON:         false,
		JSONStream:   false,
		EnableBatt:   true,
		LogLevel:     logging.LevelWarn,
		FetchWorkers: 1,
		AppID:        "org.tizen.wrtmon",
		Features:     map[string]string{},
	}
}

// featureFlag collects repeated -feature key=value overrides.
type featureFlag map[string]string

func (f featureFlag) String() string {
	parts := make([]string, 0, len(f))
	for k, v := range f {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (f featureFlag) Set(s string) error {
	k, v, err := native.ParseOverride(s)
	if err != nil {
		return err
	}
	f[k] = v
	return nil
}

type levelFlag struct{ level *logging.Level }

func (l levelFlag) String() string {
	if l.level == nil {
		return ""
	}
	return l.level.String()
}

func (l levelFlag) Set(s string) error {
	lvl, err := logging.ParseLevel(s)
	if err != nil {
		return err
	}
	*l.level = lvl
	return nil
}

// FromFlags parses flags and environment overrides.
func FromFlags(args []string) (Config, error) {
	cfg := Default()
	fs := flag.NewFlagSet("wrtmon", flag.ContinueOnError)
	fs.DurationVar(&cfg.Interval, "interval", cfg.Interval, "refresh interval")
	fs.BoolVar(&cfg.JSON, "json", cfg.JSON, "output one-shot JSON and exit")
	fs.BoolVar(&cfg.JSONStream, "json-stream", cfg.JSONStream, "stream NDJSON until interrupted")
	fs.BoolVar(&cfg.EnableBatt, "battery", cfg.EnableBatt, "feed battery state from sysfs")
	fs.Var(levelFlag{&cfg.LogLevel}, "log-level", "none|error|warn|info|debug")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "write logs to a rotated file instead of stderr")
	fs.IntVar(&cfg.FetchWorkers, "fetch-workers", cfg.FetchWorkers, "concurrent platform queries")
	fs.StringVar(&cfg.AppID, "app-id", cfg.AppID, "application id of the message port client")
	fs.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "serve /metrics and property queries on this address")
	fs.Var(featureFlag(cfg.Features), "feature", "override a platform feature, key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if v := os.Getenv("WRT_INTERVAL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Interval = parsed
		} else if parsed, err2 := time.ParseDuration(v + "s"); err2 == nil {
			cfg.Interval = parsed
		}
	}
	if v := os.Getenv("WRT_BATT"); v == "0" {
		cfg.EnableBatt = false
	}
	if v := os.Getenv("WRT_LOG_LEVEL"); v != "" {
		if lvl, err := logging.ParseLevel(v); err == nil {
			cfg.LogLevel = lvl
		}
	}
	if v := os.Getenv("WRT_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("WRT_HTTP"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("WRT_FETCH_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FetchWorkers = n
		}
	}
	if cfg.Interval <= 0 {
		return cfg, fmt.Errorf("interval must be positive, got %s", cfg.Interval)
	}
	if cfg.FetchWorkers < 1 {
		return cfg, fmt.Errorf("fetch-workers must be at least 1, got %d", cfg.FetchWorkers)
	}
	return cfg, nil
}

// ApplyFeatures writes the overrides into the feature table.
func (c Config) ApplyFeatures(f *native.Features) {
	for k, v := range c.Features {
		f.SetString(k, v)
	}
}
