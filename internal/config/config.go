// Package config loads the daemon's own tunables: base directory,
// resource totals, history retention and poll interval. Values layer
// file defaults, then environment overrides, then flag overrides, the
// same layering golly's own config package documents for its
// properties/environment helpers, applied here to a single typed
// struct instead of a generic key-value store.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/hcleelove/jqs/internal/ledger"
	"github.com/hcleelove/jqs/internal/pathstore"
)

// AppConfig is the scheduler daemon's resolved configuration. It is
// built once per command invocation (cmd/jqs's build) and passed down
// read-only from there.
type AppConfig struct {
	// BaseDir is the root of the queue/running/finished/locks tree.
	// Defaults to ~/jqs.
	BaseDir string `yaml:"base_dir"`

	// CoresTotal and MemMBTotal are the scheduler's conserved resource
	// totals. Zero means "use the ledger's built-in defaults".
	CoresTotal int `yaml:"cores_total"`
	MemMBTotal int `yaml:"mem_mb_total"`

	// HistoryKeep is how many finished jobs are retained per cycle.
	HistoryKeep int `yaml:"history_keep"`

	// PollIntervalSeconds is the delay between scheduler cycles.
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`

	// NoLogs and LogDir mirror logging.LogSettings; kept as plain
	// fields here so the file/env/flag layering can populate them
	// before a logging.Logger is constructed.
	NoLogs bool   `yaml:"no_logs"`
	LogDir string `yaml:"log_dir"`
}

// Default returns the built-in fallback configuration, used as the
// base layer before a config file or environment variables apply.
func Default() AppConfig {
	base, err := pathstore.DefaultBase()
	if err != nil {
		base = "jqs"
	}
	return AppConfig{
		BaseDir:             base,
		CoresTotal:          ledger.DefaultCoresTotal,
		MemMBTotal:          ledger.DefaultMemMBTotal,
		HistoryKeep:         100,
		PollIntervalSeconds: 5,
	}
}

// LoadFile merges a YAML file on top of cfg. A missing file is not an
// error; callers typically pass an optional, user-supplied path.
func LoadFile(cfg AppConfig, path string) (AppConfig, error) {
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any JQS_* environment variables present,
// following the get-with-default shape golly's config/environment.go
// uses for every scalar kind it supports.
func ApplyEnv(cfg AppConfig) (AppConfig, error) {
	cfg.BaseDir = envString("JQS_BASE_DIR", cfg.BaseDir)

	cores, err := envInt("JQS_CORES_TOTAL", cfg.CoresTotal)
	if err != nil {
		return cfg, err
	}
	cfg.CoresTotal = cores

	mem, err := envInt("JQS_MEM_MB_TOTAL", cfg.MemMBTotal)
	if err != nil {
		return cfg, err
	}
	cfg.MemMBTotal = mem

	keep, err := envInt("JQS_HISTORY_KEEP", cfg.HistoryKeep)
	if err != nil {
		return cfg, err
	}
	cfg.HistoryKeep = keep

	poll, err := envInt("JQS_POLL_INTERVAL_SECONDS", cfg.PollIntervalSeconds)
	if err != nil {
		return cfg, err
	}
	cfg.PollIntervalSeconds = poll

	noLogs, err := envBool("JQS_NO_LOGS", cfg.NoLogs)
	if err != nil {
		return cfg, err
	}
	cfg.NoLogs = noLogs

	cfg.LogDir = envString("JQS_LOG_DIR", cfg.LogDir)

	return cfg, nil
}

func envString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	if val, ok := os.LookupEnv(key); ok {
		return strconv.Atoi(val)
	}
	return defaultVal, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	if val, ok := os.LookupEnv(key); ok {
		return strconv.ParseBool(val)
	}
	return defaultVal, nil
}

// Overrides carries flag-supplied values from cmd/jqs. A nil pointer
// field means "flag not set, leave the layered value alone" — the
// same semantics golly's Get* helpers give a missing property.
type Overrides struct {
	BaseDir             *string
	CoresTotal          *int
	MemMBTotal          *int
	HistoryKeep         *int
	PollIntervalSeconds *int
}

// ApplyFlags is the final, highest-precedence layer.
func ApplyFlags(cfg AppConfig, o Overrides) AppConfig {
	if o.BaseDir != nil {
		cfg.BaseDir = *o.BaseDir
	}
	if o.CoresTotal != nil {
		cfg.CoresTotal = *o.CoresTotal
	}
	if o.MemMBTotal != nil {
		cfg.MemMBTotal = *o.MemMBTotal
	}
	if o.HistoryKeep != nil {
		cfg.HistoryKeep = *o.HistoryKeep
	}
	if o.PollIntervalSeconds != nil {
		cfg.PollIntervalSeconds = *o.PollIntervalSeconds
	}
	return cfg
}

// Load runs the full file -> environment -> flag layering and returns
// the resolved configuration.
func Load(filePath string, overrides Overrides) (AppConfig, error) {
	cfg := Default()

	cfg, err := LoadFile(cfg, filePath)
	if err != nil {
		return cfg, err
	}

	cfg, err = ApplyEnv(cfg)
	if err != nil {
		return cfg, fmt.Errorf("apply environment overrides: %w", err)
	}

	return ApplyFlags(cfg, overrides), nil
}
