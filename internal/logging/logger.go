package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LogSettings controls where logs go.
//
// Modes:
// - NoLogs=true  => console-only (stdout). No log files are created.
// - NoLogs=false => write logs to files under LogDir.
type LogSettings struct {
	NoLogs bool
	LogDir string
}

// Logger is a lightweight, goroutine-safe logger intended for a single
// shared instance across the daemon and the CLI: the scheduler loop logs
// from one goroutine, but a future reconciliation pass running
// concurrently with admission would need the same serialization mu
// provides.
type Logger struct {
	// ConfigDir is where we look for logging.json (enabled/disabled log levels).
	ConfigDir string

	settings LogSettings

	// levels stores enabled log levels loaded once at startup from logging.json.
	levels map[string]bool

	mu sync.Mutex
}

// New initializes a Logger. If settings.NoLogs is false, settings.LogDir
// must be set and is created (fail early if invalid/unwritable).
func New(configDir string, settings LogSettings) (*Logger, error) {
	levels, err := loadLevels(configDir)
	if err != nil {
		return nil, err
	}

	if !settings.NoLogs {
		if settings.LogDir == "" {
			return nil, fmt.Errorf("log dir is empty (settings.LogDir)")
		}
		if err := os.MkdirAll(settings.LogDir, os.ModePerm); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}

	return &Logger{
		ConfigDir: configDir,
		settings:  settings,
		levels:    levels,
	}, nil
}

// loadLevels loads log-level enable/disable configuration from logging.json.
//
// If logging.json does not exist, defaults are returned: INFO/WARN/ERROR/
// SUCCESS/FATAL enabled, DEBUG disabled.
//
// Policy for unknown levels (fail-open): if a level isn't present in
// logging.json, treat it as enabled rather than silently dropping it.
func loadLevels(configDir string) (map[string]bool, error) {
	path := filepath.Join(configDir, "logging.json")

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return map[string]bool{
				"DEBUG":   false,
				"INFO":    true,
				"WARN":    true,
				"ERROR":   true,
				"SUCCESS": true,
				"FATAL":   true,
			}, nil
		}
		return nil, fmt.Errorf("stat logging config: %w", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read logging config: %w", err)
	}

	var levels map[string]bool
	if err := json.Unmarshal(b, &levels); err != nil {
		return nil, fmt.Errorf("parse logging config: %w", err)
	}
	return levels, nil
}

// Enabled returns whether a log level is enabled.
func (l *Logger) Enabled(level string) bool {
	level = strings.ToUpper(strings.TrimSpace(level))

	enabled, ok := l.levels[level]
	if ok && !enabled {
		return false
	}
	return true
}

// Log writes a single log line to either stdout (NoLogs mode) or daily
// log files.
//
// Output format:
//
//	[MM/DD/YY HH:MM:SS] [LEVEL] -> message
//
// File mode behavior:
// - Writes every line to: scheduler_YYYY-MM-DD.log
// - Writes ERROR lines also to: errors_YYYY-MM-DD.log
func (l *Logger) Log(level, msg string) {
	level = strings.ToUpper(strings.TrimSpace(level))

	if !l.Enabled(level) {
		return
	}

	now := time.Now()
	date := now.Format("2006-01-02")
	timeStamp := now.Format("01/02/06 15:04:05")

	stamp := fmt.Sprintf("[%s] [%s]", timeStamp, level)
	line := fmt.Sprintf("%s -> %s\n", stamp, msg)

	if l.settings.NoLogs {
		fmt.Print(line)
		return
	}

	schedulerFile := filepath.Join(l.settings.LogDir, fmt.Sprintf("scheduler_%s.log", date))

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := appendLine(schedulerFile, line); err != nil {
		fmt.Printf("Error writing to log file: %v\n", err)
		return
	}

	if level == "ERROR" {
		errorFile := filepath.Join(l.settings.LogDir, fmt.Sprintf("errors_%s.log", date))
		if err := appendLine(errorFile, line); err != nil {
			fmt.Printf("Error writing to error log file: %v\n", err)
			return
		}
	}
}

func appendLine(path string, line string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteString(line)
	return err
}

// Convenience methods avoid passing level strings everywhere.
func (l *Logger) Debug(msg string)   { l.Log("DEBUG", msg) }
func (l *Logger) Info(msg string)    { l.Log("INFO", msg) }
func (l *Logger) Warn(msg string)    { l.Log("WARN", msg) }
func (l *Logger) Error(msg string)   { l.Log("ERROR", msg) }
func (l *Logger) Success(msg string) { l.Log("SUCCESS", msg) }

// Fatal logs the message and exits the process with code 1.
// os.Exit(1) terminates immediately — defers do not run.
func (l *Logger) Fatal(msg string) { l.Log("FATAL", msg); os.Exit(1) }

func (l *Logger) Debugf(format string, args ...any)   { l.Debug(fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...any)    { l.Info(fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...any)    { l.Warn(fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...any)   { l.Error(fmt.Sprintf(format, args...)) }
func (l *Logger) Successf(format string, args ...any) { l.Success(fmt.Sprintf(format, args...)) }
func (l *Logger) Fatalf(format string, args ...any)   { l.Fatal(fmt.Sprintf(format, args...)) }
