// Package jsonutil is the shared JSON read/write helper. It exists here
// because every persistent document in this system (job metadata, the
// ledger, the counter) needs one, and because none of the components
// that use it should each reinvent "write pretty JSON to a temp file,
// then rename".
package jsonutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ReadFile decodes the JSON document at path into v. It returns
// os.ErrNotExist (wrapped) if the file is absent so callers can tell
// "missing" apart from "malformed".
func ReadFile(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// WriteFile pretty-prints v as two-space-indented JSON and writes it to
// path via a temp-file-then-rename, so a reader never observes a
// partially written document.
func WriteFile(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	b = append(b, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()

	ok := false
	defer func() {
		_ = tmp.Close()
		if !ok {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(b); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	ok = true

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

// Exists reports whether path exists, treating anything but ErrNotExist as
// "exists": a path that exists but is unreadable must never be silently
// treated as absent.
func Exists(path string) bool {
	_, err := os.Stat(path)
	if err == nil {
		return true
	}
	return !os.IsNotExist(err)
}
