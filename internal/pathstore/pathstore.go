// Package pathstore owns the on-disk directory layout: the three
// job-state subtrees, the locks directory, and the top-level ledger
// files. Nothing here knows what a job is — that
// keeps the layout reusable by every component that needs a path,
// without a dependency cycle back into jobstore or ledger.
package pathstore

import (
	"fmt"
	"os"
	"path/filepath"
)

// Store resolves absolute paths under a single base directory and creates
// the fixed subtree on demand. Creation is idempotent: New can be called
// any number of times against the same base without error.
type Store struct {
	base string
}

// New creates (if needed) queue/, running/, finished/, and locks/ under
// base and returns a Store rooted there.
func New(base string) (*Store, error) {
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("resolve base dir %s: %w", base, err)
	}
	s := &Store{base: abs}
	for _, dir := range []string{s.Queue(), s.Running(), s.Finished(), s.Locks()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return s, nil
}

// Base returns the root directory.
func (s *Store) Base() string { return s.base }

func (s *Store) Queue() string    { return filepath.Join(s.base, "queue") }
func (s *Store) Running() string  { return filepath.Join(s.base, "running") }
func (s *Store) Finished() string { return filepath.Join(s.base, "finished") }
func (s *Store) Locks() string    { return filepath.Join(s.base, "locks") }

// JobDir returns the directory a job with the given id would occupy under
// stateDir (one of Queue(), Running(), Finished()).
func (s *Store) JobDir(stateDir, jobID string) string {
	return filepath.Join(stateDir, jobID)
}

func (s *Store) LimitsFile() string  { return filepath.Join(s.base, "limits.json") }
func (s *Store) UsageFile() string   { return filepath.Join(s.base, "usage.json") }
func (s *Store) CounterFile() string { return filepath.Join(s.base, "jobid_counter") }
func (s *Store) ConfigFile() string  { return filepath.Join(s.base, "config.json") }

// UsageLockFile and CounterLockFile are the named advisory-lock targets
// for the two shared documents that require read-modify-write exclusivity.
// Each lives under locks/ rather than next to the document
// it guards, so a corrupted lock file can never be mistaken for the
// document itself.
func (s *Store) UsageLockFile() string   { return filepath.Join(s.Locks(), "usage.lock") }
func (s *Store) CounterLockFile() string { return filepath.Join(s.Locks(), "jobid_counter.lock") }

// DefaultBase resolves the default per-user data directory, "~/jqs".
// A scheduler daemon's data should follow its owning user rather than
// the running binary's location, since it is typically installed as a
// long-lived service rather than launched from a fixed path.
func DefaultBase() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, "jqs"), nil
}
