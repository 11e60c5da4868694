// Package supervisor abstracts the external process supervisor the
// scheduler delegates execution to. The production adapter drives
// systemd user transient units via systemd-run/systemctl; the in-memory
// fake stands in for it in tests.
package supervisor

import "context"

// ActiveState mirrors systemd's unit active-state vocabulary.
type ActiveState string

const (
	Active       ActiveState = "active"
	Inactive     ActiveState = "inactive"
	Failed       ActiveState = "failed"
	Activating   ActiveState = "activating"
	Deactivating ActiveState = "deactivating"
	Unknown      ActiveState = "unknown"
)

// SubState mirrors systemd's unit sub-state vocabulary, restricted to
// the values this system cares about.
type SubState string

const (
	SubRunning SubState = "running"
	SubExited  SubState = "exited"
	SubDead    SubState = "dead"
	SubFailed  SubState = "failed"
)

// Status is one unit's observed state.
type Status struct {
	ActiveState ActiveState
	SubState    SubState
	// ExitStatus is nil if the supervisor hasn't reported one yet.
	ExitStatus *int
}

// Terminal reports whether this status represents a finished unit:
// inactive and either exited or dead.
func (s Status) Terminal() bool {
	return s.ActiveState == Inactive && (s.SubState == SubExited || s.SubState == SubDead)
}

// ExitCodeOrDefault returns ExitStatus, defaulting to 0 if absent —
// the completion predicate treats a missing exit status as success.
func (s Status) ExitCodeOrDefault() int {
	if s.ExitStatus == nil {
		return 0
	}
	return *s.ExitStatus
}

// LaunchParams bundles everything the adapter needs to start one job.
type LaunchParams struct {
	Unit       string
	Cores      int
	MemMB      int
	Workdir    string
	StdoutPath string
	StderrPath string
	TimeLimit  string
	ScriptPath string
}

// Supervisor is the capability the scheduler depends on.
type Supervisor interface {
	// Launch starts unit. It returns once the supervisor has accepted
	// it; the unit runs asynchronously after that. A non-nil error
	// means the launch was rejected — the caller maps this to FAILED.
	Launch(ctx context.Context, params LaunchParams) error

	// Stop requests termination of unit. It must not block
	// indefinitely; a failure here is logged but never fatal to the
	// caller's cancellation flow.
	Stop(ctx context.Context, unit string) error

	// Status reports unit's current state. An error here (the unit
	// disappeared from the supervisor's view) is distinct from a
	// successful Status call reporting a failed unit.
	Status(ctx context.Context, unit string) (Status, error)
}
