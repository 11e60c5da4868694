// Package model defines the job record and its component types.
//
// A Job is the single document that encodes everything about one
// submission: what it asked for, where it ran, and how it ended. Nothing
// else in this repository keeps job state anywhere but here.
package model

import "time"

// State is one of the five job lifecycle states.
type State string

const (
	Pending   State = "PENDING"
	Running   State = "RUNNING"
	Completed State = "COMPLETED"
	Failed    State = "FAILED"
	Cancelled State = "CANCELLED"
)

// Terminal reports whether state is one of the three states a job never
// leaves once reached.
func (s State) Terminal() bool {
	switch s {
	case Completed, Failed, Cancelled:
		return true
	default:
		return false
	}
}

// Dir returns the on-disk subtree a job in this state lives under:
// "queue", "running", or "finished".
func (s State) Dir() string {
	switch s {
	case Pending:
		return "queue"
	case Running:
		return "running"
	default:
		return "finished"
	}
}

// ResourceRequest is the declared, fixed-at-submit resource need of a job.
type ResourceRequest struct {
	Cores     int    `json:"cores"`
	MemMB     int    `json:"mem_mb"`
	TimeLimit string `json:"time_limit,omitempty"`
}

// IO holds the (unexpanded) stdout/stderr path templates from the script
// header. Expansion of %x/%j happens at launch time, not at submit time,
// so a job record always shows the operator-authored template.
type IO struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// Job is the full metadata document persisted as meta.json inside a job
// directory. This is the wire format, not just an in-memory convenience
// type: field names and nesting are load-bearing for anything that reads
// meta.json directly (operators, the CLI's q/info commands).
type Job struct {
	JobID      string          `json:"job_id"`
	Name       string          `json:"name"`
	User       string          `json:"user"`
	SubmitTime time.Time       `json:"submit_time"`
	StartTime  *time.Time      `json:"start_time"`
	EndTime    *time.Time      `json:"end_time"`
	Req        ResourceRequest `json:"req"`
	IO         IO              `json:"io"`
	Workdir    string          `json:"workdir"`
	State      State           `json:"state"`
	UnitName   *string         `json:"unit_name"`
	ExitCode   *int            `json:"exit_code"`
	Notes      string          `json:"notes,omitempty"`
}

// UnitTemplate is the canonical systemd-unit naming scheme: jqs-job-<job_id>.
const UnitTemplate = "jqs-job-%s"
