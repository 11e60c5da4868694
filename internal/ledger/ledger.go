// Package ledger owns the two persistent documents that record resource
// limits and current usage, with atomic read-modify-write delta
// application guarded by an advisory lock.
package ledger

import (
	"errors"
	"fmt"

	"github.com/hcleelove/jqs/internal/jqserrors"
	"github.com/hcleelove/jqs/internal/jsonutil"
	"github.com/hcleelove/jqs/internal/lockfile"
)

// Limits is the cores_total/mem_mb_total document.
type Limits struct {
	CoresTotal int `json:"cores_total"`
	MemMBTotal int `json:"mem_mb_total"`
}

// Usage is the cores_used/mem_mb_used document.
type Usage struct {
	CoresUsed int `json:"cores_used"`
	MemMBUsed int `json:"mem_mb_used"`
}

// Default limits applied the first time limits.json is read and found
// absent.
const (
	DefaultCoresTotal = 16
	DefaultMemMBTotal = 65536
)

// Ledger holds the two documents and the lock guarding usage updates.
type Ledger struct {
	limitsPath string
	usagePath  string
	usageLock  *lockfile.Locker
}

// New returns a Ledger backed by the given file paths. usageLockPath
// names the advisory lock file guarding read-modify-write of usage.json.
func New(limitsPath, usagePath, usageLockPath string) *Ledger {
	return &Ledger{
		limitsPath: limitsPath,
		usagePath:  usagePath,
		usageLock:  lockfile.New(usageLockPath),
	}
}

// Limits reads limits.json, initializing it with defaults on first read
// if absent. This is a read-only operation: no lock is taken, so a
// reader can observe a slightly stale value under concurrent writers.
func (l *Ledger) Limits() (Limits, error) {
	var lim Limits
	if !jsonutil.Exists(l.limitsPath) {
		lim = Limits{CoresTotal: DefaultCoresTotal, MemMBTotal: DefaultMemMBTotal}
		if err := jsonutil.WriteFile(l.limitsPath, lim); err != nil {
			return Limits{}, err
		}
		return lim, nil
	}
	if err := jsonutil.ReadFile(l.limitsPath, &lim); err != nil {
		return Limits{}, err
	}
	return lim, nil
}

// SetLimits overwrites limits.json unconditionally. The daemon calls this
// once at startup with its configured totals so that limits.json always
// reflects the active configuration rather than whatever defaults were
// written on some earlier first read.
func (l *Ledger) SetLimits(lim Limits) error {
	return jsonutil.WriteFile(l.limitsPath, lim)
}

// Usage reads usage.json, initializing it to zero on first read if absent.
func (l *Ledger) Usage() (Usage, error) {
	var u Usage
	if !jsonutil.Exists(l.usagePath) {
		u = Usage{}
		if err := jsonutil.WriteFile(l.usagePath, u); err != nil {
			return Usage{}, err
		}
		return u, nil
	}
	if err := jsonutil.ReadFile(l.usagePath, &u); err != nil {
		return Usage{}, err
	}
	return u, nil
}

// ApplyDelta holds the usage lock, reads the current usage and limits,
// computes new values, validates 0 <= new <= limits on each resource, and
// persists and returns the new usage. The lock is held across the whole
// read-modify-write, so two concurrent ApplyDelta calls from different
// processes never interleave.
//
// A negative deltaCores/deltaMem releases resources (used on completion,
// failure, or cancellation); a positive one reserves them (used on
// admission).
func (l *Ledger) ApplyDelta(deltaCores, deltaMem int) (Usage, error) {
	var result Usage
	err := l.usageLock.WithLock(func() error {
		usage, err := l.Usage()
		if err != nil {
			return err
		}
		limits, err := l.Limits()
		if err != nil {
			return err
		}

		newCores := usage.CoresUsed + deltaCores
		newMem := usage.MemMBUsed + deltaMem

		if newCores < 0 || newMem < 0 {
			return fmt.Errorf("cores=%d mem_mb=%d: %w", newCores, newMem, jqserrors.ErrNegative)
		}
		if newCores > limits.CoresTotal || newMem > limits.MemMBTotal {
			return fmt.Errorf("cores=%d/%d mem_mb=%d/%d: %w",
				newCores, limits.CoresTotal, newMem, limits.MemMBTotal, jqserrors.ErrResourceExceeded)
		}

		usage.CoresUsed = newCores
		usage.MemMBUsed = newMem
		if err := jsonutil.WriteFile(l.usagePath, usage); err != nil {
			return err
		}
		result = usage
		return nil
	})
	if err != nil {
		return Usage{}, err
	}
	return result, nil
}

// Available is a convenience snapshot helper used by the scheduler's
// admission phase: limits minus usage, read once per cycle.
type Available struct {
	Cores int
	MemMB int
}

// Snapshot reads limits and usage once and returns the available
// headroom on each resource. Errors are never wrapped as
// ErrResourceExceeded/ErrNegative here — those only apply to ApplyDelta.
func (l *Ledger) Snapshot() (Available, error) {
	limits, err := l.Limits()
	if err != nil {
		return Available{}, err
	}
	usage, err := l.Usage()
	if err != nil {
		return Available{}, err
	}
	return Available{
		Cores: limits.CoresTotal - usage.CoresUsed,
		MemMB: limits.MemMBTotal - usage.MemMBUsed,
	}, nil
}

// IsResourceExceeded and IsNegative let callers branch on ApplyDelta's
// failure kind without importing jqserrors themselves.
func IsResourceExceeded(err error) bool { return errors.Is(err, jqserrors.ErrResourceExceeded) }
func IsNegative(err error) bool         { return errors.Is(err, jqserrors.ErrNegative) }
