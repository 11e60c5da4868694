package supervisor

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory process table standing in for a real supervisor
// in tests. Tests drive it by calling Launch through the Supervisor
// interface as the scheduler would, then mutate a unit's reported
// status directly via SetStatus to simulate the supervisor observing
// completion or failure, or remove it via Forget to simulate
// disappearance.
type Fake struct {
	mu sync.Mutex

	units map[string]Status

	// LaunchErr, if set, is returned by every subsequent Launch call
	// instead of succeeding — used to exercise the launch-failure path.
	LaunchErr error

	// StopErr, if set, is returned by every subsequent Stop call.
	StopErr error

	launched []LaunchParams
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{units: make(map[string]Status)}
}

// Launch records the unit as running, unless LaunchErr is set.
func (f *Fake) Launch(_ context.Context, p LaunchParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.LaunchErr != nil {
		return f.LaunchErr
	}

	f.units[p.Unit] = Status{ActiveState: Active, SubState: SubRunning}
	f.launched = append(f.launched, p)
	return nil
}

// Stop reports the unit as inactive/exited with exit code 0, unless
// StopErr is set (in which case the unit's recorded status is left
// untouched, as a real systemctl stop failure would).
func (f *Fake) Stop(_ context.Context, unit string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.StopErr != nil {
		return f.StopErr
	}

	zero := 0
	f.units[unit] = Status{ActiveState: Inactive, SubState: SubExited, ExitStatus: &zero}
	return nil
}

// Status returns the unit's current recorded status, or an error if the
// unit was never launched or was removed via Forget (simulating
// disappearance).
func (f *Fake) Status(_ context.Context, unit string) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st, ok := f.units[unit]
	if !ok {
		return Status{}, fmt.Errorf("unit %s: not found", unit)
	}
	return st, nil
}

// SetStatus overrides a launched unit's reported status — how tests
// simulate the supervisor observing a job complete, fail, or exit with
// a particular code.
func (f *Fake) SetStatus(unit string, st Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.units[unit] = st
}

// Forget removes a unit from the table entirely, simulating the unit
// disappearing out from under the scheduler (Status then errors).
func (f *Fake) Forget(unit string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.units, unit)
}

// Launched returns the LaunchParams of every accepted Launch call, in
// call order — tests use it to assert on what the scheduler asked for.
func (f *Fake) Launched() []LaunchParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]LaunchParams, len(f.launched))
	copy(out, f.launched)
	return out
}
