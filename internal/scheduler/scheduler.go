// Package scheduler implements the control loop: reconciling running
// jobs against the supervisor's view, admitting pending jobs under the
// ledger's available headroom, and trimming old finished jobs.
package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/hcleelove/jqs/internal/jobstore"
	"github.com/hcleelove/jqs/internal/ledger"
	"github.com/hcleelove/jqs/internal/logging"
	"github.com/hcleelove/jqs/internal/model"
	"github.com/hcleelove/jqs/internal/scripthdr"
	"github.com/hcleelove/jqs/internal/supervisor"
)

// DefaultHistoryKeep is the default number of most-recent finished jobs
// to retain. New does not substitute it: the historyKeep passed to New is
// always used as given.
const DefaultHistoryKeep = 100

// Scheduler drives one cycle at a time; there is no in-process
// parallelism among cycles.
type Scheduler struct {
	store       *jobstore.Store
	ledger      *ledger.Ledger
	sup         supervisor.Supervisor
	log         *logging.Logger
	historyKeep int
}

// New returns a Scheduler. A nil log is accepted, in which case log
// messages are discarded, so callers in tests don't need to construct one.
func New(store *jobstore.Store, led *ledger.Ledger, sup supervisor.Supervisor, log *logging.Logger, historyKeep int) *Scheduler {
	return &Scheduler{store: store, ledger: led, sup: sup, log: log, historyKeep: historyKeep}
}

func (s *Scheduler) logf(level, format string, args ...any) {
	if s.log == nil {
		return
	}
	s.log.Log(level, fmt.Sprintf(format, args...))
}

// Result summarizes one Cycle's work.
type Result struct {
	Completed []string
	Scheduled []string
	Cleaned   int
}

// Cycle runs reconcile → admit → trim, in that fixed order: resources
// freed by reconciliation become available to admission within the same
// cycle. A single job's processing failure is caught at the per-job
// boundary in each phase; only a failure that prevents the phase from
// enumerating jobs at all (e.g. the base directory disappearing)
// propagates out of Cycle.
func (s *Scheduler) Cycle(ctx context.Context) (Result, error) {
	completed, err := s.reconcileRunning(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("reconcile running jobs: %w", err)
	}

	scheduled, err := s.admitPending(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("admit pending jobs: %w", err)
	}

	cleaned, err := s.trimHistory()
	if err != nil {
		return Result{}, fmt.Errorf("trim history: %w", err)
	}

	return Result{Completed: completed, Scheduled: scheduled, Cleaned: cleaned}, nil
}

func (s *Scheduler) reconcileRunning(ctx context.Context) ([]string, error) {
	jobs, err := s.store.List(s.store.Paths().Running())
	if err != nil {
		return nil, err
	}

	var completed []string
	for _, job := range jobs {
		if job.UnitName == nil {
			continue
		}

		st, statusErr := s.sup.Status(ctx, *job.UnitName)
		if statusErr != nil {
			code := -1
			if err := s.finishRunning(job, model.Failed, code, "supervisor status failed: unit disappeared"); err != nil {
				s.logf("ERROR", "reconcile %s: %v", job.JobID, err)
				continue
			}
			completed = append(completed, job.JobID)
			continue
		}

		if !st.Terminal() {
			continue
		}

		exitCode := st.ExitCodeOrDefault()
		newState := model.Completed
		if exitCode != 0 {
			newState = model.Failed
		}
		if err := s.finishRunning(job, newState, exitCode, ""); err != nil {
			s.logf("ERROR", "reconcile %s: %v", job.JobID, err)
			continue
		}
		completed = append(completed, job.JobID)
	}
	return completed, nil
}

func (s *Scheduler) finishRunning(job model.Job, newState model.State, exitCode int, notes string) error {
	if _, err := s.store.Update(job.JobID, newState, jobstore.Extra{ExitCode: &exitCode, Notes: notes}); err != nil {
		return err
	}
	if err := s.store.Move(job.JobID, s.store.Paths().Finished()); err != nil {
		return err
	}
	if _, err := s.ledger.ApplyDelta(-job.Req.Cores, -job.Req.MemMB); err != nil {
		return err
	}
	return nil
}

func (s *Scheduler) admitPending(ctx context.Context) ([]string, error) {
	avail, err := s.ledger.Snapshot()
	if err != nil {
		return nil, err
	}

	jobs, err := s.store.List(s.store.Paths().Queue())
	if err != nil {
		return nil, err
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		if jobs[i].SubmitTime.Equal(jobs[j].SubmitTime) {
			return jobs[i].JobID < jobs[j].JobID
		}
		return jobs[i].SubmitTime.Before(jobs[j].SubmitTime)
	})

	var scheduled []string
	for _, job := range jobs {
		if job.Req.Cores > avail.Cores || job.Req.MemMB > avail.MemMB {
			continue
		}

		if err := s.launch(ctx, job); err != nil {
			s.logf("ERROR", "launch %s: %v", job.JobID, err)
			continue
		}

		avail.Cores -= job.Req.Cores
		avail.MemMB -= job.Req.MemMB
		scheduled = append(scheduled, job.JobID)
	}
	return scheduled, nil
}

// launch stamps the job RUNNING (reserving its unit name), invokes the
// supervisor, and either moves it into running/ with the ledger updated,
// or rolls it back straight to FAILED in finished/ with no ledger delta
// — nothing was reserved, so nothing needs releasing.
func (s *Scheduler) launch(ctx context.Context, job model.Job) error {
	updated, err := s.store.Update(job.JobID, model.Running, jobstore.Extra{})
	if err != nil {
		return err
	}

	dir := s.store.Paths().JobDir(s.store.Paths().Queue(), job.JobID)
	params := supervisor.LaunchParams{
		Unit:       *updated.UnitName,
		Cores:      job.Req.Cores,
		MemMB:      job.Req.MemMB,
		Workdir:    job.Workdir,
		StdoutPath: filepath.Join(job.Workdir, scripthdr.ExpandTemplate(job.IO.Stdout, job.Name, job.JobID)),
		StderrPath: filepath.Join(job.Workdir, scripthdr.ExpandTemplate(job.IO.Stderr, job.Name, job.JobID)),
		TimeLimit:  job.Req.TimeLimit,
		ScriptPath: filepath.Join(dir, "script.sh"),
	}

	if err := s.sup.Launch(ctx, params); err != nil {
		code := 1
		if _, updErr := s.store.Update(job.JobID, model.Failed, jobstore.Extra{ExitCode: &code}); updErr != nil {
			return updErr
		}
		if moveErr := s.store.Move(job.JobID, s.store.Paths().Finished()); moveErr != nil {
			return moveErr
		}
		return fmt.Errorf("launch failed: %w", err)
	}

	if err := s.store.Move(job.JobID, s.store.Paths().Running()); err != nil {
		return err
	}
	if _, err := s.ledger.ApplyDelta(job.Req.Cores, job.Req.MemMB); err != nil {
		return err
	}
	return nil
}

// trimHistory keeps the newest historyKeep finished jobs by end_time and
// removes the rest. Jobs without an end_time are excluded from the sort
// entirely (and therefore never removed) — a behavior preserved from the
// system this was modeled on rather than independently decided here.
func (s *Scheduler) trimHistory() (int, error) {
	keep := s.historyKeep
	if keep < 0 {
		keep = 0
	}

	jobs, err := s.store.List(s.store.Paths().Finished())
	if err != nil {
		return 0, err
	}

	var withEnd []model.Job
	for _, j := range jobs {
		if j.EndTime != nil {
			withEnd = append(withEnd, j)
		}
	}
	sort.Slice(withEnd, func(i, j int) bool {
		return withEnd[i].EndTime.Before(*withEnd[j].EndTime)
	})

	if len(withEnd) <= keep {
		return 0, nil
	}

	toRemove := withEnd[:len(withEnd)-keep]
	cleaned := 0
	for _, j := range toRemove {
		if err := s.store.Remove(s.store.Paths().Finished(), j.JobID); err != nil {
			s.logf("WARN", "trim %s: %v", j.JobID, err)
			continue
		}
		cleaned++
	}
	return cleaned, nil
}

// Cancel applies the cancellation protocol: a no-op on an already
// terminal job, a direct move for PENDING, and a supervisor stop request
// (advisory, failure logged not fatal) followed by a move and ledger
// release for RUNNING.
func (s *Scheduler) Cancel(ctx context.Context, jobID string) error {
	job, _, err := s.store.Read(jobID)
	if err != nil {
		return err
	}

	if job.State.Terminal() {
		return nil
	}

	if job.State == model.Pending {
		if _, err := s.store.Update(jobID, model.Cancelled, jobstore.Extra{}); err != nil {
			return err
		}
		return s.store.Move(jobID, s.store.Paths().Finished())
	}

	// RUNNING.
	if _, err := s.store.Update(jobID, model.Cancelled, jobstore.Extra{}); err != nil {
		return err
	}
	if job.UnitName != nil {
		if err := s.sup.Stop(ctx, *job.UnitName); err != nil {
			s.logf("WARN", "stop %s: %v", *job.UnitName, err)
		}
	}
	if err := s.store.Move(jobID, s.store.Paths().Finished()); err != nil {
		return err
	}
	_, err = s.ledger.ApplyDelta(-job.Req.Cores, -job.Req.MemMB)
	return err
}

// Run loops calling Cycle and sleeping pollInterval between passes. It
// returns cleanly when ctx is cancelled; a cycle already in progress is
// always allowed to finish first.
func (s *Scheduler) Run(ctx context.Context, pollInterval time.Duration) error {
	for {
		result, err := s.Cycle(ctx)
		if err != nil {
			return err
		}
		if len(result.Completed) > 0 || len(result.Scheduled) > 0 {
			s.logf("INFO", "cycle: completed=%v scheduled=%v cleaned=%d",
				result.Completed, result.Scheduled, result.Cleaned)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(pollInterval):
		}
	}
}
