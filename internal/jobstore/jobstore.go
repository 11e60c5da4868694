// Package jobstore owns the three job-state directories and the job-ID
// counter: creation, lookup, state update, directory moves, and listing.
package jobstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hcleelove/jqs/internal/jqserrors"
	"github.com/hcleelove/jqs/internal/jsonutil"
	"github.com/hcleelove/jqs/internal/lockfile"
	"github.com/hcleelove/jqs/internal/model"
	"github.com/hcleelove/jqs/internal/pathstore"
	"github.com/hcleelove/jqs/internal/scripthdr"
)

const (
	metaFile   = "meta.json"
	scriptFile = "script.sh"
)

// DefaultCores and DefaultMemMB are applied to a submission whose script
// header does not set req.cores / req.mem_mb.
const (
	DefaultCores = 1
	DefaultMemMB = 1024
)

// Store is the job-record CRUD layer over a pathstore.Store.
type Store struct {
	paths       *pathstore.Store
	counterLock *lockfile.Locker
}

// New returns a Store rooted at paths.
func New(paths *pathstore.Store) *Store {
	return &Store{
		paths:       paths,
		counterLock: lockfile.New(paths.CounterLockFile()),
	}
}

// AllocateID atomically increments the job-ID counter and formats the
// result as YYYYMMDD-NNNN, NNNN the counter zero-padded to four digits
// (widening if the counter exceeds four digits). The counter itself
// never resets: only the date prefix changes day to day.
func (s *Store) AllocateID() (string, error) {
	var id string
	err := s.counterLock.WithLock(func() error {
		counter := 0
		if b, err := os.ReadFile(s.paths.CounterFile()); err == nil {
			n, convErr := strconv.Atoi(strings.TrimSpace(string(b)))
			if convErr == nil {
				counter = n
			}
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("read counter file: %w", err)
		}

		counter++

		if err := os.WriteFile(s.paths.CounterFile(), []byte(strconv.Itoa(counter)), 0o644); err != nil {
			return fmt.Errorf("write counter file: %w", err)
		}

		id = fmt.Sprintf("%s-%04d", time.Now().Format("20060102"), counter)
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Create parses the script's #JS header, allocates a job ID, copies the
// script into a new queue/<id>/ directory as script.sh, and writes
// meta.json with state=PENDING.
func (s *Store) Create(scriptPath, user string) (model.Job, error) {
	content, err := os.ReadFile(scriptPath)
	if err != nil {
		return model.Job{}, fmt.Errorf("read script %s: %w", scriptPath, err)
	}

	hdr := scripthdr.Parse(string(content))

	absScript, err := filepath.Abs(scriptPath)
	if err != nil {
		return model.Job{}, fmt.Errorf("resolve script path %s: %w", scriptPath, err)
	}

	name := hdr.Name
	if name == "" {
		base := filepath.Base(absScript)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	workdir := hdr.Workdir
	if workdir == "" {
		workdir = filepath.Dir(absScript)
	}

	cores := DefaultCores
	if hdr.HasCores() {
		cores = hdr.Cores
	}
	memMB := DefaultMemMB
	if hdr.HasMemMB() {
		memMB = hdr.MemMB
	}

	stdout := hdr.Stdout
	if stdout == "" {
		stdout = "stdout.log"
	}
	stderr := hdr.Stderr
	if stderr == "" {
		stderr = "stderr.log"
	}

	if user == "" {
		user = "unknown"
	}

	id, err := s.AllocateID()
	if err != nil {
		return model.Job{}, err
	}

	jobDir := s.paths.JobDir(s.paths.Queue(), id)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return model.Job{}, fmt.Errorf("create job dir %s: %w", jobDir, err)
	}

	destScript := filepath.Join(jobDir, scriptFile)
	if err := copyFile(absScript, destScript); err != nil {
		return model.Job{}, fmt.Errorf("copy script into %s: %w", jobDir, err)
	}

	job := model.Job{
		JobID:      id,
		Name:       name,
		User:       user,
		SubmitTime: time.Now(),
		Req: model.ResourceRequest{
			Cores:     cores,
			MemMB:     memMB,
			TimeLimit: hdr.TimeLimit,
		},
		IO: model.IO{
			Stdout: stdout,
			Stderr: stderr,
		},
		Workdir: workdir,
		State:   model.Pending,
	}

	if err := jsonutil.WriteFile(filepath.Join(jobDir, metaFile), job); err != nil {
		return model.Job{}, err
	}

	return job, nil
}

// stateDirs is the fixed search order used by Read, Update, and Move's
// "find the current directory" step.
func (s *Store) stateDirs() []string {
	return []string{s.paths.Queue(), s.paths.Running(), s.paths.Finished()}
}

// locate returns the directory a job currently occupies, searching
// queue, running, finished in that order.
func (s *Store) locate(jobID string) (string, error) {
	for _, stateDir := range s.stateDirs() {
		dir := s.paths.JobDir(stateDir, jobID)
		if jsonutil.Exists(filepath.Join(dir, metaFile)) {
			return dir, nil
		}
	}
	return "", jqserrors.NotFoundf("job %s", jobID)
}

// Read loads a job's metadata, searching queue, running, finished in
// that order. It also returns the directory the job was found in.
func (s *Store) Read(jobID string) (model.Job, string, error) {
	dir, err := s.locate(jobID)
	if err != nil {
		return model.Job{}, "", err
	}
	var job model.Job
	if err := jsonutil.ReadFile(filepath.Join(dir, metaFile), &job); err != nil {
		return model.Job{}, "", err
	}
	return job, dir, nil
}

// Extra carries the fields Update may need to merge in alongside a state
// transition (exit code, a failure note).
type Extra struct {
	ExitCode *int
	Notes    string
}

// Update loads the job's record wherever it currently sits, advances its
// state and timestamps, merges extra, and persists — without moving the
// directory. Per the launch/reconcile/cancel protocols, callers always
// call Update before Move so a crash between the two leaves metadata
// correct even if the directory location lags.
func (s *Store) Update(jobID string, newState model.State, extra Extra) (model.Job, error) {
	dir, err := s.locate(jobID)
	if err != nil {
		return model.Job{}, err
	}

	metaPath := filepath.Join(dir, metaFile)
	var job model.Job
	if err := jsonutil.ReadFile(metaPath, &job); err != nil {
		return model.Job{}, err
	}

	oldState := job.State
	job.State = newState

	now := time.Now()
	if newState == model.Running && oldState == model.Pending {
		job.StartTime = &now
	}
	if newState.Terminal() && (oldState == model.Pending || oldState == model.Running) {
		job.EndTime = &now
	}
	if newState == model.Running && job.UnitName == nil {
		unit := fmt.Sprintf(model.UnitTemplate, jobID)
		job.UnitName = &unit
	}

	if extra.ExitCode != nil {
		job.ExitCode = extra.ExitCode
	}
	if extra.Notes != "" {
		job.Notes = extra.Notes
	}

	if err := jsonutil.WriteFile(metaPath, job); err != nil {
		return model.Job{}, err
	}
	return job, nil
}

// Move renames a job's directory from its current location into
// targetDir (one of paths.Queue()/Running()/Finished()). If the rename
// fails because the cross-device link cannot be created, Move falls back
// to copy-then-remove, leaving the destination complete before removing
// the source. If the target already exists (a concurrent mover won the
// race), Move treats that as success rather than an error.
func (s *Store) Move(jobID, targetDir string) error {
	srcDir, err := s.locate(jobID)
	if err != nil {
		return err
	}

	dstDir := s.paths.JobDir(targetDir, jobID)
	if srcDir == dstDir {
		return nil
	}

	if jsonutil.Exists(dstDir) {
		return nil
	}

	if err := os.Rename(srcDir, dstDir); err == nil {
		return nil
	}

	if jsonutil.Exists(dstDir) {
		return nil
	}

	if err := copyDir(srcDir, dstDir); err != nil {
		return fmt.Errorf("copy job dir %s -> %s: %w", srcDir, dstDir, err)
	}
	if err := os.RemoveAll(srcDir); err != nil {
		return fmt.Errorf("remove source job dir %s after copy: %w", srcDir, err)
	}
	return nil
}

// List enumerates stateDir, parsing metadata for each subdirectory.
// Entries without a readable meta.json are skipped rather than failing
// the whole list.
func (s *Store) List(stateDir string) ([]model.Job, error) {
	entries, err := os.ReadDir(stateDir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", stateDir, err)
	}

	jobs := make([]model.Job, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		metaPath := filepath.Join(stateDir, e.Name(), metaFile)
		var job model.Job
		if err := jsonutil.ReadFile(metaPath, &job); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].SubmitTime.Before(jobs[j].SubmitTime)
	})
	return jobs, nil
}

// Remove deletes a job directory outright (used by history trimming).
func (s *Store) Remove(stateDir, jobID string) error {
	return os.RemoveAll(s.paths.JobDir(stateDir, jobID))
}

// Paths exposes the underlying pathstore.Store for callers (the
// scheduler, the CLI) that need raw directory paths too.
func (s *Store) Paths() *pathstore.Store { return s.paths }

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

func copyDir(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		srcPath := filepath.Join(src, e.Name())
		dstPath := filepath.Join(dst, e.Name())
		if e.IsDir() {
			if err := copyDir(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}
