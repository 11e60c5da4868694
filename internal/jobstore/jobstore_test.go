package jobstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hcleelove/jqs/internal/model"
	"github.com/hcleelove/jqs/internal/pathstore"
)

func newTestStore(t *testing.T) (*Store, *pathstore.Store) {
	t.Helper()
	ps, err := pathstore.New(t.TempDir())
	require.NoError(t, err)
	return New(ps), ps
}

func writeScript(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestAllocateID_MonotonicAndFormatted(t *testing.T) {
	s, _ := newTestStore(t)

	id1, err := s.AllocateID()
	require.NoError(t, err)
	id2, err := s.AllocateID()
	require.NoError(t, err)

	require.NotEqual(t, id1, id2)
	require.Len(t, id1, len("YYYYMMDD-0001"))
	require.Contains(t, id1, "-0001")
	require.Contains(t, id2, "-0002")
}

func TestCreate_DefaultsAndHeaderOverrides(t *testing.T) {
	s, ps := newTestStore(t)
	scriptDir := t.TempDir()
	script := writeScript(t, scriptDir, "job.sh", "#!/bin/bash\n#JS cores=2 mem_mb=2048 name=myjob\necho hi\n")

	job, err := s.Create(script, "alice")
	require.NoError(t, err)

	require.Equal(t, "myjob", job.Name)
	require.Equal(t, "alice", job.User)
	require.Equal(t, 2, job.Req.Cores)
	require.Equal(t, 2048, job.Req.MemMB)
	require.Equal(t, model.Pending, job.State)
	require.Nil(t, job.UnitName)
	require.Nil(t, job.StartTime)
	require.Nil(t, job.EndTime)
	require.Nil(t, job.ExitCode)

	queueDir := ps.JobDir(ps.Queue(), job.JobID)
	require.FileExists(t, filepath.Join(queueDir, "meta.json"))
	require.FileExists(t, filepath.Join(queueDir, "script.sh"))
}

func TestCreate_DefaultsWithNoHeader(t *testing.T) {
	s, _ := newTestStore(t)
	scriptDir := t.TempDir()
	script := writeScript(t, scriptDir, "plain.sh", "#!/bin/bash\necho hi\n")

	job, err := s.Create(script, "")
	require.NoError(t, err)

	require.Equal(t, "plain", job.Name)
	require.Equal(t, "unknown", job.User)
	require.Equal(t, DefaultCores, job.Req.Cores)
	require.Equal(t, DefaultMemMB, job.Req.MemMB)
	require.Equal(t, "stdout.log", job.IO.Stdout)
	require.Equal(t, "stderr.log", job.IO.Stderr)
}

func TestRead_FindsAcrossStateDirs(t *testing.T) {
	s, ps := newTestStore(t)
	scriptDir := t.TempDir()
	script := writeScript(t, scriptDir, "a.sh", "#JS cores=1\necho hi\n")

	job, err := s.Create(script, "bob")
	require.NoError(t, err)

	got, dir, err := s.Read(job.JobID)
	require.NoError(t, err)
	require.Equal(t, job.JobID, got.JobID)
	require.Equal(t, ps.JobDir(ps.Queue(), job.JobID), dir)

	for _, stateDir := range []string{ps.Running(), ps.Finished()} {
		require.NoError(t, s.Move(job.JobID, stateDir))
		got, dir, err = s.Read(job.JobID)
		require.NoError(t, err)
		require.Equal(t, job.JobID, got.JobID)
		require.Equal(t, ps.JobDir(stateDir, job.JobID), dir)
	}
}

func TestRead_NotFound(t *testing.T) {
	s, _ := newTestStore(t)
	_, _, err := s.Read("nonexistent")
	require.Error(t, err)
}

func TestUpdate_PendingToRunningSetsStartTimeAndUnitName(t *testing.T) {
	s, _ := newTestStore(t)
	scriptDir := t.TempDir()
	script := writeScript(t, scriptDir, "a.sh", "echo hi\n")
	job, err := s.Create(script, "bob")
	require.NoError(t, err)

	updated, err := s.Update(job.JobID, model.Running, Extra{})
	require.NoError(t, err)

	require.Equal(t, model.Running, updated.State)
	require.NotNil(t, updated.StartTime)
	require.NotNil(t, updated.UnitName)
	require.Equal(t, "jqs-job-"+job.JobID, *updated.UnitName)
	require.Nil(t, updated.EndTime)
}

func TestUpdate_ToTerminalSetsEndTimeAndMergesExtra(t *testing.T) {
	s, _ := newTestStore(t)
	scriptDir := t.TempDir()
	script := writeScript(t, scriptDir, "a.sh", "echo hi\n")
	job, err := s.Create(script, "bob")
	require.NoError(t, err)

	_, err = s.Update(job.JobID, model.Running, Extra{})
	require.NoError(t, err)

	code := 0
	updated, err := s.Update(job.JobID, model.Completed, Extra{ExitCode: &code})
	require.NoError(t, err)

	require.Equal(t, model.Completed, updated.State)
	require.NotNil(t, updated.EndTime)
	require.NotNil(t, updated.ExitCode)
	require.Equal(t, 0, *updated.ExitCode)
}

func TestMove_TransitionsDirectoryAndIsIdempotentOnExistingTarget(t *testing.T) {
	s, ps := newTestStore(t)
	scriptDir := t.TempDir()
	script := writeScript(t, scriptDir, "a.sh", "echo hi\n")
	job, err := s.Create(script, "bob")
	require.NoError(t, err)

	require.NoError(t, s.Move(job.JobID, ps.Running()))

	_, dir, err := s.Read(job.JobID)
	require.NoError(t, err)
	require.Equal(t, ps.JobDir(ps.Running(), job.JobID), dir)

	// A second move to the same target must succeed as a no-op (the
	// already-moved-by-someone-else race described for concurrent cancel
	// and reconciliation).
	require.NoError(t, s.Move(job.JobID, ps.Running()))
}

func TestList_SortsBySubmitTimeAscending(t *testing.T) {
	s, ps := newTestStore(t)
	scriptDir := t.TempDir()

	var ids []string
	for i := 0; i < 3; i++ {
		script := writeScript(t, scriptDir, "job.sh", "echo hi\n")
		job, err := s.Create(script, "bob")
		require.NoError(t, err)
		ids = append(ids, job.JobID)
	}

	jobs, err := s.List(ps.Queue())
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	for i := 1; i < len(jobs); i++ {
		require.False(t, jobs[i].SubmitTime.Before(jobs[i-1].SubmitTime))
	}
}

func TestList_SkipsUnreadableEntries(t *testing.T) {
	s, ps := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Join(ps.Queue(), "garbage"), 0o755))

	jobs, err := s.List(ps.Queue())
	require.NoError(t, err)
	require.Empty(t, jobs)
}

func TestRemove_DeletesJobDirectory(t *testing.T) {
	s, ps := newTestStore(t)
	scriptDir := t.TempDir()
	script := writeScript(t, scriptDir, "a.sh", "echo hi\n")
	job, err := s.Create(script, "bob")
	require.NoError(t, err)

	require.NoError(t, s.Remove(ps.Queue(), job.JobID))
	require.NoDirExists(t, ps.JobDir(ps.Queue(), job.JobID))
}
