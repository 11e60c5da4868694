package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recordingRunner struct {
	calls [][]string
	err   error
	out   []byte
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	call := append([]string{name}, args...)
	r.calls = append(r.calls, call)
	return r.out, r.err
}

func TestSystemdAdapter_LaunchBuildsExpectedProperties(t *testing.T) {
	workdir := t.TempDir()
	script := filepath.Join(workdir, "script.sh")
	if err := os.WriteFile(script, []byte("echo hi\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	runner := &recordingRunner{}
	a := &SystemdAdapter{Runner: runner}

	err := a.Launch(context.Background(), LaunchParams{
		Unit:       "jqs-job-20260730-0001",
		Cores:      2,
		MemMB:      4096,
		Workdir:    workdir,
		StdoutPath: filepath.Join(workdir, "out.log"),
		StderrPath: filepath.Join(workdir, "err.log"),
		TimeLimit:  "1h",
		ScriptPath: script,
	})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}

	if len(runner.calls) != 1 {
		t.Fatalf("want 1 call, got %d", len(runner.calls))
	}
	call := strings.Join(runner.calls[0], " ")

	for _, want := range []string{
		"systemd-run", "--user", "--unit jqs-job-20260730-0001", "--collect",
		"CPUQuota=200%", "MemoryMax=4096M",
		"WorkingDirectory=" + workdir,
		"StandardOutput=append:" + filepath.Join(workdir, "out.log"),
		"StandardError=append:" + filepath.Join(workdir, "err.log"),
		"KillMode=mixed", "TimeoutStopSec=15s", "RuntimeMax=1h",
	} {
		if !strings.Contains(call, want) {
			t.Fatalf("command %q missing %q", call, want)
		}
	}
}

func TestSystemdAdapter_LaunchOmitsRuntimeMaxWhenNoTimeLimit(t *testing.T) {
	workdir := t.TempDir()
	script := filepath.Join(workdir, "script.sh")
	_ = os.WriteFile(script, []byte("echo hi\n"), 0o644)

	runner := &recordingRunner{}
	a := &SystemdAdapter{Runner: runner}

	_ = a.Launch(context.Background(), LaunchParams{
		Unit: "u", Workdir: workdir, ScriptPath: script,
	})

	call := strings.Join(runner.calls[0], " ")
	if strings.Contains(call, "RuntimeMax") {
		t.Fatalf("did not expect RuntimeMax in %q", call)
	}
}

func TestSystemdAdapter_LaunchPropagatesRunnerError(t *testing.T) {
	workdir := t.TempDir()
	script := filepath.Join(workdir, "script.sh")
	_ = os.WriteFile(script, []byte("echo hi\n"), 0o644)

	runner := &recordingRunner{err: errors.New("exit status 1")}
	a := &SystemdAdapter{Runner: runner}

	err := a.Launch(context.Background(), LaunchParams{Unit: "u", Workdir: workdir, ScriptPath: script})
	if err == nil {
		t.Fatal("want error")
	}
}

func TestSystemdAdapter_StatusParsesProperties(t *testing.T) {
	runner := &recordingRunner{out: []byte("ActiveState=inactive\nSubState=exited\nExecMainStatus=0\n")}
	a := &SystemdAdapter{Runner: runner}

	st, err := a.Status(context.Background(), "u")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.Terminal() {
		t.Fatalf("want terminal, got %+v", st)
	}
	if st.ExitCodeOrDefault() != 0 {
		t.Fatalf("want exit 0, got %d", st.ExitCodeOrDefault())
	}
}

func TestSystemdAdapter_StatusPropagatesError(t *testing.T) {
	runner := &recordingRunner{err: errors.New("unit not found")}
	a := &SystemdAdapter{Runner: runner}

	if _, err := a.Status(context.Background(), "u"); err == nil {
		t.Fatal("want error")
	}
}

func TestSystemdAdapter_Stop(t *testing.T) {
	runner := &recordingRunner{}
	a := &SystemdAdapter{Runner: runner}

	if err := a.Stop(context.Background(), "u"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if len(runner.calls) != 1 || runner.calls[0][0] != "systemctl" {
		t.Fatalf("unexpected calls: %+v", runner.calls)
	}
}
