package supervisor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// SystemdAdapter drives systemd user transient units via systemd-run and
// systemctl. Each launch writes a throwaway copy of the job's script
// into its workdir under a uuid-suffixed name so that re-launching the
// same job id after a crash-recovery resubmit never collides with a
// still-cleaning-up previous attempt in the same directory.
type SystemdAdapter struct {
	// Runner abstracts process execution so tests can substitute a fake
	// without touching the real systemd-run/systemctl binaries.
	// NewSystemdAdapter sets it to execRunner, which shells out via os/exec.
	Runner CommandRunner
}

// CommandRunner runs an external command and returns its combined
// output and error, the way exec.Command.CombinedOutput does.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// execRunner shells out via os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// NewSystemdAdapter returns a SystemdAdapter that shells out to the real
// systemd-run/systemctl binaries.
func NewSystemdAdapter() *SystemdAdapter {
	return &SystemdAdapter{Runner: execRunner{}}
}

// Launch copies the job's script into a uniquely-named temp script in
// workdir, then invokes systemd-run with the unit's resource caps, I/O
// redirections, and an optional wall-clock cap, executing the temp
// script and removing it afterward.
func (a *SystemdAdapter) Launch(ctx context.Context, p LaunchParams) error {
	tempName := fmt.Sprintf(".jqs_job_%s_script.sh", uuid.NewString())
	tempPath := filepath.Join(p.Workdir, tempName)

	if err := copyExecutable(p.ScriptPath, tempPath); err != nil {
		return fmt.Errorf("stage launch script: %w", err)
	}

	cpuQuota := fmt.Sprintf("%d%%", p.Cores*100)
	memMax := fmt.Sprintf("%dM", p.MemMB)

	args := []string{
		"--user",
		"--unit", p.Unit,
		"--collect",
		"--property=CPUQuota=" + cpuQuota,
		"--property=MemoryMax=" + memMax,
		"--property=WorkingDirectory=" + p.Workdir,
		"--property=StandardOutput=append:" + p.StdoutPath,
		"--property=StandardError=append:" + p.StderrPath,
		"--property=KillMode=mixed",
		"--property=TimeoutStopSec=15s",
	}
	if p.TimeLimit != "" {
		args = append(args, "--property=RuntimeMax="+p.TimeLimit)
	}
	args = append(args, "/bin/bash", "-lc", fmt.Sprintf("./%s; rm -f ./%s", tempName, tempName))

	out, err := a.Runner.Run(ctx, "systemd-run", args...)
	if err != nil {
		return fmt.Errorf("systemd-run failed: %w (output: %s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Stop asks systemctl to stop unit. A failure is returned to the
// caller, which per the cancellation protocol logs it and proceeds
// regardless.
func (a *SystemdAdapter) Stop(ctx context.Context, unit string) error {
	_, err := a.Runner.Run(ctx, "systemctl", "--user", "stop", unit)
	if err != nil {
		return fmt.Errorf("systemctl stop %s: %w", unit, err)
	}
	return nil
}

// Status queries unit via systemctl show and parses its ActiveState,
// SubState, and ExecMainStatus properties.
func (a *SystemdAdapter) Status(ctx context.Context, unit string) (Status, error) {
	out, err := a.Runner.Run(ctx, "systemctl", "--user", "show",
		"--property=ActiveState,SubState,ExecMainStatus", unit)
	if err != nil {
		return Status{}, fmt.Errorf("systemctl show %s: %w", unit, err)
	}

	props := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		props[k] = v
	}

	st := Status{
		ActiveState: ActiveState(props["ActiveState"]),
		SubState:    SubState(props["SubState"]),
	}
	if n, convErr := strconv.Atoi(props["ExecMainStatus"]); convErr == nil {
		st.ExitStatus = &n
	}
	return st, nil
}

func copyExecutable(src, dst string) error {
	in, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, in, 0o755)
}
