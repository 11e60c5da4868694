// Command jqs is the scheduler daemon and operator CLI in one binary:
// "jqs scheduler" runs the control loop, and the other subcommands
// submit, inspect, and cancel jobs against the same on-disk store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"syscall"
	"time"

	"oss.nandlabs.io/golly/cli"

	"github.com/hcleelove/jqs/internal/config"
	"github.com/hcleelove/jqs/internal/jobstore"
	"github.com/hcleelove/jqs/internal/ledger"
	"github.com/hcleelove/jqs/internal/logging"
	"github.com/hcleelove/jqs/internal/model"
	"github.com/hcleelove/jqs/internal/pathstore"
	"github.com/hcleelove/jqs/internal/scheduler"
	"github.com/hcleelove/jqs/internal/supervisor"
)

const version = "0.1.0"

// resolveConfig re-layers file -> environment -> flag config from the
// global flags every subcommand carries. Flags absent from ctx (golly
// always populates every declared flag with at least its Default) are
// treated as "use the layered value beneath" only when left at the
// flag's zero default, matching config.Overrides' nil-means-unset
// contract.
func resolveConfig(ctx *cli.Context) (config.AppConfig, error) {
	cfgPath, _ := ctx.GetFlag("config")

	var over config.Overrides
	if v, ok := ctx.GetFlag("base-dir"); ok && v != "" {
		over.BaseDir = &v
	}
	if v, ok := ctx.GetFlag("cores-total"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return config.AppConfig{}, fmt.Errorf("--cores-total: %w", err)
		}
		over.CoresTotal = &n
	}
	if v, ok := ctx.GetFlag("mem-mb-total"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return config.AppConfig{}, fmt.Errorf("--mem-mb-total: %w", err)
		}
		over.MemMBTotal = &n
	}
	if v, ok := ctx.GetFlag("history-keep"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return config.AppConfig{}, fmt.Errorf("--history-keep: %w", err)
		}
		over.HistoryKeep = &n
	}
	if v, ok := ctx.GetFlag("poll-interval-seconds"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return config.AppConfig{}, fmt.Errorf("--poll-interval-seconds: %w", err)
		}
		over.PollIntervalSeconds = &n
	}

	return config.Load(cfgPath, over)
}

// globalFlags are accepted by every subcommand so that base directory and
// resource totals can be overridden without a config file.
func globalFlags() []*cli.Flag {
	return []*cli.Flag{
		{Name: "config", Usage: "path to an optional jqs.yaml config file", Default: ""},
		{Name: "base-dir", Usage: "root directory for queue/running/finished", Default: ""},
		{Name: "cores-total", Usage: "total cores the scheduler may allocate", Default: ""},
		{Name: "mem-mb-total", Usage: "total memory in MB the scheduler may allocate", Default: ""},
		{Name: "history-keep", Usage: "number of finished jobs retained", Default: ""},
		{Name: "poll-interval-seconds", Usage: "seconds between scheduler cycles", Default: ""},
	}
}

// components bundles everything a subcommand needs once configuration has
// resolved. Built fresh per-invocation: the CLI is not a long-lived
// process except under the scheduler subcommand.
type components struct {
	cfg   config.AppConfig
	paths *pathstore.Store
	store *jobstore.Store
	led   *ledger.Ledger
	log   *logging.Logger
}

func build(ctx *cli.Context) (*components, error) {
	cfg, err := resolveConfig(ctx)
	if err != nil {
		return nil, err
	}

	paths, err := pathstore.New(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("init base dir: %w", err)
	}

	logSettings := logging.LogSettings{NoLogs: cfg.NoLogs, LogDir: cfg.LogDir}
	if logSettings.LogDir == "" {
		logSettings.LogDir = filepath.Join(paths.Base(), "logs")
	}
	log, err := logging.New(paths.Base(), logSettings)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	led := ledger.New(paths.LimitsFile(), paths.UsageFile(), paths.UsageLockFile())

	return &components{
		cfg:   cfg,
		paths: paths,
		store: jobstore.New(paths),
		led:   led,
		log:   log,
	}, nil
}

func main() {
	app := cli.NewCLI()
	app.AddVersion(version)

	submitCmd := cli.NewCommand("submit", "Submit a job script to the queue", version, submitAction)
	submitCmd.Flags = append(globalFlags(), &cli.Flag{Name: "script", Usage: "path to the job script", Default: ""})

	qCmd := cli.NewCommand("q", "List queued and running jobs", version, qAction)
	qCmd.Flags = globalFlags()

	infoCmd := cli.NewCommand("info", "Show full details for one job", version, infoAction)
	infoCmd.Flags = append(globalFlags(), &cli.Flag{Name: "jobid", Usage: "job id to inspect", Default: ""})

	cancelCmd := cli.NewCommand("cancel", "Cancel a pending or running job", version, cancelAction)
	cancelCmd.Flags = append(globalFlags(), &cli.Flag{Name: "jobid", Usage: "job id to cancel", Default: ""})

	nodesCmd := cli.NewCommand("nodes", "Show configured resource totals and current usage", version, nodesAction)
	nodesCmd.Flags = globalFlags()

	schedulerCmd := cli.NewCommand("scheduler", "Run the scheduler control loop", version, schedulerAction)
	schedulerCmd.Flags = append(globalFlags(), &cli.Flag{Name: "once", Usage: "run a single cycle and exit", Default: ""})

	app.AddCommand(submitCmd)
	app.AddCommand(qCmd)
	app.AddCommand(infoCmd)
	app.AddCommand(cancelCmd)
	app.AddCommand(nodesCmd)
	app.AddCommand(schedulerCmd)

	if err := app.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "jqs: %v\n", err)
		os.Exit(1)
	}
}

func submitAction(ctx *cli.Context) error {
	script, _ := ctx.GetFlag("script")
	if script == "" {
		return fmt.Errorf("--script is required")
	}

	c, err := build(ctx)
	if err != nil {
		return err
	}

	user := os.Getenv("USER")
	job, err := c.store.Create(script, user)
	if err != nil {
		return fmt.Errorf("submit %s: %w", script, err)
	}

	fmt.Printf("Job submitted: %s\n", job.JobID)
	return nil
}

// recentFinishedLimit is how many of the most recently ended finished
// jobs are folded into the listing, alongside every queued and running
// job.
const recentFinishedLimit = 20

func qAction(ctx *cli.Context) error {
	c, err := build(ctx)
	if err != nil {
		return err
	}

	queued, err := c.store.List(c.paths.Queue())
	if err != nil {
		return err
	}
	running, err := c.store.List(c.paths.Running())
	if err != nil {
		return err
	}
	finished, err := c.store.List(c.paths.Finished())
	if err != nil {
		return err
	}

	sort.Slice(finished, func(i, j int) bool {
		ti, tj := finished[i].EndTime, finished[j].EndTime
		if ti == nil {
			return false
		}
		if tj == nil {
			return true
		}
		return ti.After(*tj)
	})
	if len(finished) > recentFinishedLimit {
		finished = finished[:recentFinishedLimit]
	}

	jobs := append(append(queued, running...), finished...)
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].SubmitTime.Before(jobs[j].SubmitTime)
	})

	fmt.Printf("%-18s %-10s %-6s %6s %8s  %s\n", "JOB_ID", "STATE", "USER", "CORES", "MEM_MB", "NAME")
	for _, j := range jobs {
		printJobRow(j)
	}
	return nil
}

func printJobRow(j model.Job) {
	fmt.Printf("%-18s %-10s %-6s %6d %8d  %s\n", j.JobID, j.State, j.User, j.Req.Cores, j.Req.MemMB, j.Name)
}

func infoAction(ctx *cli.Context) error {
	jobID, _ := ctx.GetFlag("jobid")
	if jobID == "" {
		return fmt.Errorf("--jobid is required")
	}

	c, err := build(ctx)
	if err != nil {
		return err
	}

	job, dir, err := c.store.Read(jobID)
	if err != nil {
		return err
	}

	fmt.Printf("job_id:      %s\n", job.JobID)
	fmt.Printf("name:        %s\n", job.Name)
	fmt.Printf("user:        %s\n", job.User)
	fmt.Printf("state:       %s\n", job.State)
	fmt.Printf("dir:         %s\n", dir)
	fmt.Printf("cores:       %d\n", job.Req.Cores)
	fmt.Printf("mem_mb:      %d\n", job.Req.MemMB)
	fmt.Printf("workdir:     %s\n", job.Workdir)
	fmt.Printf("submit_time: %s\n", job.SubmitTime.Format(time.RFC3339))
	if job.StartTime != nil {
		fmt.Printf("start_time:  %s\n", job.StartTime.Format(time.RFC3339))
	}
	if job.EndTime != nil {
		fmt.Printf("end_time:    %s\n", job.EndTime.Format(time.RFC3339))
	}
	if job.UnitName != nil {
		fmt.Printf("unit_name:   %s\n", *job.UnitName)
	}
	if job.ExitCode != nil {
		fmt.Printf("exit_code:   %d\n", *job.ExitCode)
	}
	if job.Notes != "" {
		fmt.Printf("notes:       %s\n", job.Notes)
	}
	return nil
}

func cancelAction(ctx *cli.Context) error {
	jobID, _ := ctx.GetFlag("jobid")
	if jobID == "" {
		return fmt.Errorf("--jobid is required")
	}

	c, err := build(ctx)
	if err != nil {
		return err
	}

	sched := scheduler.New(c.store, c.led, supervisor.NewSystemdAdapter(), c.log, c.cfg.HistoryKeep)
	if err := sched.Cancel(context.Background(), jobID); err != nil {
		return fmt.Errorf("cancel %s: %w", jobID, err)
	}
	fmt.Printf("cancelled %s\n", jobID)
	return nil
}

// nodesAction is read-only: it reports whatever limits.json already
// holds (seeded once by the scheduler subcommand at startup), never
// overwrites it. Writing here would let a CLI invocation with different
// flags/env than the running daemon silently clobber the live totals.
func nodesAction(ctx *cli.Context) error {
	c, err := build(ctx)
	if err != nil {
		return err
	}

	limits, err := c.led.Limits()
	if err != nil {
		return err
	}
	snap, err := c.led.Snapshot()
	if err != nil {
		return err
	}
	usage, err := c.led.Usage()
	if err != nil {
		return err
	}

	fmt.Printf("cores: %d used, %d available, %d total\n", usage.CoresUsed, snap.Cores, limits.CoresTotal)
	fmt.Printf("mem_mb: %d used, %d available, %d total\n", usage.MemMBUsed, snap.MemMB, limits.MemMBTotal)
	return nil
}

func schedulerAction(ctx *cli.Context) error {
	c, err := build(ctx)
	if err != nil {
		return err
	}

	limits := ledger.Limits{CoresTotal: c.cfg.CoresTotal, MemMBTotal: c.cfg.MemMBTotal}
	if limits.CoresTotal == 0 {
		limits.CoresTotal = ledger.DefaultCoresTotal
	}
	if limits.MemMBTotal == 0 {
		limits.MemMBTotal = ledger.DefaultMemMBTotal
	}
	if err := c.led.SetLimits(limits); err != nil {
		return err
	}

	sched := scheduler.New(c.store, c.led, supervisor.NewSystemdAdapter(), c.log, c.cfg.HistoryKeep)

	once, _ := ctx.GetFlag("once")
	if once == "true" {
		result, err := sched.Cycle(context.Background())
		if err != nil {
			return err
		}
		c.log.Infof("cycle: completed=%v scheduled=%v cleaned=%d", result.Completed, result.Scheduled, result.Cleaned)
		return nil
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c.log.Infof("scheduler starting: base=%s poll=%ds", c.paths.Base(), c.cfg.PollIntervalSeconds)
	return sched.Run(sigCtx, time.Duration(c.cfg.PollIntervalSeconds)*time.Second)
}
