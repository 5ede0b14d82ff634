package trigger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/robofleet/orctl/internal/orchestrator"
)

// Defaults for the poll loop.
const (
	DefaultPollInterval = 10 * time.Second
	DefaultTimeout      = 30 * time.Minute
)

// Options describes one trigger request.
type Options struct {
	Process  string
	Folder   string
	Robots   []string
	Machine  string
	Count    int
	Priority string
	Input    string // raw InputArguments JSON

	Wait         bool
	Timeout      time.Duration
	PollInterval time.Duration
}

// Outcome classifies a finished run.
type Outcome int

const (
	// OutcomeSucceeded means every job finished Successful, or the run did
	// not wait and submission succeeded.
	OutcomeSucceeded Outcome = iota
	// OutcomeJobsFailed means at least one job ended Faulted or Stopped.
	OutcomeJobsFailed
	// OutcomeTimedOut means the timeout elapsed with jobs still pending.
	OutcomeTimedOut
)

// ErrProcessNotFound marks a process-name resolution miss. Callers that
// tolerate missing processes key off this error; folder, robot, and machine
// misses stay hard failures.
var ErrProcessNotFound = errors.New("process not found")

// Result is what a trigger run produced.
type Result struct {
	Folder  orchestrator.Folder
	Release orchestrator.Release
	Jobs    []orchestrator.Job
	Outcome Outcome
}

// Client is the Orchestrator surface the trigger flow needs.
type Client interface {
	FindFolder(ctx context.Context, name string) (*orchestrator.Folder, error)
	FindRelease(ctx context.Context, folderID int64, name string) (*orchestrator.Release, error)
	FindRobots(ctx context.Context, folderID int64, names []string) ([]orchestrator.Robot, error)
	FindMachine(ctx context.Context, folderID int64, name string) (*orchestrator.Machine, error)
	StartJobs(ctx context.Context, folderID int64, info orchestrator.StartInfo) ([]orchestrator.Job, error)
	JobsByIDs(ctx context.Context, folderID int64, ids []int64) ([]orchestrator.Job, error)
}

// LogFunc receives human-readable progress lines.
type LogFunc func(string)

// Run executes the submit-and-poll flow: resolve identifiers, start jobs,
// and, when waiting, poll until every job is terminal or the timeout
// elapses. A timeout is reported as OutcomeTimedOut with a nil error so the
// caller still sees the partial job states.
func Run(ctx context.Context, client Client, opts Options, log LogFunc) (*Result, error) {
	if log == nil {
		log = func(string) {}
	}
	if opts.Process == "" {
		return nil, errors.New("process name is required")
	}
	if opts.Folder == "" {
		return nil, errors.New("folder name is required")
	}
	if opts.Count <= 0 {
		opts.Count = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	folder, err := client.FindFolder(ctx, opts.Folder)
	if err != nil {
		return nil, fmt.Errorf("resolving folder: %w", err)
	}
	log(fmt.Sprintf("Folder %q resolved to id %d", opts.Folder, folder.ID))

	release, robots, machine, err := resolveTargets(ctx, client, folder.ID, opts, log)
	if err != nil {
		return nil, err
	}

	info := buildStartInfo(release, robots, machine, opts, log)
	jobs, err := client.StartJobs(ctx, folder.ID, info)
	if err != nil {
		return nil, fmt.Errorf("starting jobs: %w", err)
	}
	for _, j := range jobs {
		log(fmt.Sprintf("Job %d started (key %s, state %s)", j.ID, j.Key, j.State))
	}

	result := &Result{Folder: *folder, Release: *release, Jobs: jobs}
	if !opts.Wait {
		result.Outcome = OutcomeSucceeded
		return result, nil
	}

	return poll(ctx, client, folder.ID, result, opts, log)
}

// resolveTargets looks up release, robots, and machine concurrently. All
// three are independent reads once the folder is known.
func resolveTargets(
	ctx context.Context,
	client Client,
	folderID int64,
	opts Options,
	log LogFunc,
) (*orchestrator.Release, []orchestrator.Robot, *orchestrator.Machine, error) {
	var (
		release *orchestrator.Release
		robots  []orchestrator.Robot
		machine *orchestrator.Machine
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := client.FindRelease(gctx, folderID, opts.Process)
		if err != nil {
			if errors.Is(err, orchestrator.ErrNotFound) {
				return fmt.Errorf("resolving process %q: %w", opts.Process, ErrProcessNotFound)
			}
			return fmt.Errorf("resolving process: %w", err)
		}
		release = r
		return nil
	})
	if len(opts.Robots) > 0 {
		g.Go(func() error {
			r, err := client.FindRobots(gctx, folderID, opts.Robots)
			if err != nil {
				return fmt.Errorf("resolving robots: %w", err)
			}
			robots = r
			return nil
		})
	}
	if opts.Machine != "" {
		g.Go(func() error {
			m, err := client.FindMachine(gctx, folderID, opts.Machine)
			if err != nil {
				return fmt.Errorf("resolving machine: %w", err)
			}
			machine = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	log(fmt.Sprintf("Process %q resolved to release key %s", opts.Process, release.Key))
	for _, r := range robots {
		log(fmt.Sprintf("Robot %q resolved to id %d", r.Name, r.ID))
	}
	if machine != nil {
		log(fmt.Sprintf("Machine %q resolved to id %d", machine.Name, machine.ID))
	}
	return release, robots, machine, nil
}

func buildStartInfo(
	release *orchestrator.Release,
	robots []orchestrator.Robot,
	machine *orchestrator.Machine,
	opts Options,
	log LogFunc,
) orchestrator.StartInfo {
	info := orchestrator.StartInfo{
		ReleaseKey:     release.Key,
		JobPriority:    opts.Priority,
		InputArguments: opts.Input,
	}
	if len(robots) > 0 {
		info.Strategy = orchestrator.StrategySpecific
		for _, r := range robots {
			info.RobotIDs = append(info.RobotIDs, r.ID)
		}
		if machine != nil {
			for _, id := range info.RobotIDs {
				info.MachineRobots = append(info.MachineRobots, orchestrator.MachineRobot{
					MachineID: machine.ID,
					RobotID:   id,
				})
			}
		}
		return info
	}
	if machine != nil {
		// The API has no stable shape for machine-only targeting.
		log(fmt.Sprintf("Machine %q ignored: machine targeting requires robots", machine.Name))
	}
	info.Strategy = orchestrator.StrategyModernJobsCount
	info.JobsCount = opts.Count
	return info
}

// poll fetches job states at a fixed interval until all jobs are terminal
// or the timeout elapses. Terminal states, once observed, stick.
func poll(
	ctx context.Context,
	client Client,
	folderID int64,
	result *Result,
	opts Options,
	log LogFunc,
) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	byID := make(map[int64]orchestrator.Job, len(result.Jobs))
	pending := make([]int64, 0, len(result.Jobs))
	for _, j := range result.Jobs {
		byID[j.ID] = j
		if !j.Terminal() {
			pending = append(pending, j.ID)
		}
	}

	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			result.Jobs = collect(byID, result.Jobs)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				log(fmt.Sprintf("Timed out after %s with %d job(s) unfinished", opts.Timeout, len(pending)))
				result.Outcome = OutcomeTimedOut
				return result, nil
			}
			return result, ctx.Err()
		case <-ticker.C:
		}

		jobs, err := client.JobsByIDs(ctx, folderID, pending)
		if err != nil {
			log("Poll failed: " + err.Error())
			continue // transient; retry on next tick
		}

		stillPending := pending[:0]
		for _, j := range jobs {
			prev := byID[j.ID]
			if prev.State != j.State {
				log(fmt.Sprintf("Job %d: %s -> %s", j.ID, stateOrPending(prev.State), j.State))
			}
			byID[j.ID] = j
		}
		for _, id := range pending {
			if !byID[id].Terminal() {
				stillPending = append(stillPending, id)
			}
		}
		pending = stillPending
	}

	result.Jobs = collect(byID, result.Jobs)
	result.Outcome = OutcomeSucceeded
	var failed []string
	for _, j := range result.Jobs {
		if !j.Succeeded() {
			failed = append(failed, fmt.Sprintf("%d (%s)", j.ID, j.State))
		}
	}
	if len(failed) > 0 {
		log("Failed jobs: " + strings.Join(failed, ", "))
		result.Outcome = OutcomeJobsFailed
	}
	return result, nil
}

// collect rebuilds the job slice in submission order from the state map.
func collect(byID map[int64]orchestrator.Job, submitted []orchestrator.Job) []orchestrator.Job {
	out := make([]orchestrator.Job, 0, len(submitted))
	for _, j := range submitted {
		out = append(out, byID[j.ID])
	}
	return out
}

func stateOrPending(state string) string {
	if state == "" {
		return orchestrator.JobStatePending
	}
	return state
}
