package trigger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robofleet/orctl/internal/orchestrator"
)

// fakeClient scripts Orchestrator responses for the trigger flow. pollStates
// holds one set of job states per poll; the last set repeats.
type fakeClient struct {
	mu sync.Mutex

	folderErr  error
	releaseErr error
	robotsErr  error

	robots  []orchestrator.Robot
	machine *orchestrator.Machine

	started    []orchestrator.Job
	startInfo  orchestrator.StartInfo
	pollStates [][]orchestrator.Job
	polls      int
}

func (f *fakeClient) FindFolder(_ context.Context, name string) (*orchestrator.Folder, error) {
	if f.folderErr != nil {
		return nil, f.folderErr
	}
	return &orchestrator.Folder{ID: 7, DisplayName: name}, nil
}

func (f *fakeClient) FindRelease(_ context.Context, _ int64, name string) (*orchestrator.Release, error) {
	if f.releaseErr != nil {
		return nil, f.releaseErr
	}
	return &orchestrator.Release{ID: 3, Key: "release-key", Name: name}, nil
}

func (f *fakeClient) FindRobots(_ context.Context, _ int64, _ []string) ([]orchestrator.Robot, error) {
	if f.robotsErr != nil {
		return nil, f.robotsErr
	}
	return f.robots, nil
}

func (f *fakeClient) FindMachine(_ context.Context, _ int64, _ string) (*orchestrator.Machine, error) {
	return f.machine, nil
}

func (f *fakeClient) StartJobs(_ context.Context, _ int64, info orchestrator.StartInfo) ([]orchestrator.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startInfo = info
	return f.started, nil
}

func (f *fakeClient) JobsByIDs(_ context.Context, _ int64, _ []int64) ([]orchestrator.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.polls
	if i >= len(f.pollStates) {
		i = len(f.pollStates) - 1
	}
	f.polls++
	return f.pollStates[i], nil
}

func fastOptions() Options {
	return Options{
		Process:      "InvoiceBot",
		Folder:       "Finance",
		Wait:         true,
		PollInterval: 5 * time.Millisecond,
		Timeout:      time.Second,
	}
}

func TestRun_WaitUntilSuccessful(t *testing.T) {
	client := &fakeClient{
		started: []orchestrator.Job{{ID: 10, Key: "j-10", State: orchestrator.JobStatePending}},
		pollStates: [][]orchestrator.Job{
			{{ID: 10, State: orchestrator.JobStateRunning}},
			{{ID: 10, State: orchestrator.JobStateSuccessful}},
		},
	}

	var lines []string
	result, err := Run(context.Background(), client, fastOptions(), func(s string) { lines = append(lines, s) })
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, result.Outcome)
	require.Len(t, result.Jobs, 1)
	assert.Equal(t, orchestrator.JobStateSuccessful, result.Jobs[0].State)

	joined := ""
	for _, l := range lines {
		joined += l + "\n"
	}
	assert.Contains(t, joined, "Job 10: Pending -> Running")
	assert.Contains(t, joined, "Job 10: Running -> Successful")
}

func TestRun_JobsFailed(t *testing.T) {
	client := &fakeClient{
		started: []orchestrator.Job{
			{ID: 10, State: orchestrator.JobStatePending},
			{ID: 11, State: orchestrator.JobStatePending},
		},
		pollStates: [][]orchestrator.Job{
			{
				{ID: 10, State: orchestrator.JobStateSuccessful},
				{ID: 11, State: orchestrator.JobStateFaulted},
			},
		},
	}

	result, err := Run(context.Background(), client, fastOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeJobsFailed, result.Outcome)
}

func TestRun_Timeout(t *testing.T) {
	client := &fakeClient{
		started: []orchestrator.Job{{ID: 10, State: orchestrator.JobStatePending}},
		pollStates: [][]orchestrator.Job{
			{{ID: 10, State: orchestrator.JobStateRunning}},
		},
	}

	opts := fastOptions()
	opts.Timeout = 30 * time.Millisecond

	result, err := Run(context.Background(), client, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimedOut, result.Outcome)
	require.Len(t, result.Jobs, 1)
	assert.Equal(t, orchestrator.JobStateRunning, result.Jobs[0].State)
}

func TestRun_NoWait(t *testing.T) {
	client := &fakeClient{
		started: []orchestrator.Job{{ID: 10, State: orchestrator.JobStatePending}},
	}

	opts := fastOptions()
	opts.Wait = false

	result, err := Run(context.Background(), client, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, result.Outcome)
	assert.Equal(t, 0, client.polls)
}

func TestRun_SpecificStrategyWithRobots(t *testing.T) {
	client := &fakeClient{
		robots: []orchestrator.Robot{
			{ID: 21, Name: "bot-1"},
			{ID: 22, Name: "bot-2"},
		},
		machine: &orchestrator.Machine{ID: 5, Name: "vm-01"},
		started: []orchestrator.Job{{ID: 10, State: orchestrator.JobStateSuccessful}},
	}

	opts := fastOptions()
	opts.Robots = []string{"bot-1", "bot-2"}
	opts.Machine = "vm-01"

	_, err := Run(context.Background(), client, opts, nil)
	require.NoError(t, err)

	info := client.startInfo
	assert.Equal(t, orchestrator.StrategySpecific, info.Strategy)
	assert.Equal(t, []int64{21, 22}, info.RobotIDs)
	require.Len(t, info.MachineRobots, 2)
	assert.Equal(t, int64(5), info.MachineRobots[0].MachineID)
	assert.Equal(t, int64(21), info.MachineRobots[0].RobotID)
	assert.Equal(t, 0, info.JobsCount)
}

func TestRun_CountStrategyWithoutRobots(t *testing.T) {
	client := &fakeClient{
		started: []orchestrator.Job{
			{ID: 10, State: orchestrator.JobStateSuccessful},
			{ID: 11, State: orchestrator.JobStateSuccessful},
			{ID: 12, State: orchestrator.JobStateSuccessful},
		},
	}

	opts := fastOptions()
	opts.Count = 3

	_, err := Run(context.Background(), client, opts, nil)
	require.NoError(t, err)

	info := client.startInfo
	assert.Equal(t, orchestrator.StrategyModernJobsCount, info.Strategy)
	assert.Equal(t, 3, info.JobsCount)
	assert.Empty(t, info.RobotIDs)
}

func TestRun_MachineWithoutRobotsIgnored(t *testing.T) {
	client := &fakeClient{
		machine: &orchestrator.Machine{ID: 5, Name: "vm-01"},
		started: []orchestrator.Job{{ID: 10, State: orchestrator.JobStateSuccessful}},
	}

	opts := fastOptions()
	opts.Machine = "vm-01"

	var lines []string
	_, err := Run(context.Background(), client, opts, func(s string) { lines = append(lines, s) })
	require.NoError(t, err)

	assert.Equal(t, orchestrator.StrategyModernJobsCount, client.startInfo.Strategy)
	assert.Empty(t, client.startInfo.MachineRobots)

	found := false
	for _, l := range lines {
		if l == `Machine "vm-01" ignored: machine targeting requires robots` {
			found = true
		}
	}
	assert.True(t, found, "expected machine-ignored log line, got %v", lines)
}

func TestRun_ResolutionErrors(t *testing.T) {
	folderErr := &fakeClient{folderErr: orchestrator.ErrNotFound}
	_, err := Run(context.Background(), folderErr, fastOptions(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, orchestrator.ErrNotFound))
	assert.Contains(t, err.Error(), "resolving folder")

	releaseErr := &fakeClient{releaseErr: orchestrator.ErrNotFound}
	_, err = Run(context.Background(), releaseErr, fastOptions(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolving process")

	robotsErr := &fakeClient{robotsErr: orchestrator.ErrNotFound}
	opts := fastOptions()
	opts.Robots = []string{"bot-1"}
	_, err = Run(context.Background(), robotsErr, opts, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolving robots")
}

// Only a process miss is tolerable; folder, robot, and transport failures
// must never classify as ErrProcessNotFound.
func TestRun_ProcessNotFoundClassification(t *testing.T) {
	releaseErr := &fakeClient{releaseErr: orchestrator.ErrNotFound}
	_, err := Run(context.Background(), releaseErr, fastOptions(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProcessNotFound))
	assert.Contains(t, err.Error(), `"InvoiceBot"`)

	folderErr := &fakeClient{folderErr: orchestrator.ErrNotFound}
	_, err = Run(context.Background(), folderErr, fastOptions(), nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrProcessNotFound))

	robotsErr := &fakeClient{robotsErr: orchestrator.ErrNotFound}
	opts := fastOptions()
	opts.Robots = []string{"bot-1"}
	_, err = Run(context.Background(), robotsErr, opts, nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrProcessNotFound))

	transportErr := &fakeClient{releaseErr: errors.New("HTTP 500")}
	_, err = Run(context.Background(), transportErr, fastOptions(), nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrProcessNotFound))
}

func TestRun_ValidatesOptions(t *testing.T) {
	client := &fakeClient{}

	opts := fastOptions()
	opts.Process = ""
	_, err := Run(context.Background(), client, opts, nil)
	assert.Error(t, err)

	opts = fastOptions()
	opts.Folder = ""
	_, err = Run(context.Background(), client, opts, nil)
	assert.Error(t, err)
}

func TestRun_InputAndPriorityForwarded(t *testing.T) {
	client := &fakeClient{
		started: []orchestrator.Job{{ID: 10, State: orchestrator.JobStateSuccessful}},
	}

	opts := fastOptions()
	opts.Priority = "High"
	opts.Input = `{"invoice":"INV-1"}`

	_, err := Run(context.Background(), client, opts, nil)
	require.NoError(t, err)
	assert.Equal(t, "High", client.startInfo.JobPriority)
	assert.Equal(t, `{"invoice":"INV-1"}`, client.startInfo.InputArguments)
}
