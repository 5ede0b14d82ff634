package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/robofleet/orctl/internal/api"
	"github.com/robofleet/orctl/internal/config"
	"github.com/robofleet/orctl/internal/models"
	"github.com/robofleet/orctl/internal/orchestrator"
	"github.com/robofleet/orctl/internal/trigger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Printf("orctl %s (commit: %s, built: %s)\n", version, commit, date)
			os.Exit(0)
		}
	}

	logger := initLogger()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	var code int
	switch cmd := os.Args[1]; cmd {
	case "run":
		code = runCmd(logger, os.Args[2:])
	case "status":
		code = statusCmd(logger, os.Args[2:])
	case "resolve":
		code = resolveCmd(logger, os.Args[2:])
	case "serve":
		code = serveCmd(logger, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		printUsage()
		code = 2
	}
	os.Exit(code)
}

func initLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	return logger
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: orctl <command> [flags]\n\n")
	fmt.Fprintf(os.Stderr, "Available commands:\n")
	fmt.Fprintf(os.Stderr, "  %-10s %s\n", "run", "Trigger a process and optionally wait for completion")
	fmt.Fprintf(os.Stderr, "  %-10s %s\n", "status", "Show the current state of one or more jobs")
	fmt.Fprintf(os.Stderr, "  %-10s %s\n", "resolve", "Resolve a folder/process/robot/machine name to its identifier")
	fmt.Fprintf(os.Stderr, "  %-10s %s\n", "serve", "Run the trigger flow behind a local HTTP API")
}

// targetFlags are the flags shared by every subcommand.
type targetFlags struct {
	Target      string
	TargetsFile string
}

func (tf *targetFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&tf.Target, "target", "", "Named target from the targets file (default: environment)")
	fs.StringVar(&tf.TargetsFile, "targets-file", "", "Path to YAML targets file")
}

func (tf *targetFlags) connect(ctx context.Context) (*config.Config, *models.Target, *orchestrator.Client, error) {
	cfg, err := config.Load(tf.TargetsFile)
	if err != nil {
		return nil, nil, nil, err
	}
	target, err := cfg.Target(tf.Target)
	if err != nil {
		return nil, nil, nil, err
	}
	client, err := orchestrator.NewClient(ctx, target)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, target, client, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runCmd(logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		tf       targetFlags
		robots   string
		opts     trigger.Options
		failHard bool
	)
	tf.register(fs)
	fs.StringVar(&opts.Process, "process", "", "Process (release) name, process key, or release key GUID (required)")
	fs.StringVar(&opts.Folder, "folder", "", "Folder display name (required)")
	fs.StringVar(&robots, "robots", "", "Comma-separated robot names (targets specific robots)")
	fs.StringVar(&opts.Machine, "machine", "", "Machine name (requires -robots)")
	fs.IntVar(&opts.Count, "count", 1, "Number of jobs to start")
	fs.StringVar(&opts.Priority, "priority", "", "Job priority (Low, Normal, High)")
	fs.StringVar(&opts.Input, "input", "", "Input arguments as a JSON object")
	fs.BoolVar(&opts.Wait, "wait", true, "Wait for jobs to finish")
	fs.DurationVar(&opts.Timeout, "timeout", 0, "Overall wait timeout (default from config, 30m)")
	fs.DurationVar(&opts.PollInterval, "poll", 0, "Poll interval (default from config, 10s)")
	fs.BoolVar(&failHard, "fail-on-job-failure", true, "Exit 1 when jobs fault or the process cannot be resolved")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if opts.Process == "" || opts.Folder == "" {
		fmt.Fprintln(os.Stderr, "-process and -folder are required")
		return 2
	}
	if robots != "" {
		opts.Robots = splitList(robots)
	}
	if opts.Input != "" && !json.Valid([]byte(opts.Input)) {
		fmt.Fprintln(os.Stderr, "-input must be a valid JSON document")
		return 2
	}

	ctx, stop := signalContext()
	defer stop()

	cfg, target, client, err := tf.connect(ctx)
	if err != nil {
		logger.Error("setup failed", "error", err)
		return 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = cfg.Timeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = cfg.PollInterval
	}

	logger.Info("triggering process",
		"process", opts.Process, "folder", opts.Folder, "target", target.Name, "wait", opts.Wait)

	result, err := trigger.Run(ctx, client, opts, func(line string) {
		fmt.Println(line)
	})
	if err != nil {
		if errors.Is(err, trigger.ErrProcessNotFound) && !failHard {
			logger.Warn("resolution failed, skipping", "error", err)
			fmt.Println("SKIPPED: " + err.Error())
			return 0
		}
		logger.Error("trigger failed", "error", err)
		return 1
	}

	printJobs(result.Jobs)

	switch result.Outcome {
	case trigger.OutcomeTimedOut:
		logger.Error("timed out waiting for jobs", "timeout", opts.Timeout.String())
		return 1
	case trigger.OutcomeJobsFailed:
		if failHard {
			logger.Error("one or more jobs failed")
			return 1
		}
		logger.Warn("one or more jobs failed (tolerated)")
		return 0
	default:
		return 0
	}
}

func statusCmd(logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		tf     targetFlags
		jobIDs string
		folder string
	)
	tf.register(fs)
	fs.StringVar(&jobIDs, "jobs", "", "Comma-separated job IDs (required)")
	fs.StringVar(&folder, "folder", "", "Folder display name (required)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	ids, err := parseIDs(jobIDs)
	if err != nil || len(ids) == 0 || folder == "" {
		fmt.Fprintln(os.Stderr, "-jobs (numeric, comma-separated) and -folder are required")
		return 2
	}

	ctx, stop := signalContext()
	defer stop()

	_, _, client, err := tf.connect(ctx)
	if err != nil {
		logger.Error("setup failed", "error", err)
		return 1
	}

	f, err := client.FindFolder(ctx, folder)
	if err != nil {
		logger.Error("resolving folder failed", "error", err)
		return 1
	}
	jobs, err := client.JobsByIDs(ctx, f.ID, ids)
	if err != nil {
		logger.Error("fetching jobs failed", "error", err)
		return 1
	}
	printJobs(jobs)
	return 0
}

func resolveCmd(logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		tf       targetFlags
		kind     string
		name     string
		folder   string
		folderID int64
	)
	tf.register(fs)
	fs.StringVar(&kind, "type", "", "Entity type: folder, process, robot, machine (required)")
	fs.StringVar(&name, "name", "", "Name to resolve (required)")
	fs.StringVar(&folder, "folder", "", "Folder display name (required for process/robot/machine)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if kind == "" || name == "" {
		fmt.Fprintln(os.Stderr, "-type and -name are required")
		return 2
	}

	ctx, stop := signalContext()
	defer stop()

	_, _, client, err := tf.connect(ctx)
	if err != nil {
		logger.Error("setup failed", "error", err)
		return 1
	}

	if kind != "folder" {
		if folder == "" {
			fmt.Fprintln(os.Stderr, "-folder is required for type "+kind)
			return 2
		}
		f, err := client.FindFolder(ctx, folder)
		if err != nil {
			logger.Error("resolving folder failed", "error", err)
			return 1
		}
		folderID = f.ID
	}

	switch kind {
	case "folder":
		f, err := client.FindFolder(ctx, name)
		if err != nil {
			logger.Error("resolve failed", "error", err)
			return 1
		}
		fmt.Printf("folder %s id=%d fqn=%s\n", f.DisplayName, f.ID, f.FullyQualifiedName)
	case "process":
		r, err := client.FindRelease(ctx, folderID, name)
		if err != nil {
			logger.Error("resolve failed", "error", err)
			return 1
		}
		fmt.Printf("process %s key=%s id=%d\n", r.Name, r.Key, r.ID)
	case "robot":
		robots, err := client.FindRobots(ctx, folderID, []string{name})
		if err != nil {
			logger.Error("resolve failed", "error", err)
			return 1
		}
		fmt.Printf("robot %s id=%d\n", robots[0].Name, robots[0].ID)
	case "machine":
		m, err := client.FindMachine(ctx, folderID, name)
		if err != nil {
			logger.Error("resolve failed", "error", err)
			return 1
		}
		fmt.Printf("machine %s id=%d\n", m.Name, m.ID)
	default:
		fmt.Fprintf(os.Stderr, "unknown type %q\n", kind)
		return 2
	}
	return 0
}

func serveCmd(logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		tf     targetFlags
		listen string
	)
	tf.register(fs)
	fs.StringVar(&listen, "listen", "", "HTTP listen address (default from config, :8080)")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx, stop := signalContext()
	defer stop()

	cfg, target, client, err := tf.connect(ctx)
	if err != nil {
		logger.Error("setup failed", "error", err)
		return 1
	}
	if listen == "" {
		listen = cfg.Listen
	}

	// Verify connectivity and auth early, like a CI agent would.
	if err := client.Ping(ctx); err != nil {
		logger.Error("orchestrator unreachable", "target", target.Name, "error", err)
		return 1
	}
	logger.Info("orchestrator reachable", "target", target.Name, "url", target.BaseURL())

	server := &api.Server{
		Target: target,
		Runs:   models.NewRunStore(),
		Launcher: api.LauncherFunc(func(ctx context.Context, opts trigger.Options, log trigger.LogFunc) (*trigger.Result, error) {
			return trigger.Run(ctx, client, opts, log)
		}),
		PollInterval: cfg.PollInterval,
		Timeout:      cfg.Timeout,
	}

	httpServer := &http.Server{
		Addr:    listen,
		Handler: api.NewRouter(server),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("orctl serving", "listen", listen, "version", version)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		return 1
	}
	return 0
}

func printJobs(jobs []orchestrator.Job) {
	if len(jobs) == 0 {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKEY\tSTATE\tINFO")
	for _, j := range jobs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", j.ID, j.Key, j.State, j.Info)
	}
	w.Flush()
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, p := range splitList(s) {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid job id %q: %w", p, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
