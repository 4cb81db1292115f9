package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/reelguard/reelguard/internal/config"
	"github.com/reelguard/reelguard/internal/daemon"
	"github.com/reelguard/reelguard/internal/database"
	"github.com/reelguard/reelguard/internal/reporter"
	"github.com/reelguard/reelguard/internal/service"
	"github.com/reelguard/reelguard/internal/web"
	"github.com/reelguard/reelguard/pkg/engine"
	"github.com/reelguard/reelguard/pkg/integrations/replay"
	"github.com/reelguard/reelguard/pkg/platform"
	"github.com/reelguard/reelguard/pkg/utils"
)

var (
	version = "0.1.0"
	commit  = "unknown"
	date    = "unknown"
)

const stopTimeout = 10 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "start":
		startDaemon(false)
	case "serve":
		startDaemon(true)
	case "stop":
		stopDaemon()
	case "status":
		showStatus()
	case "packages":
		listPackages()
	case "track":
		trackPackage()
	case "untrack":
		untrackPackage()
	case "enable":
		setPackageEnabled(true)
	case "disable":
		setPackageEnabled(false)
	case "replay":
		os.Exit(runReplay())
	case "report":
		generateReport()
	case "clear":
		clearDatabase()
	case "version":
		fmt.Printf("reelguard version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`reelguard - Short-form video detector that navigates away

Usage:
  reelguard <command> [options]

Commands:
  start                    Start the detection daemon
  serve                    Start the daemon with the web API server
  stop                     Stop the daemon
  status                   Show daemon status and the active window
  packages                 List tracked packages
  track <package> [label]  Track a package (enabled)
  untrack <package>        Stop tracking a package
  enable <package>         Enable a tracked package
  disable <package>        Disable a tracked package
  replay <trace.yaml>      Run the engine over a recorded trace
                           (--record stores actions in the database)
  report [period]          Show redirects (period: day, week, month; --json)
  clear [--older-than AGE]  Delete recorded actions and errors, or only
                           actions older than AGE (e.g. 30d, 36h)
  version                  Show version information
  help                     Show this help message

Examples:
  reelguard serve
  reelguard track com.zhiliaoapp.musically TikTok
  reelguard disable com.instagram.android
  reelguard replay session.yaml
  reelguard report week --json

Environment Variables:
  REELGUARD_CONFIG                   Config file (default ~/.config/reelguard/config.toml)
  REELGUARD_DATABASE_PATH            Database file path
  REELGUARD_DATABASE_RETENTION       Drop actions older than this on start (e.g. 720h)
  REELGUARD_ENGINE_COOLDOWN          Minimum gap between actions per package (e.g. 1500ms)
  REELGUARD_PLATFORM_NAME            auto, x11 or replay
  REELGUARD_DAEMON_PID_FILE          PID file path
  REELGUARD_WEB_PORT                 Web API port

Version: %s
`, version)
}

func loadConfig() *config.Config {
	cfg := config.New()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

func openRepository(cfg *config.Config) (*database.Repository, func()) {
	db, err := database.Connect(cfg.Database.Path, database.WithLogger(log.Default()))
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := db.Initialize(); err != nil {
		db.Close()
		log.Fatalf("Failed to initialize database: %v", err)
	}
	return database.NewRepository(db), func() { db.Close() }
}

func startDaemon(withWeb bool) {
	cfg := loadConfig()

	dm := daemon.New(cfg.Daemon.PIDFile)
	running, pid, err := dm.IsRunning()
	if err != nil {
		log.Fatalf("Failed to check daemon status: %v", err)
	}
	if running {
		log.Fatalf("Daemon is already running (PID: %d)", pid)
	}

	if !daemon.IsChild() {
		pid, err := daemon.Spawn(os.Args)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Daemon started successfully (PID: %d)\n", pid)
		if withWeb {
			fmt.Printf("Web API available at: http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
		}
		fmt.Printf("Logs: %s\n", dm.LogFile())
		return
	}

	runDaemon(cfg, dm, withWeb)
}

func runDaemon(cfg *config.Config, dm *daemon.Daemon, withWeb bool) {
	logFile, err := os.OpenFile(dm.LogFile(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err == nil {
		log.SetOutput(logFile)
		defer logFile.Close()
	}

	repo, closeDB := openRepository(cfg)
	defer closeDB()

	host, err := platform.New(cfg, "", log.Default())
	if err != nil {
		log.Fatalf("Failed to open platform: %v", err)
	}
	defer host.Close()
	log.Printf("Platform initialized: %s", host.Name())

	if err := dm.WritePID(); err != nil {
		log.Fatalf("Failed to write PID file: %v", err)
	}
	defer dm.RemovePID()

	svc := service.NewService(cfg, repo, host)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Received shutdown signal")
		svc.Stop()
	}()

	var webServer *web.Server
	if withWeb {
		webServer = web.NewServer(cfg, repo, svc.Status, 0)
		go func() {
			if err := webServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Web server error: %v", err)
			}
		}()
		log.Printf("Web API available at: http://%s", webServer.GetAddress())
	}

	log.Println("Starting reelguard daemon...")
	log.Printf("Configuration:\n%s", cfg.String())

	if err := svc.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("Service error: %v", err)
	}

	if webServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), stopTimeout)
		defer shutdownCancel()
		if err := webServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down web server: %v", err)
		}
	}

	log.Println("Daemon stopped successfully")
}

func stopDaemon() {
	cfg := config.New()
	dm := daemon.New(cfg.Daemon.PIDFile)

	running, pid, err := dm.IsRunning()
	if err != nil {
		log.Fatalf("Failed to check daemon status: %v", err)
	}

	if !running {
		fmt.Println("Daemon is not running")
		return
	}

	fmt.Printf("Stopping daemon (PID: %d)...\n", pid)
	if err := dm.Stop(stopTimeout); err != nil {
		log.Fatalf("Failed to stop daemon: %v", err)
	}

	fmt.Println("Daemon stopped successfully")
}

func showStatus() {
	cfg := config.New()
	dm := daemon.New(cfg.Daemon.PIDFile)

	running, pid, err := dm.IsRunning()
	if err != nil {
		log.Fatalf("Failed to check daemon status: %v", err)
	}

	if !running {
		fmt.Println("Status: Not running")
	} else {
		fmt.Printf("Status: Running (PID: %d)\n", pid)
		fmt.Printf("Cooldown: %v\n", cfg.Engine.Cooldown)
		fmt.Printf("Logs: %s\n", dm.LogFile())
	}

	repo, closeDB := openRepository(cfg)
	defer closeDB()

	if names, err := repo.EnabledPackageNames(); err == nil {
		fmt.Printf("Tracked packages: %d enabled\n", len(names))
	}
	if latest, err := repo.GetLatestAction(); err == nil && latest != nil {
		fmt.Printf("Last redirect: %s (%s)\n", latest.PackageName, utils.FormatAgo(latest.Timestamp, time.Now()))
	}
	if errs, err := repo.GetRecentErrors(3); err == nil && len(errs) > 0 {
		fmt.Printf("\nRecent Errors:\n")
		for _, e := range errs {
			fmt.Printf("  %s ago [%s] %s\n", utils.FormatRoundedUnit(time.Since(e.Timestamp)), e.Component, e.ErrorMsg)
		}
	}

	if platform.DetectDisplayServer() != "x11" {
		return
	}
	cfg.Platform.Name = config.PlatformX11
	host, err := platform.New(cfg, "", log.Default())
	if err != nil {
		fmt.Printf("\nCould not inspect the display: %v\n", err)
		return
	}
	defer host.Close()

	if root := engine.SelectRoot(host.Windows()); root != nil {
		b := root.Bounds()
		fmt.Printf("\nActive Window:\n")
		fmt.Printf("  Class: %s\n", root.ClassName())
		fmt.Printf("  Title: %s\n", root.Text())
		fmt.Printf("  Size:  %dx%d\n", b.Width(), b.Height())
	}
}

func packageArg(usage string) string {
	if len(os.Args) < 3 {
		fmt.Printf("Usage: reelguard %s\n", usage)
		os.Exit(1)
	}
	return os.Args[2]
}

func listPackages() {
	repo, closeDB := openRepository(config.New())
	defer closeDB()

	pkgs, err := repo.ListTrackedPackages()
	if err != nil {
		log.Fatalf("Failed to list packages: %v", err)
	}
	if len(pkgs) == 0 {
		fmt.Println("No tracked packages (defaults are seeded on first start)")
		return
	}

	for _, p := range pkgs {
		state := "enabled"
		if !p.Enabled {
			state = "disabled"
		}
		fmt.Printf("  %-36s %-16s %s\n", p.PackageName, p.Label, state)
	}
}

func trackPackage() {
	name := packageArg("track <package> [label]")
	label := ""
	if len(os.Args) > 3 {
		label = os.Args[3]
	}

	repo, closeDB := openRepository(config.New())
	defer closeDB()

	p, err := repo.UpsertTrackedPackage(name, label, true)
	if err != nil {
		log.Fatalf("Failed to track package: %v", err)
	}
	fmt.Printf("Tracking %s\n", p.PackageName)
}

func untrackPackage() {
	name := packageArg("untrack <package>")

	repo, closeDB := openRepository(config.New())
	defer closeDB()

	if err := repo.RemoveTrackedPackage(name); err != nil {
		log.Fatalf("Failed to untrack package: %v", err)
	}
	fmt.Printf("No longer tracking %s\n", name)
}

func setPackageEnabled(enabled bool) {
	verb := "disable"
	if enabled {
		verb = "enable"
	}
	name := packageArg(verb + " <package>")

	repo, closeDB := openRepository(config.New())
	defer closeDB()

	if err := repo.SetPackageEnabled(name, enabled); err != nil {
		log.Fatalf("Failed to %s package: %v", verb, err)
	}
	fmt.Printf("%s: %sd\n", name, verb)
}

func runReplay() int {
	tracePath := packageArg("replay <trace.yaml> [--record]")
	record := len(os.Args) > 3 && os.Args[3] == "--record"

	code, err := replayTrace(loadConfig(), tracePath, record, os.Stdout)
	if err != nil {
		log.Printf("Replay failed: %v", err)
	}
	return code
}

// replayTrace runs the service over a recorded trace and prints one line per
// step. Unless record is set the actions go to a scratch database that is
// removed afterwards. The exit code is 1 when the trace's expectations fail.
func replayTrace(cfg *config.Config, tracePath string, record bool, out io.Writer) (int, error) {
	cfg.Platform.Name = config.PlatformReplay
	if !record {
		dir, err := os.MkdirTemp("", "reelguard-replay-")
		if err != nil {
			return 1, fmt.Errorf("failed to create scratch directory: %w", err)
		}
		defer os.RemoveAll(dir)
		cfg.Database.Path = filepath.Join(dir, "replay.db")
	}

	host, err := platform.New(cfg, tracePath, log.Default())
	if err != nil {
		return 1, fmt.Errorf("failed to load trace: %w", err)
	}
	defer host.Close()
	p, ok := host.(*replay.Platform)
	if !ok {
		return 1, fmt.Errorf("platform %s cannot replay traces", host.Name())
	}

	db, err := database.Connect(cfg.Database.Path, database.WithLogger(log.Default()))
	if err != nil {
		return 1, err
	}
	defer db.Close()
	if err := db.Initialize(); err != nil {
		return 1, err
	}

	svc := service.NewService(cfg, database.NewRepository(db), p, service.WithClock(p.Clock()))
	if err := svc.Start(context.Background()); err != nil {
		return 1, err
	}

	for _, r := range p.Results() {
		outcome := "filtered"
		if r.Delivered {
			outcome = "no action"
		}
		if r.Actions > 0 {
			outcome = "ACTION"
		}
		fmt.Fprintf(out, "  step %-3d %-24s %-30s %s\n", r.Step, r.Event.Type, r.Event.PackageName, outcome)
	}

	status := svc.Status()
	fmt.Fprintf(out, "\nEvents: %d received, %d detections, %d throttled, %d actions\n",
		status.Engine.EventsReceived, status.Engine.Detections,
		status.Engine.Throttled, status.Engine.ActionsDispatched)

	if err := p.Verify(); err != nil {
		fmt.Fprintf(out, "\n%v\n", err)
		return 1, nil
	}
	return 0, nil
}

func generateReport() {
	periodType := "day"
	jsonOutput := false
	for _, arg := range os.Args[2:] {
		if arg == "--json" {
			jsonOutput = true
		} else {
			periodType = arg
		}
	}

	cfg := config.New()
	repo, closeDB := openRepository(cfg)
	defer closeDB()

	rep := reporter.New(cfg, repo)
	report, err := rep.GenerateReport(periodType)
	if err != nil {
		log.Fatalf("Failed to generate report: %v", err)
	}

	if jsonOutput {
		jsonStr, err := rep.FormatReportJSON(report)
		if err != nil {
			log.Fatalf("Failed to format JSON: %v", err)
		}
		fmt.Println(jsonStr)
	} else {
		fmt.Println(rep.FormatReportText(report))
	}
}

func clearDatabase() {
	cfg := config.New()

	var olderThan time.Duration
	if len(os.Args) > 3 && os.Args[2] == "--older-than" {
		age, err := utils.ParseAge(os.Args[3])
		if err != nil {
			log.Fatalf("Invalid --older-than: %v", err)
		}
		olderThan = age
	}

	if olderThan > 0 {
		fmt.Printf("This will delete recorded actions older than %s. Are you sure? (yes/no): ", utils.FormatRoundedUnit(olderThan))
	} else {
		fmt.Print("This will delete all recorded actions. Are you sure? (yes/no): ")
	}
	var response string
	fmt.Scanln(&response)

	if response != "yes" && response != "y" {
		fmt.Println("Operation cancelled")
		return
	}

	repo, closeDB := openRepository(cfg)
	defer closeDB()

	if olderThan > 0 {
		n, err := repo.DeleteOldActions(time.Now().Add(-olderThan))
		if err != nil {
			log.Fatalf("Failed to delete old actions: %v", err)
		}
		fmt.Printf("Deleted %d action(s)\n", n)
		return
	}

	if err := repo.Clear(); err != nil {
		log.Fatalf("Failed to clear database: %v", err)
	}

	fmt.Println("Database cleared successfully")
}
