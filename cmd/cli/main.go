// Command defendx scans a web target for common vulnerabilities and
// prints a risk report.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/defendx/defendx/pkg/config"
	"github.com/defendx/defendx/pkg/finding"
	"github.com/defendx/defendx/pkg/scan"
	"github.com/defendx/defendx/pkg/scoring"
	"github.com/defendx/defendx/pkg/telemetry"
	"github.com/defendx/defendx/pkg/ui"
)

// Exit codes encode the worst severity found so CI pipelines can gate
// on them.
const (
	exitClean  = 0
	exitLow    = 1
	exitMedium = 2
	exitHigh   = 3
	exitError  = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		target       = flag.String("target", "", "root URL to scan (required)")
		mode         = flag.String("mode", "standard", "scan mode: discovery, standard, or deep")
		authorized   = flag.Bool("authorized", false, "assert you are authorized to scan the target")
		configPath   = flag.String("config", "", "YAML file with configuration overrides")
		jsonOut      = flag.Bool("json", false, "emit the result as JSON")
		verbose      = flag.Bool("v", false, "verbose logging")
		allowPrivate = flag.Bool("allow-private", false, "permit loopback and private-network targets")
	)
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *target == "" {
		fmt.Fprintln(os.Stderr, "defendx: -target is required")
		flag.Usage()
		return exitError
	}

	scanMode, err := config.ParseMode(*mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "defendx: %v\n", err)
		return exitError
	}

	var cfg *config.Config
	if *configPath != "" {
		cfg, err = config.Load(*configPath, scanMode)
		if err != nil {
			fmt.Fprintf(os.Stderr, "defendx: %v\n", err)
			return exitError
		}
	} else {
		cfg = config.ForMode(scanMode)
	}
	if *allowPrivate {
		cfg.AllowPrivateTargets = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := scan.NewMemoryStore()
	o := scan.New(scan.Options{
		Config:  cfg,
		Store:   store,
		Metrics: telemetry.New(nil),
		Logger:  logger,
	})

	result, err := o.Run(ctx, scan.Request{
		Target:     *target,
		Authorized: *authorized,
		Mode:       scanMode,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "defendx: %v\n", err)
		return exitError
	}

	health, healthErr := o.HealthScore(ctx, *target)

	if *jsonOut {
		out := struct {
			*scan.Result
			Health *scoring.HealthScore `json:"health,omitempty"`
		}{Result: result}
		if healthErr == nil {
			out.Health = &health
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fmt.Fprintf(os.Stderr, "defendx: %v\n", err)
			return exitError
		}
	} else {
		printReport(result, health, healthErr == nil)
	}

	return exitCode(result)
}

func printReport(result *scan.Result, health scoring.HealthScore, haveHealth bool) {
	fmt.Printf("Scan %s  target=%s  mode=%s  took=%s\n\n",
		result.ScanID, result.Target, result.Mode, result.Duration.Round(1e7))

	if result.Failed {
		fmt.Printf("Scan failed: %s\n", result.Error)
		return
	}
	if result.TimedOut {
		fmt.Println("Deadline reached; results below are partial.")
	}
	if result.Snapshot != nil {
		fmt.Printf("Surface: %d page(s), %d form(s)\n\n", len(result.Snapshot.URLs), len(result.Snapshot.Forms))
	}

	for _, f := range result.Findings {
		fmt.Println(ui.RenderFinding(f))
	}
	fmt.Println(ui.RenderSummary(result.Summary))
	if haveHealth {
		fmt.Println()
		fmt.Print(ui.RenderHealth(health))
	}
}

func exitCode(result *scan.Result) int {
	if result.Failed {
		return exitError
	}
	switch {
	case result.Summary.BySeverity[finding.High] > 0:
		return exitHigh
	case result.Summary.BySeverity[finding.Medium] > 0:
		return exitMedium
	case result.Summary.BySeverity[finding.Low] > 0:
		return exitLow
	}
	return exitClean
}
