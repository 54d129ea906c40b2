package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"github.com/brunobiangulo/herbex"
	"github.com/brunobiangulo/herbex/graph"
	"github.com/brunobiangulo/herbex/pipeline"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Path to config file (YAML or JSON)")
	envFile := flag.String("env", ".env", "Optional dotenv file")
	input := flag.String("input", "", "Input directory or single file")
	entities := flag.String("entities", "", "Entity type vocabulary file")
	relations := flag.String("relations", "", "Relation type vocabulary file")
	outDir := flag.String("output", "", "Output directory")
	start := flag.Int("start", 0, "First file index (inclusive)")
	end := flag.Int("end", 0, "Last file index (exclusive)")
	validation := flag.Bool("validation", true, "Run the validation stage until convergence")
	mode := flag.String("mode", "", "Extraction mode: auto, normal or strict")
	passes := flag.Int("passes", 0, "Number of passes over the input")
	threshold := flag.Float64("threshold", 0, "Convergence threshold")
	window := flag.Int("window", 0, "Convergence window")
	profile := flag.String("profile", "", "Convergence profile: small or default")
	dbPath := flag.String("db", "", "SQLite journal path")
	logFile := flag.String("log-file", "", "Also write logs to this file")
	verbose := flag.Bool("verbose", false, "Debug logging")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "loading %s: %v\n", *envFile, err)
		}
	}

	cfg, err := herbex.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	// Flags given on the command line win over the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.Input = *input
		case "entities":
			cfg.EntityTypesPath = *entities
		case "relations":
			cfg.RelationTypesPath = *relations
		case "output":
			cfg.Output.Dir = *outDir
		case "start":
			cfg.Range.Start = start
		case "end":
			cfg.Range.End = end
		case "validation":
			cfg.Validation = *validation
		case "mode":
			cfg.Mode = *mode
		case "passes":
			cfg.Passes = *passes
		case "threshold":
			cfg.Convergence.Threshold = *threshold
		case "window":
			cfg.Convergence.Window = *window
		case "profile":
			cfg.Convergence.Profile = *profile
		case "db":
			cfg.DBPath = *dbPath
		case "log-file":
			cfg.LogFile = *logFile
		}
	})

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	var logOut io.Writer = os.Stderr
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "opening log file: %v\n", err)
			return 1
		}
		defer f.Close()
		logOut = io.MultiWriter(os.Stderr, f)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var bar *progressbar.ProgressBar
	engine, err := herbex.New(cfg,
		herbex.WithPassStart(func(p herbex.PassInfo) {
			printBanner(p)
			bar = getProgressBar(p.Documents, fmt.Sprintf("pass %d/%d", p.Pass, p.Passes))
		}),
		herbex.WithDocumentDone(func(o pipeline.DocumentOutcome) {
			if bar != nil {
				bar.Describe(describe(o))
				_ = bar.Add(1)
			}
		}),
	)
	if err != nil {
		slog.Error("setup failed", "error", err)
		return 1
	}
	defer engine.Close()

	reports, err := engine.Run(ctx)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if err != nil {
		slog.Error("run failed", "error", err)
		return 1
	}

	for _, r := range reports {
		printReport(r)
	}
	if j := engine.Journal(); j != nil {
		if stats, err := j.DBStats(context.Background()); err == nil {
			slog.Info("journal", "path", cfg.DBPath,
				"runs", stats.Runs,
				"documents", stats.Documents,
				"entities", stats.Entities,
				"relationships", stats.Relationships)
		}
	}
	if len(reports) > 0 && reports[len(reports)-1].Interrupted {
		color.Yellow("interrupted: stopped after the document in flight")
	}
	return 0
}

func printBanner(p herbex.PassInfo) {
	bold := color.New(color.Bold)
	bold.Printf("Pass %d of %d", p.Pass, p.Passes)
	fmt.Printf("  %d documents  run %s\n", p.Documents, p.RunID)
	if p.Strict {
		color.Green("vocabulary converged: strict extraction, validation off")
	} else {
		color.Cyan("vocabulary open: normal extraction")
	}
}

func describe(o pipeline.DocumentOutcome) string {
	name := o.Filename
	if o.Aborted() {
		return color.RedString("%s aborted", name)
	}
	if o.Mode == graph.ModeStrict {
		return color.GreenString("%s strict", name)
	}
	return color.BlueString("%s", name)
}

func printReport(r *pipeline.BatchReport) {
	fmt.Printf("pass %d: %d documents, %d persisted, %d aborted, %d without validation\n",
		r.Pass, r.Total(), r.Persisted(), r.Aborted(), r.Skipped())
	var failed []string
	for _, o := range r.Outcomes {
		if o.Aborted() {
			failed = append(failed, fmt.Sprintf("  %s: %v", o.Filename, o.Err))
		}
	}
	if len(failed) > 0 {
		color.Red("failed documents:")
		fmt.Println(strings.Join(failed, "\n"))
	}
	if r.ConvergedEnd {
		color.Green("converged at end of pass %d", r.Pass)
	}
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("docs"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}
