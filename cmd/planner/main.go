// Package main is the entry point of the training planner.
//
// Subcommands:
//
//	planner build   -sets verbs,nouns [-id ID] [-seed N]
//	planner resume  -id ID
//	planner plan    -id ID [-items]
//	planner import  -file content.xlsx [-sheet NAME] [-start-row N]
//	planner migrate [-status | -rollback]
//	planner worker
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/training-planner/config"
	"github.com/alem-hub/training-planner/internal/application/command"
	"github.com/alem-hub/training-planner/internal/application/query"
	"github.com/alem-hub/training-planner/internal/infrastructure/importer"
	"github.com/alem-hub/training-planner/internal/infrastructure/scheduler"
	"github.com/alem-hub/training-planner/internal/infrastructure/scheduler/jobs"
	"github.com/alem-hub/training-planner/pkg/logger"
)

// errDegraded makes the process exit non-zero after printing a degraded result.
var errDegraded = errors.New("build degraded")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, errDegraded) {
			fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: planner <build|resume|plan|import|migrate|worker> [flags]")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.ForEnvironment(string(cfg.App.Environment), cfg.Observability.LogLevel))
	slog.SetDefault(log)

	name, args := args[0], args[1:]
	switch name {
	case "build":
		return runBuild(ctx, cfg, log, args, out)
	case "resume":
		return runResume(ctx, cfg, log, args, out)
	case "plan":
		return runPlan(ctx, cfg, log, args, out)
	case "import":
		return runImport(ctx, cfg, log, args, out)
	case "migrate":
		return runMigrate(ctx, cfg, log, args, out)
	case "worker":
		return runWorker(ctx, cfg, log)
	default:
		return fmt.Errorf("unknown command %q", name)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

type buildOutput struct {
	TrainingID      string `json:"training_id"`
	Status          string `json:"status"`
	PoolSize        int    `json:"pool_size"`
	StageCount      int    `json:"stage_count,omitempty"`
	CycleCount      int    `json:"cycle_count,omitempty"`
	CreatedStageIDs []int  `json:"created_stage_ids,omitempty"`
	Attempts        int    `json:"attempts"`
	Kind            string `json:"kind,omitempty"`
	Error           string `json:"error,omitempty"`
}

func runBuild(ctx context.Context, cfg *config.Config, log *slog.Logger, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	id := fs.String("id", "", "training id (default: a new UUID)")
	sets := fs.String("sets", "", "comma-separated set ids")
	seed := fs.Int64("seed", 0, "shuffle seed (default: random)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cmd := command.BuildTrainingCommand{
		TrainingID:    *id,
		SetIDs:        splitList(*sets),
		CorrelationID: uuid.NewString(),
	}
	if cmd.TrainingID == "" {
		cmd.TrainingID = uuid.NewString()
	}
	if flagSet(fs, "seed") {
		cmd.Seed = seed
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	result := a.buildHandler().Handle(ctx, cmd)

	output := buildOutput{
		TrainingID:      result.TrainingID,
		Status:          string(result.Status),
		PoolSize:        result.PoolSize,
		CreatedStageIDs: result.CreatedStageIDs,
		Attempts:        result.Attempts,
	}
	if result.Plan != nil {
		output.StageCount = result.Plan.StageCount()
		output.CycleCount = result.Plan.CycleCount()
	}
	if !result.OK() {
		output.Kind = fmt.Sprint(result.Kind())
		output.Error = result.Err.Error()
	}
	if err := writeJSON(out, output); err != nil {
		return err
	}
	if !result.OK() {
		return errDegraded
	}
	return nil
}

func runResume(ctx context.Context, cfg *config.Config, log *slog.Logger, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("resume", flag.ContinueOnError)
	id := fs.String("id", "", "training id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	handler := command.NewResumeTrainingHandler(a.store, log, cfg.Planner.TxTimeout)
	result, err := handler.Handle(ctx, command.ResumeTrainingCommand{TrainingID: *id})
	if err != nil {
		return err
	}
	if len(result.CreatedStageIDs) > 0 {
		a.invalidate(ctx, result.Training.ID)
	}

	return writeJSON(out, map[string]any{
		"training_id":       result.Training.ID,
		"stage_count":       result.Plan.StageCount(),
		"cycle_count":       result.Plan.CycleCount(),
		"created_stage_ids": result.CreatedStageIDs,
		"resumed_at":        result.ResumedAt,
	})
}

func runPlan(ctx context.Context, cfg *config.Config, log *slog.Logger, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	id := fs.String("id", "", "training id")
	items := fs.Bool("items", false, "include the items of every cycle")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	dto, err := query.NewGetTrainingPlanHandler(a.reader()).Handle(ctx, query.GetTrainingPlanQuery{
		TrainingID:   *id,
		IncludeItems: *items,
	})
	if err != nil {
		return err
	}
	return writeJSON(out, dto)
}

func runImport(ctx context.Context, cfg *config.Config, log *slog.Logger, args []string, out io.Writer) error {
	importCfg := importer.DefaultConfig()

	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	file := fs.String("file", "", "xlsx workbook")
	fs.StringVar(&importCfg.SheetName, "sheet", "", "import only this sheet")
	fs.IntVar(&importCfg.StartRow, "start-row", importCfg.StartRow, "first data row")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("import: -file is required")
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := importer.New(a.writer, log).ImportFile(ctx, *file, importCfg)
	if err != nil {
		return err
	}
	return writeJSON(out, result)
}

func runMigrate(ctx context.Context, cfg *config.Config, log *slog.Logger, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	status := fs.Bool("status", false, "print migration status")
	rollback := fs.Bool("rollback", false, "roll back the last migration (postgres)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// newApp already applies pending migrations and constraints.
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.migrator == nil {
		return writeJSON(out, map[string]any{"backend": cfg.Store.Backend, "status": "schema is up to date"})
	}

	switch {
	case *rollback:
		if err := a.migrator.Rollback(ctx); err != nil {
			return err
		}
		fallthrough
	case *status:
		migrations, err := a.migrator.Status(ctx)
		if err != nil {
			return err
		}
		return writeJSON(out, migrations)
	default:
		return writeJSON(out, map[string]any{"backend": cfg.Store.Backend, "applied": a.applied})
	}
}

func runWorker(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	if !cfg.Scheduler.Enabled {
		return errors.New("worker: scheduler is disabled (SCHEDULER_ENABLED=false)")
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.queue == nil {
		return errors.New("worker: the degraded queue needs redis (REDIS_DISABLED=true)")
	}

	sched := scheduler.New(scheduler.Config{
		Logger:     log,
		JobTimeout: cfg.Scheduler.JobTimeout,
	})
	job := jobs.NewRetryDegradedBuildsJob(a.queue, a.buildHandler(), log, jobs.RetryDegradedBuildsConfig{
		BatchSize:   cfg.Scheduler.RetryBatchSize,
		Concurrency: cfg.Scheduler.MaxConcurrentBuilds,
	})
	if err := sched.Register(job, cfg.Scheduler.RetrySchedule); err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	log.Info("worker is running", logger.Backend(string(cfg.Store.Backend)))

	<-ctx.Done()
	log.Info("received shutdown signal, stopping worker", slog.Duration("timeout", cfg.App.ShutdownTimeout))

	stopped := make(chan error, 1)
	go func() { stopped <- sched.Stop() }()

	select {
	case err := <-stopped:
		return err
	case <-time.After(cfg.App.ShutdownTimeout):
		return errors.New("worker: shutdown timed out")
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func flagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
