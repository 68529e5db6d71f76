package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/halftimetv/halftime/internal/analytics"
	"github.com/halftimetv/halftime/internal/auth"
	"github.com/halftimetv/halftime/internal/database"
	"github.com/halftimetv/halftime/internal/ffmpeg"
	"github.com/halftimetv/halftime/internal/frame"
	"github.com/halftimetv/halftime/internal/generation"
	internalhttp "github.com/halftimetv/halftime/internal/http"
	"github.com/halftimetv/halftime/internal/http/handlers"
	"github.com/halftimetv/halftime/internal/job"
	"github.com/halftimetv/halftime/internal/oracle"
	"github.com/halftimetv/halftime/internal/profile"
	"github.com/halftimetv/halftime/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the halftime server",
	Long: `Start the halftime HTTP server and API.

The server provides:
- REST API for submitting videos and reading job status
- Dynamic HLS playlist and segment serving
- Analytics event ingestion
- Viewer profile analysis
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Overrides applied on top of the loaded config when explicitly set.
	serveCmd.Flags().String("host", "", "Host to bind to")
	serveCmd.Flags().Int("port", 0, "Port to listen on")
	serveCmd.Flags().String("output-dir", "", "Root directory for job output trees")
}

func runServe(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("output-dir") {
		cfg.Storage.OutputDir, _ = cmd.Flags().GetString("output-dir")
	}

	logger := slog.Default()

	if err := os.MkdirAll(cfg.Storage.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating output root: %w", err)
	}

	// Event store.
	db, err := database.New(cfg.Analytics, logger)
	if err != nil {
		return fmt.Errorf("initializing analytics database: %w", err)
	}
	defer db.Close()

	eventStore, err := analytics.NewStore(db, logger)
	if err != nil {
		return fmt.Errorf("initializing event store: %w", err)
	}

	// Media toolchain.
	detector := ffmpeg.NewBinaryDetector(cfg.Media.FFmpegPath, cfg.Media.FFprobePath)
	operator := ffmpeg.NewOperator(detector, cfg.Media.HWAccelPriority, logger)

	// Placement oracle with vision frame extraction.
	oracleClient := oracle.NewClient(cfg.Oracle, logger)
	extractor := frame.NewExtractor(operator)
	engine := oracle.NewEngine(oracleClient, extractor, cfg.Placement, logger)

	// Generation provider.
	uploader := generation.NewUploader(cfg.Upload.HostTimeout, logger)
	generator := generation.NewClient(cfg.Generation, logger)
	prompts := generation.NewPromptBuilder(cfg.Generation.PromptTemplatePath)

	// Job execution.
	jobStore := job.NewStore()
	runner := job.NewRunner(jobStore, operator, engine, uploader, generator, prompts, cfg.Media, cfg.Jobs, logger)

	sweeper := job.NewSweeper(jobStore, cfg.Jobs, logger)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("starting retention sweeper: %w", err)
	}
	defer sweeper.Stop()

	// Profile analysis.
	profileService, err := profile.NewService(cfg.Profile, oracleClient, logger)
	if err != nil {
		return fmt.Errorf("initializing profile service: %w", err)
	}

	// HTTP server.
	authmw := auth.NewMiddleware(cfg.Auth, nil, logger)
	server := internalhttp.NewServer(cfg.Server, authmw, logger, version.Version)

	handlers.NewHealthHandler(version.Version).
		WithDB(db).
		WithJobStore(jobStore).
		Register(server.API())
	handlers.NewVideoHandler(jobStore, runner, cfg.Storage, cfg.Placement).Register(server.API())
	handlers.NewAnalyticsHandler(eventStore).Register(server.API())
	handlers.NewProfileHandler(profileService).Register(server.API())
	handlers.NewStreamHandler(jobStore, logger).Register(server.Router())

	// Graceful shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting halftime server",
		slog.String("host", cfg.Server.Host),
		slog.Int("port", cfg.Server.Port),
		slog.String("output_dir", cfg.Storage.OutputDir),
		slog.String("version", version.Version),
	)

	err = server.ListenAndServe(ctx)

	// Cancel in-flight jobs and let them record their state before the
	// process exits.
	for _, j := range jobStore.List() {
		if !j.IsTerminal() {
			runner.Cancel(j.ID)
		}
	}
	runner.Wait()
	return err
}
