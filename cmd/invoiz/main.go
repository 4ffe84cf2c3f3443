package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"invoiz/internal/artifact"
	"invoiz/internal/config"
	"invoiz/internal/extract"
	"invoiz/internal/gmail"
	"invoiz/internal/ocr"
	"invoiz/internal/pipeline"
	"invoiz/internal/store"
	"invoiz/internal/tui"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "invoiz",
		Short:         "Download matching Gmail messages and extract invoice fields from their PDF attachments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	if err := config.RegisterFlags(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register CLI flags: %v\n", err)
		os.Exit(1)
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Search, download and extract",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd)
			if err != nil {
				return err
			}
			logger, cleanup, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return run(ctx, cfg, logger, cmd.OutOrStdout())
		},
	}
	config.RegisterRunFlags(runCmd)

	browseCmd := &cobra.Command{
		Use:   "browse",
		Short: "Review stored results in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd)
			if err != nil {
				return err
			}
			return browse(cmd.Context(), cfg)
		},
	}
	config.RegisterBrowseFlags(browseCmd)

	rootCmd.AddCommand(runCmd, browseCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger, out io.Writer) error {
	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open results database: %w", err)
	}
	defer db.Close()

	session, err := gmail.OpenSession(ctx, cfg.ConfigDir, logger)
	if err != nil {
		return fmt.Errorf("gmail authentication: %w", err)
	}
	api, err := session.Connect(ctx)
	if err != nil {
		return fmt.Errorf("gmail authentication: %w", err)
	}

	gen, err := extract.NewGemini(ctx, cfg.APIKey, cfg.Model)
	if err != nil {
		return err
	}
	defer gen.Close()
	extractor, err := extract.NewExtractor(gen, extract.DefaultCacheSize, logger)
	if err != nil {
		return err
	}

	fs, err := artifact.NewFS(cfg.OutDir)
	if err != nil {
		return err
	}

	p, err := pipeline.New(pipeline.Config{
		Retriever:  gmail.NewRetriever(api, logger),
		Store:      fs,
		Text:       ocr.PDFExtractor{},
		Structured: extractor,
		Sink:       db,
		IsDocument: ocr.IsDocument,
		Workers:    cfg.Workers,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	logger.Info("starting invoiz", "query", cfg.Query, "limit", cfg.Limit, "out", fs.Root(), "model", cfg.Model)
	recs, runErr := p.Run(ctx, cfg.Query, cfg.Limit)

	if cfg.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(recs); err != nil {
			return err
		}
	} else {
		printSummary(out, recs)
	}
	return runErr
}

func browse(ctx context.Context, cfg config.Config) error {
	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open results database: %w", err)
	}
	defer db.Close()

	runID, heading, err := browseScope(ctx, db, cfg.LastRun)
	if err != nil {
		return err
	}
	appModel := tui.NewAppModel(db, runID)
	appModel.SetHeading(heading)
	p := tea.NewProgram(&appModel, tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := finalModel.(*tui.AppModel); ok && m.Err != nil {
		return m.Err
	}
	return nil
}

// setupLogger writes to stderr so stdout stays free for the summary or JSON.
func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("invoiz-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stderr, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stderr, opts)
	return slog.New(handler), cleanup, nil
}
