package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/satyaki-up/matorral/internal/cascade"
	"github.com/satyaki-up/matorral/internal/config"
	"github.com/satyaki-up/matorral/internal/db"
	"github.com/satyaki-up/matorral/internal/issues"
	"github.com/satyaki-up/matorral/internal/telemetry"
	"github.com/satyaki-up/matorral/internal/ui"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// Commands annotated with noDBAnnotation run without opening the database.
const noDBAnnotation = "mt/nodb"

var (
	dbPath     string
	actor      string
	jsonOutput bool
	verbose    bool

	cfg      *config.Config
	logger   *slog.Logger
	database *sql.DB
	svc      *issues.Service
	engine   *cascade.Engine
)

var rootCmd = &cobra.Command{
	Use:           "mt",
	Short:         "mt - hierarchical work tracker with status cascades",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		if cfg, err = config.Load(cwd); err != nil {
			return fmt.Errorf("%w: load config: %v", issues.ErrInvalidInput, err)
		}
		if strings.TrimSpace(actor) == "" {
			actor = cfg.Actor
		}
		logger = newLogger(os.Stderr, cfg.LogLevel, false)
		slog.SetDefault(logger)

		if err := telemetry.Init(cmd.Context(), telemetry.Options{
			Enabled: cfg.Telemetry.Enabled,
			Stdout:  cfg.Telemetry.Stdout,
		}, "mt", Version); err != nil {
			logger.Warn("telemetry disabled", "error", err)
		}

		if cmd.Annotations[noDBAnnotation] == "true" {
			return nil
		}
		return openStore(cmd.Context())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeStore()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (default: mtconfig.yaml db, $MT_DB_PATH, .mt/matorral.db)")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "Actor recorded in the audit log (default: config actor)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.Version = Version
}

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	closeStore()
	if err != nil {
		os.Exit(renderError(err))
	}
}

func openStore(ctx context.Context) error {
	path := strings.TrimSpace(dbPath)
	if path == "" {
		path = cfg.DBPath
	}
	if path == "" {
		path = db.DefaultPath()
	}
	opened, err := db.Open(ctx, path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	database = opened
	svc = issues.NewService(database)
	engine = cascade.NewEngine(telemetry.WrapStore(svc), logger)
	logger.Debug("database opened", "path", path)
	return nil
}

func closeStore() {
	if database != nil {
		_ = database.Close()
		database = nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	telemetry.Shutdown(ctx)
}

func newLogger(w io.Writer, level string, jsonFormat bool) *slog.Logger {
	var lvl slog.Level
	if verbose {
		lvl = slog.LevelDebug
	} else if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if jsonFormat {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func currentWorkspace(ctx context.Context) (*issues.Workspace, error) {
	return svc.GetWorkspace(ctx, cfg.Workspace)
}

// findProject resolves a project key in the configured workspace.
func findProject(ctx context.Context, key string) (*issues.Project, error) {
	ws, err := currentWorkspace(ctx)
	if err != nil {
		return nil, err
	}
	return svc.FindProject(ctx, ws.ID, key)
}

// parseID reads a positive row id given on the command line.
func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", issues.ErrInvalidInput, raw)
	}
	return id, nil
}

func renderError(err error) int {
	if jsonOutput {
		outputJSON(map[string]string{"error": err.Error()})
	} else {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail(ui.IconFail), err)
	}
	switch {
	case errors.Is(err, issues.ErrInvalidInput), errors.Is(err, issues.ErrInvalidStatus), errors.Is(err, issues.ErrInvalidParent):
		return 2
	case errors.Is(err, issues.ErrNotFound):
		return 3
	case errors.Is(err, issues.ErrConflict), errors.Is(err, config.ErrExists):
		return 4
	default:
		return 1
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
