package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const FileName = "mtconfig.yaml"

// ErrExists is returned by Init when the directory already has a config.
var ErrExists = errors.New("config already exists")

var workspaceSlugRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,48}$`)

var knownKeys = map[string]bool{
	"db":                true,
	"workspace":         true,
	"actor":             true,
	"server.addr":       true,
	"server.api_key":    true,
	"log.level":         true,
	"telemetry.enabled": true,
	"telemetry.stdout":  true,
}

var envBindings = map[string]string{
	"db":                "MT_DB_PATH",
	"workspace":         "MT_WORKSPACE",
	"actor":             "MT_ACTOR",
	"server.api_key":    "MT_API_KEY",
	"log.level":         "MT_LOG_LEVEL",
	"telemetry.enabled": "MT_OTEL_ENABLED",
	"telemetry.stdout":  "MT_OTEL_STDOUT",
}

type Config struct {
	// Path is the file the config was read from; empty when none was found.
	Path      string
	DBPath    string
	Workspace string
	Actor     string
	Server    ServerConfig
	LogLevel  string
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	Addr   string
	APIKey string
}

type TelemetryConfig struct {
	Enabled bool
	Stdout  bool
}

// Discover walks up from startDir and returns the first mtconfig.yaml found,
// or "" when there is none.
func Discover(startDir string) (string, error) {
	dir := startDir
	for {
		candidate := filepath.Join(dir, FileName)
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
		if err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("read %s: %w", candidate, err)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Load discovers the config from startDir and merges it with defaults and
// MT_* environment overrides. A missing file is not an error.
func Load(startDir string) (*Config, error) {
	v := viper.New()
	v.SetDefault("workspace", "default")
	v.SetDefault("actor", "cli")
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.stdout", false)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	path, err := Discover(startDir)
	if err != nil {
		return nil, err
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", path, err)
		}
		for _, key := range v.AllKeys() {
			if !knownKeys[key] {
				return nil, fmt.Errorf("invalid %s: unsupported key %q", path, key)
			}
		}
	}

	cfg := &Config{
		Path:      path,
		DBPath:    strings.TrimSpace(v.GetString("db")),
		Workspace: strings.TrimSpace(strings.ToLower(v.GetString("workspace"))),
		Actor:     strings.TrimSpace(v.GetString("actor")),
		Server: ServerConfig{
			Addr:   v.GetString("server.addr"),
			APIKey: v.GetString("server.api_key"),
		},
		LogLevel: strings.ToLower(v.GetString("log.level")),
		Telemetry: TelemetryConfig{
			Enabled: v.GetBool("telemetry.enabled"),
			Stdout:  v.GetBool("telemetry.stdout"),
		},
	}

	if cfg.DBPath != "" && !filepath.IsAbs(cfg.DBPath) && path != "" && os.Getenv("MT_DB_PATH") == "" {
		cfg.DBPath = filepath.Clean(filepath.Join(filepath.Dir(path), cfg.DBPath))
	}
	if !workspaceSlugRe.MatchString(cfg.Workspace) {
		return nil, fmt.Errorf("invalid %s: workspace must be 2-49 lowercase alphanumeric or '-' chars", sourceName(path))
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid %s: unknown log level %q", sourceName(path), cfg.LogLevel)
	}
	return cfg, nil
}

// Init writes a starter mtconfig.yaml into dir.
func Init(dir, workspace string) (string, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%w: %s", ErrExists, path)
	}
	workspace = strings.TrimSpace(strings.ToLower(workspace))
	if !workspaceSlugRe.MatchString(workspace) {
		return "", fmt.Errorf("workspace must be 2-49 lowercase alphanumeric or '-' chars")
	}

	content, err := yaml.Marshal(map[string]any{
		"db":        filepath.Join(".mt", "matorral.db"),
		"workspace": workspace,
		"log":       map[string]string{"level": "info"},
	})
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return path, nil
}

func sourceName(path string) string {
	if path == "" {
		return "environment"
	}
	return path
}
