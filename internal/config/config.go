package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"invoiz/internal/extract"
)

const (
	DefaultQuery = "invoice"
	DefaultLimit = "5"
)

// Config captures the options of one invoiz invocation.
type Config struct {
	ConfigDir string
	DBPath    string
	Model     string
	LogLevel  string
	LogDir    string

	// Run options; zero for commands that do not process mail.
	Query   string
	Limit   int // 0 means no limit
	OutDir  string
	Workers int
	JSON    bool
	APIKey  string

	// LastRun limits browse to the most recent run.
	LastRun bool
}

// RegisterFlags attaches the flags shared by every command to root.
func RegisterFlags(root *cobra.Command) error {
	configDir, err := defaultConfigDir()
	if err != nil {
		return err
	}

	flags := root.PersistentFlags()
	flags.String("config-dir", configDir, "Directory holding client_secret.json, token.json and the results database")
	flags.String("db", "", "Path to the results database (default <config-dir>/invoiz.db)")
	flags.String("model", extract.DefaultModel, "Generative model used for field extraction")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Also write logs to a timestamped file in this directory")
	return nil
}

// RegisterRunFlags attaches the mail-processing flags to cmd.
func RegisterRunFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringP("query", "q", DefaultQuery, "Gmail search query")
	flags.StringP("limit", "n", DefaultLimit, "Maximum number of messages to process (-1 or \"all\" for no limit)")
	flags.StringP("out", "o", "downloads", "Directory that receives one folder per message")
	flags.Int("workers", 1, "Number of messages processed in parallel")
	flags.Bool("json", false, "Print the records as JSON instead of a summary")
}

// RegisterBrowseFlags attaches the browse flags to cmd.
func RegisterBrowseFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("last", false, "Show only the records of the most recent run")
}

// LoadConfig converts the parsed Cobra flags into a Config struct with validation.
// Run options are read only when cmd carries them.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	flags := cmd.Flags()

	configDir, err := flags.GetString("config-dir")
	if err != nil {
		return Config{}, err
	}
	dbPath, err := flags.GetString("db")
	if err != nil {
		return Config{}, err
	}
	model, err := flags.GetString("model")
	if err != nil {
		return Config{}, err
	}
	logLevel, err := flags.GetString("log-level")
	if err != nil {
		return Config{}, err
	}
	logDir, err := flags.GetString("log-dir")
	if err != nil {
		return Config{}, err
	}

	if configDir == "" {
		if configDir, err = defaultConfigDir(); err != nil {
			return Config{}, err
		}
	}
	if dbPath == "" {
		dbPath = filepath.Join(configDir, "invoiz.db")
	}
	logLevel = strings.ToLower(logLevel)
	if logLevel == "warning" {
		logLevel = "warn"
	}

	cfg := Config{
		ConfigDir: filepath.Clean(configDir),
		DBPath:    filepath.Clean(dbPath),
		Model:     strings.TrimSpace(model),
		LogLevel:  logLevel,
		LogDir:    logDir,
	}

	if flags.Lookup("query") != nil {
		if err := loadRunOptions(cmd, &cfg); err != nil {
			return Config{}, err
		}
	}

	if flags.Lookup("last") != nil {
		if cfg.LastRun, err = flags.GetBool("last"); err != nil {
			return Config{}, err
		}
	}

	if err := validateConfig(cfg, flags.Lookup("query") != nil); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadRunOptions(cmd *cobra.Command, cfg *Config) error {
	flags := cmd.Flags()

	query, err := flags.GetString("query")
	if err != nil {
		return err
	}
	limitStr, err := flags.GetString("limit")
	if err != nil {
		return err
	}
	outDir, err := flags.GetString("out")
	if err != nil {
		return err
	}
	workers, err := flags.GetInt("workers")
	if err != nil {
		return err
	}
	asJSON, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	limit, err := ParseLimit(limitStr)
	if err != nil {
		return err
	}

	cfg.Query = strings.TrimSpace(query)
	cfg.Limit = limit
	cfg.OutDir = filepath.Clean(outDir)
	cfg.Workers = workers
	cfg.JSON = asJSON
	cfg.APIKey = APIKeyFromEnv()
	return nil
}

// ParseLimit accepts a positive count, or -1 / "all" for no limit (returned
// as 0).
func ParseLimit(s string) (int, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "all" || s == "-1" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid --limit %q: want a positive number, -1 or all", s)
	}
	return n, nil
}

// APIKeyFromEnv returns GOOGLE_API_KEY, or GEMINI_API_KEY if the former is unset.
func APIKeyFromEnv() string {
	if k := strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")); k != "" {
		return k
	}
	return strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
}

func validateConfig(cfg Config, run bool) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}
	if !run {
		return nil
	}
	if cfg.Query == "" {
		return fmt.Errorf("--query must not be empty")
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("--workers must be at least 1")
	}
	if cfg.Model == "" {
		return fmt.Errorf("--model must not be empty")
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("an API key must be provided via GOOGLE_API_KEY or GEMINI_API_KEY")
	}
	return nil
}

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "invoiz"), nil
}
