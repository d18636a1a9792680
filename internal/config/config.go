package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	DefaultOwner                  = "local"
	DefaultReadingReversedPercent = 30
	DefaultDailyReversedPercent   = 50
	DefaultJournalMaxChars        = 20000
	DefaultQuestionMaxChars       = 500
)

// Config holds application configuration.
type Config struct {
	// Owner namespaces every persisted collection. Single-user installs keep the default.
	Owner string `json:"owner,omitempty"`

	// Timezone is the IANA zone used to compute the daily card's date key.
	// Empty means the process's local zone.
	Timezone string `json:"timezone,omitempty"`

	// ReadingReversedPercent is the chance (0-100) that a card drawn into a spread lands reversed.
	// Pointer so an explicit 0 survives merging.
	ReadingReversedPercent *int `json:"reading_reversed_percent,omitempty"`

	// DailyReversedPercent is the chance (0-100) that the card of the day is reversed.
	DailyReversedPercent *int `json:"daily_reversed_percent,omitempty"`

	// JournalMaxChars is the maximum character count for a journal entry.
	JournalMaxChars int `json:"journal_max_chars,omitempty"`

	// QuestionMaxChars is the maximum character count for a reading's question.
	QuestionMaxChars int `json:"question_max_chars,omitempty"`

	// AllowedPaths is an allowlist of directories for import/export operations.
	// Paths outside ~/.arcana/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for import/export.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of type names to disable entirely.
	// Known types: "card", "spread", "daily", "reading", "journal", "data".
	DisabledTypes []string `json:"disabled_types,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`

	// LogFormat is "text" or "json".
	LogFormat string `json:"log_format,omitempty"`
}

// envOverrides is read with cleanenv. No env-default tags: unset variables
// leave the file configuration alone.
type envOverrides struct {
	Owner     string `env:"ARCANA_OWNER"`
	Timezone  string `env:"ARCANA_TIMEZONE"`
	LogLevel  string `env:"ARCANA_LOG_LEVEL"`
	LogFormat string `env:"ARCANA_LOG_FORMAT"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Owner:                  DefaultOwner,
		ReadingReversedPercent: intPtr(DefaultReadingReversedPercent),
		DailyReversedPercent:   intPtr(DefaultDailyReversedPercent),
		JournalMaxChars:        DefaultJournalMaxChars,
		QuestionMaxChars:       DefaultQuestionMaxChars,
		LogLevel:               "info",
		LogFormat:              "text",
	}
}

// BaseDir returns the Arcana data directory: $ARCANA_HOME, or ~/.arcana.
func BaseDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv("ARCANA_HOME")); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".arcana"), nil
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.arcana) and repo (.arcana) directories,
// then applies ARCANA_* environment overrides.
// Repo config is found by walking upward from startDir to find the nearest .arcana/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	cfg := Merge(Merge(DefaultConfig(), global), repo)
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays ARCANA_OWNER, ARCANA_TIMEZONE, ARCANA_LOG_LEVEL and ARCANA_LOG_FORMAT.
func ApplyEnv(cfg *Config) error {
	var env envOverrides
	if err := cleanenv.ReadEnv(&env); err != nil {
		return fmt.Errorf("config: read env: %w", err)
	}
	if env.Owner != "" {
		cfg.Owner = env.Owner
	}
	if env.Timezone != "" {
		cfg.Timezone = env.Timezone
	}
	if env.LogLevel != "" {
		cfg.LogLevel = env.LogLevel
	}
	if env.LogFormat != "" {
		cfg.LogFormat = env.LogFormat
	}
	return nil
}

// FindRepoConfig walks upward from startDir to find the nearest .arcana/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".arcana", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", configPath, err)
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		Owner:                  pickString(overlay.Owner, base.Owner),
		Timezone:               pickString(overlay.Timezone, base.Timezone),
		LogLevel:               pickString(overlay.LogLevel, base.LogLevel),
		LogFormat:              pickString(overlay.LogFormat, base.LogFormat),
		JournalMaxChars:        pickInt(overlay.JournalMaxChars, base.JournalMaxChars),
		QuestionMaxChars:       pickInt(overlay.QuestionMaxChars, base.QuestionMaxChars),
		DBMaxOpenConns:         pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns),
		DBMaxIdleConns:         pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns),
		ReadingReversedPercent: base.ReadingReversedPercent,
		DailyReversedPercent:   base.DailyReversedPercent,
	}
	if overlay.ReadingReversedPercent != nil {
		result.ReadingReversedPercent = intPtr(*overlay.ReadingReversedPercent)
	}
	if overlay.DailyReversedPercent != nil {
		result.DailyReversedPercent = intPtr(*overlay.DailyReversedPercent)
	}

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

// Validate rejects out-of-range percentages, negative limits and unknown time zones.
func (c *Config) Validate() error {
	if p := c.ReadingReversedPercent; p != nil && (*p < 0 || *p > 100) {
		return fmt.Errorf("config: reading_reversed_percent must be 0..100, got %d", *p)
	}
	if p := c.DailyReversedPercent; p != nil && (*p < 0 || *p > 100) {
		return fmt.Errorf("config: daily_reversed_percent must be 0..100, got %d", *p)
	}
	if c.JournalMaxChars < 0 {
		return fmt.Errorf("config: journal_max_chars must not be negative")
	}
	if c.QuestionMaxChars < 0 {
		return fmt.Errorf("config: question_max_chars must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: unknown timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ReadingReversed returns the configured reversed percentage for spread draws.
func (c *Config) ReadingReversed() int {
	if c == nil || c.ReadingReversedPercent == nil {
		return DefaultReadingReversedPercent
	}
	return *c.ReadingReversedPercent
}

// DailyReversed returns the configured reversed percentage for the card of the day.
func (c *Config) DailyReversed() int {
	if c == nil || c.DailyReversedPercent == nil {
		return DefaultDailyReversedPercent
	}
	return *c.DailyReversedPercent
}

func intPtr(v int) *int { return &v }

func pickString(overlay, base string) string {
	if overlay != "" {
		return overlay
	}
	return base
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
