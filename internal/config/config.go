package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/elevate/elevate.metabase.tools/internal/domain"
	"github.com/elevate/elevate.metabase.tools/internal/id"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultTimeout bounds every Metabase request.
const DefaultTimeout = 100 * time.Second

// Config represents the application configuration
type Config struct {
	URL                      string                          `yaml:"url"`
	Username                 string                          `yaml:"username"`
	Password                 string                          `yaml:"password"`
	Timeout                  time.Duration                   `yaml:"timeout"`
	InsecureSkipVerify       bool                            `yaml:"insecure_skip_verify"`
	RequestsPerSecond        float64                         `yaml:"requests_per_second"`
	StatePath                string                          `yaml:"state_path"`
	SnapshotPath             string                          `yaml:"snapshot_path"`
	LogLevel                 string                          `yaml:"log_level"`
	LogFile                  string                          `yaml:"log_file"`
	DatabaseMapping          map[id.DatabaseID]id.DatabaseID `yaml:"database_mapping"`
	IgnoredDatabases         []id.DatabaseID                 `yaml:"ignored_databases"`
	PersonalCollectionMarker string                          `yaml:"personal_collection_marker"`
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables
// 2. ./.env.local (dotenv) - walks up parent directories to find it
// 3. ~/.config/mbsnap/config.yaml (YAML)
func Load() (*Config, error) {
	cfg := &Config{
		Timeout:                  DefaultTimeout,
		SnapshotPath:             "metabase-state.json",
		LogLevel:                 "info",
		PersonalCollectionMarker: domain.DefaultPersonalMarker,
	}

	// Load .env.local if it exists (walking up parent directories)
	if envPath := findEnvLocal(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	// YAML config is optional
	if err := loadYAMLConfig(cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if cfg.StatePath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.StatePath = filepath.Join(homeDir, ".local", "share", "mbsnap", "state.db")
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("MBSNAP_URL"); v != "" {
		cfg.URL = v
	}
	if v := getEnvOrFile("MBSNAP_USERNAME", "MBSNAP_USERNAME_FILE"); v != "" {
		cfg.Username = v
	}
	if v := getEnvOrFile("MBSNAP_PASSWORD", "MBSNAP_PASSWORD_FILE"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("MBSNAP_TIMEOUT"); v != "" {
		d, err := ParseTimeout(v)
		if err != nil {
			return fmt.Errorf("MBSNAP_TIMEOUT: %w", err)
		}
		cfg.Timeout = d
	}
	if v := os.Getenv("MBSNAP_INSECURE_SKIP_VERIFY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MBSNAP_INSECURE_SKIP_VERIFY: %w", err)
		}
		cfg.InsecureSkipVerify = b
	}
	if v := os.Getenv("MBSNAP_REQUESTS_PER_SECOND"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("MBSNAP_REQUESTS_PER_SECOND: %w", err)
		}
		cfg.RequestsPerSecond = f
	}
	if v := getEnvOrFile("MBSNAP_STATE_PATH", "MBSNAP_STATE_PATH_FILE"); v != "" {
		cfg.StatePath = v
	}
	if v := os.Getenv("MBSNAP_SNAPSHOT_PATH"); v != "" {
		cfg.SnapshotPath = v
	}
	if v := os.Getenv("MBSNAP_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MBSNAP_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("MBSNAP_DATABASE_MAPPING"); v != "" {
		m, err := ParseDatabaseMapping(strings.Split(v, ","))
		if err != nil {
			return fmt.Errorf("MBSNAP_DATABASE_MAPPING: %w", err)
		}
		cfg.DatabaseMapping = m
	}
	if v := os.Getenv("MBSNAP_IGNORED_DATABASES"); v != "" {
		ids, err := id.ParseList[id.DatabaseKind](v)
		if err != nil {
			return fmt.Errorf("MBSNAP_IGNORED_DATABASES: %w", err)
		}
		cfg.IgnoredDatabases = ids
	}
	if v := os.Getenv("MBSNAP_PERSONAL_COLLECTION_MARKER"); v != "" {
		cfg.PersonalCollectionMarker = v
	}
	return nil
}

// Validate reports every problem with the connection settings.
func (c *Config) Validate() error {
	var errs []error
	if c.URL == "" {
		errs = append(errs, errors.New("url is required (--url or MBSNAP_URL)"))
	} else if u, err := url.Parse(c.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("url %q must be an absolute http or https URL", c.URL))
	}
	if c.Username == "" {
		errs = append(errs, errors.New("username is required (--username or MBSNAP_USERNAME)"))
	}
	if c.Password == "" {
		errs = append(errs, errors.New("password is required (--password or MBSNAP_PASSWORD)"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if c.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("requests_per_second must not be negative, got %g", c.RequestsPerSecond))
	}
	return errors.Join(errs...)
}

// ParseDatabaseMapping parses "SRC=DST" pairs. Blank entries are ignored.
func ParseDatabaseMapping(pairs []string) (map[id.DatabaseID]id.DatabaseID, error) {
	out := make(map[id.DatabaseID]id.DatabaseID, len(pairs))
	for _, pair := range pairs {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		src, dst, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid database mapping %q: expected SRC=DST", pair)
		}
		s, err := id.Parse[id.DatabaseKind](src)
		if err != nil {
			return nil, err
		}
		d, err := id.Parse[id.DatabaseKind](dst)
		if err != nil {
			return nil, err
		}
		if prev, dup := out[s]; dup && prev != d {
			return nil, fmt.Errorf("database %d is mapped twice (%d and %d)", s, prev, d)
		}
		out[s] = d
	}
	return out, nil
}

// ParseTimeout accepts a Go duration ("90s") or a number of seconds ("90").
func ParseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// loadYAMLConfig loads configuration from ~/.config/mbsnap/config.yaml
func loadYAMLConfig(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(homeDir, ".config", "mbsnap", "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", configPath, err)
	}
	return nil
}

// getEnvOrFile gets an environment variable value, or reads it from a file
// if the _FILE variant is set
func getEnvOrFile(envVar, fileVar string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}

	if filePath := os.Getenv(fileVar); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimRight(string(data), "\r\n")
		}
	}

	return ""
}

// findEnvLocal searches for .env.local starting from cwd and walking up
// parent directories. Stops at the user's home directory.
// Returns the path to .env.local if found, empty string otherwise.
func findEnvLocal() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// If we can't get home dir, just check cwd
		if _, err := os.Stat(".env.local"); err == nil {
			return ".env.local"
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	homeDir = filepath.Clean(homeDir)
	dir := filepath.Clean(cwd)

	for {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}

		if dir == homeDir {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}

		dir = parent
	}

	return ""
}
