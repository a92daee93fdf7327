package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

const maxConfigFileSize = 1024 * 1024

// envPrefix namespaces commitd environment overrides.
const envPrefix = "COMMITD_"

// Discover walks up from startDir looking for a .commitd directory holding
// a config file. Returns the config file path, or "" when none exists.
func Discover(startDir string) string {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return ""
	}
	for {
		stateDir := filepath.Join(dir, StateDirName)
		if info, err := os.Stat(stateDir); err == nil && info.IsDir() {
			for _, name := range []string{ConfigFileJSON, ConfigFileYAML} {
				candidate := filepath.Join(stateDir, name)
				if _, err := os.Stat(candidate); err == nil {
					return candidate
				}
			}
			return ""
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Load resolves configuration for startDir: discovered file, then COMMITD_*
// environment overrides, then defaults. A missing or unreadable file is not
// an error — the result is the disabled default configuration, with the
// problem recorded for Validate.
func Load(startDir string, logger *zap.Logger) *Config {
	if logger == nil {
		logger = zap.NewNop()
	}
	return loadFile(Discover(startDir), logger)
}

// LoadFile loads configuration from an explicit path, with the same
// degraded-mode behavior as Load.
func LoadFile(path string, logger *zap.Logger) *Config {
	if logger == nil {
		logger = zap.NewNop()
	}
	return loadFile(path, logger)
}

func loadFile(path string, logger *zap.Logger) *Config {
	cfg := Default()
	k := koanf.New(".")

	if path != "" {
		content, err := readBounded(path)
		if err != nil {
			logger.Warn("could not read config file, automation disabled",
				zap.String("path", path), zap.Error(err))
			cfg.loadErr = err.Error()
			return cfg
		}
		parser := parserFor(path)
		if err := k.Load(rawbytes.Provider(content), parser); err != nil {
			logger.Warn("malformed config file, automation disabled",
				zap.String("path", path), zap.Error(err))
			cfg.loadErr = err.Error()
			return cfg
		}
		cfg.path = path
	}

	// COMMITD_AUTOMATION_COMMIT_FREQUENCY -> automation.commit_frequency
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		logger.Warn("could not load environment overrides", zap.Error(err))
	}

	if err := k.Unmarshal("", cfg); err != nil {
		logger.Warn("malformed config values, automation disabled",
			zap.String("path", path), zap.Error(err))
		fresh := Default()
		fresh.loadErr = err.Error()
		return fresh
	}
	return cfg
}

func readBounded(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}
	return os.ReadFile(path)
}

func parserFor(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser()
	default:
		return kjson.Parser()
	}
}

// ValidationResult reports configuration problems without failing the load.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() ValidationResult {
	result := ValidationResult{Valid: true}

	if c.loadErr != "" {
		result.Valid = false
		result.Errors = append(result.Errors, "config file could not be loaded: "+c.loadErr)
	}

	if c.Automation.MaxMessageLength <= 0 {
		result.Valid = false
		result.Errors = append(result.Errors, "automation.max_message_length must be a positive integer")
	} else if c.Automation.MaxMessageLength < 20 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("automation.max_message_length of %d is quite short, consider at least 50",
				c.Automation.MaxMessageLength))
	}

	switch c.Automation.CommitFrequency {
	case FrequencyTask, FrequencyPhase, FrequencySpec:
	default:
		result.Valid = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("automation.commit_frequency must be task, phase, or spec, got %q",
				c.Automation.CommitFrequency))
	}

	if tmpl := c.Automation.FallbackMessageTemplate; tmpl != "" && !strings.Contains(tmpl, "{task_id}") {
		result.Warnings = append(result.Warnings,
			"automation.fallback_message_template should contain the {task_id} placeholder")
	}

	if c.Commit.MaxRetries < 0 {
		result.Valid = false
		result.Errors = append(result.Errors, "commit.max_retries must not be negative")
	}
	if c.Commit.RetryBackoff < 1.0 {
		result.Warnings = append(result.Warnings,
			"commit.retry_backoff below 1.0 shrinks delays between retries")
	}

	return result
}

// Save atomically writes the configuration as JSON to path, creating the
// state directory when needed. The config store is the sole writer.
func (c *Config) Save(path string) error {
	if path == "" {
		path = c.path
	}
	if path == "" {
		return fmt.Errorf("no config path to save to")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("writing config: %w", err)
	}
	c.path = path
	return nil
}

// DefaultPath returns where a new config file should be created for root.
func DefaultPath(root string) string {
	return filepath.Join(root, StateDirName, ConfigFileJSON)
}
