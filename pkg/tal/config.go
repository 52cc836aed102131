package tal

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains all configuration options for the template engine
type Config struct {
	// CacheMaxSize is the maximum number of resolved templates to cache. 0 disables caching.
	CacheMaxSize int `yaml:"cache_max_size"`
	// CacheTTL is the time-to-live for cached templates. 0 means no expiration.
	CacheTTL time.Duration `yaml:"cache_ttl"`
	// LogLevel controls the verbosity of logging (debug, info, warn, error, off)
	LogLevel string `yaml:"log_level"`
	// MaxRenderDepth limits how deeply macro calls and includes may nest
	MaxRenderDepth int `yaml:"max_render_depth"`
	// StrictMode makes expression faults abort the render instead of being logged and skipped
	StrictMode bool `yaml:"strict_mode"`
	// LogFaultsAsWarn reports skipped expression faults at warn instead of error level
	LogFaultsAsWarn bool `yaml:"log_faults_as_warn"`
	// AllowHTML falls back to lenient HTML parsing when a source is not well-formed XML
	AllowHTML bool `yaml:"allow_html"`
	// EscapeAmpersands escapes ampersands in structure content that do not start an entity reference
	EscapeAmpersands bool `yaml:"escape_ampersands"`
	// SuppressDeclaration omits the XML declaration and doctype from rendered output
	SuppressDeclaration bool `yaml:"suppress_declaration"`
	// SanitizeStructure passes structure content through an HTML sanitizer before writing it
	SanitizeStructure bool `yaml:"sanitize_structure"`
}

var (
	globalConfig      *Config
	globalConfigMutex sync.RWMutex
	configOnce        sync.Once
)

func init() {
	configOnce.Do(func() {
		globalConfig = ConfigFromEnvironment()
	})
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		CacheMaxSize:        100,
		CacheTTL:            0,
		LogLevel:            "info",
		MaxRenderDepth:      100,
		StrictMode:          false,
		LogFaultsAsWarn:     false,
		AllowHTML:           true,
		EscapeAmpersands:    false,
		SuppressDeclaration: true,
		SanitizeStructure:   false,
	}
}

// ConfigFromEnvironment creates a configuration from environment variables
func ConfigFromEnvironment() *Config {
	config := DefaultConfig()

	if val := os.Getenv("TAL_CACHE_MAX_SIZE"); val != "" {
		if size, err := strconv.Atoi(val); err == nil {
			config.CacheMaxSize = size
		}
	}

	if val := os.Getenv("TAL_CACHE_TTL"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			config.CacheTTL = duration
		}
	}

	if val := os.Getenv("TAL_LOG_LEVEL"); val != "" {
		config.LogLevel = val
	}

	if val := os.Getenv("TAL_MAX_RENDER_DEPTH"); val != "" {
		if depth, err := strconv.Atoi(val); err == nil {
			config.MaxRenderDepth = depth
		}
	}

	boolVars := []struct {
		name   string
		target *bool
	}{
		{"TAL_STRICT_MODE", &config.StrictMode},
		{"TAL_LOG_FAULTS_AS_WARN", &config.LogFaultsAsWarn},
		{"TAL_ALLOW_HTML", &config.AllowHTML},
		{"TAL_ESCAPE_AMPERSANDS", &config.EscapeAmpersands},
		{"TAL_SUPPRESS_DECLARATION", &config.SuppressDeclaration},
		{"TAL_SANITIZE_STRUCTURE", &config.SanitizeStructure},
	}
	for _, v := range boolVars {
		if val := os.Getenv(v.name); val != "" {
			*v.target = parseBool(val)
		}
	}

	return config
}

// ConfigFromYAML parses a YAML document on top of the defaults. Keys left
// out of the document keep their default values.
func ConfigFromYAML(data []byte) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ConfigFromFile reads a YAML configuration file
func ConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewDocumentError("read", path, err)
	}
	config, err := ConfigFromYAML(data)
	if err != nil {
		return nil, WithContext(err, "load config", map[string]interface{}{"path": path})
	}
	return config, nil
}

// NewConfigWithDefaults creates a new configuration with defaults applied to unset fields
func NewConfigWithDefaults(overrides *Config) *Config {
	defaults := DefaultConfig()

	if overrides == nil {
		return defaults
	}

	config := *overrides

	if config.LogLevel == "" {
		config.LogLevel = defaults.LogLevel
	}

	if config.MaxRenderDepth == 0 {
		config.MaxRenderDepth = defaults.MaxRenderDepth
	}

	return &config
}

// Validate checks if the configuration is valid. Every problem found is
// reported; more than one comes back as a *MultiError.
func (c *Config) Validate() error {
	errs := NewMultiError()

	if c.CacheMaxSize < 0 {
		errs.Add(errors.New("cache max size cannot be negative"))
	}

	if c.CacheTTL < 0 {
		errs.Add(errors.New("cache TTL cannot be negative"))
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"off":   true,
	}

	if !validLogLevels[c.LogLevel] {
		errs.Add(errors.New("invalid log level: " + c.LogLevel))
	}

	if c.MaxRenderDepth <= 0 {
		errs.Add(errors.New("max render depth must be positive"))
	}

	return errs.Err()
}

// GetGlobalConfig returns the global configuration
func GetGlobalConfig() *Config {
	globalConfigMutex.RLock()
	defer globalConfigMutex.RUnlock()

	if globalConfig == nil {
		return DefaultConfig()
	}

	configCopy := *globalConfig
	return &configCopy
}

// SetGlobalConfig sets the global configuration
func SetGlobalConfig(config *Config) {
	globalConfigMutex.Lock()
	globalConfig = config
	globalConfigMutex.Unlock()

	// outside the lock: the logger reads the config back
	UpdateLoggerFromConfig()
}

// parseBool parses a boolean value from a string
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
