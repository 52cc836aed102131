package tal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.CacheMaxSize != 100 {
		t.Errorf("DefaultConfig CacheMaxSize = %d, want 100", config.CacheMaxSize)
	}
	if config.CacheTTL != 0 {
		t.Errorf("DefaultConfig CacheTTL = %v, want 0", config.CacheTTL)
	}
	if config.LogLevel != "info" {
		t.Errorf("DefaultConfig LogLevel = %s, want info", config.LogLevel)
	}
	if config.MaxRenderDepth != 100 {
		t.Errorf("DefaultConfig MaxRenderDepth = %d, want 100", config.MaxRenderDepth)
	}
	if config.StrictMode {
		t.Errorf("DefaultConfig StrictMode = true, want false")
	}
	if !config.AllowHTML {
		t.Errorf("DefaultConfig AllowHTML = false, want true")
	}
	if !config.SuppressDeclaration {
		t.Errorf("DefaultConfig SuppressDeclaration = false, want true")
	}
}

func TestConfigFromEnvironment(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		check   func(t *testing.T, config *Config)
	}{
		{
			name:    "cache max size",
			envVars: map[string]string{"TAL_CACHE_MAX_SIZE": "50"},
			check: func(t *testing.T, config *Config) {
				if config.CacheMaxSize != 50 {
					t.Errorf("CacheMaxSize = %d, want 50", config.CacheMaxSize)
				}
			},
		},
		{
			name:    "cache TTL",
			envVars: map[string]string{"TAL_CACHE_TTL": "5m"},
			check: func(t *testing.T, config *Config) {
				if config.CacheTTL != 5*time.Minute {
					t.Errorf("CacheTTL = %v, want 5m", config.CacheTTL)
				}
			},
		},
		{
			name:    "log level",
			envVars: map[string]string{"TAL_LOG_LEVEL": "debug"},
			check: func(t *testing.T, config *Config) {
				if config.LogLevel != "debug" {
					t.Errorf("LogLevel = %s, want debug", config.LogLevel)
				}
			},
		},
		{
			name:    "max render depth",
			envVars: map[string]string{"TAL_MAX_RENDER_DEPTH": "8"},
			check: func(t *testing.T, config *Config) {
				if config.MaxRenderDepth != 8 {
					t.Errorf("MaxRenderDepth = %d, want 8", config.MaxRenderDepth)
				}
			},
		},
		{
			name: "boolean switches",
			envVars: map[string]string{
				"TAL_STRICT_MODE":          "yes",
				"TAL_LOG_FAULTS_AS_WARN":   "1",
				"TAL_ALLOW_HTML":           "off",
				"TAL_ESCAPE_AMPERSANDS":    "on",
				"TAL_SUPPRESS_DECLARATION": "false",
				"TAL_SANITIZE_STRUCTURE":   "TRUE",
			},
			check: func(t *testing.T, config *Config) {
				if !config.StrictMode || !config.LogFaultsAsWarn || !config.EscapeAmpersands || !config.SanitizeStructure {
					t.Errorf("expected switches to be on, got %+v", config)
				}
				if config.AllowHTML || config.SuppressDeclaration {
					t.Errorf("expected switches to be off, got %+v", config)
				}
			},
		},
		{
			name:    "invalid numbers keep defaults",
			envVars: map[string]string{"TAL_CACHE_MAX_SIZE": "invalid", "TAL_CACHE_TTL": "soon", "TAL_MAX_RENDER_DEPTH": "deep"},
			check: func(t *testing.T, config *Config) {
				if config.CacheMaxSize != 100 || config.CacheTTL != 0 || config.MaxRenderDepth != 100 {
					t.Errorf("expected defaults, got %+v", config)
				}
			},
		},
		{
			name:    "empty value keeps default",
			envVars: map[string]string{"TAL_ALLOW_HTML": ""},
			check: func(t *testing.T, config *Config) {
				if !config.AllowHTML {
					t.Errorf("AllowHTML = false, want true (default)")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}
			tt.check(t, ConfigFromEnvironment())
		})
	}
}

func TestConfigFromYAML(t *testing.T) {
	config, err := ConfigFromYAML([]byte("strict_mode: true\nmax_render_depth: 12\ncache_ttl: 1m\n"))
	if err != nil {
		t.Fatalf("ConfigFromYAML() error = %v", err)
	}
	if !config.StrictMode {
		t.Errorf("StrictMode = false, want true")
	}
	if config.MaxRenderDepth != 12 {
		t.Errorf("MaxRenderDepth = %d, want 12", config.MaxRenderDepth)
	}
	if config.CacheTTL != time.Minute {
		t.Errorf("CacheTTL = %v, want 1m", config.CacheTTL)
	}
	if config.LogLevel != "info" {
		t.Errorf("LogLevel = %s, want info (default)", config.LogLevel)
	}

	if _, err := ConfigFromYAML([]byte("log_level: loud\n")); err == nil {
		t.Error("expected invalid log level to be rejected")
	}
	if _, err := ConfigFromYAML([]byte("strict_mode: [\n")); err == nil {
		t.Error("expected malformed YAML to be rejected")
	}
}

func TestConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tal.yaml")
	if err := os.WriteFile(path, []byte("allow_html: false\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	config, err := ConfigFromFile(path)
	if err != nil {
		t.Fatalf("ConfigFromFile() error = %v", err)
	}
	if config.AllowHTML {
		t.Errorf("AllowHTML = true, want false")
	}

	_, err = ConfigFromFile(filepath.Join(dir, "missing.yaml"))
	if !IsDocumentError(err) {
		t.Errorf("expected document error for missing file, got %v", err)
	}
}

func TestNewConfigWithDefaults(t *testing.T) {
	config := NewConfigWithDefaults(&Config{CacheMaxSize: 200})

	if config.CacheMaxSize != 200 {
		t.Errorf("CacheMaxSize = %d, want 200", config.CacheMaxSize)
	}
	if config.LogLevel != "info" {
		t.Errorf("LogLevel = %s, want info (default)", config.LogLevel)
	}
	if config.MaxRenderDepth != 100 {
		t.Errorf("MaxRenderDepth = %d, want 100 (default)", config.MaxRenderDepth)
	}
	if NewConfigWithDefaults(nil).CacheMaxSize != 100 {
		t.Errorf("nil overrides should yield defaults")
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		valid  bool
	}{
		{"valid config", func(*Config) {}, true},
		{"negative cache size", func(c *Config) { c.CacheMaxSize = -1 }, false},
		{"negative cache TTL", func(c *Config) { c.CacheTTL = -time.Second }, false},
		{"invalid log level", func(c *Config) { c.LogLevel = "invalid" }, false},
		{"zero render depth", func(c *Config) { c.MaxRenderDepth = 0 }, false},
		{"log level off", func(c *Config) { c.LogLevel = "off" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(config)
			err := config.Validate()
			if (err == nil) != tt.valid {
				t.Errorf("Validate() error = %v, valid = %v", err, tt.valid)
			}
		})
	}
}

func TestGlobalConfig(t *testing.T) {
	original := GetGlobalConfig()
	defer SetGlobalConfig(original)

	custom := DefaultConfig()
	custom.StrictMode = true
	SetGlobalConfig(custom)

	got := GetGlobalConfig()
	if !got.StrictMode {
		t.Errorf("GetGlobalConfig().StrictMode = false, want true")
	}
	got.StrictMode = false
	if !GetGlobalConfig().StrictMode {
		t.Errorf("GetGlobalConfig should return a copy")
	}
}

func TestConfigValidationReportsEveryIssue(t *testing.T) {
	config := DefaultConfig()
	config.CacheMaxSize = -1
	config.LogLevel = "loud"

	err := config.Validate()
	var multi *MultiError
	if !errors.As(err, &multi) {
		t.Fatalf("Validate() error = %v, want *MultiError", err)
	}
	if multi.Len() != 2 {
		t.Errorf("Len() = %d, want 2: %v", multi.Len(), err)
	}
}
