// Package config loads daemon settings from a TOML file and the
// INLINESUGGEST_CONFIG environment variable.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Environment variables read by the daemon
const (
	EnvConfig    = "INLINESUGGEST_CONFIG"
	EnvConfigDir = "INLINESUGGEST_CONFIG_DIR"
	EnvAPIKey    = "INLINESUGGEST_API_KEY"
)

// Config represents the daemon configuration
type Config struct {
	LogLevel string `toml:"log_level" json:"log_level"` // trace, debug, info, warn, error
	LogFile  string `toml:"log_file" json:"log_file"`

	ServiceURL string `toml:"service_url" json:"service_url"`
	APIKey     string `toml:"api_key" json:"api_key"`
	// MultilineThreshold is forwarded verbatim when set
	MultilineThreshold *float64 `toml:"multiline_threshold" json:"multiline_threshold"`

	CompletionTimeoutMs int `toml:"completion_timeout_ms" json:"completion_timeout_ms"`
	CacheTTLMs          int `toml:"cache_ttl_ms" json:"cache_ttl_ms"` // 0 disables the cache
	AcceptRetryWindowMs int `toml:"accept_retry_window_ms" json:"accept_retry_window_ms"`

	// ContextFiles are watched and sent as other documents
	ContextFiles []string `toml:"context_files" json:"context_files"`
	// EditorOptions are merged over DefaultEditorOptions and handed to the editor.
	// ForcedEditorOptions still win.
	EditorOptions map[string]any `toml:"editor_options" json:"editor_options"`

	// SocketPath defaults to inlinesuggest.sock next to the executable
	SocketPath     string `toml:"socket_path" json:"socket_path"`
	DialTimeoutMs  int    `toml:"dial_timeout_ms" json:"dial_timeout_ms"`
	StartTimeoutMs int    `toml:"start_timeout_ms" json:"start_timeout_ms"`

	DebugImmediateShutdown bool `toml:"debug_immediate_shutdown" json:"debug_immediate_shutdown"`
}

// DefaultEditorOptions are the rendering defaults the editor plugin starts from
var DefaultEditorOptions = map[string]any{
	"enabled":  true,
	"hl_group": "Comment",
	"keymaps": map[string]any{
		"accept":  "<Tab>",
		"dismiss": "<C-]>",
	},
	"filetypes": map[string]any{
		"help":      false,
		"gitcommit": false,
	},
}

// ForcedEditorOptions override both the defaults and the user's options.
// Inline rendering of completions relies on them.
var ForcedEditorOptions = map[string]any{
	"render": map[string]any{
		"virt_text_pos": "inline",
		"hl_mode":       "combine",
	},
	"quick_suggestions": false,
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		LogLevel:            "info",
		CompletionTimeoutMs: 10000,
		CacheTTLMs:          30000,
		DialTimeoutMs:       1000,
		StartTimeoutMs:      5000,
	}
}

// ConfigDir returns the config directory path.
// Resolution order: $INLINESUGGEST_CONFIG_DIR > $XDG_CONFIG_HOME/inlinesuggest > ~/.config/inlinesuggest
func ConfigDir() string {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir
	}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "inlinesuggest")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "inlinesuggest-config")
	}
	return filepath.Join(home, ".config", "inlinesuggest")
}

// ConfigPath returns the full path to the config file
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads the config file at path (a missing file is not an error) and
// applies the JSON override from the environment on top of it.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read %s: %w", path, err)
		}
	}

	if raw := os.Getenv(EnvConfig); raw != "" {
		if err := ApplyJSON(&cfg, []byte(raw)); err != nil {
			return cfg, fmt.Errorf("invalid %s: %w", EnvConfig, err)
		}
	}

	if key := os.Getenv(EnvAPIKey); key != "" {
		cfg.APIKey = key
	}
	return cfg, cfg.Validate()
}

// ApplyJSON overrides cfg with the fields present in data. Editor options are
// deep merged instead of replaced.
func ApplyJSON(cfg *Config, data []byte) error {
	base := cfg.EditorOptions
	cfg.EditorOptions = nil
	if err := json.Unmarshal(data, cfg); err != nil {
		cfg.EditorOptions = base
		return err
	}
	cfg.EditorOptions = MergeOptions(base, cfg.EditorOptions)
	return nil
}

// Validate rejects values the daemon cannot run with
func (c Config) Validate() error {
	var errs []error
	if c.CompletionTimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("completion_timeout_ms must not be negative, got %d", c.CompletionTimeoutMs))
	}
	if c.CacheTTLMs < 0 {
		errs = append(errs, fmt.Errorf("cache_ttl_ms must not be negative, got %d", c.CacheTTLMs))
	}
	if c.AcceptRetryWindowMs < 0 {
		errs = append(errs, fmt.Errorf("accept_retry_window_ms must not be negative, got %d", c.AcceptRetryWindowMs))
	}
	if c.DialTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("dial_timeout_ms must be positive, got %d", c.DialTimeoutMs))
	}
	if c.StartTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("start_timeout_ms must be positive, got %d", c.StartTimeoutMs))
	}
	return errors.Join(errs...)
}

// CompletionTimeout is the per-request timeout (0 = none)
func (c Config) CompletionTimeout() time.Duration {
	return time.Duration(c.CompletionTimeoutMs) * time.Millisecond
}

// CacheTTL is the response cache lifetime (0 = cache disabled)
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMs) * time.Millisecond
}

// AcceptRetryWindow bounds acceptance retries (0 = single attempt)
func (c Config) AcceptRetryWindow() time.Duration {
	return time.Duration(c.AcceptRetryWindowMs) * time.Millisecond
}

// DialTimeout bounds connecting to the daemon socket
func (c Config) DialTimeout() time.Duration {
	return time.Duration(c.DialTimeoutMs) * time.Millisecond
}

// StartTimeout bounds waiting for a freshly started daemon to listen
func (c Config) StartTimeout() time.Duration {
	return time.Duration(c.StartTimeoutMs) * time.Millisecond
}

// ResolvedEditorOptions layers the defaults, the user's options and
// ForcedEditorOptions, later layers winning.
func (c Config) ResolvedEditorOptions() map[string]any {
	return MergeOptions(MergeOptions(DefaultEditorOptions, c.EditorOptions), ForcedEditorOptions)
}
