// Package config provides configuration management for routefs using Viper
// for flexible loading from files, environment variables, and command-line
// flags.
//
// The configuration system supports YAML files, environment variable
// overrides with the ROUTEFS_ prefix, and validation with security checks.
// It covers the server address, the content root, the extension→kind mapping
// and priority list used by the resolver, watcher settings, and session
// cookie keys.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Content    ContentConfig    `yaml:"content"`
	Extensions ExtensionsConfig `yaml:"extensions"`
	Watch      WatchConfig      `yaml:"watch"`
	Session    SessionConfig    `yaml:"session"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// ContentConfig describes the directory tree that is served as routes.
type ContentConfig struct {
	// Root is the content root; every route resolves to a file under it.
	Root string `yaml:"root"`
	// IndexPattern matches directory index files, default "index.*".
	IndexPattern string `yaml:"index_pattern"`
	// Listing enables synthetic directory listings for directories
	// without an index file.
	Listing bool `yaml:"listing"`
}

// ExtensionsConfig is the extension→kind mapping consumed by the scanner and
// the priority list used for extensionless resolution.
type ExtensionsConfig struct {
	// Template lists extensions classified as templates.
	Template []string `yaml:"template"`
	// Dynamic lists extensions classified as dynamic scripts.
	Dynamic []string `yaml:"dynamic"`
	// Priority is evaluated left to right when an extensionless path
	// misses; the first existing file wins.
	Priority []string `yaml:"priority"`
}

type WatchConfig struct {
	Enabled    bool `yaml:"enabled"`
	DebounceMs int  `yaml:"debounce_ms"`
}

// SessionConfig holds the cookie codec keys. Empty keys are replaced with
// random ones at startup, which means sessions do not survive restarts.
type SessionConfig struct {
	Cookie   string `yaml:"cookie"`
	HashKey  string `yaml:"hash_key"`
	BlockKey string `yaml:"block_key"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Server defaults
	if config.Server.Port == 0 && !viper.IsSet("server.port") {
		config.Server.Port = 8080
	}
	if config.Server.Host == "" {
		config.Server.Host = "localhost"
	}

	// Content defaults
	if config.Content.Root == "" {
		config.Content.Root = "./site"
	}
	// Underscore keys do not map onto field names through Unmarshal, so
	// pick them up explicitly (same workaround viper needs for slices).
	if viper.IsSet("content.index_pattern") {
		config.Content.IndexPattern = viper.GetString("content.index_pattern")
	}
	if config.Content.IndexPattern == "" {
		config.Content.IndexPattern = "index.*"
	}
	if viper.IsSet("content.listing") {
		config.Content.Listing = viper.GetBool("content.listing")
	}

	// Extension defaults mirror the common template/script layout; the
	// mapping is total because anything unmatched is classified Static.
	if len(config.Extensions.Template) == 0 && !viper.IsSet("extensions.template") {
		config.Extensions.Template = []string{".tmpl", ".html.tmpl"}
	}
	if len(config.Extensions.Dynamic) == 0 && !viper.IsSet("extensions.dynamic") {
		config.Extensions.Dynamic = []string{".js"}
	}
	if len(config.Extensions.Priority) == 0 && !viper.IsSet("extensions.priority") {
		config.Extensions.Priority = []string{".js", ".tmpl", ".html"}
	}

	// Handle slices set via viper (workaround for viper slice handling)
	if viper.IsSet("extensions.template") && len(config.Extensions.Template) == 0 {
		config.Extensions.Template = viper.GetStringSlice("extensions.template")
	}
	if viper.IsSet("extensions.dynamic") && len(config.Extensions.Dynamic) == 0 {
		config.Extensions.Dynamic = viper.GetStringSlice("extensions.dynamic")
	}
	if viper.IsSet("extensions.priority") && len(config.Extensions.Priority) == 0 {
		config.Extensions.Priority = viper.GetStringSlice("extensions.priority")
	}

	// Watch defaults
	if !viper.IsSet("watch.enabled") {
		config.Watch.Enabled = true
	} else {
		config.Watch.Enabled = viper.GetBool("watch.enabled")
	}
	if viper.IsSet("watch.debounce_ms") {
		config.Watch.DebounceMs = viper.GetInt("watch.debounce_ms")
	}
	if config.Watch.DebounceMs == 0 {
		config.Watch.DebounceMs = 300
	}

	// Session defaults
	if config.Session.Cookie == "" {
		config.Session.Cookie = "routefs_session"
	}
	if viper.IsSet("session.hash_key") {
		config.Session.HashKey = viper.GetString("session.hash_key")
	}
	if viper.IsSet("session.block_key") {
		config.Session.BlockKey = viper.GetString("session.block_key")
	}

	// Log defaults
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateContentConfig(&config.Content); err != nil {
		return fmt.Errorf("content config: %w", err)
	}

	if err := validateExtensionsConfig(&config.Extensions); err != nil {
		return fmt.Errorf("extensions config: %w", err)
	}

	if config.Watch.DebounceMs < 0 {
		return fmt.Errorf("watch config: debounce_ms must not be negative")
	}

	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Allow 0 for system-assigned ports in testing
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
		for _, char := range dangerousChars {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}

	return nil
}

// validateContentConfig validates the content root and index pattern
func validateContentConfig(config *ContentConfig) error {
	if err := validatePath(config.Root); err != nil {
		return fmt.Errorf("invalid content root '%s': %w", config.Root, err)
	}

	if _, err := filepath.Match(config.IndexPattern, "index.html"); err != nil {
		return fmt.Errorf("invalid index pattern '%s': %w", config.IndexPattern, err)
	}

	return nil
}

// validateExtensionsConfig checks that every configured extension starts with
// a dot and that the template and dynamic sets do not overlap, which would
// make classification ambiguous.
func validateExtensionsConfig(config *ExtensionsConfig) error {
	seen := make(map[string]string)

	check := func(kind string, exts []string) error {
		for _, ext := range exts {
			if !strings.HasPrefix(ext, ".") {
				return fmt.Errorf("%s extension %q must start with a dot", kind, ext)
			}
			if prev, ok := seen[ext]; ok && prev != kind {
				return fmt.Errorf("extension %q mapped to both %s and %s", ext, prev, kind)
			}
			seen[ext] = kind
		}
		return nil
	}

	if err := check("template", config.Template); err != nil {
		return err
	}
	if err := check("dynamic", config.Dynamic); err != nil {
		return err
	}

	for _, ext := range config.Priority {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("priority extension %q must start with a dot", ext)
		}
	}

	return nil
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
