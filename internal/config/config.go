// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for nova.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.nova/config.toml
//   - ~/.nova/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/jeranaias/nova/internal/storage"
	"github.com/jeranaias/nova/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete nova configuration.
type Config struct {
	// DataDir holds the database, REPL history and any file-backed keys.
	DataDir string `toml:"data_dir" json:"data_dir"`

	Storage  StorageConfig  `toml:"storage" json:"storage"`
	Server   ServerConfig   `toml:"server" json:"server"`
	Provider ProviderConfig `toml:"provider" json:"provider"`
	Log      LogConfig      `toml:"log" json:"log"`
}

// StorageConfig selects the key-value backend.
type StorageConfig struct {
	// Backend is one of: sqlite, file, memory
	Backend string `toml:"backend" json:"backend"`
	// Path overrides the database file (sqlite) or directory (file).
	// Relative paths are resolved against data_dir.
	Path string `toml:"path" json:"path"`
}

// ServerConfig controls `nova serve`.
type ServerConfig struct {
	Addr        string   `toml:"addr" json:"addr"`
	CORSOrigins []string `toml:"cors_origins" json:"cors_origins"`
	// RateLimit is requests per second per client IP; 0 disables limiting.
	RateLimit float64 `toml:"rate_limit" json:"rate_limit"`
	RateBurst int     `toml:"rate_burst" json:"rate_burst"`
}

// ProviderConfig tunes provider dispatch.
type ProviderConfig struct {
	RequestTimeout Duration `toml:"request_timeout" json:"request_timeout"`
	SiteURL        string   `toml:"site_url" json:"site_url"`
	SiteName       string   `toml:"site_name" json:"site_name"`
	HostedModel    string   `toml:"hosted_model" json:"hosted_model"`
}

// LogConfig controls logrus output.
type LogConfig struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`
}

// Duration is a time.Duration written as a Go duration string ("2m30s").
type Duration struct {
	time.Duration
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

// =============================================================================
// DEFAULTS
// =============================================================================

const (
	DefaultAddr           = "127.0.0.1:8080"
	DefaultRateLimit      = 5.0
	DefaultRateBurst      = 20
	DefaultRequestTimeout = 120 * time.Second
	DefaultSiteURL        = "https://github.com/jeranaias/nova"
	DefaultSiteName       = "nova"
	DefaultHostedModel    = "gemini-3-flash-preview"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"

	// MaxRequestTimeout caps provider.request_timeout.
	MaxRequestTimeout = 10 * time.Minute
)

// DefaultCORSOrigins allows the usual local front-end dev servers.
var DefaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://127.0.0.1:5173",
}

// Default returns the built-in configuration.
func Default() *Config {
	dir, err := ConfigDir()
	if err != nil {
		dir = ".nova"
	}
	return &Config{
		DataDir: dir,
		Storage: StorageConfig{
			Backend: string(storage.BackendSQLite),
		},
		Server: ServerConfig{
			Addr:        DefaultAddr,
			CORSOrigins: append([]string(nil), DefaultCORSOrigins...),
			RateLimit:   DefaultRateLimit,
			RateBurst:   DefaultRateBurst,
		},
		Provider: ProviderConfig{
			RequestTimeout: Duration{DefaultRequestTimeout},
			SiteURL:        DefaultSiteURL,
			SiteName:       DefaultSiteName,
			HostedModel:    DefaultHostedModel,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the nova configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".nova"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// ensureSecurePermissions tightens a config file to 0600.
// SECURITY: Config files may sit next to chats containing API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// StorageOptions resolves the storage section against DataDir.
func (c *Config) StorageOptions() storage.Options {
	backend := storage.Backend(strings.ToLower(c.Storage.Backend))
	path := c.Storage.Path
	if path == "" {
		switch backend {
		case storage.BackendFile:
			path = "kv"
		case storage.BackendMemory:
		default:
			path = "nova.db"
		}
	}
	if path != "" && !filepath.IsAbs(path) {
		path = filepath.Join(c.DataDir, path)
	}
	return storage.Options{Backend: backend, Path: path}
}

// HistoryPath returns the REPL history file location.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.DataDir, "chat_history")
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// LoadDotEnv loads a .env file from the working directory if present, so the
// hosted fallback key can be provisioned there. Existing variables win.
func LoadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	if err := godotenv.Load(); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// Load loads configuration from the default location.
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	if path, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}
	if path, err := ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	return finish(cfg)
}

// LoadFromPath loads configuration from a specific file. Files ending in
// .json are decoded as JSON, anything else as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	var err error
	if strings.HasSuffix(path, ".json") {
		err = LoadJSON(cfg, path)
	} else {
		err = LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg.
// SECURITY: Checks and fixes file permissions on load.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		logrus.WithError(err).WithField("path", path).Warn("Could not ensure secure config permissions")
	}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		logrus.WithField("keys", strings.Join(keys, ", ")).Warn("Ignoring unknown config keys")
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
// SECURITY: Checks and fixes file permissions on load.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		logrus.WithError(err).WithField("path", path).Warn("Could not ensure secure config permissions")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// SetDefaults fills zero values left by a partial config file.
func (c *Config) SetDefaults() {
	d := Default()

	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = d.Storage.Backend
	}
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.CORSOrigins == nil {
		c.Server.CORSOrigins = d.Server.CORSOrigins
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst == 0 {
		c.Server.RateBurst = d.Server.RateBurst
	}
	if c.Provider.RequestTimeout.Duration == 0 {
		c.Provider.RequestTimeout = d.Provider.RequestTimeout
	}
	if c.Provider.SiteURL == "" {
		c.Provider.SiteURL = d.Provider.SiteURL
	}
	if c.Provider.SiteName == "" {
		c.Provider.SiteName = d.Provider.SiteName
	}
	if c.Provider.HostedModel == "" {
		c.Provider.HostedModel = d.Provider.HostedModel
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// ApplyEnvOverrides applies environment variable overrides:
//   - NOVA_DATA_DIR: overrides data_dir
//   - NOVA_STORAGE: overrides storage.backend
//   - NOVA_ADDR: overrides server.addr
//   - NOVA_LOG_LEVEL: overrides log.level
//   - NOVA_REQUEST_TIMEOUT: overrides provider.request_timeout
//   - NOVA_HOSTED_MODEL: overrides provider.hosted_model
//
// Unparseable values are logged and ignored.
func (c *Config) ApplyEnvOverrides() {
	if dir := os.Getenv("NOVA_DATA_DIR"); dir != "" {
		c.DataDir = dir
	}
	if backend := os.Getenv("NOVA_STORAGE"); backend != "" {
		c.Storage.Backend = backend
	}
	if addr := os.Getenv("NOVA_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if level := os.Getenv("NOVA_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if timeout := os.Getenv("NOVA_REQUEST_TIMEOUT"); timeout != "" {
		var d Duration
		if err := d.UnmarshalText([]byte(timeout)); err != nil {
			logrus.WithError(err).Warn("Ignoring NOVA_REQUEST_TIMEOUT")
		} else {
			c.Provider.RequestTimeout = d
		}
	}
	if model := os.Getenv("NOVA_HOSTED_MODEL"); model != "" {
		c.Provider.HostedModel = model
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg as TOML with a header comment.
// SECURITY: Written 0600 (owner read/write only).
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func SaveTOML(cfg *Config, path string) error {
	var b strings.Builder
	b.WriteString("# nova configuration file\n")
	b.WriteString("# Provider keys are set in the app (nova settings ai), not here.\n\n")
	if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every field and returns all problems as ValidateErrors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	switch storage.Backend(strings.ToLower(c.Storage.Backend)) {
	case storage.BackendSQLite, storage.BackendFile, storage.BackendMemory:
	default:
		errs = append(errs, ValidationError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("invalid backend '%s', must be one of: sqlite, file, memory", c.Storage.Backend),
		})
	}

	if _, port, err := net.SplitHostPort(c.Server.Addr); err != nil {
		errs = append(errs, ValidationError{Field: "server.addr", Message: err.Error()})
	} else if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		errs = append(errs, ValidationError{Field: "server.addr", Message: fmt.Sprintf("invalid port '%s'", port)})
	}

	for _, origin := range c.Server.CORSOrigins {
		if origin == "*" {
			continue
		}
		if u, err := url.Parse(origin); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "server.cors_origins",
				Message: fmt.Sprintf("invalid origin '%s'", origin),
			})
		}
	}

	if c.Server.RateLimit < 0 {
		errs = append(errs, ValidationError{Field: "server.rate_limit", Message: "must not be negative"})
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		errs = append(errs, ValidationError{Field: "server.rate_burst", Message: "must be at least 1 when rate limiting"})
	}

	if t := c.Provider.RequestTimeout.Duration; t <= 0 || t > MaxRequestTimeout {
		errs = append(errs, ValidationError{
			Field:   "provider.request_timeout",
			Message: fmt.Sprintf("must be between 1ns and %s, got %s", MaxRequestTimeout, t),
		})
	}

	if c.Provider.SiteURL != "" {
		if u, err := url.Parse(c.Provider.SiteURL); err != nil || u.Scheme == "" {
			errs = append(errs, ValidationError{Field: "provider.site_url", Message: "must be an absolute URL"})
		}
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, ValidationError{Field: "log.level", Message: err.Error()})
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("invalid format '%s', must be one of: text, json", c.Log.Format),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a value using its dotted TOML key (e.g. "server.addr").
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set parses value into the field named by its dotted TOML key.
func (c *Config) Set(key, value string) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")
	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct || field.Type() == reflect.TypeOf(Duration{}) {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// fieldByTag finds the struct field whose toml tag is name.
func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := strings.Split(t.Field(i).Tag.Get("toml"), ",")[0]
		if tag == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func setFieldValue(field reflect.Value, value string) error {
	if field.Type() == reflect.TypeOf(Duration{}) {
		var d Duration
		if err := d.UnmarshalText([]byte(value)); err != nil {
			return err
		}
		field.Set(reflect.ValueOf(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("expected integer, got %q", value)
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("expected number, got %q", value)
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("expected true or false, got %q", value)
		}
		field.SetBool(b)
	case reflect.Slice:
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		field.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("cannot set field of type %s", field.Type())
	}
	return nil
}

// GetAllKeys returns every settable dotted key.
func GetAllKeys() []string {
	var keys []string
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name := prefix + strings.Split(f.Tag.Get("toml"), ",")[0]
			if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(Duration{}) {
				walk(f.Type, name+".")
				continue
			}
			keys = append(keys, name)
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	return keys
}

// Clone returns a deep copy of the config.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	return &clone
}

// String renders the config as TOML.
func (c *Config) String() string {
	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(c); err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return b.String()
}
