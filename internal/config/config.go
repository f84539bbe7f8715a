/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	applog "postgen/internal/log"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.
// Unknown fields are ignored on unmarshal.

type GeneralConfig struct {
	SettingsFile string `yaml:"settings_file"` // post settings (yaml|toml|json)
	OutputDir    string `yaml:"output_dir"`
}

type RenderConfig struct {
	FontPath    string  `yaml:"font_path"` // empty: bundled Go Bold
	FontWaitMs  int     `yaml:"font_wait_ms"`
	LogoPath    string  `yaml:"logo_path"`
	ExportScale float64 `yaml:"export_scale"`
	ShrinkToFit bool    `yaml:"shrink_to_fit"`
}

type HistoryConfig struct {
	Driver string `yaml:"driver"` // "sqlite" | "postgres"
	Path   string `yaml:"path"`
	// DSN is not stored on disk; it lives in the OS keychain.
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	WatchLogo bool   `yaml:"watch_logo"`
}

type TelemetryConfig struct {
	OptIn     bool   `yaml:"opt_in"`
	EventsURL string `yaml:"events_url"`
	CrashURL  string `yaml:"crash_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int             `yaml:"config_version"`
	General       GeneralConfig   `yaml:"general"`
	Render        RenderConfig    `yaml:"render"`
	History       HistoryConfig   `yaml:"history"`
	Server        ServerConfig    `yaml:"server"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
	Logging       LoggingConfig   `yaml:"logging"`
}

// Defaults returns the application defaults. Paths are relative to the user
// config directory until resolved by Load.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{SettingsFile: "settings.yaml", OutputDir: "exports"},
		Render:        RenderConfig{FontPath: "", FontWaitMs: 3000, LogoPath: "logo.png", ExportScale: 2},
		History:       HistoryConfig{Driver: "sqlite", Path: "history.sqlite"},
		Server:        ServerConfig{Addr: ":8080", WatchLogo: true},
		Telemetry:     TelemetryConfig{OptIn: false, TimeoutMs: 5000},
		Logging:       LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvConfigFile     = "POSTGEN_CONFIG"
	EnvSettingsFile   = "POSTGEN_SETTINGS_FILE"
	EnvOutputDir      = "POSTGEN_OUTPUT_DIR"
	EnvFontPath       = "POSTGEN_FONT_PATH"
	EnvFontWaitMs     = "POSTGEN_FONT_WAIT_MS"
	EnvLogoPath       = "POSTGEN_LOGO_PATH"
	EnvExportScale    = "POSTGEN_EXPORT_SCALE"
	EnvShrinkToFit    = "POSTGEN_SHRINK_TO_FIT"
	EnvHistoryDriver  = "POSTGEN_HISTORY_DRIVER"
	EnvHistoryPath    = "POSTGEN_HISTORY_PATH"
	EnvHistoryDSN     = "POSTGEN_HISTORY_DSN"
	EnvAddr           = "POSTGEN_ADDR"
	EnvWatchLogo      = "POSTGEN_WATCH_LOGO"
	EnvTelemetryOptIn = "POSTGEN_TELEMETRY_OPT_IN"
	EnvEventsURL      = "POSTGEN_TELEMETRY_EVENTS_URL"
	EnvCrashURL       = "POSTGEN_TELEMETRY_CRASH_URL"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "POSTGEN_LOG_LEVEL"
	EnvLogFormat = "POSTGEN_LOG_FORMAT"
	EnvLogSource = "POSTGEN_LOG_SOURCE"
	EnvLogFile   = "POSTGEN_LOG_FILE"
)

// ConfigDir returns the per-user config directory.
func ConfigDir() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "postgen")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "postgen")
	default: // linux and others
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = filepath.Join(xdg, "postgen")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "postgen")
		}
	}
	if base == "" || base == "postgen" {
		return "", errors.New("cannot resolve config directory")
	}
	return base, nil
}

// ConfigPath returns the per-user config file path, or POSTGEN_CONFIG when set.
func ConfigPath() (string, error) {
	if v := strings.TrimSpace(os.Getenv(EnvConfigFile)); v != "" {
		return v, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, merges
// environment overrides and resolves relative paths against the config file's
// directory. The history DSN is returned separately: it comes from
// POSTGEN_HISTORY_DSN or the OS keyring and is never part of the struct.
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err == nil {
			mergeInto(&cfg, &fileCfg)
		} else {
			applog.WithComponent("config").Warn("config file ignored", "path", path, "err", err)
		}
	}
	applyEnvOverrides(&cfg)
	cfg.resolvePaths(filepath.Dir(path))
	dsn := strings.TrimSpace(os.Getenv(EnvHistoryDSN))
	if dsn == "" {
		dsn, _ = GetHistoryDSN()
	}
	return cfg, dsn, nil
}

// Save writes the user config YAML and persists the DSN into the OS keyring (if non-empty).
func Save(cfg AppConfig, dsn string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if dsn != "" {
		if err := SetHistoryDSN(dsn); err != nil {
			return err
		}
	}
	return nil
}

func (c *AppConfig) resolvePaths(base string) {
	abs := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.General.SettingsFile = abs(c.General.SettingsFile)
	c.Render.FontPath = abs(c.Render.FontPath)
	c.Render.LogoPath = abs(c.Render.LogoPath)
	if c.History.Driver != "postgres" {
		c.History.Path = abs(c.History.Path)
	}
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	str := func(d *string, s string) {
		if v := strings.TrimSpace(s); v != "" {
			*d = v
		}
	}
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	str(&dst.General.SettingsFile, src.General.SettingsFile)
	str(&dst.General.OutputDir, src.General.OutputDir)

	str(&dst.Render.FontPath, src.Render.FontPath)
	if src.Render.FontWaitMs != 0 {
		dst.Render.FontWaitMs = src.Render.FontWaitMs
	}
	str(&dst.Render.LogoPath, src.Render.LogoPath)
	if src.Render.ExportScale > 0 {
		dst.Render.ExportScale = src.Render.ExportScale
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.Render.ShrinkToFit = src.Render.ShrinkToFit

	if v := strings.ToLower(strings.TrimSpace(src.History.Driver)); v != "" {
		dst.History.Driver = v
	}
	str(&dst.History.Path, src.History.Path)

	str(&dst.Server.Addr, src.Server.Addr)
	dst.Server.WatchLogo = src.Server.WatchLogo

	dst.Telemetry.OptIn = src.Telemetry.OptIn
	str(&dst.Telemetry.EventsURL, src.Telemetry.EventsURL)
	str(&dst.Telemetry.CrashURL, src.Telemetry.CrashURL)
	if src.Telemetry.TimeoutMs != 0 {
		dst.Telemetry.TimeoutMs = src.Telemetry.TimeoutMs
	}

	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	str(&dst.Logging.File, src.Logging.File)
}

func envBool(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = envBool(v)
		}
	}
	str(EnvSettingsFile, &cfg.General.SettingsFile)
	str(EnvOutputDir, &cfg.General.OutputDir)
	str(EnvFontPath, &cfg.Render.FontPath)
	if v := strings.TrimSpace(os.Getenv(EnvFontWaitMs)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Render.FontWaitMs = n
		}
	}
	str(EnvLogoPath, &cfg.Render.LogoPath)
	if v := strings.TrimSpace(os.Getenv(EnvExportScale)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Render.ExportScale = f
		}
	}
	boolean(EnvShrinkToFit, &cfg.Render.ShrinkToFit)
	if v := strings.TrimSpace(os.Getenv(EnvHistoryDriver)); v != "" {
		cfg.History.Driver = strings.ToLower(v)
	}
	str(EnvHistoryPath, &cfg.History.Path)
	str(EnvAddr, &cfg.Server.Addr)
	boolean(EnvWatchLogo, &cfg.Server.WatchLogo)
	boolean(EnvTelemetryOptIn, &cfg.Telemetry.OptIn)
	str(EnvEventsURL, &cfg.Telemetry.EventsURL)
	str(EnvCrashURL, &cfg.Telemetry.CrashURL)
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	boolean(EnvLogSource, &cfg.Logging.Source)
	str(EnvLogFile, &cfg.Logging.File)
}

var envKeys = map[string]string{
	"general.settings_file": EnvSettingsFile,
	"general.output_dir":    EnvOutputDir,
	"render.font_path":      EnvFontPath,
	"render.font_wait_ms":   EnvFontWaitMs,
	"render.logo_path":      EnvLogoPath,
	"render.export_scale":   EnvExportScale,
	"render.shrink_to_fit":  EnvShrinkToFit,
	"history.driver":        EnvHistoryDriver,
	"history.path":          EnvHistoryPath,
	"history.dsn":           EnvHistoryDSN,
	"server.addr":           EnvAddr,
	"server.watch_logo":     EnvWatchLogo,
	"telemetry.opt_in":      EnvTelemetryOptIn,
	"telemetry.events_url":  EnvEventsURL,
	"telemetry.crash_url":   EnvCrashURL,
	"logging.level":         EnvLogLevel,
	"logging.format":        EnvLogFormat,
	"logging.source":        EnvLogSource,
	"logging.file":          EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	name, ok := envKeys[key]
	if !ok || os.Getenv(name) == "" {
		return "", false
	}
	return name, true
}

// FontWait returns the font readiness timeout.
func (r RenderConfig) FontWait() time.Duration {
	if r.FontWaitMs <= 0 {
		return time.Duration(Defaults().Render.FontWaitMs) * time.Millisecond
	}
	return time.Duration(r.FontWaitMs) * time.Millisecond
}

// Timeout returns the telemetry HTTP timeout.
func (t TelemetryConfig) Timeout() time.Duration {
	if t.TimeoutMs <= 0 {
		return time.Duration(Defaults().Telemetry.TimeoutMs) * time.Millisecond
	}
	return time.Duration(t.TimeoutMs) * time.Millisecond
}

// LogOptions converts the logging section for applog.Init.
func (l LoggingConfig) LogOptions() applog.Options {
	return applog.Options{Level: l.Level, Format: l.Format, AddSource: l.Source, File: l.File}
}
