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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zalando/go-keyring"
)

type memSecrets map[string]string

func (m memSecrets) Get(service, key string) (string, error) {
	v, ok := m[service+"/"+key]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return v, nil
}
func (m memSecrets) Set(service, key, value string) error { m[service+"/"+key] = value; return nil }
func (m memSecrets) Delete(service, key string) error {
	if _, ok := m[service+"/"+key]; !ok {
		return keyring.ErrNotFound
	}
	delete(m, service+"/"+key)
	return nil
}

// isolate points the config file at a temp dir and stubs the keyring.
func isolate(t *testing.T) (string, memSecrets) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	t.Setenv(EnvConfigFile, path)
	mem := memSecrets{}
	prev := SetSecretStore(mem)
	t.Cleanup(func() { SetSecretStore(prev) })
	return path, mem
}

func TestLoad_DefaultsResolvedAgainstConfigDir(t *testing.T) {
	path, _ := isolate(t)
	cfg, dsn, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	dir := filepath.Dir(path)
	if cfg.Render.LogoPath != filepath.Join(dir, "logo.png") {
		t.Fatalf("LogoPath = %q", cfg.Render.LogoPath)
	}
	if cfg.History.Path != filepath.Join(dir, "history.sqlite") {
		t.Fatalf("History.Path = %q", cfg.History.Path)
	}
	if cfg.Render.FontPath != "" || dsn != "" {
		t.Fatalf("unexpected font path %q / dsn %q", cfg.Render.FontPath, dsn)
	}
}

func TestLoad_FileMergedThenEnv(t *testing.T) {
	path, _ := isolate(t)
	data := []byte("render:\n  logo_path: /srv/logo.png\n  shrink_to_fit: true\n  export_scale: 3\nserver:\n  addr: ':9000'\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvAddr, "127.0.0.1:7000")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Render.LogoPath != "/srv/logo.png" || !cfg.Render.ShrinkToFit || cfg.Render.ExportScale != 3 {
		t.Fatalf("file values not merged: %+v", cfg.Render)
	}
	if cfg.Server.Addr != "127.0.0.1:7000" {
		t.Fatalf("env override lost: %q", cfg.Server.Addr)
	}
	if name, ok := EnvOverrideFor("server.addr"); !ok || name != EnvAddr {
		t.Fatalf("EnvOverrideFor = %q %v", name, ok)
	}
	if _, ok := EnvOverrideFor("render.logo_path"); ok {
		t.Fatalf("logo_path is not overridden")
	}
}

func TestEnvOverridesTelemetry(t *testing.T) {
	isolate(t)
	t.Setenv(EnvTelemetryOptIn, "true")
	t.Setenv(EnvEventsURL, "https://telemetry.test/events")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.Telemetry.OptIn || cfg.Telemetry.EventsURL != "https://telemetry.test/events" {
		t.Fatalf("telemetry overrides not applied: %+v", cfg.Telemetry)
	}
}

func TestMergeIncludesLogging(t *testing.T) {
	dst := Defaults()
	src := Defaults()
	src.Logging.Level = "DEBUG"
	src.Logging.Format = "json"
	src.Logging.Source = true
	src.Logging.File = "C:/tmp/postgen.log"
	mergeInto(&dst, &src)
	if dst.Logging.Level != "debug" || dst.Logging.Format != "json" || !dst.Logging.Source || dst.Logging.File != "C:/tmp/postgen.log" {
		t.Fatalf("logging fields not merged correctly: %#v", dst.Logging)
	}
	opts := dst.Logging.LogOptions()
	if opts.Level != "debug" || !opts.AddSource {
		t.Fatalf("LogOptions = %+v", opts)
	}
}

func TestEnvOverridesLogging(t *testing.T) {
	isolate(t)
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogFormat, "json")
	t.Setenv(EnvLogSource, "1")
	t.Setenv(EnvLogFile, "X:/postgen.log")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Logging.Level != "error" || cfg.Logging.Format != "json" || !cfg.Logging.Source || cfg.Logging.File != "X:/postgen.log" {
		t.Fatalf("env overrides not applied to logging: %#v", cfg.Logging)
	}
}

func TestHistoryDSN_KeyringAndEnv(t *testing.T) {
	isolate(t)
	if err := Save(Defaults(), "postgres://u:p@db/postgen"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	_, dsn, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if dsn != "postgres://u:p@db/postgen" {
		t.Fatalf("dsn from keyring = %q", dsn)
	}
	t.Setenv(EnvHistoryDSN, "postgres://env/postgen")
	if _, dsn, _ = Load(); dsn != "postgres://env/postgen" {
		t.Fatalf("env dsn = %q", dsn)
	}
	if err := SetHistoryDSN(""); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := SetHistoryDSN(""); err != nil {
		t.Fatalf("delete twice: %v", err)
	}
	if v, err := GetHistoryDSN(); err != nil || v != "" {
		t.Fatalf("after delete: %q %v", v, err)
	}
}

func TestSave_DoesNotWriteDSN(t *testing.T) {
	path, _ := isolate(t)
	if err := Save(Defaults(), "postgres://secret"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.Contains(string(data), "secret") {
		t.Fatalf("dsn leaked into config file")
	}
}

func TestDurations(t *testing.T) {
	if got := (RenderConfig{}).FontWait(); got != 3*time.Second {
		t.Fatalf("FontWait default = %v", got)
	}
	if got := (TelemetryConfig{TimeoutMs: 250}).Timeout(); got != 250*time.Millisecond {
		t.Fatalf("Timeout = %v", got)
	}
}
