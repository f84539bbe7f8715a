/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package settings

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	gojsonschema "github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	applog "postgen/internal/log"
)

//go:embed schema.json
var schemaJSON []byte

// Format is an on-disk encoding for settings files.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// FormatFor picks the format from a file extension; unknown extensions are YAML.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}

// ErrOutdated marks a document written by an older settings version.
var ErrOutdated = errors.New("settings version outdated")

// Decode parses data and returns sanitized settings. Fields missing from the
// document keep their default. A document without the current version yields
// Defaults together with ErrOutdated. JSON documents are checked against the
// embedded schema first.
func Decode(format Format, data []byte) (Settings, error) {
	s := Defaults()
	s.Version = 0
	switch format {
	case FormatJSON:
		if err := validateSchema(data); err != nil {
			return Defaults(), err
		}
		// decode through float fields so 1024.6 style values are rounded, not rejected
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			return Defaults(), fmt.Errorf("parse json: %w", err)
		}
		applyJSON(&s, raw)
	case FormatTOML:
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
			return Defaults(), fmt.Errorf("parse toml: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Defaults(), fmt.Errorf("parse yaml: %w", err)
		}
	}
	if s.Version != CurrentVersion {
		return Defaults(), fmt.Errorf("%w: got %d, want %d", ErrOutdated, s.Version, CurrentVersion)
	}
	return Sanitize(s), nil
}

func applyJSON(s *Settings, raw map[string]any) {
	str := func(key string, dst *string) {
		if v, ok := raw[key].(string); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := raw[key].(float64); ok && !math.IsNaN(v) {
			*dst = int(math.Round(math.Max(math.Min(v, math.MaxInt32), math.MinInt32)))
		}
	}
	var cat string
	str("category", &cat)
	if cat != "" {
		s.Category = Category(cat)
	}
	num("width", &s.Width)
	num("height", &s.Height)
	num("baseFontSize", &s.BaseFontSize)
	str("bgColor", &s.BgColor)
	str("textColor", &s.TextColor)
	str("fontFamily", &s.FontFamily)
	if v, ok := raw["logoScale"].(float64); ok {
		s.LogoScale = v
	}
	num("padding", &s.Padding)
	num("version", &s.Version)
}

// jsonKinds lists the JSON type of every settings field.
var jsonKinds = map[string]string{
	"category":     "string",
	"width":        "number",
	"height":       "number",
	"baseFontSize": "number",
	"bgColor":      "string",
	"textColor":    "string",
	"fontFamily":   "string",
	"logoScale":    "number",
	"padding":      "number",
	"version":      "number",
}

// MergeJSON applies the fields present in a JSON object onto base, rounding
// numbers the way Decode does. Unknown keys and nulls are ignored; a known field
// of the wrong type is an error. The version of base is kept and the result is
// not sanitized.
func MergeJSON(base Settings, data []byte) (Settings, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return base, fmt.Errorf("parse json: %w", err)
	}
	for k, v := range raw {
		kind, ok := jsonKinds[k]
		if !ok || v == nil {
			continue
		}
		_, isNum := v.(float64)
		_, isStr := v.(string)
		if (kind == "number" && !isNum) || (kind == "string" && !isStr) {
			return base, fmt.Errorf("%s: expected %s, got %T", k, kind, v)
		}
	}
	s := base
	applyJSON(&s, raw)
	s.Version = base.Version
	return s, nil
}

func validateSchema(data []byte) error {
	res, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaJSON), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validate: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("settings do not match schema: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// Encode writes sanitized settings in the given format.
func Encode(format Format, s Settings) ([]byte, error) {
	s = Sanitize(s)
	switch format {
	case FormatJSON:
		return json.MarshalIndent(s, "", "  ")
	case FormatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(s); err != nil {
			return nil, fmt.Errorf("encode toml: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return yaml.Marshal(s)
	}
}

// LoadFile reads settings from path. A missing file is not an error and yields
// Defaults. Any other problem also yields Defaults, together with the reason.
func LoadFile(path string) (Settings, error) {
	l := applog.WithOperation(applog.WithComponent("settings"), "load").With(slog.String("path", path))
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		l.Debug("no settings file, using defaults")
		return Defaults(), nil
	}
	if err != nil {
		return Defaults(), fmt.Errorf("read settings: %w", err)
	}
	s, err := Decode(FormatFor(path), data)
	if err != nil {
		l.Warn("settings discarded", slog.Any("err", err))
		return s, err
	}
	return s, nil
}

// SaveFile writes sanitized settings to path atomically (temp file + rename).
func SaveFile(path string, s Settings) error {
	data, err := Encode(FormatFor(path), s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}
