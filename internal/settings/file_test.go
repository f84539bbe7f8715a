/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package settings

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFormatFor(t *testing.T) {
	cases := map[string]Format{
		"a.yaml": FormatYAML, "a.yml": FormatYAML, "a.TOML": FormatTOML,
		"a.json": FormatJSON, "noext": FormatYAML,
	}
	for in, want := range cases {
		if got := FormatFor(in); got != want {
			t.Fatalf("FormatFor(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestSaveLoad_AllFormats(t *testing.T) {
	dir := t.TempDir()
	s := Defaults()
	s.Category = CategoryQuote
	s.Width = 1080
	s.Height = 1350
	s.TextColor = "#abcdef"
	s.LogoScale = 0.2
	want := Sanitize(s)
	for _, name := range []string{"s.yaml", "s.toml", "s.json"} {
		path := filepath.Join(dir, name)
		if err := SaveFile(path, s); err != nil {
			t.Fatalf("%s: SaveFile: %v", name, err)
		}
		got, err := LoadFile(path)
		if err != nil {
			t.Fatalf("%s: LoadFile: %v", name, err)
		}
		if got != want {
			t.Fatalf("%s: got %+v want %+v", name, got, want)
		}
	}
}

func TestLoadFile_MissingYieldsDefaults(t *testing.T) {
	got, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got != Defaults() {
		t.Fatalf("got %+v", got)
	}
}

func TestDecode_OutdatedVersion(t *testing.T) {
	got, err := Decode(FormatYAML, []byte("version: 1\nwidth: 600\n"))
	if !errors.Is(err, ErrOutdated) {
		t.Fatalf("err = %v, want ErrOutdated", err)
	}
	if got != Defaults() {
		t.Fatalf("outdated settings should yield defaults, got %+v", got)
	}
	if _, err := Decode(FormatTOML, []byte("width = 600\n")); !errors.Is(err, ErrOutdated) {
		t.Fatalf("missing version: err = %v", err)
	}
}

func TestDecode_PartialDocumentKeepsDefaults(t *testing.T) {
	got, err := Decode(FormatYAML, []byte("version: 2\ncategory: film\nwidth: 9999\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Width != 2000 || got.Height != 1024 || got.BgColor != "#102C6A" || got.Padding != 80 {
		t.Fatalf("unexpected %+v", got)
	}
}

func TestDecode_JSONSchemaRejectsWrongTypes(t *testing.T) {
	_, err := Decode(FormatJSON, []byte(`{"version": 2, "width": "wide"}`))
	if err == nil {
		t.Fatalf("expected schema error")
	}
	got, err := Decode(FormatJSON, []byte(`{"version": 2, "width": 1024.6, "padding": 12.4}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Width != 1025 || got.Padding != 12 {
		t.Fatalf("fractional values not rounded: %+v", got)
	}
}

func TestLoadFile_GarbageYieldsDefaultsWithError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := LoadFile(path)
	if err == nil {
		t.Fatalf("expected error")
	}
	if got != Defaults() {
		t.Fatalf("got %+v", got)
	}
}

func TestMergeJSON_RoundsOverBase(t *testing.T) {
	base := Defaults()
	base.Width = 640
	got, err := MergeJSON(base, []byte(`{"height": 480.6, "category": "film", "padding": null, "extra": true}`))
	if err != nil {
		t.Fatalf("MergeJSON: %v", err)
	}
	if got.Width != 640 || got.Height != 481 || got.Category != CategoryFilm || got.Padding != base.Padding {
		t.Fatalf("merged = %+v", got)
	}
	if got.Version != CurrentVersion {
		t.Fatalf("version = %d", got.Version)
	}
	if _, err := MergeJSON(base, []byte(`{"width": "wide"}`)); err == nil {
		t.Fatal("expected type error")
	}
	if _, err := MergeJSON(base, []byte(`[1]`)); err == nil {
		t.Fatal("expected parse error")
	}
}
