/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */

package main

import (
	"path/filepath"
	"strings"
	"testing"

	"postgen/internal/config"
	"postgen/internal/settings"
)

func TestReadText(t *testing.T) {
	got, err := readText([]string{"-"}, strings.NewReader("Zeile eins\nZeile zwei\n\n"))
	if err != nil || got != "Zeile eins\nZeile zwei" {
		t.Fatalf("stdin: %q %v", got, err)
	}
	got, err = readText([]string{"Hallo", "Welt"}, nil)
	if err != nil || got != "Hallo Welt" {
		t.Fatalf("args: %q %v", got, err)
	}
	if _, err := readText(nil, nil); err == nil {
		t.Fatal("expected error without text")
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine("kurz", 10); got != "kurz" {
		t.Fatalf("got %q", got)
	}
	if got := firstLine("eins\nzwei", 10); got != "eins …" {
		t.Fatalf("got %q", got)
	}
	if got := firstLine("abcdefghij", 5); got != "abcd…" {
		t.Fatalf("got %q", got)
	}
}

func TestPostFlags_Apply(t *testing.T) {
	cfg := config.Defaults()
	cfg.General.SettingsFile = filepath.Join(t.TempDir(), "missing.yaml")
	a := newApp(cfg, "")

	p := postFlags{category: "Zitat", width: 50, height: 300}
	s, err := p.apply(a)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if s.Category != settings.CategoryQuote || s.BgColor != settings.CategoryBackground[settings.CategoryQuote] {
		t.Fatalf("category not applied: %+v", s)
	}
	if s.Width != 200 || s.Height != 300 {
		t.Fatalf("size %dx%d", s.Width, s.Height)
	}
	if _, err := (&postFlags{category: "blog"}).apply(a); err == nil {
		t.Fatal("expected unknown category error")
	}
}
