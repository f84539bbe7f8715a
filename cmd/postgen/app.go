/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"postgen/internal/assets"
	"postgen/internal/config"
	"postgen/internal/history"
	applog "postgen/internal/log"
	"postgen/internal/render"
	"postgen/internal/settings"
	"postgen/internal/textlayout"
)

// app wires the configured components for one CLI invocation.
type app struct {
	cfg      config.AppConfig
	dsn      string
	loader   *assets.Loader
	renderer *render.Renderer

	histOnce sync.Once
	hist     *history.Store
	histErr  error
}

func newApp(cfg config.AppConfig, dsn string) *app {
	fonts := textlayout.NewFontSource(cfg.Render.FontPath)
	comp := render.NewComposer(fonts)
	comp.FontWait = cfg.Render.FontWait()
	comp.ShrinkToFit = cfg.Render.ShrinkToFit
	loader := assets.NewLoader(assets.ReadFile)
	r := render.NewRenderer(comp, loader, cfg.Render.LogoPath)
	if cfg.Render.ExportScale > 0 {
		r.ExportScale = cfg.Render.ExportScale
	}
	return &app{cfg: cfg, dsn: dsn, loader: loader, renderer: r}
}

// settings returns the saved post settings, falling back to defaults.
func (a *app) settings() settings.Settings {
	s, err := settings.LoadFile(a.cfg.General.SettingsFile)
	if err != nil {
		applog.WithComponent("cli").Warn("settings not loaded, using defaults",
			slog.String("path", a.cfg.General.SettingsFile), slog.Any("err", err))
	}
	return s
}

// history opens the configured store once.
func (a *app) history(ctx context.Context) (*history.Store, error) {
	a.histOnce.Do(func() {
		target := a.cfg.History.Path
		if strings.EqualFold(a.cfg.History.Driver, history.DriverPostgres) {
			target = a.dsn
			if target == "" {
				a.histErr = errors.New("postgres history needs a DSN: set " + config.EnvHistoryDSN + " or run 'postgen config dsn <dsn>'")
				return
			}
		}
		a.hist, a.histErr = history.Open(ctx, a.cfg.History.Driver, target)
		if a.histErr != nil {
			a.histErr = fmt.Errorf("open history: %w", a.histErr)
		}
	})
	return a.hist, a.histErr
}

func (a *app) close() {
	if a.hist != nil {
		_ = a.hist.Close()
		a.hist = nil
	}
}
