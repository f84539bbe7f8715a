/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"postgen/internal/assets"
	"postgen/internal/batch"
	"postgen/internal/config"
	"postgen/internal/crash"
	applog "postgen/internal/log"
	"postgen/internal/render"
	"postgen/internal/server"
	"postgen/internal/settings"
	"postgen/internal/telemetry"
)

func fail(l *slog.Logger, msg string, err error) int {
	l.Error(msg, slog.Any("err", err))
	fmt.Println("Error:", err)
	return 1
}

// postFlags are the per-invocation settings overrides shared by render and batch.
type postFlags struct {
	settingsFile string
	category     string
	width        int
	height       int
}

func (p *postFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&p.settingsFile, "settings", "", "settings file (yaml|toml|json) instead of the saved one")
	fs.StringVar(&p.category, "category", "", "post category: aussage|film|zitat")
	fs.IntVar(&p.width, "width", 0, "override width")
	fs.IntVar(&p.height, "height", 0, "override height")
}

func (p *postFlags) apply(a *app) (settings.Settings, error) {
	s := a.settings()
	if p.settingsFile != "" {
		var err error
		if s, err = settings.LoadFile(p.settingsFile); err != nil {
			return s, err
		}
	}
	if p.category != "" {
		c := settings.Category(strings.ToLower(p.category))
		if _, ok := settings.CategoryBackground[c]; !ok {
			return s, fmt.Errorf("unknown category %q", p.category)
		}
		s.Category = c
		s.BgColor = settings.CategoryBackground[c]
	}
	if p.width > 0 {
		s.Width = p.width
	}
	if p.height > 0 {
		s.Height = p.height
	}
	return settings.Sanitize(s), nil
}

func readText(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(b), "\n"), nil
	}
	if len(args) == 0 {
		return "", errors.New("render requires <text> or - for stdin")
	}
	return strings.Join(args, " "), nil
}

func (a *app) cmdRender(ctx context.Context, args []string, info *crash.Info) int {
	l := applog.WithOperation(applog.WithComponent("cli"), "render")
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	out := fs.String("o", "", "output file (default: <output_dir>/post-<timestamp>.<format>)")
	format := fs.String("format", "png", "png|pdf")
	preview := fs.Bool("preview", false, "render at preview scale (png only)")
	noHistory := fs.Bool("no-history", false, "do not record the text in the history")
	var pf postFlags
	pf.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	text, err := readText(fs.Args(), os.Stdin)
	if err != nil {
		fmt.Println(err)
		return 2
	}
	info.Text = text
	s, err := pf.apply(a)
	if err != nil {
		return fail(l, "settings failed", err)
	}
	f := strings.ToLower(*format)
	if f != "png" && f != "pdf" {
		fmt.Printf("unsupported format %q\n", *format)
		return 2
	}

	var data []byte
	switch {
	case *preview:
		img, perr := a.renderer.Preview(ctx, text, s)
		if perr != nil {
			return fail(l, "preview failed", perr)
		}
		data, err = render.Encode(img)
		f = "png"
	case f == "pdf":
		data, err = a.renderer.ExportPDF(ctx, text, s)
	default:
		data, err = a.renderer.Export(ctx, text, s)
	}
	if err != nil {
		return fail(l, "render failed", err)
	}
	path := *out
	if path == "" {
		path = filepath.Join(a.cfg.General.OutputDir, render.TimestampFilename("post", f, time.Now()))
	}
	if err := render.WriteFile(path, data); err != nil {
		return fail(l, "write failed", err)
	}
	telemetry.Event("render", map[string]any{"format": f, "preview": *preview, "category": string(s.Category)})
	fmt.Println("Wrote", path)

	if !*preview && !*noHistory && strings.TrimSpace(text) != "" {
		if st, err := a.history(ctx); err != nil {
			l.Warn("history unavailable", slog.Any("err", err))
		} else if _, err := st.Add(ctx, text, s); err != nil {
			l.Warn("history not recorded", slog.Any("err", err))
		}
	}
	return 0
}

func (a *app) cmdBatch(ctx context.Context, args []string) int {
	l := applog.WithOperation(applog.WithComponent("cli"), "batch")
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	out := fs.String("out", "", "output directory (default: output_dir from config)")
	format := fs.String("format", "png", "png|pdf")
	workers := fs.Int("workers", 0, "parallel renders (default: GOMAXPROCS)")
	var pf postFlags
	pf.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Println("batch requires exactly one <pattern>, e.g. 'texts/**/*.txt'")
		return 2
	}
	s, err := pf.apply(a)
	if err != nil {
		return fail(l, "settings failed", err)
	}
	dir := *out
	if dir == "" {
		dir = a.cfg.General.OutputDir
	}
	res, err := batch.Run(ctx, a.renderer, batch.Job{
		Pattern:  fs.Arg(0),
		OutDir:   dir,
		Format:   batch.Format(strings.ToLower(*format)),
		Settings: s,
		Workers:  *workers,
	})
	if err != nil {
		return fail(l, "batch failed", err)
	}
	for _, r := range res {
		if r.Err != nil {
			fmt.Printf("FAIL %s: %v\n", r.Source, r.Err)
			continue
		}
		fmt.Printf("ok   %s -> %s\n", r.Source, r.Output)
	}
	telemetry.Event("batch", map[string]any{"files": len(res), "failed": len(batch.Failed(res))})
	if len(batch.Failed(res)) > 0 {
		return 1
	}
	return 0
}

func (a *app) cmdHistory(ctx context.Context, args []string) int {
	l := applog.WithOperation(applog.WithComponent("cli"), "history")
	if len(args) == 0 {
		fmt.Println("history requires list|remove <id>|clear")
		return 2
	}
	st, err := a.history(ctx)
	if err != nil {
		return fail(l, "history unavailable", err)
	}
	switch args[0] {
	case "list":
		items, err := st.List(ctx)
		if err != nil {
			return fail(l, "list failed", err)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "ID\tCREATED\tCATEGORY\tTEXT")
		for _, it := range items {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", it.ID, it.CreatedAt.Local().Format(time.DateTime), it.Settings.Category, firstLine(it.Text, 48))
		}
		_ = tw.Flush()
	case "remove":
		if len(args) < 2 {
			fmt.Println("history remove requires <id>")
			return 2
		}
		if err := st.Remove(ctx, args[1]); err != nil {
			return fail(l, "remove failed", err)
		}
		fmt.Println("Removed", args[1])
	case "clear":
		if err := st.Clear(ctx); err != nil {
			return fail(l, "clear failed", err)
		}
		fmt.Println("History cleared")
	default:
		fmt.Println("unknown history command:", args[0])
		return 2
	}
	return 0
}

func firstLine(s string, n int) string {
	s, _, cut := strings.Cut(s, "\n")
	r := []rune(s)
	if len(r) > n {
		return string(r[:n-1]) + "…"
	}
	if cut {
		return s + " …"
	}
	return s
}

func (a *app) cmdSettings(args []string) int {
	l := applog.WithOperation(applog.WithComponent("cli"), "settings")
	path := a.cfg.General.SettingsFile
	if len(args) == 0 {
		fmt.Println("settings requires show|reset|import <file>")
		return 2
	}
	switch args[0] {
	case "show":
		data, err := settings.Encode(settings.FormatFor(path), a.settings())
		if err != nil {
			return fail(l, "encode failed", err)
		}
		fmt.Printf("# %s\n%s", path, data)
	case "reset":
		if err := settings.SaveFile(path, settings.Defaults()); err != nil {
			return fail(l, "reset failed", err)
		}
		fmt.Println("Settings reset:", path)
	case "import":
		if len(args) < 2 {
			fmt.Println("settings import requires <file>")
			return 2
		}
		s, err := settings.LoadFile(args[1])
		if err != nil {
			return fail(l, "import failed", err)
		}
		if err := settings.Validate(s); err != nil {
			return fail(l, "import failed", err)
		}
		if err := settings.SaveFile(path, s); err != nil {
			return fail(l, "save failed", err)
		}
		fmt.Println("Settings imported into", path)
	default:
		fmt.Println("unknown settings command:", args[0])
		return 2
	}
	return 0
}

func (a *app) cmdConfig(args []string) int {
	l := applog.WithOperation(applog.WithComponent("cli"), "config")
	if len(args) == 0 {
		fmt.Println("config requires show|dsn <dsn>")
		return 2
	}
	switch args[0] {
	case "show":
		path, _ := config.ConfigPath()
		data, err := yaml.Marshal(a.cfg)
		if err != nil {
			return fail(l, "encode failed", err)
		}
		fmt.Printf("# %s\n%s", path, data)
		if name, ok := config.EnvOverrideFor("history.dsn"); ok {
			fmt.Println("# history DSN overridden by", name)
		}
	case "dsn":
		if len(args) < 2 {
			fmt.Println("config dsn requires <dsn> (empty string removes it)")
			return 2
		}
		if err := config.SetHistoryDSN(args[1]); err != nil {
			return fail(l, "store dsn failed", err)
		}
		fmt.Println("History DSN stored in the OS keychain")
	default:
		fmt.Println("unknown config command:", args[0])
		return 2
	}
	return 0
}

func (a *app) cmdServe(ctx context.Context, args []string) int {
	l := applog.WithOperation(applog.WithComponent("cli"), "serve")
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", a.cfg.Server.Addr, "listen address")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	srv := &server.Server{
		Renderer:  a.renderer,
		Telemetry: telemetry.Default(),
		Defaults:  a.settings,
	}
	if st, err := a.history(ctx); err != nil {
		l.Warn("history disabled", slog.Any("err", err))
	} else {
		srv.History = st
	}
	if a.cfg.Server.WatchLogo {
		go func() {
			if err := assets.Watch(ctx, a.loader, a.cfg.Render.LogoPath); err != nil {
				l.Warn("logo watch stopped", slog.Any("err", err))
			}
		}()
	}
	if err := server.ListenAndServe(ctx, *addr, srv.Handler()); err != nil {
		return fail(l, "server failed", err)
	}
	return 0
}
