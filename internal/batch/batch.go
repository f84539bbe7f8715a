/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */

// Package batch renders every text file matched by a glob pattern.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	applog "postgen/internal/log"
	"postgen/internal/render"
	"postgen/internal/settings"
)

// ErrNoMatches is returned when the pattern matches no files.
var ErrNoMatches = errors.New("batch: pattern matched no files")

// Format selects the output encoding.
type Format string

const (
	FormatPNG Format = "png"
	FormatPDF Format = "pdf"
)

// Job describes one batch run.
type Job struct {
	Pattern  string // doublestar pattern, e.g. "texts/**/*.txt"
	OutDir   string
	Format   Format // png when empty
	Settings settings.Settings
	Workers  int // GOMAXPROCS when <= 0
}

// Result reports the outcome for one input file.
type Result struct {
	Source string
	Output string
	Err    error
}

// Run renders each matched file to <OutDir>/<path below the pattern's base>.<format>,
// so in/a/post.txt matched by in/**/*.txt becomes <OutDir>/a/post.png. Sources
// that would still share an output name get a -2, -3... suffix. Per-file
// failures are reported in the results; Run itself fails only on a bad
// pattern, an unusable output directory or cancellation.
func Run(ctx context.Context, r *render.Renderer, job Job) ([]Result, error) {
	l := applog.WithOperation(applog.WithComponent("batch"), "run")
	if !doublestar.ValidatePattern(filepath.ToSlash(job.Pattern)) {
		return nil, fmt.Errorf("batch: invalid pattern %q", job.Pattern)
	}
	matches, err := doublestar.FilepathGlob(job.Pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("batch: glob: %w", err)
	}
	if len(matches) == 0 {
		return nil, ErrNoMatches
	}
	sort.Strings(matches)
	if err := os.MkdirAll(job.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("batch: output dir: %w", err)
	}
	format := job.Format
	if format == "" {
		format = FormatPNG
	}
	workers := job.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	s := settings.Sanitize(job.Settings)

	outputs := outputPaths(job.OutDir, job.Pattern, matches, format)
	results := make([]Result, len(matches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, src := range matches {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := Result{Source: src, Output: outputs[i]}
			res.Err = renderOne(gctx, r, s, format, res)
			if res.Err != nil {
				l.Warn("file failed", slog.String("source", src), slog.Any("err", res.Err))
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	l.Info("batch complete", slog.Int("files", len(matches)), slog.String("out", job.OutDir))
	return results, ctx.Err()
}

// outputPaths maps every source to a distinct file below dir.
func outputPaths(dir, pattern string, sources []string, f Format) []string {
	base, _ := doublestar.SplitPattern(filepath.ToSlash(pattern))
	base = filepath.FromSlash(base)
	out := make([]string, len(sources))
	taken := make(map[string]bool, len(sources))
	for i, src := range sources {
		rel, err := filepath.Rel(base, src)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			rel = filepath.Base(src)
		}
		stem := filepath.Join(dir, strings.TrimSuffix(rel, filepath.Ext(rel)))
		name := stem + "." + string(f)
		for n := 2; taken[name]; n++ {
			name = fmt.Sprintf("%s-%d.%s", stem, n, f)
		}
		taken[name] = true
		out[i] = name
	}
	return out
}

func renderOne(ctx context.Context, r *render.Renderer, s settings.Settings, f Format, res Result) error {
	raw, err := os.ReadFile(res.Source)
	if err != nil {
		return err
	}
	text := strings.TrimRight(strings.ReplaceAll(string(raw), "\r\n", "\n"), "\n")
	var data []byte
	if f == FormatPDF {
		data, err = r.ExportPDF(ctx, text, s)
	} else {
		data, err = r.Export(ctx, text, s)
	}
	if err != nil {
		return err
	}
	return render.WriteFile(res.Output, data)
}

// Failed returns the results that carry an error.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
