/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */

package assets

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	applog "postgen/internal/log"
)

// Watch drops the memoized asset for path whenever the file is written,
// created, renamed or removed, so the next Load picks up the new content.
// The parent directory is watched because editors usually replace files
// instead of writing them in place. Watch blocks until ctx is done.
func Watch(ctx context.Context, l *Loader, path string) error {
	lg := applog.WithOperation(applog.WithComponent("assets"), "watch").With(slog.String("path", path))
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	lg.Info("watching logo")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove) {
				l.Forget(path)
				lg.Info("logo changed, cache dropped", slog.String("op", ev.Op.String()))
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			lg.Warn("watcher error", slog.Any("err", err))
		}
	}
}
