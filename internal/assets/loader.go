/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"strings"
	"sync"

	// Registered decoders for logo sources.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/singleflight"

	applog "postgen/internal/log"
)

// ErrEmptySource is returned for a blank source identifier.
var ErrEmptySource = errors.New("asset source is empty")

// ReadFunc fetches the raw bytes for a source identifier.
type ReadFunc func(ctx context.Context, source string) ([]byte, error)

// ReadFile is the default ReadFunc; the source is a file path.
func ReadFile(_ context.Context, source string) ([]byte, error) {
	return os.ReadFile(source)
}

// Loader decodes image assets and memoizes them per source. Concurrent Load calls
// for the same source share a single read and decode. Failed loads are not
// memoized so a later call can retry. A load that was in flight when Forget ran
// is handed to its waiters but not memoized.
type Loader struct {
	read  ReadFunc
	group singleflight.Group

	mu   sync.RWMutex
	memo map[string]*Asset
	gen  map[string]uint64
}

// NewLoader returns a Loader reading through read (nil means ReadFile).
func NewLoader(read ReadFunc) *Loader {
	if read == nil {
		read = ReadFile
	}
	return &Loader{read: read, memo: make(map[string]*Asset), gen: make(map[string]uint64)}
}

// Load returns the decoded asset for source. ctx bounds only the wait of this
// caller; the shared load itself keeps running for the other waiters.
func (l *Loader) Load(ctx context.Context, source string) (*Asset, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, ErrEmptySource
	}
	if a := l.cached(source); a != nil {
		return a, nil
	}
	ch := l.group.DoChan(source, func() (any, error) {
		l.mu.RLock()
		a, gen := l.memo[source], l.gen[source]
		l.mu.RUnlock()
		if a != nil {
			return a, nil
		}
		a, err := l.decode(source)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		if l.gen[source] == gen {
			l.memo[source] = a
		}
		l.mu.Unlock()
		return a, nil
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load %s: %w", source, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Asset), nil
	}
}

// Forget drops the memoized asset for source; the next Load decodes again.
func (l *Loader) Forget(source string) {
	source = strings.TrimSpace(source)
	l.mu.Lock()
	delete(l.memo, source)
	l.gen[source]++
	l.mu.Unlock()
	l.group.Forget(source)
}

func (l *Loader) cached(source string) *Asset {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.memo[source]
}

func (l *Loader) decode(source string) (*Asset, error) {
	lg := applog.WithOperation(applog.WithComponent("assets"), "load").With(slog.String("source", source))
	data, err := l.read(context.Background(), source)
	if err != nil {
		lg.Error("read failed", slog.Any("err", err))
		return nil, fmt.Errorf("read %s: %w", source, err)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		lg.Error("decode failed", slog.Any("err", err))
		return nil, fmt.Errorf("decode %s: %w", source, err)
	}
	a := NewAsset(source, img)
	lg.Debug("asset loaded", slog.String("format", format), slog.Int("w", a.Width), slog.Int("h", a.Height))
	return a, nil
}
