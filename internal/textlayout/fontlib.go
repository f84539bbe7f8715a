/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	wfont "github.com/tdewolff/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
)

// ErrFontNotReady is returned by Wait when the configured font did not finish
// loading in time. The fallback font is returned alongside it.
var ErrFontNotReady = errors.New("font not ready")

var (
	fallbackOnce sync.Once
	fallbackFont *opentype.Font
	fallbackErr  error
)

// FallbackFont returns the bundled Go Bold face, parsed once per process.
func FallbackFont() (*opentype.Font, error) {
	fallbackOnce.Do(func() {
		fallbackFont, fallbackErr = opentype.Parse(gobold.TTF)
	})
	return fallbackFont, fallbackErr
}

// ParseFont parses TTF/OTF data. WOFF and WOFF2 web fonts are converted to SFNT first.
func ParseFont(data []byte) (*opentype.Font, error) {
	if isWebFont(data) {
		sfnt, err := wfont.ToSFNT(data)
		if err != nil {
			return nil, fmt.Errorf("convert web font: %w", err)
		}
		data = sfnt
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	return f, nil
}

// LoadFontFile reads and parses a font file.
func LoadFontFile(path string) (*opentype.Font, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font %s: %w", path, err)
	}
	f, err := ParseFont(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

func isWebFont(data []byte) bool {
	return bytes.HasPrefix(data, []byte("wOFF")) || bytes.HasPrefix(data, []byte("wOF2"))
}

// FontSource loads the configured font in the background and signals readiness
// once. Readers wait on it with a deadline and fall back to the bundled face
// when loading fails or takes too long.
type FontSource struct {
	path  string
	ready chan struct{}

	// written once before ready is closed
	font *opentype.Font
	err  error
}

// NewFontSource starts loading path. An empty path resolves immediately to the
// fallback font.
func NewFontSource(path string) *FontSource {
	s := &FontSource{path: strings.TrimSpace(path), ready: make(chan struct{})}
	if s.path == "" {
		s.font, s.err = FallbackFont()
		close(s.ready)
		return s
	}
	go func() {
		defer close(s.ready)
		s.font, s.err = LoadFontFile(s.path)
	}()
	return s
}

// NewFontSourceFrom wraps an already parsed font; it is ready immediately.
func NewFontSourceFrom(f *opentype.Font) *FontSource {
	s := &FontSource{ready: make(chan struct{}), font: f}
	if f == nil {
		s.err = errors.New("nil font")
	}
	close(s.ready)
	return s
}

// Path is the configured font file, empty for the fallback.
func (s *FontSource) Path() string { return s.path }

// Ready is closed when loading has finished, successfully or not.
func (s *FontSource) Ready() <-chan struct{} { return s.ready }

// Wait blocks until the font is ready, ctx is done, or timeout elapses
// (timeout <= 0 waits on ctx only). It always returns a usable font: the
// configured one on success, otherwise the fallback together with the reason.
func (s *FontSource) Wait(ctx context.Context, timeout time.Duration) (*opentype.Font, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	var reason error
	select {
	case <-s.ready:
		if s.err == nil && s.font != nil {
			return s.font, nil
		}
		reason = s.err
	case <-ctx.Done():
		reason = fmt.Errorf("%w: %v", ErrFontNotReady, ctx.Err())
	case <-expired:
		reason = fmt.Errorf("%w after %s", ErrFontNotReady, timeout)
	}
	fb, err := FallbackFont()
	if err != nil {
		return nil, errors.Join(reason, err)
	}
	return fb, reason
}
