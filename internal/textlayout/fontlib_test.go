/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/image/font/gofont/gobold"
)

func TestFontSource_EmptyPathUsesFallback(t *testing.T) {
	src := NewFontSource("")
	select {
	case <-src.Ready():
	default:
		t.Fatalf("empty path should be ready immediately")
	}
	f, err := src.Wait(context.Background(), time.Second)
	if err != nil || f == nil {
		t.Fatalf("Wait() = %v, %v", f, err)
	}
}

func TestFontSource_LoadsFileFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bold.ttf")
	if err := os.WriteFile(path, gobold.TTF, 0o644); err != nil {
		t.Fatalf("write font: %v", err)
	}
	src := NewFontSource(path)
	f, err := src.Wait(context.Background(), 5*time.Second)
	if err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if f == nil {
		t.Fatalf("expected parsed font")
	}
	if src.Path() != path {
		t.Fatalf("Path() = %q", src.Path())
	}
}

func TestFontSource_MissingFileFallsBack(t *testing.T) {
	src := NewFontSource(filepath.Join(t.TempDir(), "missing.ttf"))
	f, err := src.Wait(context.Background(), 5*time.Second)
	if err == nil {
		t.Fatalf("expected load error for missing font")
	}
	if errors.Is(err, ErrFontNotReady) {
		t.Fatalf("missing file should report the load error, got %v", err)
	}
	fb, _ := FallbackFont()
	if f != fb {
		t.Fatalf("expected fallback font")
	}
}

func TestFontSource_TimeoutFallsBack(t *testing.T) {
	src := &FontSource{path: "slow.ttf", ready: make(chan struct{})}
	f, err := src.Wait(context.Background(), 10*time.Millisecond)
	if !errors.Is(err, ErrFontNotReady) {
		t.Fatalf("Wait() error = %v, want ErrFontNotReady", err)
	}
	if f == nil {
		t.Fatalf("fallback font missing on timeout")
	}
}

func TestFontSource_CanceledContextFallsBack(t *testing.T) {
	src := &FontSource{path: "slow.ttf", ready: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Wait(ctx, 0); !errors.Is(err, ErrFontNotReady) {
		t.Fatalf("Wait() error = %v, want ErrFontNotReady", err)
	}
}

func TestParseFont_RejectsGarbage(t *testing.T) {
	if _, err := ParseFont([]byte("not a font at all")); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := ParseFont([]byte("wOF2 broken web font")); err == nil {
		t.Fatalf("expected web font conversion error")
	}
}

func TestFaceMeasurer_Widths(t *testing.T) {
	f, err := FallbackFont()
	if err != nil {
		t.Fatalf("fallback font: %v", err)
	}
	fm := NewFaceMeasurer(f)
	t.Cleanup(func() { _ = fm.Close() })

	if w := fm.Measure("", 40); w != 0 {
		t.Fatalf("empty width = %v", w)
	}
	short := fm.Measure("Ball", 40)
	long := fm.Measure("Ball ist rund", 40)
	if short <= 0 || long <= short {
		t.Fatalf("unexpected widths short=%v long=%v", short, long)
	}
	if again := fm.Measure("Ball", 40); again != short {
		t.Fatalf("measure not deterministic: %v vs %v", again, short)
	}
	if bigger := fm.Measure("Ball", 80); bigger <= short {
		t.Fatalf("larger size should be wider: %v vs %v", bigger, short)
	}
}

func TestBasicMeasurer_FixedAdvance(t *testing.T) {
	if got := (BasicMeasurer{}).Measure("ABC", 13); got != 21 {
		t.Fatalf("Measure(ABC, 13) = %v, want 21", got)
	}
	if got := (BasicMeasurer{}).Measure("ABC", 26); got != 42 {
		t.Fatalf("Measure(ABC, 26) = %v, want 42", got)
	}
}
