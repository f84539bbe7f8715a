/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package textlayout wraps a single run of text into lines and picks the largest
// font size whose wrapped block fits a height budget. It has no notion of pixels
// or drawing; all widths come from a Measurer.
package textlayout

import (
	"strings"
)

// Defaults used by NewRequest.
const (
	DefaultMinFontSize      = 14
	DefaultMaxFontSize      = 72
	DefaultLineHeightFactor = 1.2
	DefaultSafetyMargin     = 2.0
)

// Request describes one fitting problem. MaxWidth and MaxHeight are logical units.
type Request struct {
	Text             string
	MaxWidth         float64
	MaxHeight        float64
	MinFontSize      int
	MaxFontSize      int
	LineHeightFactor float64 // <= 0 means DefaultLineHeightFactor
	SafetyMargin     float64 // subtracted from MaxHeight; negative values count as 0
	Measurer         Measurer
}

// NewRequest returns a Request with the default size range, line height and margin.
func NewRequest(text string, maxWidth, maxHeight float64, m Measurer) Request {
	return Request{
		Text:             text,
		MaxWidth:         maxWidth,
		MaxHeight:        maxHeight,
		MinFontSize:      DefaultMinFontSize,
		MaxFontSize:      DefaultMaxFontSize,
		LineHeightFactor: DefaultLineHeightFactor,
		SafetyMargin:     DefaultSafetyMargin,
		Measurer:         m,
	}
}

// Result is the chosen layout. Lines are in reading order and never empty strings.
type Result struct {
	FontSize   int
	LineHeight float64
	Lines      []string
}

// BlockHeight is the total height of all lines.
func (r Result) BlockHeight() float64 { return float64(len(r.Lines)) * r.LineHeight }

// Wrap breaks text into lines no wider than maxWidth at the given size.
//
// Whitespace is trimmed and collapsed first; blank input yields nil. Lines grow
// word by word while the measured candidate fits. A word wider than maxWidth on
// its own is split into the longest rune chunks that fit (at least one rune each),
// and consecutive chunks of the same word are joined without a space when they
// fit together. Once a word is split its original boundaries are not recoverable
// from the output.
func Wrap(text string, maxWidth float64, size int, m Measurer) []string {
	if m == nil {
		m = Approximate
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	current := ""
	push := func(piece, sep string) {
		if current == "" {
			current = piece
			return
		}
		if candidate := current + sep + piece; m.Measure(candidate, size) <= maxWidth {
			current = candidate
			return
		}
		lines = append(lines, current)
		current = piece
	}

	for _, word := range words {
		if m.Measure(word, size) <= maxWidth {
			push(word, " ")
			continue
		}
		for i, chunk := range breakLongToken(word, maxWidth, size, m) {
			sep := " "
			if i > 0 {
				sep = ""
			}
			push(chunk, sep)
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}

// breakLongToken splits token into maximal rune chunks that fit maxWidth.
// A chunk always keeps its first rune, even when that rune alone is too wide.
func breakLongToken(token string, maxWidth float64, size int, m Measurer) []string {
	var parts []string
	var current strings.Builder
	for _, r := range token {
		if current.Len() > 0 {
			next := current.String() + string(r)
			if m.Measure(next, size) > maxWidth {
				parts = append(parts, current.String())
				current.Reset()
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

// Fit binary-searches the integer font size in [MinFontSize, MaxFontSize] and
// returns the largest size whose wrapped block fits MaxHeight-SafetyMargin.
//
// When nothing fits, the layout at MinFontSize is returned even though it
// overflows; Fit never fails. The search assumes that if a size does not fit,
// no larger size fits either.
func Fit(req Request) Result {
	factor := req.LineHeightFactor
	if factor <= 0 {
		factor = DefaultLineHeightFactor
	}
	margin := max(req.SafetyMargin, 0)
	low, high := req.MinFontSize, max(req.MaxFontSize, req.MinFontSize)

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Result{FontSize: low, LineHeight: float64(low) * factor}
	}

	best := Result{
		FontSize:   low,
		LineHeight: float64(low) * factor,
		Lines:      Wrap(text, req.MaxWidth, low, req.Measurer),
	}
	budget := req.MaxHeight - margin
	for low <= high {
		size := low + (high-low)/2
		lines := Wrap(text, req.MaxWidth, size, req.Measurer)
		lineHeight := float64(size) * factor
		if len(lines) > 0 && float64(len(lines))*lineHeight <= budget {
			best = Result{FontSize: size, LineHeight: lineHeight, Lines: lines}
			low = size + 1
		} else {
			high = size - 1
		}
	}
	return best
}
