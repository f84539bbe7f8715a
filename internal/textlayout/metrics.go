/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

// Text measurement behind a single deterministic interface so that wrapping and
// fitting can run against real font faces, fixed-width test faces, or plain functions.

import (
	"unicode/utf8"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Measurer returns the rendered width of text at the given font size, in the
// same logical units as the layout box. Implementations must be deterministic
// for identical inputs.
type Measurer interface {
	Measure(text string, size int) float64
}

// MeasureFunc adapts a plain function to Measurer.
type MeasureFunc func(text string, size int) float64

func (f MeasureFunc) Measure(text string, size int) float64 { return f(text, size) }

// AverageAdvance is the em fraction used by Approximate for every rune.
const AverageAdvance = 0.56

// Approximate measures every rune as AverageAdvance em wide. It is used when no
// face is available and in tests.
var Approximate = MeasureFunc(func(text string, size int) float64 {
	return float64(utf8.RuneCountInString(text)) * float64(size) * AverageAdvance
})

// BasicMeasurer measures with x/image/basicfont Face7x13, scaled linearly from its
// 13px design size. Fully deterministic across platforms.
type BasicMeasurer struct{}

func (BasicMeasurer) Measure(text string, size int) float64 {
	w := font.MeasureString(basicfont.Face7x13, text)
	return fixedToFloat(w) * float64(size) / 13
}

// FaceMeasurer measures with an OpenType font. Faces are created lazily per size
// and kept for the lifetime of the measurer. Not safe for concurrent use: create
// one per render call from a shared *opentype.Font.
type FaceMeasurer struct {
	font  *opentype.Font
	faces map[float64]font.Face
}

// NewFaceMeasurer returns a measurer over f.
func NewFaceMeasurer(f *opentype.Font) *FaceMeasurer {
	return &FaceMeasurer{font: f, faces: make(map[float64]font.Face)}
}

// Face returns the cached face for size, creating it on first use. Hinting is
// disabled so advances scale linearly with size.
func (m *FaceMeasurer) Face(size float64) (font.Face, error) {
	if f, ok := m.faces[size]; ok {
		return f, nil
	}
	face, err := opentype.NewFace(m.font, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingNone})
	if err != nil {
		return nil, err
	}
	m.faces[size] = face
	return face, nil
}

// Measure implements Measurer. If no face can be built for size it falls back to
// Approximate rather than reporting zero width.
func (m *FaceMeasurer) Measure(text string, size int) float64 {
	return m.MeasureAt(text, float64(size))
}

// MeasureAt measures at a fractional size; the composer uses it for scaled drawing.
func (m *FaceMeasurer) MeasureAt(text string, size float64) float64 {
	face, err := m.Face(size)
	if err != nil {
		return float64(utf8.RuneCountInString(text)) * size * AverageAdvance
	}
	return fixedToFloat(font.MeasureString(face, text))
}

// Close releases all cached faces.
func (m *FaceMeasurer) Close() error {
	var firstErr error
	for size, f := range m.faces {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.faces, size)
	}
	return firstErr
}

func fixedToFloat(v fixed.Int26_6) float64 { return float64(v) / 64 }
