/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package settings holds the post settings handed to the composer, their limits,
// sanitation rules and on-disk formats.
package settings

import (
	"fmt"
	"image/color"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Category selects the background color of a post.
type Category string

const (
	CategoryStatement Category = "aussage"
	CategoryFilm      Category = "film"
	CategoryQuote     Category = "zitat"
)

// Categories lists all known categories in display order.
var Categories = []Category{CategoryStatement, CategoryFilm, CategoryQuote}

// CategoryBackground maps each category to its background color.
var CategoryBackground = map[Category]string{
	CategoryStatement: "#0A1D37",
	CategoryFilm:      "#102C6A",
	CategoryQuote:     "#0D3D53",
}

const (
	// CurrentVersion is stamped on every sanitized value. Stored settings with a
	// different version are discarded in favour of Defaults.
	CurrentVersion = 2

	DefaultFontSize   = 128
	DefaultTextColor  = "#FFE0B5"
	DefaultFontFamily = "'Aptos Narrow', 'Arial Narrow', 'Roboto Condensed', Arial, sans-serif"
	FontWeight        = 700
)

// Settings configures a single rendered post. Width, Height, BaseFontSize and
// Padding are logical pixels; LogoScale is a fraction of Width.
type Settings struct {
	Category     Category `json:"category" yaml:"category" toml:"category"`
	Width        int      `json:"width" yaml:"width" toml:"width"`
	Height       int      `json:"height" yaml:"height" toml:"height"`
	BaseFontSize int      `json:"baseFontSize" yaml:"base_font_size" toml:"base_font_size"`
	BgColor      string   `json:"bgColor" yaml:"bg_color" toml:"bg_color"`
	TextColor    string   `json:"textColor" yaml:"text_color" toml:"text_color"`
	FontFamily   string   `json:"fontFamily" yaml:"font_family" toml:"font_family"`
	LogoScale    float64  `json:"logoScale" yaml:"logo_scale" toml:"logo_scale"`
	Padding      int      `json:"padding" yaml:"padding" toml:"padding"`
	Version      int      `json:"version" yaml:"version" toml:"version"`
}

// Range is an inclusive numeric limit.
type Range struct {
	Min, Max float64
}

func (r Range) clamp(v float64) float64 { return math.Min(math.Max(v, r.Min), r.Max) }

func (r Range) contains(v float64) bool { return v >= r.Min && v <= r.Max }

// Limits are the accepted ranges per numeric field.
var Limits = struct {
	Width, Height, BaseFontSize, LogoScale, Padding Range
}{
	Width:        Range{200, 2000},
	Height:       Range{100, 2000},
	BaseFontSize: Range{12, 200},
	LogoScale:    Range{0.05, 0.4},
	Padding:      Range{0, 120},
}

// Defaults returns the factory settings.
func Defaults() Settings {
	return Settings{
		Category:     CategoryStatement,
		Width:        1024,
		Height:       1024,
		BaseFontSize: DefaultFontSize,
		BgColor:      CategoryBackground[CategoryStatement],
		TextColor:    DefaultTextColor,
		FontFamily:   DefaultFontFamily,
		LogoScale:    0.14,
		Padding:      80,
		Version:      CurrentVersion,
	}
}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// NormalizeColor returns c upper-cased when it is a #RRGGBB value, fallback otherwise.
func NormalizeColor(c, fallback string) string {
	c = strings.TrimSpace(c)
	if hexColor.MatchString(c) {
		return strings.ToUpper(c)
	}
	return fallback
}

// NormalizeCategory maps anything but the exact lower-case category names to
// CategoryStatement.
func NormalizeCategory(c Category) Category {
	switch c {
	case CategoryFilm:
		return CategoryFilm
	case CategoryQuote:
		return CategoryQuote
	default:
		return CategoryStatement
	}
}

// Sanitize clamps every numeric field into its range (rounding the integer ones),
// normalizes colors and category, derives the background from the category and
// stamps the current version. The font family is fixed.
func Sanitize(s Settings) Settings {
	d := Defaults()
	cat := NormalizeCategory(s.Category)
	return Settings{
		Category:     cat,
		Width:        roundClamp(s.Width, Limits.Width),
		Height:       roundClamp(s.Height, Limits.Height),
		BaseFontSize: roundClamp(s.BaseFontSize, Limits.BaseFontSize),
		BgColor:      NormalizeColor(CategoryBackground[cat], d.BgColor),
		TextColor:    NormalizeColor(s.TextColor, d.TextColor),
		FontFamily:   DefaultFontFamily,
		LogoScale:    sanitizeScale(s.LogoScale),
		Padding:      roundClamp(s.Padding, Limits.Padding),
		Version:      CurrentVersion,
	}
}

func roundClamp(v int, r Range) int {
	return int(math.Round(r.clamp(float64(v))))
}

func sanitizeScale(v float64) float64 {
	if math.IsNaN(v) {
		return Defaults().LogoScale
	}
	return Limits.LogoScale.clamp(v)
}

// FieldError describes one rejected field.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string { return e.Field + ": " + e.Message }

// ValidationError collects all field errors of a Validate call.
type ValidationError []FieldError

func (v ValidationError) Error() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Error()
	}
	return "invalid settings: " + strings.Join(parts, "; ")
}

// Validate reports every field that Sanitize would have to change. It returns
// nil for settings that are already within limits.
func Validate(s Settings) error {
	var errs ValidationError
	check := func(field string, v float64, r Range) {
		if !r.contains(v) {
			errs = append(errs, FieldError{field, fmt.Sprintf("must be between %g and %g, got %g", r.Min, r.Max, v)})
		}
	}
	if NormalizeCategory(s.Category) != s.Category {
		errs = append(errs, FieldError{"category", fmt.Sprintf("unknown category %q", s.Category)})
	}
	check("width", float64(s.Width), Limits.Width)
	check("height", float64(s.Height), Limits.Height)
	check("baseFontSize", float64(s.BaseFontSize), Limits.BaseFontSize)
	check("logoScale", s.LogoScale, Limits.LogoScale)
	check("padding", float64(s.Padding), Limits.Padding)
	if !hexColor.MatchString(strings.TrimSpace(s.TextColor)) {
		errs = append(errs, FieldError{"textColor", fmt.Sprintf("%q is not a #RRGGBB color", s.TextColor)})
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ParseHex parses a #RRGGBB color into an opaque color.RGBA. Invalid input
// yields opaque black.
func ParseHex(hex string) color.RGBA {
	hex = strings.TrimSpace(hex)
	if !hexColor.MatchString(hex) {
		return color.RGBA{A: 0xff}
	}
	v, _ := strconv.ParseUint(hex[1:], 16, 32)
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}
