/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package render composes a post bitmap from text, settings and logo, and encodes
// it to PNG, PDF or data URLs.
//
// Layout happens once in logical units (the settings' pixel size). The bitmap is
// then drawn at an independent scale, so a preview at scale 1 and an export at
// scale 2 share line breaks, font size and relative positions.
package render

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"log/slog"
	"math"
	"time"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"postgen/internal/assets"
	applog "postgen/internal/log"
	"postgen/internal/settings"
	"postgen/internal/textlayout"
)

const (
	// CMToPx converts centimetres to CSS pixels at 96 DPI.
	CMToPx = 37.7952755906
	// LogoOffsetFromCenterCM is the logo's vertical offset from the canvas center
	// at LogoReferenceHeight; negative values move the logo down.
	LogoOffsetFromCenterCM = -6.4
	LogoReferenceHeight    = 640.0

	PreviewScale = 1.0
	ExportScale  = 2.0

	// DefaultFontWait bounds how long a render waits for the configured font.
	DefaultFontWait = 3 * time.Second
)

// Options are the inputs of a single composition. Logo is shared read-only.
type Options struct {
	Text     string
	Settings settings.Settings
	Logo     *assets.Asset
}

// Line is one laid-out text line in logical coordinates.
type Line struct {
	Text     string
	X        float64
	Baseline float64
	Width    float64
}

// Plan is the scale-independent layout of a post.
type Plan struct {
	Width, Height int
	Text          textlayout.Result
	Lines         []Line
	// Logo is the destination rectangle in logical pixels, already rounded.
	Logo image.Rectangle
	Crop assets.CropBounds
}

// Composer draws posts. It is safe for concurrent use; per-call measurement
// state is created inside each call.
type Composer struct {
	Fonts *textlayout.FontSource
	Crops *assets.CropDetector
	// FontWait bounds the wait on Fonts; zero means DefaultFontWait.
	FontWait time.Duration
	// ShrinkToFit lets the fitter go below BaseFontSize down to the minimum
	// allowed base size. Off means the text is always set at BaseFontSize.
	ShrinkToFit bool
}

// NewComposer returns a composer over fonts (nil means the bundled face).
func NewComposer(fonts *textlayout.FontSource) *Composer {
	if fonts == nil {
		fonts = textlayout.NewFontSource("")
	}
	return &Composer{Fonts: fonts, Crops: assets.NewCropDetector(), FontWait: DefaultFontWait}
}

// faceMeasurer is what layout and drawing need from a font.
type faceMeasurer interface {
	textlayout.Measurer
	Face(size float64) (font.Face, error)
	Close() error
}

// basicFaces serves the fixed 7x13 face when no OpenType font is usable.
type basicFaces struct{ textlayout.BasicMeasurer }

func (basicFaces) Face(float64) (font.Face, error) { return basicfont.Face7x13, nil }
func (basicFaces) Close() error                    { return nil }

func (c *Composer) faces(ctx context.Context, l *slog.Logger) faceMeasurer {
	wait := c.FontWait
	if wait <= 0 {
		wait = DefaultFontWait
	}
	var f *opentype.Font
	var err error
	if c.Fonts != nil {
		f, err = c.Fonts.Wait(ctx, wait)
	} else {
		f, err = textlayout.FallbackFont()
	}
	if err != nil {
		l.Warn("font not available, using fallback", slog.Any("err", err))
	}
	if f == nil {
		return basicFaces{}
	}
	return textlayout.NewFaceMeasurer(f)
}

// Layout computes the logical layout for opts without drawing.
func (c *Composer) Layout(ctx context.Context, opts Options) (Plan, error) {
	if opts.Logo == nil {
		return Plan{}, ErrLogoUnavailable
	}
	l := applog.WithOperation(applog.WithComponent("render"), "layout")
	fm := c.faces(ctx, l)
	defer fm.Close()
	return c.plan(opts, fm), nil
}

func (c *Composer) plan(opts Options, m textlayout.Measurer) Plan {
	s := opts.Settings
	W, H := float64(s.Width), float64(s.Height)
	p := Plan{Width: s.Width, Height: s.Height}

	crops := c.Crops
	if crops == nil {
		crops = assets.NewCropDetector()
	}
	p.Crop = crops.Bounds(opts.Logo)
	aspect := float64(p.Crop.SW) / math.Max(float64(p.Crop.SH), 1)
	logoW := W * s.LogoScale
	logoH := logoW / aspect
	logoX := (W - logoW) / 2
	targetY := H/2 - LogoOffsetFromCenterCM*CMToPx*(H/LogoReferenceHeight)
	logoY := math.Max(0, math.Min(H-logoH, targetY))
	p.Logo = image.Rect(0, 0, int(math.Round(logoW)), int(math.Round(logoH))).
		Add(image.Pt(int(math.Round(logoX)), int(math.Round(logoY))))

	pad := float64(s.Padding)
	areaW := math.Max(W-2*pad, 0)
	areaH := math.Max(H-2*pad, 0)
	maxSize := max(s.BaseFontSize, 1)
	minSize := maxSize
	if c.ShrinkToFit {
		minSize = min(int(settings.Limits.BaseFontSize.Min), maxSize)
	}
	req := textlayout.NewRequest(opts.Text, areaW, areaH, m)
	req.MinFontSize, req.MaxFontSize = minSize, maxSize
	p.Text = textlayout.Fit(req)

	startY := pad + (areaH-p.Text.BlockHeight())/2 + float64(p.Text.FontSize)
	for i, line := range p.Text.Lines {
		w := m.Measure(line, p.Text.FontSize)
		p.Lines = append(p.Lines, Line{
			Text:     line,
			X:        (W - w) / 2,
			Baseline: startY + float64(i)*p.Text.LineHeight,
			Width:    w,
		})
	}
	return p
}

// SurfaceSize returns the device pixel size for s at scale.
func SurfaceSize(s settings.Settings, scale float64) (int, int, error) {
	if math.IsNaN(scale) || math.IsInf(scale, 0) || scale <= 0 {
		return 0, 0, fmt.Errorf("%w: scale %v", ErrSurfaceUnavailable, scale)
	}
	w := int(math.Round(float64(s.Width) * scale))
	h := int(math.Round(float64(s.Height) * scale))
	if w < 1 || h < 1 || w > MaxSurfaceSide || h > MaxSurfaceSide {
		return 0, 0, fmt.Errorf("%w: %dx%d", ErrSurfaceUnavailable, w, h)
	}
	return w, h, nil
}

// Compose draws the post at scale: background, centered text block, then the
// cropped logo scaled with nearest-neighbor sampling.
func (c *Composer) Compose(ctx context.Context, opts Options, scale float64) (*image.RGBA, error) {
	l := applog.WithOperation(applog.WithComponent("render"), "compose").With(slog.Float64("scale", scale))
	pw, ph, err := SurfaceSize(opts.Settings, scale)
	if err != nil {
		l.Error("surface", slog.Any("err", err))
		return nil, err
	}
	if opts.Logo == nil || opts.Logo.Image == nil {
		return nil, ErrLogoUnavailable
	}
	start := time.Now()
	fm := c.faces(ctx, l)
	defer fm.Close()
	p := c.plan(opts, fm)

	img := image.NewRGBA(image.Rect(0, 0, pw, ph))
	bg := settings.ParseHex(opts.Settings.BgColor)
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	face, err := fm.Face(float64(p.Text.FontSize) * scale)
	if err != nil {
		l.Warn("scaled face unavailable, using basic face", slog.Any("err", err))
		face = basicfont.Face7x13
	}
	d := &font.Drawer{Dst: img, Src: image.NewUniform(settings.ParseHex(opts.Settings.TextColor)), Face: face}
	for _, line := range p.Lines {
		d.Dot = fixed.Point26_6{X: toFixed(line.X * scale), Y: toFixed(line.Baseline * scale)}
		d.DrawString(line.Text)
	}

	dst := scaleRect(p.Logo, scale)
	if !dst.Empty() {
		src := p.Crop.Rect(opts.Logo.Image.Bounds().Min)
		xdraw.NearestNeighbor.Scale(img, dst, opts.Logo.Image, src, xdraw.Over, nil)
	}

	l.Debug("composed",
		slog.Int("w", pw), slog.Int("h", ph),
		slog.Int("font_size", p.Text.FontSize), slog.Int("lines", len(p.Lines)),
		slog.Duration("took", time.Since(start)))
	return img, nil
}

func scaleRect(r image.Rectangle, scale float64) image.Rectangle {
	sc := func(v int) int { return int(math.Round(float64(v) * scale)) }
	return image.Rect(sc(r.Min.X), sc(r.Min.Y), sc(r.Max.X), sc(r.Max.Y))
}

func toFixed(v float64) fixed.Int26_6 { return fixed.Int26_6(math.Round(v * 64)) }
