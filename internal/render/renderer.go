/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package render

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"postgen/internal/assets"
	applog "postgen/internal/log"
	"postgen/internal/settings"
)

// Renderer binds a composer to a logo source and offers the preview and export
// entry points used by the CLI and the HTTP API.
type Renderer struct {
	Composer    *Composer
	Loader      *assets.Loader
	LogoSource  string
	ExportScale float64

	mu   sync.Mutex
	logo *assets.Asset // last handle returned by Loader
}

// NewRenderer returns a renderer with ExportScale defaulted to ExportScale.
func NewRenderer(c *Composer, loader *assets.Loader, logoSource string) *Renderer {
	if loader == nil {
		loader = assets.NewLoader(nil)
	}
	return &Renderer{Composer: c, Loader: loader, LogoSource: logoSource, ExportScale: ExportScale}
}

func (r *Renderer) loadLogo(ctx context.Context) (*assets.Asset, error) {
	a, err := r.Loader.Load(ctx, r.LogoSource)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLogoUnavailable, err)
	}
	r.mu.Lock()
	prev := r.logo
	r.logo = a
	r.mu.Unlock()
	// a reload hands out a new handle; the crop box of the old one is dead weight
	if prev != nil && prev != a && r.Composer != nil && r.Composer.Crops != nil {
		r.Composer.Crops.Forget(prev)
		applog.WithComponent("render").Debug("logo reloaded", slog.String("source", r.LogoSource), slog.Int("crops", r.Composer.Crops.Len()))
	}
	return a, nil
}

// Render composes text with s at scale. Settings are sanitized first.
func (r *Renderer) Render(ctx context.Context, text string, s settings.Settings, scale float64) (*image.RGBA, error) {
	logo, err := r.loadLogo(ctx)
	if err != nil {
		applog.WithComponent("render").Error("logo load failed", slog.String("source", r.LogoSource), slog.Any("err", err))
		return nil, err
	}
	return r.Composer.Compose(ctx, Options{Text: text, Settings: settings.Sanitize(s), Logo: logo}, scale)
}

// Preview renders at PreviewScale.
func (r *Renderer) Preview(ctx context.Context, text string, s settings.Settings) (*image.RGBA, error) {
	return r.Render(ctx, text, s, PreviewScale)
}

// PreviewDataURL renders a preview and returns it as a PNG data URL.
func (r *Renderer) PreviewDataURL(ctx context.Context, text string, s settings.Settings) (string, error) {
	img, err := r.Preview(ctx, text, s)
	if err != nil {
		return "", err
	}
	return DataURL(img)
}

// Export renders at the export scale and returns PNG bytes.
func (r *Renderer) Export(ctx context.Context, text string, s settings.Settings) ([]byte, error) {
	scale := r.ExportScale
	if scale == 0 {
		scale = ExportScale
	}
	img, err := r.Render(ctx, text, s, scale)
	if err != nil {
		return nil, err
	}
	return Encode(img)
}

// ExportPDF renders at the export scale and wraps the PNG into a PDF page.
func (r *Renderer) ExportPDF(ctx context.Context, text string, s settings.Settings) ([]byte, error) {
	data, err := r.Export(ctx, text, s)
	if err != nil {
		return nil, err
	}
	return ExportPDF(data, settings.Sanitize(s))
}
