/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package assets

import (
	"image"
	"sync"
)

// CropBounds is the visible sub-rectangle of an asset, relative to the image's
// top-left corner. SW and SH are always positive.
type CropBounds struct {
	SX, SY, SW, SH int
}

// Rect returns the bounds as an image.Rectangle anchored at origin.
func (c CropBounds) Rect(origin image.Point) image.Rectangle {
	return image.Rect(c.SX, c.SY, c.SX+c.SW, c.SY+c.SH).Add(origin)
}

// CropDetector computes and caches the minimal box around all pixels with
// non-zero alpha. Safe for concurrent use. Two goroutines may compute the same
// entry at once; the result is identical so the later write is harmless.
type CropDetector struct {
	mu    sync.RWMutex
	cache map[*Asset]CropBounds
}

func NewCropDetector() *CropDetector {
	return &CropDetector{cache: make(map[*Asset]CropBounds)}
}

// Bounds returns the cached crop box for a, computing it on first use.
func (d *CropDetector) Bounds(a *Asset) CropBounds {
	if a == nil {
		return CropBounds{SW: 1, SH: 1}
	}
	d.mu.RLock()
	b, ok := d.cache[a]
	d.mu.RUnlock()
	if ok {
		return b
	}
	b = DetectBounds(a.Image, a.Width, a.Height)
	d.mu.Lock()
	d.cache[a] = b
	d.mu.Unlock()
	return b
}

// Forget drops the cached box for a. Callers use it once a reloaded asset
// replaces a, so the old image can be collected.
func (d *CropDetector) Forget(a *Asset) {
	if a == nil {
		return
	}
	d.mu.Lock()
	delete(d.cache, a)
	d.mu.Unlock()
}

// Len reports the number of cached assets.
func (d *CropDetector) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.cache)
}

// DetectBounds scans img for pixels with alpha > 0. When none exist, or img is
// nil, the full w x h extent is returned.
func DetectBounds(img image.Image, w, h int) CropBounds {
	full := CropBounds{SW: max(w, 1), SH: max(h, 1)}
	if img == nil {
		return full
	}
	r := img.Bounds()
	if r.Empty() {
		return full
	}
	minX, minY, maxX, maxY := r.Max.X, r.Max.Y, r.Min.X-1, r.Min.Y-1
	mark := func(x, y int) {
		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
		if y < minY {
			minY = y
		}
		if y > maxY {
			maxY = y
		}
	}
	switch src := img.(type) {
	case *image.NRGBA:
		scanPix(src.Pix, src.Stride, 4, 3, r, mark)
	case *image.RGBA:
		scanPix(src.Pix, src.Stride, 4, 3, r, mark)
	case *image.Alpha:
		scanPix(src.Pix, src.Stride, 1, 0, r, mark)
	case *image.Gray, *image.YCbCr, *image.CMYK:
		// no alpha channel: every pixel is opaque
		return full
	default:
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				if _, _, _, a := img.At(x, y).RGBA(); a > 0 {
					mark(x, y)
				}
			}
		}
	}
	if maxX < minX || maxY < minY {
		return full
	}
	return CropBounds{
		SX: minX - r.Min.X,
		SY: minY - r.Min.Y,
		SW: maxX - minX + 1,
		SH: maxY - minY + 1,
	}
}

func scanPix(pix []uint8, stride, bpp, alphaOff int, r image.Rectangle, mark func(x, y int)) {
	w := r.Dx()
	for y := 0; y < r.Dy(); y++ {
		row := pix[y*stride:]
		for x := 0; x < w; x++ {
			if row[x*bpp+alphaOff] > 0 {
				mark(r.Min.X+x, r.Min.Y+y)
			}
		}
	}
}
