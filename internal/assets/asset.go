/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */

// Package assets loads decoded logo images once per source and derives their
// visible (non-transparent) bounds.
package assets

import "image"

// Asset is a decoded image shared read-only between render calls. Its pointer
// identity keys the crop cache, so a reloaded file always yields a new Asset.
type Asset struct {
	ID     string
	Image  image.Image
	Width  int
	Height int
}

// NewAsset wraps an already decoded image.
func NewAsset(id string, img image.Image) *Asset {
	a := &Asset{ID: id, Image: img}
	if img != nil {
		b := img.Bounds()
		a.Width, a.Height = b.Dx(), b.Dy()
	}
	return a
}
