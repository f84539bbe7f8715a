/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */

package render

import "errors"

var (
	// ErrSurfaceUnavailable means the drawing target could not be allocated:
	// a non-positive or non-finite scale, empty logical size, or a side longer
	// than MaxSurfaceSide.
	ErrSurfaceUnavailable = errors.New("render surface unavailable")
	// ErrEncodingFailed means PNG or PDF encoding failed or produced no bytes.
	ErrEncodingFailed = errors.New("encoding failed")
	// ErrLogoUnavailable means the logo asset could not be loaded.
	ErrLogoUnavailable = errors.New("logo unavailable")
)

// MaxSurfaceSide bounds each side of the output bitmap in device pixels.
const MaxSurfaceSide = 8192
