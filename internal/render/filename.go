/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */

package render

import (
	"strings"
	"time"
)

// TimestampFilename returns "<prefix>-YYYYMMDD-HHMMSS.<ext>" for t in its own
// location. Empty prefix and ext default to "post" and "png".
func TimestampFilename(prefix, ext string, t time.Time) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "post"
	}
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		ext = "png"
	}
	return prefix + "-" + t.Format("20060102-150405") + "." + ext
}
