/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */

package render

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"
	"testing"
	"time"
)

func TestEncode_RoundTripSize(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 7, 3))
	img.SetRGBA(1, 1, color.RGBA{R: 9, G: 8, B: 7, A: 255})
	data, err := Encode(img)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	back, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.Bounds() != img.Bounds() {
		t.Fatalf("bounds %v", back.Bounds())
	}
}

func TestEncode_EmptyImageFails(t *testing.T) {
	if _, err := Encode(nil); !errors.Is(err, ErrEncodingFailed) {
		t.Fatalf("nil: err = %v", err)
	}
	if _, err := Encode(image.NewRGBA(image.Rectangle{})); !errors.Is(err, ErrEncodingFailed) {
		t.Fatalf("empty: err = %v", err)
	}
}

func TestDataURL(t *testing.T) {
	url, err := DataURL(image.NewRGBA(image.Rect(0, 0, 2, 2)))
	if err != nil {
		t.Fatalf("DataURL: %v", err)
	}
	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(url, prefix) {
		t.Fatalf("prefix missing: %q", url[:20])
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, prefix))
	if err != nil {
		t.Fatalf("base64: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(raw)); err != nil {
		t.Fatalf("png: %v", err)
	}
}

func TestDisplayable_Unpremultiplies(t *testing.T) {
	img := image.NewRGBA(image.Rect(2, 2, 4, 4))
	img.SetRGBA(2, 2, color.RGBA{R: 64, A: 128})
	n := Displayable(img)
	if n.Bounds() != image.Rect(0, 0, 2, 2) {
		t.Fatalf("bounds %v", n.Bounds())
	}
	got := n.NRGBAAt(0, 0)
	if got.A != 128 || got.R < 126 || got.R > 129 {
		t.Fatalf("pixel %v", got)
	}
}

func TestTimestampFilename(t *testing.T) {
	ts := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	if got := TimestampFilename("", "", ts); got != "post-20250304-050607.png" {
		t.Fatalf("got %q", got)
	}
	if got := TimestampFilename("zitat", ".pdf", ts); got != "zitat-20250304-050607.pdf" {
		t.Fatalf("got %q", got)
	}
}

func TestExportPDF(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{G: 90, A: 255}), image.Point{}, draw.Src)
	data, err := Encode(img)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	pdf, err := ExportPDF(data, smallSettings())
	if err != nil {
		t.Fatalf("ExportPDF: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Fatalf("not a pdf: %q", pdf[:8])
	}
	if _, err := ExportPDF(nil, smallSettings()); !errors.Is(err, ErrEncodingFailed) {
		t.Fatalf("nil png: err = %v", err)
	}
}
