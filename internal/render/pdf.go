/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package render

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"postgen/internal/settings"
	"postgen/internal/version"
)

// ExportPDF wraps a rendered PNG into a single-page PDF. The page is sized to the
// logical post dimensions in points and the image covers it fully, so a 2x
// export keeps its resolution when printed at the logical size.
func ExportPDF(pngData []byte, s settings.Settings) ([]byte, error) {
	if len(pngData) == 0 {
		return nil, fmt.Errorf("%w: no image data", ErrEncodingFailed)
	}
	w, h := float64(s.Width), float64(s.Height)
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: page %vx%v", ErrSurfaceUnavailable, w, h)
	}
	// Use points for 1:1 mapping from logical pixels to PDF
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: w, Ht: h},
	})
	pdf.SetTitle("postgen post", false)
	pdf.SetCreator("postgen "+version.String(), false)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPageFormat("", gofpdf.SizeType{Wd: w, Ht: h})

	opt := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("post", opt, bytes.NewReader(pngData))
	pdf.ImageOptions("post", 0, 0, w, h, false, opt, 0, "")
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodingFailed, err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%w: write pdf: %v", ErrEncodingFailed, err)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("%w: empty pdf", ErrEncodingFailed)
	}
	return buf.Bytes(), nil
}
