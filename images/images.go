// Package images decodes embedded book illustrations and measures how much
// page space they occupy. Raster formats go through the standard decoders,
// SVG covers are rasterized.
package images

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"tbr/common"
	"tbr/layout"
)

// Image is one decoded illustration.
type Image struct {
	ID     string
	Width  int
	Height int
	Data   image.Image
}

// Decode parses image bytes. SVG content is rasterized at its intrinsic
// size; everything else goes through the registered raster decoders.
func Decode(id string, data []byte) (*Image, error) {
	if isSVG(id, data) {
		img, err := rasterizeSVG(data, 0, 0)
		if err != nil {
			return nil, fmt.Errorf("rasterizing %s: %w", id, err)
		}
		b := img.Bounds()
		return &Image{ID: id, Width: b.Dx(), Height: b.Dy(), Data: img}, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", id, err)
	}
	b := img.Bounds()
	return &Image{ID: id, Width: b.Dx(), Height: b.Dy(), Data: img}, nil
}

// Fit scales the image down to fit a box, preserving aspect ratio. Images
// already inside the box are returned unchanged.
func (m *Image) Fit(maxW, maxH int) image.Image {
	if m.Width <= maxW && m.Height <= maxH {
		return m.Data
	}
	return imaging.Fit(m.Data, maxW, maxH, imaging.Lanczos)
}

func isSVG(id string, data []byte) bool {
	if strings.HasSuffix(strings.ToLower(id), ".svg") {
		return true
	}
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.Contains(head, []byte("<svg"))
}

// Sniff reports whether data looks like a supported raster image.
func Sniff(data []byte) bool {
	return filetype.IsImage(data)
}

// cellAspect approximates a terminal cell as twice as tall as wide.
const cellAspect = 2

// CellSizer measures image placeholders in terminal cells. It implements
// the paginator's image sizing hook.
type CellSizer struct {
	// Lookup resolves an image id to its decoded form; nil or a miss
	// degrades to a single placeholder line.
	Lookup func(id string) *Image
}

// ImageLines returns how many text lines an image occupies when scaled to
// the viewport width, capped at half the page so text always fits alongside.
func (s CellSizer) ImageLines(id string, v layout.Viewport, o common.Orientation) int {
	if s.Lookup == nil {
		return 1
	}
	img := s.Lookup(id)
	if img == nil || img.Width <= 0 {
		return 1
	}
	avail, most := v.Width, v.Height/2
	if o == common.OrientationVertical {
		avail, most = v.Height, v.Width/2
	}
	lines := img.Height * avail / img.Width / cellAspect
	if lines < 1 {
		lines = 1
	}
	if most >= 1 && lines > most {
		lines = most
	}
	return lines
}
