// Package layout converts parsed chapters into viewport sized pages: the
// style resolver, the line breaker and the paginator live here. Positions in
// and out of this package are the stable document addresses from package
// book; everything else is transient and regenerated whenever layout inputs
// change.
package layout

import (
	"errors"

	"github.com/mattn/go-runewidth"
	"github.com/rivo/uniseg"

	"tbr/common"
)

// ErrViewportTooSmall means no line can be laid out in the given extent.
// Callers degrade to a truncation placeholder instead of looping.
var ErrViewportTooSmall = errors.New("viewport too small for layout")

// Metrics is the rendering backend's measurement capability. Glyph advances
// are backend specific (character cells for the terminal, measured units for
// a GUI), so the layout core never computes them itself.
type Metrics interface {
	// Advance returns the extent one grapheme cluster occupies along the
	// line axis for the given orientation.
	Advance(cluster string, o common.Orientation) int
	// LineStride returns the extent one line occupies across the page axis:
	// rows per text line horizontally, cells per column vertically.
	LineStride(o common.Orientation) int
}

// CellMetrics measures in terminal character cells. In vertical mode every
// visible cluster occupies one row of its column and columns are three cells
// wide (a double-width glyph plus gap).
type CellMetrics struct{}

func (CellMetrics) Advance(cluster string, o common.Orientation) int {
	w := runewidth.StringWidth(cluster)
	if o == common.OrientationVertical {
		if w == 0 {
			return 0
		}
		return 1
	}
	return w
}

func (CellMetrics) LineStride(o common.Orientation) int {
	if o == common.OrientationVertical {
		return 3
	}
	return 1
}

// graphemes yields the grapheme clusters of s using the Unicode
// segmentation rules.
func graphemes(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	state := -1
	for len(s) > 0 {
		var cluster string
		cluster, s, _, state = uniseg.FirstGraphemeClusterInString(s, state)
		out = append(out, cluster)
	}
	return out
}
