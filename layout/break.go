package layout

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/rivo/uniseg"

	"tbr/book"
	"tbr/common"
)

// Fragment is a contiguous piece of one run placed on a line, carrying the
// resolved rendering attributes and the display text (vertical presentation
// forms already applied in vertical mode).
type Fragment struct {
	Run     int
	Text    string
	Attrs   RenderAttrs
	Extent  int
	ImageID string
}

// Line is a transient, viewport dependent unit: a contiguous sub-sequence of
// a block's runs that fits the line extent, tagged with the stable position
// of its first character so layout can resume anywhere.
type Line struct {
	Start     book.Position
	Indent    int // paragraph leading, has no content behind it
	Fragments []Fragment
	Extent    int
	Image     bool
	Divider   bool
}

// LineBreaker lazily breaks one block into lines. It is an explicit cursor:
// restartable from any valid in-block position, producing as many lines as
// the caller pulls.
type LineBreaker struct {
	block   *book.Block
	chapter int
	blockIx int
	extent  int
	orient  common.Orientation
	metrics Metrics
	theme   Theme
	leading int

	run  int
	off  int
	done bool
}

// NewLineBreaker positions a breaker at start inside block. The extent is
// the line axis size (columns horizontally, rows vertically); non-positive
// extents fail immediately so layout can never loop on a degenerate
// viewport.
func NewLineBreaker(block *book.Block, start book.Position, extent int, o common.Orientation, m Metrics, theme Theme, leading int) (*LineBreaker, error) {
	if extent <= 0 {
		return nil, fmt.Errorf("%w: line extent %d", ErrViewportTooSmall, extent)
	}
	br := &LineBreaker{
		block:   block,
		chapter: start.Chapter,
		blockIx: start.Block,
		extent:  extent,
		orient:  o,
		metrics: m,
		theme:   theme,
		leading: leading,
		run:     start.Run,
		off:     start.Offset,
	}
	if br.run < 0 || br.run > len(block.Runs) {
		return nil, fmt.Errorf("run %d not in block: %w", br.run, book.ErrOutOfRange)
	}
	br.normalize()
	return br, nil
}

// pos returns the stable address of the current cursor.
func (br *LineBreaker) pos() book.Position {
	return book.Position{Chapter: br.chapter, Block: br.blockIx, Run: br.run, Offset: br.off}
}

// breakPoint snapshots accumulation at a break opportunity so the line can
// be cut there later.
type breakPoint struct {
	run, off  int
	fragments []Fragment
	pending   string
	pendingX  int
	valid     bool
}

// Next produces the next line of the block. ok is false once the block is
// exhausted.
func (br *LineBreaker) Next() (Line, bool) {
	if br.done {
		return Line{}, false
	}

	switch br.block.Kind {
	case book.BlockImage:
		br.done = true
		return Line{
			Start:     br.pos(),
			Fragments: []Fragment{{ImageID: br.block.ImageID}},
			Image:     true,
		}, true
	case book.BlockDivider:
		br.done = true
		return Line{Start: br.pos(), Divider: true}, true
	}

	line := Line{Start: br.pos()}
	avail := br.extent
	if br.run == 0 && br.off == 0 && br.block.Kind == book.BlockParagraph && br.leading > 0 {
		line.Indent = br.leading * br.metrics.Advance(" ", br.orient)
		if line.Indent >= avail {
			// pathologically narrow viewport, drop the indent
			line.Indent = 0
		}
		avail -= line.Indent
	}

	var (
		pending  strings.Builder // display text of the fragment being built
		pendingX int             // its extent
		brk      breakPoint
		prev     string
	)

	flushPending := func(runIx int) {
		if pending.Len() == 0 {
			return
		}
		run := br.block.Runs[runIx]
		line.Fragments = append(line.Fragments, Fragment{
			Run:     runIx,
			Text:    pending.String(),
			Attrs:   Resolve(run, br.headingLevel(), br.theme),
			Extent:  pendingX,
			ImageID: run.ImageID,
		})
		line.Extent += pendingX
		pending.Reset()
		pendingX = 0
	}

	for br.run < len(br.block.Runs) {
		cur := br.block.Runs[br.run]

		// keep hyperlink runs on one line when they fit whole
		if br.off == 0 && cur.Link != nil && line.Extent+pendingX > 0 {
			if adv := br.runAdvance(cur.Text); adv > avail-line.Extent-pendingX && adv <= avail {
				flushPending(br.run - 1)
				return br.trimSeam(line), true
			}
		}

		for br.off < len(cur.Text) {
			cluster, _, _, _ := uniseg.FirstGraphemeClusterInString(cur.Text[br.off:], -1)
			adv := br.metrics.Advance(cluster, br.orient)
			space := isSpaceCluster(cluster)

			if adv > avail-line.Extent-pendingX {
				// cluster does not fit on this line
				owner := br.run
				switch {
				case space && brk.valid:
					// a word and its trailing whitespace break as one unit:
					// when the whitespace overflows the word goes with it
					return br.trimSeam(br.cutAt(line, brk)), true
				case space:
					// a single word filled the whole extent, consume the
					// seam whitespace
					br.off += len(cluster)
					br.normalize()
					flushPending(owner)
				case prev != "" && canBreakBetween(prev, cluster):
					// the seam itself is a break opportunity, cut right here
					flushPending(owner)
				case brk.valid:
					return br.trimSeam(br.cutAt(line, brk)), true
				case line.Extent+pendingX > 0:
					// no break opportunity, force split at grapheme boundary
					flushPending(owner)
				default:
					// single cluster wider than the whole extent: place it
					// alone so layout always makes progress
					pending.WriteString(br.displayCluster(cluster))
					pendingX += adv
					br.off += len(cluster)
					br.normalize()
					flushPending(owner)
				}
				if br.run >= len(br.block.Runs) {
					br.done = true
				}
				return br.trimSeam(line), true
			}

			if !space && prev != "" && canBreakBetween(prev, cluster) {
				brk = breakPoint{
					run:       br.run,
					off:       br.off,
					fragments: append([]Fragment(nil), line.Fragments...),
					pending:   pending.String(),
					pendingX:  pendingX,
					valid:     true,
				}
			}
			pending.WriteString(br.displayCluster(cluster))
			pendingX += adv
			br.off += len(cluster)
			prev = cluster
		}
		flushPending(br.run)
		br.run++
		br.off = 0
	}

	br.done = true
	return br.trimSeam(line), true
}

// cutAt rewinds the cursor to a recorded break opportunity and assembles the
// line accumulated up to it. The line keeps its original start; the next
// line starts at the break point.
func (br *LineBreaker) cutAt(line Line, bp breakPoint) Line {
	br.run, br.off = bp.run, bp.off
	line.Fragments = bp.fragments
	line.Extent = 0
	for i := range line.Fragments {
		line.Extent += line.Fragments[i].Extent
	}
	if bp.pending != "" {
		run := br.block.Runs[bp.run]
		line.Fragments = append(line.Fragments, Fragment{
			Run:     bp.run,
			Text:    bp.pending,
			Attrs:   Resolve(run, br.headingLevel(), br.theme),
			Extent:  bp.pendingX,
			ImageID: run.ImageID,
		})
		line.Extent += bp.pendingX
	}
	return line
}

// trimSeam drops line-trailing whitespace from the assembled line. The
// cursor has already moved past it, it just occupies no cells.
func (br *LineBreaker) trimSeam(line Line) Line {
	for len(line.Fragments) > 0 {
		f := &line.Fragments[len(line.Fragments)-1]
		trimmed := strings.TrimRightFunc(f.Text, unicode.IsSpace)
		if cut := f.Text[len(trimmed):]; cut != "" {
			delta := br.runAdvance(cut)
			f.Text = trimmed
			f.Extent -= delta
			line.Extent -= delta
		}
		if f.Text != "" {
			break
		}
		line.Fragments = line.Fragments[:len(line.Fragments)-1]
	}
	return line
}

// normalize moves the cursor off a run boundary onto the next run.
func (br *LineBreaker) normalize() {
	for br.run < len(br.block.Runs) && br.off >= len(br.block.Runs[br.run].Text) {
		br.run++
		br.off = 0
	}
}

func (br *LineBreaker) headingLevel() int {
	if br.block.Kind == book.BlockHeading {
		return br.block.Level
	}
	return 0
}

func (br *LineBreaker) displayCluster(cluster string) string {
	if br.orient == common.OrientationVertical {
		return mapVertical(cluster)
	}
	return cluster
}

func (br *LineBreaker) runAdvance(text string) int {
	total := 0
	for _, cl := range graphemes(text) {
		total += br.metrics.Advance(cl, br.orient)
	}
	return total
}

func isSpaceCluster(cluster string) bool {
	for _, r := range cluster {
		return unicode.IsSpace(r)
	}
	return false
}

// canBreakBetween reports a break opportunity between two adjacent clusters:
// after whitespace, or between CJK clusters not involving punctuation.
func canBreakBetween(prev, next string) bool {
	if isSpaceCluster(prev) {
		return true
	}
	if !isCJK(prev) && !isCJK(next) {
		return false
	}
	return !isBreakPunct(prev) && !isBreakPunct(next)
}
