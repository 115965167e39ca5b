package layout

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"tbr/book"
	"tbr/common"
)

// Viewport is the renderable area in backend units (character cells for the
// terminal backend).
type Viewport struct {
	Width  int
	Height int
}

// Signature distinguishes viewports for cache keys and logging.
func (v Viewport) Signature() string {
	return fmt.Sprintf("%dx%d", v.Width, v.Height)
}

// Page is a transient rendering unit covering the half-open position range
// [Start, End). Pages tile a chapter: consecutive pages share a boundary and
// together cover every character exactly once.
type Page struct {
	Start        book.Position
	End          book.Position
	Lines        []Line
	EndOfChapter bool
	Gen          uint64
}

// Contains reports whether pos falls inside the page's range.
func (p *Page) Contains(pos book.Position) bool {
	return !pos.Before(p.Start) && pos.Before(p.End)
}

// ImageSizer lets a backend report how many lines an embedded image occupies
// on the page axis. Nil means every image takes a single line.
type ImageSizer interface {
	ImageLines(id string, v Viewport, o common.Orientation) int
}

// Paginator lays out pages of a document for one viewport and orientation.
// Every layout input change bumps the generation counter, so stale results
// computed concurrently (background search pre-rendering, for instance) are
// recognizable and discarded instead of mixed with fresh ones.
type Paginator struct {
	doc     *book.Document
	metrics Metrics
	theme   Theme
	sizer   ImageSizer
	log     *zap.Logger

	mu       sync.Mutex
	viewport Viewport
	orient   common.Orientation
	leading  int
	gen      uint64
	cache    map[book.Position]Page
}

// NewPaginator wires a paginator to a document. The metrics implementation
// comes from the rendering backend.
func NewPaginator(doc *book.Document, m Metrics, theme Theme, v Viewport, o common.Orientation, leading int, log *zap.Logger) *Paginator {
	return &Paginator{
		doc:      doc,
		metrics:  m,
		theme:    theme,
		log:      log,
		viewport: v,
		orient:   o,
		leading:  leading,
		cache:    make(map[book.Position]Page),
	}
}

// SetViewport atomically switches the layout target and invalidates every
// cached page.
func (p *Paginator) SetViewport(v Viewport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v == p.viewport {
		return
	}
	p.log.Debug("viewport changed", zap.String("from", p.viewport.Signature()), zap.String("to", v.Signature()))
	p.viewport = v
	p.invalidateLocked()
}

// SetOrientation switches between horizontal and vertical layout.
func (p *Paginator) SetOrientation(o common.Orientation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if o == p.orient {
		return
	}
	p.orient = o
	p.invalidateLocked()
}

// SetTheme swaps rendering attributes. Positions and page boundaries do not
// depend on the theme but cached pages carry resolved attributes, so the
// cache goes too.
func (p *Paginator) SetTheme(theme Theme) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.theme = theme
	p.invalidateLocked()
}

// SetImageSizer installs backend image measurement.
func (p *Paginator) SetImageSizer(s ImageSizer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sizer = s
	p.invalidateLocked()
}

func (p *Paginator) invalidateLocked() {
	p.gen++
	p.cache = make(map[book.Position]Page)
}

// Generation returns the current layout generation. Results tagged with an
// older generation are stale.
func (p *Paginator) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen
}

// Viewport returns the current layout target.
func (p *Paginator) Viewport() Viewport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewport
}

// Orientation returns the current layout direction.
func (p *Paginator) Orientation() common.Orientation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.orient
}

// extents returns (line axis size, page axis capacity in lines) for the
// current viewport and orientation. Vertical columns are three cells wide;
// a two cell remainder still fits one more column.
func (p *Paginator) extents(v Viewport, o common.Orientation) (int, int) {
	stride := p.metrics.LineStride(o)
	if o == common.OrientationVertical {
		lines := v.Width / stride
		if v.Width%stride == stride-1 {
			lines++
		}
		return v.Height, lines
	}
	return v.Width, v.Height / stride
}

// PaginateFrom lays out the page beginning exactly at pos. The position is
// clamped to the document first, so a stale saved position still yields a
// valid page.
func (p *Paginator) PaginateFrom(ctx context.Context, pos book.Position) (Page, error) {
	p.mu.Lock()
	v, o, leading, gen := p.viewport, p.orient, p.leading, p.gen
	p.mu.Unlock()

	pos = p.doc.Clamp(pos)

	p.mu.Lock()
	if cached, ok := p.cache[pos]; ok && cached.Gen == gen {
		p.mu.Unlock()
		return cached, nil
	}
	p.mu.Unlock()

	page, err := p.layoutPage(ctx, pos, v, o, leading, gen)
	if err != nil {
		return Page{}, err
	}

	p.mu.Lock()
	if p.gen == gen {
		p.cache[pos] = page
	}
	p.mu.Unlock()
	return page, nil
}

// layoutPage fills one viewport of lines starting at pos.
func (p *Paginator) layoutPage(ctx context.Context, pos book.Position, v Viewport, o common.Orientation, leading int, gen uint64) (Page, error) {
	extent, capacity := p.extents(v, o)
	if extent <= 0 || capacity <= 0 {
		return Page{}, fmt.Errorf("%w: %s %s", ErrViewportTooSmall, v.Signature(), o)
	}

	chapter, err := p.doc.Chapter(pos.Chapter)
	if err != nil {
		return Page{}, err
	}

	page := Page{Start: pos, Gen: gen}
	cur := pos
	used := 0

	for cur.Block < len(chapter.Blocks) {
		if err := ctx.Err(); err != nil {
			return Page{}, err
		}
		block := &chapter.Blocks[cur.Block]
		br, err := NewLineBreaker(block, cur, extent, o, p.metrics, p.theme, leading)
		if err != nil {
			return Page{}, err
		}
		for {
			line, ok := br.Next()
			if !ok {
				break
			}
			cost := 1
			if line.Image && p.sizer != nil {
				if n := p.sizer.ImageLines(line.Fragments[0].ImageID, v, o); n > 0 {
					cost = n
				}
			}
			if used+cost > capacity && used > 0 {
				// line does not fit, it opens the next page
				page.End = line.Start
				return page, nil
			}
			page.Lines = append(page.Lines, line)
			used += cost
			if used >= capacity {
				next := br.pos()
				if br.done || next.Run >= len(block.Runs) {
					next = book.Position{Chapter: cur.Chapter, Block: cur.Block + 1}
				}
				if next.Block >= len(chapter.Blocks) {
					page.End = book.Position{Chapter: cur.Chapter + 1}
					page.EndOfChapter = true
					return page, nil
				}
				page.End = next
				return page, nil
			}
		}
		cur = book.Position{Chapter: cur.Chapter, Block: cur.Block + 1}
	}

	page.End = book.Position{Chapter: cur.Chapter + 1}
	page.EndOfChapter = true
	return page, nil
}

// PrevPage computes the page preceding pos. Lines cannot be laid out
// backwards, so it walks forward from the nearest preceding block boundary
// and returns the last full page ending at or before pos, never one that
// overlaps it.
func (p *Paginator) PrevPage(ctx context.Context, pos book.Position) (Page, error) {
	pos = p.doc.Clamp(pos)
	p.mu.Lock()
	_, capacity := p.extents(p.viewport, p.orient)
	p.mu.Unlock()
	start := p.backwardAnchor(pos, capacity)
	if !start.Before(pos) {
		// already at the very beginning of the chapter and document
		return p.PaginateFrom(ctx, start)
	}

	cur := start
	var (
		prev  Page
		found bool
	)
	for {
		page, err := p.PaginateFrom(ctx, cur)
		if err != nil {
			return Page{}, err
		}
		switch {
		case page.End.Compare(pos) > 0:
			// overshot: pos sits inside this page, the one before it is
			// the last full page ending at or before pos
			if found {
				return prev, nil
			}
			return page, nil
		case page.End.Compare(pos) == 0 || page.EndOfChapter:
			return page, nil
		}
		prev, found = page, true
		if !cur.Before(page.End) {
			return Page{}, fmt.Errorf("pagination stalled at %s", cur)
		}
		cur = page.End
	}
}

// backwardAnchor picks a deterministic restart point before pos. Every block
// contributes at least one line, so the previous page cannot start more than
// one viewport of blocks back; when pos opens a chapter the walk restarts at
// the top of the previous one.
func (p *Paginator) backwardAnchor(pos book.Position, capacity int) book.Position {
	if capacity < 1 {
		capacity = 1
	}
	if pos.Block > 0 || pos.Run > 0 || pos.Offset > 0 {
		block := pos.Block - capacity
		if block < 0 {
			block = 0
		}
		return book.Position{Chapter: pos.Chapter, Block: block}
	}
	if pos.Chapter == 0 {
		return book.Position{}
	}
	return book.Position{Chapter: pos.Chapter - 1}
}
