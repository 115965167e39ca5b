package layout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"tbr/book"
	"tbr/common"
)

// stubSource serves pre-built chapters, failing the indexes listed in bad.
type stubSource struct {
	chapters []*book.Chapter
	bad      map[int]bool
}

func (s *stubSource) ChapterCount() int { return len(s.chapters) }
func (s *stubSource) ChapterTitle(index int) string {
	return s.chapters[index].Title
}
func (s *stubSource) ParseChapter(index int) (*book.Chapter, error) {
	if s.bad[index] {
		return nil, errors.New("corrupt chapter")
	}
	return s.chapters[index], nil
}
func (s *stubSource) Close() error { return nil }

func textChapter(title string, paragraphs ...string) *book.Chapter {
	c := &book.Chapter{Title: title}
	for _, p := range paragraphs {
		c.Blocks = append(c.Blocks, book.Block{Kind: book.BlockParagraph, Runs: []book.Run{{Text: p}}})
	}
	return c
}

func testDoc(t *testing.T, chapters ...*book.Chapter) *book.Document {
	t.Helper()
	return book.NewDocument("test book", common.BookFormatTxt, &stubSource{chapters: chapters}, nil, zaptest.NewLogger(t))
}

func proseDoc(t *testing.T) *book.Document {
	t.Helper()
	var paragraphs []string
	for i := 0; i < 12; i++ {
		paragraphs = append(paragraphs, fmt.Sprintf("Paragraph %d with a reasonable amount of text that wraps over several lines when the viewport is narrow enough.", i))
	}
	return testDoc(t, textChapter("one", paragraphs...), textChapter("two", "Short closing chapter."))
}

func collectPages(t *testing.T, pag *Paginator, from book.Position) []Page {
	t.Helper()
	var pages []Page
	pos := from
	for {
		page, err := pag.PaginateFrom(context.Background(), pos)
		if err != nil {
			t.Fatalf("PaginateFrom(%s): %v", pos, err)
		}
		pages = append(pages, page)
		if page.EndOfChapter {
			return pages
		}
		if !pos.Before(page.End) {
			t.Fatalf("no forward progress at %s", pos)
		}
		pos = page.End
	}
}

func TestPagesTileChapter(t *testing.T) {
	doc := proseDoc(t)
	pag := NewPaginator(doc, CellMetrics{}, ThemeByName("default"), Viewport{Width: 30, Height: 8}, common.OrientationHorizontal, 2, zaptest.NewLogger(t))

	pages := collectPages(t, pag, book.Position{})
	if len(pages) < 3 {
		t.Fatalf("expected several pages, got %d", len(pages))
	}
	for i, p := range pages {
		if len(p.Lines) == 0 {
			t.Fatalf("page %d is empty", i)
		}
		if len(p.Lines) > 8 {
			t.Errorf("page %d has %d lines, capacity is 8", i, len(p.Lines))
		}
		for _, l := range p.Lines {
			if l.Indent+l.Extent > 30 {
				t.Errorf("page %d line overflows: %d", i, l.Indent+l.Extent)
			}
		}
		if p.Lines[0].Start != p.Start {
			t.Errorf("page %d first line starts at %s, page starts at %s", i, p.Lines[0].Start, p.Start)
		}
		if i > 0 && pages[i-1].End != p.Start {
			t.Errorf("pages %d and %d do not tile: %s vs %s", i-1, i, pages[i-1].End, p.Start)
		}
	}
	last := pages[len(pages)-1]
	if !last.EndOfChapter || last.End.Chapter != 1 {
		t.Errorf("last page end = %+v", last)
	}
}

func TestPaginationIsDeterministic(t *testing.T) {
	doc := proseDoc(t)
	pag := NewPaginator(doc, CellMetrics{}, ThemeByName("default"), Viewport{Width: 30, Height: 8}, common.OrientationHorizontal, 2, zaptest.NewLogger(t))

	first := collectPages(t, pag, book.Position{})
	second := collectPages(t, pag, book.Position{})
	if len(first) != len(second) {
		t.Fatalf("page counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Start != second[i].Start || first[i].End != second[i].End {
			t.Errorf("page %d boundaries differ: [%s,%s) vs [%s,%s)", i, first[i].Start, first[i].End, second[i].Start, second[i].End)
		}
	}
}

func TestVerticalColumnsFill(t *testing.T) {
	doc := testDoc(t, textChapter("han", "一二三四五六七八九十"))
	// two columns of three cells, five rows each
	pag := NewPaginator(doc, CellMetrics{}, ThemeByName("default"), Viewport{Width: 6, Height: 5}, common.OrientationVertical, 0, zaptest.NewLogger(t))

	page, err := pag.PaginateFrom(context.Background(), book.Position{})
	if err != nil {
		t.Fatalf("PaginateFrom: %v", err)
	}
	if len(page.Lines) != 2 {
		t.Fatalf("got %d columns, want 2", len(page.Lines))
	}
	if got := lineText(page.Lines[0]); got != "一二三四五" {
		t.Errorf("first column = %q", got)
	}
	if got := lineText(page.Lines[1]); got != "六七八九十" {
		t.Errorf("second column = %q", got)
	}
	if !page.EndOfChapter {
		t.Error("page should close the chapter")
	}
}

func TestVerticalRemainderFitsExtraColumn(t *testing.T) {
	doc := testDoc(t, textChapter("han", strings.Repeat("漢", 15)))
	// width 8 leaves a two cell remainder, enough for a third column
	pag := NewPaginator(doc, CellMetrics{}, ThemeByName("default"), Viewport{Width: 8, Height: 5}, common.OrientationVertical, 0, zaptest.NewLogger(t))

	page, err := pag.PaginateFrom(context.Background(), book.Position{})
	if err != nil {
		t.Fatalf("PaginateFrom: %v", err)
	}
	if len(page.Lines) != 3 {
		t.Errorf("got %d columns, want 3", len(page.Lines))
	}
}

func TestPositionSurvivesResize(t *testing.T) {
	doc := proseDoc(t)
	pag := NewPaginator(doc, CellMetrics{}, ThemeByName("default"), Viewport{Width: 60, Height: 16}, common.OrientationHorizontal, 2, zaptest.NewLogger(t))

	pages := collectPages(t, pag, book.Position{})
	if len(pages) < 2 {
		t.Fatalf("expected several pages, got %d", len(pages))
	}
	mark := pages[1].Start
	gen := pag.Generation()

	pag.SetViewport(Viewport{Width: 28, Height: 9})
	if pag.Generation() == gen {
		t.Error("generation not bumped on resize")
	}

	page, err := pag.PaginateFrom(context.Background(), mark)
	if err != nil {
		t.Fatalf("PaginateFrom after resize: %v", err)
	}
	if page.Start != mark {
		t.Errorf("page start = %s, want %s", page.Start, mark)
	}
	if !page.Contains(mark) {
		t.Error("page does not contain the marked position")
	}
}

func TestOrientationSwitchKeepsPosition(t *testing.T) {
	doc := testDoc(t, textChapter("han", strings.Repeat("漢字縦書き", 40)))
	pag := NewPaginator(doc, CellMetrics{}, ThemeByName("default"), Viewport{Width: 20, Height: 6}, common.OrientationHorizontal, 0, zaptest.NewLogger(t))

	pages := collectPages(t, pag, book.Position{})
	mark := pages[1].Start

	pag.SetOrientation(common.OrientationVertical)
	page, err := pag.PaginateFrom(context.Background(), mark)
	if err != nil {
		t.Fatalf("PaginateFrom after orientation switch: %v", err)
	}
	if page.Start != mark {
		t.Errorf("page start = %s, want %s", page.Start, mark)
	}
}

func TestPrevPageReturnsTilingNeighbor(t *testing.T) {
	doc := proseDoc(t)
	pag := NewPaginator(doc, CellMetrics{}, ThemeByName("default"), Viewport{Width: 30, Height: 8}, common.OrientationHorizontal, 2, zaptest.NewLogger(t))

	pages := collectPages(t, pag, book.Position{})
	if len(pages) < 3 {
		t.Fatalf("expected several pages, got %d", len(pages))
	}

	prev, err := pag.PrevPage(context.Background(), pages[2].Start)
	if err != nil {
		t.Fatalf("PrevPage: %v", err)
	}
	if prev.Start.Before(pages[1].Start) || pages[2].Start.Before(prev.End) {
		t.Errorf("prev page [%s,%s) does not abut %s", prev.Start, prev.End, pages[2].Start)
	}

	// at the very beginning the first page comes back
	first, err := pag.PrevPage(context.Background(), book.Position{})
	if err != nil {
		t.Fatalf("PrevPage at start: %v", err)
	}
	if first.Start != (book.Position{}) {
		t.Errorf("first page start = %s", first.Start)
	}
}

func TestPrevPageCrossesChapterBoundary(t *testing.T) {
	doc := proseDoc(t)
	pag := NewPaginator(doc, CellMetrics{}, ThemeByName("default"), Viewport{Width: 30, Height: 8}, common.OrientationHorizontal, 2, zaptest.NewLogger(t))

	prev, err := pag.PrevPage(context.Background(), book.Position{Chapter: 1})
	if err != nil {
		t.Fatalf("PrevPage: %v", err)
	}
	if prev.Start.Chapter != 0 || !prev.EndOfChapter {
		t.Errorf("prev page = [%s,%s), want last page of chapter 0", prev.Start, prev.End)
	}
}

func TestPrevPageNeverOverlapsPosition(t *testing.T) {
	// every block breaks into exactly three lines at width 10, so page
	// seams of the seven line viewport never align with block boundaries
	var paragraphs []string
	for i := 0; i < 12; i++ {
		paragraphs = append(paragraphs, "aaaa bbbb cccc dddd eeee ffff")
	}
	doc := testDoc(t, textChapter("grid", paragraphs...))
	pag := NewPaginator(doc, CellMetrics{}, ThemeByName("default"), Viewport{Width: 10, Height: 7}, common.OrientationHorizontal, 0, zaptest.NewLogger(t))

	// a mid-block seam: the second line of block 9
	pos := book.Position{Chapter: 0, Block: 9, Offset: 10}
	prev, err := pag.PrevPage(context.Background(), pos)
	if err != nil {
		t.Fatalf("PrevPage: %v", err)
	}
	if prev.End.Compare(pos) > 0 {
		t.Errorf("previous page [%s,%s) extends past %s", prev.Start, prev.End, pos)
	}
	if len(prev.Lines) == 0 {
		t.Error("previous page is empty")
	}

	// no forward tiling boundary may get a previous page reaching past it
	for _, pg := range collectPages(t, pag, book.Position{})[1:] {
		prev, err := pag.PrevPage(context.Background(), pg.Start)
		if err != nil {
			t.Fatalf("PrevPage(%s): %v", pg.Start, err)
		}
		if prev.End.Compare(pg.Start) > 0 {
			t.Errorf("PrevPage(%s) = [%s,%s) overlaps the boundary", pg.Start, prev.Start, prev.End)
		}
	}
}

// fixedSizer reports the same height for every image.
type fixedSizer struct{ lines int }

func (s fixedSizer) ImageLines(string, Viewport, common.Orientation) int { return s.lines }

func illustratedDoc(t *testing.T) *book.Document {
	t.Helper()
	ch := &book.Chapter{Title: "pics", Blocks: []book.Block{
		{Kind: book.BlockParagraph, Runs: []book.Run{{Text: "before"}}},
		{Kind: book.BlockImage, ImageID: "fig.png"},
		{Kind: book.BlockParagraph, Runs: []book.Run{{Text: "after"}}},
	}}
	return testDoc(t, ch)
}

func TestImageConsumesScaledExtent(t *testing.T) {
	pag := NewPaginator(illustratedDoc(t), CellMetrics{}, ThemeByName("default"), Viewport{Width: 20, Height: 4}, common.OrientationHorizontal, 0, zaptest.NewLogger(t))
	pag.SetImageSizer(fixedSizer{lines: 3})

	page, err := pag.PaginateFrom(context.Background(), book.Position{})
	if err != nil {
		t.Fatalf("PaginateFrom: %v", err)
	}
	// one text row plus the three row image fill the page exactly
	if len(page.Lines) != 2 || !page.Lines[1].Image {
		t.Fatalf("lines = %+v", page.Lines)
	}
	if page.End != (book.Position{Chapter: 0, Block: 2}) {
		t.Errorf("page end = %v", page.End)
	}
}

func TestOversizedImageGetsOwnPage(t *testing.T) {
	pag := NewPaginator(illustratedDoc(t), CellMetrics{}, ThemeByName("default"), Viewport{Width: 20, Height: 4}, common.OrientationHorizontal, 0, zaptest.NewLogger(t))
	pag.SetImageSizer(fixedSizer{lines: 10})

	pages := collectPages(t, pag, book.Position{})
	if len(pages) != 3 {
		t.Fatalf("pages = %d", len(pages))
	}
	if len(pages[0].Lines) != 1 || pages[0].Lines[0].Image {
		t.Errorf("first page = %+v", pages[0].Lines)
	}
	// the image does not fit alongside text, it takes a page of its own
	if len(pages[1].Lines) != 1 || !pages[1].Lines[0].Image {
		t.Errorf("second page = %+v", pages[1].Lines)
	}
	if len(pages[2].Lines) != 1 || !pages[2].EndOfChapter {
		t.Errorf("third page = %+v", pages[2])
	}
}

func TestFailedChapterYieldsEmptyPage(t *testing.T) {
	src := &stubSource{
		chapters: []*book.Chapter{textChapter("ok", "fine text"), textChapter("broken")},
		bad:      map[int]bool{1: true},
	}
	doc := book.NewDocument("test book", common.BookFormatTxt, src, nil, zaptest.NewLogger(t))
	pag := NewPaginator(doc, CellMetrics{}, ThemeByName("default"), Viewport{Width: 30, Height: 8}, common.OrientationHorizontal, 2, zaptest.NewLogger(t))

	page, err := pag.PaginateFrom(context.Background(), book.Position{Chapter: 1})
	if err != nil {
		t.Fatalf("PaginateFrom: %v", err)
	}
	if len(page.Lines) != 0 || !page.EndOfChapter {
		t.Errorf("failed chapter page = %+v", page)
	}
}

func TestTinyViewportFails(t *testing.T) {
	doc := proseDoc(t)
	pag := NewPaginator(doc, CellMetrics{}, ThemeByName("default"), Viewport{}, common.OrientationHorizontal, 2, zaptest.NewLogger(t))
	_, err := pag.PaginateFrom(context.Background(), book.Position{})
	if !errors.Is(err, ErrViewportTooSmall) {
		t.Errorf("err = %v, want ErrViewportTooSmall", err)
	}
}
