// Package book defines the document model shared by every format parser and
// consumed by the layout core: a document is an ordered sequence of lazily
// parsed chapters, each an ordered sequence of blocks built from styled runs.
package book

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"tbr/common"
)

var (
	// ErrOutOfRange is returned when a position cannot be resolved within
	// document bounds. Callers are expected to clamp instead of failing.
	ErrOutOfRange = errors.New("position out of document range")
	// ErrChapterFailed marks a chapter whose source could not be parsed. The
	// chapter is presented empty, the rest of the document stays usable.
	ErrChapterFailed = errors.New("chapter failed to load")
	// ErrNoImage is returned for image ids the document cannot serve, either
	// because the format carries no embedded images or the reference is dead.
	ErrNoImage = errors.New("image not available")
)

// StyleFlags carries character level styling produced by parsers.
type StyleFlags uint8

const (
	StyleBold StyleFlags = 1 << iota
	StyleItalic
	StyleEmphasis
)

func (f StyleFlags) Has(flag StyleFlags) bool {
	return f&flag != 0
}

// LinkTarget addresses a hyperlink destination inside the same document.
type LinkTarget struct {
	Chapter int    // -1 when the anchor lives in the current chapter
	Anchor  string // in-chapter anchor id, empty for chapter start
}

// Run is an immutable span of text with uniform attributes. Runs never span
// block boundaries and concatenating all runs of a block in order
// reconstructs the block text exactly once.
type Run struct {
	Text    string
	Flags   StyleFlags
	Link    *LinkTarget
	ImageID string // inline embedded image reference
}

// BlockKind discriminates block level elements.
type BlockKind int

const (
	BlockParagraph BlockKind = iota
	BlockHeading
	BlockImage
	BlockDivider
)

// Block is one paragraph-level element of a chapter.
type Block struct {
	Kind    BlockKind
	Level   int // heading level 1..6, zero otherwise
	Runs    []Run
	ImageID string   // for BlockImage
	Anchors []string // anchor ids attached to this block
}

// Text concatenates all runs restoring the block's full text.
func (b *Block) Text() string {
	if len(b.Runs) == 1 {
		return b.Runs[0].Text
	}
	var sb strings.Builder
	for i := range b.Runs {
		sb.WriteString(b.Runs[i].Text)
	}
	return sb.String()
}

// Chapter is parsed from raw source bytes on first access and cached for the
// session lifetime. Once published it is never mutated, so it may be shared
// between the UI thread and background search workers.
type Chapter struct {
	Title  string
	Blocks []Block
	Err    error // parse failure; Blocks is empty then
}

// TOCEntry is one node of the flattened table-of-contents tree. Pos
// addresses the chapter start; when Anchor is set the precise block is
// resolved lazily via AnchorPosition so building the TOC never forces
// chapter parsing.
type TOCEntry struct {
	Title  string
	Level  int
	Pos    Position
	Anchor string
}

// Position is a stable, layout independent address into the document:
// (chapter, block, run, byte offset within the run text). Positions stay
// valid as long as the chapter's block/run sequence is unchanged and are
// never affected by viewport size, font or orientation.
type Position struct {
	Chapter int
	Block   int
	Run     int
	Offset  int
}

// Compare orders positions by reading order.
func (p Position) Compare(o Position) int {
	for _, d := range [4]int{p.Chapter - o.Chapter, p.Block - o.Block, p.Run - o.Run, p.Offset - o.Offset} {
		if d < 0 {
			return -1
		}
		if d > 0 {
			return 1
		}
	}
	return 0
}

func (p Position) Before(o Position) bool { return p.Compare(o) < 0 }

func (p Position) String() string {
	return fmt.Sprintf("%d:%d:%d:%d", p.Chapter, p.Block, p.Run, p.Offset)
}

// Encode flattens the position for persistence.
func (p Position) Encode() [4]int {
	return [4]int{p.Chapter, p.Block, p.Run, p.Offset}
}

// DecodePosition restores a position persisted with Encode.
func DecodePosition(v [4]int) Position {
	return Position{Chapter: v[0], Block: v[1], Run: v[2], Offset: v[3]}
}

// Source produces chapters on demand. Implementations live in the format
// parsers and must guarantee the run reconstruction invariant and produce
// fully entity-decoded UTF-8 text.
type Source interface {
	ChapterCount() int
	ChapterTitle(index int) string
	ParseChapter(index int) (*Chapter, error)
	Close() error
}

// ImageSource is implemented by sources whose container carries the book's
// embedded images.
type ImageSource interface {
	Image(id string) ([]byte, error)
}

// Document owns one opened book for the duration of a reading session.
// Chapters are parsed lazily and published write-once.
type Document struct {
	Title  string
	Format common.BookFormat

	source Source
	toc    []TOCEntry
	log    *zap.Logger

	mu       sync.Mutex
	chapters map[int]*Chapter
}

// NewDocument wraps a parser produced source into a session document.
func NewDocument(title string, format common.BookFormat, source Source, toc []TOCEntry, log *zap.Logger) *Document {
	return &Document{
		Title:    title,
		Format:   format,
		source:   source,
		toc:      toc,
		log:      log,
		chapters: make(map[int]*Chapter),
	}
}

func (d *Document) ChapterCount() int {
	return d.source.ChapterCount()
}

func (d *Document) TOC() []TOCEntry {
	return d.toc
}

// Chapter returns the parsed chapter, parsing and caching it on first
// access. A parse failure is not fatal for the session: the chapter is
// published empty with its error recorded and logged once.
func (d *Document) Chapter(index int) (*Chapter, error) {
	if index < 0 || index >= d.source.ChapterCount() {
		return nil, fmt.Errorf("chapter %d: %w", index, ErrOutOfRange)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.chapters[index]; ok {
		return c, nil
	}
	c, err := d.source.ParseChapter(index)
	if err != nil {
		d.log.Warn("Chapter failed to load, presenting empty",
			zap.Int("chapter", index), zap.Error(err))
		c = &Chapter{
			Title: d.source.ChapterTitle(index),
			Err:   fmt.Errorf("%w: %w", ErrChapterFailed, err),
		}
	}
	d.chapters[index] = c
	return c, nil
}

// Loaded reports whether the chapter was already parsed, without parsing it.
func (d *Document) Loaded(index int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.chapters[index]
	return ok
}

// Start returns the first position of the given chapter.
func (d *Document) Start(chapter int) Position {
	return Position{Chapter: chapter}
}

// Clamp resolves the nearest valid position for p, parsing the target
// chapter when needed. Positions beyond document bounds collapse to the
// closest boundary instead of failing.
func (d *Document) Clamp(p Position) Position {
	count := d.source.ChapterCount()
	if p.Chapter < 0 {
		return Position{}
	}
	if p.Chapter >= count {
		p = Position{Chapter: count - 1, Block: int(^uint(0) >> 1)}
	}
	c, err := d.Chapter(p.Chapter)
	if err != nil || len(c.Blocks) == 0 {
		return Position{Chapter: p.Chapter}
	}
	if p.Block < 0 {
		return Position{Chapter: p.Chapter}
	}
	if p.Block >= len(c.Blocks) {
		p.Block = len(c.Blocks) - 1
		p.Run = int(^uint(0) >> 1)
	}
	b := &c.Blocks[p.Block]
	if len(b.Runs) == 0 {
		p.Run, p.Offset = 0, 0
		return p
	}
	if p.Run < 0 {
		p.Run, p.Offset = 0, 0
		return p
	}
	if p.Run >= len(b.Runs) {
		p.Run = len(b.Runs) - 1
		p.Offset = len(b.Runs[p.Run].Text)
	}
	if p.Offset < 0 {
		p.Offset = 0
	} else if p.Offset > len(b.Runs[p.Run].Text) {
		p.Offset = len(b.Runs[p.Run].Text)
	}
	return p
}

// AnchorPosition locates an in-chapter anchor id, parsing the chapter when
// needed. Unknown anchors resolve to the chapter start.
func (d *Document) AnchorPosition(chapter int, anchor string) Position {
	if anchor == "" {
		return Position{Chapter: chapter}
	}
	c, err := d.Chapter(chapter)
	if err != nil {
		return Position{Chapter: chapter}
	}
	for bi := range c.Blocks {
		for _, a := range c.Blocks[bi].Anchors {
			if a == anchor {
				return Position{Chapter: chapter, Block: bi}
			}
		}
	}
	d.log.Debug("Anchor not found, using chapter start",
		zap.Int("chapter", chapter), zap.String("anchor", anchor))
	return Position{Chapter: chapter}
}

// Image returns the raw bytes of an embedded image referenced from a block
// or run, when the source format carries them.
func (d *Document) Image(id string) ([]byte, error) {
	if s, ok := d.source.(ImageSource); ok {
		return s.Image(id)
	}
	return nil, fmt.Errorf("image %q: %w", id, ErrNoImage)
}

// Close releases the underlying source.
func (d *Document) Close() error {
	return d.source.Close()
}
