// Package session holds the mutable per-book reading state: the current
// position, the navigation trace and link cycling. Layout and rendering stay
// out of it, so the state survives viewport and orientation changes
// unchanged.
package session

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"tbr/book"
)

var (
	// ErrNoHistory is returned when the trace has nothing to go back or
	// forward to.
	ErrNoHistory = errors.New("no history entry")
	// ErrNoLink is returned when no hyperlink can be cycled to from the
	// current position.
	ErrNoLink = errors.New("no link at or beyond position")
)

// Session tracks one open book. Not safe for concurrent use: it belongs to
// the UI loop, background workers talk to it through the loop.
type Session struct {
	doc *book.Document
	log *zap.Logger

	pos    book.Position
	trace  []book.Position
	cursor int // index of the current entry in trace
	depth  int // maximum trace length
	wrap   bool
}

// New starts a reading session at pos (clamped). depth bounds the trace; a
// non-positive value disables history. wrap controls whether link cycling
// wraps around document edges.
func New(doc *book.Document, pos book.Position, depth int, wrap bool, log *zap.Logger) *Session {
	s := &Session{
		doc:   doc,
		log:   log,
		pos:   doc.Clamp(pos),
		depth: depth,
		wrap:  wrap,
	}
	if depth > 0 {
		s.trace = append(s.trace, s.pos)
		s.cursor = 0
	}
	return s
}

// Position returns the current reading position.
func (s *Session) Position() book.Position {
	return s.pos
}

// Document returns the session's document.
func (s *Session) Document() *book.Document {
	return s.doc
}

// Move sets the current position without touching the trace. Plain paging
// uses it: turning pages is not a jump worth remembering.
func (s *Session) Move(pos book.Position) {
	s.pos = s.doc.Clamp(pos)
	if s.depth > 0 {
		s.trace[s.cursor] = s.pos
	}
}

// Goto jumps to pos and records the jump. Entries ahead of the cursor are
// discarded, the way a browser forgets its forward stack on a new
// navigation.
func (s *Session) Goto(pos book.Position) {
	pos = s.doc.Clamp(pos)
	if s.depth <= 0 {
		s.pos = pos
		return
	}
	s.trace = append(s.trace[:s.cursor+1], pos)
	if len(s.trace) > s.depth {
		s.trace = s.trace[len(s.trace)-s.depth:]
	}
	s.cursor = len(s.trace) - 1
	s.pos = pos
}

// Back moves one entry back in the trace.
func (s *Session) Back() (book.Position, error) {
	if s.depth <= 0 || s.cursor == 0 {
		return s.pos, ErrNoHistory
	}
	s.cursor--
	s.pos = s.trace[s.cursor]
	return s.pos, nil
}

// Forward re-follows a jump undone by Back.
func (s *Session) Forward() (book.Position, error) {
	if s.depth <= 0 || s.cursor >= len(s.trace)-1 {
		return s.pos, ErrNoHistory
	}
	s.cursor++
	s.pos = s.trace[s.cursor]
	return s.pos, nil
}

// NextChapter jumps to the start of the following chapter.
func (s *Session) NextChapter() (book.Position, error) {
	if s.pos.Chapter+1 >= s.doc.ChapterCount() {
		return s.pos, fmt.Errorf("already in the last chapter: %w", book.ErrOutOfRange)
	}
	s.Goto(book.Position{Chapter: s.pos.Chapter + 1})
	return s.pos, nil
}

// PrevChapter jumps to the start of the current chapter, or of the previous
// one when already there.
func (s *Session) PrevChapter() (book.Position, error) {
	start := book.Position{Chapter: s.pos.Chapter}
	if s.pos.Compare(start) > 0 {
		s.Goto(start)
		return s.pos, nil
	}
	if s.pos.Chapter == 0 {
		return s.pos, fmt.Errorf("already in the first chapter: %w", book.ErrOutOfRange)
	}
	s.Goto(book.Position{Chapter: s.pos.Chapter - 1})
	return s.pos, nil
}

// FollowLink resolves a hyperlink target relative to the current chapter and
// jumps there.
func (s *Session) FollowLink(link *book.LinkTarget) (book.Position, error) {
	if link == nil {
		return s.pos, ErrNoLink
	}
	chapter := link.Chapter
	if chapter < 0 {
		chapter = s.pos.Chapter
	}
	if link.Anchor == "" {
		s.Goto(book.Position{Chapter: chapter})
		return s.pos, nil
	}
	target := s.doc.AnchorPosition(chapter, link.Anchor)
	s.Goto(target)
	return s.pos, nil
}

// NextLink finds the first hyperlink run strictly after pos in reading
// order. With wrap enabled the scan continues from the document start.
func (s *Session) NextLink(pos book.Position) (book.Position, *book.LinkTarget, error) {
	found, link, err := s.scanLinks(pos, +1)
	if err == nil || !s.wrap {
		return found, link, err
	}
	return s.scanLinks(book.Position{Run: -1, Offset: -1}, +1)
}

// PrevLink finds the last hyperlink run strictly before pos.
func (s *Session) PrevLink(pos book.Position) (book.Position, *book.LinkTarget, error) {
	found, link, err := s.scanLinks(pos, -1)
	if err == nil || !s.wrap {
		return found, link, err
	}
	last := s.doc.ChapterCount() - 1
	return s.scanLinks(book.Position{Chapter: last, Block: 1 << 30}, -1)
}

// scanLinks walks runs in reading order (dir +1) or reverse (dir -1),
// returning the first link run strictly beyond pos. Only loaded or parseable
// chapters are visited; a failed chapter is empty and skipped naturally.
func (s *Session) scanLinks(pos book.Position, dir int) (book.Position, *book.LinkTarget, error) {
	count := s.doc.ChapterCount()
	for ch := pos.Chapter; ch >= 0 && ch < count; ch += dir {
		chapter, err := s.doc.Chapter(ch)
		if err != nil {
			return pos, nil, err
		}
		blocks := chapter.Blocks
		if dir > 0 {
			first := 0
			if ch == pos.Chapter {
				first = pos.Block
			}
			if first < 0 {
				first = 0
			}
			for bi := first; bi < len(blocks); bi++ {
				for ri := 0; ri < len(blocks[bi].Runs); ri++ {
					at := book.Position{Chapter: ch, Block: bi, Run: ri}
					if !pos.Before(at) {
						continue
					}
					if blocks[bi].Runs[ri].Link != nil {
						return at, blocks[bi].Runs[ri].Link, nil
					}
				}
			}
		} else {
			for bi := len(blocks) - 1; bi >= 0; bi-- {
				for ri := len(blocks[bi].Runs) - 1; ri >= 0; ri-- {
					at := book.Position{Chapter: ch, Block: bi, Run: ri}
					if !at.Before(pos) {
						continue
					}
					if blocks[bi].Runs[ri].Link != nil {
						return at, blocks[bi].Runs[ri].Link, nil
					}
				}
			}
		}
	}
	return pos, nil, ErrNoLink
}
