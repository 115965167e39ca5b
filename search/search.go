// Package search scans a document for pattern matches without forcing the
// whole book into memory at once: chapters are parsed lazily as the cursor
// reaches them and results stream back as soon as they are found.
package search

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"

	"tbr/book"
)

// ErrInvalidPattern is returned when a query cannot be compiled. The wrapped
// error carries the regexp parser's diagnostics.
var ErrInvalidPattern = errors.New("invalid search pattern")

// Mode selects how the pattern is interpreted.
type Mode int

const (
	ModeSubstring Mode = iota
	ModeRegex
)

// Direction of the scan relative to the starting position.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// Query describes one search. Language selects the sentence model used for
// snippets; only English ships with the tokenizer, for other languages
// snippets are clipped without sentence bounding.
type Query struct {
	Pattern       string
	Mode          Mode
	CaseSensitive bool
	WholeWord     bool
	Direction     Direction
	Language      string
}

// Match is one occurrence: its stable position, the matched text and a
// sentence sized snippet for the results list.
type Match struct {
	Pos     book.Position
	Text    string
	Snippet string
	Chapter int
}

// tokenizerFor picks the sentence model for the query language. Only the
// English model is compiled in; for anything else sentence bounding is
// turned off and snippets degrade to a plain clipped window.
func tokenizerFor(lang string) (*sentences.DefaultSentenceTokenizer, error) {
	switch strings.ToLower(lang) {
	case "", "en", "english":
		return english.NewSentenceTokenizer(nil)
	default:
		return nil, nil
	}
}

// compile turns a query into a regexp. Substring queries are quoted first so
// metacharacters in them stay literal.
func compile(q Query) (*regexp.Regexp, error) {
	pattern := q.Pattern
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}
	if q.Mode == ModeSubstring {
		pattern = regexp.QuoteMeta(pattern)
	}
	if q.WholeWord {
		pattern = `\b(?:` + pattern + `)\b`
	}
	if !q.CaseSensitive {
		pattern = `(?i)` + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return re, nil
}

// Cursor iterates matches one at a time. It remembers where the last match
// ended, so repeated Next calls walk the whole document in the query's
// direction.
type Cursor struct {
	doc *book.Document
	re  *regexp.Regexp
	dir Direction

	tokenizer *sentences.DefaultSentenceTokenizer

	chapter int
	block   int
	from    book.Position
	primed  bool    // the block containing from has been filtered
	pending []Match // matches of the current block not yet handed out
}

// NewCursor compiles the query and positions the cursor at from. Forward
// scans report matches at or after from, backward scans report matches
// strictly before it, so restarting at a returned position never repeats
// ground already covered.
func NewCursor(doc *book.Document, q Query, from book.Position) (*Cursor, error) {
	re, err := compile(q)
	if err != nil {
		return nil, err
	}
	from = doc.Clamp(from)
	tok, err := tokenizerFor(q.Language)
	if err != nil {
		return nil, fmt.Errorf("loading sentence tokenizer: %w", err)
	}
	return &Cursor{
		doc:       doc,
		re:        re,
		dir:       q.Direction,
		tokenizer: tok,
		chapter:   from.Chapter,
		block:     from.Block,
		from:      from,
	}, nil
}

// Next returns the next match in scan order. ok is false once the document
// is exhausted; ctx cancellation aborts between blocks.
func (c *Cursor) Next(ctx context.Context) (Match, bool, error) {
	for {
		if len(c.pending) > 0 {
			m := c.pending[0]
			c.pending = c.pending[1:]
			return m, true, nil
		}
		if err := ctx.Err(); err != nil {
			return Match{}, false, err
		}
		if c.chapter < 0 || c.chapter >= c.doc.ChapterCount() {
			return Match{}, false, nil
		}
		chapter, err := c.doc.Chapter(c.chapter)
		if err != nil {
			return Match{}, false, err
		}
		if c.dir == Forward {
			if c.block >= len(chapter.Blocks) {
				c.chapter++
				c.block = 0
				continue
			}
		} else {
			if c.block < 0 {
				c.chapter--
				c.block = 1 << 30
				continue
			}
			if c.block >= len(chapter.Blocks) {
				c.block = len(chapter.Blocks) - 1
				continue
			}
		}

		c.pending = c.matchBlock(&chapter.Blocks[c.block], c.chapter, c.block)
		if !c.primed {
			// the starting block may hold matches the scan already left
			// behind, keep only the ones on our side of from
			c.primed = true
			kept := c.pending[:0]
			for _, m := range c.pending {
				if c.dir == Forward && !m.Pos.Before(c.from) {
					kept = append(kept, m)
				} else if c.dir == Backward && m.Pos.Before(c.from) {
					kept = append(kept, m)
				}
			}
			c.pending = kept
		}
		if c.dir == Forward {
			c.block++
		} else {
			c.block--
			// backward scans report a block's matches last-to-first
			for i, j := 0, len(c.pending)-1; i < j; i, j = i+1, j-1 {
				c.pending[i], c.pending[j] = c.pending[j], c.pending[i]
			}
		}
	}
}

// matchBlock runs the pattern over the block's full text and converts byte
// offsets back into run-relative positions.
func (c *Cursor) matchBlock(b *book.Block, chapter, block int) []Match {
	text := b.Text()
	if text == "" {
		return nil
	}
	idx := c.re.FindAllStringIndex(text, -1)
	if len(idx) == 0 {
		return nil
	}
	matches := make([]Match, 0, len(idx))
	for _, span := range idx {
		run, off := locate(b, span[0])
		matches = append(matches, Match{
			Pos:     book.Position{Chapter: chapter, Block: block, Run: run, Offset: off},
			Text:    text[span[0]:span[1]],
			Snippet: c.snippet(text, span[0], span[1]),
			Chapter: chapter,
		})
	}
	return matches
}

// locate maps a byte offset in the block's concatenated text onto the run
// containing it.
func locate(b *book.Block, offset int) (run, off int) {
	for i := range b.Runs {
		n := len(b.Runs[i].Text)
		if offset < n || (i == len(b.Runs)-1 && offset <= n) {
			return i, offset
		}
		offset -= n
	}
	return 0, 0
}

const maxSnippet = 200

// snippet extracts the sentence around a match, clipped to a sane display
// length.
func (c *Cursor) snippet(text string, start, end int) string {
	if c.tokenizer == nil {
		return clip(strings.TrimSpace(text), text[start:end])
	}
	scan := 0
	for _, s := range c.tokenizer.Tokenize(text) {
		rel := strings.Index(text[scan:], s.Text)
		if rel < 0 {
			continue
		}
		from := scan + rel
		to := from + len(s.Text)
		scan = to
		if start >= from && start < to {
			return clip(strings.TrimSpace(s.Text), text[start:end])
		}
	}
	return clip(strings.TrimSpace(text), text[start:end])
}

// clip shortens s to maxSnippet runes keeping the matched text visible.
func clip(s, match string) string {
	if len(s) <= maxSnippet {
		return s
	}
	at := strings.Index(s, match)
	if at < 0 {
		at = 0
	}
	from := at - maxSnippet/2
	if from < 0 {
		from = 0
	}
	for from > 0 && !isRuneStart(s[from]) {
		from--
	}
	to := from + maxSnippet
	if to > len(s) {
		to = len(s)
	}
	for to < len(s) && !isRuneStart(s[to]) {
		to++
	}
	return s[from:to]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
