// Package outline renders a human readable tree of a document's structure,
// used by troubleshooting commands to see what the parsers produced.
package outline

import (
	"fmt"
	"strconv"
	"strings"

	"tbr/book"
)

type Writer struct {
	w *strings.Builder
}

func NewWriter() *Writer {
	return &Writer{
		w: &strings.Builder{},
	}
}

func (ow Writer) String() string {
	return ow.w.String()
}

func (ow Writer) Line(depth int, format string, args ...any) {
	for range depth {
		ow.w.WriteString("  ")
	}
	fmt.Fprintf(ow.w, format, args...)
	ow.w.WriteByte('\n')
}

func (ow Writer) TextBlock(depth int, label, value string) {
	for range depth {
		ow.w.WriteString("  ")
	}
	ow.w.WriteString(label)
	ow.w.WriteString(": ")
	ow.w.WriteString(encodeText(value))
	ow.w.WriteByte('\n')
}

func encodeText(raw string) string {
	if raw == "" {
		return raw
	}
	return strconv.Quote(raw)
}

const textPreview = 60

// Document walks every chapter and prints the block and run structure with
// text previews. Parsing is forced for the whole book, so this is a
// diagnostic path, not a reading one.
func Document(doc *book.Document) (string, error) {
	ow := NewWriter()
	ow.Line(0, "document")
	ow.TextBlock(1, "title", doc.Title)
	ow.Line(1, "format %s, %d chapter(s)", doc.Format, doc.ChapterCount())
	for ci := 0; ci < doc.ChapterCount(); ci++ {
		chapter, err := doc.Chapter(ci)
		if err != nil {
			return "", fmt.Errorf("outlining chapter %d: %w", ci, err)
		}
		ow.Line(1, "chapter %d", ci)
		if chapter.Title != "" {
			ow.TextBlock(2, "title", chapter.Title)
		}
		if chapter.Err != nil {
			ow.Line(2, "unreadable: %v", chapter.Err)
			continue
		}
		for bi := range chapter.Blocks {
			block := &chapter.Blocks[bi]
			ow.Line(2, "block %d %s", bi, kindName(block))
			for _, anchor := range block.Anchors {
				ow.TextBlock(3, "anchor", anchor)
			}
			for ri, run := range block.Runs {
				ow.TextBlock(3, runLabel(ri, run), preview(run.Text))
			}
		}
	}
	return ow.String(), nil
}

func kindName(b *book.Block) string {
	switch b.Kind {
	case book.BlockHeading:
		return fmt.Sprintf("heading(%d)", b.Level)
	case book.BlockImage:
		return "image " + b.ImageID
	case book.BlockDivider:
		return "divider"
	default:
		return "paragraph"
	}
}

func runLabel(index int, run book.Run) string {
	var flags []string
	if run.Flags.Has(book.StyleBold) {
		flags = append(flags, "b")
	}
	if run.Flags.Has(book.StyleItalic) {
		flags = append(flags, "i")
	}
	if run.Flags.Has(book.StyleEmphasis) {
		flags = append(flags, "em")
	}
	if run.Link != nil {
		flags = append(flags, "link")
	}
	if len(flags) == 0 {
		return fmt.Sprintf("run %d", index)
	}
	return fmt.Sprintf("run %d [%s]", index, strings.Join(flags, ","))
}

func preview(text string) string {
	if len(text) <= textPreview {
		return text
	}
	cut := textPreview
	for cut > 0 && text[cut]&0xC0 == 0x80 {
		cut--
	}
	return text[:cut] + "..."
}
