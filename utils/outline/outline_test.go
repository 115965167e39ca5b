package outline

import (
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"tbr/book"
	"tbr/common"
)

type stubSource struct {
	chapters []*book.Chapter
}

func (s *stubSource) ChapterCount() int             { return len(s.chapters) }
func (s *stubSource) ChapterTitle(index int) string { return s.chapters[index].Title }
func (s *stubSource) ParseChapter(index int) (*book.Chapter, error) {
	return s.chapters[index], nil
}
func (s *stubSource) Close() error { return nil }

func TestWriterIndentation(t *testing.T) {
	ow := NewWriter()
	ow.Line(0, "root")
	ow.Line(1, "child %d", 7)
	ow.TextBlock(2, "label", "value with \"quotes\"")
	ow.TextBlock(1, "empty", "")

	want := "root\n" +
		"  child 7\n" +
		"    label: \"value with \\\"quotes\\\"\"\n" +
		"  empty: \n"
	if got := ow.String(); got != want {
		t.Errorf("output:\n%q\nwant:\n%q", got, want)
	}
}

func TestDocumentOutline(t *testing.T) {
	src := &stubSource{chapters: []*book.Chapter{
		{Title: "Intro", Blocks: []book.Block{
			{Kind: book.BlockHeading, Level: 1, Runs: []book.Run{{Text: "Intro"}}},
			{Kind: book.BlockParagraph, Anchors: []string{"p1"}, Runs: []book.Run{
				{Text: "plain "},
				{Text: "loud", Flags: book.StyleBold},
				{Text: "ref", Link: &book.LinkTarget{Chapter: 1}},
			}},
			{Kind: book.BlockImage, ImageID: "cover.png"},
			{Kind: book.BlockDivider},
		}},
	}}
	doc := book.NewDocument("Outlined", common.BookFormatEpub, src, nil, zaptest.NewLogger(t))

	out, err := Document(doc)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	for _, want := range []string{
		`title: "Outlined"`,
		"chapter 0",
		"block 0 heading(1)",
		`anchor: "p1"`,
		"run 1 [b]",
		"run 2 [link]",
		"block 2 image cover.png",
		"block 3 divider",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("outline missing %q:\n%s", want, out)
		}
	}
}

func TestPreviewTruncatesAtRuneBoundary(t *testing.T) {
	long := strings.Repeat("漢", 30) // 90 bytes
	got := preview(long)
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("long text not truncated: %q", got)
	}
	body := strings.TrimSuffix(got, "...")
	if len(body) > textPreview {
		t.Errorf("preview body %d bytes", len(body))
	}
	for _, r := range body {
		if r != '漢' {
			t.Errorf("rune mangled: %q", body)
		}
	}
	if short := preview("short"); short != "short" {
		t.Errorf("short preview = %q", short)
	}
}
