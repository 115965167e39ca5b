package book

import (
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"tbr/common"
)

// txtLoader opens plain text books: a single chapter, one paragraph block
// per physical line, character set detected from content.
type txtLoader struct{}

func (txtLoader) Format() common.BookFormat { return common.BookFormatTxt }

func (txtLoader) Accepts(name string, _ []byte) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".txt" || ext == ".log" || ext == ""
}

func (txtLoader) Load(name string, data []byte, _ *OpenOptions, log *zap.Logger) (*Document, error) {
	title := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	src := &txtSource{title: title, raw: data}
	return NewDocument(title, common.BookFormatTxt, src, nil, log), nil
}

type txtSource struct {
	title string
	raw   []byte
}

func (s *txtSource) ChapterCount() int { return 1 }

func (s *txtSource) ChapterTitle(int) string { return s.title }

func (s *txtSource) ParseChapter(int) (*Chapter, error) {
	text, err := decodeText(s.raw, "text/plain")
	if err != nil {
		return nil, err
	}
	return &Chapter{Title: s.title, Blocks: splitPlainLines(text)}, nil
}

func (s *txtSource) Close() error {
	s.raw = nil
	return nil
}
