package book

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode"

	"golang.org/x/net/html/charset"
)

// decodeText converts raw source bytes to UTF-8, sniffing the character set
// when it is not declared. contentType may carry a charset parameter from a
// container manifest and may be empty.
func decodeText(data []byte, contentType string) (string, error) {
	r, err := charset.NewReader(bytes.NewReader(data), contentType)
	if err != nil {
		return "", fmt.Errorf("unable to determine text encoding: %w", err)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("unable to decode text: %w", err)
	}
	return string(decoded), nil
}

// splitPlainLines turns decoded plain text into paragraph blocks: one block
// per non-empty source line, carriage returns dropped, leading whitespace
// trimmed. This mirrors how unstructured txt books are conventionally laid
// out - every physical line is a paragraph.
func splitPlainLines(text string) []Block {
	var blocks []Block
	var line strings.Builder
	flush := func() {
		if line.Len() == 0 {
			return
		}
		blocks = append(blocks, Block{
			Kind: BlockParagraph,
			Runs: []Run{{Text: line.String()}},
		})
		line.Reset()
	}
	for _, c := range text {
		switch {
		case c == '\r':
		case c == '\n':
			flush()
		case line.Len() > 0 || !unicode.IsSpace(c):
			line.WriteRune(c)
		}
	}
	flush()
	return blocks
}
