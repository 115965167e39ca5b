package book

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"

	"tbr/common"
)

// Haodoo Palm database books, per the layout published at
// http://www.haodoo.net/?M=hd&P=mPDB22:
//
//   - 78 byte header; bytes 64..68 identify the flavor: "MTIT" is a PDB
//     (Big5 text), "MTIU" is a uPDB (UTF-16LE text), "REAd" is a plain
//     PalmDoc.
//   - bytes 76..78 hold the record count N+2: record 0 describes the book
//     (8 filler bytes, title, three ESC separators, ASCII chapter count,
//     ESC, then chapter titles), records 1..N are chapter texts, the last
//     record is a stored bookmark which we ignore.
//   - after the header come N+2 eight-byte entries, the first four bytes of
//     each being the record's file offset.
//
// Mid-book records of some PDB files are scrambled behind a marker line;
// such chapters are decoded with the published unscrambling rule.

const (
	pdbHeaderLength      = 78
	pdbIDOffset          = 64
	pdbIDLength          = 4
	pdbRecordCountOffset = 76

	pdbID     = "MTIT"
	updbID    = "MTIU"
	palmDocID = "REAd"
)

var (
	pdbSeparator        = []byte{0x1b}
	updbEscapeSeparator = []byte{0x1b, 0x00}
	updbTitleSeparator  = []byte{0x0d, 0x00, 0x0a, 0x00}

	// "★★★★★★★ (content below cannot be displayed) ★★★★★★★" in Big5
	pdbEncryptMark = []byte{
		0xA1, 0xB9, 0xA1, 0xB9, 0xA1, 0xB9, 0xA1, 0xB9, 0xA1, 0xB9, 0xA1, 0xB9, 0x0D, 0x0A,
		0xA1, 0xB9, 0xA5, 0x48, 0xA4, 0x55, 0xA4, 0xBA, 0xAE, 0x65, 0xA1, 0xB9, 0x0D, 0x0A,
		0xA1, 0xB9, 0xA1, 0x6F, 0xA5, 0xBB, 0xAA, 0xA9, 0xA1, 0x70, 0xA1, 0xB9, 0x0D, 0x0A,
		0xA1, 0xB9, 0xB5, 0x4C, 0xAA, 0x6B, 0xC5, 0xE3, 0xA5, 0xDC, 0xA1, 0xB9, 0x0D, 0x0A,
		0xA1, 0xB9, 0xA1, 0xB9, 0xA1, 0xB9, 0xA1, 0xB9, 0xA1, 0xB9, 0xA1, 0xB9, 0x0D, 0x0A,
	}
)

type haodooLoader struct{}

func (haodooLoader) Format() common.BookFormat { return common.BookFormatHaodoo }

func (haodooLoader) Accepts(name string, data []byte) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdb", ".updb":
		return true
	}
	if len(data) < pdbHeaderLength {
		return false
	}
	switch string(data[pdbIDOffset : pdbIDOffset+pdbIDLength]) {
	case pdbID, updbID, palmDocID:
		return true
	}
	return false
}

func (haodooLoader) Load(name string, data []byte, _ *OpenOptions, log *zap.Logger) (*Document, error) {
	src, err := parsePDB(data, log)
	if err != nil {
		return nil, err
	}
	title := src.title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	}
	var toc []TOCEntry
	if len(src.titles) > 1 {
		toc = make([]TOCEntry, len(src.titles))
		for i, t := range src.titles {
			toc[i] = TOCEntry{Title: t, Pos: Position{Chapter: i}}
		}
	}
	return NewDocument(title, common.BookFormatHaodoo, src, toc, log), nil
}

type pdbKind int

const (
	kindPDB pdbKind = iota
	kindUPDB
	kindPalmDoc
)

type pdbSource struct {
	data    []byte
	log     *zap.Logger
	kind    pdbKind
	decoder *encoding.Decoder
	offsets []int

	title  string
	titles []string

	// index of the first scrambled chapter, -1 when the book is clean
	encryptFrom int

	palmBlocks []Block // PalmDoc text is a single eagerly decoded chapter
}

func parsePDB(data []byte, log *zap.Logger) (*pdbSource, error) {
	if len(data) < pdbHeaderLength {
		return nil, fmt.Errorf("file too short for a PDB header: %d bytes", len(data))
	}
	src := &pdbSource{data: data, log: log, encryptFrom: -1}

	id := string(data[pdbIDOffset : pdbIDOffset+pdbIDLength])
	switch id {
	case pdbID:
		src.kind = kindPDB
		src.decoder = traditionalchinese.Big5.NewDecoder()
	case updbID:
		src.kind = kindUPDB
		src.decoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	case palmDocID:
		src.kind = kindPalmDoc
	default:
		return nil, fmt.Errorf("not a Haodoo book, id %q", id)
	}

	recordCount := int(binary.BigEndian.Uint16(data[pdbRecordCountOffset:]))
	tableEnd := pdbHeaderLength + 8*recordCount
	if recordCount == 0 || len(data) < tableEnd {
		return nil, fmt.Errorf("PDB record table truncated: %d records, %d bytes", recordCount, len(data))
	}
	src.offsets = make([]int, recordCount)
	for i := range recordCount {
		src.offsets[i] = int(binary.BigEndian.Uint32(data[pdbHeaderLength+i*8:]))
	}

	if err := src.loadTOC(); err != nil {
		return nil, err
	}
	return src, nil
}

func (s *pdbSource) record(index int) ([]byte, error) {
	if index < 0 || index >= len(s.offsets) {
		return nil, fmt.Errorf("invalid record index: %d", index)
	}
	start := s.offsets[index]
	end := len(s.data)
	if index < len(s.offsets)-1 {
		end = s.offsets[index+1]
	}
	if start > end || end > len(s.data) {
		return nil, fmt.Errorf("record %d out of file bounds: %d..%d", index, start, end)
	}
	return s.data[start:end], nil
}

func (s *pdbSource) loadTOC() error {
	record, err := s.record(0)
	if err != nil {
		return err
	}
	switch s.kind {
	case kindPDB:
		// record tail is the terminating NUL of the Big5 string
		if err := s.parseTitleRecord(record, pdbSeparator, pdbSeparator, 1); err != nil {
			return err
		}
		return s.detectScrambling()
	case kindUPDB:
		return s.parseTitleRecord(record, updbEscapeSeparator, updbTitleSeparator, 0)
	case kindPalmDoc:
		return s.loadPalmDoc(record)
	}
	return nil
}

// parseTitleRecord picks record 0 apart: title, chapter count, chapter titles.
func (s *pdbSource) parseTitleRecord(record, escape, titleSplitter []byte, recordTail int) error {
	if len(record) < 8 {
		return fmt.Errorf("title record too short: %d bytes", len(record))
	}
	rel := bytes.Index(record[8:], escape)
	if rel < 0 {
		return fmt.Errorf("malformed title record: no title terminator")
	}
	title, err := s.decode(record[8 : 8+rel])
	if err != nil {
		return err
	}
	s.title = strings.TrimSpace(title)

	// skip the three ESC after the title, then the chapter count string
	pos := 8 + rel + 3*len(escape)
	if pos >= len(record) {
		return fmt.Errorf("malformed title record: truncated after title")
	}
	rel = bytes.Index(record[pos:], escape)
	if rel < 0 {
		return fmt.Errorf("malformed title record: no chapter count terminator")
	}
	countText, err := s.decode(record[pos : pos+rel])
	if err != nil {
		return err
	}
	declared, err := strconv.Atoi(strings.TrimSpace(countText))
	if err != nil {
		return fmt.Errorf("malformed chapter count %q: %w", countText, err)
	}
	pos += rel + len(escape)

	for {
		rel = bytes.Index(record[pos:], titleSplitter)
		if rel < 0 {
			break
		}
		title, err := s.decode(record[pos : pos+rel])
		if err != nil {
			return err
		}
		s.titles = append(s.titles, title)
		pos += rel + len(titleSplitter)
	}
	if pos < len(record)-1 {
		title, err := s.decode(record[pos : len(record)-recordTail])
		if err != nil {
			return err
		}
		s.titles = append(s.titles, title)
	}

	if declared != len(s.titles) {
		s.log.Debug("Chapter count mismatch in title record",
			zap.Int("declared", declared), zap.Int("parsed", len(s.titles)))
	}
	if len(s.titles) == 0 {
		return fmt.Errorf("book has no chapters")
	}
	return nil
}

// detectScrambling probes the middle record for the scrambling marker; when
// found, that chapter and everything after it needs unscrambling.
func (s *pdbSource) detectScrambling() error {
	probe := len(s.offsets) / 2
	record, err := s.record(probe)
	if err != nil {
		return err
	}
	if bytes.HasPrefix(record, pdbEncryptMark) {
		s.encryptFrom = probe - 1
		s.log.Debug("Scrambled Haodoo book", zap.Int("first_chapter", s.encryptFrom))
	}
	return nil
}

func (s *pdbSource) loadPalmDoc(record0 []byte) error {
	if len(record0) < 10 {
		return fmt.Errorf("PalmDoc header record too short: %d bytes", len(record0))
	}
	compressed := record0[1] == 2
	textRecords := int(binary.BigEndian.Uint16(record0[8:]))
	var text bytes.Buffer
	for i := 1; i <= textRecords && i < len(s.offsets); i++ {
		record, err := s.record(i)
		if err != nil {
			return err
		}
		if compressed {
			record = decompressPalmDoc(record)
		}
		text.Write(record)
	}
	decoded, err := decodeText(text.Bytes(), "text/plain")
	if err != nil {
		return err
	}
	s.titles = []string{""}
	s.palmBlocks = splitPlainLines(decoded)
	return nil
}

func (s *pdbSource) decode(raw []byte) (string, error) {
	if s.decoder == nil {
		return string(raw), nil
	}
	decoded, err := s.decoder.Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("unable to decode record text: %w", err)
	}
	return string(decoded), nil
}

func (s *pdbSource) ChapterCount() int { return len(s.titles) }

func (s *pdbSource) ChapterTitle(index int) string {
	if index < 0 || index >= len(s.titles) {
		return ""
	}
	return s.titles[index]
}

func (s *pdbSource) ParseChapter(index int) (*Chapter, error) {
	if s.kind == kindPalmDoc {
		return &Chapter{Blocks: s.palmBlocks}, nil
	}
	record, err := s.record(index + 1)
	if err != nil {
		return nil, err
	}
	if s.kind == kindPDB {
		// strip the terminating NUL of the Big5 string
		record = bytes.TrimSuffix(record, []byte{0})
		if s.encryptFrom >= 0 && index >= s.encryptFrom {
			record = unscramblePDB(record)
			if index == s.encryptFrom && len(record) >= len(pdbEncryptMark) {
				// the marker line itself is not book text
				record = record[len(pdbEncryptMark):]
			}
		}
	}
	text, err := s.decode(record)
	if err != nil {
		return nil, err
	}
	return &Chapter{Title: s.titles[index], Blocks: splitPlainLines(text)}, nil
}

func (s *pdbSource) Close() error {
	s.data = nil
	return nil
}

// unscramblePDB undoes the Haodoo byte scrambling: after every lead byte
// (>= 0x80) the following byte is decremented, wrapping 0 to 0x7F.
func unscramblePDB(record []byte) []byte {
	out := append([]byte{}, record...)
	for i := 0; i < len(out); i++ {
		if out[i] >= 128 {
			i++
			if i >= len(out) {
				break
			}
			if out[i] == 0 {
				out[i] = 127
			} else {
				out[i]--
			}
		}
	}
	return out
}

// decompressPalmDoc expands PalmDoc LZ77 compressed text records.
func decompressPalmDoc(data []byte) []byte {
	var out []byte
	for i := 0; i < len(data); {
		c := data[i]
		i++
		switch {
		case c >= 0xC0:
			// space + char
			out = append(out, ' ', c^0x80)
		case c >= 0x80:
			// sliding window sequence
			if i >= len(data) {
				return out
			}
			v := uint32(c)<<8 | uint32(data[i])
			i++
			length := 3 + int(v&0x0007)
			distance := int(v>>3) & 0x07FF
			from := len(out) - distance
			if from < 0 || from >= len(out) {
				return out
			}
			for range length {
				out = append(out, out[from])
				from++
			}
		case c >= 0x09:
			out = append(out, c)
		case c >= 0x01:
			// next c bytes are literal
			for range int(c) {
				if i >= len(data) {
					return out
				}
				out = append(out, data[i])
				i++
			}
		default:
			out = append(out, c)
		}
	}
	return out
}
