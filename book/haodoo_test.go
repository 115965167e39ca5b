package book

import (
	"bytes"
	"encoding/binary"
	"testing"

	"go.uber.org/zap/zaptest"

	"tbr/common"
)

// buildPDB assembles a Palm database from raw records: 78 byte header with
// the flavor id and record count, the offset table, then the record data.
func buildPDB(id string, records [][]byte) []byte {
	header := make([]byte, pdbHeaderLength)
	copy(header[pdbIDOffset:], id)
	binary.BigEndian.PutUint16(header[pdbRecordCountOffset:], uint16(len(records)))

	offset := pdbHeaderLength + 8*len(records)
	var table bytes.Buffer
	for _, r := range records {
		var entry [8]byte
		binary.BigEndian.PutUint32(entry[:], uint32(offset))
		table.Write(entry[:])
		offset += len(r)
	}

	out := bytes.NewBuffer(header)
	out.Write(table.Bytes())
	for _, r := range records {
		out.Write(r)
	}
	return out.Bytes()
}

func utf16le(s string) []byte {
	var out []byte
	for _, r := range s {
		if r < 0x10000 {
			out = append(out, byte(r), byte(r>>8))
			continue
		}
		r -= 0x10000
		hi := 0xD800 + (r >> 10)
		lo := 0xDC00 + (r & 0x3FF)
		out = append(out, byte(hi), byte(hi>>8), byte(lo), byte(lo>>8))
	}
	return out
}

// scramblePDB is the inverse of unscramblePDB, used to fabricate scrambled
// fixtures: after every lead byte the following byte is incremented, 0x7F
// wrapping to 0.
func scramblePDB(record []byte) []byte {
	out := append([]byte{}, record...)
	for i := 0; i < len(out); i++ {
		if out[i] >= 128 {
			i++
			if i >= len(out) {
				break
			}
			if out[i] == 127 {
				out[i] = 0
			} else {
				out[i]++
			}
		}
	}
	return out
}

func updbTitleRecord(title, count string, chapters ...string) []byte {
	var r bytes.Buffer
	r.Write(make([]byte, 8))
	r.Write(utf16le(title))
	r.Write(updbEscapeSeparator)
	r.Write(updbEscapeSeparator)
	r.Write(updbEscapeSeparator)
	r.Write(utf16le(count))
	r.Write(updbEscapeSeparator)
	for i, c := range chapters {
		if i > 0 {
			r.Write(updbTitleSeparator)
		}
		r.Write(utf16le(c))
	}
	return r.Bytes()
}

func pdbTitleRecord(title, count string, chapters ...string) []byte {
	var r bytes.Buffer
	r.Write(make([]byte, 8))
	r.WriteString(title)
	r.Write(pdbSeparator)
	r.Write(pdbSeparator)
	r.Write(pdbSeparator)
	r.WriteString(count)
	r.Write(pdbSeparator)
	for i, c := range chapters {
		if i > 0 {
			r.Write(pdbSeparator)
		}
		r.WriteString(c)
	}
	r.WriteByte(0)
	return r.Bytes()
}

func TestHaodooAccepts(t *testing.T) {
	l := haodooLoader{}
	if !l.Accepts("book.pdb", nil) || !l.Accepts("BOOK.uPDB", nil) {
		t.Error("extension not accepted")
	}
	if l.Accepts("book.epub", []byte("tiny")) {
		t.Error("accepted a non-PDB")
	}
	data := buildPDB(updbID, [][]byte{updbTitleRecord("t", "1", "c"), utf16le("x"), {0}})
	if !l.Accepts("noextension", data) {
		t.Error("magic id not accepted")
	}
}

func TestUPDBBook(t *testing.T) {
	data := buildPDB(updbID, [][]byte{
		updbTitleRecord("測試書", "2", "第一章", "第二章"),
		utf16le("第一章內容\n第二段"),
		utf16le("第二章內容"),
		{0, 0, 0, 0}, // stored bookmark record, ignored
	})

	doc, err := Load("book.updb", data, nil, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer doc.Close()

	if doc.Format != common.BookFormatHaodoo {
		t.Errorf("format = %v", doc.Format)
	}
	if doc.Title != "測試書" {
		t.Errorf("title = %q", doc.Title)
	}
	if doc.ChapterCount() != 2 {
		t.Fatalf("chapters = %d", doc.ChapterCount())
	}

	toc := doc.TOC()
	if len(toc) != 2 || toc[0].Title != "第一章" || toc[1].Title != "第二章" {
		t.Errorf("toc = %+v", toc)
	}
	if toc[1].Pos != (Position{Chapter: 1}) {
		t.Errorf("toc[1].Pos = %v", toc[1].Pos)
	}

	c, err := doc.Chapter(0)
	if err != nil {
		t.Fatalf("Chapter(0): %v", err)
	}
	if len(c.Blocks) != 2 || c.Blocks[0].Text() != "第一章內容" || c.Blocks[1].Text() != "第二段" {
		t.Errorf("chapter 0 blocks = %+v", c.Blocks)
	}
	c, err = doc.Chapter(1)
	if err != nil {
		t.Fatalf("Chapter(1): %v", err)
	}
	if len(c.Blocks) != 1 || c.Blocks[0].Text() != "第二章內容" {
		t.Errorf("chapter 1 blocks = %+v", c.Blocks)
	}
}

func TestPDBBook(t *testing.T) {
	// ASCII is a Big5 subset, good enough for a clean-book fixture
	data := buildPDB(pdbID, [][]byte{
		pdbTitleRecord("My Book", "2", "One", "Two"),
		append([]byte("first chapter\nsecond line"), 0),
		append([]byte("second chapter"), 0),
		{0, 0, 0, 0},
	})

	doc, err := Load("book.pdb", data, nil, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer doc.Close()

	if doc.Title != "My Book" {
		t.Errorf("title = %q", doc.Title)
	}
	if doc.ChapterCount() != 2 {
		t.Fatalf("chapters = %d", doc.ChapterCount())
	}
	c, err := doc.Chapter(0)
	if err != nil {
		t.Fatalf("Chapter(0): %v", err)
	}
	if len(c.Blocks) != 2 || c.Blocks[0].Text() != "first chapter" {
		t.Errorf("chapter 0 blocks = %+v", c.Blocks)
	}
	c, err = doc.Chapter(1)
	if err != nil {
		t.Fatalf("Chapter(1): %v", err)
	}
	if c.Blocks[0].Text() != "second chapter" {
		t.Errorf("chapter 1 = %q", c.Blocks[0].Text())
	}
}

func TestPDBScrambledBook(t *testing.T) {
	// 中文 in Big5
	clear := []byte{0xA4, 0xA4, 0xA4, 0xE5}
	scrambled := append(append([]byte{}, pdbEncryptMark...), scramblePDB(clear)...)
	scrambled = append(scrambled, 0)

	// the middle record (index 2 of 4) carries the marker, so chapter 1 and
	// everything after it is scrambled while chapter 0 stays plain
	data := buildPDB(pdbID, [][]byte{
		pdbTitleRecord("Locked", "2", "One", "Two"),
		append([]byte("plain text"), 0),
		scrambled,
		{0, 0, 0, 0},
	})

	doc, err := Load("book.pdb", data, nil, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer doc.Close()

	c, err := doc.Chapter(0)
	if err != nil {
		t.Fatalf("Chapter(0): %v", err)
	}
	if c.Blocks[0].Text() != "plain text" {
		t.Errorf("chapter 0 = %q", c.Blocks[0].Text())
	}
	c, err = doc.Chapter(1)
	if err != nil {
		t.Fatalf("Chapter(1): %v", err)
	}
	if len(c.Blocks) != 1 || c.Blocks[0].Text() != "中文" {
		t.Errorf("scrambled chapter = %+v", c.Blocks)
	}
}

func TestUnscrambleRoundTrip(t *testing.T) {
	samples := [][]byte{
		{0xA4, 0xA4, 0xA4, 0xE5, 0x0D, 0x0A, 0x41},
		{0x80, 0x7F, 0x80, 0x00, 0xFF, 0x01},
		{0x41, 0x42, 0x43},
		{0x80}, // lead byte with nothing after it
		{},
	}
	for _, s := range samples {
		if got := unscramblePDB(scramblePDB(s)); !bytes.Equal(got, s) {
			t.Errorf("round trip of % x = % x", s, got)
		}
	}
}

func TestPalmDocBook(t *testing.T) {
	// compressed record: "Hello " literal bytes, then a window reference
	// reaching six bytes back for five, then a space+char token
	compressed := append([]byte("Hello "), 0x80, 0x32, 0xE1)

	header := make([]byte, 16)
	header[1] = 2 // compressed
	binary.BigEndian.PutUint16(header[8:], 1)

	data := buildPDB(palmDocID, [][]byte{header, compressed})

	doc, err := Load("story.pdb", data, nil, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer doc.Close()

	if doc.Title != "story" {
		t.Errorf("title = %q", doc.Title)
	}
	if doc.ChapterCount() != 1 {
		t.Fatalf("chapters = %d", doc.ChapterCount())
	}
	c, err := doc.Chapter(0)
	if err != nil {
		t.Fatalf("Chapter: %v", err)
	}
	if len(c.Blocks) != 1 || c.Blocks[0].Text() != "Hello Hello a" {
		t.Errorf("blocks = %+v", c.Blocks)
	}
}

func TestDecompressPalmDoc(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"plain bytes", []byte("plain"), "plain"},
		{"space char token", []byte{0xE1, 0xF4}, " a t"},
		{"literal run", []byte{0x02, 0x80, 0x41, 0x42}, "\x80AB"},
		{"window reference", append([]byte("abcdef"), 0x80, 0x33), "abcdefabcdef"},
		{"overlapping window", append([]byte("ab"), 0x80, 0x13), "abababab"},
		{"nul byte", []byte{0x41, 0x00, 0x42}, "A\x00B"},
		{"truncated window token", []byte{0x41, 0x80}, "A"},
		{"zero distance window token", []byte{0x61, 0x80, 0x00}, "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(decompressPalmDoc(tt.in)); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPDBTruncatedInputs(t *testing.T) {
	if _, err := parsePDB([]byte("short"), zaptest.NewLogger(t)); err == nil {
		t.Error("short file accepted")
	}
	header := make([]byte, pdbHeaderLength)
	copy(header[pdbIDOffset:], pdbID)
	if _, err := parsePDB(header, zaptest.NewLogger(t)); err == nil {
		t.Error("zero record file accepted")
	}
	binary.BigEndian.PutUint16(header[pdbRecordCountOffset:], 9)
	if _, err := parsePDB(header, zaptest.NewLogger(t)); err == nil {
		t.Error("truncated record table accepted")
	}
}
