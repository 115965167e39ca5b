package book

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"tbr/common"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("zip create %q: %v", name, err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %q: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

const testContainerXML = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const testOPF = `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Sample Book</dc:title>
  </metadata>
  <manifest>
    <item id="ch1" href="ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch2" href="ch2.xhtml" media-type="application/xhtml+xml"/>
    <item id="css" href="style.css" media-type="text/css"/>
    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
    <item id="cover" href="cover.jpg" media-type="image/jpeg"/>
  </manifest>
  <spine toc="ncx">
    <itemref idref="ch1"/>
    <itemref idref="cover"/>
    <itemref idref="ch2"/>
  </spine>
</package>`

const testNCX = `<?xml version="1.0"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <navMap>
    <navPoint id="n1"><navLabel><text>Chapter One</text></navLabel>
      <content src="ch1.xhtml"/>
      <navPoint id="n1a"><navLabel><text>Deep Section</text></navLabel>
        <content src="ch2.xhtml#sec"/>
      </navPoint>
    </navPoint>
    <navPoint id="n2"><navLabel><text>Chapter Two</text></navLabel>
      <content src="ch2.xhtml"/>
    </navPoint>
  </navMap>
</ncx>`

func sampleEPUB(t *testing.T) []byte {
	t.Helper()
	return buildZip(t, map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": testContainerXML,
		"OEBPS/content.opf":      testOPF,
		"OEBPS/toc.ncx":          testNCX,
		"OEBPS/style.css":        ".strong { font-weight: bold; }",
		"OEBPS/ch1.xhtml": `<html><body><h1>One</h1>
			<p>Go to the <a href="ch2.xhtml#sec">section</a>.</p></body></html>`,
		"OEBPS/ch2.xhtml": `<html><body>
			<p><span class="strong">Heavy</span> text.</p>
			<p id="sec">The section itself.</p>
			<p><a href="#sec">up</a> and <a href="missing.xhtml">nowhere</a></p>
			<img src="cover.jpg"/>
		</body></html>`,
		"OEBPS/cover.jpg": "\xff\xd8 not really a jpeg",
	})
}

func TestEPUBLoad(t *testing.T) {
	doc, err := Load("sample.epub", sampleEPUB(t), nil, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer doc.Close()

	if doc.Format != common.BookFormatEpub {
		t.Errorf("format = %v", doc.Format)
	}
	if doc.Title != "Sample Book" {
		t.Errorf("title = %q", doc.Title)
	}
	// the image itemref is not a readable chapter
	if doc.ChapterCount() != 2 {
		t.Fatalf("chapters = %d", doc.ChapterCount())
	}

	c, err := doc.Chapter(0)
	if err != nil {
		t.Fatalf("Chapter(0): %v", err)
	}
	if c.Title != "Chapter One" {
		t.Errorf("chapter 0 title = %q", c.Title)
	}
	if len(c.Blocks) != 2 || c.Blocks[0].Kind != BlockHeading {
		t.Fatalf("chapter 0 blocks = %+v", c.Blocks)
	}
}

func TestEPUBTOC(t *testing.T) {
	doc, err := Load("sample.epub", sampleEPUB(t), nil, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer doc.Close()

	toc := doc.TOC()
	if len(toc) != 3 {
		t.Fatalf("toc = %+v", toc)
	}
	want := []TOCEntry{
		{Title: "Chapter One", Level: 0, Pos: Position{Chapter: 0}},
		{Title: "Deep Section", Level: 1, Pos: Position{Chapter: 1}, Anchor: "sec"},
		{Title: "Chapter Two", Level: 0, Pos: Position{Chapter: 1}},
	}
	for i, w := range want {
		if toc[i] != w {
			t.Errorf("toc[%d] = %+v, want %+v", i, toc[i], w)
		}
	}
	// anchored entries resolve to the block carrying the anchor
	if got := doc.AnchorPosition(1, "sec"); got != (Position{Chapter: 1, Block: 1}) {
		t.Errorf("anchored TOC position = %v", got)
	}
}

func TestEPUBIntraBookLinks(t *testing.T) {
	doc, err := Load("sample.epub", sampleEPUB(t), nil, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer doc.Close()

	c, err := doc.Chapter(0)
	if err != nil {
		t.Fatalf("Chapter(0): %v", err)
	}
	var link *LinkTarget
	for _, r := range c.Blocks[1].Runs {
		if r.Link != nil {
			link = r.Link
		}
	}
	if link == nil || link.Chapter != 1 || link.Anchor != "sec" {
		t.Fatalf("cross chapter link = %+v", link)
	}

	c, err = doc.Chapter(1)
	if err != nil {
		t.Fatalf("Chapter(1): %v", err)
	}
	var same, dead bool
	for _, b := range c.Blocks {
		for _, r := range b.Runs {
			if r.Link != nil && r.Link.Chapter == -1 && r.Link.Anchor == "sec" {
				same = true
			}
			// the dead href merges into the surrounding plain run
			if strings.Contains(r.Text, "nowhere") && r.Link == nil {
				dead = true
			}
		}
	}
	if !same {
		t.Error("same chapter anchor link missing")
	}
	if !dead {
		t.Error("link to a file outside the spine survived")
	}
}

func TestEPUBManifestStylesApplied(t *testing.T) {
	doc, err := Load("sample.epub", sampleEPUB(t), nil, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer doc.Close()

	c, err := doc.Chapter(1)
	if err != nil {
		t.Fatalf("Chapter(1): %v", err)
	}
	if r := c.Blocks[0].Runs[0]; r.Text != "Heavy" || !r.Flags.Has(StyleBold) {
		t.Errorf("styled run = %+v", r)
	}
}

func TestEPUBEmbeddedImages(t *testing.T) {
	doc, err := Load("sample.epub", sampleEPUB(t), nil, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer doc.Close()

	c, err := doc.Chapter(1)
	if err != nil {
		t.Fatalf("Chapter(1): %v", err)
	}
	img := c.Blocks[len(c.Blocks)-1]
	if img.Kind != BlockImage {
		t.Fatalf("last block = %+v", img)
	}
	// chapter-relative src resolved to the archive member name
	if img.ImageID != "OEBPS/cover.jpg" {
		t.Fatalf("image id = %q", img.ImageID)
	}
	data, err := doc.Image(img.ImageID)
	if err != nil {
		t.Fatalf("Image: %v", err)
	}
	if !strings.HasPrefix(string(data), "\xff\xd8") {
		t.Errorf("image bytes = %q", data)
	}
	if _, err := doc.Image("OEBPS/missing.png"); err == nil {
		t.Error("dead image reference served")
	}
}

func TestEPUBWithoutContainerFails(t *testing.T) {
	data := buildZip(t, map[string]string{"mimetype": "application/epub+zip"})
	if _, err := (epubLoader{}).Load("broken.epub", data, &OpenOptions{}, zaptest.NewLogger(t)); err == nil {
		t.Error("EPUB without container.xml accepted")
	}
}

func TestEPUBTitleFallsBackToFileName(t *testing.T) {
	data := buildZip(t, map[string]string{
		"META-INF/container.xml": testContainerXML,
		"OEBPS/content.opf": `<package><metadata/>
			<manifest><item id="c" href="c.xhtml" media-type="application/xhtml+xml"/></manifest>
			<spine><itemref idref="c"/></spine></package>`,
		"OEBPS/c.xhtml": "<p>x</p>",
	})
	doc, err := Load("untitled.epub", data, nil, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer doc.Close()
	if doc.Title != "untitled" {
		t.Errorf("title = %q", doc.Title)
	}
	if len(doc.TOC()) != 0 {
		t.Errorf("toc = %+v", doc.TOC())
	}
}
