package book

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/beevik/etree"
	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"
	"go.uber.org/zap"

	"tbr/archive"
	"tbr/common"
)

// epubLoader opens EPUB 2/3 books: spine items become chapters, NCX or nav
// document becomes the table of contents.
type epubLoader struct{}

func (epubLoader) Format() common.BookFormat { return common.BookFormatEpub }

func (epubLoader) Accepts(name string, data []byte) bool {
	if strings.EqualFold(filepath.Ext(name), ".epub") {
		return true
	}
	return filetype.IsType(data, matchers.TypeEpub)
}

func (epubLoader) Load(name string, data []byte, _ *OpenOptions, log *zap.Logger) (*Document, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("unable to open EPUB archive: %w", err)
	}

	rootfile, err := containerRootfile(r)
	if err != nil {
		return nil, err
	}
	src, title, tocRef, err := parseOPF(r, rootfile, log)
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	}

	toc := src.parseTOC(tocRef)
	return NewDocument(title, common.BookFormatEpub, src, toc, log), nil
}

// containerRootfile locates the OPF package document path.
func containerRootfile(r *zip.Reader) (string, error) {
	data, err := archive.ReadFile(r, "META-INF/container.xml")
	if err != nil {
		return "", fmt.Errorf("not a valid EPUB (no container.xml): %w", err)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return "", fmt.Errorf("unable to parse container.xml: %w", err)
	}
	for _, rf := range doc.FindElements("//rootfiles/rootfile") {
		if full := rf.SelectAttrValue("full-path", ""); full != "" {
			return full, nil
		}
	}
	return "", fmt.Errorf("container.xml names no rootfile")
}

type manifestItem struct {
	href      string // archive path, resolved against the OPF directory
	mediaType string
}

type tocReference struct {
	ncxPath string
	navPath string
}

// epubSource reads spine items lazily from the opened archive.
type epubSource struct {
	reader      *zip.Reader
	log         *zap.Logger
	opfDir      string
	spine       []manifestItem // reading order
	titles      []string       // per-spine chapter titles from the TOC
	indexByPath map[string]int
	styles      [][]byte // manifest stylesheets, applied to every chapter
}

func parseOPF(r *zip.Reader, rootfile string, log *zap.Logger) (*epubSource, string, tocReference, error) {
	var ref tocReference

	data, err := archive.ReadFile(r, rootfile)
	if err != nil {
		return nil, "", ref, fmt.Errorf("unable to read OPF: %w", err)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, "", ref, fmt.Errorf("unable to parse OPF: %w", err)
	}

	opfDir := path.Dir(rootfile)
	if opfDir == "." {
		opfDir = ""
	}

	var title string
	if e := doc.FindElement("//metadata/title"); e != nil {
		title = strings.TrimSpace(e.Text())
	}

	manifest := make(map[string]manifestItem)
	var styles [][]byte
	for _, item := range doc.FindElements("//manifest/item") {
		id := item.SelectAttrValue("id", "")
		href := item.SelectAttrValue("href", "")
		if id == "" || href == "" {
			continue
		}
		mi := manifestItem{href: path.Join(opfDir, href), mediaType: item.SelectAttrValue("media-type", "")}
		manifest[id] = mi
		switch {
		case mi.mediaType == "text/css":
			if css, err := archive.ReadFile(r, mi.href); err == nil {
				styles = append(styles, css)
			} else {
				log.Debug("Stylesheet listed in manifest is unreadable", zap.String("href", mi.href), zap.Error(err))
			}
		case strings.Contains(item.SelectAttrValue("properties", ""), "nav"):
			ref.navPath = mi.href
		}
	}

	src := &epubSource{
		reader:      r,
		log:         log,
		opfDir:      opfDir,
		indexByPath: make(map[string]int),
		styles:      styles,
	}

	spine := doc.FindElement("//spine")
	if spine == nil {
		return nil, "", ref, fmt.Errorf("OPF has no spine")
	}
	if ncxID := spine.SelectAttrValue("toc", ""); ncxID != "" {
		if item, ok := manifest[ncxID]; ok {
			ref.ncxPath = item.href
		}
	}
	for _, itemref := range spine.FindElements("itemref") {
		item, ok := manifest[itemref.SelectAttrValue("idref", "")]
		if !ok {
			continue
		}
		if !strings.Contains(item.mediaType, "html") {
			continue
		}
		src.indexByPath[item.href] = len(src.spine)
		src.spine = append(src.spine, item)
		src.titles = append(src.titles, "")
	}
	if len(src.spine) == 0 {
		return nil, "", ref, fmt.Errorf("EPUB spine references no readable chapters")
	}
	return src, title, ref, nil
}

func (s *epubSource) ChapterCount() int { return len(s.spine) }

func (s *epubSource) ChapterTitle(index int) string {
	if index < 0 || index >= len(s.titles) {
		return ""
	}
	return s.titles[index]
}

func (s *epubSource) ParseChapter(index int) (*Chapter, error) {
	item := s.spine[index]
	data, err := archive.ReadFile(s.reader, item.href)
	if err != nil {
		return nil, fmt.Errorf("unable to read chapter %q: %w", item.href, err)
	}
	conv := newHTMLConvertor(s.resolver(item.href), s.log)
	conv.resolveImage = s.imageResolver(item.href)
	if len(s.styles) > 0 {
		conv.setStylesheet(bytes.Join(s.styles, []byte("\n")))
	}
	chapter, err := conv.convert(data, item.mediaType)
	if err != nil {
		return nil, fmt.Errorf("unable to convert chapter %q: %w", item.href, err)
	}
	if t := s.titles[index]; t != "" {
		chapter.Title = t
	}
	return chapter, nil
}

// resolver maps chapter-relative hrefs onto spine positions so intra-book
// links become navigable targets.
func (s *epubSource) resolver(chapterPath string) linkResolver {
	base := path.Dir(chapterPath)
	return func(href string) *LinkTarget {
		if strings.Contains(href, "://") {
			return nil // remote resources are out of scope
		}
		file, anchor, _ := strings.Cut(href, "#")
		if file == "" {
			return &LinkTarget{Chapter: -1, Anchor: anchor}
		}
		idx, ok := s.indexByPath[path.Clean(path.Join(base, file))]
		if !ok {
			return nil
		}
		return &LinkTarget{Chapter: idx, Anchor: anchor}
	}
}

// imageResolver turns chapter-relative image srcs into archive member names
// so Image can serve their bytes later.
func (s *epubSource) imageResolver(chapterPath string) imageResolver {
	base := path.Dir(chapterPath)
	return func(src string) string {
		if strings.Contains(src, "://") {
			return src
		}
		return path.Clean(path.Join(base, src))
	}
}

// Image reads an embedded illustration by its archive member name.
func (s *epubSource) Image(id string) ([]byte, error) {
	if s.reader == nil {
		return nil, fmt.Errorf("image %q: book is closed", id)
	}
	data, err := archive.ReadFile(s.reader, id)
	if err != nil {
		return nil, fmt.Errorf("unable to read image %q: %w", id, err)
	}
	return data, nil
}

func (s *epubSource) Close() error {
	s.reader = nil
	return nil
}

// parseTOC builds the flattened TOC tree, preferring the EPUB2 NCX and
// falling back to the EPUB3 nav document. A book without either still opens,
// it just has no outline.
func (s *epubSource) parseTOC(ref tocReference) []TOCEntry {
	if ref.ncxPath != "" {
		if toc := s.parseNCX(ref.ncxPath); len(toc) > 0 {
			return toc
		}
	}
	if ref.navPath != "" {
		if toc := s.parseNav(ref.navPath); len(toc) > 0 {
			return toc
		}
	}
	return nil
}

func (s *epubSource) parseNCX(ncxPath string) []TOCEntry {
	data, err := archive.ReadFile(s.reader, ncxPath)
	if err != nil {
		s.log.Debug("NCX unreadable", zap.String("path", ncxPath), zap.Error(err))
		return nil
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		s.log.Debug("NCX unparsable", zap.String("path", ncxPath), zap.Error(err))
		return nil
	}
	navMap := doc.FindElement("//navMap")
	if navMap == nil {
		return nil
	}
	base := path.Dir(ncxPath)
	var toc []TOCEntry
	var walk func(e *etree.Element, level int)
	walk = func(e *etree.Element, level int) {
		for _, np := range e.SelectElements("navPoint") {
			var title, src string
			if lbl := np.FindElement("navLabel/text"); lbl != nil {
				title = strings.TrimSpace(lbl.Text())
			}
			if content := np.SelectElement("content"); content != nil {
				src = content.SelectAttrValue("src", "")
			}
			if entry, ok := s.tocEntry(title, src, base, level); ok {
				toc = append(toc, entry)
			}
			walk(np, level+1)
		}
	}
	walk(navMap, 0)
	return toc
}

func (s *epubSource) parseNav(navPath string) []TOCEntry {
	data, err := archive.ReadFile(s.reader, navPath)
	if err != nil {
		s.log.Debug("Nav document unreadable", zap.String("path", navPath), zap.Error(err))
		return nil
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		s.log.Debug("Nav document unparsable", zap.String("path", navPath), zap.Error(err))
		return nil
	}
	nav := doc.FindElement("//nav")
	if nav == nil {
		return nil
	}
	base := path.Dir(navPath)
	var toc []TOCEntry
	var walk func(e *etree.Element, level int)
	walk = func(e *etree.Element, level int) {
		for _, li := range e.FindElements("ol/li") {
			if a := li.SelectElement("a"); a != nil {
				if entry, ok := s.tocEntry(strings.TrimSpace(a.Text()), a.SelectAttrValue("href", ""), base, level); ok {
					toc = append(toc, entry)
				}
			}
			walk(li, level+1)
		}
	}
	walk(nav, 0)
	return toc
}

func (s *epubSource) tocEntry(title, src, base string, level int) (TOCEntry, bool) {
	if title == "" || src == "" {
		return TOCEntry{}, false
	}
	file, anchor, _ := strings.Cut(src, "#")
	idx, ok := s.indexByPath[path.Clean(path.Join(base, file))]
	if !ok {
		return TOCEntry{}, false
	}
	if s.titles[idx] == "" && anchor == "" {
		s.titles[idx] = title
	}
	return TOCEntry{
		Title:  title,
		Level:  level,
		Pos:    Position{Chapter: idx},
		Anchor: anchor,
	}, true
}
