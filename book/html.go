package book

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"tbr/common"
	"tbr/css"
)

// htmlLoader opens standalone HTML files as single chapter books.
type htmlLoader struct{}

func (htmlLoader) Format() common.BookFormat { return common.BookFormatHtml }

func (htmlLoader) Accepts(name string, _ []byte) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm", ".xhtml":
		return true
	}
	return false
}

func (htmlLoader) Load(name string, data []byte, _ *OpenOptions, log *zap.Logger) (*Document, error) {
	conv := newHTMLConvertor(nil, log)
	chapter, err := conv.convert(data, "text/html")
	if err != nil {
		return nil, fmt.Errorf("unable to parse HTML: %w", err)
	}
	title := chapter.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
		chapter.Title = title
	}
	src := &singleChapterSource{chapter: chapter}
	return NewDocument(title, common.BookFormatHtml, src, nil, log), nil
}

type singleChapterSource struct {
	chapter *Chapter
}

func (s *singleChapterSource) ChapterCount() int       { return 1 }
func (s *singleChapterSource) ChapterTitle(int) string { return s.chapter.Title }
func (s *singleChapterSource) ParseChapter(int) (*Chapter, error) {
	return s.chapter, nil
}
func (s *singleChapterSource) Close() error { return nil }

// linkResolver maps an href found in chapter markup to a document link
// target. EPUB books resolve spine-relative paths here; standalone HTML only
// understands same-chapter anchors, which the convertor handles itself.
type linkResolver func(href string) *LinkTarget

// imageResolver maps an image src found in chapter markup to the id the
// document can serve bytes for. EPUB books resolve chapter-relative paths to
// archive member names.
type imageResolver func(src string) string

// htmlConvertor walks an x/net/html tree and accumulates blocks of styled
// runs. The tokenizer already decodes numeric and named entity references,
// so runs come out fully decoded as the layout core requires.
type htmlConvertor struct {
	cssParser    *css.Parser
	sheet        *css.Sheet
	resolve      linkResolver
	resolveImage imageResolver
	log          *zap.Logger

	title   string
	blocks  []Block
	anchors []string

	kind  BlockKind
	level int
	runs  []Run
	space bool // pending inter-word space
}

func newHTMLConvertor(resolve linkResolver, log *zap.Logger) *htmlConvertor {
	return &htmlConvertor{
		cssParser: css.NewParser(log),
		resolve:   resolve,
		log:       log,
		kind:      BlockParagraph,
	}
}

// setStylesheet installs an external stylesheet parsed ahead of conversion
// (EPUB manifest CSS). Inline <style> elements are merged on top during the
// walk.
func (c *htmlConvertor) setStylesheet(data []byte) {
	c.sheet = c.cssParser.Parse(data)
}

func (c *htmlConvertor) convert(data []byte, contentType string) (*Chapter, error) {
	text, err := decodeText(data, contentType)
	if err != nil {
		return nil, err
	}
	root, err := html.Parse(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("unable to parse markup: %w", err)
	}
	c.walk(root, runState{})
	c.flush()
	return &Chapter{Title: c.title, Blocks: c.blocks}, nil
}

// runState carries inherited inline attributes down the element tree.
type runState struct {
	flags StyleFlags
	link  *LinkTarget
}

func (c *htmlConvertor) walk(n *html.Node, st runState) {
	switch n.Type {
	case html.TextNode:
		c.appendText(n.Data, st)
		return
	case html.ElementNode:
	default:
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			c.walk(child, st)
		}
		return
	}

	if id := attrValue(n, "id"); id != "" {
		c.anchors = append(c.anchors, id)
	}
	st.flags |= c.styledFlags(n)

	switch n.DataAtom {
	case atom.Head:
		c.walkHead(n)
		return
	case atom.Script, atom.Style, atom.Noscript, atom.Template:
		return
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		c.flush()
		c.kind = BlockHeading
		c.level = int(n.Data[1] - '0')
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			c.walk(child, st)
		}
		c.flush()
		return
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Blockquote,
		atom.Li, atom.Ul, atom.Ol, atom.Table, atom.Tr, atom.Td, atom.Th,
		atom.Figure, atom.Figcaption, atom.Pre, atom.Body:
		c.flush()
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			c.walk(child, st)
		}
		c.flush()
		return
	case atom.Br:
		c.flush()
		return
	case atom.Hr:
		c.flush()
		c.blocks = append(c.blocks, Block{Kind: BlockDivider, Anchors: c.takeAnchors()})
		return
	case atom.Img, atom.Image:
		c.image(attrValue(n, "src"))
		return
	case atom.A:
		if href := attrValue(n, "href"); href != "" {
			if target := c.resolveHref(href); target != nil {
				st.link = target
			}
		}
	case atom.B, atom.Strong:
		st.flags |= StyleBold
	case atom.I, atom.Cite, atom.Dfn, atom.Var:
		st.flags |= StyleItalic
	case atom.Em, atom.U, atom.Ins, atom.Mark:
		st.flags |= StyleEmphasis
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.walk(child, st)
	}
}

func (c *htmlConvertor) walkHead(n *html.Node) {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		switch child.DataAtom {
		case atom.Title:
			if child.FirstChild != nil && c.title == "" {
				c.title = strings.TrimSpace(child.FirstChild.Data)
			}
		case atom.Style:
			if child.FirstChild != nil {
				inline := c.cssParser.Parse([]byte(child.FirstChild.Data))
				if c.sheet == nil || c.sheet.Len() == 0 {
					c.sheet = inline
				}
			}
		}
	}
}

// styledFlags folds class/style attribute styling into run flags.
func (c *htmlConvertor) styledFlags(n *html.Node) StyleFlags {
	var style css.Style
	if classes := attrValue(n, "class"); classes != "" {
		style = c.sheet.Lookup(n.Data, strings.Fields(classes))
	} else {
		style = c.sheet.Lookup(n.Data, nil)
	}
	if inline := attrValue(n, "style"); inline != "" {
		style = style.Merge(c.cssParser.ParseDeclarations(inline))
	}
	var flags StyleFlags
	if style.Bold {
		flags |= StyleBold
	}
	if style.Italic {
		flags |= StyleItalic
	}
	if style.Underline {
		flags |= StyleEmphasis
	}
	return flags
}

func (c *htmlConvertor) resolveHref(href string) *LinkTarget {
	if strings.HasPrefix(href, "#") {
		return &LinkTarget{Chapter: -1, Anchor: href[1:]}
	}
	if c.resolve != nil {
		return c.resolve(href)
	}
	return nil
}

// appendText adds text to the current block collapsing whitespace sequences
// into single spaces. Adjacent runs with identical attributes are merged so
// parsers do not fragment blocks needlessly.
func (c *htmlConvertor) appendText(text string, st runState) {
	var sb strings.Builder
	for _, r := range text {
		if unicode.IsSpace(r) {
			c.flushWord(&sb, st)
			if len(c.runs) > 0 || sb.Len() > 0 {
				c.space = true
			}
			continue
		}
		sb.WriteRune(r)
	}
	c.flushWord(&sb, st)
}

func (c *htmlConvertor) flushWord(sb *strings.Builder, st runState) {
	if sb.Len() == 0 {
		return
	}
	word := sb.String()
	sb.Reset()
	if c.space {
		word = " " + word
		c.space = false
	}
	if n := len(c.runs); n > 0 && c.runs[n-1].Flags == st.flags &&
		sameLink(c.runs[n-1].Link, st.link) && c.runs[n-1].ImageID == "" {
		c.runs[n-1].Text += word
		return
	}
	c.runs = append(c.runs, Run{Text: word, Flags: st.flags, Link: st.link})
}

func (c *htmlConvertor) image(src string) {
	if src == "" {
		return
	}
	if c.resolveImage != nil {
		src = c.resolveImage(src)
	}
	c.flush()
	c.blocks = append(c.blocks, Block{
		Kind:    BlockImage,
		ImageID: src,
		Anchors: c.takeAnchors(),
	})
}

func (c *htmlConvertor) flush() {
	c.space = false
	if len(c.runs) == 0 {
		c.kind, c.level = BlockParagraph, 0
		return
	}
	c.blocks = append(c.blocks, Block{
		Kind:    c.kind,
		Level:   c.level,
		Runs:    c.runs,
		Anchors: c.takeAnchors(),
	})
	c.runs = nil
	c.kind, c.level = BlockParagraph, 0
}

func (c *htmlConvertor) takeAnchors() []string {
	a := c.anchors
	c.anchors = nil
	return a
}

func sameLink(a, b *LinkTarget) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Chapter == b.Chapter && a.Anchor == b.Anchor
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
