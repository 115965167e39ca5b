// Package css parses the small stylesheet subset the reader cares about:
// character styling (weight, style, decoration) keyed by element and class
// selectors. Everything else in a book stylesheet is ignored - rendering
// fidelity for arbitrary CSS is a non-goal.
package css

import (
	"bytes"
	"strings"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"
)

// Style is the resolved character styling of one selector.
type Style struct {
	Bold      bool
	Italic    bool
	Underline bool
}

func (s Style) Empty() bool {
	return !s.Bold && !s.Italic && !s.Underline
}

// Merge overlays other on top of s.
func (s Style) Merge(other Style) Style {
	return Style{
		Bold:      s.Bold || other.Bold,
		Italic:    s.Italic || other.Italic,
		Underline: s.Underline || other.Underline,
	}
}

// Sheet maps simple selectors ("em", ".bold", "p.note") to styles.
type Sheet struct {
	rules map[string]Style
}

// Lookup resolves the effective style for an element with the given tag and
// class list, more specific selectors winning by merge order.
func (s *Sheet) Lookup(tag string, classes []string) Style {
	if s == nil || len(s.rules) == 0 {
		return Style{}
	}
	style := s.rules[tag]
	for _, c := range classes {
		style = style.Merge(s.rules["."+c])
		style = style.Merge(s.rules[tag+"."+c])
	}
	return style
}

// Len reports the number of retained rules.
func (s *Sheet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Parser parses CSS stylesheets keeping only character styling rules.
type Parser struct {
	log *zap.Logger
}

// NewParser creates a new CSS parser.
func NewParser(log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log.Named("css")}
}

// Parse parses CSS text into a Sheet. Malformed input degrades to whatever
// rules could be extracted - a book must render even with a broken stylesheet.
func (p *Parser) Parse(data []byte) *Sheet {
	sheet := &Sheet{rules: make(map[string]Style)}

	input := parse.NewInput(bytes.NewReader(data))
	parser := css.NewParser(input, false)

	var selectors []string

	for {
		gt, _, tokenData := parser.Next()
		switch gt {
		case css.ErrorGrammar:
			if err := parser.Err(); err != nil && err.Error() != "EOF" {
				p.log.Debug("CSS parse stopped", zap.Error(err))
			}
			return sheet

		case css.BeginAtRuleGrammar:
			// @media, @font-face and friends carry nothing we keep
			skipBlock(parser)

		case css.AtRuleGrammar:
			// blockless @-rule (@import, @charset), nothing to skip

		case css.BeginRulesetGrammar, css.QualifiedRuleGrammar:
			selectors = parseSelectors(tokenData, parser.Values())

		case css.DeclarationGrammar:
			style, ok := parseDeclaration(string(tokenData), parser.Values())
			if !ok {
				continue
			}
			for _, sel := range selectors {
				sheet.rules[sel] = sheet.rules[sel].Merge(style)
			}

		case css.EndRulesetGrammar:
			selectors = nil
		}
	}
}

// ParseDeclarations parses the contents of an inline style attribute.
func (p *Parser) ParseDeclarations(style string) Style {
	var out Style
	input := parse.NewInput(bytes.NewReader([]byte(style)))
	parser := css.NewParser(input, true)
	for {
		gt, _, tokenData := parser.Next()
		if gt == css.ErrorGrammar {
			return out
		}
		if gt != css.DeclarationGrammar {
			continue
		}
		if s, ok := parseDeclaration(string(tokenData), parser.Values()); ok {
			out = out.Merge(s)
		}
	}
}

func parseDeclaration(property string, values []css.Token) (Style, bool) {
	var sb strings.Builder
	for _, v := range values {
		sb.Write(v.Data)
	}
	value := strings.ToLower(strings.TrimSpace(sb.String()))

	switch strings.ToLower(property) {
	case "font-weight":
		if value == "bold" || value == "bolder" {
			return Style{Bold: true}, true
		}
		if n, ok := numericWeight(value); ok && n >= 600 {
			return Style{Bold: true}, true
		}
	case "font-style":
		if value == "italic" || value == "oblique" {
			return Style{Italic: true}, true
		}
	case "text-decoration", "text-decoration-line":
		if strings.Contains(value, "underline") {
			return Style{Underline: true}, true
		}
	}
	return Style{}, false
}

func numericWeight(value string) (int, bool) {
	n := 0
	for _, r := range value {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	if n == 0 {
		return 0, false
	}
	return n, true
}

// parseSelectors keeps only simple selectors we can match during conversion:
// a bare element name, a class, or element.class. Anything more elaborate is
// dropped.
func parseSelectors(first []byte, values []css.Token) []string {
	var raw strings.Builder
	raw.Write(first)
	for _, v := range values {
		raw.Write(v.Data)
	}
	var out []string
	for _, sel := range strings.Split(raw.String(), ",") {
		sel = strings.TrimSpace(sel)
		if sel == "" || strings.ContainsAny(sel, " >+~:[#*") {
			continue
		}
		out = append(out, strings.ToLower(sel))
	}
	return out
}

func skipBlock(parser *css.Parser) {
	depth := 1
	for depth > 0 {
		gt, _, _ := parser.Next()
		switch gt {
		case css.ErrorGrammar:
			return
		case css.BeginAtRuleGrammar, css.BeginRulesetGrammar:
			depth++
		case css.EndAtRuleGrammar, css.EndRulesetGrammar:
			depth--
		case css.AtRuleGrammar, css.QualifiedRuleGrammar, css.DeclarationGrammar, css.TokenGrammar, css.CustomPropertyGrammar, css.CommentGrammar:
		}
	}
}
