package layout

import (
	"tbr/book"
)

// RenderAttrs are the concrete rendering attributes handed to a backend.
// Colors are opaque theme values the backend interprets (palette names for
// the terminal, RGB for a GUI); the layout core never looks inside them.
type RenderAttrs struct {
	Foreground string
	Background string
	Bold       bool
	Italic     bool
	Underline  bool
	FontSize   int // size class, 0 is body text
	Link       bool
}

// Theme maps content styling to rendering attributes.
type Theme struct {
	Name       string
	Foreground string
	Background string
	Link       string
	Emphasis   string
	// font size class per heading level 1..6
	HeadingSize [6]int
}

var themes = map[string]Theme{
	"default": {
		Name:        "default",
		Foreground:  "default",
		Background:  "default",
		Link:        "blue",
		Emphasis:    "yellow",
		HeadingSize: [6]int{3, 2, 2, 1, 1, 1},
	},
	"dark": {
		Name:        "dark",
		Foreground:  "white",
		Background:  "black",
		Link:        "cyan",
		Emphasis:    "yellow",
		HeadingSize: [6]int{3, 2, 2, 1, 1, 1},
	},
}

// ThemeByName resolves a configured theme identifier, degrading to the
// default theme for anything unknown - the reader must always render.
func ThemeByName(name string) Theme {
	if t, ok := themes[name]; ok {
		return t
	}
	return themes["default"]
}

// Resolve maps one run's style onto rendering attributes. It is pure and
// deterministic for a given (run flags, heading level, theme) so re-rendering
// never shifts stable positions.
func Resolve(run book.Run, headingLevel int, theme Theme) RenderAttrs {
	attrs := RenderAttrs{
		Foreground: theme.Foreground,
		Background: theme.Background,
		Bold:       run.Flags.Has(book.StyleBold),
		Italic:     run.Flags.Has(book.StyleItalic),
	}
	if run.Flags.Has(book.StyleEmphasis) {
		attrs.Underline = true
		attrs.Foreground = theme.Emphasis
	}
	if headingLevel >= 1 && headingLevel <= 6 {
		attrs.Bold = true
		attrs.FontSize = theme.HeadingSize[headingLevel-1]
	}
	if run.Link != nil {
		attrs.Link = true
		attrs.Underline = true
		attrs.Foreground = theme.Link
	}
	return attrs
}
