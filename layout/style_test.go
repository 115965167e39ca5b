package layout

import (
	"testing"

	"tbr/book"
)

func TestThemeByName(t *testing.T) {
	if got := ThemeByName("dark"); got.Name != "dark" {
		t.Errorf("theme = %+v", got)
	}
	if got := ThemeByName("no such theme"); got.Name != "default" {
		t.Errorf("fallback theme = %+v", got)
	}
}

func TestResolve(t *testing.T) {
	theme := ThemeByName("default")
	tests := []struct {
		name    string
		run     book.Run
		heading int
		check   func(t *testing.T, a RenderAttrs)
	}{
		{"plain", book.Run{Text: "x"}, 0, func(t *testing.T, a RenderAttrs) {
			if a.Bold || a.Italic || a.Underline || a.Link || a.FontSize != 0 {
				t.Errorf("attrs = %+v", a)
			}
			if a.Foreground != theme.Foreground {
				t.Errorf("foreground = %q", a.Foreground)
			}
		}},
		{"bold italic", book.Run{Flags: book.StyleBold | book.StyleItalic}, 0, func(t *testing.T, a RenderAttrs) {
			if !a.Bold || !a.Italic {
				t.Errorf("attrs = %+v", a)
			}
		}},
		{"emphasis recolors", book.Run{Flags: book.StyleEmphasis}, 0, func(t *testing.T, a RenderAttrs) {
			if !a.Underline || a.Foreground != theme.Emphasis {
				t.Errorf("attrs = %+v", a)
			}
		}},
		{"heading", book.Run{}, 1, func(t *testing.T, a RenderAttrs) {
			if !a.Bold || a.FontSize != theme.HeadingSize[0] {
				t.Errorf("attrs = %+v", a)
			}
		}},
		{"link wins colors", book.Run{Flags: book.StyleEmphasis, Link: &book.LinkTarget{}}, 0, func(t *testing.T, a RenderAttrs) {
			if !a.Link || !a.Underline || a.Foreground != theme.Link {
				t.Errorf("attrs = %+v", a)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Resolve(tt.run, tt.heading, theme))
		})
	}
}

func TestMapVertical(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"「", "﹁"},
		{"」", "﹂"},
		{" ", "　"},
		{"漢", "漢"},
		{"a", "a"},
	}
	for _, tt := range tests {
		if got := mapVertical(tt.in); got != tt.want {
			t.Errorf("mapVertical(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
