// Package common holds enums shared between the reading core and front ends.
// Front ends only need these and should not pull the whole layout machinery.
package common

// Layout direction of the reading view. Horizontal is the usual
// left-to-right, top-to-bottom flow. Vertical stacks glyphs top-to-bottom
// with columns filling right-to-left (traditional East-Asian typesetting).
// ENUM(horizontal, vertical)
type Orientation int

// Source format of an opened book.
// ENUM(txt, html, epub, haodoo)
type BookFormat int

func (f BookFormat) Paged() bool {
	// haodoo and epub books carry their own chapter division,
	// txt and html are single-chapter
	return f == BookFormatEpub || f == BookFormatHaodoo
}
