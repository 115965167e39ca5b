package layout

import "unicode"

// verticalForms maps glyphs to their vertical presentation forms for the
// han (top-to-bottom, right-to-left) rendering mode. Brackets, dashes and
// ellipsis have dedicated rotated forms; everything else renders as is.
var verticalForms = map[rune]rune{
	'\t': '　',
	' ':  '　',
	'(':  '︵',
	')':  '︶',
	'-':  '︱',
	'<':  '︻',
	'>':  '︼',
	'[':  '︹',
	']':  '︺',
	'{':  '︷',
	'}':  '︸',
	'~':  'ⸯ',
	'—':  '︱',
	'…':  '︙',
	'─':  '︱',
	'〈':  '︿',
	'〉':  '﹀',
	'《':  '︽',
	'》':  '︾',
	'「':  '﹁',
	'」':  '﹂',
	'『':  '﹃',
	'』':  '﹄',
	'【':  '︻',
	'】':  '︼',
	'〔':  '︹',
	'〕':  '︺',
	'〖':  '︘',
	'〗':  '︗',
	'（':  '︵',
	'）':  '︶',
	'［':  '︹',
	'］':  '︺',
	'｛':  '︷',
	'｝':  '︸',
	'～':  'ⸯ',
}

// mapVertical rewrites a grapheme cluster for vertical rendering. Only
// single-rune clusters have vertical forms.
func mapVertical(cluster string) string {
	runes := []rune(cluster)
	if len(runes) != 1 {
		return cluster
	}
	if mapped, ok := verticalForms[runes[0]]; ok {
		return string(mapped)
	}
	return cluster
}

// isCJK reports whether the cluster starts with an ideograph or kana/hangul
// syllable - text where lines may break between any two non-punctuation
// clusters without dictionary segmentation.
func isCJK(cluster string) bool {
	for _, r := range cluster {
		return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
	}
	return false
}

// isBreakPunct reports punctuation that must not start or end up separated
// from its neighbor when breaking CJK text.
func isBreakPunct(cluster string) bool {
	for _, r := range cluster {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	}
	return false
}
