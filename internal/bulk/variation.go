package bulk

import "strings"

// Zero-width code points used as invisible variation markers.
const (
	zwsp = '\u200B' // zero-width space
	zwnj = '\u200C' // zero-width non-joiner
)

// homoglyphs maps latin letters to visually identical cyrillic lookalikes.
var homoglyphs = map[rune]rune{
	'a': 'а', 'c': 'с', 'e': 'е', 'o': 'о', 'p': 'р', 'x': 'х', 'y': 'у',
	'A': 'А', 'C': 'С', 'E': 'Е', 'O': 'О', 'P': 'Р', 'X': 'Х', 'Y': 'У',
}

type variationRule struct {
	name  string
	apply func(v *variator, s string) string
}

// The static rule set. One rule is chosen uniformly per message; the no-op
// keeps some messages byte-identical to the original on purpose.
var variationRules = []variationRule{
	{name: "noop", apply: func(_ *variator, s string) string { return s }},
	{name: "append-space", apply: func(_ *variator, s string) string { return s + " " }},
	{name: "prepend-marker", apply: func(_ *variator, s string) string { return string(zwnj) + s }},
	{name: "substitute-homoglyph", apply: substituteFirstHomoglyph},
	{name: "insert-marker", apply: insertMarker},
}

// variator perturbs outgoing text so it is not byte-identical to the
// original while staying visually identical to a human reader. Output
// length differs from the input by at most one rune, and non-empty input
// never becomes empty.
type variator struct {
	rng   *lockedRand
	rules []variationRule
}

func newVariator(rng *lockedRand) *variator {
	return &variator{rng: rng, rules: variationRules}
}

// Apply returns a variant of s. Empty input is returned unchanged.
func (v *variator) Apply(s string) string {
	out, _ := v.applyNamed(s)
	return out
}

func (v *variator) applyNamed(s string) (string, string) {
	if s == "" {
		return s, "noop"
	}
	r := v.rules[v.rng.Intn(len(v.rules))]
	return r.apply(v, s), r.name
}

// substituteFirstHomoglyph replaces only the first eligible rune, keeping
// semantic drift minimal. Text with no eligible rune passes through.
func substituteFirstHomoglyph(_ *variator, s string) string {
	runes := []rune(s)
	for i, r := range runes {
		if g, ok := homoglyphs[r]; ok {
			runes[i] = g
			return string(runes)
		}
	}
	return s
}

// insertMarker inserts a zero-width space at a uniformly random offset in
// [0, len] (rune offsets).
func insertMarker(v *variator, s string) string {
	runes := []rune(s)
	at := v.rng.Intn(len(runes) + 1)
	out := make([]rune, 0, len(runes)+1)
	out = append(out, runes[:at]...)
	out = append(out, zwsp)
	out = append(out, runes[at:]...)
	return string(out)
}

// StripVariation undoes every known variation artifact: zero-width markers
// are removed, homoglyphs mapped back, and padding whitespace trimmed. Used
// by tests to assert variants stay visually equal to the original.
func StripVariation(s string) string {
	reverse := make(map[rune]rune, len(homoglyphs))
	for latin, cyr := range homoglyphs {
		reverse[cyr] = latin
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == zwsp || r == zwnj {
			continue
		}
		if latin, ok := reverse[r]; ok {
			r = latin
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
