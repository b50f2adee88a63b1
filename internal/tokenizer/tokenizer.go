// Package tokenizer turns text into index terms. Corpus building and query
// parsing both go through Normalize, so a word is spelled the same way on
// either side.
package tokenizer

import (
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"
)

const minTermRunes = 2

var stopWords = func() map[string]struct{} {
	const list = `a an and are as at be but by can do each for from had has have
		he if in is it its no not of on or so that the their they this to was
		were what when where which who will with`
	set := make(map[string]struct{})
	for _, w := range strings.Fields(list) {
		set[w] = struct{}{}
	}
	return set
}()

// suffix rewrites, longest first. A rule applies only when the rewritten
// word, replacement included, is at least keep bytes long; otherwise the
// next rule is tried.
var suffixes = []struct {
	from, to string
	keep     int
}{
	{"ational", "ate", 2}, {"tional", "tion", 2}, {"encies", "ence", 2},
	{"ances", "ance", 2}, {"ments", "ment", 2}, {"izing", "ize", 2},
	{"ating", "ate", 2}, {"iness", "y", 2}, {"ously", "ous", 2},
	{"ively", "ive", 2}, {"eness", "ene", 2},
	{"tion", "t", 3}, {"sion", "s", 3}, {"ying", "y", 2}, {"ling", "l", 3},
	{"ies", "y", 2}, {"ing", "", 3}, {"ers", "er", 2}, {"est", "", 3},
	{"ful", "", 3}, {"ous", "", 3}, {"ess", "", 3}, {"ble", "", 3},
	{"ed", "", 3}, {"er", "", 3}, {"ly", "", 3}, {"es", "", 3},
	{"ss", "ss", 2}, {"s", "", 3},
}

// Words yields the lower-cased runs of letters and digits in text.
func Words(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		var b strings.Builder
		flush := func() bool {
			if b.Len() == 0 {
				return true
			}
			w := b.String()
			b.Reset()
			return yield(w)
		}
		for _, r := range text {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(unicode.ToLower(r))
				continue
			}
			if !flush() {
				return
			}
		}
		flush()
	}
}

// Terms yields the index terms of text in order, duplicates included.
func Terms(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for w := range Words(text) {
			if utf8.RuneCountInString(w) < minTermRunes {
				continue
			}
			if _, stop := stopWords[w]; stop {
				continue
			}
			if !yield(stem(w)) {
				return
			}
		}
	}
}

// Normalize collects Terms. It never returns more terms than text has words.
func Normalize(text string) []string {
	out := make([]string, 0, 16)
	for t := range Terms(text) {
		out = append(out, t)
	}
	return out
}

// Term normalises a single word, returning "" when it is not indexable.
func Term(word string) string {
	for t := range Terms(word) {
		return t
	}
	return ""
}

func stem(word string) string {
	for _, s := range suffixes {
		base, ok := strings.CutSuffix(word, s.from)
		if ok && len(base)+len(s.to) >= s.keep {
			return base + s.to
		}
	}
	return word
}
