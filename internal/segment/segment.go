// Package segment splits raw manuscript text into paragraphs, sentences,
// and words. It is locale-aware for Spanish prose: inverted punctuation,
// common abbreviations, and decimal numbers do not terminate sentences.
//
// All functions are pure; the package holds no state and is safe for
// concurrent use across goroutines.
package segment

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Word is the atomic unit of a segmented sentence.
type Word struct {
	// Surface is the word exactly as it appears in the manuscript.
	Surface string `json:"surface"`

	// Clean is the normalized form used for matching: lower-cased,
	// diacritics stripped, non-letter/digit runes removed.
	Clean string `json:"clean"`
}

// abbreviations that end with a period but do not terminate a sentence.
// Compared lower-cased, without the trailing period.
var abbreviations = map[string]bool{
	"sr":   true,
	"sra":  true,
	"srta": true,
	"dr":   true,
	"dra":  true,
	"ud":   true,
	"uds":  true,
	"etc":  true,
	"pág":  true,
	"págs": true,
	"no":   true,
	"núm":  true,
	"vol":  true,
	"cap":  true,
	"mr":   true,
	"mrs":  true,
	"ms":   true,
	"st":   true,
	"vs":   true,
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize returns the matching form of a word: lower-cased, diacritics
// stripped via NFD decomposition, and all runes that are not letters or
// digits removed. "¿Está?" → "esta", "niño," → "nino".
func Normalize(s string) string {
	stripped, _, err := transform.String(stripMarks, s)
	if err != nil {
		// Transform only fails on invalid UTF-8; fall back to the input.
		stripped = s
	}

	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range strings.ToLower(stripped) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Paragraphs splits text into paragraphs on blank lines. Line endings are
// normalized first; single newlines within a paragraph become spaces and
// runs of whitespace collapse to one space.
func Paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var paragraphs []string
	for _, raw := range splitOnBlankLines(text) {
		p := strings.Join(strings.Fields(raw), " ")
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}

func splitOnBlankLines(text string) []string {
	var parts []string
	var current []string

	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				parts = append(parts, strings.Join(current, "\n"))
				current = nil
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		parts = append(parts, strings.Join(current, "\n"))
	}
	return parts
}

// Sentences splits a paragraph into sentences on terminal punctuation
// (".", "!", "?", "…"). Guards: abbreviations (Sr., Dr., etc.), decimal
// numbers (3.14), and single-letter initials (J. García) do not split.
// The terminal punctuation is stripped from the returned sentence text;
// original casing is preserved.
func Sentences(text string) []string {
	rs := []rune(text)
	var sentences []string
	start := 0

	for i := 0; i < len(rs); i++ {
		r := rs[i]
		if r != '.' && r != '!' && r != '?' && r != '…' {
			continue
		}

		if r == '.' && !isBoundaryPeriod(rs, i) {
			continue
		}

		// Consume a run of terminal punctuation (e.g. "?!", "...").
		end := i
		for end+1 < len(rs) && isTerminal(rs[end+1]) {
			end++
		}

		if s := trimSentence(string(rs[start:i])); s != "" {
			sentences = append(sentences, s)
		}
		i = end
		start = end + 1
	}

	if s := trimSentence(string(rs[start:])); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}

// isBoundaryPeriod decides whether the period at index i terminates a
// sentence, guarding against decimals, abbreviations, and initials.
func isBoundaryPeriod(rs []rune, i int) bool {
	// Decimal number: digit on both sides.
	if i > 0 && i+1 < len(rs) && unicode.IsDigit(rs[i-1]) && unicode.IsDigit(rs[i+1]) {
		return false
	}

	// Collect the token immediately before the period.
	j := i - 1
	for j >= 0 && !unicode.IsSpace(rs[j]) {
		j--
	}
	before := strings.TrimLeft(string(rs[j+1:i]), "(\"'«¿¡“‘")

	// Single-letter initial: "J. García".
	if len([]rune(before)) == 1 && unicode.IsUpper([]rune(before)[0]) {
		return false
	}

	if abbreviations[strings.ToLower(before)] {
		return false
	}
	return true
}

// trimSentence strips surrounding whitespace and any leading punctuation
// left over from the previous boundary (closing quotes, dashes).
func trimSentence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "”’»\"')")
	return strings.TrimSpace(s)
}

// Words splits a sentence into words on whitespace. Each word retains its
// surface form and carries the normalized matching form. Tokens that
// normalize to nothing (bare punctuation such as "—") are skipped.
func Words(sentence string) []Word {
	fields := strings.Fields(sentence)
	words := make([]Word, 0, len(fields))
	for _, f := range fields {
		clean := Normalize(f)
		if clean == "" {
			continue
		}
		words = append(words, Word{Surface: f, Clean: clean})
	}
	return words
}
