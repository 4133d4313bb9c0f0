// Package align reconciles the display words of a chapter with the
// timestamped tokens returned by speech recognition, producing one
// start/end interval per display word.
//
// The synthesized narration and the recognition transcript both diverge
// from the manuscript text: synthesis normalizes punctuation and may
// expand abbreviations, and recognition introduces substitution,
// insertion, and deletion errors plus case/diacritic normalization. A
// global sequence alignment (Needleman–Wunsch) between the display-word
// sequence and the recognized-token sequence absorbs that noise; words
// the recognizer missed get interpolated intervals.
package align

import (
	"errors"
	"fmt"

	"github.com/cuentosapp/cuentos-server/internal/segment"
)

// ErrAlignmentImpossible is returned when the recognized token sequence
// is empty. Every other degree of mismatch degrades gracefully.
var ErrAlignmentImpossible = errors.New("alignment impossible: no recognized tokens")

// RecognizedWord is a timestamped token from the speech-recognition
// adapter. Times are in seconds from the start of the chapter audio.
type RecognizedWord struct {
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// TimedWord is one display word with its resolved interval.
type TimedWord struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`

	// Interpolated is true when the interval was estimated from
	// neighboring matches rather than taken from a recognized token.
	Interpolated bool `json:"interpolated,omitempty"`
}

// Result is the outcome of aligning one chapter.
type Result struct {
	Words []TimedWord `json:"words"`

	// Matched counts display words that took a recognized token's
	// interval directly.
	Matched int `json:"matched"`

	// Interpolated counts display words whose interval was estimated.
	Interpolated int `json:"interpolated"`
}

// Scoring constants for the dynamic program. The gap penalty applies to
// both insertions (extra recognized tokens) and deletions (display words
// the recognizer missed).
const (
	scoreMatch    = 2
	scoreMismatch = -1
	scoreGap      = -1
)

// Align assigns a start/end timestamp to every display word.
//
// ttsWords is the as-spoken token sequence reported by the synthesis
// adapter; it participates only as a fallback normalization source today
// (synthesis providers echo the input text) but is part of the contract
// so a provider that rewrites text can be reconciled later. transcript is
// the recognizer's full-text output, kept for diagnostics.
//
// The returned slice always has exactly len(displayWords) entries, in
// display order, with monotonically non-decreasing start times.
func Align(displayWords []string, ttsWords []string, recognized []RecognizedWord, transcript string) (*Result, error) {
	_ = ttsWords
	_ = transcript

	if len(recognized) == 0 {
		return nil, ErrAlignmentImpossible
	}
	if len(displayWords) == 0 {
		return &Result{Words: []TimedWord{}}, nil
	}

	display := make([]string, len(displayWords))
	for i, w := range displayWords {
		display[i] = segment.Normalize(w)
	}
	tokens := make([]string, len(recognized))
	for i, t := range recognized {
		tokens[i] = segment.Normalize(t.Text)
	}

	script := editScript(display, tokens)

	words := assignTimestamps(displayWords, recognized, script)
	interpolateGaps(words)
	clampMonotonic(words)

	res := &Result{Words: words}
	for _, w := range words {
		if w.Interpolated {
			res.Interpolated++
		} else {
			res.Matched++
		}
	}
	return res, nil
}

// wordsEqual is the noise-tolerant equality predicate over normalized
// forms. Beyond exact equality it accepts edit distance 1 on words of
// four or more runes, and a shared prefix covering at least two thirds
// of the longer word (minimum four runes). This absorbs recognition
// noise like "esta"/"está" collapses or "niño"/"niña" substitutions.
func wordsEqual(a, b string) bool {
	if a == b {
		return a != ""
	}
	la, lb := len([]rune(a)), len([]rune(b))
	longer := la
	if lb > longer {
		longer = lb
	}
	if longer >= 4 && editDistance(a, b) <= 1 {
		return true
	}

	prefix := commonPrefixLen(a, b)
	threshold := (2*longer + 2) / 3 // ceil(2/3 * longer)
	if threshold < 4 {
		threshold = 4
	}
	return prefix >= threshold
}

func commonPrefixLen(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	n := 0
	for n < len(ra) && n < len(rb) && ra[n] == rb[n] {
		n++
	}
	return n
}

// editDistance computes the Levenshtein distance between two strings.
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// op is one step of the alignment edit script.
type op struct {
	kind    opKind
	display int // display index (valid unless kind == opInsert)
	token   int // recognized index (valid unless kind == opDelete)
	isMatch bool
}

type opKind int

const (
	opAlign  opKind = iota // display[i] aligned to token[j] (match or substitute)
	opDelete               // display[i] has no recognized token
	opInsert               // token[j] has no display word
)

// editScript builds the Needleman–Wunsch score matrix over the two
// normalized sequences and backtracks to an edit script. Backtracking
// prefers the diagonal move on score ties, which implements the leftmost
// extension tie-break: ambiguous matches resolve in favor of local
// ordering rather than a longer gap elsewhere.
func editScript(display, tokens []string) []op {
	n, m := len(display), len(tokens)

	score := make([][]int, n+1)
	for i := range score {
		score[i] = make([]int, m+1)
	}
	for i := 1; i <= n; i++ {
		score[i][0] = i * scoreGap
	}
	for j := 1; j <= m; j++ {
		score[0][j] = j * scoreGap
	}

	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			diag := score[i-1][j-1] + scoreMismatch
			if wordsEqual(display[i-1], tokens[j-1]) {
				diag = score[i-1][j-1] + scoreMatch
			}
			up := score[i-1][j] + scoreGap
			left := score[i][j-1] + scoreGap
			score[i][j] = max3(diag, up, left)
		}
	}

	// Backtrack from the final cell.
	var rev []op
	i, j := n, m
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && score[i][j] == diagScore(score, display, tokens, i, j):
			rev = append(rev, op{
				kind:    opAlign,
				display: i - 1,
				token:   j - 1,
				isMatch: wordsEqual(display[i-1], tokens[j-1]),
			})
			i--
			j--
		case i > 0 && score[i][j] == score[i-1][j]+scoreGap:
			rev = append(rev, op{kind: opDelete, display: i - 1, token: -1})
			i--
		default:
			rev = append(rev, op{kind: opInsert, display: -1, token: j - 1})
			j--
		}
	}

	// Reverse into left-to-right order.
	script := make([]op, len(rev))
	for k := range rev {
		script[k] = rev[len(rev)-1-k]
	}
	return script
}

func diagScore(score [][]int, display, tokens []string, i, j int) int {
	if wordsEqual(display[i-1], tokens[j-1]) {
		return score[i-1][j-1] + scoreMatch
	}
	return score[i-1][j-1] + scoreMismatch
}

func max3(a, b, c int) int {
	if b > a {
		a = b
	}
	if c > a {
		a = c
	}
	return a
}

// assignTimestamps walks the edit script and copies recognized intervals
// onto aligned display words. Words with no aligned token are left with
// a negative sentinel start for the interpolation pass.
func assignTimestamps(displayWords []string, recognized []RecognizedWord, script []op) []TimedWord {
	words := make([]TimedWord, len(displayWords))
	for i, w := range displayWords {
		words[i] = TimedWord{Text: w, Start: -1, End: -1, Interpolated: true}
	}

	for _, o := range script {
		if o.kind != opAlign {
			continue
		}
		// Substitutions carry usable timing too: the recognizer heard
		// *something* at that position in the audio, so the interval is
		// right even when the word is not.
		tok := recognized[o.token]
		words[o.display] = TimedWord{
			Text:  displayWords[o.display],
			Start: tok.Start,
			End:   tok.End,
		}
	}
	return words
}

// interpolateGaps estimates intervals for unmatched runs. Interior runs
// split the gap between bounding matched neighbors proportionally by
// word length; leading and trailing runs extrapolate from the single
// nearest neighbor using the average matched word duration.
func interpolateGaps(words []TimedWord) {
	avg := averageDuration(words)

	i := 0
	for i < len(words) {
		if !words[i].Interpolated {
			i++
			continue
		}

		// Find the run [i, j) of unmatched words.
		j := i
		for j < len(words) && words[j].Interpolated {
			j++
		}

		switch {
		case i == 0 && j == len(words):
			// Nothing matched at all: lay words out from zero using
			// the fallback duration.
			fillForward(words, 0, 0.0, avg)
		case i == 0:
			// Leading run: extrapolate backwards from the first match.
			start := words[j].Start - avg*float64(j)
			if start < 0 {
				start = 0
			}
			fillForward(words[:j], 0, start, avg)
		case j == len(words):
			// Trailing run: extrapolate forward from the last match.
			fillForward(words, i, words[i-1].End, avg)
		default:
			fillProportional(words, i, j)
		}
		i = j
	}
}

// fillForward assigns consecutive fixed-duration intervals starting at t.
func fillForward(words []TimedWord, from int, t, dur float64) {
	for k := from; k < len(words); k++ {
		if !words[k].Interpolated {
			return
		}
		words[k].Start = t
		words[k].End = t + dur
		t += dur
	}
}

// fillProportional splits the gap between words[i-1].End and
// words[j].Start across words[i:j] proportionally by rune length.
func fillProportional(words []TimedWord, i, j int) {
	gapStart := words[i-1].End
	gapEnd := words[j].Start
	if gapEnd < gapStart {
		gapEnd = gapStart
	}

	total := 0
	for k := i; k < j; k++ {
		total += len([]rune(words[k].Text))
	}
	if total == 0 {
		total = j - i
	}

	t := gapStart
	gap := gapEnd - gapStart
	for k := i; k < j; k++ {
		share := float64(len([]rune(words[k].Text))) / float64(total)
		if share == 0 {
			share = 1.0 / float64(j-i)
		}
		end := t + gap*share
		words[k].Start = t
		words[k].End = end
		t = end
	}
	// Pin the run's final boundary to the gap end to avoid float drift.
	words[j-1].End = gapEnd
}

// averageDuration returns the mean interval of matched words, with a
// fallback for chapters where nothing matched.
func averageDuration(words []TimedWord) float64 {
	const fallback = 0.35 // seconds; typical conversational word length

	var sum float64
	var n int
	for _, w := range words {
		if !w.Interpolated && w.End > w.Start {
			sum += w.End - w.Start
			n++
		}
	}
	if n == 0 {
		return fallback
	}
	return sum / float64(n)
}

// clampMonotonic enforces non-decreasing start times across the full
// sequence. Interpolation near a confidently matched neighbor can land a
// start earlier than the previous word's end; clamp it forward so the
// reader's highlight never moves backwards.
func clampMonotonic(words []TimedWord) {
	for i := 1; i < len(words); i++ {
		prev := words[i-1]
		if words[i].Start < prev.Start {
			words[i].Start = prev.Start
		}
		if words[i].Interpolated && words[i].Start < prev.End {
			words[i].Start = prev.End
		}
		if words[i].End < words[i].Start {
			words[i].End = words[i].Start
		}
	}
}

// String renders an op for debugging.
func (o op) String() string {
	switch o.kind {
	case opAlign:
		return fmt.Sprintf("align(d%d,t%d,match=%t)", o.display, o.token, o.isMatch)
	case opDelete:
		return fmt.Sprintf("delete(d%d)", o.display)
	default:
		return fmt.Sprintf("insert(t%d)", o.token)
	}
}
