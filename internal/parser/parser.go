// Package parser turns an uploaded manuscript into a structured document:
// chapters, sentences, and words, plus aggregate counts. Parsing is a pure
// function over the input bytes; all file I/O happens at the caller's
// boundary.
package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/cuentosapp/cuentos-server/internal/segment"
)

// Sentinel errors surfaced to the job layer and the preview endpoint.
var (
	ErrUnsupportedFormat      = errors.New("unsupported manuscript format")
	ErrEmptyDocument          = errors.New("no extractable text in document")
	ErrChapterDetectionFailed = errors.New("no chapter boundaries detected")
)

// Sentence is one sentence of a chapter with its segmented words.
type Sentence struct {
	Text  string         `json:"text"`
	Words []segment.Word `json:"words"`
}

// Paragraph groups the sentences of one manuscript paragraph.
type Paragraph struct {
	Text      string     `json:"text"`
	Sentences []Sentence `json:"sentences"`
}

// Chapter is one detected chapter, index 0-based within the book.
type Chapter struct {
	Title      string      `json:"title"`
	Index      int         `json:"index"`
	Paragraphs []Paragraph `json:"paragraphs"`
	WordCount  int         `json:"word_count"`
	Preview    string      `json:"preview"`
}

// ParsedDocument is the parser's output. It is transient: the job layer
// persists a summary plus per-chapter content, never this struct verbatim.
type ParsedDocument struct {
	Chapters      []Chapter     `json:"chapters"`
	ChapterCount  int           `json:"chapter_count"`
	WordCount     int           `json:"word_count"`
	SentenceCount int           `json:"sentence_count"`
	Duration      time.Duration `json:"-"`
}

const previewRunes = 120

// Chapter heading patterns. These heuristics are a documented design
// choice, not a preserved contract: heading-style lines win over gap
// detection, and gap detection only runs when no headings were found.
var (
	chapterNumberRe = regexp.MustCompile(`^(?i)\s*(cap[ií]tulo|chapter)\s+([0-9]+|[ivxlcdm]+)\b[\s.:–—-]*(.*)$`)
	numberedLineRe  = regexp.MustCompile(`^\s*([0-9]{1,3})[.)]\s+(\S.*)?$`)
	markdownHeadRe  = regexp.MustCompile(`^\s*#{1,3}\s+(.+?)\s*#*\s*$`)
)

// Parse segments the manuscript in data into chapters, sentences, and
// words. filename selects the extraction path by extension. It returns
// ErrUnsupportedFormat for unknown containers, ErrEmptyDocument when no
// text survives extraction, and ErrChapterDetectionFailed when the
// heuristics find zero chapter boundaries.
func Parse(ctx context.Context, filename string, data []byte) (*ParsedDocument, error) {
	start := time.Now()

	text, err := extractText(filename, data)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyDocument
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sections := detectChapters(text)
	if len(sections) == 0 {
		return nil, ErrChapterDetectionFailed
	}

	doc := &ParsedDocument{}
	for i, sec := range sections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ch := buildChapter(i, sec)
		doc.SentenceCount += countSentences(ch)
		doc.WordCount += ch.WordCount
		doc.Chapters = append(doc.Chapters, ch)
	}
	doc.ChapterCount = len(doc.Chapters)
	doc.Duration = time.Since(start)
	return doc, nil
}

// extractText resolves the container format from the filename extension
// and returns the manuscript's raw text in document order.
func extractText(filename string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md", ".markdown":
		return decodePlainText(data)
	case ".pdf":
		return extractPDFText(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

// decodePlainText tolerates a UTF-8 BOM and rejects binary payloads
// masquerading as text.
func decodePlainText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if bytes.ContainsRune(data, 0x00) {
		return "", fmt.Errorf("%w: binary content in text file", ErrUnsupportedFormat)
	}
	return string(data), nil
}

// section is a detected chapter boundary plus its body text.
type section struct {
	title string
	body  string
}

// detectChapters partitions the manuscript. Two passes: a heading scan
// ("Capítulo N", "Chapter N", numbered lines, markdown headings, short
// ALL-CAPS lines), then a large-gap fallback (runs of three or more
// blank lines) when no headings matched.
func detectChapters(text string) []section {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")

	type boundary struct {
		line  int
		title string
	}
	var bounds []boundary
	for i, line := range lines {
		if title, ok := headingTitle(line); ok {
			bounds = append(bounds, boundary{line: i, title: title})
		}
	}

	if len(bounds) > 0 {
		var sections []section
		for bi, b := range bounds {
			end := len(lines)
			if bi+1 < len(bounds) {
				end = bounds[bi+1].line
			}
			body := strings.Join(lines[b.line+1:end], "\n")
			if strings.TrimSpace(body) == "" {
				continue
			}
			sections = append(sections, section{title: b.title, body: body})
		}
		return sections
	}

	return gapSections(lines)
}

// headingTitle reports whether a line looks like a chapter heading and
// returns the title to use for it.
func headingTitle(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", false
	}

	if m := chapterNumberRe.FindStringSubmatch(trimmed); m != nil {
		title := strings.TrimSpace(m[3])
		if title == "" {
			title = trimmed
		}
		return title, true
	}
	if m := markdownHeadRe.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	if m := numberedLineRe.FindStringSubmatch(trimmed); m != nil && len([]rune(trimmed)) <= 60 {
		title := strings.TrimSpace(m[2])
		if title == "" {
			title = m[1]
		}
		return title, true
	}
	if isShortAllCaps(trimmed) {
		return trimmed, true
	}
	return "", false
}

// isShortAllCaps matches standalone heading lines like "EL BOSQUE".
// Requires at least one letter, every letter uppercase, and a short line
// without sentence-terminal punctuation.
func isShortAllCaps(line string) bool {
	if len([]rune(line)) > 40 || strings.ContainsAny(line, ".!?") {
		return false
	}
	letters := 0
	for _, r := range line {
		if unicode.IsLetter(r) {
			letters++
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return letters >= 2
}

var largeGapRe = regexp.MustCompile(`\n[ \t]*\n[ \t]*\n[ \t]*\n+`)

// gapSections splits on runs of three or more blank lines. A manuscript
// with no headings and no large gaps yields no sections, which the
// caller reports as ErrChapterDetectionFailed.
func gapSections(lines []string) []section {
	text := strings.Join(lines, "\n")
	chunks := largeGapRe.Split(text, -1)
	if len(chunks) < 2 {
		return nil
	}

	var sections []section
	for _, chunk := range chunks {
		body := strings.TrimSpace(chunk)
		if body == "" {
			continue
		}
		sections = append(sections, section{
			title: fmt.Sprintf("Parte %d", len(sections)+1),
			body:  body,
		})
	}
	if len(sections) < 2 {
		return nil
	}
	return sections
}

// buildChapter segments a section body into paragraphs, sentences, and
// words, and derives the word count and preview.
func buildChapter(index int, sec section) Chapter {
	ch := Chapter{
		Title: sec.title,
		Index: index,
	}
	if ch.Title == "" {
		ch.Title = fmt.Sprintf("Capítulo %d", index+1)
	}

	for _, para := range segment.Paragraphs(sec.body) {
		p := Paragraph{Text: para}
		for _, sent := range segment.Sentences(para) {
			words := segment.Words(sent)
			if len(words) == 0 {
				continue
			}
			p.Sentences = append(p.Sentences, Sentence{Text: sent, Words: words})
			ch.WordCount += len(words)
		}
		if len(p.Sentences) > 0 {
			ch.Paragraphs = append(ch.Paragraphs, p)
		}
	}

	ch.Preview = makePreview(sec.body)
	return ch
}

func makePreview(body string) string {
	flat := strings.Join(strings.Fields(body), " ")
	rs := []rune(flat)
	if len(rs) <= previewRunes {
		return flat
	}
	return string(rs[:previewRunes]) + "…"
}

func countSentences(ch Chapter) int {
	n := 0
	for _, p := range ch.Paragraphs {
		n += len(p.Sentences)
	}
	return n
}

// DisplayWords flattens a chapter's words in reading order.
func (c Chapter) DisplayWords() []string {
	words := make([]string, 0, c.WordCount)
	for _, p := range c.Paragraphs {
		for _, s := range p.Sentences {
			for _, w := range s.Words {
				words = append(words, w.Surface)
			}
		}
	}
	return words
}

// Text reassembles the chapter's paragraphs for synthesis input.
func (c Chapter) Text() string {
	parts := make([]string, 0, len(c.Paragraphs))
	for _, p := range c.Paragraphs {
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, "\n\n")
}
