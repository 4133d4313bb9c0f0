// Package content defines the persisted chapter-content JSON document.
// This is the consumer-facing contract for the interactive reader: field
// names and nesting are fixed, and the flat sentences array is retained
// for the legacy reader front end.
package content

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cuentosapp/cuentos-server/internal/align"
	"github.com/cuentosapp/cuentos-server/internal/parser"
)

// Word is one display word with its playback interval. Times are seconds
// from the start of the chapter audio; null until alignment has run.
type Word struct {
	Text      string   `json:"text"`
	StartTime *float64 `json:"start_time"`
	EndTime   *float64 `json:"end_time"`
}

// Sentence is one sentence with its timed words.
type Sentence struct {
	Text  string `json:"text"`
	Words []Word `json:"words"`
}

// Paragraph carries the raw paragraph text plus its derived sentences.
type Paragraph struct {
	Text      string     `json:"text"`
	Sentences []Sentence `json:"sentences"`
}

// Document is the full chapter content payload stored on a Chapter
// record and served to the reader.
type Document struct {
	Paragraphs []Paragraph `json:"paragraphs"`

	// Sentences flattens all paragraphs' sentences. Retained for
	// backward compatibility with the original reader.
	Sentences []Sentence `json:"sentences"`
}

// FromChapter builds an untimed content document from a parsed chapter.
// Word timestamps stay null until ApplyTimings runs after synthesis.
func FromChapter(ch parser.Chapter) *Document {
	doc := &Document{}
	for _, p := range ch.Paragraphs {
		para := Paragraph{Text: p.Text}
		for _, s := range p.Sentences {
			sent := Sentence{Text: s.Text}
			for _, w := range s.Words {
				sent.Words = append(sent.Words, Word{Text: w.Surface})
			}
			para.Sentences = append(para.Sentences, sent)
		}
		doc.Paragraphs = append(doc.Paragraphs, para)
	}
	doc.rebuildFlatSentences()
	return doc
}

// ApplyTimings writes an alignment result onto the document's words in
// reading order. The result must cover exactly the document's words.
func (d *Document) ApplyTimings(res *align.Result) error {
	total := d.WordCount()
	if len(res.Words) != total {
		return fmt.Errorf("alignment result has %d words, document has %d", len(res.Words), total)
	}

	i := 0
	for pi := range d.Paragraphs {
		for si := range d.Paragraphs[pi].Sentences {
			words := d.Paragraphs[pi].Sentences[si].Words
			for wi := range words {
				tw := res.Words[i]
				start, end := tw.Start, tw.End
				words[wi].StartTime = &start
				words[wi].EndTime = &end
				i++
			}
		}
	}
	d.rebuildFlatSentences()
	return nil
}

// DisplayWords returns the document's words in reading order.
func (d *Document) DisplayWords() []string {
	var words []string
	for _, p := range d.Paragraphs {
		for _, s := range p.Sentences {
			for _, w := range s.Words {
				words = append(words, w.Text)
			}
		}
	}
	return words
}

// Text reassembles the narration text, paragraphs separated by blank
// lines. This is what gets sent to synthesis.
func (d *Document) Text() string {
	parts := make([]string, 0, len(d.Paragraphs))
	for _, p := range d.Paragraphs {
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, "\n\n")
}

// WordCount returns the number of words across all paragraphs.
func (d *Document) WordCount() int {
	n := 0
	for _, p := range d.Paragraphs {
		for _, s := range p.Sentences {
			n += len(s.Words)
		}
	}
	return n
}

func (d *Document) rebuildFlatSentences() {
	d.Sentences = d.Sentences[:0]
	for _, p := range d.Paragraphs {
		d.Sentences = append(d.Sentences, p.Sentences...)
	}
}

// Marshal serializes the document after validating it against the
// embedded schema. Persisting an off-contract document would break the
// reader, so this is checked at the write boundary rather than trusted.
func (d *Document) Marshal() ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	if err := ValidateJSON(data); err != nil {
		return nil, err
	}
	return data, nil
}

// Unmarshal parses and validates a stored content document.
func Unmarshal(data []byte) (*Document, error) {
	if err := ValidateJSON(data); err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
