package content

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/cuentosapp/cuentos-server/internal/align"
	"github.com/cuentosapp/cuentos-server/internal/parser"
)

func parseFixture(t *testing.T) parser.Chapter {
	t.Helper()
	text := "Capítulo 1\n\nHola mundo pequeño. Adiós mundo grande."
	doc, err := parser.Parse(context.Background(), "f.txt", []byte(text))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return doc.Chapters[0]
}

func TestFromChapter(t *testing.T) {
	doc := FromChapter(parseFixture(t))

	if len(doc.Paragraphs) != 1 {
		t.Fatalf("expected 1 paragraph, got %d", len(doc.Paragraphs))
	}
	if len(doc.Sentences) != 2 {
		t.Fatalf("expected 2 flat sentences, got %d", len(doc.Sentences))
	}
	if doc.WordCount() != 6 {
		t.Fatalf("expected 6 words, got %d", doc.WordCount())
	}
	for _, s := range doc.Sentences {
		for _, w := range s.Words {
			if w.StartTime != nil || w.EndTime != nil {
				t.Errorf("word %q has timings before alignment", w.Text)
			}
		}
	}
}

func TestApplyTimings(t *testing.T) {
	doc := FromChapter(parseFixture(t))

	res := &align.Result{}
	for i := 0; i < doc.WordCount(); i++ {
		res.Words = append(res.Words, align.TimedWord{
			Text:  "w",
			Start: float64(i),
			End:   float64(i) + 0.5,
		})
	}

	if err := doc.ApplyTimings(res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := doc.Paragraphs[0].Sentences[0].Words[0]
	if first.StartTime == nil || *first.StartTime != 0 {
		t.Errorf("first word start = %v", first.StartTime)
	}
	// Flat sentences share the timed words.
	flat := doc.Sentences[0].Words[0]
	if flat.StartTime == nil || *flat.StartTime != 0 {
		t.Errorf("flat sentence word start = %v", flat.StartTime)
	}
}

func TestApplyTimings_LengthMismatch(t *testing.T) {
	doc := FromChapter(parseFixture(t))
	err := doc.ApplyTimings(&align.Result{Words: []align.TimedWord{{Text: "x"}}})
	if err == nil {
		t.Fatal("expected error for word count mismatch")
	}
}

func TestMarshal_ContractFieldNames(t *testing.T) {
	doc := FromChapter(parseFixture(t))
	data, err := doc.Marshal()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := string(data)
	for _, field := range []string{`"paragraphs"`, `"sentences"`, `"words"`, `"start_time"`, `"end_time"`} {
		if !strings.Contains(s, field) {
			t.Errorf("serialized document missing %s", field)
		}
	}
}

func TestUnmarshal_RoundTrip(t *testing.T) {
	doc := FromChapter(parseFixture(t))
	data, err := doc.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	back, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.WordCount() != doc.WordCount() {
		t.Errorf("round trip word count %d != %d", back.WordCount(), doc.WordCount())
	}
}

func TestValidateJSON_RejectsOffContract(t *testing.T) {
	bad, _ := json.Marshal(map[string]any{"paragraphs": "not an array"})
	if err := ValidateJSON(bad); err == nil {
		t.Fatal("expected schema violation")
	}
}
