package align

import (
	"errors"
	"math"
	"testing"
)

func rw(text string, start, end float64) RecognizedWord {
	return RecognizedWord{Text: text, Start: start, End: end, Confidence: 1.0}
}

func TestAlign_EmptyRecognized(t *testing.T) {
	_, err := Align([]string{"hola"}, nil, nil, "")
	if !errors.Is(err, ErrAlignmentImpossible) {
		t.Fatalf("expected ErrAlignmentImpossible, got %v", err)
	}
}

func TestAlign_ExactRoundTrip(t *testing.T) {
	display := []string{"hola", "mi", "nombre", "es", "maria"}
	recognized := []RecognizedWord{
		rw("hola", 0.0, 0.5),
		rw("mi", 0.6, 0.8),
		rw("nombre", 0.9, 1.4),
		rw("es", 1.5, 1.7),
		rw("maria", 1.8, 2.3),
	}

	res, err := Align(display, display, recognized, "hola mi nombre es maria")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Words) != len(display) {
		t.Fatalf("expected %d words, got %d", len(display), len(res.Words))
	}
	if res.Interpolated != 0 {
		t.Errorf("expected zero interpolated words, got %d", res.Interpolated)
	}
	for i, w := range res.Words {
		if w.Start != recognized[i].Start || w.End != recognized[i].End {
			t.Errorf("word %d: got [%v,%v], want [%v,%v]",
				i, w.Start, w.End, recognized[i].Start, recognized[i].End)
		}
	}
}

func TestAlign_CaseDiacriticTolerant(t *testing.T) {
	display := []string{"Hola", "mi", "nombre", "es", "María"}
	recognized := []RecognizedWord{
		rw("hola", 0.0, 0.5),
		rw("mi", 0.6, 0.8),
		rw("nombre", 0.9, 1.4),
		rw("es", 1.5, 1.7),
		rw("maria", 1.8, 2.3),
	}

	res, err := Align(display, nil, recognized, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Matched != 5 || res.Interpolated != 0 {
		t.Fatalf("expected 5 matched / 0 interpolated, got %d/%d", res.Matched, res.Interpolated)
	}
	for i, w := range res.Words {
		if w.Text != display[i] {
			t.Errorf("word %d: display text %q mangled to %q", i, display[i], w.Text)
		}
		if w.Start != recognized[i].Start || w.End != recognized[i].End {
			t.Errorf("word %d: got [%v,%v], want [%v,%v]",
				i, w.Start, w.End, recognized[i].Start, recognized[i].End)
		}
	}
}

func TestAlign_MissingWordInterpolated(t *testing.T) {
	display := []string{"el", "gato", "negro", "salta", "alto"}
	// Recognizer missed "negro" (3rd of 5).
	recognized := []RecognizedWord{
		rw("el", 0.0, 0.2),
		rw("gato", 0.3, 0.7),
		rw("salta", 1.5, 1.9),
		rw("alto", 2.0, 2.4),
	}

	res, err := Align(display, nil, recognized, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Words) != 5 {
		t.Fatalf("expected 5 words, got %d", len(res.Words))
	}

	// Words 1,2,4,5 keep exact recognized timestamps.
	exact := map[int]RecognizedWord{0: recognized[0], 1: recognized[1], 3: recognized[2], 4: recognized[3]}
	for i, want := range exact {
		got := res.Words[i]
		if got.Interpolated {
			t.Errorf("word %d unexpectedly interpolated", i)
		}
		if got.Start != want.Start || got.End != want.End {
			t.Errorf("word %d: got [%v,%v], want [%v,%v]", i, got.Start, got.End, want.Start, want.End)
		}
	}

	// Word 3 is interpolated inside the gap.
	mid := res.Words[2]
	if !mid.Interpolated {
		t.Fatal("expected word 3 to be interpolated")
	}
	if mid.Start < 0.7 || mid.End > 1.5 {
		t.Errorf("interpolated interval [%v,%v] outside gap [0.7,1.5]", mid.Start, mid.End)
	}
	if res.Interpolated != 1 {
		t.Errorf("expected 1 interpolated word, got %d", res.Interpolated)
	}
}

func TestAlign_LeadingAndTrailingGaps(t *testing.T) {
	display := []string{"uno", "dos", "tres", "cuatro"}
	// Only the middle two recognized.
	recognized := []RecognizedWord{
		rw("dos", 1.0, 1.4),
		rw("tres", 1.5, 1.9),
	}

	res, err := Align(display, nil, recognized, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Words) != 4 {
		t.Fatalf("expected 4 words, got %d", len(res.Words))
	}

	if !res.Words[0].Interpolated || !res.Words[3].Interpolated {
		t.Error("expected first and last words to be interpolated")
	}
	if res.Words[0].Start < 0 {
		t.Errorf("leading extrapolation produced negative start %v", res.Words[0].Start)
	}
	if res.Words[3].Start < res.Words[2].End {
		t.Errorf("trailing word starts at %v before previous end %v", res.Words[3].Start, res.Words[2].End)
	}
}

func TestAlign_MonotonicStarts(t *testing.T) {
	tests := []struct {
		name       string
		display    []string
		recognized []RecognizedWord
	}{
		{
			name:    "garbage recognition",
			display: []string{"había", "una", "vez", "una", "princesa"},
			recognized: []RecognizedWord{
				rw("zzz", 0.0, 0.3),
				rw("qqq", 0.4, 0.6),
			},
		},
		{
			name:    "more tokens than words",
			display: []string{"el", "fin"},
			recognized: []RecognizedWord{
				rw("y", 0.0, 0.1),
				rw("el", 0.2, 0.3),
				rw("gran", 0.4, 0.6),
				rw("fin", 0.7, 0.9),
				rw("ya", 1.0, 1.1),
			},
		},
		{
			name:    "single token",
			display: []string{"una", "larga", "historia", "termina", "aquí"},
			recognized: []RecognizedWord{
				rw("historia", 2.0, 2.5),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Align(tt.display, nil, tt.recognized, "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(res.Words) != len(tt.display) {
				t.Fatalf("expected %d words, got %d", len(tt.display), len(res.Words))
			}
			for i := 1; i < len(res.Words); i++ {
				if res.Words[i].Start < res.Words[i-1].Start {
					t.Errorf("start times decrease at %d: %v < %v",
						i, res.Words[i].Start, res.Words[i-1].Start)
				}
			}
			for i, w := range res.Words {
				if w.End < w.Start {
					t.Errorf("word %d: end %v before start %v", i, w.End, w.Start)
				}
				if math.IsNaN(w.Start) || math.IsNaN(w.End) {
					t.Errorf("word %d: NaN timestamp", i)
				}
			}
		})
	}
}

func TestAlign_SubstitutionTakesTokenInterval(t *testing.T) {
	display := []string{"el", "niño", "corre"}
	recognized := []RecognizedWord{
		rw("el", 0.0, 0.2),
		rw("niña", 0.3, 0.7), // near-match substitution
		rw("corre", 0.8, 1.2),
	}

	res, err := Align(display, nil, recognized, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w := res.Words[1]
	if w.Interpolated {
		t.Fatal("substituted word should carry the token interval, not interpolate")
	}
	if w.Start != 0.3 || w.End != 0.7 {
		t.Errorf("got [%v,%v], want [0.3,0.7]", w.Start, w.End)
	}
}

func TestWordsEqual(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"esta", "esta", true},
		{"esta", "está", true}, // callers normalize first, but distance 1 holds anyway
		{"nino", "nina", true},
		{"maria", "marian", true},
		{"el", "le", false}, // short words need exact match
		{"gato", "perro", false},
		{"", "", false},
		{"encantamiento", "encantamien", true}, // long shared prefix
	}

	for _, tt := range tests {
		if got := wordsEqual(tt.a, tt.b); got != tt.want {
			t.Errorf("wordsEqual(%q, %q) = %t, want %t", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestEditDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"a", "", 1},
		{"gato", "gato", 0},
		{"gato", "pato", 1},
		{"nino", "nina", 1},
		{"casa", "cosas", 2},
	}
	for _, tt := range tests {
		if got := editDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("editDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
