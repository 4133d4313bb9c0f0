package parser

import "fmt"

// MinChapterWords is the threshold below which a chapter is flagged as
// suspiciously short. Title pages and dedications commonly trip this;
// the admin reviews the warning rather than the parse failing.
const MinChapterWords = 25

// ValidationReport collects warnings about a parsed document. Warnings
// never fail the parse; only a document with zero chapters is a hard
// failure, and Parse reports that before validation runs.
type ValidationReport struct {
	ChapterCount int      `json:"chapter_count"`
	Warnings     []string `json:"warnings,omitempty"`
}

// OK reports whether validation produced no warnings.
func (r ValidationReport) OK() bool {
	return len(r.Warnings) == 0
}

// Validate checks structural invariants of a parsed document: every
// chapter has a non-zero word count, indices are contiguous from 0, and
// short chapters are flagged.
func Validate(doc *ParsedDocument) (ValidationReport, error) {
	report := ValidationReport{ChapterCount: len(doc.Chapters)}

	if len(doc.Chapters) == 0 {
		return report, ErrChapterDetectionFailed
	}

	for i, ch := range doc.Chapters {
		if ch.Index != i {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("chapter %q has index %d, expected %d", ch.Title, ch.Index, i))
		}
		if ch.WordCount == 0 {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("chapter %d (%q) has no words", i, ch.Title))
			continue
		}
		if ch.WordCount < MinChapterWords {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("chapter %d (%q) is suspiciously short: %d words", i, ch.Title, ch.WordCount))
		}
	}
	return report, nil
}
