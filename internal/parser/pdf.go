package parser

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// extractPDFText pulls text out of a PDF manuscript by decoding the
// text-showing operators (Tj, TJ, ') in each page's content stream.
// This handles the simple, text-first PDFs produced by word processors;
// scanned/image PDFs yield no text and surface as ErrEmptyDocument.
func extractPDFText(data []byte) (string, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	var sb strings.Builder
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", pageNr, err)
		}
		if r == nil {
			continue
		}
		content, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("read page %d content: %w", pageNr, err)
		}
		sb.WriteString(decodeContentText(content))
		sb.WriteString("\n\n")
	}
	return sb.String(), nil
}

// decodeContentText scans a page content stream for literal strings fed
// to text-showing operators and reassembles them in stream order. Text
// positioning operators (Td, TD, T*) become newlines so paragraph
// structure survives well enough for chapter detection.
func decodeContentText(content []byte) string {
	var out strings.Builder
	var pending []string // literal strings since the last operator

	i := 0
	for i < len(content) {
		c := content[i]
		switch {
		case c == '(':
			s, next := readLiteralString(content, i)
			pending = append(pending, s)
			i = next
		case c == '[':
			i++
		case c == '%':
			// Comment runs to end of line.
			for i < len(content) && content[i] != '\n' {
				i++
			}
		default:
			if isOperatorStart(c) {
				op, next := readToken(content, i)
				switch op {
				case "Tj", "TJ", "'", "\"":
					for _, s := range pending {
						out.WriteString(s)
					}
					out.WriteByte(' ')
					pending = pending[:0]
				case "Td", "TD", "T*", "ET":
					pending = pending[:0]
					out.WriteByte('\n')
				}
				i = next
			} else {
				i++
			}
		}
	}
	return out.String()
}

func isOperatorStart(c byte) bool {
	return c == '\'' || c == '"' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || c == '*'
}

// readToken reads an operator or keyword token starting at i.
func readToken(content []byte, i int) (string, int) {
	start := i
	for i < len(content) {
		c := content[i]
		if c == '\'' || c == '"' {
			i++
			break
		}
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || c == '*' {
			i++
			continue
		}
		break
	}
	return string(content[start:i]), i
}

// readLiteralString parses a PDF literal string "(...)" starting at i,
// handling nested parens, escape sequences, and octal escapes. Returns
// the decoded string and the index after the closing paren.
func readLiteralString(content []byte, i int) (string, int) {
	var sb strings.Builder
	depth := 0
	for i < len(content) {
		c := content[i]
		switch c {
		case '(':
			depth++
			if depth > 1 {
				sb.WriteByte(c)
			}
			i++
		case ')':
			depth--
			if depth == 0 {
				return sb.String(), i + 1
			}
			sb.WriteByte(c)
			i++
		case '\\':
			if i+1 >= len(content) {
				return sb.String(), i + 1
			}
			esc := content[i+1]
			switch esc {
			case 'n':
				sb.WriteByte('\n')
				i += 2
			case 'r', 't', 'b', 'f':
				sb.WriteByte(' ')
				i += 2
			case '(', ')', '\\':
				sb.WriteByte(esc)
				i += 2
			default:
				if esc >= '0' && esc <= '7' {
					// Up to three octal digits.
					j := i + 1
					for j < len(content) && j < i+4 && content[j] >= '0' && content[j] <= '7' {
						j++
					}
					if v, err := strconv.ParseUint(string(content[i+1:j]), 8, 16); err == nil && v < 256 {
						sb.WriteByte(byte(v))
					}
					i = j
				} else {
					sb.WriteByte(esc)
					i += 2
				}
			}
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String(), i
}
