package content

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// contentSchema pins the reader contract: paragraphs with nested
// sentences and timed words, plus the legacy flat sentences array.
const contentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["paragraphs", "sentences"],
  "properties": {
    "paragraphs": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["text", "sentences"],
        "properties": {
          "text": {"type": "string"},
          "sentences": {"$ref": "#/$defs/sentences"}
        }
      }
    },
    "sentences": {"$ref": "#/$defs/sentences"}
  },
  "$defs": {
    "sentences": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["text", "words"],
        "properties": {
          "text": {"type": "string"},
          "words": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["text", "start_time", "end_time"],
              "properties": {
                "text": {"type": "string", "minLength": 1},
                "start_time": {"type": ["number", "null"], "minimum": 0},
                "end_time": {"type": ["number", "null"], "minimum": 0}
              }
            }
          }
        }
      }
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("chapter_content.json", contentSchema)

// ValidateJSON checks raw bytes against the chapter content schema.
func ValidateJSON(data []byte) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid content JSON: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return fmt.Errorf("content document off contract: %w", err)
	}
	return nil
}
