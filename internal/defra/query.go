package defra

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// idPattern matches DefraDB docIDs (bae-<uuid>) and simple identifiers.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateID rejects strings that are unsafe to interpolate into a
// GraphQL query. Caller-supplied IDs must pass this before use.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("empty ID")
	}
	if len(id) > 500 {
		return fmt.Errorf("ID too long: %d characters", len(id))
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid ID format: contains unsafe characters")
	}
	return nil
}

// QueryBuilder constructs parameterized GraphQL queries. Filter values
// travel as GraphQL variables, never interpolated into the query text.
type QueryBuilder struct {
	collection string
	filters    []filterDef
	fields     []string
	order      string
	limit      int
	varIndex   int
}

type filterDef struct {
	field   string
	op      string
	varName string
	varType string
	value   any
}

// NewQuery starts a query against collection. Default selection is _docID.
func NewQuery(collection string) *QueryBuilder {
	return &QueryBuilder{
		collection: collection,
		fields:     []string{"_docID"},
	}
}

// Filter adds an equality filter.
func (q *QueryBuilder) Filter(field string, value any) *QueryBuilder {
	return q.addFilter(field, "_eq", inferGraphQLType(value), value)
}

// FilterIn adds an _in filter matching any of values.
func (q *QueryBuilder) FilterIn(field string, values []string) *QueryBuilder {
	return q.addFilter(field, "_in", "[String!]", values)
}

func (q *QueryBuilder) addFilter(field, op, varType string, value any) *QueryBuilder {
	varName := fmt.Sprintf("v%d", q.varIndex)
	q.varIndex++
	q.filters = append(q.filters, filterDef{
		field:   field,
		op:      op,
		varName: varName,
		varType: varType,
		value:   value,
	})
	return q
}

// Fields replaces the selected fields.
func (q *QueryBuilder) Fields(fields ...string) *QueryBuilder {
	q.fields = fields
	return q
}

// OrderBy sets ordering, direction is ASC or DESC.
func (q *QueryBuilder) OrderBy(field, direction string) *QueryBuilder {
	q.order = fmt.Sprintf("{%s: %s}", field, direction)
	return q
}

// Limit caps the result count.
func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limit = n
	return q
}

// Build returns the query text and its variables map.
func (q *QueryBuilder) Build() (string, map[string]any) {
	var varDefs []string
	vars := make(map[string]any)
	for _, f := range q.filters {
		varDefs = append(varDefs, fmt.Sprintf("$%s: %s", f.varName, f.varType))
		vars[f.varName] = f.value
	}

	var filterParts []string
	for _, f := range q.filters {
		filterParts = append(filterParts, fmt.Sprintf("%s: {%s: $%s}", f.field, f.op, f.varName))
	}

	var query strings.Builder
	if len(varDefs) > 0 {
		query.WriteString(fmt.Sprintf("query(%s) ", strings.Join(varDefs, ", ")))
	}
	query.WriteString("{ ")
	query.WriteString(q.collection)

	var args []string
	if len(filterParts) > 0 {
		args = append(args, fmt.Sprintf("filter: {%s}", strings.Join(filterParts, ", ")))
	}
	if q.order != "" {
		args = append(args, fmt.Sprintf("order: %s", q.order))
	}
	if q.limit > 0 {
		args = append(args, fmt.Sprintf("limit: %d", q.limit))
	}
	if len(args) > 0 {
		query.WriteString(fmt.Sprintf("(%s)", strings.Join(args, ", ")))
	}

	query.WriteString(" { ")
	query.WriteString(strings.Join(q.fields, " "))
	query.WriteString(" } }")

	return query.String(), vars
}

// Execute builds and runs the query on client.
func (q *QueryBuilder) Execute(ctx context.Context, client *Client) (*GQLResponse, error) {
	query, vars := q.Build()
	return client.Execute(ctx, query, vars)
}

func inferGraphQLType(v any) string {
	switch v.(type) {
	case string:
		return "String"
	case int, int32, int64:
		return "Int"
	case float32, float64:
		return "Float"
	case bool:
		return "Boolean"
	default:
		return "String"
	}
}
