package audit

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrSchema matches any failure to map the input columns.
var ErrSchema = errors.New("audit: input schema invalid")

// Field is one of the four logical input columns.
type Field string

const (
	FieldDate     Field = "date"
	FieldBase     Field = "base"
	FieldSource   Field = "source"
	FieldUserRate Field = "user_rate"
)

// FieldSynonyms lists the accepted header names for one logical field; the first entry
// is the canonical example shown in error messages.
type FieldSynonyms struct {
	Field Field
	Names []string
}

// Synonyms is the header table, in matching order.
var Synonyms = []FieldSynonyms{
	{Field: FieldDate, Names: []string{"Date", "Transaction Date", "Trade Date"}},
	{Field: FieldBase, Names: []string{"Base", "Base Currency", "base_currency", "From"}},
	{Field: FieldSource, Names: []string{"Source", "Source Currency", "source_currency", "To", "Target"}},
	{Field: FieldUserRate, Names: []string{"User Rate", "user_rate", "Rate", "Exchange Rate", "exchange_rate", "FX Rate"}},
}

// TemplateHeaders is the canonical header row for a blank audit file.
var TemplateHeaders = []string{"Date", "Base Currency", "Source Currency", "User Rate"}

// NormalizeHeader lower-cases a header and removes every whitespace rune.
func NormalizeHeader(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// Mapping gives the column index of each logical field.
type Mapping map[Field]int

// Describe renders the mapping as field='Header' pairs in table order.
func (m Mapping) Describe(headers []string) string {
	parts := make([]string, 0, len(Synonyms))
	for _, syn := range Synonyms {
		if idx, ok := m[syn.Field]; ok && idx < len(headers) {
			parts = append(parts, fmt.Sprintf("%s='%s'", syn.Field, headers[idx]))
		}
	}
	return strings.Join(parts, ", ")
}

// SchemaError lists the logical fields with no matching column.
type SchemaError struct {
	Missing []Field
}

func (e *SchemaError) Error() string {
	parts := make([]string, 0, len(e.Missing))
	for _, f := range e.Missing {
		parts = append(parts, fmt.Sprintf("%s (e.g., %s)", f, exampleFor(f)))
	}
	return "Missing required columns. Expected one of each: " + strings.Join(parts, ", ")
}

func (e *SchemaError) Unwrap() error { return ErrSchema }

func exampleFor(f Field) string {
	for _, syn := range Synonyms {
		if syn.Field == f && len(syn.Names) > 0 {
			return syn.Names[0]
		}
	}
	return string(f)
}

// MapColumns matches headers against the synonym table. For each field the first
// column, in file order, whose normalised name is a synonym wins.
func MapColumns(headers []string) (Mapping, error) {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = NormalizeHeader(h)
	}

	m := make(Mapping, len(Synonyms))
	used := make(map[int]struct{}, len(Synonyms))
	var missing []Field
	for _, syn := range Synonyms {
		accepted := make(map[string]struct{}, len(syn.Names))
		for _, n := range syn.Names {
			accepted[NormalizeHeader(n)] = struct{}{}
		}
		found := -1
		for i, h := range normalized {
			if _, taken := used[i]; taken {
				continue
			}
			if _, ok := accepted[h]; ok {
				found = i
				break
			}
		}
		if found < 0 {
			missing = append(missing, syn.Field)
			continue
		}
		m[syn.Field] = found
		used[found] = struct{}{}
	}

	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}
	return m, nil
}
