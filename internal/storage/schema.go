package storage

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

var validColumn = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Reserved record columns; upstream fields with these names are prefixed.
var reservedColumns = map[string]struct{}{
	"id":           {},
	"changed_at":   {},
	"retrieved_at": {},
	"call_hash":    {},
	"record_id":    {},
	"file_id":      {},
}

// NormalizeFieldName maps an upstream field name onto a safe column name.
// Names are case-folded, since SQLite and unquoted Postgres identifiers are
// case-insensitive. Dashes and other punctuation become underscores and
// reserved names get a "field_" prefix.
func NormalizeFieldName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r == '_' || r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" || unicode.IsDigit(rune(out[0])) {
		out = "f_" + out
	}
	if _, ok := reservedColumns[out]; ok {
		out = "field_" + out
	}
	return out
}

// SchemaRegistry tracks the known columns of each dynamic table so writes
// can diff-and-extend the schema before inserting.
type SchemaRegistry struct {
	mu     sync.RWMutex
	tables map[string][]string
	known  map[string]map[string]struct{}
}

// NewSchemaRegistry returns an empty registry.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{
		tables: make(map[string][]string),
		known:  make(map[string]map[string]struct{}),
	}
}

// Register records existing columns for table, ignoring duplicates.
func (r *SchemaRegistry) Register(table string, columns ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.known[table]
	if !ok {
		set = make(map[string]struct{})
		r.known[table] = set
	}
	for _, c := range columns {
		if _, seen := set[c]; seen {
			continue
		}
		set[c] = struct{}{}
		r.tables[table] = append(r.tables[table], c)
	}
}

// Columns returns the known columns of table in registration order.
func (r *SchemaRegistry) Columns(table string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.tables[table]...)
}

// Has reports whether column is known for table.
func (r *SchemaRegistry) Has(table, column string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.known[table][column]
	return ok
}

// Missing returns, in first-seen order and without duplicates, the columns
// not yet known for table. Invalid names yield an error.
func (r *SchemaRegistry) Missing(table string, columns []string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	seen := make(map[string]struct{})
	for _, c := range columns {
		if !validColumn.MatchString(c) {
			return nil, fmt.Errorf("invalid column name %q", c)
		}
		if _, ok := r.known[table][c]; ok {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

// BatchColumns collects the field names of records in first-seen order.
func BatchColumns(records []RawRecord) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, rec := range records {
		for _, f := range rec.Fields {
			if _, ok := seen[f.Name]; ok {
				continue
			}
			seen[f.Name] = struct{}{}
			out = append(out, f.Name)
		}
	}
	return out
}

// AttachmentColumns collects the descriptor field names of attachments.
func AttachmentColumns(atts []Attachment) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, a := range atts {
		for _, f := range a.Fields {
			if _, ok := seen[f.Name]; ok {
				continue
			}
			seen[f.Name] = struct{}{}
			out = append(out, f.Name)
		}
	}
	return out
}

// QuoteIdent double-quotes a validated identifier for SQL text.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
