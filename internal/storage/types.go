// Package storage defines the harvested record model and the idempotent,
// schema-growing persistence contract shared by the storage backends.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/reliefweb-corpus/internal/staleness"
)

// Table names used by every backend.
const (
	TableRecords     = "raw_records"
	TableCalls       = "call_log"
	TableAnnotations = "annotated_documents"
	TableAttachments = "attachments"
	TableAbout       = "about"
)

// SchemaVersion is written to the about table when a store is opened.
const SchemaVersion = "1"

// Well-known about keys.
const (
	AboutSchemaVersion = "schema_version"
	AboutCreatedAt     = "created_at"
	AboutLastCrawl     = "last_crawl"
	AboutLastAnnotate  = "last_annotate"
	AboutExportVersion = "export_version"
	AboutLastExport    = "last_export"
)

// ErrInvalidRecord is returned for records that cannot be stored (e.g. empty id).
var ErrInvalidRecord = errors.New("invalid record")

// Field is one named value of a record. Values are scalars, or JSON-like
// maps and slices that backends store as JSON text.
type Field struct {
	Name  string
	Value any
}

// Fields keeps record fields in a stable order.
type Fields []Field

// Get returns the value stored under name.
func (f Fields) Get(name string) (any, bool) {
	for _, fld := range f {
		if fld.Name == name {
			return fld.Value, true
		}
	}
	return nil, false
}

// Names lists the field names in order.
func (f Fields) Names() []string {
	out := make([]string, len(f))
	for i, fld := range f {
		out[i] = fld.Name
	}
	return out
}

// RawRecord is one upstream report. At most one row exists per ID.
type RawRecord struct {
	ID          string
	Fields      Fields
	ChangedAt   time.Time
	RetrievedAt time.Time
	CallHash    string
}

// CallRecord logs the latest call issued for a distinct parameter object.
type CallRecord struct {
	ParamsHash  string
	Params      []byte
	IssuedAt    time.Time
	ResultCount int
	TotalCount  int
}

// AnnotatedDocument is the tagged corpus rendering of a record.
type AnnotatedDocument struct {
	ID        string
	CreatedAt time.Time
	Content   []string
}

// Text joins the content lines; every line already carries its newline.
func (d AnnotatedDocument) Text() string {
	n := 0
	for _, l := range d.Content {
		n += len(l)
	}
	b := make([]byte, 0, n)
	for _, l := range d.Content {
		b = append(b, l...)
	}
	return string(b)
}

// Attachment is one file descriptor exploded from a record's file list.
type Attachment struct {
	RecordID string
	FileID   string
	Fields   Fields
}

// Stats summarises table sizes.
type Stats struct {
	Records     int `json:"records"`
	Calls       int `json:"calls"`
	Annotations int `json:"annotations"`
	Attachments int `json:"attachments"`
}

// Store is the full persistence contract implemented by every backend.
// Consumers declare the narrower slices they need.
type Store interface {
	// UpsertBatch extends the record schema with unseen field names, then
	// replaces every record (and its attachments) in a single transaction.
	UpsertBatch(ctx context.Context, records []RawRecord) error
	// RecordCall replaces the call-log entry sharing call.ParamsHash.
	RecordCall(ctx context.Context, call CallRecord) error
	// StorePage is UpsertBatch plus RecordCall in the same transaction.
	StorePage(ctx context.Context, records []RawRecord, call CallRecord) error
	// UpsertAnnotations replaces documents by id. Documents with no content
	// are skipped with a warning; the number written is returned.
	UpsertAnnotations(ctx context.Context, docs []AnnotatedDocument) (int, error)
	// ChangedSince projects every record's change time joined with its
	// annotation time, if any.
	ChangedSince(ctx context.Context) ([]staleness.Row, error)
	// MaxChangedAt returns the newest record change time; ok is false when
	// no records exist.
	MaxChangedAt(ctx context.Context) (latest time.Time, ok bool, err error)
	// SourceTexts returns the non-empty values of field for ids. Missing
	// records, NULL values and unknown fields are omitted.
	SourceTexts(ctx context.Context, ids []string, field string) (map[string]string, error)
	AnnotationIDs(ctx context.Context) ([]string, error)
	Annotations(ctx context.Context, ids []string) ([]AnnotatedDocument, error)
	Records(ctx context.Context, ids []string) ([]RawRecord, error)
	Attachments(ctx context.Context, recordID string) ([]Attachment, error)
	Stats(ctx context.Context) (Stats, error)
	// SetAbout replaces one key of the about table.
	SetAbout(ctx context.Context, key, value string) error
	About(ctx context.Context) (map[string]string, error)
	Close() error
}
