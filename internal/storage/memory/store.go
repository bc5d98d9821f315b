// Package memory provides an in-process storage.Store for tests and dry runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/reliefweb-corpus/internal/staleness"
	"github.com/JakeFAU/reliefweb-corpus/internal/storage"
)

// Store keeps every table in maps guarded by a mutex.
type Store struct {
	mu          sync.RWMutex
	schema      *storage.SchemaRegistry
	records     map[string]storage.RawRecord
	calls       map[string]storage.CallRecord
	annotations map[string]storage.AnnotatedDocument
	attachments map[string]storage.Attachment
	about       map[string]string
	logger      *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// New returns an empty Store.
func New(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		schema:      storage.NewSchemaRegistry(),
		records:     make(map[string]storage.RawRecord),
		calls:       make(map[string]storage.CallRecord),
		annotations: make(map[string]storage.AnnotatedDocument),
		attachments: make(map[string]storage.Attachment),
		about:       map[string]string{storage.AboutSchemaVersion: storage.SchemaVersion},
		logger:      logger,
	}
}

// Schema exposes the registry so tests can inspect column growth.
func (s *Store) Schema() *storage.SchemaRegistry { return s.schema }

// UpsertBatch replaces records by id and extends the known columns.
func (s *Store) UpsertBatch(_ context.Context, records []storage.RawRecord) error {
	return s.writePage(records, nil)
}

// StorePage replaces records and the call that produced them under one lock.
func (s *Store) StorePage(_ context.Context, records []storage.RawRecord, call storage.CallRecord) error {
	return s.writePage(records, &call)
}

func (s *Store) writePage(records []storage.RawRecord, call *storage.CallRecord) error {
	prepared, err := storage.PrepareRecords(records)
	if err != nil {
		return err
	}
	if call != nil && call.ParamsHash == "" {
		return storage.ErrInvalidRecord
	}
	if _, err := s.schema.Missing(storage.TableRecords, storage.BatchColumns(prepared)); err != nil {
		return err
	}
	atts := storage.ExplodeAttachments(prepared)
	if _, err := s.schema.Missing(storage.TableAttachments, storage.AttachmentColumns(atts)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schema.Register(storage.TableRecords, storage.BatchColumns(prepared)...)
	s.schema.Register(storage.TableAttachments, storage.AttachmentColumns(atts)...)
	for _, rec := range prepared {
		rec.Fields = append(storage.Fields(nil), rec.Fields...)
		s.records[rec.ID] = rec
		for fileID, a := range s.attachments {
			if a.RecordID == rec.ID {
				delete(s.attachments, fileID)
			}
		}
	}
	for _, a := range atts {
		s.attachments[a.FileID] = a
	}
	if call != nil {
		s.calls[call.ParamsHash] = *call
	}
	return nil
}

// RecordCall replaces the call keyed by its parameter hash.
func (s *Store) RecordCall(_ context.Context, call storage.CallRecord) error {
	if call.ParamsHash == "" {
		return storage.ErrInvalidRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[call.ParamsHash] = call
	return nil
}

// UpsertAnnotations replaces non-empty documents by id.
func (s *Store) UpsertAnnotations(_ context.Context, docs []storage.AnnotatedDocument) (int, error) {
	keep, rejected := storage.PartitionAnnotations(docs)
	for _, id := range rejected {
		s.logger.Warn("rejected empty annotated document", zap.String("record_id", id))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range keep {
		d.Content = append([]string(nil), d.Content...)
		s.annotations[d.ID] = d
	}
	return len(keep), nil
}

// ChangedSince joins record change times with annotation times.
func (s *Store) ChangedSince(_ context.Context) ([]staleness.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := make([]staleness.Row, 0, len(s.records))
	for id, rec := range s.records {
		row := staleness.Row{ID: id, ChangedAt: rec.ChangedAt}
		if doc, ok := s.annotations[id]; ok {
			row.Annotated = true
			row.AnnotatedAt = doc.CreatedAt
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, nil
}

// MaxChangedAt returns the newest change time.
func (s *Store) MaxChangedAt(_ context.Context) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest time.Time
	found := false
	for _, rec := range s.records {
		if !found || rec.ChangedAt.After(latest) {
			latest = rec.ChangedAt
			found = true
		}
	}
	return latest, found, nil
}

// SourceTexts returns string values of field for the given ids.
func (s *Store) SourceTexts(_ context.Context, ids []string, field string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		rec, ok := s.records[id]
		if !ok {
			continue
		}
		v, ok := rec.Fields.Get(field)
		if !ok {
			continue
		}
		enc, err := storage.EncodeValue(v)
		if err != nil {
			return nil, err
		}
		if text, ok := enc.(string); ok {
			out[id] = text
		}
	}
	return out, nil
}

// AnnotationIDs lists annotated ids in ascending order.
func (s *Store) AnnotationIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.annotations))
	for id := range s.annotations {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// Annotations returns the documents for ids, skipping unknown ids.
func (s *Store) Annotations(_ context.Context, ids []string) ([]storage.AnnotatedDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.AnnotatedDocument, 0, len(ids))
	for _, id := range ids {
		if d, ok := s.annotations[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// Records returns the records for ids, skipping unknown ids.
func (s *Store) Records(_ context.Context, ids []string) ([]storage.RawRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.RawRecord, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.records[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// Attachments returns the attachments of a record ordered by file id.
func (s *Store) Attachments(_ context.Context, recordID string) ([]storage.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []storage.Attachment
	for _, a := range s.attachments {
		if a.RecordID == recordID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileID < out[j].FileID })
	return out, nil
}

// Calls returns the call log ordered by issue time; used by tests.
func (s *Store) Calls() []storage.CallRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.CallRecord, 0, len(s.calls))
	for _, c := range s.calls {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out
}

// Stats reports table sizes.
func (s *Store) Stats(_ context.Context) (storage.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return storage.Stats{
		Records:     len(s.records),
		Calls:       len(s.calls),
		Annotations: len(s.annotations),
		Attachments: len(s.attachments),
	}, nil
}

// SetAbout replaces one about entry.
func (s *Store) SetAbout(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.about[key] = value
	return nil
}

// About returns a copy of the about table.
func (s *Store) About(_ context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.about))
	for k, v := range s.about {
		out[k] = v
	}
	return out, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
