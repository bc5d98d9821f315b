// Package sqlite implements storage.Store on a single SQLite file using the
// pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/reliefweb-corpus/internal/staleness"
	"github.com/JakeFAU/reliefweb-corpus/internal/storage"
)

// Memory is the path of a private in-memory database.
const Memory = ":memory:"

// chunkSize bounds the number of bound parameters per IN (...) query.
const chunkSize = 500

var recordFixed = []string{"id", "changed_at", "retrieved_at", "call_hash"}

var attachmentFixed = []string{"file_id", "record_id"}

var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS raw_records (
	id TEXT PRIMARY KEY,
	changed_at TEXT NOT NULL,
	retrieved_at TEXT NOT NULL,
	call_hash TEXT
)`,
	`CREATE INDEX IF NOT EXISTS raw_records_changed_at ON raw_records (changed_at)`,
	`CREATE TABLE IF NOT EXISTS call_log (
	params_hash TEXT PRIMARY KEY,
	params TEXT NOT NULL,
	issued_at TEXT NOT NULL,
	result_count INTEGER NOT NULL,
	total_count INTEGER NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS annotated_documents (
	id TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	content TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS attachments (
	file_id TEXT PRIMARY KEY,
	record_id TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS attachments_record_id ON attachments (record_id)`,
	`CREATE TABLE IF NOT EXISTS about (
	key TEXT PRIMARY KEY,
	value TEXT
)`,
}

// Config controls how the database file is opened.
type Config struct {
	Path          string
	BusyTimeoutMS int
	Synchronous   string
}

// Store is a SQLite-backed storage.Store.
type Store struct {
	db     *sql.DB
	schema *storage.SchemaRegistry
	// writeMu serialises schema changes with the registry update that
	// follows their commit.
	writeMu sync.Mutex
	logger  *zap.Logger
	now     func() time.Time
}

var _ storage.Store = (*Store)(nil)

// Open opens (creating if needed) the database at cfg.Path, applies pragmas,
// creates the base tables and loads the dynamic columns already present.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Path != Memory {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// One connection keeps :memory: databases alive and writes serialised.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{
		db:     db,
		schema: storage.NewSchemaRegistry(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	if err := s.init(ctx, cfg); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("sqlite store opened",
		zap.String("path", cfg.Path),
		zap.Int("record_columns", len(s.schema.Columns(storage.TableRecords))),
	)
	return s, nil
}

func (s *Store) init(ctx context.Context, cfg Config) error {
	busy := cfg.BusyTimeoutMS
	if busy <= 0 {
		busy = 10_000
	}
	syncMode := strings.ToUpper(cfg.Synchronous)
	if syncMode == "" {
		syncMode = "NORMAL"
	}
	switch syncMode {
	case "OFF", "NORMAL", "FULL", "EXTRA":
	default:
		return fmt.Errorf("invalid sqlite synchronous mode %q", cfg.Synchronous)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busy),
		"PRAGMA synchronous=" + syncMode,
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	for _, ddl := range schemaDDL {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("sqlite schema: %w", err)
		}
	}
	for table, fixed := range map[string][]string{
		storage.TableRecords:     recordFixed,
		storage.TableAttachments: attachmentFixed,
	} {
		cols, err := s.tableColumns(ctx, table)
		if err != nil {
			return err
		}
		s.schema.Register(table, without(cols, fixed)...)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO about (key, value) VALUES (?, ?)`,
		storage.AboutCreatedAt, storage.FormatTime(s.now())); err != nil {
		return fmt.Errorf("sqlite about: %w", err)
	}
	return s.SetAbout(ctx, storage.AboutSchemaVersion, storage.SchemaVersion)
}

func (s *Store) tableColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, fmt.Errorf("sqlite table info %s: %w", table, err)
	}
	defer rows.Close()
	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("sqlite table info %s: %w", table, err)
		}
		cols = append(cols, name)
	}
	return cols, rows.Err()
}

// Schema exposes the column registry.
func (s *Store) Schema() *storage.SchemaRegistry { return s.schema }

// UpsertBatch adds missing columns and replaces every record and its
// attachments inside one transaction.
func (s *Store) UpsertBatch(ctx context.Context, records []storage.RawRecord) error {
	return s.writePage(ctx, records, nil)
}

// StorePage replaces records and the call that produced them in one
// transaction, so a committed page always has its call-log row.
func (s *Store) StorePage(ctx context.Context, records []storage.RawRecord, call storage.CallRecord) error {
	return s.writePage(ctx, records, &call)
}

func (s *Store) writePage(ctx context.Context, records []storage.RawRecord, call *storage.CallRecord) error {
	prepared, err := storage.PrepareRecords(records)
	if err != nil {
		return err
	}
	if call != nil && call.ParamsHash == "" {
		return fmt.Errorf("%w: empty params hash", storage.ErrInvalidRecord)
	}
	if len(prepared) == 0 && call == nil {
		return nil
	}
	atts := storage.ExplodeAttachments(prepared)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	newRecordCols, err := s.schema.Missing(storage.TableRecords, storage.BatchColumns(prepared))
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidRecord, err)
	}
	newAttCols, err := s.schema.Missing(storage.TableAttachments, storage.AttachmentColumns(atts))
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidRecord, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := addColumns(ctx, tx, storage.TableRecords, newRecordCols); err != nil {
		return err
	}
	if err := addColumns(ctx, tx, storage.TableAttachments, newAttCols); err != nil {
		return err
	}

	recordCols := append(s.schema.Columns(storage.TableRecords), newRecordCols...)
	if err := insertRecords(ctx, tx, recordCols, prepared); err != nil {
		return err
	}
	attCols := append(s.schema.Columns(storage.TableAttachments), newAttCols...)
	if err := replaceAttachments(ctx, tx, attCols, prepared, atts); err != nil {
		return err
	}
	if call != nil {
		if err := recordCall(ctx, tx, *call); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	s.schema.Register(storage.TableRecords, newRecordCols...)
	s.schema.Register(storage.TableAttachments, newAttCols...)
	if len(newRecordCols) > 0 {
		s.logger.Info("record schema extended", zap.Strings("columns", newRecordCols))
	}
	return nil
}

func addColumns(ctx context.Context, tx *sql.Tx, table string, cols []string) error {
	for _, c := range cols {
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT", table, storage.QuoteIdent(c))
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("add column %s.%s: %w", table, c, err)
		}
	}
	return nil
}

func insertRecords(ctx context.Context, tx *sql.Tx, cols []string, records []storage.RawRecord) error {
	all := append(append([]string(nil), recordFixed...), cols...)
	stmt, err := tx.PrepareContext(ctx, insertSQL(storage.TableRecords, all))
	if err != nil {
		return fmt.Errorf("prepare record insert: %w", err)
	}
	defer stmt.Close()
	for _, rec := range records {
		values, err := storage.ValueRow(rec.Fields, cols)
		if err != nil {
			return fmt.Errorf("record %s: %w", rec.ID, err)
		}
		args := append([]any{
			rec.ID,
			storage.FormatTime(rec.ChangedAt),
			storage.FormatTime(rec.RetrievedAt),
			nullString(rec.CallHash),
		}, values...)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert record %s: %w", rec.ID, err)
		}
	}
	return nil
}

func replaceAttachments(
	ctx context.Context,
	tx *sql.Tx,
	cols []string,
	records []storage.RawRecord,
	atts []storage.Attachment,
) error {
	del, err := tx.PrepareContext(ctx, `DELETE FROM attachments WHERE record_id = ?`)
	if err != nil {
		return fmt.Errorf("prepare attachment delete: %w", err)
	}
	defer del.Close()
	for _, rec := range records {
		if _, err := del.ExecContext(ctx, rec.ID); err != nil {
			return fmt.Errorf("delete attachments of %s: %w", rec.ID, err)
		}
	}
	if len(atts) == 0 {
		return nil
	}
	all := append(append([]string(nil), attachmentFixed...), cols...)
	ins, err := tx.PrepareContext(ctx, insertSQL(storage.TableAttachments, all))
	if err != nil {
		return fmt.Errorf("prepare attachment insert: %w", err)
	}
	defer ins.Close()
	for _, a := range atts {
		values, err := storage.ValueRow(a.Fields, cols)
		if err != nil {
			return fmt.Errorf("attachment %s: %w", a.FileID, err)
		}
		args := append([]any{a.FileID, a.RecordID}, values...)
		if _, err := ins.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert attachment %s: %w", a.FileID, err)
		}
	}
	return nil
}

func insertSQL(table string, cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = storage.QuoteIdent(c)
	}
	return fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		table, strings.Join(quoted, ", "), placeholders(len(cols)))
}

// RecordCall replaces the call-log row for call.ParamsHash.
func (s *Store) RecordCall(ctx context.Context, call storage.CallRecord) error {
	if call.ParamsHash == "" {
		return fmt.Errorf("%w: empty params hash", storage.ErrInvalidRecord)
	}
	return recordCall(ctx, s.db, call)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func recordCall(ctx context.Context, db execer, call storage.CallRecord) error {
	_, err := db.ExecContext(ctx, `INSERT OR REPLACE INTO call_log
	(params_hash, params, issued_at, result_count, total_count) VALUES (?, ?, ?, ?, ?)`,
		call.ParamsHash, string(call.Params), storage.FormatTime(call.IssuedAt),
		call.ResultCount, call.TotalCount)
	if err != nil {
		return fmt.Errorf("record call: %w", err)
	}
	return nil
}

// UpsertAnnotations replaces non-empty documents and returns how many were written.
func (s *Store) UpsertAnnotations(ctx context.Context, docs []storage.AnnotatedDocument) (int, error) {
	keep, rejected := storage.PartitionAnnotations(docs)
	for _, id := range rejected {
		s.logger.Warn("rejected empty annotated document", zap.String("record_id", id))
	}
	if len(keep) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO annotated_documents (id, created_at, content) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare annotation insert: %w", err)
	}
	defer stmt.Close()
	for _, d := range keep {
		if _, err := stmt.ExecContext(ctx, d.ID, storage.FormatTime(d.CreatedAt), d.Text()); err != nil {
			return 0, fmt.Errorf("insert annotation %s: %w", d.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite commit: %w", err)
	}
	return len(keep), nil
}

// ChangedSince joins every record's change time with its annotation time.
func (s *Store) ChangedSince(ctx context.Context) ([]staleness.Row, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT r.id, r.changed_at, a.created_at
FROM raw_records r LEFT JOIN annotated_documents a ON a.id = r.id
ORDER BY r.id`)
	if err != nil {
		return nil, fmt.Errorf("query changed: %w", err)
	}
	defer rows.Close()
	var out []staleness.Row
	for rows.Next() {
		var (
			id, changed string
			annotated   sql.NullString
		)
		if err := rows.Scan(&id, &changed, &annotated); err != nil {
			return nil, fmt.Errorf("scan changed: %w", err)
		}
		row := staleness.Row{ID: id}
		if row.ChangedAt, err = storage.ParseTime(changed); err != nil {
			return nil, err
		}
		if annotated.Valid {
			row.Annotated = true
			if row.AnnotatedAt, err = storage.ParseTime(annotated.String); err != nil {
				return nil, err
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// MaxChangedAt returns the newest change time stored.
func (s *Store) MaxChangedAt(ctx context.Context) (time.Time, bool, error) {
	var latest sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(changed_at) FROM raw_records`).Scan(&latest); err != nil {
		return time.Time{}, false, fmt.Errorf("query max changed: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	t, err := storage.ParseTime(latest.String)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// SourceTexts returns non-blank values of field for ids.
func (s *Store) SourceTexts(ctx context.Context, ids []string, field string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if !s.schema.Has(storage.TableRecords, field) {
		return out, nil
	}
	for _, chunk := range chunks(ids) {
		query := fmt.Sprintf("SELECT id, %s FROM raw_records WHERE id IN (%s)",
			storage.QuoteIdent(field), placeholders(len(chunk)))
		rows, err := s.db.QueryContext(ctx, query, anySlice(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("query source texts: %w", err)
		}
		for rows.Next() {
			var (
				id   string
				text sql.NullString
			)
			if err := rows.Scan(&id, &text); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan source text: %w", err)
			}
			if text.Valid {
				out[id] = text.String
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("query source texts: %w", err)
		}
	}
	return out, nil
}

// AnnotationIDs lists annotated ids in ascending order.
func (s *Store) AnnotationIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM annotated_documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query annotation ids: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan annotation id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Annotations returns documents in the order of ids, skipping unknown ids.
func (s *Store) Annotations(ctx context.Context, ids []string) ([]storage.AnnotatedDocument, error) {
	found := make(map[string]storage.AnnotatedDocument, len(ids))
	for _, chunk := range chunks(ids) {
		query := fmt.Sprintf("SELECT id, created_at, content FROM annotated_documents WHERE id IN (%s)",
			placeholders(len(chunk)))
		rows, err := s.db.QueryContext(ctx, query, anySlice(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("query annotations: %w", err)
		}
		for rows.Next() {
			var id, created, content string
			if err := rows.Scan(&id, &created, &content); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan annotation: %w", err)
			}
			createdAt, err := storage.ParseTime(created)
			if err != nil {
				rows.Close()
				return nil, err
			}
			found[id] = storage.AnnotatedDocument{ID: id, CreatedAt: createdAt, Content: storage.SplitContent(content)}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("query annotations: %w", err)
		}
	}
	out := make([]storage.AnnotatedDocument, 0, len(found))
	for _, id := range ids {
		if d, ok := found[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// Records returns records in the order of ids with their non-NULL columns.
func (s *Store) Records(ctx context.Context, ids []string) ([]storage.RawRecord, error) {
	cols := s.schema.Columns(storage.TableRecords)
	all := append(append([]string(nil), recordFixed...), cols...)
	found := make(map[string]storage.RawRecord, len(ids))
	for _, chunk := range chunks(ids) {
		query := fmt.Sprintf("SELECT %s FROM raw_records WHERE id IN (%s)",
			selectList(all), placeholders(len(chunk)))
		rows, err := s.db.QueryContext(ctx, query, anySlice(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("query records: %w", err)
		}
		for rows.Next() {
			vals := make([]sql.NullString, len(all))
			dest := make([]any, len(all))
			for i := range vals {
				dest[i] = &vals[i]
			}
			if err := rows.Scan(dest...); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan record: %w", err)
			}
			rec, err := recordFromRow(vals, cols)
			if err != nil {
				rows.Close()
				return nil, err
			}
			found[rec.ID] = rec
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("query records: %w", err)
		}
	}
	out := make([]storage.RawRecord, 0, len(found))
	for _, id := range ids {
		if r, ok := found[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func recordFromRow(vals []sql.NullString, cols []string) (storage.RawRecord, error) {
	rec := storage.RawRecord{ID: vals[0].String, CallHash: vals[3].String}
	var err error
	if rec.ChangedAt, err = storage.ParseTime(vals[1].String); err != nil {
		return rec, err
	}
	if rec.RetrievedAt, err = storage.ParseTime(vals[2].String); err != nil {
		return rec, err
	}
	for i, c := range cols {
		if v := vals[len(recordFixed)+i]; v.Valid {
			rec.Fields = append(rec.Fields, storage.Field{Name: c, Value: v.String})
		}
	}
	return rec, nil
}

// Attachments returns the attachments of recordID ordered by file id.
func (s *Store) Attachments(ctx context.Context, recordID string) ([]storage.Attachment, error) {
	cols := s.schema.Columns(storage.TableAttachments)
	all := append(append([]string(nil), attachmentFixed...), cols...)
	query := fmt.Sprintf("SELECT %s FROM attachments WHERE record_id = ? ORDER BY file_id", selectList(all))
	rows, err := s.db.QueryContext(ctx, query, recordID)
	if err != nil {
		return nil, fmt.Errorf("query attachments: %w", err)
	}
	defer rows.Close()
	var out []storage.Attachment
	for rows.Next() {
		vals := make([]sql.NullString, len(all))
		dest := make([]any, len(all))
		for i := range vals {
			dest[i] = &vals[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		a := storage.Attachment{FileID: vals[0].String, RecordID: vals[1].String}
		for i, c := range cols {
			if v := vals[len(attachmentFixed)+i]; v.Valid {
				a.Fields = append(a.Fields, storage.Field{Name: c, Value: v.String})
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Stats counts rows of every table.
func (s *Store) Stats(ctx context.Context) (storage.Stats, error) {
	var st storage.Stats
	err := s.db.QueryRowContext(ctx, `SELECT
	(SELECT COUNT(*) FROM raw_records),
	(SELECT COUNT(*) FROM call_log),
	(SELECT COUNT(*) FROM annotated_documents),
	(SELECT COUNT(*) FROM attachments)`).Scan(&st.Records, &st.Calls, &st.Annotations, &st.Attachments)
	if err != nil {
		return st, fmt.Errorf("query stats: %w", err)
	}
	return st, nil
}

// SetAbout replaces one about entry.
func (s *Store) SetAbout(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO about (key, value) VALUES (?, ?)`, key, value); err != nil {
		return fmt.Errorf("set about %s: %w", key, err)
	}
	return nil
}

// About returns the about table.
func (s *Store) About(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM about`)
	if err != nil {
		return nil, fmt.Errorf("query about: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var (
			key   string
			value sql.NullString
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan about: %w", err)
		}
		out[key] = value.String
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("sqlite close: %w", err)
	}
	return nil
}

func without(cols, drop []string) []string {
	skip := make(map[string]struct{}, len(drop))
	for _, d := range drop {
		skip[d] = struct{}{}
	}
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if _, ok := skip[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func selectList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = storage.QuoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}

func chunks(ids []string) [][]string {
	var out [][]string
	for len(ids) > 0 {
		n := min(chunkSize, len(ids))
		out = append(out, ids[:n])
		ids = ids[n:]
	}
	return out
}

func anySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
