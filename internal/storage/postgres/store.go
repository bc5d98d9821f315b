// Package postgres provides a Postgres-backed storage.Store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/reliefweb-corpus/internal/staleness"
	"github.com/JakeFAU/reliefweb-corpus/internal/storage"
)

var recordFixed = []string{"id", "changed_at", "retrieved_at", "call_hash"}

var attachmentFixed = []string{"file_id", "record_id"}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS raw_records (
	id TEXT PRIMARY KEY,
	changed_at TIMESTAMPTZ NOT NULL,
	retrieved_at TIMESTAMPTZ NOT NULL,
	call_hash TEXT
)`,
	`CREATE INDEX IF NOT EXISTS raw_records_changed_at ON raw_records (changed_at)`,
	`CREATE TABLE IF NOT EXISTS call_log (
	params_hash TEXT PRIMARY KEY,
	params JSONB NOT NULL,
	issued_at TIMESTAMPTZ NOT NULL,
	result_count INTEGER NOT NULL,
	total_count INTEGER NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS annotated_documents (
	id TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
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

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Pool is the subset of pgxpool.Pool used by Store; pgxmock satisfies it.
type Pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Store writes records, calls and annotations into Postgres.
type Store struct {
	pool    Pool
	schema  *storage.SchemaRegistry
	writeMu sync.Mutex
	logger  *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// NewStore connects, migrates and loads the dynamic schema.
func NewStore(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewStoreWithPool(pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.LoadSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(pool Pool, logger *zap.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, schema: storage.NewSchemaRegistry(), logger: logger}, nil
}

// Schema exposes the column registry.
func (s *Store) Schema() *storage.SchemaRegistry { return s.schema }

// Migrate creates the base tables and records the schema version.
func (s *Store) Migrate(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := s.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO about (key, value) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`,
		storage.AboutCreatedAt, storage.FormatTime(time.Now())); err != nil {
		return fmt.Errorf("migrate about: %w", err)
	}
	return s.SetAbout(ctx, storage.AboutSchemaVersion, storage.SchemaVersion)
}

// LoadSchema registers the dynamic columns already present in the database.
func (s *Store) LoadSchema(ctx context.Context) error {
	rows, err := s.pool.Query(ctx, `SELECT table_name, column_name
FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = ANY($1)
ORDER BY table_name, ordinal_position`,
		[]string{storage.TableRecords, storage.TableAttachments})
	if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}
	defer rows.Close()
	fixed := map[string]map[string]struct{}{
		storage.TableRecords:     set(recordFixed),
		storage.TableAttachments: set(attachmentFixed),
	}
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return fmt.Errorf("load schema: %w", err)
		}
		if _, ok := fixed[table][column]; ok {
			continue
		}
		s.schema.Register(table, column)
	}
	return rows.Err()
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// UpsertBatch adds missing columns and upserts every record and its
// attachments inside one transaction.
func (s *Store) UpsertBatch(ctx context.Context, records []storage.RawRecord) error {
	return s.writePage(ctx, records, nil)
}

// StorePage upserts records and the call that produced them in one
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

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres begin: %w", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("rollback failed", zap.Error(rbErr))
		}
	}()

	if len(prepared) > 0 {
		if err := s.upsertRecords(ctx, tx, prepared, atts, newRecordCols, newAttCols); err != nil {
			return err
		}
	}
	if call != nil {
		if err := recordCall(ctx, tx, *call); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres commit: %w", err)
	}
	committed = true
	s.schema.Register(storage.TableRecords, newRecordCols...)
	s.schema.Register(storage.TableAttachments, newAttCols...)
	if len(newRecordCols) > 0 {
		s.logger.Info("record schema extended", zap.Strings("columns", newRecordCols))
	}
	return nil
}

func (s *Store) upsertRecords(
	ctx context.Context,
	tx pgx.Tx,
	prepared []storage.RawRecord,
	atts []storage.Attachment,
	newRecordCols, newAttCols []string,
) error {
	if err := addColumns(ctx, tx, storage.TableRecords, newRecordCols); err != nil {
		return err
	}
	if err := addColumns(ctx, tx, storage.TableAttachments, newAttCols); err != nil {
		return err
	}

	recordCols := append(s.schema.Columns(storage.TableRecords), newRecordCols...)
	insert := upsertSQL(storage.TableRecords, append(append([]string(nil), recordFixed...), recordCols...))
	ids := make([]string, 0, len(prepared))
	for _, rec := range prepared {
		values, err := storage.ValueRow(rec.Fields, recordCols)
		if err != nil {
			return fmt.Errorf("record %s: %w", rec.ID, err)
		}
		args := append([]any{rec.ID, rec.ChangedAt.UTC(), rec.RetrievedAt.UTC(), nullString(rec.CallHash)}, values...)
		if _, err := tx.Exec(ctx, insert, args...); err != nil {
			return fmt.Errorf("upsert record %s: %w", rec.ID, err)
		}
		ids = append(ids, rec.ID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM attachments WHERE record_id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("delete attachments: %w", err)
	}
	attCols := append(s.schema.Columns(storage.TableAttachments), newAttCols...)
	attInsert := upsertSQL(storage.TableAttachments, append(append([]string(nil), attachmentFixed...), attCols...))
	for _, a := range atts {
		values, err := storage.ValueRow(a.Fields, attCols)
		if err != nil {
			return fmt.Errorf("attachment %s: %w", a.FileID, err)
		}
		if _, err := tx.Exec(ctx, attInsert, append([]any{a.FileID, a.RecordID}, values...)...); err != nil {
			return fmt.Errorf("upsert attachment %s: %w", a.FileID, err)
		}
	}
	return nil
}

func addColumns(ctx context.Context, tx pgx.Tx, table string, cols []string) error {
	for _, c := range cols {
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s TEXT", table, storage.QuoteIdent(c))
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("add column %s.%s: %w", table, c, err)
		}
	}
	return nil
}

// upsertSQL builds INSERT ... ON CONFLICT on the first column that overwrites
// every other column, so absent fields become NULL.
func upsertSQL(table string, cols []string) string {
	quoted := make([]string, len(cols))
	params := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = storage.QuoteIdent(c)
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	updates := make([]string, 0, len(cols)-1)
	for _, q := range quoted[1:] {
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", q, q))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table, strings.Join(quoted, ", "), strings.Join(params, ", "), quoted[0], strings.Join(updates, ", "))
}

// RecordCall upserts the call-log row for call.ParamsHash.
func (s *Store) RecordCall(ctx context.Context, call storage.CallRecord) error {
	if call.ParamsHash == "" {
		return fmt.Errorf("%w: empty params hash", storage.ErrInvalidRecord)
	}
	return recordCall(ctx, s.pool, call)
}

type execer interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
}

func recordCall(ctx context.Context, db execer, call storage.CallRecord) error {
	_, err := db.Exec(ctx, `INSERT INTO call_log (params_hash, params, issued_at, result_count, total_count)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (params_hash) DO UPDATE SET params = EXCLUDED.params, issued_at = EXCLUDED.issued_at,
	result_count = EXCLUDED.result_count, total_count = EXCLUDED.total_count`,
		call.ParamsHash, call.Params, call.IssuedAt.UTC(), call.ResultCount, call.TotalCount)
	if err != nil {
		return fmt.Errorf("record call: %w", err)
	}
	return nil
}

// UpsertAnnotations upserts non-empty documents and returns how many were written.
func (s *Store) UpsertAnnotations(ctx context.Context, docs []storage.AnnotatedDocument) (int, error) {
	keep, rejected := storage.PartitionAnnotations(docs)
	for _, id := range rejected {
		s.logger.Warn("rejected empty annotated document", zap.String("record_id", id))
	}
	if len(keep) == 0 {
		return 0, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()
	for _, d := range keep {
		if _, err := tx.Exec(ctx, `INSERT INTO annotated_documents (id, created_at, content) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET created_at = EXCLUDED.created_at, content = EXCLUDED.content`,
			d.ID, d.CreatedAt.UTC(), d.Text()); err != nil {
			return 0, fmt.Errorf("upsert annotation %s: %w", d.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres commit: %w", err)
	}
	committed = true
	return len(keep), nil
}

// ChangedSince joins every record's change time with its annotation time.
func (s *Store) ChangedSince(ctx context.Context) ([]staleness.Row, error) {
	rows, err := s.pool.Query(ctx, `SELECT r.id, r.changed_at, a.created_at
FROM raw_records r LEFT JOIN annotated_documents a ON a.id = r.id
ORDER BY r.id`)
	if err != nil {
		return nil, fmt.Errorf("query changed: %w", err)
	}
	defer rows.Close()
	var out []staleness.Row
	for rows.Next() {
		var (
			id        string
			changed   time.Time
			annotated pgtype.Timestamptz
		)
		if err := rows.Scan(&id, &changed, &annotated); err != nil {
			return nil, fmt.Errorf("scan changed: %w", err)
		}
		row := staleness.Row{ID: id, ChangedAt: changed.UTC()}
		if annotated.Valid {
			row.Annotated = true
			row.AnnotatedAt = annotated.Time.UTC()
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// MaxChangedAt returns the newest change time stored.
func (s *Store) MaxChangedAt(ctx context.Context) (time.Time, bool, error) {
	var latest pgtype.Timestamptz
	if err := s.pool.QueryRow(ctx, `SELECT MAX(changed_at) FROM raw_records`).Scan(&latest); err != nil {
		return time.Time{}, false, fmt.Errorf("query max changed: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	return latest.Time.UTC(), true, nil
}

// SourceTexts returns non-blank values of field for ids.
func (s *Store) SourceTexts(ctx context.Context, ids []string, field string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 || !s.schema.Has(storage.TableRecords, field) {
		return out, nil
	}
	query := fmt.Sprintf("SELECT id, %s FROM raw_records WHERE id = ANY($1)", storage.QuoteIdent(field))
	rows, err := s.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("query source texts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id   string
			text pgtype.Text
		)
		if err := rows.Scan(&id, &text); err != nil {
			return nil, fmt.Errorf("scan source text: %w", err)
		}
		if text.Valid {
			out[id] = text.String
		}
	}
	return out, rows.Err()
}

// AnnotationIDs lists annotated ids in ascending order.
func (s *Store) AnnotationIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM annotated_documents ORDER BY id`)
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
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, created_at, content FROM annotated_documents WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query annotations: %w", err)
	}
	defer rows.Close()
	found := make(map[string]storage.AnnotatedDocument, len(ids))
	for rows.Next() {
		var (
			id, content string
			created     time.Time
		)
		if err := rows.Scan(&id, &created, &content); err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		found[id] = storage.AnnotatedDocument{ID: id, CreatedAt: created.UTC(), Content: storage.SplitContent(content)}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query annotations: %w", err)
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
	if len(ids) == 0 {
		return nil, nil
	}
	cols := s.schema.Columns(storage.TableRecords)
	query := fmt.Sprintf("SELECT id, changed_at, retrieved_at, call_hash%s FROM raw_records WHERE id = ANY($1)",
		trailingList(cols))
	rows, err := s.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()
	found := make(map[string]storage.RawRecord, len(ids))
	for rows.Next() {
		var (
			rec      storage.RawRecord
			callHash pgtype.Text
		)
		vals := make([]pgtype.Text, len(cols))
		dest := []any{&rec.ID, &rec.ChangedAt, &rec.RetrievedAt, &callHash}
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.CallHash = callHash.String
		rec.ChangedAt = rec.ChangedAt.UTC()
		rec.RetrievedAt = rec.RetrievedAt.UTC()
		for i, c := range cols {
			if vals[i].Valid {
				rec.Fields = append(rec.Fields, storage.Field{Name: c, Value: vals[i].String})
			}
		}
		found[rec.ID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	out := make([]storage.RawRecord, 0, len(found))
	for _, id := range ids {
		if r, ok := found[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// Attachments returns the attachments of recordID ordered by file id.
func (s *Store) Attachments(ctx context.Context, recordID string) ([]storage.Attachment, error) {
	cols := s.schema.Columns(storage.TableAttachments)
	query := fmt.Sprintf("SELECT file_id, record_id%s FROM attachments WHERE record_id = $1 ORDER BY file_id",
		trailingList(cols))
	rows, err := s.pool.Query(ctx, query, recordID)
	if err != nil {
		return nil, fmt.Errorf("query attachments: %w", err)
	}
	defer rows.Close()
	var out []storage.Attachment
	for rows.Next() {
		var a storage.Attachment
		vals := make([]pgtype.Text, len(cols))
		dest := []any{&a.FileID, &a.RecordID}
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		for i, c := range cols {
			if vals[i].Valid {
				a.Fields = append(a.Fields, storage.Field{Name: c, Value: vals[i].String})
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Stats counts rows of every table.
func (s *Store) Stats(ctx context.Context) (storage.Stats, error) {
	var st storage.Stats
	err := s.pool.QueryRow(ctx, `SELECT
	(SELECT COUNT(*) FROM raw_records),
	(SELECT COUNT(*) FROM call_log),
	(SELECT COUNT(*) FROM annotated_documents),
	(SELECT COUNT(*) FROM attachments)`).Scan(&st.Records, &st.Calls, &st.Annotations, &st.Attachments)
	if err != nil {
		return st, fmt.Errorf("query stats: %w", err)
	}
	return st, nil
}

// SetAbout upserts one about entry.
func (s *Store) SetAbout(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO about (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("set about %s: %w", key, err)
	}
	return nil
}

// About returns the about table.
func (s *Store) About(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM about`)
	if err != nil {
		return nil, fmt.Errorf("query about: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var (
			key   string
			value pgtype.Text
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan about: %w", err)
		}
		out[key] = value.String
	}
	return out, rows.Err()
}

func trailingList(cols []string) string {
	var b strings.Builder
	for _, c := range cols {
		b.WriteString(", ")
		b.WriteString(storage.QuoteIdent(c))
	}
	return b.String()
}

func set(ss []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ss))
	for _, s := range ss {
		out[s] = struct{}{}
	}
	return out
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
