package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/reliefweb-corpus/internal/storage"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{Path: Memory}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func rec(id string, changed time.Time, fields map[string]any) storage.RawRecord {
	return storage.RawRecord{
		ID:          id,
		Fields:      storage.FieldsFromMap(fields),
		ChangedAt:   changed,
		RetrievedAt: changed.Add(time.Minute),
		CallHash:    "h1",
	}
}

func TestUpsertBatchReplacesAndGrowsSchema(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openMemory(t)
	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	batch := []storage.RawRecord{rec("1", t0, map[string]any{"title": "first"})}
	require.NoError(t, s.UpsertBatch(ctx, batch))
	require.NoError(t, s.UpsertBatch(ctx, batch))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Records)

	require.NoError(t, s.UpsertBatch(ctx, []storage.RawRecord{
		rec("1", t0.Add(time.Hour), map[string]any{"body": "text", "score": json.Number("3")}),
	}))
	assert.Equal(t, []string{"title", "body", "score"}, s.Schema().Columns(storage.TableRecords))

	got, err := s.Records(ctx, []string{"1", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, t0.Add(time.Hour), got[0].ChangedAt)
	assert.Equal(t, []string{"body", "score"}, got[0].Fields.Names(), "absent fields are written as NULL")
	v, _ := got[0].Fields.Get("score")
	assert.Equal(t, "3", v)
}

func TestUpsertBatchFoldsFieldCase(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openMemory(t)
	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertBatch(ctx, []storage.RawRecord{{
		ID: "1", ChangedAt: t0, RetrievedAt: t0,
		Fields: storage.Fields{{Name: "Title", Value: "first"}},
	}}))
	require.NoError(t, s.UpsertBatch(ctx, []storage.RawRecord{{
		ID: "2", ChangedAt: t0, RetrievedAt: t0,
		Fields: storage.Fields{{Name: "title", Value: "second"}},
	}}))
	assert.Equal(t, []string{"title"}, s.Schema().Columns(storage.TableRecords))

	got, err := s.Records(ctx, []string{"1", "2"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	v, _ := got[0].Fields.Get("title")
	assert.Equal(t, "first", v)
	v, _ = got[1].Fields.Get("title")
	assert.Equal(t, "second", v)
}

func TestUpsertBatchRejectsEmptyIDWithoutWriting(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openMemory(t)
	err := s.UpsertBatch(ctx, []storage.RawRecord{
		rec("1", time.Now(), map[string]any{"title": "x"}),
		{ID: ""},
	})
	require.ErrorIs(t, err, storage.ErrInvalidRecord)
	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Records)
	assert.Empty(t, s.Schema().Columns(storage.TableRecords))
}

func TestSchemaSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "corpus", "reliefweb.db")

	s, err := Open(ctx, Config{Path: path}, nil)
	require.NoError(t, err)
	require.NoError(t, s.UpsertBatch(ctx, []storage.RawRecord{
		rec("1", time.Now(), map[string]any{"body-html": "<p>x</p>"}),
	}))
	about, err := s.About(ctx)
	require.NoError(t, err)
	created := about[storage.AboutCreatedAt]
	require.NoError(t, s.Close())

	s, err = Open(ctx, Config{Path: path}, nil)
	require.NoError(t, err)
	defer s.Close()
	assert.True(t, s.Schema().Has(storage.TableRecords, "body_html"))
	about, err = s.About(ctx)
	require.NoError(t, err)
	assert.Equal(t, created, about[storage.AboutCreatedAt])
	assert.Equal(t, storage.SchemaVersion, about[storage.AboutSchemaVersion])
}

func TestAttachmentsReplacedPerRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openMemory(t)
	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertBatch(ctx, []storage.RawRecord{
		rec("1", t0, map[string]any{"file": []any{
			map[string]any{"id": "a", "url": "https://x/a.pdf"},
			map[string]any{"id": "b", "url": "https://x/b.pdf"},
		}}),
	}))
	require.NoError(t, s.UpsertBatch(ctx, []storage.RawRecord{
		rec("1", t0, map[string]any{"file": []any{
			map[string]any{"id": "c", "url": "https://x/c.pdf", "filesize": json.Number("10")},
		}}),
	}))
	atts, err := s.Attachments(ctx, "1")
	require.NoError(t, err)
	require.Len(t, atts, 1)
	assert.Equal(t, "c", atts[0].FileID)
	assert.Equal(t, []string{"url", "filesize"}, atts[0].Fields.Names())
}

func TestChangedSinceJoinsAnnotations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openMemory(t)
	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	_, ok, err := s.MaxChangedAt(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.UpsertBatch(ctx, []storage.RawRecord{
		rec("2", t0.Add(2*time.Hour), map[string]any{"body": "b"}),
		rec("1", t0, map[string]any{"body": "a"}),
	}))
	n, err := s.UpsertAnnotations(ctx, []storage.AnnotatedDocument{
		{ID: "1", CreatedAt: t0.Add(time.Hour), Content: []string{"<s>\n", "a\tDT\ta-x\n", "</s>\n"}},
		{ID: "2", CreatedAt: t0},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	latest, ok, err := s.MaxChangedAt(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, t0.Add(2*time.Hour), latest)

	rows, err := s.ChangedSince(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "1", rows[0].ID)
	assert.True(t, rows[0].Annotated)
	assert.Equal(t, t0.Add(time.Hour), rows[0].AnnotatedAt)
	assert.False(t, rows[1].Annotated)

	docs, err := s.Annotations(ctx, []string{"1"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, []string{"<s>\n", "a\tDT\ta-x\n", "</s>\n"}, docs[0].Content)

	ids, err := s.AnnotationIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids)
}

func TestSourceTexts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openMemory(t)
	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertBatch(ctx, []storage.RawRecord{
		rec("1", t0, map[string]any{"body": "hello"}),
		rec("2", t0, map[string]any{"body": "   "}),
		rec("3", t0, map[string]any{"title": "t"}),
	}))
	texts, err := s.SourceTexts(ctx, []string{"1", "2", "3", "4"}, "body")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"1": "hello", "2": "   "}, texts)

	got, err := s.Records(ctx, []string{"2"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	body, ok := got[0].Fields.Get("body")
	require.True(t, ok)
	assert.Equal(t, "   ", body)

	texts, err = s.SourceTexts(ctx, []string{"1"}, "unknown")
	require.NoError(t, err)
	assert.Empty(t, texts)
}

func TestRecordCallReplaces(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openMemory(t)
	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	call := storage.CallRecord{ParamsHash: "abc", Params: []byte(`{"limit":2}`), IssuedAt: t0, ResultCount: 2, TotalCount: 4}
	require.NoError(t, s.RecordCall(ctx, call))
	call.ResultCount = 0
	require.NoError(t, s.RecordCall(ctx, call))
	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Calls)
	require.ErrorIs(t, s.RecordCall(ctx, storage.CallRecord{}), storage.ErrInvalidRecord)
}

func TestStorePageWritesRecordsAndCall(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openMemory(t)
	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	call := storage.CallRecord{ParamsHash: "p1", Params: []byte(`{"offset":0}`), IssuedAt: t0, ResultCount: 1, TotalCount: 1}

	require.NoError(t, s.StorePage(ctx, []storage.RawRecord{rec("1", t0, map[string]any{"title": "a"})}, call))
	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Records)
	assert.Equal(t, 1, stats.Calls)

	// An empty page still logs its call.
	require.NoError(t, s.StorePage(ctx, nil, storage.CallRecord{ParamsHash: "p2", Params: []byte(`{}`), IssuedAt: t0}))
	stats, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Calls)
}

func TestStorePageRejectsCallWithoutWriting(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openMemory(t)
	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	err := s.StorePage(ctx, []storage.RawRecord{rec("1", t0, map[string]any{"title": "a"})}, storage.CallRecord{})
	require.ErrorIs(t, err, storage.ErrInvalidRecord)
	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Records)
	assert.Zero(t, stats.Calls)
	assert.Empty(t, s.Schema().Columns(storage.TableRecords))
}

func TestOpenRejectsBadSynchronous(t *testing.T) {
	t.Parallel()
	_, err := Open(context.Background(), Config{Path: Memory, Synchronous: "sometimes"}, nil)
	require.Error(t, err)
}
