package crawler

import (
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/reliefweb-corpus/internal/source"
	"github.com/JakeFAU/reliefweb-corpus/internal/storage"
)

// ChangedAt resolves a dotted path such as "date.changed" inside fields and
// parses it as an RFC 3339 timestamp.
func ChangedAt(fields map[string]any, path string) (time.Time, error) {
	var cur any = fields
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return time.Time{}, fmt.Errorf("field %q not found", path)
		}
		if cur, ok = m[part]; !ok {
			return time.Time{}, fmt.Errorf("field %q not found", path)
		}
	}
	s, ok := cur.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("field %q is %T, want string", path, cur)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("field %q: %w", path, err)
	}
	return t.UTC(), nil
}

// RecordsFromResponse maps a page onto raw records stamped with the fetch
// time and the hash of the call that produced them.
func RecordsFromResponse(resp source.Response, changedField string, retrievedAt time.Time, callHash string) ([]storage.RawRecord, error) {
	out := make([]storage.RawRecord, 0, len(resp.Data))
	for _, item := range resp.Data {
		changed, err := ChangedAt(item.Fields, changedField)
		if err != nil {
			return nil, &source.MalformedResponseError{Reason: "record " + item.ID, Err: err}
		}
		out = append(out, storage.RawRecord{
			ID:          item.ID,
			Fields:      storage.FieldsFromMap(item.Fields),
			ChangedAt:   changed,
			RetrievedAt: retrievedAt.UTC(),
			CallHash:    callHash,
		})
	}
	return out, nil
}
