// Package staleness decides which records need (re)annotation by comparing
// the source change timestamp with the last annotation timestamp.
package staleness

import (
	"sort"
	"time"
)

// Row is one line of the raw-to-annotation outer join.
type Row struct {
	ID          string
	ChangedAt   time.Time
	AnnotatedAt time.Time
	// Annotated is false when no annotated document exists for ID.
	Annotated bool
}

// IsStale reports whether a record changed at changedAt needs annotation given
// its annotation time. Equal timestamps are not stale.
func IsStale(changedAt, annotatedAt time.Time, annotated bool) bool {
	if !annotated {
		return true
	}
	return changedAt.After(annotatedAt)
}

// Due returns the sorted ids in raw that are missing from annotated or whose
// raw timestamp is strictly after the annotated one. Ids only present in
// annotated are ignored.
func Due(raw, annotated map[string]time.Time) []string {
	out := make([]string, 0)
	for id, changed := range raw {
		at, ok := annotated[id]
		if IsStale(changed, at, ok) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Split turns joined rows into the raw and annotated timestamp maps Due expects.
func Split(rows []Row) (raw, annotated map[string]time.Time) {
	raw = make(map[string]time.Time, len(rows))
	annotated = make(map[string]time.Time, len(rows))
	for _, r := range rows {
		raw[r.ID] = r.ChangedAt
		if r.Annotated {
			annotated[r.ID] = r.AnnotatedAt
		}
	}
	return raw, annotated
}

// DueRows is Due applied to joined rows.
func DueRows(rows []Row) []string {
	return Due(Split(rows))
}
