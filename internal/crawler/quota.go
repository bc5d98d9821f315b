package crawler

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// QuotaBucket applies from Threshold (a call index) up to the next bucket.
// Halt means the crawl must stop rather than sleep.
type QuotaBucket struct {
	Threshold int
	Wait      time.Duration
	Halt      bool
}

// QuotaTable maps a call index to the pause required before that call.
type QuotaTable struct {
	buckets []QuotaBucket
}

// DefaultQuotaTable keeps well under the upstream daily call cap.
func DefaultQuotaTable() QuotaTable {
	return QuotaTable{buckets: []QuotaBucket{
		{Threshold: 0, Wait: time.Second},
		{Threshold: 5, Wait: 49 * time.Second},
		{Threshold: 10, Wait: 99 * time.Second},
		{Threshold: 20, Wait: 499 * time.Second},
		{Threshold: 30, Halt: true},
	}}
}

// NewQuotaTable sorts buckets by threshold. Duplicate or negative thresholds
// are rejected.
func NewQuotaTable(buckets ...QuotaBucket) (QuotaTable, error) {
	sorted := append([]QuotaBucket(nil), buckets...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Threshold < sorted[j].Threshold })
	for i, b := range sorted {
		if b.Threshold < 0 {
			return QuotaTable{}, fmt.Errorf("quota threshold %d is negative", b.Threshold)
		}
		if b.Wait < 0 {
			return QuotaTable{}, fmt.Errorf("quota wait for threshold %d is negative", b.Threshold)
		}
		if i > 0 && sorted[i-1].Threshold == b.Threshold {
			return QuotaTable{}, fmt.Errorf("duplicate quota threshold %d", b.Threshold)
		}
	}
	return QuotaTable{buckets: sorted}, nil
}

// QuotaTableFromSeconds builds a table from config: keys are call-index
// thresholds, values are seconds to wait, and a negative value means halt.
func QuotaTableFromSeconds(waits map[string]int) (QuotaTable, error) {
	buckets := make([]QuotaBucket, 0, len(waits))
	for key, secs := range waits {
		threshold, err := strconv.Atoi(key)
		if err != nil {
			return QuotaTable{}, fmt.Errorf("quota threshold %q: %w", key, err)
		}
		b := QuotaBucket{Threshold: threshold}
		if secs < 0 {
			b.Halt = true
		} else {
			b.Wait = time.Duration(secs) * time.Second
		}
		buckets = append(buckets, b)
	}
	return NewQuotaTable(buckets...)
}

// Lookup picks the bucket with the greatest threshold <= index. Indices below
// the smallest threshold use the smallest bucket; an empty table never waits.
func (q QuotaTable) Lookup(index int) QuotaBucket {
	if len(q.buckets) == 0 {
		return QuotaBucket{}
	}
	i := sort.Search(len(q.buckets), func(i int) bool { return q.buckets[i].Threshold > index })
	if i == 0 {
		return q.buckets[0]
	}
	return q.buckets[i-1]
}

// Buckets returns a copy of the sorted buckets.
func (q QuotaTable) Buckets() []QuotaBucket {
	return append([]QuotaBucket(nil), q.buckets...)
}
