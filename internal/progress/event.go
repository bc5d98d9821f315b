// Package progress defines the events emitted by crawl and annotation runs.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageCrawlStart    Stage = "CRAWL_START"
	StageCrawlPage     Stage = "CRAWL_PAGE"
	StageQuotaWait     Stage = "QUOTA_WAIT"
	StageCrawlDone     Stage = "CRAWL_DONE"
	StageCrawlError    Stage = "CRAWL_ERROR"
	StageAnnotateStart Stage = "ANNOTATE_START"
	StageBatchDone     Stage = "BATCH_DONE"
	StageAnnotateDone  Stage = "ANNOTATE_DONE"
	StageAnnotateError Stage = "ANNOTATE_ERROR"
)

// Event captures one milestone of a run.
type Event struct {
	// RunID identifies the crawl or annotation run.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Offset is the request offset of a crawl page.
	Offset int
	// Count is the page result count or the number of documents in a batch.
	Count int
	// Total is the upstream totalCount for pages.
	Total int
	// Tokens counts tagged tokens in a batch.
	Tokens int
	// Dur is the quota wait, the page latency or the run duration.
	Dur time.Duration
	// Note carries low-volume context such as the stop reason or error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageCrawlStart, StageCrawlPage, StageQuotaWait, StageCrawlDone, StageCrawlError,
		StageAnnotateStart, StageBatchDone, StageAnnotateDone, StageAnnotateError:
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Count < 0 || e.Offset < 0 || e.Tokens < 0 {
		return errors.New("counters must be >= 0")
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
