package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/reliefweb-corpus/internal/progress"
)

func TestLatestSinkKeepsNewestPerStage(t *testing.T) {
	t.Parallel()
	sink := NewLatestSink()
	runID := progress.UUIDToBytes(uuid.New())
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: t0.Add(time.Minute), Stage: progress.StageCrawlDone, Note: "exhausted"},
		{RunID: runID, TS: t0, Stage: progress.StageCrawlDone, Note: "older"},
		{RunID: runID, TS: t0, Stage: progress.StageBatchDone, Count: 2},
	}))
	evt, ok := sink.Latest(progress.StageCrawlDone)
	require.True(t, ok)
	assert.Equal(t, "exhausted", evt.Note)
	assert.Len(t, sink.Snapshot(), 2)
	_, ok = sink.Latest(progress.StageAnnotateDone)
	assert.False(t, ok)
}

func TestLogSinkWritesDebugLines(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: progress.UUIDToBytes(uuid.New()), TS: time.Now(), Stage: progress.StageCrawlPage, Offset: 10, Count: 5},
	}))
	entries := logs.FilterMessage("progress event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(10), entries[0].ContextMap()["offset"])
}
