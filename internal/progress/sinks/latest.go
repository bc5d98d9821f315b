package sinks

import (
	"context"
	"sync"

	"github.com/JakeFAU/reliefweb-corpus/internal/progress"
)

// LatestSink remembers the most recent event of every stage so the status
// endpoint can report what the last runs did.
type LatestSink struct {
	mu     sync.RWMutex
	latest map[progress.Stage]progress.Event
}

// NewLatestSink returns an empty LatestSink.
func NewLatestSink() *LatestSink {
	return &LatestSink{latest: make(map[progress.Stage]progress.Event)}
}

// Consume records the events, later timestamps winning.
func (s *LatestSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		if prev, ok := s.latest[evt.Stage]; ok && prev.TS.After(evt.TS) {
			continue
		}
		s.latest[evt.Stage] = evt
	}
	return nil
}

// Latest returns the newest event for stage.
func (s *LatestSink) Latest(stage progress.Stage) (progress.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	evt, ok := s.latest[stage]
	return evt, ok
}

// Snapshot copies the newest event of every stage seen so far.
func (s *LatestSink) Snapshot() map[progress.Stage]progress.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[progress.Stage]progress.Event, len(s.latest))
	for k, v := range s.latest {
		out[k] = v
	}
	return out
}

// Close implements progress.Sink.
func (s *LatestSink) Close(context.Context) error {
	return nil
}
