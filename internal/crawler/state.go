package crawler

import (
	"fmt"
	"time"
)

// Phase is the position of a crawl in its state machine.
type Phase int

// Crawl phases. Exhausted and Halted are terminal.
const (
	PhaseInit Phase = iota
	PhaseRequesting
	PhaseQuotaWait
	PhasePageReceived
	PhaseExhausted
	PhaseHalted
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseRequesting:
		return "requesting"
	case PhaseQuotaWait:
		return "quota_wait"
	case PhasePageReceived:
		return "page_received"
	case PhaseExhausted:
		return "exhausted"
	case PhaseHalted:
		return "halted"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// StopReason explains why a crawl reached a terminal phase. None of these
// are errors.
type StopReason string

// Stop reasons.
const (
	StopNone      StopReason = ""
	StopExhausted StopReason = "exhausted"
	StopQuotaHalt StopReason = "quota_halt"
	StopMaxCalls  StopReason = "max_calls"
)

// State is the immutable crawl state of one run. Transitions return a new
// value and never mutate the receiver.
type State struct {
	Phase Phase
	// Offset is the offset of the next request: the sum of all page counts so far.
	Offset int
	// CallCount is the number of calls issued in this run.
	CallCount int
	// LastCount and Total come from the latest page.
	LastCount int
	Total     int
	// Wait is the pause required in PhaseQuotaWait.
	Wait time.Duration
	Stop StopReason
}

// NewState returns the initial state of a run.
func NewState() State {
	return State{Phase: PhaseInit}
}

// Terminal reports whether the crawl is finished.
func (s State) Terminal() bool {
	return s.Phase == PhaseExhausted || s.Phase == PhaseHalted
}

// Next decides what follows Init or PageReceived: exhaustion after an empty
// page, a halt on the call ceiling or the quota table, a quota pause, or the
// next request. The first call of a run is never delayed.
func (s State) Next(quota QuotaTable, maxCalls int) State {
	switch s.Phase {
	case PhaseInit, PhasePageReceived:
	default:
		return s
	}
	next := s
	next.Wait = 0
	if s.Phase == PhasePageReceived && s.LastCount == 0 {
		next.Phase = PhaseExhausted
		next.Stop = StopExhausted
		return next
	}
	if s.CallCount >= maxCalls {
		next.Phase = PhaseHalted
		next.Stop = StopMaxCalls
		return next
	}
	bucket := quota.Lookup(s.CallCount)
	if bucket.Halt {
		next.Phase = PhaseHalted
		next.Stop = StopQuotaHalt
		return next
	}
	if s.CallCount > 0 && bucket.Wait > 0 {
		next.Phase = PhaseQuotaWait
		next.Wait = bucket.Wait
		return next
	}
	next.Phase = PhaseRequesting
	return next
}

// Resume leaves QuotaWait once the pause has elapsed.
func (s State) Resume() State {
	if s.Phase != PhaseQuotaWait {
		return s
	}
	next := s
	next.Phase = PhaseRequesting
	next.Wait = 0
	return next
}

// Receive records a page with count results out of total and advances the
// offset by count.
func (s State) Receive(count, total int) State {
	if s.Phase != PhaseRequesting {
		return s
	}
	next := s
	next.Phase = PhasePageReceived
	next.Offset += count
	next.CallCount++
	next.LastCount = count
	next.Total = total
	return next
}
