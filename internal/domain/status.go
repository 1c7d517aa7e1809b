package domain

import "fmt"

// Status is the lifecycle state of a document. Values match the
// document_status lookup rows.
type Status int16

const (
	StatusDownloaded     Status = 1
	StatusFailedParsed   Status = 2
	StatusParsed         Status = 3
	StatusFailedEmbedded Status = 4
	StatusEmbedded       Status = 5
	StatusReady          Status = 6
)

var statusNames = map[Status]string{
	StatusDownloaded:     "downloaded",
	StatusFailedParsed:   "failed_parsed",
	StatusParsed:         "parsed",
	StatusFailedEmbedded: "failed_embedded",
	StatusEmbedded:       "embedded",
	StatusReady:          "ready",
}

// transitions lists every permitted target per source state.
//
// Embedding promotion is vector-driven, so embedded is reachable from every
// state that can own slides, including embedded itself when a targeted
// re-extraction added slides to an already embedded document.
var transitions = map[Status][]Status{
	StatusDownloaded:     {StatusParsed, StatusFailedParsed},
	StatusFailedParsed:   {StatusParsed, StatusFailedParsed, StatusEmbedded, StatusFailedEmbedded},
	StatusParsed:         {StatusParsed, StatusFailedParsed, StatusEmbedded, StatusFailedEmbedded},
	StatusFailedEmbedded: {StatusEmbedded, StatusFailedEmbedded},
	StatusEmbedded:       {StatusEmbedded, StatusFailedEmbedded, StatusReady},
	StatusReady:          {},
}

// String returns the lookup name of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int16(s))
}

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// CanTransition reports whether moving from s to next is permitted.
func (s Status) CanTransition(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Transition validates the move from s to next and returns next.
func (s Status) Transition(next Status) (Status, error) {
	if !s.Valid() || !next.Valid() {
		return s, ValidationError(fmt.Sprintf("unknown status transition %s -> %s", s, next), nil)
	}
	if !s.CanTransition(next) {
		return s, ValidationError(fmt.Sprintf("illegal status transition %s -> %s", s, next), nil)
	}
	return next, nil
}

// ParseStatus resolves a status by its lookup name.
func ParseStatus(name string) (Status, error) {
	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}
	return 0, ValidationError(fmt.Sprintf("unknown status %q", name), nil)
}

// ExtractionOutcome returns the status an extraction pass leaves behind.
func ExtractionOutcome(allPagesSucceeded bool) Status {
	if allPagesSucceeded {
		return StatusParsed
	}
	return StatusFailedParsed
}
