package domain

import "time"

// EventType represents the type of stream event
type EventType string

const (
	EventStart          EventType = "start"
	EventDocumentStart  EventType = "document_start"
	EventPageProcessing EventType = "page_processing"
	EventPageComplete   EventType = "page_complete"
	EventPageFailed     EventType = "page_failed"
	EventDocumentDone   EventType = "document_done"
	EventError          EventType = "error"
	EventComplete       EventType = "complete"
)

// StreamEvent represents an event emitted during an extraction run
type StreamEvent struct {
	Type       EventType `json:"type"`
	DocumentID string    `json:"document_id,omitempty"`
	PageNumber int       `json:"page_number,omitempty"`
	TotalPages int       `json:"total_pages,omitempty"`
	Payload    any       `json:"payload,omitempty"` // status message or summary
	Timestamp  time.Time `json:"timestamp"`
}

// IsPageProgress reports whether t tracks a single page. Consumers may miss
// these under back-pressure; run and document boundaries are always delivered.
func (t EventType) IsPageProgress() bool {
	switch t {
	case EventPageProcessing, EventPageComplete, EventPageFailed:
		return true
	}
	return false
}
