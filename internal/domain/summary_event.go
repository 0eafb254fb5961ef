package domain

import "time"

type SummaryAction string

const (
	SummaryCreated SummaryAction = "create"
	SummaryUpdated SummaryAction = "update"
	SummaryDeleted SummaryAction = "delete"
)

// SummaryEvent announces a change to a stored news summary. Summary is nil
// for deletions.
type SummaryEvent struct {
	Action    SummaryAction `json:"action"`
	ID        string        `json:"id"`
	Summary   *NewsSummary  `json:"summary,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// SummaryStats holds statistics about a batch of saved summaries.
type SummaryStats struct {
	Received  int
	New       int
	Updated   int
	Skipped   int
	Errors    int
	Published int
	Duration  time.Duration
}
