package gateway

import (
	"github.com/codedeck/codedeck/internal/pending"
	"github.com/codedeck/codedeck/internal/timeline"
)

// Snapshot is the point-in-time thread state served by the control plane.
// It is fetched once per conversation open and merged with the live feed.
type Snapshot struct {
	ThreadID string `json:"threadId"`

	// Seq is the event sequence number the snapshot was taken at; the
	// subscription resumes from here and the merge dedups any overlap.
	Seq uint64 `json:"seq"`

	Items               []timeline.Item       `json:"items"`
	PendingApprovals    []pending.Approval    `json:"pendingApprovals"`
	PendingInteractions []pending.Interaction `json:"pendingInteractions"`
}

// Thread is one conversation with the assistant process.
type Thread struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// Model is one entry from the assistant's model catalog.
type Model struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Default     bool   `json:"default,omitempty"`
}

type threadList struct {
	Threads []Thread `json:"threads"`
}

type modelList struct {
	Models []Model `json:"models"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}
