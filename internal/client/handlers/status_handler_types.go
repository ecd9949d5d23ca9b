package handlers

import (
	"time"

	"github.com/openmined/studiosync/internal/client/sync"
)

// StatusResponse represents the health and sync status of the daemon.
type StatusResponse struct {
	Status      string               `json:"status"`    // health status ("ok").
	Timestamp   string               `json:"ts"`        // timestamp when the status was taken.
	Version     string               `json:"version"`   // version of the client.
	Revision    string               `json:"revision"`  // revision of the client.
	BuildDate   string               `json:"buildDate"` // build date of the client.
	Scheduler   sync.SchedulerStatus `json:"scheduler"`
	LastSummary *sync.Summary        `json:"lastSummary,omitempty"`
	Files       []SyncFileStatus     `json:"files"`
	Summary     SyncSummary          `json:"summary"`
}

type SyncFileStatus struct {
	Path          string    `json:"path"`
	State         string    `json:"state"`
	ConflictState string    `json:"conflictState,omitempty"`
	Error         string    `json:"error,omitempty"`
	ErrorCount    int       `json:"errorCount,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type SyncSummary struct {
	Pending    int `json:"pending"`
	Syncing    int `json:"syncing"`
	Completed  int `json:"completed"`
	Error      int `json:"error"`
	Conflicted int `json:"conflicted"`
}
