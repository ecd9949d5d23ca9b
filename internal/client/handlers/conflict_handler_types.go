package handlers

import "github.com/openmined/studiosync/internal/client/sync"

// ConflictView is a conflict with both sides rendered as patches against the baseline.
type ConflictView struct {
	*sync.Conflict
	LocalDiff  string `json:"localDiff"`
	RemoteDiff string `json:"remoteDiff"`
}

type ConflictsResponse struct {
	Conflicts []ConflictView `json:"conflicts"`
}

type ResolveRequest struct {
	Path string `json:"path" binding:"required"`
	Side string `json:"side" binding:"required"`
}
