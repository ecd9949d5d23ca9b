package sync

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

const (
	syncEventBufferSize = 16
)

// SyncState represents the state of a sync operation.
type SyncState string

const (
	SyncStatePending   SyncState = "pending"
	SyncStateSyncing   SyncState = "syncing"
	SyncStateCompleted SyncState = "completed"
	SyncStateError     SyncState = "error"
)

// ConflictState represents the condition of a file.
type ConflictState string

const (
	ConflictStateNone       ConflictState = "none"
	ConflictStateConflicted ConflictState = "conflicted"
)

// PathStatus represents the complete status of a tracked path.
type PathStatus struct {
	SyncState     SyncState     `json:"syncState"`
	ConflictState ConflictState `json:"conflictState"`
	Error         string        `json:"error,omitempty"`
	ErrorCount    int           `json:"errorCount"`
	LastUpdated   time.Time     `json:"lastUpdated"`
}

func (s *PathStatus) String() string {
	return fmt.Sprintf("SyncState: %s, ConflictState: %s, Error: %v, ErrorCount: %d", s.SyncState, s.ConflictState, s.Error, s.ErrorCount)
}

// SyncStatusEvent represents a status change event for broadcasting.
type SyncStatusEvent struct {
	Path   string
	Status PathStatus
}

// SyncStatus tracks per-path sync state and the open conflicts.
type SyncStatus struct {
	files     map[string]*PathStatus
	conflicts map[string]*Conflict
	mu        sync.RWMutex

	eventSubs []chan *SyncStatusEvent
	eventMu   sync.RWMutex
}

func NewSyncStatus() *SyncStatus {
	return &SyncStatus{
		files:     make(map[string]*PathStatus),
		conflicts: make(map[string]*Conflict),
		eventSubs: make([]chan *SyncStatusEvent, 0),
	}
}

// Subscribe returns a channel for receiving sync status events.
func (s *SyncStatus) Subscribe() <-chan *SyncStatusEvent {
	s.eventMu.Lock()
	defer s.eventMu.Unlock()

	ch := make(chan *SyncStatusEvent, syncEventBufferSize)
	s.eventSubs = append(s.eventSubs, ch)
	return ch
}

// Unsubscribe removes a subscription channel.
func (s *SyncStatus) Unsubscribe(ch <-chan *SyncStatusEvent) {
	s.eventMu.Lock()
	defer s.eventMu.Unlock()

	for i, sub := range s.eventSubs {
		if sub == ch {
			close(sub)
			s.eventSubs = append(s.eventSubs[:i], s.eventSubs[i+1:]...)
			break
		}
	}
}

func (s *SyncStatus) broadcastEvent(path string, status *PathStatus) {
	s.eventMu.RLock()
	defer s.eventMu.RUnlock()

	event := &SyncStatusEvent{Path: path, Status: *status}
	for _, sub := range s.eventSubs {
		select {
		case sub <- event:
		default:
			// Channel is full, skip to avoid blocking
		}
	}
}

func (s *SyncStatus) getOrCreateStatus(path string) *PathStatus {
	if status, exists := s.files[path]; exists {
		return status
	}

	status := &PathStatus{
		SyncState:     SyncStatePending,
		ConflictState: ConflictStateNone,
		LastUpdated:   time.Now(),
	}
	s.files[path] = status
	return status
}

// SetSyncing sets a path to syncing state, preserving its conflict state.
func (s *SyncStatus) SetSyncing(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := s.getOrCreateStatus(path)
	status.SyncState = SyncStateSyncing
	status.Error = ""
	status.LastUpdated = time.Now()

	s.broadcastEvent(path, status)
}

// SetCompleted sets a path to completed and stops tracking it unless conflicted.
func (s *SyncStatus) SetCompleted(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := s.getOrCreateStatus(path)
	status.SyncState = SyncStateCompleted
	status.Error = ""
	status.ErrorCount = 0
	status.LastUpdated = time.Now()

	if status.ConflictState == ConflictStateNone {
		delete(s.files, path)
	}
	s.broadcastEvent(path, status)
}

func (s *SyncStatus) SetError(path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := s.getOrCreateStatus(path)
	status.SyncState = SyncStateError
	status.Error = err.Error()
	status.ErrorCount++
	status.LastUpdated = time.Now()

	s.broadcastEvent(path, status)
}

// SetConflicted records c and marks its path as conflicted.
func (s *SyncStatus) SetConflicted(c *Conflict) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conflicts[c.Path] = c
	s.markConflictedLocked(c.Path)
}

func (s *SyncStatus) markConflictedLocked(path string) {
	status := s.getOrCreateStatus(path)
	status.SyncState = SyncStateCompleted
	status.ConflictState = ConflictStateConflicted
	status.Error = ""
	status.LastUpdated = time.Now()

	s.broadcastEvent(path, status)
}

// ReplaceConflicts swaps the open conflicts for those found by the last full pass.
func (s *SyncStatus) ReplaceConflicts(conflicts []*Conflict) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]*Conflict, len(conflicts))
	for _, c := range conflicts {
		next[c.Path] = c
	}
	for path := range s.conflicts {
		if _, ok := next[path]; !ok {
			s.clearConflictLocked(path)
		}
	}
	s.conflicts = next
	for path := range next {
		s.markConflictedLocked(path)
	}
}

// ClearConflict forgets the conflict at path, if any.
func (s *SyncStatus) ClearConflict(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conflicts, path)
	s.clearConflictLocked(path)
}

func (s *SyncStatus) clearConflictLocked(path string) {
	status, ok := s.files[path]
	if !ok {
		return
	}
	status.ConflictState = ConflictStateNone
	status.LastUpdated = time.Now()
	s.broadcastEvent(path, status)
	if status.SyncState == SyncStateCompleted {
		delete(s.files, path)
	}
}

// Conflict returns the open conflict at path.
func (s *SyncStatus) Conflict(path string) (*Conflict, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conflicts[path]
	return c, ok
}

// Conflicts returns the open conflicts sorted by path.
func (s *SyncStatus) Conflicts() []*Conflict {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Conflict, 0, len(s.conflicts))
	for _, c := range s.conflicts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// GetStatus returns a copy of the status of path.
func (s *SyncStatus) GetStatus(path string) (PathStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, exists := s.files[path]
	if !exists {
		return PathStatus{}, false
	}
	return *status, true
}

// GetAllStatus returns a copy of all path statuses.
func (s *SyncStatus) GetAllStatus() map[string]PathStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]PathStatus, len(s.files))
	for path, status := range s.files {
		result[path] = *status
	}
	return result
}

func (s *SyncStatus) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = make(map[string]*PathStatus)
	s.conflicts = make(map[string]*Conflict)

	s.eventMu.Lock()
	defer s.eventMu.Unlock()
	for _, sub := range s.eventSubs {
		close(sub)
	}
	s.eventSubs = make([]chan *SyncStatusEvent, 0)
}
