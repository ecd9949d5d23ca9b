package sync

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncStatus_Lifecycle(t *testing.T) {
	s := NewSyncStatus()
	defer s.Close()

	s.SetSyncing("/a.py")
	st, ok := s.GetStatus("/a.py")
	require.True(t, ok)
	assert.Equal(t, SyncStateSyncing, st.SyncState)

	s.SetError("/a.py", errors.New("boom"))
	s.SetError("/a.py", errors.New("boom again"))
	st, _ = s.GetStatus("/a.py")
	assert.Equal(t, SyncStateError, st.SyncState)
	assert.Equal(t, 2, st.ErrorCount)
	assert.Equal(t, "boom again", st.Error)

	s.SetCompleted("/a.py")
	_, ok = s.GetStatus("/a.py")
	assert.False(t, ok, "clean completed paths are dropped")
}

func TestSyncStatus_Conflicts(t *testing.T) {
	s := NewSyncStatus()
	defer s.Close()

	s.ReplaceConflicts([]*Conflict{{Path: "/b.py"}, {Path: "/a.py"}})
	open := s.Conflicts()
	require.Len(t, open, 2)
	assert.Equal(t, "/a.py", open[0].Path)

	// completing a conflicted path keeps it listed
	s.SetCompleted("/a.py")
	st, ok := s.GetStatus("/a.py")
	require.True(t, ok)
	assert.Equal(t, ConflictStateConflicted, st.ConflictState)

	// the next pass only found /b.py
	s.ReplaceConflicts([]*Conflict{{Path: "/b.py"}})
	_, ok = s.Conflict("/a.py")
	assert.False(t, ok)
	_, ok = s.GetStatus("/a.py")
	assert.False(t, ok)

	s.ClearConflict("/b.py")
	assert.Empty(t, s.Conflicts())
	assert.Empty(t, s.GetAllStatus())
}

func TestSyncStatus_Subscribe(t *testing.T) {
	s := NewSyncStatus()

	ch := s.Subscribe()
	s.SetConflicted(&Conflict{Path: "/c.py"})

	ev := <-ch
	assert.Equal(t, "/c.py", ev.Path)
	assert.Equal(t, ConflictStateConflicted, ev.Status.ConflictState)

	s.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)

	other := s.Subscribe()
	s.Close()
	_, open = <-other
	assert.False(t, open)
}
