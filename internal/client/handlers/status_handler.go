package handlers

import (
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openmined/studiosync/internal/client/sync"
	"github.com/openmined/studiosync/internal/version"
)

// StatusHandler handles status-related endpoints.
type StatusHandler struct {
	backend SyncBackend
}

func NewStatusHandler(backend SyncBackend) *StatusHandler {
	return &StatusHandler{
		backend: backend,
	}
}

// Status returns the scheduler state, the last pass summary and per-path state.
func (h *StatusHandler) Status(ctx *gin.Context) {
	// this is unlikely to happen, but just in case
	if h.backend == nil {
		AbortWithError(ctx, http.StatusServiceUnavailable, ErrCodeSyncNotReady, errors.New("sync manager not initialized"))
		return
	}

	files, summary := pathStatuses(h.backend.PathStatus())

	ctx.PureJSON(http.StatusOK, &StatusResponse{
		Status:      "ok",
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Version:     version.Version,
		Revision:    version.Revision,
		BuildDate:   version.BuildDate,
		Scheduler:   h.backend.SchedulerStatus(),
		LastSummary: h.backend.LastSummary(),
		Files:       files,
		Summary:     summary,
	})
}

func pathStatuses(all map[string]sync.PathStatus) ([]SyncFileStatus, SyncSummary) {
	files := make([]SyncFileStatus, 0, len(all))
	var summary SyncSummary

	for path, status := range all {
		files = append(files, toFileStatus(path, status))

		switch status.SyncState {
		case sync.SyncStatePending:
			summary.Pending++
		case sync.SyncStateSyncing:
			summary.Syncing++
		case sync.SyncStateCompleted:
			summary.Completed++
		case sync.SyncStateError:
			summary.Error++
		}
		if status.ConflictState == sync.ConflictStateConflicted {
			summary.Conflicted++
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, summary
}

func toFileStatus(path string, status sync.PathStatus) SyncFileStatus {
	return SyncFileStatus{
		Path:          path,
		State:         string(status.SyncState),
		ConflictState: string(status.ConflictState),
		Error:         status.Error,
		ErrorCount:    status.ErrorCount,
		UpdatedAt:     status.LastUpdated,
	}
}
