package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/openmined/studiosync/internal/client/index"
	"github.com/openmined/studiosync/internal/client/sync"
)

const (
	CodeOk                  string = "OK"
	ErrCodeBadRequest       string = "ERR_BAD_REQUEST"
	ErrCodeUnknownError     string = "ERR_UNKNOWN_ERROR"
	ErrCodeSyncNotReady     string = "ERR_SYNC_NOT_READY"
	ErrCodeConflictNotFound string = "ERR_CONFLICT_NOT_FOUND"
	ErrCodeResolveFailed    string = "ERR_RESOLVE_FAILED"
)

// SyncBackend is what the control plane reads from and drives. The daemon
// passes its *sync.SyncManager.
type SyncBackend interface {
	SchedulerStatus() sync.SchedulerStatus
	LastSummary() *sync.Summary
	PathStatus() map[string]sync.PathStatus
	Items() []index.ItemView
	Conflicts() []*sync.Conflict
	ResolveConflict(ctx context.Context, path string, side sync.Side) error
	RequestFullPass()
	SubscribeStatus() <-chan *sync.SyncStatusEvent
	UnsubscribeStatus(ch <-chan *sync.SyncStatusEvent)
}

type ControlPlaneResponse struct {
	Code string `json:"code"`
}

type ControlPlaneError struct {
	ErrorCode string `json:"code"`
	Error     string `json:"error"`
}

func AbortWithError(c *gin.Context, status int, code string, err error) {
	c.Abort()
	c.Error(err)
	c.PureJSON(status, ControlPlaneError{
		ErrorCode: code,
		Error:     err.Error(),
	})
}
