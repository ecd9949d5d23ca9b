package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/studiosync/internal/client/sync"
)

type ConflictHandler struct {
	backend SyncBackend
}

func NewConflictHandler(backend SyncBackend) *ConflictHandler {
	return &ConflictHandler{backend: backend}
}

// List returns the open conflicts.
func (h *ConflictHandler) List(c *gin.Context) {
	conflicts := h.backend.Conflicts()
	views := make([]ConflictView, 0, len(conflicts))
	for _, conflict := range conflicts {
		views = append(views, ConflictView{
			Conflict:   conflict,
			LocalDiff:  conflict.LocalPatch(),
			RemoteDiff: conflict.RemotePatch(),
		})
	}
	c.PureJSON(http.StatusOK, ConflictsResponse{Conflicts: views})
}

// Resolve settles one conflict in favor of the local or the remote side.
// It waits until the sync worker has applied the resolution.
func (h *ConflictHandler) Resolve(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	side, err := sync.ParseSide(req.Side)
	if err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	if err := h.backend.ResolveConflict(c.Request.Context(), req.Path, side); err != nil {
		if errors.Is(err, sync.ErrConflictNotFound) {
			AbortWithError(c, http.StatusNotFound, ErrCodeConflictNotFound, err)
			return
		}
		AbortWithError(c, http.StatusInternalServerError, ErrCodeResolveFailed, fmt.Errorf("resolve %s: %w", req.Path, err))
		return
	}

	c.PureJSON(http.StatusOK, ControlPlaneResponse{Code: CodeOk})
}
