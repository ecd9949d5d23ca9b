package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

type SyncHandler struct {
	backend SyncBackend
}

func NewSyncHandler(backend SyncBackend) *SyncHandler {
	return &SyncHandler{backend: backend}
}

// Now queues a full pass. A pass that is already pending is replaced.
func (h *SyncHandler) Now(c *gin.Context) {
	h.backend.RequestFullPass()
	c.PureJSON(http.StatusAccepted, SyncNowResponse{
		Code:   CodeOk,
		Status: "sync requested",
	})
}

// Items lists the tracked recipes, plugins and libraries.
func (h *SyncHandler) Items(c *gin.Context) {
	items := h.backend.Items()
	c.PureJSON(http.StatusOK, ItemsResponse{
		Items: items,
		Count: len(items),
	})
}

// Events streams path status changes as server-sent events.
func (h *SyncHandler) Events(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	eventCh := h.backend.SubscribeStatus()
	defer h.backend.UnsubscribeStatus(eventCh)

	ctx := c.Request.Context()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-eventCh:
			if !ok {
				return false
			}
			c.SSEvent("sync", toFileStatus(event.Path, event.Status))
			return true
		}
	})
}
