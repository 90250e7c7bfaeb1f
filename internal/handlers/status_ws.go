package handlers

import (
	"log"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/meetingd/meetingd/internal/meeting"
)

// StatusStreamHandler pushes live meeting status over a WebSocket so UIs can
// follow the pipeline without polling.
type StatusStreamHandler struct {
	status *meeting.StatusHandle
}

func NewStatusStreamHandler(status *meeting.StatusHandle) *StatusStreamHandler {
	return &StatusStreamHandler{status: status}
}

// Handle sends a status snapshot immediately, then once per second until the
// client disconnects.
func (h *StatusStreamHandler) Handle(c *websocket.Conn) {
	defer c.Close()
	log.Printf("Status WebSocket connection established: %s", c.RemoteAddr())

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		state := h.status.Get()
		if err := c.WriteJSON(state); err != nil {
			log.Printf("Status WebSocket closed: %v", err)
			return
		}
		<-ticker.C
	}
}
