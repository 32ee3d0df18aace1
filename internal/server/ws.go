package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin policy is enforced by the CORS middleware for the REST routes;
	// the WS handshake accepts any origin and relies on unguessable task ids.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const writeTimeout = 10 * time.Second

// wsProgress streams progress events for one task. On connect, all recorded
// events are replayed in order before any live ones.
func (s *Server) wsProgress(c *gin.Context) {
	taskID := c.Param("task_id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "task_id", taskID, "err", err)
		return
	}
	defer conn.Close()

	sub := s.broadcaster.Subscribe(taskID)
	defer s.broadcaster.Unsubscribe(taskID, sub)

	// Reader loop: the client sends nothing meaningful, but reading is
	// required to notice the peer closing.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				// Task history was pruned; nothing more will arrive.
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("websocket write failed", "task_id", taskID, "err", err)
				return
			}
		case <-done:
			return
		}
	}
}
