package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"qrattend/internal/notify"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// studentSocket streams status changes of the caller's own claims.
func (h *Handler) studentSocket(c *gin.Context) {
	h.stream(c, notify.StudentGroup(actor(c).ID))
}

// lectureSocket streams new claims of a lecture to its teacher.
func (h *Handler) lectureSocket(c *gin.Context) {
	lectureID := c.Param("id")
	if err := h.svc.AuthorizeLectureViewer(c.Request.Context(), actor(c), lectureID); err != nil {
		h.fail(c, err)
		return
	}
	h.stream(c, notify.LectureGroup(lectureID))
}

// stream subscribes to group, upgrades the connection and forwards every
// event as a JSON text frame until either side goes away.
func (h *Handler) stream(c *gin.Context, group notify.Group) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, unsubscribe, err := h.relay.Subscribe(ctx, group)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.String("group", string(group)), zap.Error(err))
		return
	}
	defer conn.Close()
	h.logger.Debug("websocket connected", zap.String("group", string(group)))

	// The client only sends control frames; reading surfaces its close.
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
