package control

import (
	"log/slog"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"

	"github.com/hostmirror/hostmirror/internal/sync"
)

// snapshotBuffer bounds the per-connection queue. A slow client drops the
// oldest snapshot rather than blocking the engine's synchronous notify.
const snapshotBuffer = 16

// progressSocket streams job snapshots over a websocket. The current
// status is sent immediately, then every state change until the client
// disconnects.
func (s *Server) progressSocket(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: s.holder.Config().Control.AllowedOrigins,
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := c.Request.Context()

	updates := make(chan sync.Snapshot, snapshotBuffer)

	unsubscribe := s.engine.Subscribe(func(snap sync.Snapshot) {
		select {
		case updates <- snap:
		default:
			// Drop the oldest so the newest always fits.
			select {
			case <-updates:
			default:
			}

			select {
			case updates <- snap:
			default:
			}
		}
	})
	defer unsubscribe()

	if err := wsjson.Write(ctx, conn, s.engine.Status()); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case snap := <-updates:
			if err := wsjson.Write(ctx, conn, snap); err != nil {
				s.logger.Debug("websocket write failed, closing",
					slog.String("error", err.Error()),
				)

				return
			}
		}
	}
}
