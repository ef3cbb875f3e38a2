package ws

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/kiliankoe/playtutor/internal/bus"
	"github.com/kiliankoe/playtutor/internal/game"
	"github.com/kiliankoe/playtutor/internal/questions"
	"github.com/rs/zerolog/log"
)

type wsTransport struct {
	conn *websocket.Conn
}

func (t wsTransport) Send(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

// SessionSocket serves GET /ws/sessions/:id: every text frame is a bus
// message for that session's game.
func SessionSocket(m *game.Manager, p *questions.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := m.Get(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session_not_found"})
			return
		}
		conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			log.Error().Err(err).Str("session", sess.ID).Msg("websocket accept failed")
			return
		}
		defer func() {
			if closeErr := conn.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
				log.Debug().Err(closeErr).Str("session", sess.ID).Msg("websocket close")
			}
		}()

		b := bus.New(wsTransport{conn: conn})
		Bind(b, sess, p)
		defer Unbind(b, sess)
		log.Info().Str("session", sess.ID).Msg("websocket attached")

		ctx := c.Request.Context()
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
					log.Debug().Str("session", sess.ID).Msg("websocket closed by client")
				} else {
					log.Warn().Err(err).Str("session", sess.ID).Msg("websocket read error")
				}
				return
			}
			if typ != websocket.MessageText {
				continue
			}
			b.Deliver(data)
		}
	}
}
