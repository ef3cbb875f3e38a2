package ws

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/kiliankoe/playtutor/internal/bus"
	"github.com/kiliankoe/playtutor/internal/game"
	"github.com/kiliankoe/playtutor/internal/questions"
	"github.com/rs/zerolog/log"
)

// EventMessage carries one bus frame, as a JSON string, in either direction.
const EventMessage = "game:message"

type ConnCtx struct {
	SessionID string
}

type binding struct {
	bus     *bus.Bus
	session *game.Session
}

// Server relays bus frames between the host page's socket and the session the
// page attached to. The page forwards them to and from the game's frame.
type Server struct {
	Sessions *game.Manager
	Pipeline *questions.Pipeline

	mu    sync.Mutex
	conns map[string]binding // socketID -> binding
}

func New(m *game.Manager, p *questions.Pipeline) *Server {
	return &Server{Sessions: m, Pipeline: p, conns: make(map[string]binding)}
}

type socketTransport struct {
	conn socketio.Conn
}

func (t socketTransport) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.conn.Emit(EventMessage, string(data))
	return nil
}

// Mount attaches Socket.IO server with handlers to the given Gin engine.
func (srv *Server) Mount(r *gin.Engine) *socketio.Server {
	io := socketio.NewServer(nil)

	io.OnConnect("/", func(s socketio.Conn) error {
		s.SetContext(&ConnCtx{})
		log.Info().Str("sid", s.ID()).Msg("socket connected")
		return nil
	})

	// game:attach binds this socket to a session
	io.OnEvent("/", "game:attach", func(s socketio.Conn, payload struct {
		SessionID string `json:"sessionId"`
	}) map[string]any {
		sess, err := srv.Sessions.Get(payload.SessionID)
		if err != nil {
			return srv.err(s, "session_not_found", "Session not found")
		}
		srv.attach(s, sess)
		log.Info().Str("sid", s.ID()).Str("session", sess.ID).Msg("game:attach")
		return map[string]any{"ok": true, "state": sess.State()}
	})

	io.OnEvent("/", EventMessage, func(s socketio.Conn, msg string) {
		srv.mu.Lock()
		b, ok := srv.conns[s.ID()]
		srv.mu.Unlock()
		if !ok {
			log.Debug().Str("sid", s.ID()).Msg("message before attach")
			return
		}
		b.bus.Deliver([]byte(msg))
	})

	io.OnError("/", func(s socketio.Conn, e error) {
		log.Error().Err(e).Msg("socket error")
	})
	io.OnDisconnect("/", func(s socketio.Conn, reason string) {
		srv.detach(s)
		log.Info().Str("sid", s.ID()).Str("reason", reason).Msg("socket disconnected")
	})

	go func() {
		if err := io.Serve(); err != nil {
			log.Error().Err(err).Msg("socket.io serve failed")
		}
	}()

	// Mount to router
	r.GET("/socket.io/*any", gin.WrapH(io))
	r.POST("/socket.io/*any", gin.WrapH(io))

	// Basic CORS preflight for Socket.IO POST
	r.OPTIONS("/socket.io/*any", func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Status(http.StatusNoContent)
	})

	return io
}

func (srv *Server) attach(s socketio.Conn, sess *game.Session) {
	srv.detach(s)
	b := bus.New(socketTransport{conn: s})
	Bind(b, sess, srv.Pipeline)

	srv.mu.Lock()
	srv.conns[s.ID()] = binding{bus: b, session: sess}
	srv.mu.Unlock()
	s.SetContext(&ConnCtx{SessionID: sess.ID})
}

func (srv *Server) detach(s socketio.Conn) {
	srv.mu.Lock()
	b, ok := srv.conns[s.ID()]
	delete(srv.conns, s.ID())
	srv.mu.Unlock()
	if ok {
		Unbind(b.bus, b.session)
	}
}

func (srv *Server) err(s socketio.Conn, code, message string) map[string]any {
	s.Emit("error", map[string]any{"code": code, "message": message})
	return map[string]any{"error": message}
}
