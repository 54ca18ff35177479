package api

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/services"
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// wsConn is one live socket. Writes go through a bounded buffer drained by
// writeLoop, so a slow client never blocks the sender.
type wsConn struct {
	id           string
	log          *slog.Logger
	conn         *websocket.Conn
	send         chan []byte
	done         chan struct{}
	open         atomic.Bool
	closeOnce    sync.Once
	writeTimeout time.Duration
}

func newWSConn(log *slog.Logger, conn *websocket.Conn, bufferSize int, writeTimeout time.Duration) *wsConn {
	c := &wsConn{
		id:           uuid.NewString(),
		log:          log,
		conn:         conn,
		send:         make(chan []byte, bufferSize),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
	c.open.Store(true)
	return c
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) IsOpen() bool { return c.open.Load() }

func (c *wsConn) Send(payload []byte) error {
	if !c.IsOpen() {
		return errors.ErrConnectionClosed
	}
	select {
	case <-c.done:
		return errors.ErrConnectionClosed
	case c.send <- payload:
		return nil
	default:
		return errors.ErrSendBufferFull
	}
}

func (c *wsConn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug("Socket write failed", "connection", c.id, "error", err)
				c.close()
				return
			}
		}
	}
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		c.open.Store(false)
		close(c.done)
		_ = c.conn.Close()
	})
}

// handleWS upgrades the request and reads frames until the client leaves.
// Frames from one socket are handled in order.
func (s *Server) handleWS(c *gin.Context) {
	socket, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	if s.opts.MaxFrameBytes > 0 {
		socket.SetReadLimit(s.opts.MaxFrameBytes)
	}
	conn := newWSConn(s.log, socket, s.opts.SendBufferSize, s.opts.DeliveryTimeout)
	go conn.writeLoop()
	s.log.Info("Client connected", "connection", conn.id)

	ctx := c.Request.Context()
	var userID string
	defer func() {
		conn.close()
		if userID != "" && s.registry.Release(userID, conn) {
			s.log.Info("User disconnected", "user", userID)
		}
	}()

	for {
		_, data, err := socket.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("Socket read ended", "connection", conn.id, "error", err)
			}
			return
		}
		frame, err := domain.DecodeFrame(data)
		if err != nil {
			s.log.Warn("Ignoring frame", "connection", conn.id, "error", stderrors.Join(errors.ErrInvalidFrame, err))
			continue
		}
		if registered := s.dispatch(ctx, conn, frame); registered != "" {
			// A socket speaks for one user: registering as someone else frees the previous entry
			if userID != "" && userID != registered && s.registry.Release(userID, conn) {
				s.log.Info("User released by re-registration", "user", userID, "connection", conn.id)
			}
			userID = registered
		}
	}
}

// dispatch handles one frame and returns the user id when the frame registered one.
func (s *Server) dispatch(ctx context.Context, conn *wsConn, frame domain.Frame) string {
	switch frame.Type {
	case domain.FrameRegister:
		if frame.UserID == "" {
			s.log.Warn("Register frame without userId", "connection", conn.id)
			return ""
		}
		s.registry.Register(frame.UserID, conn)
		s.log.Info("User registered", "user", frame.UserID, "connection", conn.id)
		return frame.UserID
	case domain.FrameMessage:
		delivery, _ := s.router.RoutePersonalMessage(ctx, frame.DirectMessage())
		s.monitoring.RecordDelivery(delivery)
	case domain.FrameCreateGroup:
		if _, err := s.groups.CreateGroup(ctx, services.CreateGroupCommand{
			GroupName: frame.GroupName,
			Members:   frame.Members,
		}); err != nil {
			s.log.Warn("Group creation failed", "connection", conn.id, "error", err)
		}
	case domain.FrameGroupMessage:
		_ = s.groups.SendGroupMessage(ctx, frame.GroupMessage())
	default:
		s.log.Warn("Ignoring frame", "connection", conn.id, "type", frame.Type, "error", errors.ErrUnsupportedFrame)
	}
	return ""
}
