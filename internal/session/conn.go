package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"collab-app/internal/models"
	"collab-app/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Conn adapts one websocket connection to the Peer interface. The identity
// comes from the authenticated token, never from the wire. A connection is
// "pending" until its new-client message passes presence arbitration; only
// admitted connections run the disconnect cleanup on close.
type Conn struct {
	service  *Service
	ws       *websocket.Conn
	send     chan []byte
	username string
	roomID   string

	joined bool
	closed atomic.Bool
	once   sync.Once
	done   chan struct{}
}

// ServeConn runs the connection until the socket closes. It blocks, so the
// HTTP handler should call it as the last thing it does.
func ServeConn(service *Service, ws *websocket.Conn, username, roomID string) {
	c := &Conn{
		service:  service,
		ws:       ws,
		send:     make(chan []byte, 256),
		username: username,
		roomID:   roomID,
		done:     make(chan struct{}),
	}

	go c.writePump()
	c.readPump()
}

func (c *Conn) ID() string {
	return c.username
}

func (c *Conn) Send(data []byte) error {
	if c.closed.Load() {
		return ErrPeerClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		// Slow consumer: drop the connection rather than block the room.
		c.Close()
		return ErrPeerClosed
	}
}

func (c *Conn) Closed() bool {
	return c.closed.Load()
}

// Close tears the connection down; the read pump notices and runs the
// cleanup path exactly once.
func (c *Conn) Close() {
	c.ws.Close()
}

func (c *Conn) readPump() {
	defer c.teardown()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ctx := context.Background()
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket error for %s: %v", c.username, err)
			}
			return
		}

		var msg models.ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Debug("Ignoring malformed message from %s: %v", c.username, err)
			continue
		}

		switch msg.Type {
		case models.MsgNewClient:
			if c.joined {
				continue
			}
			// The token identity is authoritative; a mismatched from field is
			// a protocol violation and the join request is ignored.
			if msg.From != "" && msg.From != c.username {
				logger.Debug("Identity mismatch from %s (claimed %s)", c.username, msg.From)
				continue
			}
			if err := c.service.Join(ctx, c.roomID, c); err != nil {
				if errors.Is(err, ErrAlreadyConnected) {
					frame, _ := json.Marshal(models.StatusMessage{Type: models.MsgAlreadyConnected})
					c.Send(frame)
				} else {
					logger.Error("Join failed for %s in room %s: %v", c.username, c.roomID, err)
				}
				return
			}
			c.joined = true

		case models.MsgYjsUpdate:
			if !c.joined {
				continue
			}
			c.service.HandleUpdate(ctx, c.roomID, c.username, msg.Update)

		case models.MsgWebRTCSignal:
			if !c.joined {
				continue
			}
			c.service.HandleSignal(ctx, c.roomID, c.username, msg.To, msg.Signal)

		default:
			logger.Debug("Ignoring unknown message type %q from %s", msg.Type, c.username)
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			// Drain what is already queued (e.g. the already-connected
			// rejection) before closing.
			for {
				select {
				case msg := <-c.send:
					c.ws.SetWriteDeadline(time.Now().Add(writeWait))
					if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
						return
					}
				default:
					c.ws.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
			}
		}
	}
}

// teardown runs exactly once, from the read pump exit. Pending (never
// admitted) connections skip Disconnect so a rejected duplicate cannot tear
// down the live session's membership row.
func (c *Conn) teardown() {
	c.once.Do(func() {
		c.closed.Store(true)
		close(c.done)
		if c.joined {
			c.service.Disconnect(context.Background(), c.roomID, c)
		}
	})
}
