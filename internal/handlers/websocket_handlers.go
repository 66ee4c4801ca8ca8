package handlers

import (
	"net/http"

	"collab-app/internal/auth"
	"collab-app/internal/session"
	"collab-app/pkg/logger"

	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	authService    *auth.Service
	sessionService *session.Service
	upgrader       websocket.Upgrader
}

func NewWebSocketHandlers(authService *auth.Service, sessionService *session.Service) *WebSocketHandlers {
	return &WebSocketHandlers{
		authService:    authService,
		sessionService: sessionService,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Get JWT token from query parameters
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	// Validate token and get user
	user, err := h.authService.UserFromToken(tokenStr)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	// Room ids are externally supplied; clients share a document by sharing
	// a room name.
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		http.Error(w, "missing room", http.StatusBadRequest)
		return
	}

	// Upgrade connection to WebSocket
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	// Runs until the socket closes. Admission happens when the client sends
	// its new-client message; the connection is pending until then.
	session.ServeConn(h.sessionService, conn, user.Username, roomID)
}
