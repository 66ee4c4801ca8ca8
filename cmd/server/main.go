package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"collab-app/internal/auth"
	"collab-app/internal/config"
	"collab-app/internal/coordinator"
	"collab-app/internal/crdt"
	"collab-app/internal/database"
	"collab-app/internal/handlers"
	"collab-app/internal/services"
	"collab-app/internal/session"
	"collab-app/pkg/logger"

	"github.com/google/uuid"
)

func main() {
	// Load configuration
	cfg := config.Load()
	ctx := context.Background()

	// Initialize the durable store
	store, err := newStore(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer store.Close()

	// Initialize the cross-instance coordinator bus
	bus, err := newCoordinator(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to connect to coordinator bus: %v", err)
	}
	defer bus.Close()

	// Each process gets a random instance id so it can recognize (and drop)
	// its own events on the bus.
	instanceID := uuid.NewString()

	// Initialize services
	authService := auth.NewService(store, cfg)
	roomService := services.NewRoomService(store)
	sessionService := session.NewService(store, bus, crdt.NewUpdateSetEngine(), cfg.Session, instanceID)

	// Initialize handlers
	authHandlers := handlers.NewAuthHandlers(authService)
	roomHandlers := handlers.NewRoomHandlers(roomService, authService)
	wsHandlers := handlers.NewWebSocketHandlers(authService, sessionService)

	// Setup routes
	mux := http.NewServeMux()
	setupRoutes(mux, authHandlers, roomHandlers, wsHandlers)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	logger.Info("Server %s started on http://localhost%s", instanceID, cfg.Server.Port)
	logger.Info("WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)

	// Graceful shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Server shutting down...")
}

func newStore(ctx context.Context, cfg *config.Config) (database.Store, error) {
	if cfg.Database.URL == "memory" {
		logger.Info("Using in-memory store (single instance, non-durable)")
		return database.NewMemoryStore(), nil
	}
	return database.NewPostgresStore(ctx, cfg.Database.URL)
}

func newCoordinator(ctx context.Context, cfg *config.Config) (coordinator.Coordinator, error) {
	if cfg.Redis.URL == "" {
		logger.Info("REDIS_URL not set, using in-process event bus (single instance)")
		return coordinator.NewBus(), nil
	}
	return coordinator.NewRedisCoordinator(ctx, cfg.Redis.URL)
}

func setupRoutes(mux *http.ServeMux, authHandlers *handlers.AuthHandlers, roomHandlers *handlers.RoomHandlers, wsHandlers *handlers.WebSocketHandlers) {
	// Auth routes
	mux.HandleFunc("/login", authHandlers.Login)
	mux.HandleFunc("/register", authHandlers.Register)

	// Room sub-routes
	mux.HandleFunc("/rooms/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		parts := strings.Split(r.URL.Path, "/")
		if len(parts) < 3 || parts[2] == "" {
			http.Error(w, "invalid path", http.StatusBadRequest)
			return
		}

		// /rooms/{id}/members
		if len(parts) == 4 && parts[3] == "members" {
			roomHandlers.GetActiveMembers(w, r)
			return
		}

		// /rooms/{id}
		if len(parts) == 3 {
			roomHandlers.GetRoom(w, r)
			return
		}

		http.Error(w, "endpoint not found", http.StatusNotFound)
	})

	// WebSocket route
	mux.HandleFunc("/ws", wsHandlers.HandleWebSocket)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
