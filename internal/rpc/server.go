package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/bbernstein/lacylights-showsync/internal/services/pubsub"
	"github.com/bbernstein/lacylights-showsync/internal/services/scheduler"
)

const (
	maxRequestBytes = 1 << 20
	wsWriteWait     = 10 * time.Second
	wsPingInterval  = 10 * time.Second
	wsPongWait      = 3 * wsPingInterval
)

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	CORSOrigin string
	Debug      bool
	Version    string
}

// Notification is pushed to websocket clients for every scheduler notification.
type Notification struct {
	JSONRPC string             `json:"jsonrpc"`
	Method  scheduler.Event    `json:"method"`
	Params  scheduler.Snapshot `json:"params"`
}

// Server exposes a Dispatcher over HTTP POST and websockets.
type Server struct {
	dispatcher *Dispatcher
	pubsub     *pubsub.PubSub
	cfg        ServerConfig
	router     chi.Router
	upgrader   websocket.Upgrader
	startedAt  time.Time
}

// NewServer builds the router.
func NewServer(d *Dispatcher, ps *pubsub.PubSub, cfg ServerConfig) *Server {
	s := &Server{
		dispatcher: d,
		pubsub:     ps,
		cfg:        cfg,
		startedAt:  time.Now(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for WebSocket
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.CORSOrigin, "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		Debug:            cfg.Debug,
	})
	router.Use(corsMiddleware.Handler)

	router.Get("/health", s.handleHealth)
	router.Get("/ws", s.handleWebsocket)
	router.Group(func(r chi.Router) {
		// Longer than the maximum wait_state long-poll.
		r.Use(middleware.Timeout(MaxWaitTimeout + 30*time.Second))
		r.Post("/", s.handleRPC)
		r.Post("/rpc", s.handleRPC)
	})

	s.router = router
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		_, _ = w.Write(encode(errorResponse(nil, &Error{Code: CodeInvalidRequest, Message: "Invalid Request",
			Data: &ErrorData{Detail: err.Error()}})))
		return
	}

	resp := s.dispatcher.Handle(r.Context(), body)
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(resp)
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   s.cfg.Version,
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// handleWebsocket streams scheduler notifications and also accepts JSON-RPC
// requests on the same connection.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Warning: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub := s.pubsub.Subscribe(pubsub.TopicPlaybackState, "", 32)
	defer s.pubsub.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var writeMu sync.Mutex
	write := func(data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(maxRequestBytes)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
			if resp := s.dispatcher.Handle(ctx, msg); resp != nil {
				if err := write(resp); err != nil {
					return
				}
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case msg, ok := <-sub.Channel:
			if !ok {
				return
			}
			n, ok := msg.(scheduler.Notification)
			if !ok {
				continue
			}
			data, err := json.Marshal(Notification{JSONRPC: Version, Method: n.Event, Params: n.Snapshot})
			if err != nil {
				log.Printf("Warning: failed to encode notification: %v", err)
				continue
			}
			if err := write(data); err != nil {
				return
			}
		case <-ping.C:
			writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// ListenAndServe runs an http.Server for the handler until ctx is cancelled,
// then shuts it down gracefully within shutdownTimeout.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, shutdownTimeout time.Duration) error {
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("🌐 JSON-RPC listening on http://%s (POST /rpc, GET /ws)", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("rpc server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("rpc server shutdown: %w", err)
	}
	return nil
}
