// Package wsbridge exposes a running session to websocket clients.
// Clients are strictly read-only observers: they receive state
// snapshots and game events but cannot drive the game.
//
// The bridge registers a single observer on the session at construction
// time, on the caller's goroutine, and fans deliveries out to its
// connected clients under its own lock. The game loop never blocks on a
// slow client; a client that cannot keep up misses events and resyncs
// from the next full snapshot.
package wsbridge

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/emberforge/wayfarer/internal/eventbus"
	"github.com/emberforge/wayfarer/internal/observe"
	"github.com/emberforge/wayfarer/internal/publisher"
	"github.com/emberforge/wayfarer/internal/session"
)

// observerID is the id the bridge registers under on the session.
const observerID = "wsbridge"

// sendBuffer is the per-client outbound queue length. A full queue
// drops messages rather than stalling the frame loop.
const sendBuffer = 64

// Message is the wire envelope sent to clients.
type Message struct {
	// Type is "hello", "state_update", or "game_event".
	Type string `json:"type"`

	// State carries the full snapshot for hello and state_update.
	State *session.StateSnapshot `json:"state,omitempty"`

	// EventType names the operation that produced a state_update.
	EventType string `json:"eventType,omitempty"`

	// Event carries the game event for game_event messages.
	Event *eventbus.Event `json:"event,omitempty"`
}

type client struct {
	out     chan Message
	dropped int
}

// Server fans session state out to websocket clients.
type Server struct {
	sess    *session.Session
	metrics *observe.Metrics

	mu        sync.Mutex
	clients   map[string]*client
	lastState session.StateSnapshot
}

// New wires the bridge to sess. Must be called on the goroutine that
// drives the session, before the frame loop starts.
func New(sess *session.Session, metrics *observe.Metrics) *Server {
	s := &Server{
		sess:      sess,
		metrics:   metrics,
		clients:   make(map[string]*client),
		lastState: sess.GameState(),
	}
	sess.RegisterObserver(observerID, publisher.Observer[session.StateSnapshot]{
		OnStateUpdate: s.onStateUpdate,
		OnGameEvent:   s.onGameEvent,
	})
	return s
}

// Handler returns the HTTP handler serving the websocket endpoint at
// /ws, instrumented with the standard middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.serveWS)
	return observe.Middleware(s.metrics)(mux)
}

// Serve runs an HTTP server on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	slog.Info("observer bridge listening", "addr", addr)
	select {
	case <-ctx.Done():
		_ = srv.Shutdown(context.Background())
		return nil
	case err := <-errc:
		return err
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// onStateUpdate runs on the game-loop goroutine.
func (s *Server) onStateUpdate(snap session.StateSnapshot, eventType string, _ map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastState = snap
	s.fanOut(Message{Type: "state_update", State: &snap, EventType: eventType})
}

// onGameEvent runs on the game-loop goroutine.
func (s *Server) onGameEvent(ev eventbus.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fanOut(Message{Type: "game_event", Event: &ev})
}

// fanOut enqueues msg for every client. Must be called with s.mu held.
func (s *Server) fanOut(msg Message) {
	for _, c := range s.clients {
		select {
		case c.out <- msg:
		default:
			// Slow client: skip it, the next snapshot resyncs.
			c.dropped++
		}
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}

	id := "ws-" + uuid.NewString()
	c := &client{out: make(chan Message, sendBuffer)}

	s.mu.Lock()
	hello := Message{Type: "hello", State: &s.lastState}
	s.clients[id] = c
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ConnectedObservers.Add(r.Context(), 1)
		defer s.metrics.ConnectedObservers.Add(context.Background(), -1)
	}
	slog.Info("observer connected", "client", id)

	defer func() {
		s.mu.Lock()
		dropped := c.dropped
		delete(s.clients, id)
		s.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "bye")
		slog.Info("observer disconnected", "client", id, "droppedMessages", dropped)
	}()

	// Clients never send; CloseRead surfaces disconnects as a cancelled
	// context.
	ctx := conn.CloseRead(r.Context())

	if err := wsjson.Write(ctx, conn, hello); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.out:
			if err := wsjson.Write(ctx, conn, msg); err != nil {
				return
			}
		}
	}
}
