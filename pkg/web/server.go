// Package web provides a real-time dashboard for Duet sessions
package web

import (
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/heyduet/go-duet/pkg/hub"
)

// LocationView is the dashboard's rendering of a stable location
type LocationView struct {
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	IsStale      bool    `json:"is_stale"`
	IsWeakSignal bool    `json:"is_weak_signal"`
}

// SessionView is one user's proximity standing for the dashboard.
// DistanceKm and Location are null until known.
type SessionView struct {
	UserID            string        `json:"user_id"`
	Mode              string        `json:"mode"`
	DistanceKm        *float64      `json:"distance_km"`
	DistanceLabel     string        `json:"distance_label"`
	CounterpartOnline bool          `json:"counterpart_online"`
	Location          *LocationView `json:"location"`
	UpdatedAt         string        `json:"updated_at"`
}

// DashboardState is everything the dashboard renders
type DashboardState struct {
	Sessions map[string]SessionView `json:"sessions"`
}

// EventEntry represents an event line for the dashboard
type EventEntry struct {
	Time    string `json:"time"`
	Type    string `json:"type"` // mode, gate, location, error
	Message string `json:"message"`
}

// Server is the web dashboard server
type Server struct {
	app  *fiber.App
	port string

	// State
	state   DashboardState
	stateMu sync.RWMutex

	// Event buffer (last 500 entries)
	events   []EventEntry
	eventsMu sync.RWMutex

	// Hubs for websocket broadcast (thread-safe!)
	stateHub *hub.Hub
	eventHub *hub.Hub

	// Manual refresh callback, wired to the session's forced update
	OnRefresh func(userID string) error

	// Consent toggle callback
	OnConsent func(userID string, granted bool) error
}

// NewServer creates a new web dashboard server
func NewServer(port string) *Server {
	s := &Server{
		port:     port,
		state:    DashboardState{Sessions: make(map[string]SessionView)},
		events:   make([]EventEntry, 0, 500),
		stateHub: hub.New("state"),
		eventHub: hub.New("events"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Duet Dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	app.Get("/", s.handleIndex)

	// API routes
	api := app.Group("/api")
	api.Get("/state", s.handleState)
	api.Get("/events", s.handleGetEvents)
	api.Post("/sessions/:user/refresh", s.handleRefresh)
	api.Post("/sessions/:user/consent", s.handleConsent)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/state", websocket.New(s.handleStateWS))
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// Start starts the web server
func (s *Server) Start() error {
	fmt.Printf("🌐 Duet dashboard: http://localhost:%s\n", s.port)

	// Start all hubs
	go s.stateHub.Run()
	go s.eventHub.Run()

	return s.app.Listen(":" + s.port)
}

// StartAsync starts the web server in a goroutine
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			fmt.Printf("⚠️  Web server error: %v\n", err)
		}
	}()
}

// UpdateSession stores one user's view and broadcasts the full state
func (s *Server) UpdateSession(view SessionView) {
	view.UpdatedAt = time.Now().Format("15:04:05")

	s.stateMu.Lock()
	s.state.Sessions[view.UserID] = view
	state := s.snapshotLocked()
	s.stateMu.Unlock()

	// Broadcast via hub (thread-safe!)
	s.stateHub.BroadcastJSON(state)
}

// snapshotLocked copies the state; callers hold stateMu
func (s *Server) snapshotLocked() DashboardState {
	out := DashboardState{Sessions: make(map[string]SessionView, len(s.state.Sessions))}
	for id, view := range s.state.Sessions {
		out.Sessions[id] = view
	}
	return out
}

// AddEvent adds an event entry and broadcasts to clients
func (s *Server) AddEvent(eventType, message string) {
	entry := EventEntry{
		Time:    time.Now().Format("15:04:05"),
		Type:    eventType,
		Message: message,
	}

	s.eventsMu.Lock()
	s.events = append(s.events, entry)
	if len(s.events) > 500 {
		s.events = s.events[1:]
	}
	s.eventsMu.Unlock()

	// Broadcast via hub (thread-safe!)
	s.eventHub.BroadcastJSON(entry)
}

// GetStateHub returns the state hub for external use
func (s *Server) GetStateHub() *hub.Hub {
	return s.stateHub
}

// GetEventHub returns the event hub for external use
func (s *Server) GetEventHub() *hub.Hub {
	return s.eventHub
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
