package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/heyduet/go-duet/pkg/hub"
)

// handleIndex describes the service
func (s *Server) handleIndex(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "duet-dashboard",
		"endpoints": []string{
			"/api/state",
			"/api/events",
			"/api/sessions/:user/refresh",
			"/api/sessions/:user/consent",
			"/ws/state",
			"/ws/events",
		},
	})
}

// handleState returns the current dashboard state
func (s *Server) handleState(c *fiber.Ctx) error {
	s.stateMu.RLock()
	state := s.snapshotLocked()
	s.stateMu.RUnlock()
	return c.JSON(state)
}

// handleGetEvents returns buffered events
func (s *Server) handleGetEvents(c *fiber.Ctx) error {
	s.eventsMu.RLock()
	events := make([]EventEntry, len(s.events))
	copy(events, s.events)
	s.eventsMu.RUnlock()

	return c.JSON(fiber.Map{
		"events": events,
		"count":  len(events),
	})
}

// handleRefresh triggers a forced location update for one user
func (s *Server) handleRefresh(c *fiber.Ctx) error {
	userID := c.Params("user")
	if s.OnRefresh == nil {
		return c.Status(503).JSON(fiber.Map{"error": "refresh not wired"})
	}
	if err := s.OnRefresh(userID); err != nil {
		return c.Status(409).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "ok", "user": userID})
}

// handleConsent toggles location consent for one user
func (s *Server) handleConsent(c *fiber.Ctx) error {
	userID := c.Params("user")

	var body struct {
		Granted bool `json:"granted"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid body"})
	}

	if s.OnConsent == nil {
		return c.Status(503).JSON(fiber.Map{"error": "consent not wired"})
	}
	if err := s.OnConsent(userID, body.Granted); err != nil {
		return c.Status(409).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "ok", "user": userID, "granted": body.Granted})
}

// handleStateWS streams dashboard state snapshots.
// The current state goes out before the client joins the hub, so the
// first broadcast it sees is never older than what it already has.
func (s *Server) handleStateWS(c *websocket.Conn) {
	s.stateMu.RLock()
	state := s.snapshotLocked()
	s.stateMu.RUnlock()

	if err := c.WriteJSON(state); err != nil {
		c.Close()
		return
	}

	client := hub.NewClient(s.stateHub, c)
	client.Run()
}

// handleEventsWS replays the event buffer then streams new events
func (s *Server) handleEventsWS(c *websocket.Conn) {
	s.eventsMu.RLock()
	events := make([]EventEntry, len(s.events))
	copy(events, s.events)
	s.eventsMu.RUnlock()

	for _, entry := range events {
		if err := c.WriteJSON(entry); err != nil {
			c.Close()
			return
		}
	}

	client := hub.NewClient(s.eventHub, c)
	client.Run()
}
