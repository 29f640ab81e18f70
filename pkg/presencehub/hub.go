// Package presencehub provides the WebSocket hub paired clients report presence to
package presencehub

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/heyduet/go-duet/pkg/geo"
	"github.com/heyduet/go-duet/pkg/protocol"
)

// ClientConn represents a connected app client
type ClientConn struct {
	ID        string
	PairID    string
	SessionID string
	Conn      *websocket.Conn
	Connected time.Time

	mu       sync.Mutex
	lastSeen time.Time
	lastLoc  *protocol.LocationData
	roomID   string
}

// Send writes a message to the client, serialized per connection
func (c *ClientConn) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// touch refreshes the last-seen timestamp
func (c *ClientConn) touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

// LastSeen returns when the client last sent anything
func (c *ClientConn) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// Location returns the client's last reported location, or nil
func (c *ClientConn) Location() *protocol.LocationData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastLoc
}

// Room returns the client's current area room ID, or empty
func (c *ClientConn) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

func (c *ClientConn) setLocation(loc *protocol.LocationData, roomID string) {
	c.mu.Lock()
	c.lastLoc = loc
	c.roomID = roomID
	c.mu.Unlock()
}

// presenceMessage builds the peer_presence fan-out for this client.
// Location is the hub's last knowledge, nil until the client reports one.
func (c *ClientConn) presenceMessage() (*protocol.Message, error) {
	c.mu.Lock()
	loc := c.lastLoc
	lastSeen := c.lastSeen
	roomID := c.roomID
	c.mu.Unlock()

	return protocol.NewPeerPresenceMessage(c.ID, loc, lastSeen.UnixMilli(), roomID)
}

// Hub manages WebSocket connections from paired app clients
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*ClientConn            // by user ID
	pairs   map[string]map[string]*ClientConn // pair ID -> members by user ID
	rooms   map[string]string                 // area cell key -> room ID
	debug   bool

	// Callbacks
	onJoin      func(userID, pairID string)
	onLeave     func(userID, pairID string)
	onLocation  func(userID string, loc *protocol.LocationData)
	onHeartbeat func(userID string)

	// Stats
	messagesReceived  atomic.Uint64
	messagesSent      atomic.Uint64
	locationsReceived atomic.Uint64
}

// NewHub creates a new presence hub
func NewHub(debug bool) *Hub {
	return &Hub{
		clients: make(map[string]*ClientConn),
		pairs:   make(map[string]map[string]*ClientConn),
		rooms:   make(map[string]string),
		debug:   debug,
	}
}

// OnJoin sets the callback for clients joining
func (h *Hub) OnJoin(callback func(userID, pairID string)) {
	h.mu.Lock()
	h.onJoin = callback
	h.mu.Unlock()
}

// OnLeave sets the callback for clients leaving
func (h *Hub) OnLeave(callback func(userID, pairID string)) {
	h.mu.Lock()
	h.onLeave = callback
	h.mu.Unlock()
}

// OnLocation sets the callback for incoming location reports
func (h *Hub) OnLocation(callback func(userID string, loc *protocol.LocationData)) {
	h.mu.Lock()
	h.onLocation = callback
	h.mu.Unlock()
}

// OnHeartbeat sets the callback for incoming heartbeats
func (h *Hub) OnHeartbeat(callback func(userID string)) {
	h.mu.Lock()
	h.onHeartbeat = callback
	h.mu.Unlock()
}

// RegisterRoutes registers WebSocket routes on a Fiber app
func (h *Hub) RegisterRoutes(app *fiber.App) {
	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// Client presence endpoint
	app.Get("/ws/presence", websocket.New(h.handleClient))
}

// handleClient handles one client WebSocket connection
func (h *Hub) handleClient(c *websocket.Conn) {
	client, err := h.awaitHello(c)
	if err != nil {
		if h.debug {
			log.Printf("⚠️  Rejected connection: %v", err)
		}
		return
	}

	if err := h.register(client); err != nil {
		h.rejectConn(c, "pair_full", err.Error())
		return
	}
	defer h.unregister(client)

	if msg, err := protocol.NewWelcomeMessage(client.SessionID, client.ID, client.PairID); err == nil {
		h.send(client, msg)
	}

	// The newcomer learns its peer's standing right away, and the peer
	// learns the newcomer is online.
	h.sendPeerSnapshot(client)
	h.fanOutPresence(client)

	// Read loop
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			if h.debug {
				log.Printf("⚠️  Client %s read error: %v", client.ID, err)
			}
			return
		}

		client.touch()
		h.messagesReceived.Add(1)

		if bye := h.handleMessage(client, data); bye {
			return
		}
	}
}

// awaitHello reads the first message, which must be a valid hello
func (h *Hub) awaitHello(c *websocket.Conn) (*ClientConn, error) {
	_, data, err := c.ReadMessage()
	if err != nil {
		return nil, err
	}

	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.rejectConn(c, "bad_message", "first message must be hello")
		return nil, err
	}
	if msg.Type != protocol.TypeHello {
		h.rejectConn(c, "hello_required", "first message must be hello")
		return nil, fmt.Errorf("got %s before hello", msg.Type)
	}

	hello, err := msg.GetHelloData()
	if err != nil || hello.UserID == "" || hello.PairID == "" {
		h.rejectConn(c, "bad_hello", "hello requires user_id and pair_id")
		return nil, fmt.Errorf("malformed hello")
	}

	now := time.Now()
	return &ClientConn{
		ID:        hello.UserID,
		PairID:    hello.PairID,
		SessionID: uuid.NewString(),
		Conn:      c,
		Connected: now,
		lastSeen:  now,
	}, nil
}

// rejectConn sends a protocol error before the connection drops
func (h *Hub) rejectConn(c *websocket.Conn, code, message string) {
	if msg, err := protocol.NewErrorMessage(code, message); err == nil {
		if data, err := msg.Bytes(); err == nil {
			_ = c.WriteMessage(websocket.TextMessage, data)
		}
	}
}

// register adds the client to the user and pair registries. A pair holds
// at most two distinct users; the same user reconnecting replaces its
// previous connection.
func (h *Hub) register(client *ClientConn) error {
	h.mu.Lock()

	if old, ok := h.clients[client.ID]; ok {
		if members := h.pairs[old.PairID]; members != nil {
			delete(members, old.ID)
			if len(members) == 0 {
				delete(h.pairs, old.PairID)
			}
		}
		old.Conn.Close()
	}

	members := h.pairs[client.PairID]
	if members == nil {
		members = make(map[string]*ClientConn)
		h.pairs[client.PairID] = members
	}
	if len(members) >= 2 {
		h.mu.Unlock()
		return fmt.Errorf("pair %s already has two members", client.PairID)
	}

	members[client.ID] = client
	h.clients[client.ID] = client
	clientCount := len(h.clients)
	h.mu.Unlock()

	if h.debug {
		log.Printf("👥 Client connected: %s pair=%s (total: %d)", client.ID, client.PairID, clientCount)
	}

	h.mu.RLock()
	cb := h.onJoin
	h.mu.RUnlock()
	if cb != nil {
		cb(client.ID, client.PairID)
	}
	return nil
}

// unregister removes the client and tells the pair it is gone. A stale
// connection replaced by a reconnect does not remove its successor.
func (h *Hub) unregister(client *ClientConn) {
	h.mu.Lock()
	if h.clients[client.ID] != client {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client.ID)
	if members := h.pairs[client.PairID]; members != nil {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.pairs, client.PairID)
		}
	}
	clientCount := len(h.clients)
	h.mu.Unlock()

	if h.debug {
		log.Printf("👥 Client disconnected: %s pair=%s (total: %d)", client.ID, client.PairID, clientCount)
	}

	if msg, err := protocol.NewPeerGoneMessage(client.ID, client.LastSeen().UnixMilli()); err == nil {
		h.fanOut(client, msg)
	}

	h.mu.RLock()
	cb := h.onLeave
	h.mu.RUnlock()
	if cb != nil {
		cb(client.ID, client.PairID)
	}
}

// handleMessage processes one message; reports whether it was a bye
func (h *Hub) handleMessage(client *ClientConn, data []byte) bool {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		if h.debug {
			log.Printf("⚠️  Parse error from %s: %v", client.ID, err)
		}
		return false
	}

	h.mu.RLock()
	locCb := h.onLocation
	hbCb := h.onHeartbeat
	h.mu.RUnlock()

	switch msg.Type {
	case protocol.TypeLocation:
		loc, err := msg.GetLocationData()
		if err != nil {
			return false
		}
		h.locationsReceived.Add(1)

		roomID := h.assignRoom(loc.Lat, loc.Lon)
		client.setLocation(loc, roomID)

		if h.debug {
			log.Printf("📍 %s reported (%.5f, %.5f) room=%s", client.ID, loc.Lat, loc.Lon, roomID)
		}
		if locCb != nil {
			locCb(client.ID, loc)
		}
		h.fanOutPresence(client)

	case protocol.TypeHeartbeat:
		if hb, err := msg.GetHeartbeatData(); err == nil {
			if pong, err := protocol.NewPongMessage(hb.ID, hb.Timestamp, time.Now().UnixMilli()); err == nil {
				h.send(client, pong)
			}
		}
		if hbCb != nil {
			hbCb(client.ID)
		}
		// Heartbeats refresh the peer's view of last-seen
		h.fanOutPresence(client)

	case protocol.TypeBye:
		if h.debug {
			log.Printf("👥 Client %s said bye", client.ID)
		}
		return true
	}
	return false
}

// assignRoom returns the stable room ID for the location's area cell,
// creating it on first use. Returning to a cell rejoins the same room.
func (h *Hub) assignRoom(lat, lon float64) string {
	key := geo.BucketKey(lat, lon, geo.DefaultCellSizeDegrees)

	h.mu.Lock()
	id, ok := h.rooms[key]
	if !ok {
		id = uuid.NewString()
		h.rooms[key] = id
	}
	h.mu.Unlock()

	if !ok && h.debug {
		log.Printf("🚪 Room created: %s for cell %s", id, key)
	}
	return id
}

// fanOutPresence sends the client's current standing to its pair peer
func (h *Hub) fanOutPresence(client *ClientConn) {
	msg, err := client.presenceMessage()
	if err != nil {
		return
	}
	h.fanOut(client, msg)
}

// fanOut delivers a message to every pair member except the origin
func (h *Hub) fanOut(origin *ClientConn, msg *protocol.Message) {
	h.mu.RLock()
	peers := make([]*ClientConn, 0, 1)
	for id, member := range h.pairs[origin.PairID] {
		if id != origin.ID {
			peers = append(peers, member)
		}
	}
	h.mu.RUnlock()

	for _, peer := range peers {
		if err := h.send(peer, msg); err != nil && h.debug {
			log.Printf("⚠️  Fan-out to %s failed: %v", peer.ID, err)
		}
	}
}

// sendPeerSnapshot tells a newcomer where its peer currently stands
func (h *Hub) sendPeerSnapshot(client *ClientConn) {
	h.mu.RLock()
	peers := make([]*ClientConn, 0, 1)
	for id, member := range h.pairs[client.PairID] {
		if id != client.ID {
			peers = append(peers, member)
		}
	}
	h.mu.RUnlock()

	for _, peer := range peers {
		if msg, err := peer.presenceMessage(); err == nil {
			h.send(client, msg)
		}
	}
}

// send writes one message to one client, counting it
func (h *Hub) send(client *ClientConn, msg *protocol.Message) error {
	h.messagesSent.Add(1)
	return client.Send(msg)
}

// GetClient returns a client connection by user ID
func (h *Hub) GetClient(userID string) *ClientConn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[userID]
}

// GetClients returns all connected clients
func (h *Hub) GetClients() []*ClientConn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]*ClientConn, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PairCount returns the number of pairs with at least one member online
func (h *Hub) PairCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.pairs)
}

// RoomCount returns the number of area rooms created so far
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Stats contains hub statistics
type Stats struct {
	ClientCount       int    `json:"client_count"`
	PairCount         int    `json:"pair_count"`
	RoomCount         int    `json:"room_count"`
	MessagesReceived  uint64 `json:"messages_received"`
	MessagesSent      uint64 `json:"messages_sent"`
	LocationsReceived uint64 `json:"locations_received"`
}

// GetStats returns hub statistics
func (h *Hub) GetStats() Stats {
	return Stats{
		ClientCount:       h.ClientCount(),
		PairCount:         h.PairCount(),
		RoomCount:         h.RoomCount(),
		MessagesReceived:  h.messagesReceived.Load(),
		MessagesSent:      h.messagesSent.Load(),
		LocationsReceived: h.locationsReceived.Load(),
	}
}

// ClientInfo contains info about a connected client
type ClientInfo struct {
	ID          string    `json:"id"`
	PairID      string    `json:"pair_id"`
	SessionID   string    `json:"session_id"`
	Connected   time.Time `json:"connected"`
	LastSeen    time.Time `json:"last_seen"`
	RoomID      string    `json:"room_id,omitempty"`
	HasLocation bool      `json:"has_location"`
}

// GetClientInfos returns info about all connected clients
func (h *Hub) GetClientInfos() []ClientInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]ClientInfo, 0, len(h.clients))
	for _, c := range h.clients {
		c.mu.Lock()
		infos = append(infos, ClientInfo{
			ID:          c.ID,
			PairID:      c.PairID,
			SessionID:   c.SessionID,
			Connected:   c.Connected,
			LastSeen:    c.lastSeen,
			RoomID:      c.roomID,
			HasLocation: c.lastLoc != nil,
		})
		c.mu.Unlock()
	}
	return infos
}

// RoomInfo contains info about one area room
type RoomInfo struct {
	Cell    string `json:"cell"`
	ID      string `json:"id"`
	Members int    `json:"members"`
}

// GetRoomInfos returns every area room with its member count
func (h *Hub) GetRoomInfos() []RoomInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members := make(map[string]int, len(h.rooms))
	for _, c := range h.clients {
		c.mu.Lock()
		if c.roomID != "" {
			members[c.roomID]++
		}
		c.mu.Unlock()
	}

	infos := make([]RoomInfo, 0, len(h.rooms))
	for cell, id := range h.rooms {
		infos = append(infos, RoomInfo{Cell: cell, ID: id, Members: members[id]})
	}
	return infos
}

// RegisterAPIRoutes registers presence management API routes
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	presence := api.Group("/presence")

	// List connected clients
	presence.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"clients": h.GetClientInfos(),
			"count":   h.ClientCount(),
		})
	})

	// Get hub stats
	presence.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})

	// List area rooms
	presence.Get("/rooms", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"rooms": h.GetRoomInfos(),
			"count": h.RoomCount(),
		})
	})
}
