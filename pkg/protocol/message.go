// Package protocol defines the WebSocket message types for the Duet
// presence feed. This package is shared between the app clients and the
// presence hub.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Client → Hub messages
	TypeHello     MessageType = "hello"     // Join the pair's presence feed
	TypeLocation  MessageType = "location"  // Debounced location report
	TypeHeartbeat MessageType = "heartbeat" // Keepalive
	TypeBye       MessageType = "bye"       // Clean disconnect

	// Hub → Client messages
	TypeWelcome      MessageType = "welcome"       // Join accepted
	TypePeerPresence MessageType = "peer_presence" // Counterpart location/heartbeat
	TypePeerGone     MessageType = "peer_gone"     // Counterpart left the feed
	TypePong         MessageType = "pong"          // Heartbeat response
	TypeError        MessageType = "error"         // Hub-side failure
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// =============================================================================
// Client → Hub Message Types
// =============================================================================

// HelloData announces a client joining its pair's presence feed
type HelloData struct {
	UserID string `json:"user_id"`
	PairID string `json:"pair_id"`
}

// LocationData is a debounced location report. Raw fixes never cross the
// wire; only stable locations do.
type LocationData struct {
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	AccuracyM  float64 `json:"accuracy_m"`
	CapturedTS int64   `json:"captured_ts"` // Unix milliseconds
	WeakSignal bool    `json:"weak_signal,omitempty"`
}

// HeartbeatData contains keepalive information
type HeartbeatData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// =============================================================================
// Hub → Client Message Types
// =============================================================================

// WelcomeData confirms a feed join
type WelcomeData struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	PairID    string `json:"pair_id"`
}

// PeerPresenceData carries the counterpart's last known location and
// heartbeat time. Location stays null until the counterpart reports one.
type PeerPresenceData struct {
	UserID     string        `json:"user_id"`
	Location   *LocationData `json:"location"`
	LastSeenTS int64         `json:"last_seen_ts"`      // Unix ms, 0 means never
	RoomID     string        `json:"room_id,omitempty"` // Area voice room
}

// PeerGoneData notes that the counterpart dropped off the feed
type PeerGoneData struct {
	UserID     string `json:"user_id"`
	LastSeenTS int64  `json:"last_seen_ts"`
}

// PongData contains the heartbeat response
type PongData struct {
	ID          string `json:"id"`
	HeartbeatTS int64  `json:"heartbeat_ts"`
	PongTS      int64  `json:"pong_ts"`
	LatencyMs   int64  `json:"latency_ms"`
}

// ErrorData reports a hub-side failure
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
