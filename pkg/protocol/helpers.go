package protocol

import "time"

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewHelloMessage creates a feed join message
func NewHelloMessage(userID, pairID string) (*Message, error) {
	return NewMessage(TypeHello, HelloData{
		UserID: userID,
		PairID: pairID,
	})
}

// NewLocationMessage creates a location report message
func NewLocationMessage(lat, lon, accuracyM float64, capturedAt time.Time, weakSignal bool) (*Message, error) {
	return NewMessage(TypeLocation, LocationData{
		Lat:        lat,
		Lon:        lon,
		AccuracyM:  accuracyM,
		CapturedTS: capturedAt.UnixMilli(),
		WeakSignal: weakSignal,
	})
}

// NewHeartbeatMessage creates a keepalive message
func NewHeartbeatMessage(id string) (*Message, error) {
	return NewMessage(TypeHeartbeat, HeartbeatData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewByeMessage creates a clean-disconnect message
func NewByeMessage() (*Message, error) {
	return NewMessage(TypeBye, nil)
}

// NewWelcomeMessage creates a join confirmation message
func NewWelcomeMessage(sessionID, userID, pairID string) (*Message, error) {
	return NewMessage(TypeWelcome, WelcomeData{
		SessionID: sessionID,
		UserID:    userID,
		PairID:    pairID,
	})
}

// NewPeerPresenceMessage creates a counterpart presence message
func NewPeerPresenceMessage(userID string, loc *LocationData, lastSeenTS int64, roomID string) (*Message, error) {
	return NewMessage(TypePeerPresence, PeerPresenceData{
		UserID:     userID,
		Location:   loc,
		LastSeenTS: lastSeenTS,
		RoomID:     roomID,
	})
}

// NewPeerGoneMessage creates a counterpart-left message
func NewPeerGoneMessage(userID string, lastSeenTS int64) (*Message, error) {
	return NewMessage(TypePeerGone, PeerGoneData{
		UserID:     userID,
		LastSeenTS: lastSeenTS,
	})
}

// NewPongMessage creates a heartbeat response message
func NewPongMessage(id string, heartbeatTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:          id,
		HeartbeatTS: heartbeatTS,
		PongTS:      pongTS,
		LatencyMs:   pongTS - heartbeatTS,
	})
}

// NewErrorMessage creates an error message
func NewErrorMessage(code, message string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{
		Code:    code,
		Message: message,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetHelloData extracts hello data from a message
func (m *Message) GetHelloData() (*HelloData, error) {
	var data HelloData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetLocationData extracts location data from a message
func (m *Message) GetLocationData() (*LocationData, error) {
	var data LocationData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetHeartbeatData extracts heartbeat data from a message
func (m *Message) GetHeartbeatData() (*HeartbeatData, error) {
	var data HeartbeatData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetWelcomeData extracts welcome data from a message
func (m *Message) GetWelcomeData() (*WelcomeData, error) {
	var data WelcomeData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPeerPresenceData extracts peer presence data from a message
func (m *Message) GetPeerPresenceData() (*PeerPresenceData, error) {
	var data PeerPresenceData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPeerGoneData extracts peer-gone data from a message
func (m *Message) GetPeerGoneData() (*PeerGoneData, error) {
	var data PeerGoneData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts error data from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
