package presence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/heyduet/go-duet/internal/log"
	"github.com/heyduet/go-duet/pkg/geo"
	"github.com/heyduet/go-duet/pkg/protocol"
)

const (
	handshakeTimeout   = 10 * time.Second
	heartbeatInterval  = 30 * time.Second
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second

	// updateBuffer bounds how far a slow consumer can lag before old
	// presence snapshots are discarded in favor of newer ones.
	updateBuffer = 16
)

// Feed implements Tracker over a WebSocket connection to a Duet presence
// hub. It joins the pair's feed with a hello handshake, keeps the
// connection alive with heartbeats, and reconnects with exponential
// backoff when the transport drops. The subscription channel stays open
// across reconnects; it closes only when the Subscribe context is
// cancelled or the feed is closed.
type Feed struct {
	hubURL string
	userID string
	pairID string

	conn      *websocket.Conn
	connMu    sync.Mutex
	connected bool

	logger *slog.Logger

	// Callbacks, set before Subscribe
	OnConnected func()              // Fires after every successful dial, reconnects included
	OnError     func(err error)     // Transport and hub errors; informational, the feed retries itself
	OnRoom      func(roomID string) // Fires when the hub assigns a shared area room

	// Internal state
	ctx          context.Context
	cancel       context.CancelFunc
	closeCh      chan struct{}
	closed       bool
	reconnecting bool
	subscribed   bool

	watchID string
	updates chan Update
	lastLoc *geo.Point // last location seen for watchID, read loop only
}

// NewFeed creates a presence feed for one member of a pair. hubURL is the
// full WebSocket endpoint, e.g. ws://localhost:8080/ws/presence. userID
// identifies this client to the hub; the counterpart to watch is named
// at Subscribe time.
func NewFeed(hubURL, userID, pairID string) *Feed {
	return &Feed{
		hubURL:  hubURL,
		userID:  userID,
		pairID:  pairID,
		logger:  log.Component("presence.feed"),
		closeCh: make(chan struct{}),
		updates: make(chan Update, updateBuffer),
	}
}

// Subscribe joins the pair's presence feed and returns a stream of
// observations for userID. A Feed carries a single subscription; a
// second call returns ErrAlreadySubscribed.
func (f *Feed) Subscribe(ctx context.Context, userID string) (<-chan Update, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user id", ErrSubscriptionFailed)
	}

	f.connMu.Lock()
	if f.closed {
		f.connMu.Unlock()
		return nil, ErrFeedClosed
	}
	if f.subscribed {
		f.connMu.Unlock()
		return nil, ErrAlreadySubscribed
	}
	f.subscribed = true
	f.watchID = userID
	f.connMu.Unlock()

	f.ctx, f.cancel = context.WithCancel(ctx)

	if err := f.dial(); err != nil {
		f.cancel()
		f.connMu.Lock()
		f.subscribed = false
		f.connMu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrSubscriptionFailed, err)
	}

	// The context owns the socket: cancelling it closes the connection
	// so a blocked read returns.
	go func() {
		<-f.ctx.Done()
		f.connMu.Lock()
		if f.conn != nil {
			f.conn.Close()
		}
		f.connected = false
		f.connMu.Unlock()
	}()

	go f.readLoop()
	go f.heartbeatLoop()

	return f.updates, nil
}

// dial establishes the WebSocket connection and announces this client.
func (f *Feed) dial() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()

	if f.closed {
		return ErrFeedClosed
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(f.ctx, f.hubURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	hello, err := protocol.NewHelloMessage(f.userID, f.pairID)
	if err != nil {
		conn.Close()
		return fmt.Errorf("build hello: %w", err)
	}
	data, err := hello.Bytes()
	if err != nil {
		conn.Close()
		return fmt.Errorf("encode hello: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		conn.Close()
		return fmt.Errorf("send hello: %w", err)
	}

	f.conn = conn
	f.connected = true

	f.logger.Info("presence feed connected", "hub", f.hubURL, "pair", f.pairID)

	if f.OnConnected != nil {
		f.OnConnected()
	}

	return nil
}

// Report publishes this client's debounced location to the hub so the
// counterpart's feed sees it. Raw fixes never cross the wire.
func (f *Feed) Report(lat, lon, accuracyM float64, capturedAt time.Time, weakSignal bool) error {
	msg, err := protocol.NewLocationMessage(lat, lon, accuracyM, capturedAt, weakSignal)
	if err != nil {
		return err
	}
	return f.send(msg)
}

// send writes a protocol message to the hub.
func (f *Feed) send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	f.connMu.Lock()
	defer f.connMu.Unlock()

	if f.closed {
		return ErrFeedClosed
	}
	if !f.connected || f.conn == nil {
		return fmt.Errorf("presence: not connected")
	}
	return f.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads hub messages and turns them into updates. It is the
// only writer on the updates channel and closes it on exit.
func (f *Feed) readLoop() {
	defer close(f.updates)

	for {
		select {
		case <-f.ctx.Done():
			return
		case <-f.closeCh:
			return
		default:
		}

		f.connMu.Lock()
		conn := f.conn
		f.connMu.Unlock()

		if conn == nil {
			// Reconnect in progress
			time.Sleep(100 * time.Millisecond)
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				f.logger.Error("websocket read error", "error", err)
			}
			f.handleDisconnect(err)
			continue
		}

		f.handleMessage(message)
	}
}

// handleMessage dispatches one hub message.
func (f *Feed) handleMessage(raw []byte) {
	msg, err := protocol.ParseMessage(raw)
	if err != nil {
		f.logger.Warn("unparseable hub message", "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeWelcome:
		welcome, err := msg.GetWelcomeData()
		if err != nil {
			return
		}
		f.logger.Info("joined presence feed", "session_id", welcome.SessionID, "pair", welcome.PairID)

	case protocol.TypePeerPresence:
		peer, err := msg.GetPeerPresenceData()
		if err != nil {
			f.logger.Warn("bad peer_presence payload", "error", err)
			return
		}
		if peer.UserID != f.watchID {
			return
		}

		var u Update
		if peer.Location != nil {
			pt := geo.Point{Lat: peer.Location.Lat, Lon: peer.Location.Lon}
			f.lastLoc = &pt
			u.Location = &pt
		}
		if peer.LastSeenTS > 0 {
			u.LastSeenAt = time.UnixMilli(peer.LastSeenTS)
		}
		if peer.RoomID != "" && f.OnRoom != nil {
			f.OnRoom(peer.RoomID)
		}
		f.deliver(u)

	case protocol.TypePeerGone:
		gone, err := msg.GetPeerGoneData()
		if err != nil {
			return
		}
		if gone.UserID != f.watchID {
			return
		}

		// The gone message carries no location. Keep the last known one
		// so the consumer lands in cloud-memo, not unavailable.
		u := Update{Location: f.lastLoc}
		if gone.LastSeenTS > 0 {
			u.LastSeenAt = time.UnixMilli(gone.LastSeenTS)
		}
		f.deliver(u)

	case protocol.TypePong:
		pong, err := msg.GetPongData()
		if err != nil {
			return
		}
		f.logger.Debug("heartbeat pong", "latency_ms", pong.LatencyMs)

	case protocol.TypeError:
		hubErr, err := msg.GetErrorData()
		if err != nil {
			return
		}
		f.logger.Warn("hub error", "code", hubErr.Code, "message", hubErr.Message)
		if f.OnError != nil {
			f.OnError(fmt.Errorf("presence: hub error %s: %s", hubErr.Code, hubErr.Message))
		}
	}
}

// deliver pushes an update without blocking the read loop. When the
// consumer lags, the oldest queued update is dropped so the newest
// presence snapshot wins.
func (f *Feed) deliver(u Update) {
	select {
	case f.updates <- u:
		return
	default:
	}

	select {
	case <-f.updates:
		f.logger.Warn("updates channel full, dropping oldest")
	default:
	}

	select {
	case f.updates <- u:
	default:
	}
}

// heartbeatLoop sends periodic protocol heartbeats. The hub uses them to
// refresh this client's last-seen time for the counterpart.
func (f *Feed) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.ctx.Done():
			return
		case <-f.closeCh:
			return
		case <-ticker.C:
			hb, err := protocol.NewHeartbeatMessage(uuid.NewString())
			if err != nil {
				continue
			}
			if err := f.send(hb); err != nil {
				f.logger.Warn("heartbeat failed", "error", err)
				f.handleDisconnect(err)
			}
		}
	}
}

// handleDisconnect handles connection loss and triggers reconnection.
func (f *Feed) handleDisconnect(cause error) {
	f.connMu.Lock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.connected = false
	wasReconnecting := f.reconnecting
	f.reconnecting = true
	f.connMu.Unlock()

	if f.OnError != nil && cause != nil {
		f.OnError(cause)
	}

	// Only start one reconnection goroutine
	if !wasReconnecting {
		go f.reconnectLoop()
	}
}

// reconnectLoop attempts to reconnect with exponential backoff.
func (f *Feed) reconnectLoop() {
	delay := reconnectBaseDelay

	for {
		select {
		case <-f.ctx.Done():
			return
		case <-f.closeCh:
			return
		default:
		}

		f.logger.Info("attempting to reconnect", "delay", delay)
		time.Sleep(delay)

		if err := f.dial(); err != nil {
			f.logger.Error("reconnect failed", "error", err)
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
			continue
		}

		f.connMu.Lock()
		f.reconnecting = false
		f.connMu.Unlock()
		f.logger.Info("reconnected successfully")
		return
	}
}

// IsConnected returns true if the WebSocket is connected.
func (f *Feed) IsConnected() bool {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	return f.connected
}

// Close tears down the feed and its subscription. Safe to call more
// than once.
func (f *Feed) Close() error {
	f.connMu.Lock()
	if f.closed {
		f.connMu.Unlock()
		return nil
	}
	f.closed = true
	f.connMu.Unlock()

	if f.cancel != nil {
		f.cancel()
	}
	close(f.closeCh)

	f.connMu.Lock()
	defer f.connMu.Unlock()

	if f.conn != nil {
		// Tell the hub we are leaving before closing the socket.
		if bye, err := protocol.NewByeMessage(); err == nil {
			if data, err := bye.Bytes(); err == nil {
				f.conn.WriteMessage(websocket.TextMessage, data)
			}
		}
		f.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		f.conn.Close()
		f.conn = nil
	}
	f.connected = false

	return nil
}

// Verify interface compliance at compile time.
var _ Tracker = (*Feed)(nil)
