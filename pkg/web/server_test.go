package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestNewServer(t *testing.T) {
	srv := NewServer("18180")

	if srv == nil {
		t.Fatal("NewServer returned nil")
	}
	if srv.stateHub == nil || srv.eventHub == nil {
		t.Fatal("hubs should be created")
	}
	if len(srv.state.Sessions) != 0 {
		t.Error("state should start empty")
	}
}

func TestStateEndpoint(t *testing.T) {
	srv := NewServer("18180")
	go srv.stateHub.Run()
	go srv.eventHub.Run()

	km := 2.4
	srv.UpdateSession(SessionView{
		UserID:            "user-a",
		Mode:              "live",
		DistanceKm:        &km,
		DistanceLabel:     "2.4km",
		CounterpartOnline: true,
	})

	req := httptest.NewRequest("GET", "/api/state", nil)
	resp, err := srv.app.Test(req)
	if err != nil {
		t.Fatalf("state request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	var state DashboardState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("decode state: %v", err)
	}

	view, ok := state.Sessions["user-a"]
	if !ok {
		t.Fatal("user-a missing from state")
	}
	if view.Mode != "live" {
		t.Errorf("expected mode live, got %s", view.Mode)
	}
	if view.DistanceKm == nil || *view.DistanceKm != 2.4 {
		t.Errorf("expected distance 2.4, got %v", view.DistanceKm)
	}
	if view.UpdatedAt == "" {
		t.Error("UpdatedAt should be stamped")
	}
}

func TestStateEndpointUnknownDistance(t *testing.T) {
	srv := NewServer("18180")
	go srv.stateHub.Run()
	go srv.eventHub.Run()

	srv.UpdateSession(SessionView{
		UserID:        "user-a",
		Mode:          "unavailable",
		DistanceLabel: "--",
	})

	req := httptest.NewRequest("GET", "/api/state", nil)
	resp, err := srv.app.Test(req)
	if err != nil {
		t.Fatalf("state request failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	// Unknown distance serializes as null, never zero
	if !strings.Contains(string(body), `"distance_km":null`) {
		t.Errorf("expected null distance_km, got %s", string(body))
	}
}

func TestEventBuffer(t *testing.T) {
	srv := NewServer("18180")
	go srv.stateHub.Run()
	go srv.eventHub.Run()

	for i := 0; i < 510; i++ {
		srv.AddEvent("gate", fmt.Sprintf("event %d", i))
	}

	req := httptest.NewRequest("GET", "/api/events", nil)
	resp, err := srv.app.Test(req)
	if err != nil {
		t.Fatalf("events request failed: %v", err)
	}
	defer resp.Body.Close()

	var out struct {
		Events []EventEntry `json:"events"`
		Count  int          `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode events: %v", err)
	}

	if out.Count != 500 {
		t.Errorf("buffer should cap at 500, got %d", out.Count)
	}
	if out.Events[0].Message != "event 10" {
		t.Errorf("oldest entries should be evicted first, got %q", out.Events[0].Message)
	}
	if out.Events[len(out.Events)-1].Message != "event 509" {
		t.Errorf("newest entry should survive, got %q", out.Events[len(out.Events)-1].Message)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	srv := NewServer("18180")

	// Not wired yet
	req := httptest.NewRequest("POST", "/api/sessions/user-a/refresh", nil)
	resp, err := srv.app.Test(req)
	if err != nil {
		t.Fatalf("refresh request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 503 {
		t.Errorf("unwired refresh should 503, got %d", resp.StatusCode)
	}

	var gotUser string
	srv.OnRefresh = func(userID string) error {
		gotUser = userID
		return nil
	}

	req = httptest.NewRequest("POST", "/api/sessions/user-a/refresh", nil)
	resp, err = srv.app.Test(req)
	if err != nil {
		t.Fatalf("refresh request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if gotUser != "user-a" {
		t.Errorf("callback should receive user-a, got %q", gotUser)
	}

	// Callback errors surface as conflicts
	srv.OnRefresh = func(userID string) error {
		return errors.New("update already in flight")
	}
	req = httptest.NewRequest("POST", "/api/sessions/user-a/refresh", nil)
	resp, err = srv.app.Test(req)
	if err != nil {
		t.Fatalf("refresh request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 409 {
		t.Errorf("failing refresh should 409, got %d", resp.StatusCode)
	}
}

func TestConsentEndpoint(t *testing.T) {
	srv := NewServer("18180")

	var gotUser string
	var gotGranted bool
	srv.OnConsent = func(userID string, granted bool) error {
		gotUser = userID
		gotGranted = granted
		return nil
	}

	req := httptest.NewRequest("POST", "/api/sessions/user-b/consent",
		strings.NewReader(`{"granted":true}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.app.Test(req)
	if err != nil {
		t.Fatalf("consent request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if gotUser != "user-b" || !gotGranted {
		t.Errorf("callback got (%q, %v), want (user-b, true)", gotUser, gotGranted)
	}

	// Malformed body
	req = httptest.NewRequest("POST", "/api/sessions/user-b/consent",
		strings.NewReader(`{nope`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = srv.app.Test(req)
	if err != nil {
		t.Fatalf("consent request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Errorf("bad body should 400, got %d", resp.StatusCode)
	}
}

func TestStateWebSocket(t *testing.T) {
	srv := NewServer("18181")
	srv.StartAsync()
	t.Cleanup(func() { srv.Shutdown() })
	time.Sleep(100 * time.Millisecond)

	km := 1.2
	srv.UpdateSession(SessionView{
		UserID:        "user-a",
		Mode:          "live",
		DistanceKm:    &km,
		DistanceLabel: "1.2km",
	})

	conn, _, err := websocket.DefaultDialer.Dial("ws://localhost:18181/ws/state", nil)
	if err != nil {
		t.Fatalf("dial state ws: %v", err)
	}
	defer conn.Close()

	// Snapshot arrives before any broadcast
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snapshot DashboardState
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snapshot.Sessions["user-a"].Mode != "live" {
		t.Errorf("snapshot should carry current mode, got %+v", snapshot.Sessions["user-a"])
	}

	// Let the handler finish registering with the hub
	time.Sleep(50 * time.Millisecond)

	srv.UpdateSession(SessionView{
		UserID:        "user-a",
		Mode:          "cloud_memo",
		DistanceLabel: "--",
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var update DashboardState
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if update.Sessions["user-a"].Mode != "cloud_memo" {
		t.Errorf("broadcast should carry new mode, got %+v", update.Sessions["user-a"])
	}
}

func TestEventsWebSocketReplay(t *testing.T) {
	srv := NewServer("18182")
	srv.StartAsync()
	t.Cleanup(func() { srv.Shutdown() })
	time.Sleep(100 * time.Millisecond)

	srv.AddEvent("mode", "user-a entered live")
	srv.AddEvent("gate", "user-a fix accepted")

	conn, _, err := websocket.DefaultDialer.Dial("ws://localhost:18182/ws/events", nil)
	if err != nil {
		t.Fatalf("dial events ws: %v", err)
	}
	defer conn.Close()

	// Buffered events replay in order
	for i, want := range []string{"user-a entered live", "user-a fix accepted"} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var entry EventEntry
		if err := conn.ReadJSON(&entry); err != nil {
			t.Fatalf("read replayed event %d: %v", i, err)
		}
		if entry.Message != want {
			t.Errorf("replay %d: got %q, want %q", i, entry.Message, want)
		}
	}

	// Let the handler finish registering with the hub
	time.Sleep(50 * time.Millisecond)

	srv.AddEvent("error", "source timed out")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var entry EventEntry
	if err := conn.ReadJSON(&entry); err != nil {
		t.Fatalf("read live event: %v", err)
	}
	if entry.Type != "error" || entry.Message != "source timed out" {
		t.Errorf("live event mismatch: %+v", entry)
	}
}
