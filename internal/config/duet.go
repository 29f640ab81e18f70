// Package config provides configuration helpers for go-duet commands.
package config

import (
	"fmt"
	"os"
	"strings"
)

// Default service configuration.
const (
	DefaultHubPort = "8080"
	DefaultHubURL  = "http://localhost:8080"
)

// HubURL returns the presence hub base URL from DUET_HUB_URL.
// Falls back to the provided default if not set.
func HubURL(defaultURL string) string {
	if url := os.Getenv("DUET_HUB_URL"); url != "" {
		return url
	}
	return defaultURL
}

// Port returns the listen port from PORT env var or the default.
func Port(defaultPort string) string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return defaultPort
}

// LogLevel returns the log level from DUET_LOG_LEVEL or "info".
func LogLevel() string {
	if lvl := os.Getenv("DUET_LOG_LEVEL"); lvl != "" {
		return lvl
	}
	return "info"
}

// UserIDRequired returns the user ID from DUET_USER_ID env var.
// Exits with usage help if not set.
func UserIDRequired() string {
	id := os.Getenv("DUET_USER_ID")
	if id == "" {
		fmt.Fprintln(os.Stderr, "Error: DUET_USER_ID environment variable is required")
		fmt.Fprintln(os.Stderr, "Usage: DUET_USER_ID=ada DUET_PAIR_ID=ada-grace go run ./cmd/...")
		os.Exit(1)
	}
	return id
}

// PairIDRequired returns the pair ID from DUET_PAIR_ID env var.
// Exits with usage help if not set.
func PairIDRequired() string {
	id := os.Getenv("DUET_PAIR_ID")
	if id == "" {
		fmt.Fprintln(os.Stderr, "Error: DUET_PAIR_ID environment variable is required")
		fmt.Fprintln(os.Stderr, "Usage: DUET_USER_ID=ada DUET_PAIR_ID=ada-grace go run ./cmd/...")
		os.Exit(1)
	}
	return id
}

// HubWSURL converts a hub base URL into its presence WebSocket URL.
func HubWSURL(baseURL string) string {
	ws := baseURL
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	return strings.TrimSuffix(ws, "/") + "/ws/presence"
}
