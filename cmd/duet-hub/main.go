// duet-hub: Presence service for paired Duet clients
// Accepts WebSocket connections, tracks last seen and location,
// fans presence out to each client's pair partner
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/heyduet/go-duet/internal/config"
	"github.com/heyduet/go-duet/pkg/presencehub"
	"github.com/heyduet/go-duet/pkg/protocol"
)

var (
	version = "1.0.0"
	port    = flag.String("port", config.DefaultHubPort, "HTTP server port")
	debug   = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	// Override from environment
	listenPort := config.Port(*port)

	fmt.Println()
	fmt.Println("🔗 Duet Hub v" + version)
	fmt.Println("   Presence service for paired clients")
	fmt.Println()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:               "duet-hub",
		DisableStartupMessage: true,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))
	if *debug {
		app.Use(logger.New())
	}

	// Create presence hub
	hub := presencehub.NewHub(*debug)

	// Register WebSocket routes
	hub.RegisterRoutes(app)

	// Register API routes
	api := app.Group("/api")
	hub.RegisterAPIRoutes(api)

	// Health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"version": version,
			"clients": hub.ClientCount(),
			"pairs":   hub.PairCount(),
		})
	})

	// Metrics endpoint
	app.Get("/metrics", func(c *fiber.Ctx) error {
		stats := hub.GetStats()
		return c.SendString(fmt.Sprintf(`# HELP duet_hub_clients Connected client count
# TYPE duet_hub_clients gauge
duet_hub_clients %d

# HELP duet_hub_pairs Pairs with at least one member online
# TYPE duet_hub_pairs gauge
duet_hub_pairs %d

# HELP duet_hub_rooms Area rooms assigned so far
# TYPE duet_hub_rooms gauge
duet_hub_rooms %d

# HELP duet_hub_messages_received Total messages received
# TYPE duet_hub_messages_received counter
duet_hub_messages_received %d

# HELP duet_hub_messages_sent Total messages sent
# TYPE duet_hub_messages_sent counter
duet_hub_messages_sent %d

# HELP duet_hub_locations_received Total location reports received
# TYPE duet_hub_locations_received counter
duet_hub_locations_received %d
`, stats.ClientCount, stats.PairCount, stats.RoomCount,
			stats.MessagesReceived, stats.MessagesSent, stats.LocationsReceived))
	})

	// Set up location callback for processing
	hub.OnLocation(func(userID string, loc *protocol.LocationData) {
		if *debug {
			log.Printf("📍 Location from %s: %.4f,%.4f (±%.0fm)", userID, loc.Lat, loc.Lon, loc.AccuracyM)
		}
	})

	// Set up heartbeat callback
	hub.OnHeartbeat(func(userID string) {
		if *debug {
			log.Printf("💓 Heartbeat from %s", userID)
		}
	})

	// Start server
	go func() {
		addr := ":" + listenPort
		log.Printf("🚀 Starting server on %s", addr)
		log.Printf("   WebSocket: ws://localhost:%s/ws/presence", listenPort)
		log.Printf("   Health:    http://localhost:%s/health", listenPort)
		log.Printf("   Clients:   http://localhost:%s/api/presence", listenPort)
		log.Println()

		if err := app.Listen(addr); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("\n👋 Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}

	log.Println("✅ Goodbye!")
}
