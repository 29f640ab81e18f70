// duet-sim: Two simulated partners walking toward each other
//
// Runs the full proximity pipeline for both members of a pair: raw fixes
// from deterministic walkers, debounce gates, presence exchange, and the
// live / cloud-memo / unavailable transitions, narrated on stdout.
// By default presence is crosswired in-process; pass --hub-url to route
// it through a running duet-hub instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/heyduet/go-duet/internal/config"
	"github.com/heyduet/go-duet/pkg/debug"
	"github.com/heyduet/go-duet/pkg/geo"
	"github.com/heyduet/go-duet/pkg/location"
	"github.com/heyduet/go-duet/pkg/presence"
	"github.com/heyduet/go-duet/pkg/proximity"
	"github.com/heyduet/go-duet/pkg/web"
)

var (
	hubURL    = flag.String("hub-url", "", "Presence hub base URL (empty crosswires presence in-process)")
	dashPort  = flag.String("dash-port", "", "Serve the live dashboard on this port")
	pairID    = flag.String("pair", "ada-grace", "Pair ID")
	debugFlag = flag.Bool("debug", false, "Enable debug logging")
	gatesFlag = flag.Bool("debug-gates", false, "Log every debounce gate decision")
)

// member is one half of the simulated pair.
type member struct {
	id     string
	sess   *proximity.Session
	walker *location.SimSource
	feed   *presence.Feed // hub mode
	out    *outbox        // local mode
}

// outbox stands in for the hub in local mode: it carries one member's
// presence to the other member's session.
type outbox struct {
	ch   chan presence.Update
	mu   sync.Mutex
	last *geo.Point
	dark bool
}

func newOutbox() *outbox {
	return &outbox{ch: make(chan presence.Update, 16)}
}

// report publishes an accepted location, then beats.
func (o *outbox) report(p geo.Point) {
	o.mu.Lock()
	o.last = &p
	o.mu.Unlock()
	o.beat()
}

// beat refreshes last-seen with whatever location is known. Dropped
// silently while dark or when the consumer lags.
func (o *outbox) beat() {
	o.mu.Lock()
	if o.dark {
		o.mu.Unlock()
		return
	}
	u := presence.Update{LastSeenAt: time.Now()}
	if o.last != nil {
		pt := *o.last
		u.Location = &pt
	}
	o.mu.Unlock()

	select {
	case o.ch <- u:
	default:
	}
}

func (o *outbox) setDark(dark bool) {
	o.mu.Lock()
	o.dark = dark
	o.mu.Unlock()
}

func main() {
	flag.Parse()
	debug.Enabled = *debugFlag
	debug.Gates = *gatesFlag

	local := *hubURL == ""

	fmt.Println("🚶 Duet Proximity Simulator")
	fmt.Println("===========================")
	if local {
		fmt.Println("Presence: in-process crosswire")
	} else {
		fmt.Printf("Presence: hub at %s\n", *hubURL)
	}
	fmt.Println()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Short heartbeat timeout so presence flips are watchable. MinInterval
	// at 3s against 1s fixes keeps the cooldown gate visibly working.
	cfg := proximity.DefaultConfig().
		WithMinInterval(3 * time.Second).
		WithHeartbeatTimeout(8 * time.Second)

	// Two walkers 12km apart on the same street, heading at each other at
	// 400m per fix. They meet in the middle, then keep going.
	start := geo.Point{Lat: 40.7128, Lon: -74.0060}
	ada := &member{id: "ada", walker: location.NewSimSource(start, 90, 400)}
	grace := &member{id: "grace", walker: location.NewSimSource(geo.Offset(start, 90, 12000), 270, 400)}
	for _, m := range []*member{ada, grace} {
		m.walker.SetInterval(1 * time.Second)
		m.walker.SetAccuracy(12)
	}

	if local {
		ada.out = newOutbox()
		grace.out = newOutbox()
	}

	engine := proximity.NewEngine()
	byUser := map[string]*member{"ada": ada, "grace": grace}

	// One engine hosts both ends of the pair, each member's pipeline
	// tracked under its own key.
	for _, pair := range [][2]*member{{ada, grace}, {grace, ada}} {
		m, other := pair[0], pair[1]

		var tracker presence.Tracker
		if local {
			otherOut := other.out
			tracker = &presence.Mock{
				SubscribeFunc: func(ctx context.Context, userID string) (<-chan presence.Update, error) {
					return otherOut.ch, nil
				},
			}
		} else {
			feed := presence.NewFeed(config.HubWSURL(*hubURL), m.id, *pairID)
			id := m.id
			feed.OnRoom = func(roomID string) {
				fmt.Printf("🚪 [%s] joined area room %s\n", id, roomID)
			}
			feed.OnError = func(err error) {
				debug.Log("⚠️  [%s] feed: %v\n", id, err)
			}
			m.feed = feed
			tracker = feed
		}

		sess, err := engine.Track(*pairID+"/"+m.id, cfg, proximity.Deps{
			CounterpartID: other.id,
			Tracker:       tracker,
			Source:        m.walker,
			Watcher:       m.walker,
		})
		if err != nil {
			fmt.Printf("❌ Track %s: %v\n", m.id, err)
			os.Exit(1)
		}
		m.sess = sess
	}

	// Dashboard, optional
	var dash *web.Server
	if *dashPort != "" {
		dash = web.NewServer(*dashPort)
		dash.OnRefresh = func(userID string) error {
			m, ok := byUser[userID]
			if !ok {
				return fmt.Errorf("unknown user %q", userID)
			}
			fctx, fcancel := context.WithTimeout(ctx, 5*time.Second)
			defer fcancel()
			return m.sess.ForceUpdate(fctx)
		}
		dash.OnConsent = func(userID string, granted bool) error {
			m, ok := byUser[userID]
			if !ok {
				return fmt.Errorf("unknown user %q", userID)
			}
			return m.sess.SetConsent(granted)
		}
		dash.StartAsync()
		defer dash.Shutdown()
	}

	wireCallbacks(ada, dash)
	wireCallbacks(grace, dash)

	// Handle Ctrl+C gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n\n👋 Stopping sessions...")
		engine.StopAll()
		closeFeeds(ada, grace)
		cancel()
		os.Exit(0)
	}()

	// Local heartbeats keep last-seen fresh between accepted fixes
	if local {
		go func() {
			ticker := time.NewTicker(2 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					ada.out.beat()
					grace.out.beat()
				}
			}
		}()
	}

	fmt.Println("▶️  Phase 1: cold start, 12km apart")
	for _, m := range []*member{ada, grace} {
		if err := m.sess.Start(ctx); err != nil {
			fmt.Printf("❌ Start %s: %v\n", m.id, err)
			os.Exit(1)
		}
		if err := m.sess.SetConsent(true); err != nil {
			fmt.Printf("❌ Consent %s: %v\n", m.id, err)
			os.Exit(1)
		}
	}
	waitMode(ada, proximity.ModeCloudMemo, 20*time.Second)
	waitMode(grace, proximity.ModeCloudMemo, 20*time.Second)
	fmt.Println("   Both online and far apart: voice memos it is")

	fmt.Println("\n▶️  Phase 2: walking toward each other")
	if waitMode(ada, proximity.ModeLive, 60*time.Second) {
		fmt.Println("   🎉 Within 5km of each other: live voice unlocked")
	}
	waitMode(grace, proximity.ModeLive, 20*time.Second)

	if local {
		fmt.Println("\n▶️  Phase 3: grace's phone goes dark mid-walk")
		ada.walker.SetStep(0)
		grace.walker.SetStep(0)
		grace.out.setDark(true)
		if waitMode(ada, proximity.ModeCloudMemo, 20*time.Second) {
			fmt.Println("   ☁️  Still nearby, but silence wins: back to memos")
		}
		grace.out.setDark(false)
		grace.out.beat()
		if waitMode(ada, proximity.ModeLive, 20*time.Second) {
			fmt.Println("   🟢 grace is back, live again")
		}
		ada.walker.SetStep(400)
		grace.walker.SetStep(400)
	} else {
		fmt.Println("\n▶️  Phase 3: skipped (hub heartbeats keep presence fresh)")
	}

	fmt.Println("\n▶️  Phase 4: passing each other and walking on")
	if waitMode(ada, proximity.ModeCloudMemo, 120*time.Second) {
		fmt.Println("   ☁️  Beyond 5km again: memos")
	}
	waitMode(grace, proximity.ModeCloudMemo, 30*time.Second)

	fmt.Println("\n▶️  Phase 5: ada revokes location consent")
	if local {
		ada.out.setDark(true)
	}
	if err := ada.sess.SetConsent(false); err != nil {
		fmt.Printf("❌ Revoke: %v\n", err)
	}
	if waitMode(ada, proximity.ModeUnavailable, 10*time.Second) {
		fmt.Println("   ⚫ No own location, no mode: unavailable")
	}

	fmt.Println("\n✅ Demo complete")
	engine.StopAll()
	closeFeeds(ada, grace)

	if dash != nil {
		fmt.Printf("📊 Dashboard still serving on :%s (Ctrl+C to exit)\n", *dashPort)
		<-ctx.Done()
	}
}

// wireCallbacks attaches narration and dashboard plumbing to a session.
// Must run before Start.
func wireCallbacks(m *member, dash *web.Server) {
	id := m.id

	m.sess.OnState = func(st proximity.State) {
		fmt.Printf("%s [%s] %s  distance=%s  counterpart_online=%v\n",
			modeEmoji(st.Mode), id, st.Mode, st.DistanceLabel, st.CounterpartOnline)
		if dash != nil {
			dash.UpdateSession(sessionView(id, st, m.sess))
			dash.AddEvent("mode", fmt.Sprintf("%s entered %s (%s)", id, st.Mode, st.DistanceLabel))
		}
	}

	m.sess.OnLocation = func(loc location.StableLocation) {
		if m.out != nil {
			m.out.report(loc.Point())
		} else if m.feed != nil {
			if err := m.feed.Report(loc.Lat, loc.Lon, loc.AccuracyMeters, loc.CapturedAt, loc.IsWeakSignal); err != nil {
				debug.Log("⚠️  [%s] report failed: %v\n", id, err)
			}
		}
		debug.Log("📍 [%s] stable %.5f,%.5f stale=%v\n", id, loc.Lat, loc.Lon, loc.IsStale)
		if dash != nil {
			dash.UpdateSession(sessionView(id, m.sess.State(), m.sess))
			if loc.IsStale {
				dash.AddEvent("location", fmt.Sprintf("%s location went stale", id))
			}
		}
	}

	m.sess.OnGate = func(out location.Outcome) {
		switch out.Decision {
		case location.Accepted:
			debug.GateLog("✅ [%s] fix accepted (moved %.0fm)\n", id, out.MovedMeters)
		case location.RejectedCooldown:
			debug.GateLog("⏳ [%s] cooldown, %.1fs left\n", id, out.Cooldown.Seconds())
		case location.RejectedMovement:
			debug.GateLog("🚫 [%s] jitter, moved only %.0fm\n", id, out.MovedMeters)
		default:
			debug.GateLog("🚫 [%s] %s\n", id, out.Decision)
		}
		if dash != nil {
			switch out.Decision {
			case location.Accepted:
				dash.AddEvent("gate", fmt.Sprintf("%s fix accepted, moved %.0fm", id, out.MovedMeters))
			case location.RejectedCooldown:
				dash.AddEvent("gate", fmt.Sprintf("%s fix held, %.1fs cooldown left", id, out.Cooldown.Seconds()))
			default:
				dash.AddEvent("gate", fmt.Sprintf("%s fix rejected (%s)", id, out.Decision))
			}
		}
	}

	m.sess.OnError = func(err error) {
		fmt.Printf("⚠️  [%s] %v\n", id, err)
		if dash != nil {
			dash.AddEvent("error", fmt.Sprintf("%s: %v", id, err))
		}
	}
}

// sessionView shapes one member's state for the dashboard.
func sessionView(id string, st proximity.State, sess *proximity.Session) web.SessionView {
	view := web.SessionView{
		UserID:            id,
		Mode:              string(st.Mode),
		DistanceLabel:     st.DistanceLabel,
		CounterpartOnline: st.CounterpartOnline,
	}
	if st.DistanceKnown {
		km := st.DistanceKm
		view.DistanceKm = &km
	}
	if loc, ok := sess.Location(); ok {
		view.Location = &web.LocationView{
			Lat:          loc.Lat,
			Lon:          loc.Lon,
			IsStale:      loc.IsStale,
			IsWeakSignal: loc.IsWeakSignal,
		}
	}
	return view
}

// waitMode polls until the session reaches the wanted mode.
func waitMode(m *member, want proximity.Mode, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if m.sess.State().Mode == want {
			return true
		}
		time.Sleep(200 * time.Millisecond)
	}
	fmt.Printf("⚠️  [%s] timed out waiting for %s (still %s)\n", m.id, want, m.sess.State().Mode)
	return false
}

func modeEmoji(mode proximity.Mode) string {
	switch mode {
	case proximity.ModeLive:
		return "🟢"
	case proximity.ModeCloudMemo:
		return "☁️ "
	default:
		return "⚫"
	}
}

func closeFeeds(members ...*member) {
	for _, m := range members {
		if m.feed != nil {
			m.feed.Close()
		}
	}
}
