package proximity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/heyduet/go-duet/pkg/geo"
	"github.com/heyduet/go-duet/pkg/presence"
)

// engineDeps builds session deps with a test-fed presence stream.
func engineDeps(counterpart string) (Deps, chan presence.Update) {
	updates := make(chan presence.Update, 8)
	deps := Deps{
		CounterpartID: counterpart,
		Tracker: &presence.Mock{
			SubscribeFunc: func(ctx context.Context, userID string) (<-chan presence.Update, error) {
				return updates, nil
			},
		},
	}
	return deps, updates
}

func TestEngineTrackAndGet(t *testing.T) {
	eng := NewEngine()
	t.Cleanup(eng.StopAll)

	deps, _ := engineDeps("user-b")
	sess, err := eng.Track("pair-ab", DefaultConfig(), deps)
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if sess == nil {
		t.Fatal("Track returned nil session")
	}

	if got := eng.Get("pair-ab"); got != sess {
		t.Error("Get returned a different session")
	}
	if got := eng.Get("pair-zz"); got != nil {
		t.Errorf("Get(unknown) = %v, want nil", got)
	}

	// Sessions come back unstarted so callbacks can be attached first.
	if err := sess.Ingest(fixAt(testBase, time.Now())); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Ingest before Start = %v, want ErrNotStarted", err)
	}

	if _, err := eng.Track("pair-ab", DefaultConfig(), deps); !errors.Is(err, ErrPairExists) {
		t.Errorf("duplicate Track = %v, want ErrPairExists", err)
	}
	if _, err := eng.Track("", DefaultConfig(), deps); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("empty pair Track = %v, want ErrInvalidConfig", err)
	}

	if eng.Count() != 1 {
		t.Errorf("Count = %d, want 1", eng.Count())
	}
	if pairs := eng.Pairs(); len(pairs) != 1 || pairs[0] != "pair-ab" {
		t.Errorf("Pairs = %v, want [pair-ab]", pairs)
	}
}

func TestEngineUntrack(t *testing.T) {
	eng := NewEngine()
	t.Cleanup(eng.StopAll)

	deps, _ := engineDeps("user-b")
	sess, err := eng.Track("pair-ab", DefaultConfig(), deps)
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := eng.Untrack("pair-ab"); err != nil {
		t.Fatalf("Untrack: %v", err)
	}
	if eng.Get("pair-ab") != nil {
		t.Error("session still registered after Untrack")
	}

	// Untrack stopped the session.
	if err := sess.Ingest(fixAt(testBase, time.Now())); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Ingest after Untrack = %v, want ErrSessionClosed", err)
	}

	if err := eng.Untrack("pair-ab"); !errors.Is(err, ErrPairNotFound) {
		t.Errorf("second Untrack = %v, want ErrPairNotFound", err)
	}
}

func TestEngineStopAll(t *testing.T) {
	eng := NewEngine()

	depsA, _ := engineDeps("user-b")
	depsB, _ := engineDeps("user-d")

	sessA, err := eng.Track("pair-ab", DefaultConfig(), depsA)
	if err != nil {
		t.Fatalf("Track pair-ab: %v", err)
	}
	sessB, err := eng.Track("pair-cd", DefaultConfig(), depsB)
	if err != nil {
		t.Fatalf("Track pair-cd: %v", err)
	}
	if err := sessA.Start(context.Background()); err != nil {
		t.Fatalf("Start pair-ab: %v", err)
	}
	if err := sessB.Start(context.Background()); err != nil {
		t.Fatalf("Start pair-cd: %v", err)
	}

	eng.StopAll()

	if eng.Count() != 0 {
		t.Errorf("Count after StopAll = %d, want 0", eng.Count())
	}
	if err := sessA.Ingest(fixAt(testBase, time.Now())); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("pair-ab Ingest = %v, want ErrSessionClosed", err)
	}
	if err := sessB.Ingest(fixAt(testBase, time.Now())); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("pair-cd Ingest = %v, want ErrSessionClosed", err)
	}
}

func TestEngineIsolation(t *testing.T) {
	eng := NewEngine()
	t.Cleanup(eng.StopAll)

	depsA, updatesA := engineDeps("user-b")
	depsB, _ := engineDeps("user-d")

	sessA, err := eng.Track("pair-ab", DefaultConfig(), depsA)
	if err != nil {
		t.Fatalf("Track pair-ab: %v", err)
	}
	sessB, err := eng.Track("pair-cd", DefaultConfig(), depsB)
	if err != nil {
		t.Fatalf("Track pair-cd: %v", err)
	}

	statesA := make(chan State, 8)
	sessA.OnState = func(st State) { statesA <- st }

	if err := sessA.Start(context.Background()); err != nil {
		t.Fatalf("Start pair-ab: %v", err)
	}
	if err := sessB.Start(context.Background()); err != nil {
		t.Fatalf("Start pair-cd: %v", err)
	}
	if err := sessA.SetConsent(true); err != nil {
		t.Fatalf("SetConsent: %v", err)
	}

	cp := geo.Offset(testBase, 90, 500)
	updatesA <- presence.Update{Location: &cp, LastSeenAt: time.Now()}
	if err := sessA.Ingest(fixAt(testBase, time.Now())); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if st := waitState(t, statesA); st.Mode != ModeLive {
		t.Fatalf("pair-ab Mode = %s, want %s", st.Mode, ModeLive)
	}

	// The other pair saw none of it.
	if st := sessB.State(); st.Mode != ModeUnavailable {
		t.Errorf("pair-cd Mode = %s, want untouched %s", st.Mode, ModeUnavailable)
	}
}
