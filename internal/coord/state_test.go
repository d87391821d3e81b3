package coord

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hammamikhairi/omnis/internal/domain"
)

func TestVisibleSetReplacedWholesale(t *testing.T) {
	s := New()
	if got := s.Visible(); len(got) != 0 {
		t.Fatalf("new state should see nobody, got %v", got)
	}

	labels := []string{"Alice", domain.UnknownLabel}
	s.PublishVisible(labels)
	labels[0] = "Mallory" // caller mutation must not leak in

	got := s.Visible()
	if len(got) != 2 || got[0] != "Alice" {
		t.Fatalf("visible = %v", got)
	}

	s.PublishVisible([]string{"Bob"})
	got = s.Visible()
	if len(got) != 1 || got[0] != "Bob" {
		t.Fatalf("visible after replace = %v", got)
	}
}

func TestConcurrentVisibleReadsSeeWholeSets(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				s.PublishVisible([]string{"A", "A", "A"})
			} else {
				s.PublishVisible([]string{"B", "B"})
			}
		}
	}()

	for i := 0; i < 2000; i++ {
		set := s.Visible()
		switch len(set) {
		case 0:
		case 3:
			for _, l := range set {
				if l != "A" {
					t.Fatalf("mixed set observed: %v", set)
				}
			}
		case 2:
			for _, l := range set {
				if l != "B" {
					t.Fatalf("mixed set observed: %v", set)
				}
			}
		default:
			t.Fatalf("partial set observed: %v", set)
		}
	}
	close(stop)
	wg.Wait()
}

func TestSpeakingWriterClaimedOnce(t *testing.T) {
	s := New()
	w, ok := s.ClaimSpeakingWriter()
	if !ok || w == nil {
		t.Fatal("first claim should succeed")
	}
	if _, ok := s.ClaimSpeakingWriter(); ok {
		t.Fatal("second claim should fail")
	}
}

func TestSpeakingSignalWaitIdle(t *testing.T) {
	s := New()
	w, _ := s.ClaimSpeakingWriter()
	sig := s.Speaking()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sig.WaitIdle(ctx); err != nil {
		t.Fatalf("idle signal should not block: %v", err)
	}

	w.SetSpeaking(true)
	if !sig.Active() {
		t.Fatal("signal should be active")
	}

	released := make(chan struct{})
	go func() {
		_ = sig.WaitIdle(ctx)
		close(released)
	}()

	select {
	case <-released:
		t.Fatal("WaitIdle returned while speaking")
	case <-time.After(50 * time.Millisecond):
	}

	w.SetSpeaking(false)
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("WaitIdle did not return after the signal dropped")
	}
}

func TestSpeakingSignalCountsRises(t *testing.T) {
	s := New()
	w, _ := s.ClaimSpeakingWriter()
	sig := s.Speaking()

	before := sig.Rises()
	w.SetSpeaking(true)
	w.SetSpeaking(true)
	w.SetSpeaking(false)
	if got := sig.Rises() - before; got != 1 {
		t.Fatalf("rises = %d, want 1", got)
	}
	if sig.Active() {
		t.Fatal("signal should be idle")
	}
}

func TestSpeakingSignalWaitIdleHonoursContext(t *testing.T) {
	s := New()
	w, _ := s.ClaimSpeakingWriter()
	w.SetSpeaking(true)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := s.Speaking().WaitIdle(ctx); err == nil {
		t.Fatal("expected context error while speaking")
	}
}

func TestSlotLastWriteWins(t *testing.T) {
	s := New().Registration()

	if s.Pending() {
		t.Fatal("fresh slot should be empty")
	}
	if replaced := s.Offer(domain.RegistrationRequest{ID: "first", Encoding: domain.Encoding{1}}); replaced {
		t.Fatal("first offer should not report a replacement")
	}
	if replaced := s.Offer(domain.RegistrationRequest{ID: "second", Encoding: domain.Encoding{2}}); !replaced {
		t.Fatal("second offer should report a replacement")
	}

	req, ok := s.Take()
	if !ok || req.ID != "second" || req.Encoding[0] != 2 {
		t.Fatalf("take = %+v, %v", req, ok)
	}
	if s.Pending() {
		t.Fatal("slot should be empty after take")
	}
	if _, ok := s.Take(); ok {
		t.Fatal("second take should find nothing")
	}
}

func TestSlotCopiesRecord(t *testing.T) {
	s := New().Registration()
	enc := domain.Encoding{0.5, 0.25}
	face := domain.BlankFrame(2, 2)
	s.Offer(domain.RegistrationRequest{Encoding: enc, Face: face})

	enc[0] = 9
	face.Pix[0] = 9

	req, _ := s.Take()
	if req.Encoding[0] != 0.5 || req.Face.Pix[0] != 0 {
		t.Fatal("slot shares memory with the producer")
	}
}

func TestSlotExpireDropsOnlyStaleRequests(t *testing.T) {
	s := New().Registration()
	t0 := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	s.Offer(domain.RegistrationRequest{ID: "r1", CreatedAt: t0})

	if _, ok := s.Expire(t0); ok {
		t.Fatal("request created at the cutoff should survive")
	}
	if !s.Pending() {
		t.Fatal("fresh request was dropped")
	}

	req, ok := s.Expire(t0.Add(time.Second))
	if !ok || req.ID != "r1" {
		t.Fatalf("Expire = %+v, %v", req, ok)
	}
	if s.Pending() {
		t.Fatal("stale request still pending")
	}
	if _, ok := s.Expire(t0.Add(time.Hour)); ok {
		t.Fatal("empty slot reported an expiry")
	}
}

func TestSnapshot(t *testing.T) {
	s := New()
	w, _ := s.ClaimSpeakingWriter()
	s.PublishVisible([]string{"Alice"})
	w.SetSpeaking(true)
	s.Registration().Offer(domain.RegistrationRequest{ID: "r"})

	snap := s.Snapshot()
	if !snap.Speaking || !snap.RegistrationPending || len(snap.Visible) != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
}
