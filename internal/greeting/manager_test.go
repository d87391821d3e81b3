package greeting

import (
	"strings"
	"testing"
	"time"

	"github.com/hammamikhairi/omnis/internal/domain"
	"github.com/hammamikhairi/omnis/internal/logger"
)

// fixedPicker always returns the same index.
type fixedPicker struct{ idx int }

func (f fixedPicker) IntN(n int) int { return f.idx % n }

// seqPicker walks through indexes in order.
type seqPicker struct{ next int }

func (s *seqPicker) IntN(n int) int {
	i := s.next % n
	s.next++
	return i
}

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestManager(opts ...Option) *Manager {
	return New(logger.New(logger.LevelOff, nil), append([]Option{WithPicker(fixedPicker{})}, opts...)...)
}

func TestNoRepeatWithinCooldown(t *testing.T) {
	for _, label := range []string{"Alice", "Deva Nandan", "Rakesh N K"} {
		m := newTestManager()
		if d := m.Greeting(label, t0); !d.OK() {
			t.Fatalf("%s: first greeting suppressed", label)
		}
		for _, dt := range []time.Duration{0, time.Second, 30 * time.Second, 60 * time.Second} {
			if d := m.Greeting(label, t0.Add(dt)); d.OK() {
				t.Errorf("%s: greeted again after %s: %q", label, dt, d.Text)
			}
		}
		if d := m.Greeting(label, t0.Add(61*time.Second)); !d.OK() {
			t.Errorf("%s: not greeted after cooldown", label)
		}
	}
}

func TestSuppressedGreetingDoesNotStamp(t *testing.T) {
	m := newTestManager()
	m.Greeting("Alice", t0)
	m.Greeting("Alice", t0.Add(50*time.Second))
	// Stamped at t0 only, so the cooldown ends 60s after t0.
	if d := m.Greeting("Alice", t0.Add(61*time.Second)); !d.OK() {
		t.Fatal("suppressed greeting restarted the cooldown")
	}
}

func TestUnknownCooldown(t *testing.T) {
	m := newTestManager()
	if d := m.Greeting(domain.UnknownLabel, t0); !d.OK() {
		t.Fatal("first unknown greeting suppressed")
	}
	if d := m.Greeting(domain.UnknownLabel, t0); d.OK() {
		t.Fatal("immediate repeat should be suppressed")
	}
	if d := m.Greeting(domain.UnknownLabel, t0.Add(31*time.Second)); !d.OK() {
		t.Fatal("unknown should be greetable after 31s")
	}
}

func TestUnknownGreetingStampsAlways(t *testing.T) {
	m := newTestManager()
	d := m.UnknownGreeting(t0)
	if d.Tier != UnknownBurst || d.Text != "Hello! Welcome to M G M Model School." {
		t.Fatalf("decision = %+v", d)
	}
	if m.ShouldGreet(domain.UnknownLabel, t0.Add(30*time.Second)) {
		t.Fatal("unknown should be on cooldown for 30s")
	}
	if !m.ShouldGreet(domain.UnknownLabel, t0.Add(31*time.Second)) {
		t.Fatal("unknown should be greetable after 31s")
	}
	// Stamping happens even while on cooldown.
	m.UnknownGreeting(t0.Add(10 * time.Second))
	if m.ShouldGreet(domain.UnknownLabel, t0.Add(31*time.Second)) {
		t.Fatal("stamp at 10s should hold the cooldown until 40s")
	}
	if !m.ShouldGreet(domain.UnknownLabel, t0.Add(41*time.Second)) {
		t.Fatal("unknown should be greetable 31s after the last stamp")
	}
}

func TestFirstGreetingIsFormal(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"Alice", "Hello Alice! Welcome to MGM Model School."},
		{"Deva Nandan", "Hello Deva Nandan! Welcome to MGM Model School."},
		{"Honey", "Hello Honey Sir. Welcome. It is great to have Asianet News represented here."},
		{"Rakesh N K", "Hello Rakesh Sir! It is an honor to welcome a Reporter from Maliyaala Manorama to our school."},
	}
	for _, tt := range tests {
		m := newTestManager()
		d := m.Greeting(tt.label, t0)
		if d.Tier != Formal {
			t.Errorf("%s: tier = %s, want formal", tt.label, d.Tier)
		}
		if d.Text != tt.want {
			t.Errorf("%s: text = %q, want %q", tt.label, d.Text, tt.want)
		}
	}
}

func TestSpecialIntroOnEveryFormalTier(t *testing.T) {
	m := newTestManager()
	intro := DefaultProfile().SpecialIntros["Saji Nair"]
	now := t0
	for i := 0; i < 3; i++ {
		d := m.Greeting("Saji Nair", now)
		if d.Tier != Formal || d.Text != intro {
			t.Fatalf("round %d: %+v", i, d)
		}
		now = now.Add(31 * time.Minute)
	}
}

func TestCasualBetweenCooldownAndLongAbsence(t *testing.T) {
	m := newTestManager(WithPicker(fixedPicker{idx: 1}))
	m.Greeting("Deva Nandan", t0)

	d := m.Greeting("Deva Nandan", t0.Add(5*time.Minute))
	if d.Tier != Casual {
		t.Fatalf("tier = %s, want casual", d.Tier)
	}
	if d.Text != "Welcome back Deva." {
		t.Fatalf("text = %q", d.Text)
	}

	// Exactly at the threshold is still casual; beyond it is formal.
	d = m.Greeting("Deva Nandan", t0.Add(5*time.Minute+30*time.Minute))
	if d.Tier != Casual {
		t.Fatalf("at threshold tier = %s, want casual", d.Tier)
	}
	d = m.Greeting("Deva Nandan", t0.Add(5*time.Minute+60*time.Minute+time.Second))
	if d.Tier != Formal {
		t.Fatalf("after long absence tier = %s, want formal", d.Tier)
	}
}

func TestShortNameResolution(t *testing.T) {
	p := DefaultProfile()
	tests := map[string]string{
		"Vaishnavi":   "vaaish",
		"Rakesh N K":  "Rakesh Sir",
		"Anna Maria":  "Anna",
		"Bob":         "Bob",
		"Deva Nandan": "Deva",
	}
	for label, want := range tests {
		if got := p.ShortName(label); got != want {
			t.Errorf("ShortName(%q) = %q, want %q", label, got, want)
		}
	}
}

func TestCasualTemplatesUseInjectedPicker(t *testing.T) {
	pick := &seqPicker{}
	m := newTestManager(WithPicker(pick))
	m.Greeting("Bob", t0)

	now := t0
	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		now = now.Add(2 * time.Minute)
		d := m.Greeting("Bob", now)
		if d.Tier != Casual {
			t.Fatalf("round %d: tier = %s", i, d.Tier)
		}
		if !strings.Contains(d.Text, "Bob") {
			t.Fatalf("round %d: %q does not mention Bob", i, d.Text)
		}
		seen[d.Text] = true
	}
	if len(seen) != 5 {
		t.Fatalf("expected all five templates, got %v", seen)
	}
}

func TestProfileOverrides(t *testing.T) {
	m := newTestManager(
		WithProfile(Profile{School: "Hill View", Casual: []string{"Yo {name}"}}),
		WithCooldowns(10*time.Second, 5*time.Second),
		WithLongAbsence(time.Minute),
	)
	if d := m.Greeting("Ana", t0); d.Text != "Hello Ana! Welcome to Hill View." {
		t.Fatalf("formal = %q", d.Text)
	}
	if d := m.Greeting("Ana", t0.Add(11*time.Second)); d.Text != "Yo Ana" {
		t.Fatalf("casual = %q", d.Text)
	}
	if d := m.UnknownGreeting(t0); d.Text != "Hello! Welcome to Hill View." {
		t.Fatalf("unknown = %q", d.Text)
	}
	// Default nicknames survive a partial profile.
	if m.profile.ShortName("Pooja") != "Mam" {
		t.Fatal("nicknames lost")
	}
}
