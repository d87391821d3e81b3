package presence

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hammamikhairi/omnis/internal/coord"
	"github.com/hammamikhairi/omnis/internal/domain"
	"github.com/hammamikhairi/omnis/internal/greeting"
	"github.com/hammamikhairi/omnis/internal/lines"
	"github.com/hammamikhairi/omnis/internal/logger"
)

// ── fakes ────────────────────────────────────────────────────────

type fakeCamera struct {
	mu    sync.Mutex
	fail  bool
	reads int
}

func (c *fakeCamera) Read() (domain.Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	if c.fail {
		return domain.Frame{}, false
	}
	return domain.BlankFrame(320, 240), true
}

func (c *fakeCamera) Close() error { return nil }

// fakeVision "sees" one face per encoding in faces.
type fakeVision struct {
	mu      sync.Mutex
	faces   []domain.Encoding
	detects int
	err     error
}

func (v *fakeVision) show(encs ...domain.Encoding) {
	v.mu.Lock()
	v.faces = encs
	v.mu.Unlock()
}

func (v *fakeVision) DetectFaces(domain.Frame) ([]domain.FaceBox, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.detects++
	if v.err != nil {
		return nil, v.err
	}
	boxes := make([]domain.FaceBox, len(v.faces))
	for i := range boxes {
		boxes[i] = domain.FaceBox{X: 10 * i, Y: 10, W: 40, H: 40, Score: 0.9}
	}
	return boxes, nil
}

func (v *fakeVision) EncodeFaces(_ domain.Frame, boxes []domain.FaceBox) ([]domain.Encoding, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]domain.Encoding(nil), v.faces[:len(boxes)]...), nil
}

func (v *fakeVision) Compare(known []domain.Encoding, enc domain.Encoding, tol float64) ([]bool, []float64) {
	return domain.CompareEncodings(known, enc, tol)
}

type fakeRegistry struct {
	encs   []domain.Encoding
	labels []string
	loads  int
}

func (r *fakeRegistry) Load(context.Context) ([]domain.Encoding, []string, error) {
	r.loads++
	return r.encs, r.labels, nil
}

func (r *fakeRegistry) Register(context.Context, string, domain.Encoding, domain.Frame) bool {
	return true
}

type capturingSpeaker struct {
	mu   sync.Mutex
	said []string
}

func (s *capturingSpeaker) Say(text string) {
	s.mu.Lock()
	s.said = append(s.said, text)
	s.mu.Unlock()
}

func (s *capturingSpeaker) Interrupt() {}

func (s *capturingSpeaker) Said() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.said...)
}

var (
	alice = domain.Encoding{1, 0}
	bob   = domain.Encoding{0, 1}
	stray = domain.Encoding{5, 5}
)

type fixture struct {
	tr      *Tracker
	camera  *fakeCamera
	vision  *fakeVision
	reg     *fakeRegistry
	speaker *capturingSpeaker
	state   *coord.State
	now     time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		camera:  &fakeCamera{},
		vision:  &fakeVision{},
		reg:     &fakeRegistry{encs: []domain.Encoding{alice, bob}, labels: []string{"Alice", "Bob"}},
		speaker: &capturingSpeaker{},
		state:   coord.New(),
		now:     time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
	}
	log := logger.New(logger.LevelOff, nil)
	greeter := greeting.New(log)
	opts = append([]Option{
		WithFrameSkip(1),
		WithClock(func() time.Time { return f.now }),
	}, opts...)
	f.tr = New(f.camera, f.vision, f.reg, greeter, f.speaker, f.state, log, opts...)
	if err := f.tr.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) step(n int) {
	for i := 0; i < n; i++ {
		f.tr.step(context.Background())
	}
}

// ── tests ────────────────────────────────────────────────────────

func TestPublishesLabelsInDetectionOrder(t *testing.T) {
	f := newFixture(t)
	f.vision.show(bob, stray, alice)
	f.step(1)

	got := f.state.Visible()
	want := []string{"Bob", domain.UnknownLabel, "Alice"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("visible = %v, want %v", got, want)
	}
}

func TestMaxFacesKeepsEarliest(t *testing.T) {
	f := newFixture(t, WithMaxFaces(2))
	f.vision.show(alice, bob, stray)
	f.step(1)

	if got := f.state.Visible(); len(got) != 2 || got[0] != "Alice" || got[1] != "Bob" {
		t.Fatalf("visible = %v", got)
	}
}

func TestToleranceDecidesMatch(t *testing.T) {
	f := newFixture(t, WithTolerance(0.2))
	f.vision.show(domain.Encoding{0.7, 0})
	f.step(1)
	if got := f.state.Visible(); got[0] != domain.UnknownLabel {
		t.Fatalf("0.3 away with tolerance 0.2 should be unknown, got %v", got)
	}
}

func TestFrameSkip(t *testing.T) {
	f := newFixture(t, WithFrameSkip(3))
	f.vision.show(alice)
	f.step(5)
	if f.vision.detects != 1 {
		t.Fatalf("detects = %d over 5 frames with skip 3, want 1", f.vision.detects)
	}
	if f.camera.reads != 5 {
		t.Fatalf("reads = %d", f.camera.reads)
	}
}

func TestCameraFailureClearsVisible(t *testing.T) {
	f := newFixture(t)
	f.vision.show(alice)
	f.step(1)
	f.camera.fail = true
	f.step(1)

	if got := f.state.Visible(); len(got) != 0 {
		t.Fatalf("visible = %v, want empty on a dead camera", got)
	}
	if f.vision.detects != 1 {
		t.Fatal("placeholder frames should not be recognized")
	}
}

func TestVisionErrorKeepsPreviousSet(t *testing.T) {
	f := newFixture(t)
	f.vision.show(alice)
	f.step(1)
	f.vision.err = errors.New("backend down")
	f.step(1)
	if got := f.state.Visible(); len(got) != 1 || got[0] != "Alice" {
		t.Fatalf("visible = %v", got)
	}
}

func TestGreetsEachKnownFaceOnceWithinCooldown(t *testing.T) {
	f := newFixture(t)
	f.vision.show(alice, bob, alice)
	f.step(1)

	said := f.speaker.Said()
	if len(said) != 2 {
		t.Fatalf("said = %v", said)
	}
	if !strings.Contains(said[0], "Alice") || !strings.Contains(said[1], "Bob") {
		t.Fatalf("said = %v", said)
	}

	f.now = f.now.Add(30 * time.Second)
	f.step(1)
	if len(f.speaker.Said()) != 2 {
		t.Fatal("greeted again within the cooldown")
	}

	f.now = f.now.Add(31 * time.Second)
	f.step(1)
	if len(f.speaker.Said()) != 4 {
		t.Fatalf("said = %v, want casual greetings after the cooldown", f.speaker.Said())
	}
}

func TestUnknownGreetedOnlyWithoutKnownFaces(t *testing.T) {
	f := newFixture(t, WithRegistration(false, 0, 0))
	f.vision.show(alice, stray)
	f.step(1)
	for _, s := range f.speaker.Said() {
		if strings.HasPrefix(s, "Hello! Welcome") {
			t.Fatal("unknown greeting with a known face in view")
		}
	}

	g := newFixture(t, WithRegistration(false, 0, 0))
	g.vision.show(stray, stray)
	g.step(1)
	g.now = g.now.Add(10 * time.Second)
	g.step(1)
	said := g.speaker.Said()
	if len(said) != 1 || !strings.HasPrefix(said[0], "Hello! Welcome") {
		t.Fatalf("said = %v", said)
	}
}

func TestAsksLoneUnknownForName(t *testing.T) {
	f := newFixture(t, WithRegistration(true, 3, time.Minute))
	f.vision.show(stray)

	f.step(2)
	if f.state.Registration().Pending() {
		t.Fatal("offered before the face persisted")
	}
	f.step(1)

	req, ok := f.state.Registration().Take()
	if !ok {
		t.Fatal("expected a registration request")
	}
	if req.ID == "" || req.Encoding.Distance(stray) != 0 {
		t.Fatalf("request = %+v", req)
	}
	if req.Face.Width != RegistrationFaceSize || req.Face.Height != RegistrationFaceSize {
		t.Fatalf("face crop %dx%d", req.Face.Width, req.Face.Height)
	}
	said := f.speaker.Said()
	if said[len(said)-1] != lines.AskName() {
		t.Fatalf("said = %v", said)
	}

	// Cooldown: the same stranger is not asked again right away.
	f.step(3)
	if f.state.Registration().Pending() {
		t.Fatal("asked again within the cooldown")
	}
	f.now = f.now.Add(time.Minute)
	f.step(3)
	if !f.state.Registration().Pending() {
		t.Fatal("should ask again after the cooldown")
	}
}

func TestUnansweredRequestExpiresAndIsOfferedAgain(t *testing.T) {
	f := newFixture(t, WithRegistration(true, 1, 10*time.Second), WithRegistrationTTL(30*time.Second))
	asks := func() int {
		n := 0
		for _, s := range f.speaker.Said() {
			if s == lines.AskName() {
				n++
			}
		}
		return n
	}
	f.vision.show(stray)
	f.step(1)
	if !f.state.Registration().Pending() || asks() != 1 {
		t.Fatalf("expected one request, said = %v", f.speaker.Said())
	}

	// Still within its lifetime: left alone, not asked again.
	f.now = f.now.Add(20 * time.Second)
	f.step(1)
	if asks() != 1 {
		t.Fatalf("asked again while a request was pending: %v", f.speaker.Said())
	}

	f.now = f.now.Add(15 * time.Second)
	f.step(1)
	req, ok := f.state.Registration().Take()
	if !ok {
		t.Fatal("expired request was not replaced")
	}
	if !req.CreatedAt.Equal(f.now) {
		t.Fatalf("request created at %v, want %v", req.CreatedAt, f.now)
	}
	if asks() != 2 {
		t.Fatalf("said = %v", f.speaker.Said())
	}
}

func TestNoRegistrationWithCompanyOrWhenDisabled(t *testing.T) {
	f := newFixture(t, WithRegistration(true, 1, 0))
	f.vision.show(stray, alice)
	f.step(3)
	if f.state.Registration().Pending() {
		t.Fatal("offered with more than one face in view")
	}

	g := newFixture(t, WithRegistration(false, 1, 0))
	g.vision.show(stray)
	g.step(3)
	if g.state.Registration().Pending() {
		t.Fatal("offered while disabled")
	}
}

func TestReloadPicksUpNewFaces(t *testing.T) {
	reload := make(chan struct{}, 1)
	f := newFixture(t, WithReload(reload), WithFrameInterval(5*time.Millisecond), WithRegistration(false, 0, 0))
	f.vision.show(stray)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.tr.Start(ctx)
	defer f.tr.Stop()

	f.reg.encs = append(f.reg.encs, stray)
	f.reg.labels = append(f.reg.labels, "Lee")
	reload <- struct{}{}

	deadline := time.After(time.Second)
	for {
		if got := f.state.Visible(); len(got) == 1 && got[0] == "Lee" {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("visible = %v, want [Lee] after reload", f.state.Visible())
		case <-time.After(5 * time.Millisecond):
		}
	}
}
