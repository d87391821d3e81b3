// Package presence runs the camera loop: it recognizes the faces in
// view, publishes who is visible, greets people, and asks unknown
// visitors for their name.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hammamikhairi/omnis/internal/coord"
	"github.com/hammamikhairi/omnis/internal/domain"
	"github.com/hammamikhairi/omnis/internal/greeting"
	"github.com/hammamikhairi/omnis/internal/lines"
	"github.com/hammamikhairi/omnis/internal/logger"
)

// Placeholder frame size used when the camera returns nothing.
const (
	PlaceholderWidth  = 640
	PlaceholderHeight = 480
)

// RegistrationFaceSize is the side of the square face crop handed to
// the registry.
const RegistrationFaceSize = 216

// Option configures the tracker.
type Option func(*Tracker)

// WithFrameInterval sets the pause between camera reads.
func WithFrameInterval(d time.Duration) Option {
	return func(t *Tracker) { t.frameInterval = d }
}

// WithFrameSkip runs recognition on every nth frame only.
func WithFrameSkip(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.frameSkip = n
		}
	}
}

// WithMaxFaces caps how many detections are recognized per frame. The
// earliest detections are kept.
func WithMaxFaces(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.maxFaces = n
		}
	}
}

// WithTolerance sets the largest encoding distance that still counts as
// a match.
func WithTolerance(tol float64) Option {
	return func(t *Tracker) { t.tolerance = tol }
}

// WithRegistration enables asking a lone unknown face for a name once it
// has been seen for after consecutive recognition cycles, at most once
// per cooldown.
func WithRegistration(enabled bool, after int, cooldown time.Duration) Option {
	return func(t *Tracker) {
		t.registerUnknown = enabled
		if after > 0 {
			t.registerAfter = after
		}
		t.registerCooldown = cooldown
	}
}

// WithRegistrationTTL drops an unanswered registration request once it
// is older than d, so the visitor can be asked again.
func WithRegistrationTTL(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.registerTTL = d
		}
	}
}

// WithReload reloads known encodings whenever ch fires.
func WithReload(ch <-chan struct{}) Option {
	return func(t *Tracker) { t.reload = ch }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// Tracker is the presence loop.
type Tracker struct {
	camera   domain.Camera
	vision   domain.FaceVision
	registry domain.IdentityRegistry
	greeter  *greeting.Manager
	speaker  domain.Speaker
	state    *coord.State
	log      *logger.Logger

	frameInterval    time.Duration
	frameSkip        int
	maxFaces         int
	tolerance        float64
	registerUnknown  bool
	registerAfter    int
	registerCooldown time.Duration
	registerTTL      time.Duration
	reload           <-chan struct{}
	now              func() time.Time

	// Owned by the loop goroutine.
	known         []domain.Encoding
	labels        []string
	frames        int
	unknownStreak int
	lastOffer     time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a tracker. Call Start to run it.
func New(camera domain.Camera, vision domain.FaceVision, registry domain.IdentityRegistry,
	greeter *greeting.Manager, speaker domain.Speaker, state *coord.State,
	log *logger.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		camera:           camera,
		vision:           vision,
		registry:         registry,
		greeter:          greeter,
		speaker:          speaker,
		state:            state,
		log:              log,
		frameInterval:    33 * time.Millisecond,
		frameSkip:        3,
		maxFaces:         4,
		tolerance:        0.50,
		registerUnknown:  true,
		registerAfter:    5,
		registerCooldown: 2 * time.Minute,
		registerTTL:      30 * time.Second,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Load replaces the known encodings with the registry's contents.
func (t *Tracker) Load(ctx context.Context) error {
	encs, labels, err := t.registry.Load(ctx)
	if err != nil {
		return err
	}
	t.known, t.labels = encs, labels
	t.log.Info("presence: %d known face(s) loaded", len(labels))
	return nil
}

// Start loads the known faces and begins the camera loop. Non-blocking.
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		t.log.Warn("presence: tracker already running")
		return
	}
	if err := t.Load(ctx); err != nil {
		t.log.Error("presence: loading known faces: %v", err)
	}

	childCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.running = true
	t.done = make(chan struct{})

	go t.loop(childCtx, t.done)
	t.log.Info("presence: started (skip=%d, max faces=%d, tolerance=%.2f)", t.frameSkip, t.maxFaces, t.tolerance)
}

// Stop ends the loop and waits for the current frame to finish.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.cancel()
	t.running = false
	done := t.done
	t.mu.Unlock()

	<-done
	t.log.Info("presence: stopped")
}

func (t *Tracker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(t.frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.reload:
			if err := t.Load(ctx); err != nil {
				t.log.Error("presence: reloading known faces: %v", err)
			}
		case <-ticker.C:
			t.step(ctx)
		}
	}
}

// step handles one camera frame.
func (t *Tracker) step(ctx context.Context) {
	frame, ok := t.camera.Read()
	t.frames++
	if !ok || frame.Empty() {
		if t.frames%30 == 1 {
			t.log.Warn("presence: camera not reading, check the connection")
		}
		frame = domain.BlankFrame(PlaceholderWidth, PlaceholderHeight)
		ok = false
	}
	if t.frames%t.frameSkip != 0 {
		return
	}
	if !ok {
		// Nobody can be seen on a placeholder.
		t.unknownStreak = 0
		t.state.PublishVisible(nil)
		return
	}

	boxes, encs, labels, ok := t.recognize(frame)
	if !ok {
		return
	}
	t.state.PublishVisible(labels)
	if ctx.Err() != nil {
		return
	}

	now := t.now()
	t.greet(labels, now)
	t.maybeAskName(frame, boxes, encs, labels, now)
}

// recognize labels every face in frame. ok is false when the vision
// backend failed and the previous visible set should stand.
func (t *Tracker) recognize(frame domain.Frame) ([]domain.FaceBox, []domain.Encoding, []string, bool) {
	boxes, err := t.vision.DetectFaces(frame)
	if err != nil {
		t.log.Error("presence: detect: %v", err)
		return nil, nil, nil, false
	}
	if len(boxes) > t.maxFaces {
		boxes = boxes[:t.maxFaces]
	}
	if len(boxes) == 0 {
		return nil, nil, []string{}, true
	}

	encs, err := t.vision.EncodeFaces(frame, boxes)
	if err != nil {
		t.log.Error("presence: encode: %v", err)
		return nil, nil, nil, false
	}

	labels := make([]string, len(encs))
	for i, enc := range encs {
		labels[i] = domain.UnknownLabel
		if len(t.known) == 0 {
			continue
		}
		matches, dists := t.vision.Compare(t.known, enc, t.tolerance)
		if best := domain.BestMatch(matches, dists); best >= 0 && best < len(t.labels) {
			labels[i] = t.labels[best]
		}
	}
	t.log.Debug("presence: %v", labels)
	return boxes, encs, labels, true
}

// greet greets each distinct known label, or the unknown crowd when no
// known label is in view.
func (t *Tracker) greet(labels []string, now time.Time) {
	seen := make(map[string]bool, len(labels))
	anyUnknown := false
	for _, label := range labels {
		if label == domain.UnknownLabel {
			anyUnknown = true
			continue
		}
		if seen[label] {
			continue
		}
		seen[label] = true
		if d := t.greeter.Greeting(label, now); d.OK() {
			t.log.Info("presence: greeting %s (%s)", label, d.Tier)
			t.speaker.Say(d.Text)
		}
	}

	if len(seen) == 0 && anyUnknown && t.greeter.ShouldGreet(domain.UnknownLabel, now) {
		t.speaker.Say(t.greeter.UnknownGreeting(now).Text)
	}
}

// maybeAskName offers a lone, persistent unknown face for registration.
func (t *Tracker) maybeAskName(frame domain.Frame, boxes []domain.FaceBox, encs []domain.Encoding, labels []string, now time.Time) {
	if len(labels) != 1 || labels[0] != domain.UnknownLabel || len(encs) != 1 || len(boxes) != 1 {
		t.unknownStreak = 0
		return
	}
	t.unknownStreak++
	if !t.registerUnknown || t.unknownStreak < t.registerAfter {
		return
	}
	slot := t.state.Registration()
	if req, ok := slot.Expire(now.Add(-t.registerTTL)); ok {
		t.log.Info("presence: registration request %s expired unanswered", req.ID)
	}
	if slot.Pending() {
		return
	}
	if !t.lastOffer.IsZero() && now.Sub(t.lastOffer) < t.registerCooldown {
		return
	}

	face := frame.Crop(boxes[0], 0.2).Resize(RegistrationFaceSize, RegistrationFaceSize)
	req := domain.RegistrationRequest{
		ID:        uuid.NewString(),
		Encoding:  encs[0],
		Face:      face,
		CreatedAt: now,
	}
	if slot.Offer(req) {
		t.log.Warn("presence: replaced an unconsumed registration request")
	}
	t.lastOffer = now
	t.unknownStreak = 0
	t.log.Info("presence: asking unknown visitor for a name (request %s)", req.ID)
	t.speaker.Say(lines.AskName())
}
