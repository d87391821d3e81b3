// Package voice runs the kiosk's listening loop: it waits for the
// speaker to go quiet, captures one utterance, and either registers a
// pending face, executes a spoken command, or answers a question.
//
// The machine has two states. Idle ignores everything that does not
// contain a wake word. Awake treats every utterance as addressed to the
// kiosk and falls back to Idle after a run of listen timeouts or on the
// silence command.
package voice

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hammamikhairi/omnis/internal/coord"
	"github.com/hammamikhairi/omnis/internal/domain"
	"github.com/hammamikhairi/omnis/internal/lines"
	"github.com/hammamikhairi/omnis/internal/logger"
	"github.com/hammamikhairi/omnis/internal/phrase"
)

// State of the conversation.
type State int32

const (
	Idle State = iota
	Awake
)

func (s State) String() string {
	if s == Awake {
		return "awake"
	}
	return "idle"
}

// Deps are the machine's collaborators. Knowledge and Answerer may be
// nil; questions then go unanswered or get the no-key apology.
type Deps struct {
	State      *coord.State
	Microphone domain.Microphone
	Recognizer domain.Recognizer
	Speaker    domain.Speaker
	Registry   domain.IdentityRegistry
	Knowledge  domain.KnowledgeSource
	Answerer   domain.Answerer
}

// Option configures the Machine.
type Option func(*Machine)

// WithWakeWords replaces the wake words. Words are matched as whole
// tokens after folding.
func WithWakeWords(words ...string) Option {
	return func(m *Machine) {
		var ws []string
		for _, w := range words {
			if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
				ws = append(ws, w)
			}
		}
		if len(ws) > 0 {
			m.wakeWords = ws
		}
	}
}

// WithFolds adds mis-hearing folds on top of the defaults.
func WithFolds(folds map[string]string) Option {
	return func(m *Machine) {
		for k, v := range folds {
			m.folds[strings.ToLower(k)] = strings.ToLower(v)
		}
	}
}

// WithTimeoutLimit sets how many consecutive listen timeouts end a
// conversation.
func WithTimeoutLimit(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.timeoutLimit = n
		}
	}
}

// WithListenWindow sets how long to wait for speech and the longest
// phrase recorded.
func WithListenWindow(timeout, phraseLimit time.Duration) Option {
	return func(m *Machine) {
		m.listenTimeout = timeout
		m.phraseLimit = phraseLimit
	}
}

// WithEnergyBounds clamps the calibrated speech threshold.
func WithEnergyBounds(lo, hi float64) Option {
	return func(m *Machine) {
		m.energyMin, m.energyMax = lo, hi
	}
}

// WithCalibration sets how long ambient noise is sampled.
func WithCalibration(d time.Duration) Option {
	return func(m *Machine) { m.calibrateFor = d }
}

// WithBackoff sets the microphone retry delays.
func WithBackoff(initial, max time.Duration) Option {
	return func(m *Machine) {
		m.backoffMin, m.backoffMax = initial, max
	}
}

// WithQuietPoll bounds each wait on the speaking signal, so a missed
// wakeup costs at most d.
func WithQuietPoll(d time.Duration) Option {
	return func(m *Machine) { m.quietPoll = d }
}

// WithRegistrationTTL sets how long a pending registration request may
// wait for a name. Older requests are dropped unanswered.
func WithRegistrationTTL(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.registrationTTL = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithObserver registers fn to receive every Event. Observers run on
// the voice goroutine and must not block.
func WithObserver(fn func(Event)) Option {
	return func(m *Machine) { m.observers = append(m.observers, fn) }
}

// Machine is the voice interaction loop. Create with New and drive with
// Run; all fields except state are owned by the Run goroutine.
type Machine struct {
	deps Deps
	log  *logger.Logger

	wakeWords     []string
	folds         map[string]string
	timeoutLimit  int
	listenTimeout time.Duration
	phraseLimit   time.Duration
	energyMin     float64
	energyMax     float64
	calibrateFor  time.Duration
	backoffMin    time.Duration
	backoffMax    time.Duration
	quietPoll     time.Duration
	observers     []func(Event)

	registrationTTL time.Duration
	now             func() time.Time

	state     atomic.Int32
	timeouts  int
	threshold float64
}

// New creates a voice machine in the Idle state.
func New(deps Deps, log *logger.Logger, opts ...Option) *Machine {
	m := &Machine{
		deps:          deps,
		log:           log,
		wakeWords:     []string{"omnis", "hello"},
		folds:         DefaultFolds(),
		timeoutLimit:  3,
		listenTimeout: 5 * time.Second,
		phraseLimit:   10 * time.Second,
		energyMin:     300,
		energyMax:     2000,
		calibrateFor:  500 * time.Millisecond,
		backoffMin:    time.Second,
		backoffMax:    8 * time.Second,
		quietPoll:     500 * time.Millisecond,

		registrationTTL: 30 * time.Second,
		now:             time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	m.threshold = m.energyMin
	return m
}

// State returns the current conversation state.
func (m *Machine) State() State { return State(m.state.Load()) }

// Run listens until ctx is cancelled. Microphone failures are retried
// with exponential backoff; nothing else ends the loop.
func (m *Machine) Run(ctx context.Context) {
	m.log.Info("voice: listening for %s", strings.Join(m.wakeWords, ", "))
	delay := m.backoffMin
	for ctx.Err() == nil {
		err := m.runOnce(ctx)
		if ctx.Err() != nil {
			break
		}
		if err == nil {
			delay = m.backoffMin
			continue
		}

		m.log.Warn("voice: microphone unavailable: %v (retrying in %s)", err, delay)
		m.emit(Event{Kind: EventMicError, Text: err.Error()})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
		delay = min(delay*2, m.backoffMax)
	}
	m.log.Info("voice: stopped")
}

// runOnce performs one listen cycle. It returns an error only when the
// microphone could not be used; every other failure is logged here.
func (m *Machine) runOnce(ctx context.Context) error {
	if err := m.waitQuiet(ctx); err != nil {
		return nil
	}

	src, err := m.deps.Microphone.Open(ctx)
	if err != nil {
		return err
	}
	defer src.Close()

	if m.State() == Idle {
		level, err := src.Calibrate(ctx, m.calibrateFor)
		switch {
		case errors.Is(err, domain.ErrNoMicrophone):
			return err
		case err != nil:
			m.log.Debug("voice: calibration skipped: %v", err)
		default:
			m.threshold = clamp(level, m.energyMin, m.energyMax)
			m.log.Debug("voice: noise threshold %.0f (measured %.0f)", m.threshold, level)
		}
	}

	sig := m.deps.State.Speaking()
	if sig.Active() {
		return nil
	}
	rises := sig.Rises()

	clip, err := src.Listen(ctx, m.threshold, m.listenTimeout, m.phraseLimit)
	switch {
	case errors.Is(err, domain.ErrListenTimeout):
		m.onTimeout()
		return nil
	case errors.Is(err, domain.ErrNoMicrophone):
		return err
	case err != nil:
		if ctx.Err() == nil {
			m.log.Warn("voice: listen: %v", err)
		}
		return nil
	}

	if m.heardSelf(sig, rises) {
		m.log.Debug("voice: discarding capture, speaker was active")
		m.emit(Event{Kind: EventDiscarded})
		return nil
	}

	text, err := m.deps.Recognizer.Recognize(ctx, clip)
	switch {
	case errors.Is(err, domain.ErrUnintelligible):
		m.log.Debug("voice: didn't catch that")
		return nil
	case err != nil:
		m.log.Warn("voice: recognition: %v", err)
		return nil
	}

	// Recognition can take a while; a greeting may have started.
	if m.heardSelf(sig, rises) {
		m.log.Debug("voice: discarding %q, speaker was active", text)
		m.emit(Event{Kind: EventDiscarded, Text: text})
		return nil
	}

	m.handle(ctx, text)
	return nil
}

// waitQuiet blocks while something is being spoken. Each wait is
// bounded by quietPoll so a missed wakeup is recovered.
func (m *Machine) waitQuiet(ctx context.Context) error {
	sig := m.deps.State.Speaking()
	if sig.Active() {
		m.log.Debug("voice: speaker active, waiting to listen")
	}
	for sig.Active() {
		wctx, cancel := context.WithTimeout(ctx, m.quietPoll)
		_ = sig.WaitIdle(wctx)
		cancel()
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return ctx.Err()
}

func (m *Machine) heardSelf(sig *coord.SpeakingSignal, rises uint64) bool {
	return sig.Active() || sig.Rises() != rises
}

func (m *Machine) onTimeout() {
	if m.State() != Awake {
		return
	}
	m.timeouts++
	m.log.Debug("voice: timeout %d/%d", m.timeouts, m.timeoutLimit)
	if m.timeouts >= m.timeoutLimit {
		m.log.Info("voice: conversation timed out, say %q to start again", m.wakeWords[0])
		m.setState(Idle)
	}
}

// handle acts on one recognized utterance.
func (m *Machine) handle(ctx context.Context, text string) {
	m.log.Info("voice: heard %q", text)
	m.emit(Event{Kind: EventHeard, Text: text})
	m.timeouts = 0

	slot := m.deps.State.Registration()
	if req, ok := slot.Expire(m.now().Add(-m.registrationTTL)); ok {
		m.log.Info("voice: registration %s expired unanswered", req.ID)
	}
	if req, ok := slot.Take(); ok {
		m.register(ctx, req, text)
		return
	}

	tokens := phrase.Fold(phrase.Tokenize(text), m.folds)
	awake := m.State() == Awake
	woke := !awake && m.hasWakeWord(tokens)
	if !awake && !woke {
		m.log.Debug("voice: no wake word")
		return
	}

	rest := m.stripWakeWords(tokens)
	switch cmd := MatchCommand(rest); cmd {
	case CommandSilence:
		m.log.Info("voice: silence command")
		m.emit(Event{Kind: EventCommand, Text: cmd.String()})
		m.deps.Speaker.Interrupt()
		m.setState(Idle)
		return
	case CommandWhoIsHere:
		m.emit(Event{Kind: EventCommand, Text: cmd.String()})
		known, unknown := m.deps.State.Visible().Partition()
		m.say(lines.WhoIsHere(known, unknown))
		return
	case CommandContinue:
		m.emit(Event{Kind: EventCommand, Text: cmd.String()})
		m.say(lines.Resumed())
		m.setState(Awake)
		return
	}

	if woke {
		m.say(lines.Wake())
		m.setState(Awake)
	}

	question := strings.Join(rest, " ")
	if len(question) < 3 {
		return
	}
	m.say(m.answer(ctx, question))
}

func (m *Machine) register(ctx context.Context, req domain.RegistrationRequest, text string) {
	name, ok := ExtractName(text)
	if !ok {
		m.log.Info("voice: %q is not a name, dropping registration %s", text, req.ID)
		m.say(lines.NameRejected())
		return
	}
	if m.deps.Registry != nil && m.deps.Registry.Register(ctx, name, req.Encoding, req.Face) {
		m.log.Info("voice: registered %s", name)
		m.emit(Event{Kind: EventRegistered, Text: name})
		m.say(lines.Registered(name))
		return
	}
	m.log.Warn("voice: registry refused %s", name)
	m.say(lines.RegisterFailed())
}

func (m *Machine) answer(ctx context.Context, question string) string {
	m.emit(Event{Kind: EventQuestion, Text: question})
	if m.deps.Knowledge != nil {
		if ans, ok := m.deps.Knowledge.Answer(ctx, question); ok {
			m.log.Debug("voice: answered from knowledge")
			return ans
		}
	}
	if m.deps.Answerer == nil {
		return lines.NoAPIKey
	}
	return m.deps.Answerer.Chat(ctx, question)
}

func (m *Machine) hasWakeWord(tokens []string) bool {
	for _, w := range m.wakeWords {
		if phrase.Contains(tokens, w) {
			return true
		}
	}
	return false
}

func (m *Machine) stripWakeWords(tokens []string) []string {
	drop := make(map[string]bool)
	for _, w := range m.wakeWords {
		for _, t := range phrase.Tokenize(w) {
			drop[t] = true
		}
	}
	return phrase.Remove(tokens, drop)
}

func (m *Machine) say(text string) {
	m.emit(Event{Kind: EventReply, Text: text})
	m.deps.Speaker.Say(text)
}

func (m *Machine) setState(s State) {
	m.timeouts = 0
	if State(m.state.Swap(int32(s))) == s {
		return
	}
	m.log.Info("voice: %s", s)
	m.emit(Event{Kind: EventState, State: s})
}

func (m *Machine) emit(e Event) {
	e.At = time.Now()
	if e.Kind != EventState {
		e.State = m.State()
	}
	for _, fn := range m.observers {
		fn(e)
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
