// Package greeting decides whether and how the kiosk greets a visitor.
//
// The manager is pure decision logic over a clock supplied by the caller:
// it remembers when each label was last greeted and picks a tier from the
// elapsed time. It never speaks anything itself.
package greeting

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/hammamikhairi/omnis/internal/domain"
	"github.com/hammamikhairi/omnis/internal/logger"
)

// Tier is the category of a greeting decision.
type Tier int

const (
	Suppressed Tier = iota
	Formal
	Casual
	UnknownBurst
)

func (t Tier) String() string {
	switch t {
	case Suppressed:
		return "suppressed"
	case Formal:
		return "formal"
	case Casual:
		return "casual"
	case UnknownBurst:
		return "unknown"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Decision pairs a tier with its resolved text. Suppressed decisions
// carry no text.
type Decision struct {
	Tier Tier
	Text string
}

// OK reports whether the decision produced something to say.
func (d Decision) OK() bool { return d.Tier != Suppressed && d.Text != "" }

// Picker chooses an index in [0, n). *rand.Rand satisfies it.
type Picker interface {
	IntN(n int) int
}

// Option configures the manager.
type Option func(*Manager)

// WithProfile replaces the greeting tables. Empty fields keep defaults.
func WithProfile(p Profile) Option {
	return func(m *Manager) {
		m.profile = p.merge(DefaultProfile())
	}
}

// WithCooldowns sets the minimum time between greetings of a known
// label and of the unknown pseudo-label.
func WithCooldowns(known, unknown time.Duration) Option {
	return func(m *Manager) {
		m.knownCooldown = known
		m.unknownCooldown = unknown
	}
}

// WithLongAbsence sets how long a label must be away before it is
// greeted formally again.
func WithLongAbsence(d time.Duration) Option {
	return func(m *Manager) {
		m.longAbsence = d
	}
}

// WithPicker injects the random source used for casual templates.
func WithPicker(p Picker) Option {
	return func(m *Manager) {
		m.pick = p
	}
}

// Manager tracks last-greeted times per label. Safe for concurrent use.
type Manager struct {
	log             *logger.Logger
	profile         Profile
	knownCooldown   time.Duration
	unknownCooldown time.Duration
	longAbsence     time.Duration
	pick            Picker

	mu   sync.Mutex
	last map[string]time.Time // zero = never greeted
}

// New creates a greeting manager with the default tables.
func New(log *logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		log:             log,
		profile:         DefaultProfile(),
		knownCooldown:   60 * time.Second,
		unknownCooldown: 30 * time.Second,
		longAbsence:     30 * time.Minute,
		pick:            rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x6f6d6e6973)),
		last:            make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ShouldGreet reports whether label may be greeted at now. A label never
// seen before is always greetable.
func (m *Manager) ShouldGreet(label string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shouldGreetLocked(label, now)
}

func (m *Manager) shouldGreetLocked(label string, now time.Time) bool {
	last, seen := m.last[label]
	if !seen || last.IsZero() {
		return true
	}
	cooldown := m.knownCooldown
	if label == domain.UnknownLabel {
		cooldown = m.unknownCooldown
	}
	return now.Sub(last) > cooldown
}

// Greeting decides the greeting for label at now. When the cooldown has
// not elapsed the decision is Suppressed and nothing is recorded.
// Otherwise the label is stamped with now and the tier is Formal for a
// first sighting or a long absence, Casual in between.
func (m *Manager) Greeting(label string, now time.Time) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.shouldGreetLocked(label, now) {
		return Decision{Tier: Suppressed}
	}

	prev := m.last[label]
	m.last[label] = now

	if prev.IsZero() || now.Sub(prev) > m.longAbsence {
		if intro, ok := m.profile.SpecialIntros[label]; ok && intro != "" {
			m.log.Debug("formal intro for %q", label)
			return Decision{Tier: Formal, Text: intro}
		}
		return Decision{Tier: Formal, Text: fmt.Sprintf("Hello %s! Welcome to %s.", label, m.profile.School)}
	}

	return Decision{Tier: Casual, Text: m.casualLocked(label)}
}

// UnknownGreeting stamps the unknown pseudo-label and returns the fixed
// greeting for strangers. It does not check the cooldown; callers gate it
// with ShouldGreet.
func (m *Manager) UnknownGreeting(now time.Time) Decision {
	m.mu.Lock()
	m.last[domain.UnknownLabel] = now
	m.mu.Unlock()
	return Decision{Tier: UnknownBurst, Text: fmt.Sprintf("Hello! Welcome to %s.", m.profile.SpokenSchool)}
}

func (m *Manager) casualLocked(label string) string {
	templates := m.profile.Casual
	tpl := templates[m.pick.IntN(len(templates))]
	return strings.ReplaceAll(tpl, "{name}", m.profile.ShortName(label))
}
