// Package registry persists known faces: one encoding per registration,
// plus the face crop saved as a JPEG for people to look at.
package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/hammamikhairi/omnis/internal/domain"
	"github.com/hammamikhairi/omnis/internal/logger"
)

// Option configures the registry.
type Option func(*Registry)

// WithFacesDir saves each registered face crop as <dir>/<name>.jpg.
func WithFacesDir(dir string) Option {
	return func(r *Registry) {
		r.facesDir = dir
	}
}

// WithClock overrides time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// Registry implements domain.IdentityRegistry over a Store.
type Registry struct {
	records  Store
	log      *logger.Logger
	facesDir string
	now      func() time.Time

	mu   sync.Mutex
	subs []chan struct{}
}

var _ domain.IdentityRegistry = (*Registry)(nil)

// New creates a registry over store.
func New(store Store, log *logger.Logger, opts ...Option) *Registry {
	r := &Registry{records: store, log: log, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load returns every known encoding with its label, in registration
// order.
func (r *Registry) Load(ctx context.Context) ([]domain.Encoding, []string, error) {
	recs, err := r.records.List(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("listing faces: %w", err)
	}
	encs := make([]domain.Encoding, 0, len(recs))
	labels := make([]string, 0, len(recs))
	for _, rec := range recs {
		if len(rec.Encoding) == 0 {
			r.log.Warn("skipping empty encoding for %q", rec.Name)
			continue
		}
		encs = append(encs, domain.Encoding(rec.Encoding))
		labels = append(labels, rec.Name)
	}
	r.log.Debug("loaded %d encodings", len(encs))
	return encs, labels, nil
}

// Register stores a new identity. It reports false when the name or
// encoding is unusable or the store refuses the write. A failure to
// save the face image is logged but does not fail the registration.
func (r *Registry) Register(ctx context.Context, name string, enc domain.Encoding, face domain.Frame) bool {
	return r.store(ctx, name, enc, face, false)
}

// Replace stores enc as the only encoding for name, dropping any it
// had before. Re-encoding a portrait folder goes through here so it
// can be repeated.
func (r *Registry) Replace(ctx context.Context, name string, enc domain.Encoding, face domain.Frame) bool {
	return r.store(ctx, name, enc, face, true)
}

func (r *Registry) store(ctx context.Context, name string, enc domain.Encoding, face domain.Frame, replace bool) bool {
	name = domain.CleanName(name)
	if name == "" {
		r.log.Warn("register: %v", domain.ErrInvalidName)
		return false
	}
	if len(enc) == 0 {
		r.log.Warn("register %q: %v", name, domain.ErrEmptyEncoding)
		return false
	}

	rec := Record{Name: name, Encoding: []float32(enc.Clone()), CreatedAt: r.now().UnixNano()}
	if replace {
		removed, err := r.records.Replace(ctx, rec)
		if err != nil {
			r.log.Error("replace %q: %v", name, err)
			return false
		}
		r.log.Info("registered %q (replaced %d)", name, removed)
	} else {
		if err := r.records.Put(ctx, rec); err != nil {
			r.log.Error("register %q: %v", name, err)
			return false
		}
		r.log.Info("registered %q", name)
	}

	if r.facesDir != "" && !face.Empty() {
		if err := r.saveFace(name, face); err != nil {
			r.log.Warn("register %q: saving face image: %v", name, err)
		}
	}
	r.notify()
	return true
}

// Names returns every registered label once, in first-registration
// order, with the number of encodings stored for it.
func (r *Registry) Names(ctx context.Context) ([]string, map[string]int, error) {
	recs, err := r.records.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	counts := make(map[string]int)
	var names []string
	for _, rec := range recs {
		if counts[rec.Name] == 0 {
			names = append(names, rec.Name)
		}
		counts[rec.Name]++
	}
	return names, counts, nil
}

// Subscribe returns a channel that receives a signal after every
// successful registration. Signals coalesce.
func (r *Registry) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	r.mu.Lock()
	r.subs = append(r.subs, ch)
	r.mu.Unlock()
	return ch
}

// Close closes the underlying store.
func (r *Registry) Close() error { return r.records.Close() }

func (r *Registry) notify() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (r *Registry) saveFace(name string, face domain.Frame) error {
	if err := os.MkdirAll(r.facesDir, 0o755); err != nil {
		return err
	}
	data, err := EncodeJPEG(face)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(r.facesDir, fileName(name)+".jpg"), data, 0o644)
}

// fileName keeps only characters safe in a path component.
func fileName(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}
		if r == ' ' {
			return '_'
		}
		return -1
	}, name)
}
