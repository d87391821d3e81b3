package coord

import (
	"sync"
	"time"

	"github.com/hammamikhairi/omnis/internal/domain"
)

// Slot is a single-slot mailbox for registration requests. A request is
// stored and removed as one record, so a reader can never see a pending
// flag without its encoding and image.
//
// Overwrite policy is last-write-wins: offering while a request is still
// pending replaces it, and Offer reports that it did.
type Slot struct {
	mu  sync.Mutex
	req *domain.RegistrationRequest
}

func newSlot() *Slot { return &Slot{} }

// Offer stores req, replacing any unconsumed request.
func (s *Slot) Offer(req domain.RegistrationRequest) (replaced bool) {
	rec := req
	rec.Encoding = req.Encoding.Clone()
	rec.Face.Pix = append([]byte(nil), req.Face.Pix...)

	s.mu.Lock()
	defer s.mu.Unlock()
	replaced = s.req != nil
	s.req = &rec
	return replaced
}

// Pending reports whether a request is waiting to be drained.
func (s *Slot) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.req != nil
}

// Take removes and returns the pending request.
func (s *Slot) Take() (domain.RegistrationRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.req == nil {
		return domain.RegistrationRequest{}, false
	}
	req := *s.req
	s.req = nil
	return req, true
}

// Expire drops the pending request if it was created before cutoff
// and returns it.
func (s *Slot) Expire(cutoff time.Time) (domain.RegistrationRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.req == nil || !s.req.CreatedAt.Before(cutoff) {
		return domain.RegistrationRequest{}, false
	}
	req := *s.req
	s.req = nil
	return req, true
}
