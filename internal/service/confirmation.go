package service

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-freight-documents/internal/common/errors"
)

// DeleteTarget identifies what a destructive action removes. LineID is 0 for
// a whole-document delete.
type DeleteTarget struct {
	DocumentType string `json:"documentType"`
	DocumentID   int64  `json:"documentId"`
	LineID       int64  `json:"lineId,omitempty"`
	ActorID      int64  `json:"-"`
}

// Ticket is the first step of a two-step delete
type Ticket struct {
	Token     string       `json:"token"`
	Target    DeleteTarget `json:"target"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

// ConfirmationRegistry hands out one-time delete tickets. A delete is only
// issued upstream after its ticket is consumed by the same actor for the same
// target before it expires.
type ConfirmationRegistry struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	pending map[string]Ticket
}

// NewConfirmationRegistry creates a registry whose tickets live for ttl
func NewConfirmationRegistry(ttl time.Duration) *ConfirmationRegistry {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &ConfirmationRegistry{
		ttl:     ttl,
		now:     time.Now,
		pending: make(map[string]Ticket),
	}
}

// Request issues a ticket for target
func (r *ConfirmationRegistry) Request(target DeleteTarget) Ticket {
	now := r.now()
	t := Ticket{
		Token:     uuid.NewString(),
		Target:    target,
		ExpiresAt: now.Add(r.ttl),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for token, p := range r.pending {
		if now.After(p.ExpiresAt) {
			delete(r.pending, token)
		}
	}
	r.pending[t.Token] = t
	return t
}

// Consume redeems token for target. A token is spent by its first matching
// use; a mismatched target leaves it pending.
func (r *ConfirmationRegistry) Consume(token string, target DeleteTarget) error {
	if token == "" {
		return errors.Precondition("deletion must be confirmed: request a confirmation token first")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.pending[token]
	if !ok {
		return errors.Precondition("confirmation token is unknown or already used")
	}
	if r.now().After(t.ExpiresAt) {
		delete(r.pending, token)
		return errors.Precondition("confirmation token has expired")
	}
	if t.Target != target {
		return errors.Precondition("confirmation token was issued for a different target")
	}
	delete(r.pending, token)
	return nil
}
