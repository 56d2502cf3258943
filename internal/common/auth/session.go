// Package auth carries the caller's credential and person id explicitly
// through every engine call.
package auth

import (
	"context"
	"strings"

	"github.com/pesio-ai/be-freight-documents/internal/common/errors"
)

// Session is the identity a document session acts under. It is built once
// per request and passed down; nothing caches it globally.
type Session struct {
	Token    string
	PersonID int64
}

// NewSession builds a session from a raw bearer credential and person id
func NewSession(token string, personID int64) Session {
	return Session{Token: strings.TrimSpace(token), PersonID: personID}
}

// HasActor reports whether both credential and person id are present
func (s Session) HasActor() bool {
	return s.Token != "" && s.PersonID > 0
}

// RequireActor returns a precondition error when the session cannot sign a
// mutating call.
func (s Session) RequireActor() error {
	if s.Token == "" {
		return errors.Precondition("no credential available for this session")
	}
	if s.PersonID <= 0 {
		return errors.Precondition("no actor identity available for this session")
	}
	return nil
}

// RequireCredential is the read-side check: reads need a credential but not
// a person id.
func (s Session) RequireCredential() error {
	if s.Token == "" {
		return errors.Precondition("no credential available for this session")
	}
	return nil
}

// AuthorizationHeader returns the value for the Authorization header
func (s Session) AuthorizationHeader() string {
	if s.Token == "" {
		return ""
	}
	return "Bearer " + s.Token
}

type contextKey struct{}

// WithSession stores the session in ctx
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session stored by WithSession
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(contextKey{}).(Session)
	return s, ok
}
