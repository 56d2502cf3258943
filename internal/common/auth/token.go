package auth

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pesio-ai/be-freight-documents/internal/common/errors"
)

// TokenParser turns a bearer token into a Session.
//
// With a secret the token signature is verified (HMAC only). Without one the
// claims are read unverified: the upstream API still validates the token on
// every call, and the person id read here is only used to tag requests.
type TokenParser struct {
	secret      []byte
	personClaim string
}

// NewTokenParser creates a parser; personClaim defaults to "personId"
func NewTokenParser(secret, personClaim string) *TokenParser {
	if personClaim == "" {
		personClaim = "personId"
	}
	var key []byte
	if secret != "" {
		key = []byte(secret)
	}
	return &TokenParser{secret: key, personClaim: personClaim}
}

// FromAuthorizationHeader parses "Bearer <token>"
func (p *TokenParser) FromAuthorizationHeader(header string) (Session, error) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return Session{}, errors.New(errors.ErrCodeUnauthorized, "invalid authorization header format")
	}
	return p.Parse(parts[1])
}

// Parse validates the token (when a secret is configured) and extracts the
// person id claim.
func (p *TokenParser) Parse(token string) (Session, error) {
	claims := jwt.MapClaims{}

	if p.secret != nil {
		_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return p.secret, nil
		})
		if err != nil {
			return Session{}, errors.Wrap(err, errors.ErrCodeUnauthorized, "invalid or expired token")
		}
	} else {
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return Session{}, errors.Wrap(err, errors.ErrCodeUnauthorized, "malformed token")
		}
	}

	personID, err := claimInt64(claims, p.personClaim)
	if err != nil {
		return Session{}, errors.Wrap(err, errors.ErrCodeUnauthorized, "token carries no person id")
	}

	return NewSession(token, personID), nil
}

func claimInt64(claims jwt.MapClaims, name string) (int64, error) {
	raw, ok := claims[name]
	if !ok {
		return 0, fmt.Errorf("claim %q missing", name)
	}
	switch v := raw.(type) {
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("claim %q has unsupported type %T", name, raw)
	}
}
