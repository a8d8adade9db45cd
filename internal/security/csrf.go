package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrCSRFTokenInvalid = errors.New("csrf token is invalid")
	ErrCSRFTokenExpired = errors.New("csrf token has expired")
)

// CSRFService issues and verifies HMAC-signed anti-forgery tokens bound to a
// session. Tokens are opaque base64 strings of the form sig.session.expiry.
type CSRFService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCSRFService creates a token service with the given signing secret and TTL.
func NewCSRFService(secret string, ttl time.Duration) *CSRFService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CSRFService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue creates a token bound to the given session identifier.
func (s *CSRFService) Issue(sessionID string) string {
	expiry := s.now().Add(s.ttl).Unix()
	payload := fmt.Sprintf("%s.%d", sessionID, expiry)
	sig := s.sign(payload)
	return base64.RawURLEncoding.EncodeToString([]byte(sig + "." + payload))
}

// Verify checks the token signature, session binding and expiry.
func (s *CSRFService) Verify(token, sessionID string) error {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return ErrCSRFTokenInvalid
	}

	parts := strings.SplitN(string(raw), ".", 3)
	if len(parts) != 3 {
		return ErrCSRFTokenInvalid
	}
	sig, session, expiryStr := parts[0], parts[1], parts[2]

	if session != sessionID {
		return ErrCSRFTokenInvalid
	}

	expected := s.sign(session + "." + expiryStr)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return ErrCSRFTokenInvalid
	}

	expiry, err := strconv.ParseInt(expiryStr, 10, 64)
	if err != nil {
		return ErrCSRFTokenInvalid
	}
	if s.now().Unix() > expiry {
		return ErrCSRFTokenExpired
	}
	return nil
}

func (s *CSRFService) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
