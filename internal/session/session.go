// Package session implements the cookie-backed session collaborator.
//
// The resolution engine never interprets session contents: it decodes the
// cookie into an opaque key-value bag, hands the bag to dynamic handlers,
// and re-encodes it when a handler changed something. Encoding and
// authentication are delegated to gorilla/securecookie with a JSON
// serializer.
package session

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"

	"github.com/conneroisu/routefs/internal/config"
	"github.com/conneroisu/routefs/internal/logging"
)

// Session is one request's session data. It is per-request and not shared;
// concurrent access is not a concern.
type Session struct {
	// ID identifies the session across requests.
	ID string

	values map[string]interface{}
	dirty  bool
	fresh  bool
}

// newSession creates an empty session with a random ID.
func newSession() *Session {
	return &Session{
		ID:     uuid.NewString(),
		values: make(map[string]interface{}),
		fresh:  true,
	}
}

// Get returns the value stored under key, or nil.
func (s *Session) Get(key string) interface{} {
	return s.values[key]
}

// Set stores a value and marks the session dirty.
func (s *Session) Set(key string, value interface{}) {
	s.values[key] = value
	s.dirty = true
}

// Delete removes a key and marks the session dirty.
func (s *Session) Delete(key string) {
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.dirty = true
	}
}

// Values returns a copy of the session data.
func (s *Session) Values() map[string]interface{} {
	out := make(map[string]interface{}, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Dirty reports whether the session changed and needs re-encoding.
func (s *Session) Dirty() bool {
	return s.dirty
}

// Fresh reports whether the session was created for this request rather
// than decoded from a cookie.
func (s *Session) Fresh() bool {
	return s.fresh
}

// payload is the wire form of a session.
type payload struct {
	ID     string                 `json:"id"`
	Values map[string]interface{} `json:"values"`
}

// Codec encodes sessions into cookie values and back.
type Codec struct {
	sc     *securecookie.SecureCookie
	cookie string
	logger logging.Logger
}

// NewCodec creates a session codec from configuration. Missing keys are
// replaced with random ones, which invalidates all sessions on restart.
func NewCodec(cfg config.SessionConfig, logger logging.Logger) *Codec {
	if logger == nil {
		logger = logging.NewLogger(logging.DefaultConfig())
	}
	logger = logger.WithComponent("session")

	hashKey := []byte(cfg.HashKey)
	if len(hashKey) == 0 {
		hashKey = securecookie.GenerateRandomKey(32)
		logger.Warn(context.Background(), nil, "no session hash key configured, sessions will not survive restarts")
	}

	var blockKey []byte
	if cfg.BlockKey != "" {
		blockKey = []byte(cfg.BlockKey)
	}

	sc := securecookie.New(hashKey, blockKey)
	sc.SetSerializer(securecookie.JSONEncoder{})

	return &Codec{
		sc:     sc,
		cookie: cfg.Cookie,
		logger: logger,
	}
}

// CookieName returns the configured cookie name.
func (c *Codec) CookieName() string {
	return c.cookie
}

// Decode turns a cookie value into a session. Invalid or tampered cookies
// yield a fresh session rather than an error: a broken session cookie must
// not take down the request.
func (c *Codec) Decode(cookieValue string) *Session {
	if cookieValue == "" {
		return newSession()
	}

	var p payload
	if err := c.sc.Decode(c.cookie, cookieValue, &p); err != nil {
		c.logger.Debug(context.Background(), "session cookie rejected", "error", err.Error())
		return newSession()
	}

	if p.ID == "" {
		return newSession()
	}
	if p.Values == nil {
		p.Values = make(map[string]interface{})
	}

	return &Session{ID: p.ID, values: p.Values}
}

// Encode turns a session into a cookie value.
func (c *Codec) Encode(s *Session) (string, error) {
	return c.sc.Encode(c.cookie, payload{ID: s.ID, Values: s.values})
}

// FromRequest decodes the session cookie on an incoming request.
func (c *Codec) FromRequest(r *http.Request) *Session {
	cookie, err := r.Cookie(c.cookie)
	if err != nil {
		return newSession()
	}
	return c.Decode(cookie.Value)
}

// WriteCookie sets the session cookie on a response.
func (c *Codec) WriteCookie(w http.ResponseWriter, s *Session) error {
	encoded, err := c.Encode(s)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     c.cookie,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
