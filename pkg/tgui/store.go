package tgui

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// TokenStore keeps callback payloads server-side and hands out short opaque
// tokens, since Telegram caps callback_data at 64 bytes. Tokens never contain
// ':' so they survive the scope:action:payload split.
type TokenStore struct {
	mu        sync.Mutex
	ttl       time.Duration
	max       int
	nextSweep time.Time
	m         map[string]tokenEntry
}

type tokenEntry struct {
	b   []byte
	exp time.Time
}

// NewTokenStore returns a store with a 15 minute TTL and a 4096 entry cap.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		ttl: 15 * time.Minute,
		max: 4096,
		m:   map[string]tokenEntry{},
	}
}

// WithTTL overrides the token lifetime.
func (s *TokenStore) WithTTL(ttl time.Duration) *TokenStore {
	if ttl > 0 {
		s.mu.Lock()
		s.ttl = ttl
		s.mu.Unlock()
	}
	return s
}

// PutJSON stores v and returns its token.
func (s *TokenStore) PutJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return s.put(b), nil
}

// GetJSON resolves tok into out. Expired and unknown tokens both report
// not-found.
func (s *TokenStore) GetJSON(tok string, out any) error {
	b, ok := s.get(tok)
	if !ok {
		return errors.New("tgui: token not found")
	}
	return json.Unmarshal(b, out)
}

func (s *TokenStore) put(b []byte) string {
	now := time.Now()
	var buf [6]byte

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(now)

	for {
		_, _ = rand.Read(buf[:])
		tok := "~" + base64.RawURLEncoding.EncodeToString(buf[:])
		if _, exists := s.m[tok]; exists {
			continue
		}
		s.m[tok] = tokenEntry{b: append([]byte(nil), b...), exp: now.Add(s.ttl)}
		s.evictLocked()
		return tok
	}
}

func (s *TokenStore) get(tok string) ([]byte, bool) {
	if tok == "" {
		return nil, false
	}
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[tok]
	if !ok {
		return nil, false
	}
	if now.After(e.exp) {
		delete(s.m, tok)
		return nil, false
	}
	return append([]byte(nil), e.b...), true
}

// sweepLocked drops expired tokens at most once a minute so Put stays O(1)
// in the common case.
func (s *TokenStore) sweepLocked(now time.Time) {
	if now.Before(s.nextSweep) {
		return
	}
	s.nextSweep = now.Add(time.Minute)
	for k, e := range s.m {
		if now.After(e.exp) {
			delete(s.m, k)
		}
	}
}

func (s *TokenStore) evictLocked() {
	over := len(s.m) - s.max
	for k := range s.m {
		if over <= 0 {
			return
		}
		delete(s.m, k)
		over--
	}
}
