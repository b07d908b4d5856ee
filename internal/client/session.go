package client

import "sync"

// Session holds the bearer token of the signed-in user. It is passed explicitly to a Client;
// several clients may share one session.
type Session struct {
	mu     sync.RWMutex
	token  string
	userID string
}

func NewSession(token string) *Session {
	return &Session{token: token}
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

func (s *Session) set(token, userID string) {
	s.mu.Lock()
	s.token, s.userID = token, userID
	s.mu.Unlock()
}

// Clear signs the session out.
func (s *Session) Clear() { s.set("", "") }
