package models

// Session carries the master password for one client session. It is
// passed explicitly into every engine operation instead of living in
// package-level state, so concurrent sessions and test harnesses do not
// interfere. The password exists only in process memory and is never
// persisted.
type Session struct {
	password string
}

// NewSession wraps a master password. An empty password yields nil,
// which every consumer treats as "no credentials".
func NewSession(password string) *Session {
	if password == "" {
		return nil
	}
	return &Session{password: password}
}

// Password returns the master password.
func (s *Session) Password() string {
	if s == nil {
		return ""
	}
	return s.password
}

// Active reports whether a password is present.
func (s *Session) Active() bool {
	return s != nil && s.password != ""
}
