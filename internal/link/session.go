package link

import "sync"

type sessionState int

const (
	stateUnauthed sessionState = iota
	stateAuthing
	stateAuthed
	stateClosed
)

// session is the auth state machine. State changes pulse the changed
// channel so blocked senders re-evaluate; only the auth-response and
// invalidation paths write.
type session struct {
	mu      sync.Mutex
	state   sessionState
	key     string
	changed chan struct{}
}

func newSession() *session {
	return &session{changed: make(chan struct{})}
}

// signal wakes waiters; callers hold s.mu.
func (s *session) signal() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// snapshot returns current state, key, and the channel that closes on
// the next transition.
func (s *session) snapshot() (sessionState, string, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.key, s.changed
}

// currentKey returns the session key, empty unless authenticated.
func (s *session) currentKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateAuthed {
		return ""
	}
	return s.key
}

func (s *session) ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateAuthed
}

// beginAuth atomically moves unauthed -> authing. True means the caller
// won the transition and must issue the AUTH request, exactly once;
// concurrent callers lose and just wait.
func (s *session) beginAuth() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateUnauthed {
		return false
	}
	s.state = stateAuthing
	s.signal()
	return true
}

// setKey installs the token from a successful AUTH reply and releases
// everyone blocked on authentication.
func (s *session) setKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateClosed {
		return
	}
	s.key = key
	s.state = stateAuthed
	s.signal()
}

// invalidate clears the token after a rejected-session response or ban.
func (s *session) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateClosed {
		return
	}
	s.key = ""
	s.state = stateUnauthed
	s.signal()
}

// authExpired undoes an AUTH that did not open a session, whether it
// timed out or was refused, so the sender's gate reissues it instead of
// deadlocking.
func (s *session) authExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateAuthing {
		return
	}
	s.state = stateUnauthed
	s.signal()
}

// close releases all waiters permanently.
func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateClosed {
		return
	}
	s.key = ""
	s.state = stateClosed
	s.signal()
}
