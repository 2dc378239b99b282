// Package session tracks live MCP sessions and the per-caller state bound to
// each one.
package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/twitter-mcp/internal/identity"
	"github.com/ashureev/twitter-mcp/internal/twitter"
)

// MaxClientsPerSession caps how many distinct credential pairs one session
// may use.
const MaxClientsPerSession = 16

// State is a session's position in its lifecycle.
type State int32

const (
	StateAwaitingInit State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingInit:
		return "awaiting_init"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	ErrSessionExists      = errors.New("session already exists")
	ErrAlreadyInitialized = errors.New("session already initialized")
	ErrClosed             = errors.New("session closed")
	ErrTooManyClients     = errors.New("too many credential pairs on session")
)

// Conn is the transport of record for a session. Send pushes one
// server-initiated message to the peer.
type Conn interface {
	Send(msg []byte) error
	Close() error
}

// Session is one caller's bound context. It owns exactly one Conn.
type Session struct {
	ID        string
	Transport string
	RemoteIP  string
	CreatedAt time.Time

	conn       Conn
	state      atomic.Int32
	lastActive atomic.Int64

	mu       sync.Mutex
	creds    identity.Credentials
	clients  map[identity.Credentials]twitter.Client
	logLevel string

	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a session at creation.
type Option func(*Session)

// WithTransport names the transport that created the session.
func WithTransport(name string) Option {
	return func(s *Session) { s.Transport = name }
}

// WithCredentials binds the token pair supplied at connect time.
func WithCredentials(creds identity.Credentials) Option {
	return func(s *Session) { s.creds = creds }
}

// WithRemoteIP records the peer address for auditing.
func WithRemoteIP(ip string) Option {
	return func(s *Session) { s.RemoteIP = ip }
}

func newSession(id string, conn Conn, now time.Time, opts ...Option) *Session {
	s := &Session{
		ID:        id,
		CreatedAt: now,
		conn:      conn,
		done:      make(chan struct{}),
	}
	s.lastActive.Store(now.UnixNano())
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SessionID returns s.ID.
func (s *Session) SessionID() string { return s.ID }

// Conn returns the session's transport of record.
func (s *Session) Conn() Conn { return s.conn }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Activate moves an awaiting session to active.
func (s *Session) Activate() error {
	if s.state.CompareAndSwap(int32(StateAwaitingInit), int32(StateActive)) {
		return nil
	}
	if s.State() == StateClosed {
		return ErrClosed
	}
	return ErrAlreadyInitialized
}

// Done is closed when the session is evicted.
func (s *Session) Done() <-chan struct{} { return s.done }

// Touch marks the session as used at now.
func (s *Session) Touch(now time.Time) { s.lastActive.Store(now.UnixNano()) }

// LastActive returns when the session was last used.
func (s *Session) LastActive() time.Time { return time.Unix(0, s.lastActive.Load()) }

// Credentials returns the token pair bound at connect time, if any.
func (s *Session) Credentials() identity.Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds
}

// ClientFor returns the session's client for creds, building one with build
// the first time a pair is seen. Each pair keeps its own client, and with it
// its pacing state and cached identity, for the life of the session.
func (s *Session) ClientFor(creds identity.Credentials, build twitter.Factory) (twitter.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == StateClosed {
		return nil, ErrClosed
	}
	if c, ok := s.clients[creds]; ok {
		return c, nil
	}
	if len(s.clients) >= MaxClientsPerSession {
		return nil, ErrTooManyClients
	}
	if s.clients == nil {
		s.clients = make(map[identity.Credentials]twitter.Client)
	}
	c := build(creds)
	s.clients[creds] = c
	return c, nil
}

// SetLogLevel records the minimum level the peer asked to be notified at.
func (s *Session) SetLogLevel(level string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logLevel = level
}

// LogLevel returns the level set by the peer, or "" when it never asked.
func (s *Session) LogLevel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logLevel
}

// Send pushes msg through the session's Conn.
func (s *Session) Send(msg []byte) error {
	if s.State() == StateClosed {
		return ErrClosed
	}
	return s.conn.Send(msg)
}

// release closes the session. Safe to call more than once.
func (s *Session) release() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))

		s.mu.Lock()
		s.clients = nil
		s.creds = identity.Credentials{}
		s.mu.Unlock()

		close(s.done)
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}
