package session

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/twitter-mcp/internal/identity"
	"github.com/ashureev/twitter-mcp/internal/twitter"
)

type fakeConn struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func (c *fakeConn) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("closed")
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// stubClient satisfies twitter.Client; only identity matters here.
type stubClient struct {
	twitter.Client
	creds identity.Credentials
}

func countingFactory(n *atomic.Int32) twitter.Factory {
	return func(creds identity.Credentials) twitter.Client {
		n.Add(1)
		return &stubClient{creds: creds}
	}
}

func TestRegistryCreateAndLookup(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil, Hooks{})
	conn := &fakeConn{}

	s, err := reg.Create("s1", conn, WithTransport("streamable"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if s.State() != StateAwaitingInit {
		t.Fatalf("expected awaiting_init, got %s", s.State())
	}

	got, ok := reg.Lookup("s1")
	if !ok || got != s {
		t.Fatalf("expected to find session s1")
	}
	if got.Conn() != conn {
		t.Fatalf("expected conn to be bound")
	}
	if got.Transport != "streamable" {
		t.Fatalf("expected transport streamable, got %q", got.Transport)
	}
}

func TestRegistryCreateDuplicateKeepsBinding(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil, Hooks{})
	first := &fakeConn{}
	second := &fakeConn{}

	if _, err := reg.Create("dup", first); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	if _, err := reg.Create("dup", second); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}

	s, _ := reg.Lookup("dup")
	if s.Conn() != first {
		t.Fatal("expected original conn to remain bound")
	}
	if first.isClosed() {
		t.Fatal("expected original conn to stay open")
	}
	if reg.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", reg.Len())
	}
}

func TestRegistryConcurrentCreateSingleWinner(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil, Hooks{})

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := reg.Create("race", &fakeConn{}); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly 1 successful create, got %d", wins.Load())
	}
}

func TestRegistryEvict(t *testing.T) {
	t.Parallel()

	var evicted []string
	var mu sync.Mutex
	reg := NewRegistry(nil, Hooks{OnEvict: func(s *Session) {
		mu.Lock()
		evicted = append(evicted, s.ID)
		mu.Unlock()
	}})
	conn := &fakeConn{}
	s, _ := reg.Create("s1", conn)

	var builds atomic.Int32
	if _, err := s.ClientFor(identity.Credentials{AccessToken: "a", AccessSecret: "b"}, countingFactory(&builds)); err != nil {
		t.Fatalf("ClientFor failed: %v", err)
	}

	if !reg.Evict("s1") {
		t.Fatal("expected eviction to report removal")
	}
	if _, ok := reg.Lookup("s1"); ok {
		t.Fatal("expected session to be gone")
	}
	if s.State() != StateClosed {
		t.Fatalf("expected closed state, got %s", s.State())
	}
	if !conn.isClosed() {
		t.Fatal("expected conn to be closed")
	}
	select {
	case <-s.Done():
	default:
		t.Fatal("expected Done to be closed")
	}
	if _, err := s.ClientFor(identity.Credentials{AccessToken: "a", AccessSecret: "b"}, countingFactory(&builds)); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after eviction, got %v", err)
	}
	if err := s.Send([]byte("{}")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on send, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(evicted) != 1 || evicted[0] != "s1" {
		t.Fatalf("expected OnEvict for s1, got %v", evicted)
	}
}

func TestRegistryEvictUnknownIsNoop(t *testing.T) {
	t.Parallel()

	calls := 0
	reg := NewRegistry(nil, Hooks{OnEvict: func(*Session) { calls++ }})
	if reg.Evict("missing") {
		t.Fatal("expected no removal for unknown id")
	}
	// Twice, to cover the already-evicted path.
	_, _ = reg.Create("s1", &fakeConn{})
	reg.Evict("s1")
	reg.Evict("s1")
	if calls != 1 {
		t.Fatalf("expected 1 OnEvict call, got %d", calls)
	}
}

func TestRegistryIDReusableAfterEvict(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil, Hooks{})
	_, _ = reg.Create("s1", &fakeConn{})
	reg.Evict("s1")
	if _, err := reg.Create("s1", &fakeConn{}); err != nil {
		t.Fatalf("expected id to be free after eviction, got %v", err)
	}
}

func TestRegistryEvictIdle(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil, Hooks{})
	base := time.Unix(1_700_000_000, 0)
	reg.now = func() time.Time { return base }

	stale, _ := reg.Create("stale", &fakeConn{})
	fresh, _ := reg.Create("fresh", &fakeConn{})
	fresh.Touch(base.Add(10 * time.Minute))

	n := reg.EvictIdle(base.Add(5 * time.Minute))
	if n != 1 {
		t.Fatalf("expected 1 idle eviction, got %d", n)
	}
	if stale.State() != StateClosed {
		t.Fatal("expected stale session to be closed")
	}
	if _, ok := reg.Lookup("fresh"); !ok {
		t.Fatal("expected fresh session to survive")
	}
}

func TestRegistryCloseAll(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil, Hooks{})
	conns := make([]*fakeConn, 5)
	for i := range conns {
		conns[i] = &fakeConn{}
		_, _ = reg.Create("s"+strconv.Itoa(i), conns[i])
	}

	if n := reg.CloseAll(); n != 5 {
		t.Fatalf("expected 5 sessions closed, got %d", n)
	}
	if reg.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", reg.Len())
	}
	for i, c := range conns {
		if !c.isClosed() {
			t.Fatalf("expected conn %d closed", i)
		}
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil, Hooks{})
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_, _ = reg.Create("s-"+strconv.Itoa(i), &fakeConn{})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			reg.Lookup("s-" + strconv.Itoa(i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			reg.Evict("s-" + strconv.Itoa(i))
		}
	}()
	wg.Wait()
}

func TestSessionActivate(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil, Hooks{})
	s, _ := reg.Create("s1", &fakeConn{})

	if err := s.Activate(); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if s.State() != StateActive {
		t.Fatalf("expected active, got %s", s.State())
	}
	if err := s.Activate(); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}

	reg.Evict("s1")
	if err := s.Activate(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSessionClientReuse(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil, Hooks{})
	s, _ := reg.Create("s1", &fakeConn{}, WithCredentials(identity.Credentials{AccessToken: "h", AccessSecret: "hs"}))

	if got := s.Credentials(); got.AccessToken != "h" {
		t.Fatalf("expected header credentials, got %+v", got)
	}

	var builds atomic.Int32
	factory := countingFactory(&builds)
	creds := identity.Credentials{AccessToken: "a", AccessSecret: "b"}

	c1, _ := s.ClientFor(creds, factory)
	c2, _ := s.ClientFor(creds, factory)
	if c1 != c2 || builds.Load() != 1 {
		t.Fatalf("expected client reuse, got %d builds", builds.Load())
	}

	c3, _ := s.ClientFor(identity.Credentials{AccessToken: "x", AccessSecret: "y"}, factory)
	if c3 == c1 || builds.Load() != 2 {
		t.Fatalf("expected a new client for new credentials, got %d builds", builds.Load())
	}
}

func TestSessionAlternatingCredentialsKeepClients(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil, Hooks{})
	s, _ := reg.Create("s1", &fakeConn{})

	var builds atomic.Int32
	factory := countingFactory(&builds)
	first := identity.Credentials{AccessToken: "a", AccessSecret: "b"}
	second := identity.Credentials{AccessToken: "x", AccessSecret: "y"}

	c1, _ := s.ClientFor(first, factory)
	c2, _ := s.ClientFor(second, factory)
	for i := 0; i < 5; i++ {
		if got, _ := s.ClientFor(first, factory); got != c1 {
			t.Fatalf("round %d: expected the first pair's client to be kept", i)
		}
		if got, _ := s.ClientFor(second, factory); got != c2 {
			t.Fatalf("round %d: expected the second pair's client to be kept", i)
		}
	}
	if builds.Load() != 2 {
		t.Fatalf("expected 2 builds, got %d", builds.Load())
	}
}

func TestSessionClientCap(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil, Hooks{})
	s, _ := reg.Create("s1", &fakeConn{})

	var builds atomic.Int32
	factory := countingFactory(&builds)
	for i := 0; i < MaxClientsPerSession; i++ {
		creds := identity.Credentials{AccessToken: "t" + strconv.Itoa(i), AccessSecret: "s"}
		if _, err := s.ClientFor(creds, factory); err != nil {
			t.Fatalf("ClientFor %d failed: %v", i, err)
		}
	}
	extra := identity.Credentials{AccessToken: "extra", AccessSecret: "s"}
	if _, err := s.ClientFor(extra, factory); !errors.Is(err, ErrTooManyClients) {
		t.Fatalf("expected ErrTooManyClients, got %v", err)
	}
	if _, err := s.ClientFor(identity.Credentials{AccessToken: "t0", AccessSecret: "s"}, factory); err != nil {
		t.Fatalf("expected a known pair to still resolve, got %v", err)
	}
	if int(builds.Load()) != MaxClientsPerSession {
		t.Fatalf("expected %d builds, got %d", MaxClientsPerSession, builds.Load())
	}
}

func TestIdleSweeperEvicts(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil, Hooks{})
	s, _ := reg.Create("s1", &fakeConn{})
	s.Touch(time.Now().Add(-time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartIdleSweeper(ctx, reg, time.Minute, 10*time.Millisecond)

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expected sweeper to evict idle session")
	}
}
