package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chocolzs/linkura-go/internal/protocol"
	"github.com/chocolzs/linkura-go/internal/testutil/testlog"
	"github.com/chocolzs/linkura-go/internal/transport"
)

type memStore struct {
	mu    sync.Mutex
	rec   Record
	ok    bool
	saves int
}

func (s *memStore) Load() (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec, s.ok
}

func (s *memStore) Save(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = rec
	s.ok = true
	s.saves++
	return nil
}

func (s *memStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = Record{}
	s.ok = false
	return nil
}

type fakeCarrier struct {
	mu      sync.Mutex
	calls   int
	delay   time.Duration
	respond func(call int, req transport.ExchangeRequest) ([]byte, error)
}

func (c *fakeCarrier) Exchange(ctx context.Context, req transport.ExchangeRequest) ([]byte, error) {
	c.mu.Lock()
	c.calls++
	call := c.calls
	c.mu.Unlock()
	if c.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, &transport.Error{Op: "exchange", Err: ctx.Err()}
		case <-time.After(c.delay):
		}
	}
	return c.respond(call, req)
}

func (c *fakeCarrier) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func loginOK(token string) func(int, transport.ExchangeRequest) ([]byte, error) {
	return func(int, transport.ExchangeRequest) ([]byte, error) {
		return protocol.Encode(0, protocol.LoginResponse{SessionToken: token, PlayerName: "player", PlayerLevel: 1})
	}
}

func fastConfig() Config {
	return Config{
		ClientVersion: "3.1.0",
		LoginAttempts: 3,
		Backoff:       BackoffConfig{InitialDelay: time.Millisecond, Multiplier: 1.0},
	}
}

var testCred = Credential{PlayerID: "AAAAAAAAA", DeviceSpecificID: "device-1"}

func TestEnsureAuthenticatedLogsInOnceAndPersists(t *testing.T) {
	testlog.Start(t)
	store := &memStore{}
	carrier := &fakeCarrier{respond: loginOK("tok-1")}
	m := NewManager(fastConfig(), carrier, store, testCred)

	sess, err := m.EnsureAuthenticated(context.Background())
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if sess.Token != "tok-1" || sess.PlayerID != testCred.PlayerID {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if m.State() != StateAuthenticated {
		t.Fatalf("state = %s, want authenticated", m.State())
	}
	if store.saves != 1 || !store.rec.Complete() {
		t.Fatalf("expected one complete persisted record, got saves=%d rec=%+v", store.saves, store.rec)
	}

	// Second call while authenticated: no network round-trip.
	if _, err := m.EnsureAuthenticated(context.Background()); err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if carrier.callCount() != 1 {
		t.Fatalf("expected 1 exchange total, got %d", carrier.callCount())
	}
}

func TestRestoredSessionAvoidsNetwork(t *testing.T) {
	testlog.Start(t)
	store := &memStore{
		rec: Record{PlayerID: "AAAAAAAAA", DeviceSpecificID: "device-1", SessionToken: "tok-stored", IssuedAt: time.Now()},
		ok:  true,
	}
	carrier := &fakeCarrier{respond: loginOK("tok-fresh")}
	m := NewManager(fastConfig(), carrier, store, Credential{})

	sess, err := m.EnsureAuthenticated(context.Background())
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if sess.Token != "tok-stored" {
		t.Fatalf("expected stored token, got %q", sess.Token)
	}
	if carrier.callCount() != 0 {
		t.Fatalf("expected no exchanges, got %d", carrier.callCount())
	}
	if got := m.Credential(); got != (Credential{PlayerID: "AAAAAAAAA", DeviceSpecificID: "device-1"}) {
		t.Fatalf("credential not adopted from record: %+v", got)
	}
}

func TestConcurrentEnsureSharesOneLoginExchange(t *testing.T) {
	testlog.Start(t)
	carrier := &fakeCarrier{delay: 20 * time.Millisecond, respond: loginOK("tok-1")}
	m := NewManager(fastConfig(), carrier, &memStore{}, testCred)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.EnsureAuthenticated(context.Background())
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("goroutine %d: %v", i, err)
		}
	}
	if carrier.callCount() != 1 {
		t.Fatalf("expected 1 login exchange, got %d", carrier.callCount())
	}
}

func TestForcedExpiryMidRunCausesExactlyOneReauthentication(t *testing.T) {
	testlog.Start(t)
	carrier := &fakeCarrier{delay: 10 * time.Millisecond, respond: loginOK("tok-1")}
	m := NewManager(fastConfig(), carrier, &memStore{}, testCred)

	sess, err := m.EnsureAuthenticated(context.Background())
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	m.Invalidate(sess.Token)

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.EnsureAuthenticated(context.Background())
		}()
	}
	wg.Wait()
	if carrier.callCount() != 2 {
		t.Fatalf("expected initial login + exactly one re-authentication, got %d exchanges", carrier.callCount())
	}
}

func TestInvalidCredentialsIsTerminalAndNotRetried(t *testing.T) {
	testlog.Start(t)
	carrier := &fakeCarrier{respond: func(int, transport.ExchangeRequest) ([]byte, error) {
		return protocol.Encode(0, protocol.Error{Code: protocol.CodeInvalidCredentials, Reason: "bad device id"})
	}}
	m := NewManager(fastConfig(), carrier, &memStore{}, testCred)

	_, err := m.EnsureAuthenticated(context.Background())
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if carrier.callCount() != 1 {
		t.Fatalf("invalid credentials must not be retried, got %d exchanges", carrier.callCount())
	}
	if m.State() != StateUnauthenticated {
		t.Fatalf("state = %s, want unauthenticated", m.State())
	}
}

func TestTransientTransportFailuresAreRetried(t *testing.T) {
	testlog.Start(t)
	carrier := &fakeCarrier{respond: func(call int, req transport.ExchangeRequest) ([]byte, error) {
		if call < 3 {
			return nil, &transport.Error{Op: "exchange", Temporary: true, Err: errors.New("connection reset")}
		}
		return loginOK("tok-1")(call, req)
	}}
	m := NewManager(fastConfig(), carrier, &memStore{}, testCred)

	sess, err := m.EnsureAuthenticated(context.Background())
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if sess.Token != "tok-1" {
		t.Fatalf("unexpected token %q", sess.Token)
	}
	if carrier.callCount() != 3 {
		t.Fatalf("expected 3 attempts, got %d", carrier.callCount())
	}
}

func TestTokenOnlyRecordRequiresReauthentication(t *testing.T) {
	testlog.Start(t)
	store := &memStore{
		rec: Record{PlayerID: "AAAAAAAAA", SessionToken: "tok-stored"},
		ok:  true,
	}
	carrier := &fakeCarrier{respond: loginOK("tok-fresh")}
	m := NewManager(fastConfig(), carrier, store, Credential{})

	sess, err := m.EnsureAuthenticated(context.Background())
	if err != nil {
		t.Fatalf("ensure with stored token: %v", err)
	}

	// Token rejected, and there is no device id to re-login with.
	m.Invalidate(sess.Token)
	_, err = m.EnsureAuthenticated(context.Background())
	if !errors.Is(err, ErrReauthenticationRequired) {
		t.Fatalf("expected ErrReauthenticationRequired, got %v", err)
	}
	if carrier.callCount() != 0 {
		t.Fatalf("no login exchange possible without credentials, got %d", carrier.callCount())
	}
}

func TestInvalidateStaleTokenIsNoOp(t *testing.T) {
	testlog.Start(t)
	carrier := &fakeCarrier{respond: loginOK("tok-1")}
	m := NewManager(fastConfig(), carrier, &memStore{}, testCred)

	if _, err := m.EnsureAuthenticated(context.Background()); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	m.Invalidate("tok-older")
	if m.State() != StateAuthenticated {
		t.Fatalf("stale invalidate must not expire the session, state=%s", m.State())
	}
	if _, err := m.EnsureAuthenticated(context.Background()); err != nil {
		t.Fatalf("ensure after stale invalidate: %v", err)
	}
	if carrier.callCount() != 1 {
		t.Fatalf("expected no re-login, got %d exchanges", carrier.callCount())
	}
}

func TestCancelledLoginLeavesUnauthenticated(t *testing.T) {
	testlog.Start(t)
	carrier := &fakeCarrier{delay: time.Second, respond: loginOK("tok-1")}
	m := NewManager(fastConfig(), carrier, &memStore{}, testCred)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := m.EnsureAuthenticated(ctx); err == nil {
		t.Fatalf("expected cancellation error")
	}
	if m.State() != StateUnauthenticated {
		t.Fatalf("cancelled login left state %s, want unauthenticated", m.State())
	}
}

func TestConnectAdoptsDeviceIdentity(t *testing.T) {
	testlog.Start(t)
	carrier := &fakeCarrier{respond: func(call int, req transport.ExchangeRequest) ([]byte, error) {
		pkt, err := protocol.DecodeMessage(req.Body)
		if err != nil {
			return nil, err
		}
		switch msg := pkt.Msg.(type) {
		case protocol.ConnectRequest:
			if msg.Password != "hunter2" {
				t.Errorf("password = %q", msg.Password)
			}
			return protocol.Encode(0, protocol.ConnectResponse{DeviceSpecificID: "device-linked"})
		default:
			return loginOK("tok-1")(call, req)
		}
	}}
	store := &memStore{}
	m := NewManager(fastConfig(), carrier, store, Credential{})

	cred, err := m.Connect(context.Background(), "AAAAAAAAA", "hunter2")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if cred.DeviceSpecificID != "device-linked" {
		t.Fatalf("device id = %q", cred.DeviceSpecificID)
	}

	// The linked credential enables a normal login; the password is gone.
	if _, err := m.EnsureAuthenticated(context.Background()); err != nil {
		t.Fatalf("login after connect: %v", err)
	}
	rec, ok := store.Load()
	if !ok || rec.DeviceSpecificID != "device-linked" {
		t.Fatalf("persisted record = %+v", rec)
	}
}

func TestConnectRejectionIsInvalidCredentials(t *testing.T) {
	testlog.Start(t)
	carrier := &fakeCarrier{respond: func(int, transport.ExchangeRequest) ([]byte, error) {
		return protocol.Encode(0, protocol.Error{Code: protocol.CodeInvalidCredentials, Reason: "wrong password"})
	}}
	m := NewManager(fastConfig(), carrier, &memStore{}, Credential{})

	if _, err := m.Connect(context.Background(), "AAAAAAAAA", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("got %v, want ErrInvalidCredentials", err)
	}
	if m.Credential().CanLogin() {
		t.Fatal("failed connect must not install a credential")
	}
}
