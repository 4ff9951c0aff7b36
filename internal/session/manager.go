package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/chocolzs/linkura-go/internal/protocol"
	"github.com/chocolzs/linkura-go/internal/transport"
)

var (
	// ErrInvalidCredentials is terminal: the server rejected the stored
	// identity and retrying cannot help.
	ErrInvalidCredentials = errors.New("session: invalid credentials")

	// ErrReauthenticationRequired means no usable credential is cached;
	// the command layer must collect one interactively.
	ErrReauthenticationRequired = errors.New("session: reauthentication required")

	ErrLoginFailed   = errors.New("session: login failed")
	ErrConnectFailed = errors.New("session: account connect failed")
)

// Credential is the durable identity used for automatic login. The device
// specific id is issued once by the account-linking flow; passwords are
// never persisted.
type Credential struct {
	PlayerID         string
	DeviceSpecificID string
}

func (c Credential) CanLogin() bool {
	return strings.TrimSpace(c.PlayerID) != "" && strings.TrimSpace(c.DeviceSpecificID) != ""
}

// Session is the authenticated state enabling protocol exchanges.
type Session struct {
	Token      string
	PlayerID   string
	PlayerName string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// Valid reports whether the session token is still usable at the given
// instant. A zero expiry means the token carried no expiry claim; it is
// trusted until the server rejects it.
func (s *Session) Valid(now time.Time, skew time.Duration) bool {
	if s == nil || s.Token == "" {
		return false
	}
	if s.ExpiresAt.IsZero() {
		return true
	}
	return now.Before(s.ExpiresAt.Add(-skew))
}

// State is the authentication lifecycle position.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateExpired:
		return "expired"
	default:
		return "unauthenticated"
	}
}

// Config tunes the login exchange.
type Config struct {
	ClientVersion string
	ExpirySkew    time.Duration
	LoginAttempts int
	Backoff       BackoffConfig
}

func (c Config) WithDefaults() Config {
	if c.ExpirySkew <= 0 {
		c.ExpirySkew = 30 * time.Second
	}
	if c.LoginAttempts <= 0 {
		c.LoginAttempts = 3
	}
	if c.Backoff.InitialDelay == 0 {
		c.Backoff = DefaultBackoff()
	}
	return c
}

// Manager owns the one mutable Session and serializes every transition.
// Stable reads take the shared lock; a login or refresh runs as a single
// flight that concurrent callers join instead of racing.
type Manager struct {
	cfg     Config
	carrier transport.Carrier
	store   Store

	mu    sync.RWMutex
	cred  Credential
	state State
	sess  *Session

	group singleflight.Group
	rng   *rand.Rand
}

// NewManager loads any persisted session before the first authenticated
// call. A stored record may also supply the credential when the caller has
// none.
func NewManager(cfg Config, carrier transport.Carrier, store Store, cred Credential) *Manager {
	m := &Manager{
		cfg:     cfg.WithDefaults(),
		carrier: carrier,
		store:   store,
		cred:    cred,
		state:   StateUnauthenticated,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if rec, ok := store.Load(); ok {
		if !m.cred.CanLogin() {
			m.cred = Credential{PlayerID: rec.PlayerID, DeviceSpecificID: rec.DeviceSpecificID}
		}
		m.sess = sessionFromRecord(rec)
		m.state = StateAuthenticated
		log.Debug().Str("player_id", rec.PlayerID).Msg("session: restored from token store")
	}
	return m
}

// Credential returns the identity the manager will log in with.
func (m *Manager) Credential() Credential {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cred
}

// State returns the current lifecycle position.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// EnsureAuthenticated returns a valid session, logging in only when
// needed. It is idempotent: while authenticated it performs no network
// round-trip, and concurrent callers during a login share one exchange.
func (m *Manager) EnsureAuthenticated(ctx context.Context) (*Session, error) {
	m.mu.RLock()
	if m.state == StateAuthenticated && m.sess.Valid(time.Now(), m.cfg.ExpirySkew) {
		sess := *m.sess
		m.mu.RUnlock()
		return &sess, nil
	}
	m.mu.RUnlock()

	v, err, _ := m.group.Do("login", func() (any, error) {
		return m.authenticate(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Connect links an account by password and adopts the device-specific id
// the server returns as the manager's credential. The password lives only
// for the duration of this exchange; subsequent logins use the device id.
func (m *Manager) Connect(ctx context.Context, playerID, password string) (Credential, error) {
	if strings.TrimSpace(playerID) == "" || password == "" {
		return Credential{}, fmt.Errorf("%w: player id and password required", ErrConnectFailed)
	}

	body, err := protocol.Encode(0, protocol.ConnectRequest{
		PlayerID:      playerID,
		Password:      password,
		ClientVersion: m.cfg.ClientVersion,
	})
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	resp, err := m.carrier.Exchange(ctx, transport.ExchangeRequest{
		Body:           body,
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		if errors.Is(err, transport.ErrUnauthorized) {
			return Credential{}, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		}
		return Credential{}, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	pkt, err := protocol.DecodeMessage(resp)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	switch msg := pkt.Msg.(type) {
	case protocol.ConnectResponse:
		if strings.TrimSpace(msg.DeviceSpecificID) == "" {
			return Credential{}, fmt.Errorf("%w: empty device_specific_id", ErrConnectFailed)
		}
		cred := Credential{PlayerID: playerID, DeviceSpecificID: msg.DeviceSpecificID}
		m.mu.Lock()
		m.cred = cred
		m.state = StateUnauthenticated
		m.sess = nil
		m.mu.Unlock()
		log.Info().Str("player_id", playerID).Msg("session: account linked")
		return cred, nil
	case protocol.Error:
		if msg.Code == protocol.CodeUnauthorized || msg.Code == protocol.CodeInvalidCredentials {
			return Credential{}, fmt.Errorf("%w: code=%d reason=%q", ErrInvalidCredentials, msg.Code, msg.Reason)
		}
		return Credential{}, fmt.Errorf("%w: code=%d reason=%q", ErrConnectFailed, msg.Code, msg.Reason)
	default:
		return Credential{}, fmt.Errorf("%w: unexpected response %T", ErrConnectFailed, pkt.Msg)
	}
}

// Invalidate marks the session expired if the given token is still the
// current one. A stale token from a request that raced a refresh is a
// no-op.
func (m *Manager) Invalidate(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != nil && m.sess.Token == token && m.state == StateAuthenticated {
		m.state = StateExpired
		log.Debug().Msg("session: token invalidated")
	}
}

func (m *Manager) authenticate(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	if m.state == StateAuthenticated && m.sess.Valid(time.Now(), m.cfg.ExpirySkew) {
		sess := *m.sess
		m.mu.Unlock()
		return &sess, nil
	}
	if !m.cred.CanLogin() {
		m.state = StateUnauthenticated
		m.sess = nil
		m.mu.Unlock()
		return nil, ErrReauthenticationRequired
	}
	m.state = StateAuthenticating
	cred := m.cred
	m.mu.Unlock()

	sess, err := m.login(ctx, cred)
	if err != nil {
		// A failed or cancelled login never leaves a half-authenticated
		// session behind.
		m.mu.Lock()
		m.state = StateUnauthenticated
		m.sess = nil
		m.mu.Unlock()
		return nil, err
	}

	m.mu.Lock()
	m.sess = sess
	m.state = StateAuthenticated
	m.mu.Unlock()

	m.persist(cred, sess)
	out := *sess
	return &out, nil
}

func (m *Manager) login(ctx context.Context, cred Credential) (*Session, error) {
	req := protocol.LoginRequest{
		PlayerID:         cred.PlayerID,
		DeviceSpecificID: cred.DeviceSpecificID,
		ClientVersion:    m.cfg.ClientVersion,
	}
	body, err := protocol.Encode(0, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}

	var lastErr error
	for attempt := 1; attempt <= m.cfg.LoginAttempts; attempt++ {
		resp, err := m.carrier.Exchange(ctx, transport.ExchangeRequest{
			Body:           body,
			IdempotencyKey: uuid.NewString(),
		})
		if err != nil {
			if errors.Is(err, transport.ErrUnauthorized) {
				return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
			}
			if transport.IsTemporary(err) && attempt < m.cfg.LoginAttempts {
				lastErr = err
				log.Warn().Err(err).Int("attempt", attempt).Msg("session: login attempt failed, retrying")
				if err := m.sleepBackoff(ctx, attempt); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrLoginFailed, err)
		}

		pkt, err := protocol.DecodeMessage(resp)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoginFailed, err)
		}
		switch msg := pkt.Msg.(type) {
		case protocol.LoginResponse:
			return m.sessionFromLogin(cred, msg), nil
		case protocol.Error:
			if msg.Code == protocol.CodeUnauthorized || msg.Code == protocol.CodeInvalidCredentials {
				return nil, fmt.Errorf("%w: code=%d reason=%q", ErrInvalidCredentials, msg.Code, msg.Reason)
			}
			if msg.Code == protocol.CodeServerBusy && attempt < m.cfg.LoginAttempts {
				lastErr = fmt.Errorf("server busy: %s", msg.Reason)
				if err := m.sleepBackoff(ctx, attempt); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("%w: code=%d reason=%q", ErrLoginFailed, msg.Code, msg.Reason)
		default:
			return nil, fmt.Errorf("%w: unexpected response %T", ErrLoginFailed, pkt.Msg)
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrLoginFailed, lastErr)
}

func (m *Manager) sessionFromLogin(cred Credential, resp protocol.LoginResponse) *Session {
	sess := &Session{
		Token:      resp.SessionToken,
		PlayerID:   cred.PlayerID,
		PlayerName: resp.PlayerName,
		IssuedAt:   time.Now(),
	}
	if info, err := InspectToken(resp.SessionToken); err == nil {
		if !info.IssuedAt.IsZero() {
			sess.IssuedAt = info.IssuedAt
		}
		sess.ExpiresAt = info.ExpiresAt
	} else {
		log.Debug().Err(err).Msg("session: token is not a readable JWT, expiry tracked server-side")
	}
	log.Info().Str("player_id", cred.PlayerID).Msg("session: authenticated")
	return sess
}

// persist writes the record as soon as the manager is authenticated so a
// crash does not lose a successful login. A store failure is logged but
// does not undo the login.
func (m *Manager) persist(cred Credential, sess *Session) {
	rec := Record{
		PlayerID:         cred.PlayerID,
		DeviceSpecificID: cred.DeviceSpecificID,
		SessionToken:     sess.Token,
		IssuedAt:         sess.IssuedAt,
		ExpiresAt:        sess.ExpiresAt,
		ClientVersion:    m.cfg.ClientVersion,
	}
	if err := m.store.Save(rec); err != nil {
		log.Error().Err(err).Msg("session: failed to persist token store")
	}
}

func (m *Manager) sleepBackoff(ctx context.Context, attempt int) error {
	delay := NextBackoffDelay(m.cfg.Backoff, attempt, m.rng)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func sessionFromRecord(rec Record) *Session {
	return &Session{
		Token:     rec.SessionToken,
		PlayerID:  rec.PlayerID,
		IssuedAt:  rec.IssuedAt,
		ExpiresAt: rec.ExpiresAt,
	}
}
