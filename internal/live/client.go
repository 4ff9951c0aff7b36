// Package live captures the raw frame stream of a live session. The client
// dials the pod named by the connect token, walks the join handshake, answers
// keepalives, and appends every complete frame to a capture file.
package live

import (
	"bufio"
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	mrand "math/rand"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chocolzs/linkura-go/internal/protocol"
	"github.com/chocolzs/linkura-go/internal/session"
)

var (
	ErrHostRequired   = errors.New("live: pod host required")
	ErrRoomRequired   = errors.New("live: room id required")
	ErrNoPodClaim     = errors.New("live: connect token carries no pod claim")
	ErrQuietChannel   = errors.New("live: no data within quiet timeout")
	ErrUnexpectedFlow = errors.New("live: unexpected handshake packet")
)

// errStreamEnd signals a deliberate server-side close. Capture treats it as
// a clean end of the run, not a failure.
var errStreamEnd = errors.New("live: server closed the stream")

type Config struct {
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// QuietTimeout bounds the silence between frames. The server keepalives
	// roughly every ten seconds, so the default leaves room for jitter.
	QuietTimeout       time.Duration
	MaxConnectAttempts int
	ReadChunk          int
	DataDir            string
	Backoff            session.BackoffConfig
}

func (c Config) WithDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.QuietTimeout <= 0 {
		c.QuietTimeout = 20 * time.Second
	}
	if c.MaxConnectAttempts <= 0 {
		c.MaxConnectAttempts = 5
	}
	if c.ReadChunk <= 0 {
		c.ReadChunk = 4096
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "data"
	}
	if c.Backoff.InitialDelay == 0 {
		c.Backoff = session.DefaultBackoff()
	}
	return c
}

// ConnectionInfo names the pod endpoint and room to join.
type ConnectionInfo struct {
	Host     string
	Port     uint16
	RoomID   uint32
	PlayerID uint16
}

// InfoFromToken derives the pod endpoint and room from a live connect token.
func InfoFromToken(token string, playerID uint16) (ConnectionInfo, error) {
	info, err := session.InspectToken(token)
	if err != nil {
		return ConnectionInfo{}, err
	}
	if info.Pod == nil {
		return ConnectionInfo{}, ErrNoPodClaim
	}
	roomID, err := strconv.ParseUint(info.RoomID, 10, 32)
	if err != nil {
		return ConnectionInfo{}, fmt.Errorf("live: parse room id %q: %w", info.RoomID, err)
	}
	return ConnectionInfo{
		Host:     info.Pod.Address,
		Port:     info.Pod.Port,
		RoomID:   uint32(roomID),
		PlayerID: playerID,
	}, nil
}

type Client struct {
	cfg  Config
	info ConnectionInfo
	rng  *mrand.Rand
}

func NewClient(info ConnectionInfo, cfg Config) (*Client, error) {
	if strings.TrimSpace(info.Host) == "" {
		return nil, ErrHostRequired
	}
	if info.RoomID == 0 {
		return nil, ErrRoomRequired
	}
	return &Client{
		cfg:  cfg.WithDefaults(),
		info: info,
		rng:  mrand.New(mrand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Capture dials the pod and records frames until the server closes the
// stream or ctx is cancelled. Connection failures and quiet channels are
// retried with backoff up to MaxConnectAttempts; a server-initiated close
// ends the capture cleanly.
func (c *Client) Capture(ctx context.Context) error {
	if err := os.MkdirAll(c.cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("live: create data directory: %w", err)
	}

	addr := net.JoinHostPort(c.info.Host, strconv.Itoa(int(c.info.Port)))
	var attempt int
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempt++

		conn, err := c.dial(ctx, addr)
		if err != nil {
			log.Warn().Int("attempt", attempt).Str("addr", addr).Err(err).Msg("live: dial failed")
			if !c.shouldRetry(attempt) {
				return err
			}
			if err := c.sleepBackoff(ctx, attempt); err != nil {
				return err
			}
			continue
		}

		err = c.run(ctx, conn)
		if err == nil || errors.Is(err, errStreamEnd) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Int("attempt", attempt).Err(err).Msg("live: connection lost")
		if !c.shouldRetry(attempt) {
			return err
		}
		if err := c.sleepBackoff(ctx, attempt); err != nil {
			return err
		}
	}
}

func (c *Client) dial(ctx context.Context, addr string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	return dialer.DialContext(ctx, "tcp", addr)
}

func (c *Client) shouldRetry(attempt int) bool {
	return attempt < c.cfg.MaxConnectAttempts
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	delay := session.NextBackoffDelay(c.cfg.Backoff, attempt, c.rng)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// run owns one connection: handshake, capture, keepalive. The capture file
// is opened before the first read and flushed and closed on every exit path.
func (c *Client) run(ctx context.Context, conn net.Conn) error {
	defer conn.Close()

	// Unblock reads when ctx is cancelled mid-wait.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.SetDeadline(time.Now())
		case <-watchDone:
		}
	}()

	path := filepath.Join(c.cfg.DataDir, fmt.Sprintf("capture_%d.bin", time.Now().Unix()))
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("live: create capture file: %w", err)
	}
	out := bufio.NewWriter(file)
	defer func() {
		if err := out.Flush(); err != nil {
			log.Error().Str("path", path).Err(err).Msg("live: flush capture file")
		}
		if err := file.Close(); err != nil {
			log.Error().Str("path", path).Err(err).Msg("live: close capture file")
		}
	}()
	log.Info().Str("path", path).Uint32("room_id", c.info.RoomID).Msg("live: capture started")

	sess := &captureSession{
		conn:  conn,
		cfg:   c.cfg,
		info:  c.info,
		state: TypeVersionCheck,
	}

	buf := make([]byte, 0, c.cfg.ReadChunk)
	chunk := make([]byte, c.cfg.ReadChunk)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := conn.SetReadDeadline(time.Now().Add(c.cfg.QuietTimeout)); err != nil {
			return err
		}
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			for {
				pkt, consumed, decodeErr := decodePacket(buf)
				if errors.Is(decodeErr, protocol.ErrShortBuffer) {
					break
				}
				if decodeErr != nil {
					return decodeErr
				}
				if _, werr := out.Write(buf[:consumed]); werr != nil {
					return fmt.Errorf("live: write capture file: %w", werr)
				}
				buf = append(buf[:0], buf[consumed:]...)
				if herr := sess.handle(pkt); herr != nil {
					return herr
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Info().Msg("live: connection closed by server")
				return errStreamEnd
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				return fmt.Errorf("%w: %s", ErrQuietChannel, c.cfg.QuietTimeout)
			}
			return fmt.Errorf("live: read: %w", err)
		}
	}
}

// captureSession tracks the handshake state for one connection. The server
// drives the flow: it pushes the version check, answers the key exchange,
// then streams room data and keepalive requests.
type captureSession struct {
	conn    net.Conn
	cfg     Config
	info    ConnectionInfo
	state   PacketType
	nextSeq uint32
}

func (s *captureSession) handle(pkt Packet) error {
	log.Debug().Stringer("type", pkt.Type).Uint32("seq", pkt.Sequence).
		Int("payload_len", len(pkt.Payload)).Msg("live: frame")

	switch pkt.Type {
	case TypeVersionCheck:
		if s.state != TypeVersionCheck {
			return fmt.Errorf("%w: version check in state %s", ErrUnexpectedFlow, s.state)
		}
		if err := s.send(versionCheckPacket(s.seq())); err != nil {
			return err
		}
		key, err := ecdh.P256().GenerateKey(rand.Reader)
		if err != nil {
			return fmt.Errorf("live: generate exchange key: %w", err)
		}
		if err := s.send(keyExchangePacket(s.seq(), key.PublicKey().Bytes())); err != nil {
			return err
		}
		s.state = TypeKeyExchangeRequest
	case TypeKeyExchangeResponse:
		if s.state != TypeKeyExchangeRequest {
			return fmt.Errorf("%w: key exchange response in state %s", ErrUnexpectedFlow, s.state)
		}
		if err := s.send(joinRoomPacket(s.seq(), s.info.RoomID, s.info.PlayerID)); err != nil {
			return err
		}
		s.state = TypeJoinRoom
		log.Info().Uint32("room_id", s.info.RoomID).Msg("live: joined room")
	case TypeKeepAliveRequest:
		return s.send(keepAlivePacket(s.seq()))
	case TypeConnectionClose, TypeCloseHardLimitOver, TypeEnd:
		log.Info().Stringer("type", pkt.Type).Msg("live: close signal from server")
		return errStreamEnd
	default:
		// Room traffic. Already written to the capture file.
	}
	return nil
}

func (s *captureSession) seq() uint32 {
	s.nextSeq++
	return s.nextSeq
}

func (s *captureSession) send(pkt Packet) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return err
	}
	if _, err := s.conn.Write(encodePacket(pkt)); err != nil {
		return fmt.Errorf("live: send %s: %w", pkt.Type, err)
	}
	return nil
}
