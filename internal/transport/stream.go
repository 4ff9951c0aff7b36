package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/chocolzs/linkura-go/internal/protocol"
)

// StreamConfig bounds the framed TCP stream.
type StreamConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ReadChunk    int
}

func (c StreamConfig) WithDefaults() StreamConfig {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 20 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 15 * time.Second
	}
	if c.ReadChunk <= 0 {
		c.ReadChunk = 4096
	}
	return c
}

// Stream frames a net.Conn: it accumulates received bytes, yields complete
// decoded packets in arrival order, and retains any trailing partial bytes
// for the next read.
type Stream struct {
	cfg  StreamConfig
	conn net.Conn

	readMu  sync.Mutex
	buf     []byte
	writeMu sync.Mutex
	nextSeq uint32
	closed  bool
}

func NewStream(conn net.Conn, cfg StreamConfig) *Stream {
	return &Stream{cfg: cfg.WithDefaults(), conn: conn}
}

// Next returns the next complete packet from the stream. Codec errors are
// returned as-is; I/O failures arrive as *Error.
func (s *Stream) Next(ctx context.Context) (protocol.Packet, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	for {
		pkt, n, err := protocol.Decode(s.buf)
		if err == nil {
			s.buf = append(s.buf[:0], s.buf[n:]...)
			return pkt, nil
		}
		if !errors.Is(err, protocol.ErrShortBuffer) {
			return protocol.Packet{}, err
		}

		if err := s.conn.SetReadDeadline(deadlineFor(ctx, s.cfg.ReadTimeout)); err != nil {
			return protocol.Packet{}, &Error{Op: "read", Err: err}
		}
		chunk := make([]byte, s.cfg.ReadChunk)
		read, err := s.conn.Read(chunk)
		if read > 0 {
			s.buf = append(s.buf, chunk[:read]...)
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return protocol.Packet{}, &Error{Op: "read", Err: io.EOF}
			}
			return protocol.Packet{}, &Error{Op: "read", Temporary: isTemporaryNetErr(err), Err: err}
		}
	}
}

// Send encodes msg with the next sequence number and writes the frame.
func (s *Stream) Send(ctx context.Context, msg protocol.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.nextSeq++
	b, err := protocol.Encode(s.nextSeq, msg)
	if err != nil {
		return err
	}
	if err := s.conn.SetWriteDeadline(deadlineFor(ctx, s.cfg.WriteTimeout)); err != nil {
		return &Error{Op: "write", Err: err}
	}
	if _, err := s.conn.Write(b); err != nil {
		return &Error{Op: "write", Temporary: isTemporaryNetErr(err), Err: err}
	}
	return nil
}

// Buffered reports how many undecoded bytes the stream is holding. Used on
// shutdown to decide whether trailing data needs to be preserved.
func (s *Stream) Buffered() int {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	return len(s.buf)
}

func (s *Stream) Close() error {
	s.writeMu.Lock()
	s.closed = true
	s.writeMu.Unlock()
	return s.conn.Close()
}

// deadlineFor merges the per-operation timeout with any earlier context
// deadline, the same way the per-attempt write/read deadlines compose in a
// retry loop.
func deadlineFor(ctx context.Context, timeout time.Duration) time.Time {
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	return deadline
}
