package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chocolzs/linkura-go/internal/protocol"
	"github.com/chocolzs/linkura-go/internal/session"
	"github.com/chocolzs/linkura-go/internal/transport"
)

// Config tunes the orchestrator's resilience policy. Timeouts apply per
// network attempt (inside the carrier), so backoff composes predictably.
type Config struct {
	MaxAttempts int
	Backoff     session.BackoffConfig
}

func (c Config) WithDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff.InitialDelay == 0 {
		c.Backoff = session.DefaultBackoff()
	}
	return c
}

// Orchestrator executes logical operations against an authenticated
// session. Safe for concurrent use.
type Orchestrator struct {
	cfg      Config
	sessions *session.Manager
	carrier  transport.Carrier

	nextSeq atomic.Uint32
	rngMu   sync.Mutex
	rng     *rand.Rand
}

func NewOrchestrator(cfg Config, sessions *session.Manager, carrier transport.Carrier) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg.WithDefaults(),
		sessions: sessions,
		carrier:  carrier,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// requestEnvelope binds an operation to a session token at send time. It
// is only constructable from a live session, so an unauthenticated send is
// unrepresentable.
type requestEnvelope struct {
	op             Operation
	token          string
	idempotencyKey string
	seq            uint32
}

func (o *Orchestrator) newEnvelope(sess *session.Session, op Operation) requestEnvelope {
	return requestEnvelope{
		op:             op,
		token:          sess.Token,
		idempotencyKey: uuid.NewString(),
		seq:            o.nextSeq.Add(1),
	}
}

func (e requestEnvelope) encode() ([]byte, error) {
	return protocol.Encode(e.seq, protocol.DataQuery{Resource: e.op.Resource, Params: e.op.Params})
}

// Execute runs one operation: ensure a session, bind and encode the
// envelope, exchange, decode, and map failures.
//
// Policy: transient transport failures retry up to MaxAttempts with
// backoff; an authorization rejection triggers exactly one
// re-authentication and one resend; structural decode failures never
// retry.
func (o *Orchestrator) Execute(ctx context.Context, op Operation) (*Result, error) {
	transientAttempts := 0
	reauthed := false

	for {
		sess, err := o.sessions.EnsureAuthenticated(ctx)
		if err != nil {
			return nil, &OperationError{Kind: KindAuth, Resource: op.Resource, Err: err}
		}

		env := o.newEnvelope(sess, op)
		body, err := env.encode()
		if err != nil {
			return nil, &OperationError{Kind: KindProtocol, Resource: op.Resource, Err: err}
		}

		resp, err := o.carrier.Exchange(ctx, transport.ExchangeRequest{
			Body:           body,
			SessionToken:   env.token,
			IdempotencyKey: env.idempotencyKey,
		})
		if err != nil {
			if errors.Is(err, transport.ErrUnauthorized) {
				if reauthed {
					return nil, &OperationError{Kind: KindAuth, Resource: op.Resource, Err: err}
				}
				reauthed = true
				o.sessions.Invalidate(env.token)
				log.Debug().Str("resource", op.Resource).Msg("client: token rejected, re-authenticating once")
				continue
			}
			transientAttempts++
			if transport.IsTemporary(err) && transientAttempts < o.cfg.MaxAttempts {
				log.Warn().Err(err).Str("resource", op.Resource).Int("attempt", transientAttempts).
					Msg("client: transient transport failure, retrying")
				if err := o.sleepBackoff(ctx, transientAttempts); err != nil {
					return nil, &OperationError{Kind: KindTransport, Resource: op.Resource, Err: err}
				}
				continue
			}
			return nil, &OperationError{Kind: KindTransport, Resource: op.Resource, Err: err}
		}

		pkt, err := protocol.DecodeMessage(resp)
		if err != nil {
			// A structural decode failure is a protocol mismatch, not
			// transience; resending the same bytes cannot help.
			return nil, &OperationError{Kind: KindProtocol, Resource: op.Resource, Err: err}
		}

		switch msg := pkt.Msg.(type) {
		case protocol.DataResponse:
			return &Result{Resource: msg.Resource, Records: msg.Records}, nil
		case protocol.Error:
			switch {
			case msg.Code == protocol.CodeUnauthorized:
				if reauthed {
					return nil, &OperationError{Kind: KindAuth, Resource: op.Resource,
						Err: fmt.Errorf("still unauthorized after re-authentication: %s", msg.Reason)}
				}
				reauthed = true
				o.sessions.Invalidate(env.token)
				log.Debug().Str("resource", op.Resource).Msg("client: session expired, re-authenticating once")
				continue
			case msg.Code == protocol.CodeServerBusy:
				transientAttempts++
				if transientAttempts < o.cfg.MaxAttempts {
					if err := o.sleepBackoff(ctx, transientAttempts); err != nil {
						return nil, &OperationError{Kind: KindTransport, Resource: op.Resource, Err: err}
					}
					continue
				}
				return nil, &OperationError{Kind: KindRemote, Resource: op.Resource,
					Err: fmt.Errorf("code=%d reason=%q", msg.Code, msg.Reason)}
			default:
				return nil, &OperationError{Kind: KindRemote, Resource: op.Resource,
					Err: fmt.Errorf("code=%d reason=%q", msg.Code, msg.Reason)}
			}
		default:
			return nil, &OperationError{Kind: KindProtocol, Resource: op.Resource,
				Err: fmt.Errorf("unexpected response message %T", pkt.Msg)}
		}
	}
}

func (o *Orchestrator) sleepBackoff(ctx context.Context, attempt int) error {
	o.rngMu.Lock()
	delay := session.NextBackoffDelay(o.cfg.Backoff, attempt, o.rng)
	o.rngMu.Unlock()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
