package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"landledger/internal/domain"
	"landledger/internal/platform/metrics"
)

// PoolConfig bounds pooled session I/O.
type PoolConfig struct {
	// SubmitTimeout is generous: consensus can be slow, and a timed-out
	// submit is ambiguous and the caller must re-query by key, never retry.
	SubmitTimeout time.Duration
	// EvaluateTimeout is short; evaluates are side-effect-free and retryable.
	EvaluateTimeout time.Duration
	// EvaluateRetries caps backoff retries per evaluate call.
	EvaluateRetries uint64
}

func (c *PoolConfig) defaults() {
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = 2 * time.Minute
	}
	if c.EvaluateTimeout <= 0 {
		c.EvaluateTimeout = 5 * time.Second
	}
	if c.EvaluateRetries == 0 {
		c.EvaluateRetries = 3
	}
}

type poolKey struct {
	identity string
	channel  string
}

// Pool keeps one live session per (identity, channel) pair. Reconnecting per
// request is expensive; the pool connects lazily and reuses sessions until
// they break or the pool closes.
type Pool struct {
	gateway Gateway
	cfg     PoolConfig
	metrics *metrics.Metrics

	mu       sync.Mutex
	sessions map[poolKey]*PooledSession
	closed   bool
}

// NewPool builds a session pool over a gateway backend.
func NewPool(gateway Gateway, cfg PoolConfig, m *metrics.Metrics) *Pool {
	cfg.defaults()
	return &Pool{
		gateway:  gateway,
		cfg:      cfg,
		metrics:  m,
		sessions: make(map[poolKey]*PooledSession),
	}
}

// Get returns the pooled session for (identity, channel), connecting if
// needed. Connection failures are not cached; the next Get retries.
func (p *Pool) Get(ctx context.Context, identity domain.Identity, profile domain.NetworkProfile) (*PooledSession, error) {
	key := poolKey{identity: identity.Name, channel: profile.ChannelName}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrSessionClosed
	}
	if s, ok := p.sessions[key]; ok {
		return s, nil
	}

	session, err := p.gateway.Connect(ctx, identity, profile)
	if err != nil {
		return nil, err
	}
	s := &PooledSession{session: session, cfg: p.cfg, evict: func() { p.evict(key) }}
	p.sessions[key] = s
	if p.metrics != nil {
		p.metrics.SessionConnects.Inc()
		p.metrics.SessionsActive.Inc()
	}
	return s, nil
}

func (p *Pool) evict(key poolKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.sessions[key]; ok {
		delete(p.sessions, key)
		if p.metrics != nil {
			p.metrics.SessionsActive.Dec()
		}
	}
}

// Close disconnects every pooled session.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	var firstErr error
	for key, s := range p.sessions {
		if err := s.session.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.sessions, key)
		if p.metrics != nil {
			p.metrics.SessionsActive.Dec()
		}
	}
	return firstErr
}

// PooledSession wraps a backend session with the concurrency and timeout
// discipline the session contract requires: submits serialize, evaluates run
// concurrently with bounded retry.
type PooledSession struct {
	session Session
	cfg     PoolConfig
	evict   func()

	submitMu sync.Mutex
}

// Submit serializes state changes on this session. The submit detaches from
// the caller's cancellation once issued: a submitted transaction's fate is
// independent of the HTTP caller's patience.
func (s *PooledSession) Submit(ctx context.Context, operation string, args ...string) (SubmitResult, error) {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	submitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SubmitTimeout)
	defer cancel()

	result, err := s.session.Submit(submitCtx, operation, args...)
	if err != nil && errors.Is(err, ErrConnection) {
		s.evict()
	}
	return result, err
}

// Evaluate queries committed state with exponential backoff. Not-found is a
// result, not a failure, and is never retried.
func (s *PooledSession) Evaluate(ctx context.Context, query string, args ...string) ([]byte, error) {
	var payload []byte

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.cfg.EvaluateRetries), ctx)

	err := backoff.Retry(func() error {
		evalCtx, cancel := context.WithTimeout(ctx, s.cfg.EvaluateTimeout)
		defer cancel()

		out, err := s.session.Evaluate(evalCtx, query, args...)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return backoff.Permanent(err)
			}
			return err
		}
		payload = out
		return nil
	}, policy)
	if err != nil && errors.Is(err, ErrConnection) {
		s.evict()
	}
	return payload, err
}

// Identity reports the identity this session is bound to.
func (s *PooledSession) Identity() domain.Identity { return s.session.Identity() }

// Channel reports the channel this session is bound to.
func (s *PooledSession) Channel() string { return s.session.Channel() }
