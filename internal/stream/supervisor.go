package stream

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/redalert-desktop/redalert/internal/alerts"
)

// Opener opens one live stream handle. Both *Manager and the client facade
// satisfy it.
type Opener interface {
	OpenStream(ctx context.Context, onAlert func([]alerts.Alert), onError func(error)) *Handle
}

// OpenStream makes *Manager an Opener
func (m *Manager) OpenStream(ctx context.Context, onAlert func([]alerts.Alert), onError func(error)) *Handle {
	return m.Open(ctx, onAlert, onError)
}

// Supervisor keeps a stream connected by opening a new handle after each
// failure. Retrying is the caller's policy; handles never retry themselves.
type Supervisor struct {
	opener  Opener
	delay   time.Duration
	logger  *zap.Logger
	current atomic.Pointer[Handle]

	connects atomic.Int64
}

// NewSupervisor creates a supervisor that waits delay between attempts
func NewSupervisor(opener Opener, delay time.Duration, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if delay <= 0 {
		delay = time.Second
	}
	return &Supervisor{opener: opener, delay: delay, logger: logger}
}

// Run blocks until ctx is cancelled or the host has no streaming
// capability. onAlert is called from the transport goroutine.
func (s *Supervisor) Run(ctx context.Context, onAlert func([]alerts.Alert)) {
	for {
		h := s.opener.OpenStream(ctx, onAlert, nil)
		if h == nil {
			s.logger.Warn("Live stream disabled, relying on polling")
			return
		}
		s.current.Store(h)
		s.connects.Add(1)

		select {
		case <-ctx.Done():
			h.Close()
			return
		case <-h.Done():
		}

		s.logger.Info("Live stream ended, reconnecting",
			zap.Duration("delay", s.delay),
			zap.Error(h.Err()),
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.delay):
		}
	}
}

// State reports the state of the current handle
func (s *Supervisor) State() State {
	return s.current.Load().State()
}

// Connects returns how many handles have been opened
func (s *Supervisor) Connects() int64 {
	return s.connects.Load()
}
