package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Runner is a long-running task such as the change feed listener.
type Runner interface {
	Run(ctx context.Context) error
}

// readySignaler is implemented by runners that report when they are live,
// such as changefeed.Listener after its LISTEN.
type readySignaler interface {
	Listening() <-chan struct{}
}

type SupervisorConfig struct {
	// Listener is optional.
	Listener Runner
	// Backfill, when set, runs once the listener reports it is listening, so
	// rows inserted during the backfill still arrive as notifications.
	Backfill func(ctx context.Context) error
	Pool     *Pool
	// Sweeper is optional; it runs once, concurrently with the pool.
	Sweeper *Sweeper
}

// Supervisor owns the worker process tasks. A failing task cancels the others;
// Wait reports that failure so the process can exit and be restarted.
type Supervisor struct {
	cfg SupervisorConfig

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	return &Supervisor{cfg: cfg}
}

func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.group != nil {
		return errors.New("supervisor already started")
	}

	ctx, s.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	s.group = g

	if s.cfg.Listener != nil {
		g.Go(func() error {
			return s.cfg.Listener.Run(gctx)
		})
	}

	if s.cfg.Backfill != nil {
		g.Go(func() error {
			if r, ok := s.cfg.Listener.(readySignaler); ok {
				select {
				case <-r.Listening():
				case <-gctx.Done():
					return nil
				}
			}
			return s.cfg.Backfill(gctx)
		})
	}

	if s.cfg.Pool != nil {
		g.Go(func() error {
			return s.cfg.Pool.Run(gctx)
		})
	}

	if s.cfg.Sweeper != nil {
		g.Go(func() error {
			_, err := s.cfg.Sweeper.Run(gctx)
			return err
		})
	}

	slog.Info("supervisor started")
	return nil
}

// Stop signals every task to finish. It does not wait; call Wait.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Wait blocks until every task has returned. Shutdown by Stop is not an error.
func (s *Supervisor) Wait() error {
	s.mu.Lock()
	g := s.group
	s.mu.Unlock()
	if g == nil {
		return nil
	}

	err := g.Wait()
	s.Stop()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
