// Package changefeed turns image row notifications from Postgres into label jobs.
package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/photolabel/internal/models"
	"github.com/your-org/photolabel/internal/observability"
)

// Conn is the part of a dedicated Postgres connection the listener uses.
// *pgx.Conn satisfies it.
type Conn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
}

// Source hands out a dedicated connection and a function that closes it.
type Source interface {
	Acquire(ctx context.Context) (Conn, func(), error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, job models.Job) (string, error)
}

// PoolSource takes a connection out of a pool for the lifetime of a listener.
// The connection is closed, not returned, so LISTEN state never leaks into the pool.
type PoolSource struct {
	Pool *pgxpool.Pool
}

func (s PoolSource) Acquire(ctx context.Context) (Conn, func(), error) {
	pc, err := s.Pool.Acquire(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire listener connection: %w", err)
	}
	conn := pc.Hijack()
	return conn, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		conn.Close(ctx)
	}, nil
}

type Listener struct {
	source      Source
	queue       Enqueuer
	channel     string
	pollTimeout time.Duration

	listening     chan struct{}
	listeningOnce sync.Once
}

func NewListener(source Source, queue Enqueuer, channel string, pollTimeout time.Duration) *Listener {
	if pollTimeout <= 0 {
		pollTimeout = time.Second
	}
	return &Listener{
		source:      source,
		queue:       queue,
		channel:     channel,
		pollTimeout: pollTimeout,
		listening:   make(chan struct{}),
	}
}

// Listening is closed once the first LISTEN has been issued. Rows inserted
// after that produce a notification, so a backfill can safely start.
func (l *Listener) Listening() <-chan struct{} {
	return l.listening
}

// Run listens until ctx is cancelled, returning nil. A connection or enqueue
// failure is returned as is; restarting is up to the caller.
func (l *Listener) Run(ctx context.Context) error {
	conn, closeConn, err := l.source.Acquire(ctx)
	if err != nil {
		return err
	}
	defer closeConn()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", l.channel, err)
	}
	slog.Info("change feed listening", "channel", l.channel)
	l.listeningOnce.Do(func() { close(l.listening) })

	for {
		if ctx.Err() != nil {
			slog.Info("change feed stopped", "channel", l.channel)
			return nil
		}

		waitCtx, cancel := context.WithTimeout(ctx, l.pollTimeout)
		n, err := conn.WaitForNotification(waitCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
				continue
			}
			slog.Error("wait for notification", "error", err, "channel", l.channel)
			return fmt.Errorf("wait for notification: %w", err)
		}

		if err := l.handle(ctx, n.Payload); err != nil {
			slog.Error("enqueue from notification", "error", err)
			return err
		}
	}
}

type notification struct {
	ID       string          `json:"id"`
	BucketID string          `json:"image_bucket_id"`
	Name     string          `json:"image_name"`
	Labels   json.RawMessage `json:"labels"`
}

func (n notification) needsLabels() bool {
	return len(n.Labels) == 0 || string(n.Labels) == "null"
}

func (l *Listener) handle(ctx context.Context, payload string) error {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		slog.Warn("skip malformed notification", "error", err, "payload", payload)
		observability.NotificationsReceived.WithLabelValues("malformed").Inc()
		return nil
	}
	if !n.needsLabels() {
		observability.NotificationsReceived.WithLabelValues("ignored").Inc()
		return nil
	}

	job := models.Job{ImageID: n.ID, BucketID: n.BucketID, ObjectName: n.Name, EnqueuedAt: time.Now()}
	if err := job.Validate(); err != nil {
		slog.Warn("skip malformed notification", "error", err, "payload", payload)
		observability.NotificationsReceived.WithLabelValues("malformed").Inc()
		return nil
	}

	id, err := l.queue.Enqueue(ctx, job)
	if err != nil {
		return fmt.Errorf("enqueue image %s: %w", job.ImageID, err)
	}
	observability.NotificationsReceived.WithLabelValues("enqueued").Inc()
	observability.JobsEnqueued.WithLabelValues("notification").Inc()
	slog.Debug("enqueued label job", "image_id", job.ImageID, "entry_id", id)
	return nil
}
