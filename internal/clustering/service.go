package clustering

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/your-org/photolabel/internal/observability"
)

// Service serializes clustering per user. Concurrent requests for the same
// user share one pass; a pass is never interrupted by caller cancellation.
type Service struct {
	engine *Engine
	flight singleflight.Group
}

func NewService(engine *Engine) *Service {
	return &Service{engine: engine}
}

func (s *Service) Cluster(ctx context.Context, userID uuid.UUID) ([]Group, error) {
	passCtx := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(userID.String(), func() (interface{}, error) {
		start := time.Now()
		groups, err := s.engine.Run(passCtx, userID)
		observability.ClusteringDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			slog.Error("clustering pass", "error", err, "user_id", userID)
			return nil, err
		}
		slog.Info("clustering pass complete", "user_id", userID, "groups", len(groups), "duration", time.Since(start))
		return groups, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		groups, _ := res.Val.([]Group)
		return groups, nil
	}
}
