package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/photolabel/internal/models"
)

type JobEventHandler func(ctx context.Context, ev models.JobEvent) error

// EventConsumer reads job lifecycle events, used by the API to feed websocket clients.
type EventConsumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewEventConsumer(natsURL string) (*EventConsumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &EventConsumer{nc: nc, js: js}, nil
}

// ConsumeJobEvents starts a background fetch loop delivering new events to handler
// until ctx is cancelled.
func (c *EventConsumer) ConsumeJobEvents(ctx context.Context, consumerName string, handler JobEventHandler) error {
	stream, err := c.js.Stream(ctx, JobEventsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", JobEventsStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		FilterSubject: JobEventsSubjectBase + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				var ev models.JobEvent
				if err := json.Unmarshal(msg.Data(), &ev); err != nil {
					slog.Warn("drop malformed job event", "subject", msg.Subject(), "error", err)
					_ = msg.Term()
					continue
				}
				if err := handler(ctx, ev); err != nil {
					slog.Error("process job event", "error", err, "image_id", ev.ImageID)
					_ = msg.Nak()
				} else {
					_ = msg.Ack()
				}
			}
		}
	}()

	slog.Info("job event consumer started", "consumer", consumerName)
	return nil
}

func (c *EventConsumer) Close() {
	c.nc.Close()
}
