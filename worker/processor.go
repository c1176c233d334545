package worker

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/Gdheubs/Video-streaming-platform/tasks"
)

// TaskHandler is a function that processes a task payload.
type TaskHandler func(ctx context.Context, payload string) error

// Processor holds registered task handlers and the queue connection.
type Processor struct {
	RDB      *redis.Client
	Log      *logrus.Logger
	handlers map[string]TaskHandler
}

// NewProcessor creates a new worker processor.
func NewProcessor(rdb *redis.Client, log *logrus.Logger) *Processor {
	return &Processor{
		RDB:      rdb,
		Log:      log,
		handlers: make(map[string]TaskHandler),
	}
}

// Register maps a queue name (task type) to a handler function.
func (p *Processor) Register(queueName string, handler TaskHandler) {
	p.handlers[queueName] = handler
	p.Log.WithField("queue", queueName).Info("registered handler")
}

// Enqueue adds a new task to a queue.
func (p *Processor) Enqueue(ctx context.Context, queueName string, payload interface{}) error {
	payloadStr, err := tasks.Marshal(payload)
	if err != nil {
		return err
	}
	return p.RDB.LPush(ctx, queueName, payloadStr).Err()
}

// Listen starts the worker, blocking on all registered queues until the
// context is canceled.
func (p *Processor) Listen(ctx context.Context, queueNames ...string) {
	p.Log.WithField("queues", queueNames).Info("worker listening")

	for {
		// BRPop blocks until a task is available on any of the listed queues.
		result, err := p.RDB.BRPop(ctx, 0, queueNames...).Result()
		if err != nil {
			if ctx.Err() != nil {
				p.Log.Info("worker shutting down")
				return
			}
			p.Log.WithError(err).Error("failed to pop from queue")
			continue
		}

		// result[0] is the queue name, result[1] is the payload
		queueName := result[0]
		payload := result[1]

		handler, ok := p.handlers[queueName]
		if !ok {
			p.Log.WithField("queue", queueName).Error("no handler registered")
			continue
		}

		p.Log.WithField("queue", queueName).Info("received task")

		if err := handler(ctx, payload); err != nil {
			p.Log.WithError(err).WithField("queue", queueName).Error("task failed")
		}
	}
}
