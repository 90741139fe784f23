package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/events"
	"github.com/spec-kit/support-bot/internal/observability"
)

const defaultQueueSize = 256

// NotificationWorker decouples event publishers from delivery. Publish only
// enqueues; Run hands events to the synchronous dispatcher in order.
type NotificationWorker struct {
	sink    events.Dispatcher
	queue   chan queuedEvent
	metrics *observability.Metrics
	logger  *zap.Logger
}

type queuedEvent struct {
	ctx   context.Context
	event events.Event
}

// NewNotificationWorker wraps sink with a bounded queue.
func NewNotificationWorker(sink events.Dispatcher, queueSize int, metrics *observability.Metrics, logger *zap.Logger) *NotificationWorker {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{
		sink:    sink,
		queue:   make(chan queuedEvent, queueSize),
		metrics: metrics,
		logger:  logger,
	}
}

// Publish enqueues event without blocking. When the queue is full the event
// is dropped and counted.
func (w *NotificationWorker) Publish(ctx context.Context, event events.Event) error {
	select {
	case w.queue <- queuedEvent{ctx: context.WithoutCancel(ctx), event: event}:
		return nil
	default:
		w.metrics.RecordNotificationDropped()
		w.logger.Warn("notification queue full; event dropped",
			zap.String("event_type", string(event.Type)),
			zap.Int64("ticket_id", event.TicketID))
		return nil
	}
}

// Subscribe registers handler on the underlying dispatcher.
func (w *NotificationWorker) Subscribe(eventType events.EventType, handler events.EventHandler) {
	w.sink.Subscribe(eventType, handler)
}

// Run drains the queue until ctx is cancelled, then flushes what is left.
func (w *NotificationWorker) Run(ctx context.Context) error {
	for {
		select {
		case item := <-w.queue:
			w.deliver(item)
		case <-ctx.Done():
			w.drain()
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		}
	}
}

// Pending reports the number of queued events.
func (w *NotificationWorker) Pending() int {
	return len(w.queue)
}

func (w *NotificationWorker) drain() {
	for {
		select {
		case item := <-w.queue:
			w.deliver(item)
		default:
			return
		}
	}
}

func (w *NotificationWorker) deliver(item queuedEvent) {
	if err := w.sink.Publish(item.ctx, item.event); err != nil {
		w.logger.Warn("deliver event", zap.String("event_type", string(item.event.Type)), zap.Error(err))
	}
}
