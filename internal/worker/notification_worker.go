package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/broadcast"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
)

const deliveryTimeout = 10 * time.Second

// NotificationWorker pushes stored notifications to live channels after the request has returned.
// The queue is bounded; when it is full the notification is dropped from broadcast and stays
// available through the inbox.
type NotificationWorker struct {
	channel broadcast.Broadcaster
	queue   chan domain.Notification
	logger  *zap.Logger
	metrics *observability.Metrics

	once sync.Once
	wg   sync.WaitGroup
	stop chan struct{}
}

// NewNotificationWorker creates a worker with the given queue size.
func NewNotificationWorker(channel broadcast.Broadcaster, queueSize int, logger *zap.Logger, metrics *observability.Metrics) *NotificationWorker {
	if queueSize <= 0 {
		queueSize = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{
		channel: channel,
		queue:   make(chan domain.Notification, queueSize),
		logger:  logger,
		metrics: metrics,
		stop:    make(chan struct{}),
	}
}

// Register subscribes the worker to notification events.
func (w *NotificationWorker) Register(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	dispatcher.Subscribe(events.EventNotificationCreated, w.enqueue)
}

func (w *NotificationWorker) enqueue(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.NotificationCreatedPayload)
	if !ok {
		return nil
	}
	select {
	case w.queue <- payload.Notification:
	default:
		w.logger.Warn("notification queue full, broadcast skipped",
			zap.String("concern", "broadcast"),
			zap.String("notification_id", payload.Notification.ID))
		w.metrics.RecordSideEffectFailure("broadcast")
	}
	return nil
}

// Start launches the delivery loop.
func (w *NotificationWorker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case n := <-w.queue:
				w.deliver(n)
			case <-w.stop:
				w.drain()
				return
			}
		}
	}()
}

// Stop delivers what is already queued and waits for the loop to exit.
func (w *NotificationWorker) Stop() {
	w.once.Do(func() { close(w.stop) })
	w.wg.Wait()
}

func (w *NotificationWorker) drain() {
	for {
		select {
		case n := <-w.queue:
			w.deliver(n)
		default:
			return
		}
	}
}

func (w *NotificationWorker) deliver(n domain.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()
	if err := w.channel.Broadcast(ctx, n); err != nil {
		w.logger.Error("notification broadcast failed",
			zap.String("concern", "broadcast"),
			zap.String("notification_id", n.ID),
			zap.String("user_id", n.UserID),
			zap.Error(err))
		w.metrics.RecordSideEffectFailure("broadcast")
	}
}
