package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"masterhand/internal/models"

	"github.com/rs/zerolog"
)

// Deliverer sends one notification to its recipient.
type Deliverer interface {
	Deliver(ctx context.Context, n models.Notification) error
}

// ErrPermanent marks a delivery error that retrying cannot fix.
var ErrPermanent = errors.New("permanent delivery failure")

type notificationTask struct {
	n       models.Notification
	attempt int
}

// NotificationWorker queues notifications and delivers them in the background
// with exponential backoff. Notify never blocks the caller.
type NotificationWorker struct {
	deliverer   Deliverer
	retryPolicy RetryPolicy
	queue       chan notificationTask
	logger      *zerolog.Logger
	wg          sync.WaitGroup
	sleep       func(ctx context.Context, d time.Duration) bool
}

func NewNotificationWorker(deliverer Deliverer, queueSize int, retry RetryPolicy, logger *zerolog.Logger) *NotificationWorker {
	if queueSize <= 0 {
		queueSize = 128
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "notification_worker").Logger()

	return &NotificationWorker{
		deliverer:   deliverer,
		retryPolicy: retry.withDefaults(),
		queue:       make(chan notificationTask, queueSize),
		logger:      &l,
		sleep:       sleepCtx,
	}
}

// Notify enqueues a notification. A full queue drops the message with a warning.
func (w *NotificationWorker) Notify(_ context.Context, n models.Notification) {
	select {
	case w.queue <- notificationTask{n: n}:
	default:
		w.logger.Warn().Int64("user_id", n.UserID).Str("title", n.Title).Msg("notification queue full, message dropped")
	}
}

// Start launches the delivery loop; it returns once ctx is done and the loop exits.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.logger.Info().Msg("started")
		defer w.logger.Info().Msg("stopped")

		for {
			select {
			case <-ctx.Done():
				return
			case task := <-w.queue:
				w.process(ctx, task)
			}
		}
	}()
}

// Wait blocks until the loop started by Start has exited.
func (w *NotificationWorker) Wait() {
	w.wg.Wait()
}

func (w *NotificationWorker) process(ctx context.Context, task notificationTask) {
	for {
		task.attempt++
		err := w.deliverer.Deliver(ctx, task.n)
		if err == nil {
			return
		}

		log := w.logger.With().Int64("user_id", task.n.UserID).Int("attempt", task.attempt).Logger()
		if errors.Is(err, ErrPermanent) || task.attempt > w.retryPolicy.MaxRetries {
			log.Error().Err(err).Msg("notification dropped")
			return
		}

		delay := w.retryPolicy.NextDelay(task.attempt)
		log.Warn().Err(err).Dur("retry_in", delay).Msg("notification delivery failed")
		if !w.sleep(ctx, delay) {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
