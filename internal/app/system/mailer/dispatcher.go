// internal/app/system/mailer/dispatcher.go
package mailer

import (
	"context"
	"strings"
	"time"

	"github.com/dalemusser/handspm/internal/app/system/metrics"
	"github.com/dalemusser/waffle/pantry/email"
	"go.uber.org/zap"
)

// Dispatcher queues outgoing mail so callers never wait on SMTP. Sending
// and retries are done by the queue's workers.
type Dispatcher struct {
	queue    *email.Queue
	log      *zap.Logger
	capacity int64
	timeout  time.Duration
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Sender *email.Sender
	// Store holds queued mail. Nil means an in-process store.
	Store email.QueueStore
	// Capacity bounds mail waiting to be sent; beyond it Enqueue drops.
	Capacity int
	// Timeout bounds each enqueue and the shutdown wait.
	Timeout time.Duration
	Workers int
}

// NewDispatcher creates a dispatcher over cfg.Store.
func NewDispatcher(cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if cfg.Store == nil {
		cfg.Store = email.NewMemoryQueueStore()
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	q := email.NewQueue(email.QueueConfig{
		Sender:  cfg.Sender,
		Store:   cfg.Store,
		Logger:  logger,
		Workers: cfg.Workers,
		OnSent: func(*email.QueuedEmail) {
			metrics.EmailsSent.WithLabelValues("sent").Inc()
		},
		OnFailed: func(m *email.QueuedEmail, err error) {
			metrics.EmailsSent.WithLabelValues("failed").Inc()
			logger.Warn("email send failed",
				zap.String("id", m.ID),
				zap.Strings("to", m.Message.To),
				zap.Int("attempts", m.Attempts),
				zap.Error(err))
		},
	})
	return &Dispatcher{
		queue:    q,
		log:      logger,
		capacity: int64(cfg.Capacity),
		timeout:  cfg.Timeout,
	}
}

// Enqueue queues e without waiting for delivery. It reports false when
// the recipient is blank, the backlog is full or the store rejected the
// message.
func (d *Dispatcher) Enqueue(e Email) bool {
	if strings.TrimSpace(e.To) == "" {
		d.log.Warn("email without recipient dropped", zap.String("subject", e.Subject))
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if n, err := d.Backlog(ctx); err == nil && n >= d.capacity {
		metrics.EmailsSent.WithLabelValues("dropped").Inc()
		d.log.Warn("email queue full, dropping message", zap.String("to", e.To), zap.Int64("backlog", n))
		return false
	}

	id, err := d.queue.EnqueueMessage(ctx, e.message())
	if err != nil {
		metrics.EmailsSent.WithLabelValues("dropped").Inc()
		d.log.Warn("email enqueue failed", zap.String("to", e.To), zap.Error(err))
		return false
	}
	d.log.Debug("email queued", zap.String("id", id), zap.String("to", e.To))
	return true
}

// Backlog counts mail not yet sent or given up on.
func (d *Dispatcher) Backlog(ctx context.Context) (int64, error) {
	st, err := d.queue.Stats(ctx)
	if err != nil {
		return 0, err
	}
	return st.Pending + st.Scheduled + st.Sending, nil
}

// Start begins the send workers.
func (d *Dispatcher) Start() {
	d.queue.Start()
	d.log.Info("mail dispatcher started", zap.Int64("capacity", d.capacity))
}

// Stop waits for in-flight sends. Mail still pending stays in the store;
// a Redis store hands it to the next process.
func (d *Dispatcher) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.queue.Stop(ctx); err != nil {
		d.log.Warn("mail dispatcher stop", zap.Error(err))
	}
}
