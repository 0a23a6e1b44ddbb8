package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Message is one queued outbound notification.
type Message struct {
	To       string
	Subject  string
	Body     string
	Attempt  int
	Enqueued time.Time
}

// QueueConfig configures the delivery queue.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Suppressed []string
	Logger     *zap.Logger
}

// Queue is a buffered delivery pipeline in front of a Dispatcher. Messages
// to suppressed addresses are dropped; failed sends are retried with a
// bounded attempt count. The queue itself satisfies Dispatcher, so callers
// see only a best-effort send capability.
type Queue struct {
	sender Dispatcher

	workers    int
	bufferSize int
	maxRetries int
	retryDelay time.Duration
	suppressed map[string]struct{}
	logger     *zap.Logger

	messages chan Message
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	started  bool
}

// NewQueue builds the delivery queue around the underlying dispatcher.
func NewQueue(sender Dispatcher, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 16
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	suppressed := make(map[string]struct{}, len(cfg.Suppressed))
	for _, addr := range cfg.Suppressed {
		suppressed[strings.ToLower(addr)] = struct{}{}
	}

	return &Queue{
		sender:     sender,
		workers:    cfg.Workers,
		bufferSize: cfg.BufferSize,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		suppressed: suppressed,
		logger:     cfg.Logger,
		messages:   make(chan Message, cfg.BufferSize),
	}
}

// Start begins worker consumption. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.started = true
	q.logger.Sugar().Infow("notification queue started", "workers", q.workers)
}

// Stop cancels workers and waits for them to exit.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Sugar().Infow("notification queue stopped")
}

// Send enqueues a message for delivery. Suppressed recipients are dropped
// silently; a full buffer or stopped queue returns an error the caller is
// expected to treat as non-fatal.
func (q *Queue) Send(_ context.Context, to, subject, body string) error {
	return q.enqueue(Message{To: to, Subject: subject, Body: body})
}

func (q *Queue) enqueue(msg Message) error {
	q.mu.Lock()
	ctx := q.ctx
	started := q.started
	q.mu.Unlock()

	if !started {
		return fmt.Errorf("notification queue not started")
	}
	if q.isSuppressed(msg.To) {
		q.logger.Sugar().Debugw("recipient suppressed", "to", msg.To)
		return nil
	}
	if msg.Enqueued.IsZero() {
		msg.Enqueued = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("notification queue stopped: %w", ctx.Err())
	case q.messages <- msg:
		return nil
	}
}

func (q *Queue) isSuppressed(addr string) bool {
	_, ok := q.suppressed[strings.ToLower(addr)]
	return ok
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case msg := <-q.messages:
			if err := q.sender.Send(q.ctx, msg.To, msg.Subject, msg.Body); err != nil {
				q.handleFailure(msg, err)
			}
		}
	}
}

func (q *Queue) handleFailure(msg Message, err error) {
	msg.Attempt++
	if msg.Attempt > q.maxRetries {
		q.logger.Sugar().Errorw("notification exceeded retries", "to", msg.To, "subject", msg.Subject, "error", err)
		return
	}
	q.logger.Sugar().Warnw("notification failed, retrying", "to", msg.To, "attempt", msg.Attempt, "error", err)

	go func(m Message) {
		timer := time.NewTimer(q.retryDelay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			return
		case <-timer.C:
			if err := q.enqueue(m); err != nil {
				q.logger.Sugar().Errorw("failed to requeue notification", "to", m.To, "error", err)
			}
		}
	}(msg)
}
