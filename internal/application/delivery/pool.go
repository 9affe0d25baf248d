package delivery

import (
	"context"
	"log/slog"
	"sync"

	"github.com/go-notify-nosql/internal/domain"
	"golang.org/x/sync/errgroup"
)

type dispatcher interface {
	Dispatch(ctx context.Context, n *domain.Notification) Result
}

// Pool runs deliveries off the ingestion path on a fixed set of workers fed
// by a bounded queue.
type Pool struct {
	d       dispatcher
	workers int
	queue   chan *domain.Notification

	mu     sync.RWMutex
	closed bool
	g      *errgroup.Group
}

func NewPool(d dispatcher, workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Pool{d: d, workers: workers, queue: make(chan *domain.Notification, queueSize)}
}

// Start launches the workers. Deliveries run under ctx.
func (p *Pool) Start(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			for n := range p.queue {
				p.d.Dispatch(ctx, n)
			}
			return nil
		})
	}
	p.g = g
}

// Enqueue hands n to the workers without blocking. When the queue is full or
// the pool is shutting down the delivery is dropped and logged.
func (p *Pool) Enqueue(n *domain.Notification) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		slog.Warn("delivery pool closed, dropping notification", "notification_id", n.NotificationID)
		return
	}
	select {
	case p.queue <- n:
	default:
		slog.Warn("delivery queue full, dropping notification", "notification_id", n.NotificationID, "user_id", n.RecipientID)
	}
}

// Shutdown stops accepting work and waits for queued deliveries to finish or
// ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	if p.g == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- p.g.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
