package notify

import (
	"context"
	"sync"
	"time"

	"auction-engine/internal/metrics"
	"auction-engine/utils"

	"github.com/shopspring/decimal"
)

// Kind names a notification that leaves the engine
type Kind string

const (
	KindOutbid       Kind = "outbid"
	KindEndingSoon   Kind = "ending_soon"
	KindWon          Kind = "won"
	KindAuctionEnded Kind = "auction_ended"
)

// Notification is handed to the external delivery pipeline (e-mail, push, ...)
type Notification struct {
	Kind          Kind             `json:"kind"`
	AuctionID     string           `json:"auction_id"`
	ListingID     string           `json:"listing_id,omitempty"`
	RecipientID   string           `json:"recipient_id,omitempty"`
	PreviousBid   *decimal.Decimal `json:"previous_bid,omitempty"`
	CurrentPrice  *decimal.Decimal `json:"current_price,omitempty"`
	EndTime       *time.Time       `json:"end_time,omitempty"`
	TimeRemaining float64          `json:"time_remaining,omitempty"`
	EndReason     string           `json:"end_reason,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Sink delivers one notification
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

// Dispatcher decouples bidding from delivery with a bounded queue.
// Delivery failures are logged and never reach the caller.
type Dispatcher struct {
	sink    Sink
	timeout time.Duration
	queue   chan Notification

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher starts a dispatcher worker in front of sink
func NewDispatcher(sink Sink, buffer int, timeout time.Duration) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	d := &Dispatcher{
		sink:    sink,
		timeout: timeout,
		queue:   make(chan Notification, buffer),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// Dispatch queues n; it returns false if the queue is full or closed
func (d *Dispatcher) Dispatch(n Notification) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return false
	}
	select {
	case d.queue <- n:
		return true
	default:
		metrics.NotificationsTotal.WithLabelValues(string(n.Kind), "dropped").Inc()
		utils.Warn("notify: queue full, dropping notification", map[string]any{
			"kind":       n.Kind,
			"auction_id": n.AuctionID,
		})
		return false
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for n := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.sink.Send(ctx, n)
		cancel()

		if err != nil {
			metrics.NotificationsTotal.WithLabelValues(string(n.Kind), "failed").Inc()
			utils.Error("notify: delivery failed", map[string]any{
				"kind":         n.Kind,
				"auction_id":   n.AuctionID,
				"recipient_id": n.RecipientID,
				"error":        err.Error(),
			})
			continue
		}
		metrics.NotificationsTotal.WithLabelValues(string(n.Kind), "sent").Inc()
	}
}

// Close stops accepting notifications and flushes the queue
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

// LogSink writes notifications to the structured log; used when no broker is configured
type LogSink struct{}

func (LogSink) Send(_ context.Context, n Notification) error {
	utils.Info("notify: notification", map[string]any{
		"kind":         n.Kind,
		"auction_id":   n.AuctionID,
		"recipient_id": n.RecipientID,
	})
	return nil
}
