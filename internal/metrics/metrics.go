package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestDuration tracks request latency by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "path", "status"},
	)

	// BidsTotal counts bid submissions by outcome reason ("accepted" or a rejection reason).
	BidsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_bids_total",
			Help: "Total number of bid submissions by result",
		},
		[]string{"result", "kind"},
	)

	// BidLatency measures time from submission to resolution, queueing included.
	BidLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "auction_bid_duration_seconds",
			Help:    "Bid submission latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
	)

	// SequencerQueueDepth tracks queued operations across all auctions.
	SequencerQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "auction_sequencer_queue_depth",
			Help: "Operations waiting in per-auction queues",
		},
	)

	// SequencerActiveQueues tracks auctions with a live worker.
	SequencerActiveQueues = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "auction_sequencer_active_queues",
			Help: "Auctions with a running sequencer worker",
		},
	)

	// SequencerRejected counts submissions refused for backpressure.
	SequencerRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_sequencer_rejected_total",
			Help: "Operations rejected by the sequencer",
		},
		[]string{"cause"},
	)

	// ExtensionsTotal counts anti-snipe extensions.
	ExtensionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auction_extensions_total",
			Help: "Total number of anti-snipe extensions granted",
		},
	)

	// AuctionsFinalized counts finalized auctions by end reason.
	AuctionsFinalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_finalized_total",
			Help: "Total number of finalized auctions by end reason",
		},
		[]string{"reason"},
	)

	// BroadcastDelivered counts events handed to subscribers.
	BroadcastDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_broadcast_delivered_total",
			Help: "Events delivered to subscriber buffers by type",
		},
		[]string{"type"},
	)

	// BroadcastDropped counts subscribers dropped for being too slow.
	BroadcastDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auction_broadcast_dropped_subscribers_total",
			Help: "Subscribers dropped because their buffer was full",
		},
	)

	// WebsocketConnections tracks open websocket connections.
	WebsocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "auction_websocket_connections",
			Help: "Currently open websocket connections",
		},
	)

	// NotificationsTotal counts notifications by kind and result.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_notifications_total",
			Help: "Notifications dispatched by kind and result",
		},
		[]string{"kind", "result"},
	)
)
