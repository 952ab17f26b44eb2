package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// AuctionMetrics aggregates the Prometheus collectors tracking registry
// activity. Counters are labelled by payment unit ("native" for native-value
// auctions).
type AuctionMetrics struct {
	created      *prometheus.CounterVec
	bidsAccepted *prometheus.CounterVec
	refunds      *prometheus.CounterVec
	settled      *prometheus.CounterVec
	cancelled    *prometheus.CounterVec
	open         prometheus.Gauge
}

var (
	auctionOnce     sync.Once
	auctionRegistry *AuctionMetrics
)

// Auction returns the process-wide auction metrics, registering the
// collectors on first use.
func Auction() *AuctionMetrics {
	auctionOnce.Do(func() {
		auctionRegistry = &AuctionMetrics{
			created: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "auction_created_total",
				Help: "Count of auctions listed by payment unit.",
			}, []string{"unit"}),
			bidsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "auction_bids_accepted_total",
				Help: "Count of admitted bids by payment unit.",
			}, []string{"unit"}),
			refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "auction_refunds_total",
				Help: "Count of escrow refunds issued to displaced or withdrawing bidders.",
			}, []string{"unit"}),
			settled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "auction_settled_total",
				Help: "Count of auctions settled by payment unit.",
			}, []string{"unit"}),
			cancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "auction_cancelled_total",
				Help: "Count of listings withdrawn by the seller before any bid.",
			}, []string{"unit"}),
			open: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "auction_open",
				Help: "Number of live auction records in the registry.",
			}),
		}
		prometheus.MustRegister(
			auctionRegistry.created,
			auctionRegistry.bidsAccepted,
			auctionRegistry.refunds,
			auctionRegistry.settled,
			auctionRegistry.cancelled,
			auctionRegistry.open,
		)
	})
	return auctionRegistry
}

// AuctionCreated records a new listing.
func (m *AuctionMetrics) AuctionCreated(unit string) {
	if m == nil {
		return
	}
	m.created.WithLabelValues(unit).Inc()
	m.open.Inc()
}

// BidAccepted records an admitted bid.
func (m *AuctionMetrics) BidAccepted(unit string) {
	if m == nil {
		return
	}
	m.bidsAccepted.WithLabelValues(unit).Inc()
}

// RefundIssued records a full refund to a displaced or withdrawing bidder.
func (m *AuctionMetrics) RefundIssued(unit string) {
	if m == nil {
		return
	}
	m.refunds.WithLabelValues(unit).Inc()
}

// AuctionSettled records a finalised auction.
func (m *AuctionMetrics) AuctionSettled(unit string) {
	if m == nil {
		return
	}
	m.settled.WithLabelValues(unit).Inc()
	m.open.Dec()
}

// AuctionCancelled records a seller withdrawal before any bid.
func (m *AuctionMetrics) AuctionCancelled(unit string) {
	if m == nil {
		return
	}
	m.cancelled.WithLabelValues(unit).Inc()
	m.open.Dec()
}
