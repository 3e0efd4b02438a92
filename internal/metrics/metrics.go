// Package metrics holds the Prometheus collectors for ledger operations
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LedgerEntries counts appended ledger entries by type
	LedgerEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliate_ledger_entries_total",
			Help: "Ledger entries appended, by entry type",
		},
		[]string{"type"},
	)

	// AdjustmentsDecided counts adjustment decisions by outcome
	AdjustmentsDecided = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliate_adjustments_decided_total",
			Help: "Adjustment requests decided, by decision",
		},
		[]string{"decision"},
	)

	// Refunds counts refund operations
	Refunds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "affiliate_refunds_total",
			Help: "Refund operations, by op (process, cancel)",
		},
		[]string{"op"},
	)

	// SettlementBatches counts settlement batches created
	SettlementBatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "affiliate_settlement_batches_total",
			Help: "Settlement batches created",
		},
	)

	// SettlementConflicts counts batches skipped because another run settled them first
	SettlementConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "affiliate_settlement_conflicts_total",
			Help: "Settlement batches skipped after losing a settle race",
		},
	)

	// QueueDepth is the number of jobs on a queue, by state (pending, failed)
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "affiliate_queue_depth",
			Help: "Jobs waiting on a queue or parked on its dead-letter list",
		},
		[]string{"queue", "state"},
	)

	// NotificationsFailed counts notifications that could not be queued
	NotificationsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "affiliate_notifications_failed_total",
			Help: "Notifications dropped because enqueueing failed",
		},
	)
)

// Handler exposes the default registry for gin
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
