package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopflow_orders_created_total",
		Help: "Orders persisted by the order workflow.",
	})

	OrderReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopflow_order_replays_total",
		Help: "Order requests answered from an existing idempotency key.",
	})

	DecrementFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopflow_stock_decrement_failures_total",
		Help: "Line-item stock decrements rejected for insufficient stock.",
	})

	SweepRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopflow_alert_sweeps_total",
		Help: "Completed stock alert sweeps.",
	})

	AlertsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopflow_stock_alerts_sent_total",
		Help: "Stock alert notifications delivered.",
	})

	AlertFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shopflow_stock_alert_failures_total",
		Help: "Stock alert notifications that failed to deliver.",
	})
)
