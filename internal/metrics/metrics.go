package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proofport_orders_created_total",
		Help: "Total number of orders successfully created.",
	})

	OrdersBlockedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proofport_orders_blocked_total",
		Help: "Total number of submissions rejected by the risk gate.",
	})

	OrdersExtendedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proofport_orders_extended_total",
		Help: "Total number of successful validity extensions.",
	})

	SweepCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "proofport_sweep_cancelled_total",
		Help: "Total number of past-expiry orders cancelled by the sweeper.",
	})

	ProviderFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "proofport_provider_failures_total",
		Help: "Total number of failed reservation provider calls.",
	},
		[]string{"kind", "op"},
	)
)
