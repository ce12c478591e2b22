package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	OperationEstimate = "estimate"
	OperationSend     = "send"
)

type Collector interface {
	UserOperationCompleted(operation, chain string, err error)
	MeasureOperationDuration(start time.Time, operation, chain string)
	ReceiptPolled(chain string)
}

type DefaultCollector struct {
	userOpCounters    *prometheus.CounterVec
	userOpDurations   *prometheus.HistogramVec
	receiptPollCounts *prometheus.CounterVec
}

// NewCollector registers the app kit metrics on registerer. When registration
// fails the noop collector is returned.
func NewCollector(logger zerolog.Logger, registerer prometheus.Registerer) Collector {
	userOpCounters := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "appkit_user_operations_total",
		Help: "Total number of user operation estimates and sends by outcome",
	}, []string{"operation", "chain", "status"})

	userOpDurations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "appkit_user_operation_duration_seconds",
		Help:    "Duration of user operation estimates and sends",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "chain"})

	receiptPollCounts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "appkit_receipt_polls_total",
		Help: "Total number of eth_getUserOperationReceipt polls",
	}, []string{"chain"})

	metrics := []prometheus.Collector{userOpCounters, userOpDurations, receiptPollCounts}
	if err := registerMetrics(logger, registerer, metrics...); err != nil {
		logger.Info().Msg("using noop collector as metric register failed")
		return NewNoopCollector()
	}

	return &DefaultCollector{
		userOpCounters:    userOpCounters,
		userOpDurations:   userOpDurations,
		receiptPollCounts: receiptPollCounts,
	}
}

func registerMetrics(logger zerolog.Logger, registerer prometheus.Registerer, metrics ...prometheus.Collector) error {
	for _, m := range metrics {
		if err := registerer.Register(m); err != nil {
			logger.Err(err).Msg("failed to register metric")
			return err
		}
	}

	return nil
}

func (c *DefaultCollector) UserOperationCompleted(operation, chain string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.userOpCounters.With(prometheus.Labels{"operation": operation, "chain": chain, "status": status}).Inc()
}

func (c *DefaultCollector) MeasureOperationDuration(start time.Time, operation, chain string) {
	c.userOpDurations.With(prometheus.Labels{"operation": operation, "chain": chain}).Observe(time.Since(start).Seconds())
}

func (c *DefaultCollector) ReceiptPolled(chain string) {
	c.receiptPollCounts.With(prometheus.Labels{"chain": chain}).Inc()
}
