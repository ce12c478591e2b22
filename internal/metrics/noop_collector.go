package metrics

import "time"

// NoopCollector discards every measurement.
type NoopCollector struct{}

func NewNoopCollector() Collector { return &NoopCollector{} }

func (c *NoopCollector) UserOperationCompleted(string, string, error)       {}
func (c *NoopCollector) MeasureOperationDuration(time.Time, string, string) {}
func (c *NoopCollector) ReceiptPolled(string)                               {}
