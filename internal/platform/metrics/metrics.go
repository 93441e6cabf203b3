package metrics

import (
	"sync/atomic"
	"time"
)

type Collector struct {
	totalRequests   uint64
	errorRequests   uint64
	rateLimited     uint64
	totalDurationMs uint64
	marksAppended   uint64
	receiptsSent    uint64
	receiptsFailed  uint64
}

func New() *Collector {
	return &Collector{}
}

func (c *Collector) Record(status int, duration time.Duration) {
	atomic.AddUint64(&c.totalRequests, 1)
	if status >= 500 {
		atomic.AddUint64(&c.errorRequests, 1)
	}
	if status == 429 {
		atomic.AddUint64(&c.rateLimited, 1)
	}
	atomic.AddUint64(&c.totalDurationMs, uint64(duration.Milliseconds()))
}

func (c *Collector) RecordMark() {
	atomic.AddUint64(&c.marksAppended, 1)
}

func (c *Collector) RecordReceipts(succeeded, failed int) {
	if succeeded > 0 {
		atomic.AddUint64(&c.receiptsSent, uint64(succeeded))
	}
	if failed > 0 {
		atomic.AddUint64(&c.receiptsFailed, uint64(failed))
	}
}

func (c *Collector) Snapshot() map[string]any {
	total := atomic.LoadUint64(&c.totalRequests)
	totalMs := atomic.LoadUint64(&c.totalDurationMs)
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}
	return map[string]any{
		"requestsTotal":       total,
		"errorsTotal":         atomic.LoadUint64(&c.errorRequests),
		"rateLimitedTotal":    atomic.LoadUint64(&c.rateLimited),
		"avgDurationMs":       avg,
		"marksAppendedTotal":  atomic.LoadUint64(&c.marksAppended),
		"receiptsSentTotal":   atomic.LoadUint64(&c.receiptsSent),
		"receiptsFailedTotal": atomic.LoadUint64(&c.receiptsFailed),
	}
}
