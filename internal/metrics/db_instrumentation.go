package metrics

import (
	"time"
)

// MeasureDBQuery times one persistence operation:
//
//	defer metrics.MeasureDBQuery(m, "insert_payment", "postgres")()
//
// A nil *Metrics is allowed so stores built without a collector (tests,
// the in-memory backend) pay nothing.
func MeasureDBQuery(m *Metrics, operation, backend string) func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.ObserveDBQuery(operation, backend, time.Since(start))
	}
}
