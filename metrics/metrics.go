// Package metrics is the engine's instrumentation seam. Counters track
// payment and entitlement events (purchase_committed, purchase_failed,
// entitlement_expired, auto_renewal_committed, auto_renewal_failed,
// self_transfer_<status>), the latency histogram tracks purchase and
// verification runs, and the entitlement_active gauge mirrors the persisted
// record's active flag.
package metrics

import "time"

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
	SetGauge(name string, value float64, labels map[string]string)
}
