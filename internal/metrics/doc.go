// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Subscription socket state, reconnect attempts and backoff delays
//   - Stream frames received, decode failures and duplicate orders
//   - Lane transitions by outcome and rollback counts
//   - Current order count per board lane
//   - Notification delivery failures per sink
//
// All recording methods are safe to call on a nil *Metrics.
package metrics
