// Package notify carries the events the live-order core emits for the
// surrounding UI: new order arrivals and failed lane transitions.
//
// The core never renders notifications. It hands events to a Sink; sinks
// forward them to the log, to in-process UI subscribers, or to a broker
// fanout exchange read by kitchen displays and printers. A sink failure is
// logged and counted but never fails the operation that emitted the event.
package notify
