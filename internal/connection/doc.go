// Package connection implements the live-order subscription socket.
//
// Two layers:
//   - Transport / Channel: one websocket connection that delivers inbound
//     frames in arrival order and reports unexpected closure once
//   - Policy: owns at most one Channel and reopens it with exponential
//     backoff (base 2s, doubled per failed attempt, capped at 60s)
//
// The Policy runs as a single goroutine; channel callbacks and API calls are
// turned into events processed in order by that goroutine.
package connection
