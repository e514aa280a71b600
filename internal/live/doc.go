// Package live owns one outlet's live-order session.
//
// A Session wires the order board, the subscription socket, the stream
// feed, the transition coordinator, reconciliation, menu toggles and the
// notification sinks. It is the only owner of the board; everything else
// reaches the board through it.
package live
