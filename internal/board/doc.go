// Package board holds the in-memory order board for one outlet.
//
// The board maps each lane (new, preparing, completed) to an ordered
// sequence of orders. Every order ID lives in at most one lane, moves
// conserve the total count, and insertion order within a lane is kept.
//
// All mutation goes through the Store methods, which are serialized by a
// mutex. Snapshot returns deep copies so readers never observe later
// mutations.
package board
