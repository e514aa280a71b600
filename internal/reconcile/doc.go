// Package reconcile repairs the order board from the shop API.
//
// The stream only carries new orders, so anything placed while the socket
// was down would be missing from the board. The Reconciler fetches today's
// orders on a fixed interval and whenever it is triggered (after a
// reconnect), and seeds the board with the orders it does not have yet.
// Orders already on the board are never moved.
package reconcile
