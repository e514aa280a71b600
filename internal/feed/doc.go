// Package feed turns subscription frames into board orders.
//
// Frames are queued by the socket read loop and processed in arrival order
// by a single worker, so a slow notification sink never stalls the socket.
// Each frame has the shape {"message": Order}. Frames that fail to decode are
// logged, counted and dropped; they never close the channel.
package feed
