// Package model defines shared data types used across the live-order service.
//
// Wire types mirror the JSON the shop API and the order stream send.
//
// Conventions:
//   - IDs: opaque strings (order_id is never parsed)
//   - Money: decimal amounts as sent by the API (see Amount)
//   - Lanes: fixed display buckets new, preparing, completed
package model
