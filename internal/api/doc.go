// Package api provides the shop REST API client used by the live-order service.
//
// Endpoints:
//   - GET   /api/shop/subscription          subscription socket path for the session
//   - PUT   /api/shop/orders/{id}/status     order status update
//   - GET   /api/shop/orders?date=YYYY-MM-DD orders placed on a day
//   - PATCH /api/shop/menu/items/{slug}      menu item stock/featured flags
//
// Responses with 200/201 (any 2xx) are successes; 401 and 404 are reported as
// *HTTPError with IsUnauthorized/IsNotFound; deadline expiry is ErrRequestTimeout.
package api
