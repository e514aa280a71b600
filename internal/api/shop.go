package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tacoza/seller-live/internal/model"
)

// SubscriptionResponse is the body of GET /api/shop/subscription.
type SubscriptionResponse struct {
	SubscriptionURL string `json:"subscription_url"`
}

// StatusUpdate is the body of an order status update.
type StatusUpdate struct {
	Status model.RemoteStatus `json:"status"`
}

// OrdersResponse is the body of GET /api/shop/orders.
type OrdersResponse struct {
	Orders []model.Order `json:"orders"`
}

// UnmarshalJSON accepts both {"orders": [...]} and a bare array.
func (r *OrdersResponse) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &r.Orders)
	}

	type plain OrdersResponse
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = OrdersResponse(p)
	return nil
}

// MenuItemPatch updates menu item flags. Nil fields are left unchanged.
type MenuItemPatch struct {
	Slug     string `json:"slug"`
	InStock  *bool  `json:"in_stock,omitempty"`
	Featured *bool  `json:"featured,omitempty"`
}

// GetSubscriptionURL returns the subscription socket path for the session.
// An empty path means the session has no live subscription.
func (c *Client) GetSubscriptionURL(ctx context.Context) (string, error) {
	var resp SubscriptionResponse
	if err := c.get(ctx, "/api/shop/subscription", nil, &resp); err != nil {
		return "", fmt.Errorf("get subscription url: %w", err)
	}
	return resp.SubscriptionURL, nil
}

// UpdateOrderStatus sets the remote status of an order. It is never retried.
func (c *Client) UpdateOrderStatus(ctx context.Context, orderID string, status model.RemoteStatus) error {
	path := "/api/shop/orders/" + url.PathEscape(orderID) + "/status"
	if err := c.send(ctx, http.MethodPut, path, StatusUpdate{Status: status}); err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

// GetOrdersByDate fetches the orders placed on the given day (in date's location).
func (c *Client) GetOrdersByDate(ctx context.Context, date time.Time) ([]model.Order, error) {
	query := url.Values{}
	query.Set("date", date.Format(time.DateOnly))

	var resp OrdersResponse
	if err := c.get(ctx, "/api/shop/orders", query, &resp); err != nil {
		return nil, fmt.Errorf("get orders by date: %w", err)
	}
	return resp.Orders, nil
}

// UpdateMenuItem patches a menu item's stock or featured flags.
func (c *Client) UpdateMenuItem(ctx context.Context, patch MenuItemPatch) error {
	if patch.Slug == "" {
		return fmt.Errorf("update menu item: slug is required")
	}
	path := "/api/shop/menu/items/" + url.PathEscape(patch.Slug)
	if err := c.send(ctx, http.MethodPatch, path, patch); err != nil {
		return fmt.Errorf("update menu item: %w", err)
	}
	return nil
}
