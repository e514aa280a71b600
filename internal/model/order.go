package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// OrderType is how the order is served.
type OrderType string

const (
	OrderTypeDineIn   OrderType = "dine-in"
	OrderTypeTakeaway OrderType = "takeaway"
	OrderTypeDelivery OrderType = "delivery"
)

// PaymentStatus is the payment state reported by the API.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// Order is one customer order as delivered by the stream or the REST API.
type Order struct {
	OrderID       string        `json:"order_id"`
	CreatedAt     time.Time     `json:"created_at"`
	Table         string        `json:"table"`
	OrderType     OrderType     `json:"order_type"`
	User          Customer      `json:"user"`
	Items         []OrderItem   `json:"items"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Total         Amount        `json:"total"`
	Status        RemoteStatus  `json:"status,omitempty"` // Only set by REST listings
}

// OrderItem is one line of an order.
type OrderItem struct {
	FoodItem   FoodItem `json:"food_item"`
	Quantity   int      `json:"quantity"`
	TotalPrice Amount   `json:"totalPrice"`
}

// FoodItem is the menu entry referenced by an order line.
type FoodItem struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Slug     string `json:"slug,omitempty"`
	FoodType string `json:"food_type,omitempty"`
}

// Customer is the user who placed the order. Name is optional.
type Customer struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// DisplayName returns the customer name, or "Guest" for anonymous orders.
func (c Customer) DisplayName() string {
	if c.Name == "" {
		return "Guest"
	}
	return c.Name
}

// ShortID returns the first dash-separated segment of the order ID.
func (o Order) ShortID() string {
	for i := 0; i < len(o.OrderID); i++ {
		if o.OrderID[i] == '-' {
			return o.OrderID[:i]
		}
	}
	return o.OrderID
}

// Clone returns a copy that shares no mutable state with o.
func (o Order) Clone() Order {
	c := o
	if o.Items != nil {
		c.Items = make([]OrderItem, len(o.Items))
		copy(c.Items, o.Items)
	}
	return c
}

// jsonNumber is the JSON number grammar. Amounts are written back out verbatim.
var jsonNumber = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)

// Amount is a decimal money value. The API sends it either as a JSON number
// or as a numeric string; both decode to the same Amount.
type Amount string

// Float returns the amount as a float64 (0 for an empty amount).
func (a Amount) Float() float64 {
	if a == "" {
		return 0
	}
	f, err := strconv.ParseFloat(string(a), 64)
	if err != nil {
		return 0
	}
	return f
}

// UnmarshalJSON accepts numbers, numeric strings and null.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}

	s := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*a = ""
			return nil
		}
	}

	if !jsonNumber.MatchString(s) {
		return fmt.Errorf("invalid amount %q", s)
	}
	*a = Amount(s)
	return nil
}

// MarshalJSON emits the amount as a JSON number.
func (a Amount) MarshalJSON() ([]byte, error) {
	if a == "" {
		return []byte("0"), nil
	}
	if !jsonNumber.MatchString(string(a)) {
		return nil, fmt.Errorf("invalid amount %q", string(a))
	}
	return []byte(a), nil
}
