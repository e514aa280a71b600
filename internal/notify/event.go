package notify

import (
	"encoding/json"
	"time"

	"github.com/tacoza/seller-live/internal/model"
)

// Kind identifies an event type.
type Kind string

const (
	KindNewOrderArrived  Kind = "new_order_arrived"
	KindTransitionFailed Kind = "transition_failed"
)

// Event is a notification emitted by the core.
type Event interface {
	Kind() Kind
	OccurredAt() time.Time
}

// NewOrderArrived is emitted when the stream adds an order to the board.
type NewOrderArrived struct {
	Order model.Order
	At    time.Time
}

func (e NewOrderArrived) Kind() Kind            { return KindNewOrderArrived }
func (e NewOrderArrived) OccurredAt() time.Time { return e.At }

// TransitionFailed is emitted when a status update was rejected and the
// optimistic lane change was reverted.
type TransitionFailed struct {
	OrderID string
	From    model.Lane
	To      model.Lane
	Cause   error
	At      time.Time
}

func (e TransitionFailed) Kind() Kind            { return KindTransitionFailed }
func (e TransitionFailed) OccurredAt() time.Time { return e.At }

// envelope is the wire form of an event.
type envelope struct {
	Type       Kind         `json:"type"`
	OccurredAt time.Time    `json:"occurred_at"`
	Order      *model.Order `json:"order,omitempty"`
	OrderID    string       `json:"order_id,omitempty"`
	From       model.Lane   `json:"from,omitempty"`
	To         model.Lane   `json:"to,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// Encode renders an event as JSON.
func Encode(ev Event) ([]byte, error) {
	env := envelope{Type: ev.Kind(), OccurredAt: ev.OccurredAt().UTC()}

	switch e := ev.(type) {
	case NewOrderArrived:
		o := e.Order
		env.Order = &o
		env.OrderID = o.OrderID
	case TransitionFailed:
		env.OrderID = e.OrderID
		env.From = e.From
		env.To = e.To
		if e.Cause != nil {
			env.Error = e.Cause.Error()
		}
	}

	return json.Marshal(env)
}
