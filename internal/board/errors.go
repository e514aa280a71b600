package board

import (
	"errors"
	"fmt"

	"github.com/tacoza/seller-live/internal/model"
)

var (
	// ErrNotFound is matched by every *NotFoundError.
	ErrNotFound = errors.New("order not found")

	// ErrDuplicateOrder is returned by Ingest when the order ID is already on the board.
	ErrDuplicateOrder = errors.New("order already on board")

	// ErrInvalidOrder is returned for orders without an ID.
	ErrInvalidOrder = errors.New("order has no id")

	// ErrUnknownLane is returned when a lane is not one of the fixed lanes.
	ErrUnknownLane = errors.New("unknown lane")
)

// NotFoundError reports that an order is absent from the lane it was expected in.
type NotFoundError struct {
	OrderID string
	Lane    model.Lane
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("order %s not found in lane %s", e.OrderID, e.Lane)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
