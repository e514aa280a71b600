package model

import "fmt"

// Lane is one of the fixed status buckets of the order board.
type Lane string

const (
	LaneNew       Lane = "new"
	LanePreparing Lane = "preparing"
	LaneCompleted Lane = "completed"
)

var lanes = [...]Lane{LaneNew, LanePreparing, LaneCompleted}

// Lanes returns the lanes in display order.
func Lanes() []Lane {
	out := make([]Lane, len(lanes))
	copy(out, lanes[:])
	return out
}

// Valid reports whether l is one of the known lanes.
func (l Lane) Valid() bool {
	switch l {
	case LaneNew, LanePreparing, LaneCompleted:
		return true
	}
	return false
}

// ParseLane converts s to a Lane.
func ParseLane(s string) (Lane, error) {
	l := Lane(s)
	if !l.Valid() {
		return "", fmt.Errorf("unknown lane %q", s)
	}
	return l, nil
}

// RemoteStatus is the order status vocabulary of the shop API.
type RemoteStatus string

const (
	StatusPending    RemoteStatus = "pending"
	StatusProcessing RemoteStatus = "processing"
	StatusCompleted  RemoteStatus = "completed"
)

// RemoteStatus maps a lane to the status sent to the API.
func (l Lane) RemoteStatus() RemoteStatus {
	switch l {
	case LaneNew:
		return StatusPending
	case LanePreparing:
		return StatusProcessing
	case LaneCompleted:
		return StatusCompleted
	}
	return ""
}

// LaneForStatus maps an API status back to its lane. Statuses with no lane
// (cancelled, refunded, ...) return false.
func LaneForStatus(s RemoteStatus) (Lane, bool) {
	switch s {
	case StatusPending:
		return LaneNew, true
	case StatusProcessing:
		return LanePreparing, true
	case StatusCompleted:
		return LaneCompleted, true
	}
	return "", false
}
