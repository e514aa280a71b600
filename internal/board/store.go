package board

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/tacoza/seller-live/internal/metrics"
	"github.com/tacoza/seller-live/internal/model"
)

// ChangeKind identifies a board mutation.
type ChangeKind string

const (
	ChangeIngested ChangeKind = "ingested"
	ChangeMoved    ChangeKind = "moved"
	ChangeReversed ChangeKind = "reversed"
	ChangeSeeded   ChangeKind = "seeded"
)

// Change describes one mutation. From is empty for ingested and seeded orders.
type Change struct {
	Kind    ChangeKind
	OrderID string
	From    model.Lane
	To      model.Lane
}

// Snapshot is a copy of all lanes at one instant.
type Snapshot struct {
	New       []model.Order `json:"new"`
	Preparing []model.Order `json:"preparing"`
	Completed []model.Order `json:"completed"`
}

// Lane returns the orders of lane l.
func (s Snapshot) Lane(l model.Lane) []model.Order {
	switch l {
	case model.LaneNew:
		return s.New
	case model.LanePreparing:
		return s.Preparing
	case model.LaneCompleted:
		return s.Completed
	}
	return nil
}

// Len returns the number of orders across all lanes.
func (s Snapshot) Len() int {
	return len(s.New) + len(s.Preparing) + len(s.Completed)
}

// Store is the order board.
type Store struct {
	mu    sync.RWMutex
	lanes map[model.Lane][]model.Order
	index map[string]model.Lane

	subs map[uuid.UUID]chan Change

	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewStore creates an empty board.
func NewStore(m *metrics.Metrics, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		lanes:   make(map[model.Lane][]model.Order, 3),
		index:   make(map[string]model.Lane),
		subs:    make(map[uuid.UUID]chan Change),
		metrics: m,
		logger:  logger.With("component", "board"),
	}
	for _, l := range model.Lanes() {
		s.lanes[l] = nil
		m.SetLaneSize(string(l), 0)
	}
	return s
}

// Ingest appends a new order to the new lane. An order whose ID is already
// on the board is ignored and ErrDuplicateOrder is returned.
func (s *Store) Ingest(order model.Order) error {
	if order.OrderID == "" {
		return ErrInvalidOrder
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if lane, ok := s.index[order.OrderID]; ok {
		s.logger.Warn("duplicate order ignored",
			"order_id", order.OrderID,
			"lane", lane,
		)
		return fmt.Errorf("ingest %s: %w", order.OrderID, ErrDuplicateOrder)
	}

	s.appendLocked(model.LaneNew, order.Clone())
	s.publishLocked(Change{Kind: ChangeIngested, OrderID: order.OrderID, To: model.LaneNew})
	return nil
}

// MoveOptimistic removes the order from lane from and appends it to lane to.
// If the order is not in from, nothing changes and a *NotFoundError is returned.
func (s *Store) MoveOptimistic(orderID string, from, to model.Lane) error {
	return s.move(ChangeMoved, orderID, from, to)
}

// Reverse undoes MoveOptimistic(orderID, from, to): the order is taken out
// of lane to and appended to lane from. If the order is no longer in lane to
// nothing changes and a *NotFoundError is returned.
func (s *Store) Reverse(orderID string, from, to model.Lane) error {
	return s.move(ChangeReversed, orderID, to, from)
}

func (s *Store) move(kind ChangeKind, orderID string, src, dst model.Lane) error {
	if !src.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownLane, src)
	}
	if !dst.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownLane, dst)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if lane, ok := s.index[orderID]; !ok || lane != src {
		return &NotFoundError{OrderID: orderID, Lane: src}
	}
	if src == dst {
		return nil
	}

	order := s.removeLocked(src, orderID)
	s.appendLocked(dst, order)
	s.publishLocked(Change{Kind: kind, OrderID: orderID, From: src, To: dst})
	return nil
}

// Seed places orders fetched from the API into the lane matching their
// status. Orders already on the board and orders whose status has no lane
// are skipped. An empty status is treated as new. Returns the number added.
func (s *Store) Seed(orders []model.Order) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, o := range orders {
		if o.OrderID == "" {
			continue
		}
		if _, ok := s.index[o.OrderID]; ok {
			continue
		}

		lane := model.LaneNew
		if o.Status != "" {
			l, ok := model.LaneForStatus(o.Status)
			if !ok {
				continue
			}
			lane = l
		}

		s.appendLocked(lane, o.Clone())
		s.publishLocked(Change{Kind: ChangeSeeded, OrderID: o.OrderID, To: lane})
		added++
	}

	if added > 0 {
		s.logger.Debug("board seeded", "added", added, "skipped", len(orders)-added)
	}
	return added
}

// Get returns a copy of the order and the lane it is in.
func (s *Store) Get(orderID string) (model.Order, model.Lane, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lane, ok := s.index[orderID]
	if !ok {
		return model.Order{}, "", false
	}
	for _, o := range s.lanes[lane] {
		if o.OrderID == orderID {
			return o.Clone(), lane, true
		}
	}
	return model.Order{}, "", false
}

// Len returns the number of orders on the board.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// Snapshot returns a deep copy of every lane.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		New:       cloneLane(s.lanes[model.LaneNew]),
		Preparing: cloneLane(s.lanes[model.LanePreparing]),
		Completed: cloneLane(s.lanes[model.LaneCompleted]),
	}
}

// Subscribe returns a channel of board changes. Changes are dropped for a
// subscriber whose buffer is full. The cancel func closes the channel and
// may be called more than once.
func (s *Store) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer < 1 {
		buffer = 1
	}
	id := uuid.New()
	ch := make(chan Change, buffer)

	s.mu.Lock()
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) appendLocked(lane model.Lane, o model.Order) {
	s.lanes[lane] = append(s.lanes[lane], o)
	s.index[o.OrderID] = lane
	s.metrics.SetLaneSize(string(lane), len(s.lanes[lane]))
}

func (s *Store) removeLocked(lane model.Lane, orderID string) model.Order {
	orders := s.lanes[lane]
	for i, o := range orders {
		if o.OrderID != orderID {
			continue
		}
		rest := slices.Delete(orders, i, i+1)
		s.lanes[lane] = rest
		delete(s.index, orderID)
		s.metrics.SetLaneSize(string(lane), len(rest))
		return o
	}
	return model.Order{}
}

func (s *Store) publishLocked(c Change) {
	for _, ch := range s.subs {
		select {
		case ch <- c:
		default:
			s.logger.Debug("board change dropped, subscriber behind", "order_id", c.OrderID)
		}
	}
}

func cloneLane(orders []model.Order) []model.Order {
	out := make([]model.Order, len(orders))
	for i, o := range orders {
		out[i] = o.Clone()
	}
	return out
}
