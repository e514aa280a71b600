package board

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tacoza/seller-live/internal/metrics"
	"github.com/tacoza/seller-live/internal/model"
)

func order(id string) model.Order {
	return model.Order{
		OrderID: id,
		Table:   "T1",
		Items: []model.OrderItem{
			{FoodItem: model.FoodItem{Name: "Momo"}, Quantity: 2, TotalPrice: "300"},
		},
		Total: "300",
	}
}

func ids(orders []model.Order) []string {
	out := make([]string, len(orders))
	for i, o := range orders {
		out[i] = o.OrderID
	}
	return out
}

func TestIngest_AppendsToNew(t *testing.T) {
	s := NewStore(nil, nil)

	require.NoError(t, s.Ingest(order("o1")))
	require.NoError(t, s.Ingest(order("o2")))

	snap := s.Snapshot()
	assert.Equal(t, []string{"o1", "o2"}, ids(snap.New))
	assert.Empty(t, snap.Preparing)
	assert.Empty(t, snap.Completed)
	assert.Equal(t, 2, s.Len())
}

func TestIngest_Duplicate(t *testing.T) {
	s := NewStore(nil, nil)
	require.NoError(t, s.Ingest(order("o1")))
	require.NoError(t, s.MoveOptimistic("o1", model.LaneNew, model.LanePreparing))

	err := s.Ingest(order("o1"))
	assert.ErrorIs(t, err, ErrDuplicateOrder)

	snap := s.Snapshot()
	assert.Empty(t, snap.New)
	assert.Equal(t, []string{"o1"}, ids(snap.Preparing))
}

func TestIngest_NoID(t *testing.T) {
	s := NewStore(nil, nil)
	assert.ErrorIs(t, s.Ingest(model.Order{}), ErrInvalidOrder)
	assert.Zero(t, s.Len())
}

func TestMoveOptimistic(t *testing.T) {
	s := NewStore(nil, nil)
	require.NoError(t, s.Ingest(order("o1")))

	require.NoError(t, s.MoveOptimistic("o1", model.LaneNew, model.LanePreparing))

	snap := s.Snapshot()
	assert.Empty(t, snap.New)
	require.Len(t, snap.Preparing, 1)
	assert.Equal(t, order("o1"), snap.Preparing[0])

	_, lane, ok := s.Get("o1")
	require.True(t, ok)
	assert.Equal(t, model.LanePreparing, lane)
}

func TestMoveOptimistic_NotInSourceLane(t *testing.T) {
	s := NewStore(nil, nil)
	require.NoError(t, s.Ingest(order("o1")))

	err := s.MoveOptimistic("o1", model.LanePreparing, model.LaneCompleted)

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "o1", nf.OrderID)
	assert.Equal(t, model.LanePreparing, nf.Lane)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"o1"}, ids(s.Snapshot().New))

	assert.ErrorIs(t, s.MoveOptimistic("missing", model.LaneNew, model.LaneCompleted), ErrNotFound)
}

func TestMoveOptimistic_UnknownLane(t *testing.T) {
	s := NewStore(nil, nil)
	require.NoError(t, s.Ingest(order("o1")))

	assert.ErrorIs(t, s.MoveOptimistic("o1", model.LaneNew, "archived"), ErrUnknownLane)
	assert.ErrorIs(t, s.MoveOptimistic("o1", "", model.LaneNew), ErrUnknownLane)
	assert.Equal(t, []string{"o1"}, ids(s.Snapshot().New))
}

func TestReverse_RestoresSourceLane(t *testing.T) {
	s := NewStore(nil, nil)
	require.NoError(t, s.Ingest(order("o1")))
	require.NoError(t, s.Ingest(order("o2")))
	require.NoError(t, s.MoveOptimistic("o1", model.LaneNew, model.LaneCompleted))

	require.NoError(t, s.Reverse("o1", model.LaneNew, model.LaneCompleted))

	snap := s.Snapshot()
	// The reverted order rejoins the end of its lane.
	assert.Equal(t, []string{"o2", "o1"}, ids(snap.New))
	assert.Empty(t, snap.Completed)
	assert.Equal(t, order("o1"), snap.New[1])
}

func TestReverse_OrderGone(t *testing.T) {
	s := NewStore(nil, nil)
	require.NoError(t, s.Ingest(order("o1")))

	err := s.Reverse("o1", model.LaneNew, model.LanePreparing)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"o1"}, ids(s.Snapshot().New))
}

func TestFIFOWithinLane(t *testing.T) {
	s := NewStore(nil, nil)
	for i := range 5 {
		require.NoError(t, s.Ingest(order(fmt.Sprintf("o%d", i))))
	}

	require.NoError(t, s.MoveOptimistic("o3", model.LaneNew, model.LanePreparing))
	require.NoError(t, s.MoveOptimistic("o1", model.LaneNew, model.LanePreparing))

	snap := s.Snapshot()
	assert.Equal(t, []string{"o0", "o2", "o4"}, ids(snap.New))
	assert.Equal(t, []string{"o3", "o1"}, ids(snap.Preparing))
}

func TestSnapshotIsolation(t *testing.T) {
	s := NewStore(nil, nil)
	require.NoError(t, s.Ingest(order("o1")))

	snap := s.Snapshot()
	snap.New[0].Table = "changed"
	snap.New[0].Items[0].Quantity = 99
	snap.New = append(snap.New, order("fake"))

	fresh := s.Snapshot()
	require.Len(t, fresh.New, 1)
	assert.Equal(t, "T1", fresh.New[0].Table)
	assert.Equal(t, 2, fresh.New[0].Items[0].Quantity)

	// Later mutations do not leak into an earlier snapshot.
	before := s.Snapshot()
	require.NoError(t, s.MoveOptimistic("o1", model.LaneNew, model.LaneCompleted))
	assert.Equal(t, []string{"o1"}, ids(before.New))
	assert.Empty(t, before.Completed)
}

func TestSeed(t *testing.T) {
	s := NewStore(nil, nil)
	require.NoError(t, s.Ingest(order("live")))

	pending := order("a")
	pending.Status = model.StatusPending
	processing := order("b")
	processing.Status = model.StatusProcessing
	done := order("c")
	done.Status = model.StatusCompleted
	cancelled := order("d")
	cancelled.Status = "cancelled"
	dup := order("live")
	dup.Status = model.StatusCompleted
	noStatus := order("e")

	added := s.Seed([]model.Order{pending, processing, done, cancelled, dup, noStatus, {}})
	assert.Equal(t, 4, added)

	snap := s.Snapshot()
	assert.Equal(t, []string{"live", "a", "e"}, ids(snap.New))
	assert.Equal(t, []string{"b"}, ids(snap.Preparing))
	assert.Equal(t, []string{"c"}, ids(snap.Completed))
}

func TestInvariant_RandomOperations(t *testing.T) {
	s := NewStore(nil, nil)
	lanes := model.Lanes()
	rng := rand.New(rand.NewPCG(1, 2))
	ingested := map[string]bool{}

	for i := range 2000 {
		id := fmt.Sprintf("o%d", rng.IntN(50))
		from := lanes[rng.IntN(len(lanes))]
		to := lanes[rng.IntN(len(lanes))]

		switch rng.IntN(3) {
		case 0:
			if err := s.Ingest(order(id)); err == nil {
				ingested[id] = true
			}
		case 1:
			_ = s.MoveOptimistic(id, from, to)
		case 2:
			_ = s.Reverse(id, from, to)
		}

		snap := s.Snapshot()
		require.Equal(t, len(ingested), snap.Len(), "step %d", i)

		seen := map[string]bool{}
		for _, l := range lanes {
			for _, o := range snap.Lane(l) {
				require.False(t, seen[o.OrderID], "order %s in two lanes at step %d", o.OrderID, i)
				seen[o.OrderID] = true
			}
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := NewStore(nil, nil)

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				id := fmt.Sprintf("w%d-%d", w, i)
				if err := s.Ingest(order(id)); err != nil {
					t.Error(err)
					return
				}
				_ = s.MoveOptimistic(id, model.LaneNew, model.LanePreparing)
				_ = s.Snapshot()
			}
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Equal(t, 800, snap.Len())
	assert.Len(t, snap.Preparing, 800)
}

func TestSubscribe(t *testing.T) {
	s := NewStore(nil, nil)
	changes, cancel := s.Subscribe(8)

	require.NoError(t, s.Ingest(order("o1")))
	require.NoError(t, s.MoveOptimistic("o1", model.LaneNew, model.LanePreparing))
	require.NoError(t, s.Reverse("o1", model.LaneNew, model.LanePreparing))

	assert.Equal(t, Change{Kind: ChangeIngested, OrderID: "o1", To: model.LaneNew}, <-changes)
	assert.Equal(t, Change{Kind: ChangeMoved, OrderID: "o1", From: model.LaneNew, To: model.LanePreparing}, <-changes)
	assert.Equal(t, Change{Kind: ChangeReversed, OrderID: "o1", From: model.LanePreparing, To: model.LaneNew}, <-changes)

	cancel()
	cancel()
	_, open := <-changes
	assert.False(t, open)

	// Mutations after cancel must not panic on the closed channel.
	require.NoError(t, s.Ingest(order("o2")))
}

func TestSubscribe_DropsWhenFull(t *testing.T) {
	s := NewStore(nil, nil)
	changes, cancel := s.Subscribe(1)
	defer cancel()

	require.NoError(t, s.Ingest(order("o1")))
	require.NoError(t, s.Ingest(order("o2")))

	assert.Len(t, changes, 1)
	assert.Equal(t, "o1", (<-changes).OrderID)
	assert.Equal(t, 2, s.Len())
}

func TestLaneSizeMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewStore(metrics.New(reg), nil)

	require.NoError(t, s.Ingest(order("o1")))
	require.NoError(t, s.Ingest(order("o2")))
	require.NoError(t, s.MoveOptimistic("o1", model.LaneNew, model.LaneCompleted))

	gauge := func(lane string) float64 {
		mfs, err := reg.Gather()
		require.NoError(t, err)
		for _, mf := range mfs {
			if mf.GetName() != "seller_live_lane_orders" {
				continue
			}
			for _, m := range mf.GetMetric() {
				for _, lp := range m.GetLabel() {
					if lp.GetName() == "lane" && lp.GetValue() == lane {
						return m.GetGauge().GetValue()
					}
				}
			}
		}
		t.Fatalf("no gauge for lane %s", lane)
		return 0
	}

	assert.Equal(t, 1.0, gauge("new"))
	assert.Equal(t, 0.0, gauge("preparing"))
	assert.Equal(t, 1.0, gauge("completed"))
	n, err := testutil.GatherAndCount(reg, "seller_live_lane_orders")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestNotFoundErrorMessage(t *testing.T) {
	err := error(&NotFoundError{OrderID: "o1", Lane: model.LaneNew})
	assert.EqualError(t, err, "order o1 not found in lane new")
	assert.True(t, errors.Is(err, ErrNotFound))
}
