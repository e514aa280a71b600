package menu

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/tacoza/seller-live/internal/api"
	"github.com/tacoza/seller-live/internal/auth"
)

type recordingUpdater struct {
	mu      sync.Mutex
	patches []api.MenuItemPatch
	err     error
}

func (r *recordingUpdater) UpdateMenuItem(_ context.Context, patch api.MenuItemPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patches = append(r.patches, patch)
	return r.err
}

func (r *recordingUpdater) all() []api.MenuItemPatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]api.MenuItemPatch(nil), r.patches...)
}

func TestToggler_DebouncesPerItem(t *testing.T) {
	up := &recordingUpdater{}
	tg := NewToggler(time.Hour, up, nil)
	ctx := context.Background()

	momo := Item{Slug: "chicken-momo", InStock: true}
	// Rapid clicks: the last state seen wins.
	tg.ToggleStock(ctx, momo)
	tg.ToggleStock(ctx, Item{Slug: "chicken-momo", InStock: false})
	tg.ToggleStock(ctx, momo)
	tg.ToggleFeatured(ctx, Item{Slug: "chicken-momo", Featured: false})
	tg.ToggleStock(ctx, Item{Slug: "thukpa", InStock: false})

	if n := tg.Pending(); n != 3 {
		t.Fatalf("Pending() = %d, want 3", n)
	}
	tg.Flush()

	byKey := map[string]api.MenuItemPatch{}
	for _, p := range up.all() {
		key := p.Slug
		if p.InStock != nil {
			key += ":stock"
		}
		if p.Featured != nil {
			key += ":featured"
		}
		byKey[key] = p
	}

	if len(byKey) != 3 {
		t.Fatalf("patches = %+v, want 3 distinct", up.all())
	}
	if p := byKey["chicken-momo:stock"]; *p.InStock != false {
		t.Errorf("chicken-momo in_stock = %v, want false", *p.InStock)
	}
	if p := byKey["chicken-momo:featured"]; *p.Featured != true {
		t.Errorf("chicken-momo featured = %v, want true", *p.Featured)
	}
	if p := byKey["thukpa:stock"]; *p.InStock != true {
		t.Errorf("thukpa in_stock = %v, want true", *p.InStock)
	}
}

func TestToggler_SendsAfterDelay(t *testing.T) {
	up := &recordingUpdater{}
	tg := NewToggler(10*time.Millisecond, up, nil)
	defer tg.Stop()

	results := make(chan Result, 1)
	tg.OnResult(func(r Result) { results <- r })

	if err := tg.ToggleFeatured(context.Background(), Item{Slug: "sel-roti", Featured: true}); err != nil {
		t.Fatalf("ToggleFeatured failed: %v", err)
	}

	select {
	case r := <-results:
		if r.Slug != "sel-roti" || r.Field != FieldFeatured || r.Value != false || r.Err != nil {
			t.Errorf("result = %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("toggle not sent")
	}
}

func TestToggler_CancelledCallerStillSends(t *testing.T) {
	up := &recordingUpdater{}
	tg := NewToggler(time.Hour, up, nil)

	ctx, cancel := context.WithCancel(context.Background())
	tg.ToggleStock(ctx, Item{Slug: "lassi", InStock: true})
	cancel()

	tg.Stop()

	if n := len(up.all()); n != 1 {
		t.Errorf("patches sent = %d, want 1", n)
	}
}

func TestToggler_Errors(t *testing.T) {
	up := &recordingUpdater{err: errors.New("http error: 500")}
	tg := NewToggler(time.Hour, up, nil)
	defer tg.Stop()

	if err := tg.ToggleStock(context.Background(), Item{}); !errors.Is(err, ErrNoSlug) {
		t.Errorf("empty slug: got %v, want ErrNoSlug", err)
	}
	if err := tg.Toggle(context.Background(), Item{Slug: "x"}, "price"); err == nil {
		t.Error("unknown field accepted")
	}

	var got Result
	tg.OnResult(func(r Result) { got = r })
	tg.Toggle(context.Background(), Item{Slug: "x"}, FieldStock)
	tg.Flush()

	if got.Err == nil {
		t.Error("updater error not reported")
	}
}

func TestToggler_WithAPIClient(t *testing.T) {
	type request struct {
		Method string
		Path   string
		Body   map[string]any
	}
	got := make(chan request, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var body map[string]any
		json.Unmarshal(data, &body)
		got <- request{Method: r.Method, Path: r.URL.Path, Body: body}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := api.NewClient(server.URL, &auth.Session{AccessToken: "tok"})
	tg := NewToggler(5*time.Millisecond, client, nil)
	defer tg.Stop()

	tg.ToggleStock(context.Background(), Item{Slug: "veg-momo", InStock: true})

	select {
	case req := <-got:
		if req.Method != http.MethodPatch || req.Path != "/api/shop/menu/items/veg-momo" {
			t.Errorf("request = %s %s", req.Method, req.Path)
		}
		if req.Body["in_stock"] != false {
			t.Errorf("in_stock = %v, want false", req.Body["in_stock"])
		}
		if _, ok := req.Body["featured"]; ok {
			t.Error("featured should be omitted")
		}
	case <-time.After(time.Second):
		t.Fatal("request not sent")
	}
}
