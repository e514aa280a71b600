// Package menu applies debounced stock and featured toggles to menu items.
package menu

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tacoza/seller-live/internal/api"
	"github.com/tacoza/seller-live/internal/debounce"
)

// DefaultDebounce is the quiet period before a toggle is sent.
const DefaultDebounce = 300 * time.Millisecond

// ErrNoSlug is returned for items without a slug.
var ErrNoSlug = errors.New("menu item has no slug")

// Item is the menu item state the toggle is based on.
type Item struct {
	Slug     string `json:"slug"`
	InStock  bool   `json:"in_stock"`
	Featured bool   `json:"featured"`
}

// Field is the flag a toggle flips.
type Field string

const (
	FieldStock    Field = "stock"
	FieldFeatured Field = "featured"
)

// Updater patches menu items. *api.Client implements it.
type Updater interface {
	UpdateMenuItem(ctx context.Context, patch api.MenuItemPatch) error
}

// Result is reported for every toggle that was sent.
type Result struct {
	Slug  string
	Field Field
	Value bool
	Err   error
}

// Toggler debounces toggles per item and field, then sends the negation of
// the state it was given.
type Toggler struct {
	updater  Updater
	debounce *debounce.Keyed
	logger   *slog.Logger
	onResult func(Result)
}

// NewToggler creates a Toggler. delay <= 0 uses DefaultDebounce.
func NewToggler(delay time.Duration, updater Updater, logger *slog.Logger) *Toggler {
	if logger == nil {
		logger = slog.Default()
	}
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Toggler{
		updater:  updater,
		debounce: debounce.New(delay),
		logger:   logger.With("component", "menu"),
	}
}

// OnResult registers a callback for sent toggles. Set it before use.
func (t *Toggler) OnResult(fn func(Result)) {
	t.onResult = fn
}

// ToggleStock schedules in_stock = !item.InStock.
func (t *Toggler) ToggleStock(ctx context.Context, item Item) error {
	return t.toggle(ctx, item, FieldStock, !item.InStock)
}

// ToggleFeatured schedules featured = !item.Featured.
func (t *Toggler) ToggleFeatured(ctx context.Context, item Item) error {
	return t.toggle(ctx, item, FieldFeatured, !item.Featured)
}

// Toggle schedules the flip of field.
func (t *Toggler) Toggle(ctx context.Context, item Item, field Field) error {
	switch field {
	case FieldStock:
		return t.ToggleStock(ctx, item)
	case FieldFeatured:
		return t.ToggleFeatured(ctx, item)
	}
	return errors.New("unknown menu field " + string(field))
}

// Pending returns the number of toggles waiting to be sent.
func (t *Toggler) Pending() int {
	return t.debounce.Pending()
}

// Flush sends pending toggles now.
func (t *Toggler) Flush() {
	t.debounce.Flush()
}

// Stop sends pending toggles and stops accepting new ones.
func (t *Toggler) Stop() {
	t.debounce.Flush()
	t.debounce.Stop()
}

func (t *Toggler) toggle(ctx context.Context, item Item, field Field, value bool) error {
	if item.Slug == "" {
		return ErrNoSlug
	}

	// The call runs after the caller has returned.
	ctx = context.WithoutCancel(ctx)

	patch := api.MenuItemPatch{Slug: item.Slug}
	switch field {
	case FieldStock:
		patch.InStock = &value
	case FieldFeatured:
		patch.Featured = &value
	}

	t.debounce.Trigger(string(field)+":"+item.Slug, func() {
		err := t.updater.UpdateMenuItem(ctx, patch)
		if err != nil {
			t.logger.Warn("failed to update menu item",
				"slug", item.Slug,
				"field", field,
				"error", err,
			)
		} else {
			t.logger.Info("menu item updated", "slug", item.Slug, "field", field, "value", value)
		}
		if t.onResult != nil {
			t.onResult(Result{Slug: item.Slug, Field: field, Value: value, Err: err})
		}
	})
	return nil
}
