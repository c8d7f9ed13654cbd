// Package store holds the store and menu entities. Stores are immutable once
// referenced by a coupon; menu CRUD beyond price/name reads is out of scope.
package store

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = errors.New("store not found")
	ErrMenuNotFound = errors.New("menu not found")
)

// Store is a physical venue that owns events and menus.
type Store struct {
	ID       string
	Name     string
	Lat      float64
	Lng      float64
	Category string
	Active   bool
}

// Menu is a purchasable item belonging to one store.
type Menu struct {
	ID      string
	StoreID string
	Name    string
	Price   decimal.Decimal
}

// Repository provides read access to stores and their menus.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Store, error)
	GetMenu(ctx context.Context, id string) (*Menu, error)
}
