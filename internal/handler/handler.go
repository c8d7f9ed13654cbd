// Package handler exposes the HTTP API: store and event lookups, the
// session-scoped cart, and the coupon lifecycle.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/happyhour-app/happyhour/internal/domain/cart"
	"github.com/happyhour-app/happyhour/internal/domain/coupon"
	"github.com/happyhour-app/happyhour/internal/domain/event"
	"github.com/happyhour-app/happyhour/internal/domain/inventory"
	"github.com/happyhour-app/happyhour/internal/domain/store"
)

// sessionHeader identifies the anonymous cart session. Carts are keyed by it;
// coupon ownership is keyed by user id instead.
const sessionHeader = "X-Session-ID"

// CouponService is the coupon lifecycle surface the handler depends on.
type CouponService interface {
	Create(ctx context.Context, sub *cart.Submission) (string, error)
	Activate(ctx context.Context, id string) error
	Redeem(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
	GetWithItems(ctx context.Context, id string) (*coupon.WithItems, error)
	ListByUser(ctx context.Context, userID string) ([]coupon.Coupon, error)
}

// Handler wires the HTTP routes to the domain services.
type Handler struct {
	stores  store.Repository
	events  event.Repository
	catalog inventory.Catalog
	coupons CouponService
	carts   cart.SnapshotStore

	now func() time.Time
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	stores store.Repository,
	events event.Repository,
	catalog inventory.Catalog,
	coupons CouponService,
	carts cart.SnapshotStore,
) *Handler {
	return &Handler{
		stores:  stores,
		events:  events,
		catalog: catalog,
		coupons: coupons,
		carts:   carts,
		now:     time.Now,
	}
}

// Router returns the API route tree.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	r.Route("/stores/{storeID}", func(r chi.Router) {
		r.Get("/", h.getStore)
		r.Get("/events", h.listStoreEvents)
	})

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.getCart)
		r.Delete("/", h.clearCart)
		r.Post("/items", h.addCartItem)
		r.Patch("/items/{index}", h.updateCartItem)
		r.Delete("/items/{index}", h.removeCartItem)
		r.Post("/checkout", h.checkout)
	})

	r.Route("/coupons", func(r chi.Router) {
		r.Post("/", h.createCoupon)
		r.Get("/", h.listCoupons)
		r.Get("/{couponID}", h.getCoupon)
		r.Post("/{couponID}/activate", h.activateCoupon)
		r.Post("/{couponID}/redeem", h.redeemCoupon)
		r.Post("/{couponID}/cancel", h.cancelCoupon)
	})

	return r
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Code: status, Message: message})
}

// writeDomainError maps domain errors to HTTP statuses. Unknown errors are
// logged and answered with an opaque 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrMenuNotFound),
		errors.Is(err, event.ErrNotFound),
		errors.Is(err, inventory.ErrNotFound),
		errors.Is(err, coupon.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return

	case errors.Is(err, cart.ErrEmptySubmission),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrGiftQuantity),
		errors.Is(err, cart.ErrIndexOutOfRange),
		errors.Is(err, coupon.ErrGiftGroupConflict):
		writeError(w, http.StatusBadRequest, err.Error())
		return

	case errors.Is(err, cart.ErrDifferentStore),
		errors.Is(err, cart.ErrDifferentEvent),
		errors.Is(err, coupon.ErrInvalidTransition),
		errors.Is(err, coupon.ErrAlreadyTerminal):
		writeError(w, http.StatusConflict, err.Error())
		return

	case errors.Is(err, cart.ErrExpired),
		errors.Is(err, coupon.ErrExpired),
		errors.Is(err, coupon.ErrActivationWindowElapsed):
		writeError(w, http.StatusGone, err.Error())
		return

	case errors.Is(err, coupon.ErrStoreMismatch):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	var wcErr *event.WindowClosedError
	if errors.As(err, &wcErr) {
		writeError(w, http.StatusUnprocessableEntity, wcErr.Error())
		return
	}
	var seErr *inventory.StockExhaustedError
	if errors.As(err, &seErr) {
		writeError(w, http.StatusConflict, seErr.Error())
		return
	}

	zctx.From(r.Context()).Error("request failed",
		zap.String("path", r.URL.Path), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
