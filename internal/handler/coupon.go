package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/happyhour-app/happyhour/internal/domain/cart"
	"github.com/happyhour-app/happyhour/internal/domain/coupon"
	"github.com/happyhour-app/happyhour/internal/domain/inventory"
)

type createCouponItem struct {
	Kind     string `json:"kind"`
	RefID    string `json:"ref_id"`
	Quantity int    `json:"quantity"`
}

type createCouponRequest struct {
	UserID            string             `json:"user_id"`
	StoreID           string             `json:"store_id"`
	EventID           string             `json:"event_id"`
	ExpectedVisitTime *time.Time         `json:"expected_visit_time,omitempty"`
	ExpiredTime       *time.Time         `json:"expired_time,omitempty"`
	Items             []createCouponItem `json:"items"`
}

type createCouponResponse struct {
	ID string `json:"id"`
}

type couponItemResponse struct {
	Kind          string `json:"kind"`
	RefID         string `json:"ref_id"`
	MenuID        string `json:"menu_id"`
	MenuName      string `json:"menu_name"`
	Quantity      int    `json:"quantity"`
	OriginalPrice string `json:"original_price"`
	DiscountRate  int    `json:"discount_rate"`
	FinalPrice    string `json:"final_price"`
}

type couponResponse struct {
	ID                string               `json:"id"`
	UserID            string               `json:"user_id"`
	StoreID           string               `json:"store_id"`
	EventID           string               `json:"event_id"`
	Status            string               `json:"status"`
	ExpectedVisitTime *time.Time           `json:"expected_visit_time,omitempty"`
	ExpiredTime       time.Time            `json:"expired_time"`
	ActivatedAt       *time.Time           `json:"activated_at,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
	Items             []couponItemResponse `json:"items,omitempty"`
}

// createCoupon issues a coupon directly from a submission payload, bypassing
// the session cart. Used by clients that manage their own pending state.
func (h *Handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	items := make([]cart.Item, len(req.Items))
	for i, it := range req.Items {
		kind := inventory.Kind(it.Kind)
		if !kind.Valid() {
			writeError(w, http.StatusBadRequest, "unknown item kind")
			return
		}
		items[i] = cart.Item{Kind: kind, RefID: it.RefID, Quantity: it.Quantity}
	}

	id, err := h.coupons.Create(r.Context(), &cart.Submission{
		UserID:            req.UserID,
		StoreID:           req.StoreID,
		EventID:           req.EventID,
		ExpectedVisitTime: req.ExpectedVisitTime,
		ExpiredTime:       req.ExpiredTime,
		Items:             items,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createCouponResponse{ID: id})
}

func (h *Handler) getCoupon(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "couponID")

	withItems, err := h.coupons.GetWithItems(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCouponResponse(&withItems.Coupon, withItems.Items))
}

func (h *Handler) listCoupons(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}

	coupons, err := h.coupons.ListByUser(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	out := make([]couponResponse, len(coupons))
	for i := range coupons {
		out[i] = toCouponResponse(&coupons[i], nil)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) activateCoupon(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.coupons.Activate)
}

func (h *Handler) redeemCoupon(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.coupons.Redeem)
}

func (h *Handler) cancelCoupon(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.coupons.Cancel)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id string) error) {
	id := chi.URLParam(r, "couponID")

	if err := op(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}

	withItems, err := h.coupons.GetWithItems(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCouponResponse(&withItems.Coupon, withItems.Items))
}

func toCouponResponse(c *coupon.Coupon, items []coupon.Item) couponResponse {
	resp := couponResponse{
		ID:                c.ID,
		UserID:            c.UserID,
		StoreID:           c.StoreID,
		EventID:           c.EventID,
		Status:            string(c.Status),
		ExpectedVisitTime: c.ExpectedVisitTime,
		ExpiredTime:       c.ExpiredTime,
		ActivatedAt:       c.ActivatedAt,
		CreatedAt:         c.CreatedAt,
	}
	for _, it := range items {
		resp.Items = append(resp.Items, couponItemResponse{
			Kind:          string(it.Kind),
			RefID:         it.RefID,
			MenuID:        it.MenuID,
			MenuName:      it.MenuName,
			Quantity:      it.Quantity,
			OriginalPrice: it.OriginalPrice.String(),
			DiscountRate:  it.DiscountRate,
			FinalPrice:    it.FinalPrice.String(),
		})
	}
	return resp
}
