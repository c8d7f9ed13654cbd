package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/happyhour-app/happyhour/internal/domain/cart"
	"github.com/happyhour-app/happyhour/internal/domain/inventory"
)

type cartItemResponse struct {
	Kind          string `json:"kind"`
	RefID         string `json:"ref_id"`
	MenuID        string `json:"menu_id"`
	MenuName      string `json:"menu_name"`
	Quantity      int    `json:"quantity"`
	OriginalPrice string `json:"original_price"`
	DiscountRate  int    `json:"discount_rate"`
	FinalPrice    string `json:"final_price"`
}

type cartMetaResponse struct {
	HappyHourStart string `json:"happy_hour_start"`
	HappyHourEnd   string `json:"happy_hour_end"`
	Weekdays       []int  `json:"weekdays"`
}

type cartResponse struct {
	StoreID   string             `json:"store_id,omitempty"`
	EventID   string             `json:"event_id,omitempty"`
	Meta      *cartMetaResponse  `json:"meta,omitempty"`
	Items     []cartItemResponse `json:"items"`
	StartedAt *time.Time         `json:"started_at,omitempty"`
	ExpiresAt *time.Time         `json:"expires_at,omitempty"`
}

type addCartItemRequest struct {
	Kind     string `json:"kind"`
	RefID    string `json:"ref_id"`
	Quantity int    `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

type checkoutRequest struct {
	UserID            string     `json:"user_id"`
	ExpectedVisitTime *time.Time `json:"expected_visit_time,omitempty"`
}

type checkoutResponse struct {
	CouponID string `json:"coupon_id"`
}

func sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	sid := r.Header.Get(sessionHeader)
	if sid == "" {
		writeError(w, http.StatusBadRequest, sessionHeader+" header is required")
		return "", false
	}
	return sid, true
}

// loadCart restores the session's cart snapshot. A missing snapshot yields an
// empty cart; a corrupt one is logged and discarded rather than poisoning the
// session forever.
func (h *Handler) loadCart(ctx context.Context, sessionID string) (*cart.Cart, error) {
	blob, err := h.carts.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if blob == nil {
		return &cart.Cart{}, nil
	}

	c, err := cart.Restore(blob)
	if err != nil {
		zctx.From(ctx).Warn("discarding corrupt cart snapshot",
			zap.String("session_id", sessionID), zap.Error(err))
		return &cart.Cart{}, nil
	}
	return c, nil
}

func (h *Handler) saveCart(ctx context.Context, sessionID string, c *cart.Cart) error {
	if c.Empty() {
		return h.carts.Delete(ctx, sessionID)
	}
	return h.carts.Save(ctx, sessionID, cart.Snapshot(c), c.ExpiresAt())
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}

	c, err := h.loadCart(r.Context(), sid)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

// addCartItem appends an offer to the session's cart. The store, event, and
// display metadata come from the catalog and the event row, never from the
// request, so a cart can only ever reference offers that actually exist.
func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req addCartItemRequest
	if !decodeBody(w, r, &req) {
		return
	}

	kind := inventory.Kind(req.Kind)
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "unknown item kind")
		return
	}

	ctx := r.Context()
	offer, err := h.catalog.GetOffer(ctx, kind, req.RefID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	ev, err := h.events.GetByID(ctx, offer.EventID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	c, err := h.loadCart(ctx, sid)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	meta := cart.EventMeta{
		HappyHourStart: ev.HappyHourStart.String(),
		HappyHourEnd:   ev.HappyHourEnd.String(),
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if ev.Weekdays[d] {
			meta.Weekdays = append(meta.Weekdays, d)
		}
	}

	item := cart.Item{
		Kind:          offer.Kind,
		RefID:         offer.RefID,
		MenuID:        offer.MenuID,
		Quantity:      req.Quantity,
		MenuName:      offer.MenuName,
		OriginalPrice: offer.OriginalPrice,
		DiscountRate:  offer.DiscountRate,
		FinalPrice:    offer.FinalPrice,
	}
	if err := c.Add(h.now(), ev.StoreID, ev.ID, meta, item); err != nil {
		writeDomainError(w, r, err)
		return
	}

	if err := h.saveCart(ctx, sid, c); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	h.mutateCartItem(w, r, func(c *cart.Cart, index int) error {
		var req updateCartItemRequest
		if !decodeBody(w, r, &req) {
			return errHandled
		}
		return c.UpdateQuantity(h.now(), index, req.Quantity)
	})
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	h.mutateCartItem(w, r, func(c *cart.Cart, index int) error {
		return c.Remove(h.now(), index)
	})
}

// errHandled signals that the mutation already wrote its own response.
var errHandled = errSentinel("response already written")

type errSentinel string

func (e errSentinel) Error() string { return string(e) }

func (h *Handler) mutateCartItem(w http.ResponseWriter, r *http.Request, mutate func(c *cart.Cart, index int) error) {
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item index")
		return
	}

	ctx := r.Context()
	c, err := h.loadCart(ctx, sid)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if err := mutate(c, index); err != nil {
		if err == errHandled {
			return
		}
		// Expiry clears the cart as a side effect; persist that before failing.
		if saveErr := h.saveCart(ctx, sid, c); saveErr != nil {
			zctx.From(ctx).Warn("persisting cart after failed mutation",
				zap.String("session_id", sid), zap.Error(saveErr))
		}
		writeDomainError(w, r, err)
		return
	}

	if err := h.saveCart(ctx, sid, c); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}

	if err := h.carts.Delete(r.Context(), sid); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// checkout converts the cart into a coupon. The cart snapshot is deleted only
// after the coupon has been durably created; a failed checkout leaves the cart
// intact for a retry.
func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	ctx := r.Context()
	c, err := h.loadCart(ctx, sid)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	sub, err := c.Submission(h.now(), req.UserID, req.ExpectedVisitTime)
	if err != nil {
		if saveErr := h.saveCart(ctx, sid, c); saveErr != nil {
			zctx.From(ctx).Warn("persisting cart after failed submission",
				zap.String("session_id", sid), zap.Error(saveErr))
		}
		writeDomainError(w, r, err)
		return
	}

	couponID, err := h.coupons.Create(ctx, sub)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if err := h.carts.Delete(ctx, sid); err != nil {
		// The coupon exists; the stale cart will age out via its TTL.
		zctx.From(ctx).Warn("deleting cart after checkout",
			zap.String("session_id", sid), zap.Error(err))
	}
	writeJSON(w, http.StatusCreated, checkoutResponse{CouponID: couponID})
}

func toCartResponse(c *cart.Cart) cartResponse {
	resp := cartResponse{Items: make([]cartItemResponse, len(c.Items))}
	for i, it := range c.Items {
		resp.Items[i] = cartItemResponse{
			Kind:          string(it.Kind),
			RefID:         it.RefID,
			MenuID:        it.MenuID,
			MenuName:      it.MenuName,
			Quantity:      it.Quantity,
			OriginalPrice: it.OriginalPrice.String(),
			DiscountRate:  it.DiscountRate,
			FinalPrice:    it.FinalPrice.String(),
		}
	}
	if c.Empty() {
		return resp
	}

	resp.StoreID = c.StoreID
	resp.EventID = c.EventID
	weekdays := make([]int, len(c.Meta.Weekdays))
	for i, d := range c.Meta.Weekdays {
		weekdays[i] = int(d)
	}
	resp.Meta = &cartMetaResponse{
		HappyHourStart: c.Meta.HappyHourStart,
		HappyHourEnd:   c.Meta.HappyHourEnd,
		Weekdays:       weekdays,
	}
	startedAt := c.StartedAt
	expiresAt := c.ExpiresAt()
	resp.StartedAt = &startedAt
	resp.ExpiresAt = &expiresAt
	return resp
}
