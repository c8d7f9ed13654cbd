package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happyhour-app/happyhour/internal/domain/cart"
	"github.com/happyhour-app/happyhour/internal/domain/coupon"
	"github.com/happyhour-app/happyhour/internal/domain/event"
	"github.com/happyhour-app/happyhour/internal/domain/inventory"
	"github.com/happyhour-app/happyhour/internal/domain/store"
)

var testTime = time.Date(2025, 6, 9, 18, 0, 0, 0, time.UTC)

type stubStores struct {
	stores map[string]*store.Store
}

func (s *stubStores) GetByID(_ context.Context, id string) (*store.Store, error) {
	st, ok := s.stores[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return st, nil
}

func (s *stubStores) GetMenu(_ context.Context, _ string) (*store.Menu, error) {
	return nil, store.ErrMenuNotFound
}

type stubEvents struct {
	events map[string]*event.Event
}

func (s *stubEvents) GetByID(_ context.Context, id string) (*event.Event, error) {
	ev, ok := s.events[id]
	if !ok {
		return nil, event.ErrNotFound
	}
	return ev, nil
}

func (s *stubEvents) ListByStore(_ context.Context, storeID string) ([]event.Event, error) {
	var out []event.Event
	for _, ev := range s.events {
		if ev.StoreID == storeID {
			out = append(out, *ev)
		}
	}
	return out, nil
}

type stubCatalog struct {
	offers map[string]*inventory.Offer
	groups map[string][]inventory.GiftGroup
}

func (s *stubCatalog) GetOffer(_ context.Context, kind inventory.Kind, refID string) (*inventory.Offer, error) {
	o, ok := s.offers[string(kind)+":"+refID]
	if !ok {
		return nil, inventory.ErrNotFound
	}
	return o, nil
}

func (s *stubCatalog) ListGiftGroups(_ context.Context, eventID string) ([]inventory.GiftGroup, error) {
	return s.groups[eventID], nil
}

// stubSnapshots keeps blobs verbatim; expiry is exercised in the cart package.
type stubSnapshots struct {
	blobs map[string][]byte
}

func (s *stubSnapshots) Save(_ context.Context, sessionID string, blob []byte, _ time.Time) error {
	s.blobs[sessionID] = blob
	return nil
}

func (s *stubSnapshots) Load(_ context.Context, sessionID string) ([]byte, error) {
	return s.blobs[sessionID], nil
}

func (s *stubSnapshots) Delete(_ context.Context, sessionID string) error {
	delete(s.blobs, sessionID)
	return nil
}

type stubCoupons struct {
	createID   string
	createErr  error
	created    *cart.Submission
	opErr      error
	withItems  *coupon.WithItems
	listResult []coupon.Coupon
}

func (s *stubCoupons) Create(_ context.Context, sub *cart.Submission) (string, error) {
	if s.createErr != nil {
		return "", s.createErr
	}
	s.created = sub
	return s.createID, nil
}

func (s *stubCoupons) Activate(_ context.Context, _ string) error { return s.opErr }
func (s *stubCoupons) Redeem(_ context.Context, _ string) error   { return s.opErr }
func (s *stubCoupons) Cancel(_ context.Context, _ string) error   { return s.opErr }

func (s *stubCoupons) GetWithItems(_ context.Context, _ string) (*coupon.WithItems, error) {
	if s.withItems == nil {
		return nil, coupon.ErrNotFound
	}
	return s.withItems, nil
}

func (s *stubCoupons) ListByUser(_ context.Context, _ string) ([]coupon.Coupon, error) {
	return s.listResult, nil
}

func newTestHandler(coupons *stubCoupons) (*Handler, *stubCoupons) {
	if coupons == nil {
		coupons = &stubCoupons{createID: "c-1"}
	}

	eventA := &event.Event{
		ID:             "ev-a",
		StoreID:        "st-1",
		Title:          "Evening Special",
		StartDate:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		HappyHourStart: event.TimeOfDay{Hour: 17},
		HappyHourEnd:   event.TimeOfDay{Hour: 20},
		Weekdays:       map[time.Weekday]bool{time.Monday: true},
		Active:         true,
	}
	eventB := &event.Event{
		ID:             "ev-b",
		StoreID:        "st-1",
		StartDate:      eventA.StartDate,
		EndDate:        eventA.EndDate,
		HappyHourStart: eventA.HappyHourStart,
		HappyHourEnd:   eventA.HappyHourEnd,
		Weekdays:       eventA.Weekdays,
		Active:         true,
	}

	h := NewHandler(
		&stubStores{stores: map[string]*store.Store{
			"st-1": {ID: "st-1", Name: "Pub One", Active: true},
		}},
		&stubEvents{events: map[string]*event.Event{"ev-a": eventA, "ev-b": eventB}},
		&stubCatalog{
			offers: map[string]*inventory.Offer{
				"discount:d1": {
					Kind: inventory.KindDiscount, RefID: "d1", EventID: "ev-a", MenuID: "m1",
					MenuName: "Americano", OriginalPrice: decimal.NewFromInt(5000),
					DiscountRate: 30, FinalPrice: decimal.NewFromInt(3500), Active: true,
				},
				"discount:d2": {
					Kind: inventory.KindDiscount, RefID: "d2", EventID: "ev-b", MenuID: "m2",
					MenuName: "Latte", OriginalPrice: decimal.NewFromInt(5500),
					DiscountRate: 20, FinalPrice: decimal.NewFromInt(4400), Active: true,
				},
			},
			groups: map[string][]inventory.GiftGroup{
				"ev-a": {{
					ID: "gg-1", EventID: "ev-a",
					Options: []inventory.Offer{
						{
							Kind: inventory.KindGift, RefID: "g1", EventID: "ev-a",
							GroupID: "gg-1", MenuID: "m3", MenuName: "Fries",
							OriginalPrice: decimal.NewFromInt(4000), Active: true,
						},
						{
							Kind: inventory.KindGift, RefID: "g2", EventID: "ev-a",
							GroupID: "gg-1", MenuID: "m4", MenuName: "Nachos",
							OriginalPrice: decimal.NewFromInt(4500), Active: true,
						},
					},
				}},
			},
		},
		coupons,
		&stubSnapshots{blobs: make(map[string][]byte)},
	)
	h.now = func() time.Time { return testTime }
	return h, coupons
}

func doJSON(t *testing.T, router http.Handler, method, path, session string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if session != "" {
		req.Header.Set(sessionHeader, session)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetStore(t *testing.T) {
	h, _ := newTestHandler(nil)
	router := h.Router()

	rec := doJSON(t, router, http.MethodGet, "/stores/st-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp storeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Pub One", resp.Name)

	rec = doJSON(t, router, http.MethodGet, "/stores/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListStoreEvents(t *testing.T) {
	h, _ := newTestHandler(nil)

	rec := doJSON(t, h.Router(), http.MethodGet, "/stores/st-1/events", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []eventResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 2)
	for _, ev := range resp {
		assert.Equal(t, "17:00", ev.HappyHourStart)
		assert.True(t, ev.OpenNow, "testTime is inside the happy hour")

		if ev.ID != "ev-a" {
			continue
		}
		// Gift options are presented bucketed by their pick-one group.
		require.Len(t, ev.GiftGroups, 1)
		assert.Equal(t, "gg-1", ev.GiftGroups[0].ID)
		require.Len(t, ev.GiftGroups[0].Options, 2)
		assert.Equal(t, "Fries", ev.GiftGroups[0].Options[0].MenuName)
	}
}

func TestCart_RequiresSession(t *testing.T) {
	h, _ := newTestHandler(nil)

	rec := doJSON(t, h.Router(), http.MethodGet, "/cart", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCart_AddLocksStore(t *testing.T) {
	h, _ := newTestHandler(nil)
	router := h.Router()

	rec := doJSON(t, router, http.MethodPost, "/cart/items", "sess-1",
		addCartItemRequest{Kind: "discount", RefID: "d1", Quantity: 2})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp cartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "st-1", resp.StoreID)
	assert.Equal(t, "ev-a", resp.EventID)
	require.Len(t, resp.Items, 1)
	// Display metadata is the server's, not the client's.
	assert.Equal(t, "Americano", resp.Items[0].MenuName)
	assert.Equal(t, "3500", resp.Items[0].FinalPrice)
	require.NotNil(t, resp.ExpiresAt)
	assert.Equal(t, testTime.Add(cart.TTL), *resp.ExpiresAt)

	// An offer from another event of the same store is rejected.
	rec = doJSON(t, router, http.MethodPost, "/cart/items", "sess-1",
		addCartItemRequest{Kind: "discount", RefID: "d2", Quantity: 1})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Sessions are isolated: the other session can take ev-b.
	rec = doJSON(t, router, http.MethodPost, "/cart/items", "sess-2",
		addCartItemRequest{Kind: "discount", RefID: "d2", Quantity: 1})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCart_AddUnknownOffer(t *testing.T) {
	h, _ := newTestHandler(nil)

	rec := doJSON(t, h.Router(), http.MethodPost, "/cart/items", "sess-1",
		addCartItemRequest{Kind: "discount", RefID: "missing", Quantity: 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCart_UpdateAndRemove(t *testing.T) {
	h, _ := newTestHandler(nil)
	router := h.Router()

	doJSON(t, router, http.MethodPost, "/cart/items", "sess-1",
		addCartItemRequest{Kind: "discount", RefID: "d1", Quantity: 1})

	rec := doJSON(t, router, http.MethodPatch, "/cart/items/0", "sess-1",
		updateCartItemRequest{Quantity: 3})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp cartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Items[0].Quantity)

	rec = doJSON(t, router, http.MethodPatch, "/cart/items/5", "sess-1",
		updateCartItemRequest{Quantity: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/cart/items/0", "sess-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	// Decode into a fresh value: store_id is omitempty, so an unlocked cart
	// would leave the previous decode's value in place.
	var emptied cartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &emptied))
	assert.Empty(t, emptied.Items)
	assert.Empty(t, emptied.StoreID, "removing the last item releases the lock")
}

func TestCheckout(t *testing.T) {
	h, coupons := newTestHandler(nil)
	router := h.Router()

	doJSON(t, router, http.MethodPost, "/cart/items", "sess-1",
		addCartItemRequest{Kind: "discount", RefID: "d1", Quantity: 2})

	rec := doJSON(t, router, http.MethodPost, "/cart/checkout", "sess-1",
		checkoutRequest{UserID: "u1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp checkoutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "c-1", resp.CouponID)

	require.NotNil(t, coupons.created)
	assert.Equal(t, "u1", coupons.created.UserID)
	assert.Equal(t, "st-1", coupons.created.StoreID)
	require.Len(t, coupons.created.Items, 1)
	assert.Equal(t, 2, coupons.created.Items[0].Quantity)

	// The cart is gone after a successful checkout.
	rec = doJSON(t, router, http.MethodGet, "/cart", "sess-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cartResp cartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cartResp))
	assert.Empty(t, cartResp.Items)
}

func TestCheckout_FailureKeepsCart(t *testing.T) {
	h, coupons := newTestHandler(nil)
	coupons.createErr = &inventory.StockExhaustedError{Kind: inventory.KindDiscount, RefID: "d1"}
	router := h.Router()

	doJSON(t, router, http.MethodPost, "/cart/items", "sess-1",
		addCartItemRequest{Kind: "discount", RefID: "d1", Quantity: 1})

	rec := doJSON(t, router, http.MethodPost, "/cart/checkout", "sess-1",
		checkoutRequest{UserID: "u1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/cart", "sess-1", nil)
	var cartResp cartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cartResp))
	assert.Len(t, cartResp.Items, 1, "failed checkout leaves the cart intact")
}

func TestCheckout_EmptyCart(t *testing.T) {
	h, _ := newTestHandler(nil)

	rec := doJSON(t, h.Router(), http.MethodPost, "/cart/checkout", "sess-1",
		checkoutRequest{UserID: "u1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCouponTransitions_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", coupon.ErrNotFound, http.StatusNotFound},
		{"invalid transition", coupon.ErrInvalidTransition, http.StatusConflict},
		{"already terminal", coupon.ErrAlreadyTerminal, http.StatusConflict},
		{"expired", coupon.ErrExpired, http.StatusGone},
		{"window elapsed", coupon.ErrActivationWindowElapsed, http.StatusGone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(&stubCoupons{opErr: tt.err})

			rec := doJSON(t, h.Router(), http.MethodPost, "/coupons/c-1/activate", "", nil)
			assert.Equal(t, tt.want, rec.Code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.want, resp.Code)
		})
	}
}

func TestGetCoupon(t *testing.T) {
	activated := testTime.Add(-time.Minute)
	h, _ := newTestHandler(&stubCoupons{withItems: &coupon.WithItems{
		Coupon: coupon.Coupon{
			ID: "c-1", UserID: "u1", StoreID: "st-1", EventID: "ev-a",
			Status: coupon.StatusActivating, ActivatedAt: &activated,
			ExpiredTime: testTime.Add(time.Hour), CreatedAt: testTime,
		},
		Items: []coupon.Item{{
			Kind: inventory.KindGift, RefID: "g1", MenuID: "m2", MenuName: "Fries",
			Quantity: 1, OriginalPrice: decimal.NewFromInt(4000),
			DiscountRate: 100, FinalPrice: decimal.Zero,
		}},
	}})

	rec := doJSON(t, h.Router(), http.MethodGet, "/coupons/c-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp couponResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "activating", resp.Status)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "0", resp.Items[0].FinalPrice)
	assert.Equal(t, 100, resp.Items[0].DiscountRate)
}

func TestCreateCoupon_Direct(t *testing.T) {
	h, coupons := newTestHandler(nil)
	coupons.withItems = &coupon.WithItems{Coupon: coupon.Coupon{ID: "c-1"}}

	rec := doJSON(t, h.Router(), http.MethodPost, "/coupons", "", createCouponRequest{
		UserID:  "u1",
		StoreID: "st-1",
		EventID: "ev-a",
		Items:   []createCouponItem{{Kind: "discount", RefID: "d1", Quantity: 1}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, coupons.created)
	assert.Equal(t, "ev-a", coupons.created.EventID)

	rec = doJSON(t, h.Router(), http.MethodPost, "/coupons", "", createCouponRequest{
		StoreID: "st-1", EventID: "ev-a",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "user_id is mandatory")
}

func TestCreateCoupon_GiftGroupConflictMapsToBadRequest(t *testing.T) {
	h, coupons := newTestHandler(nil)
	coupons.createErr = coupon.ErrGiftGroupConflict

	rec := doJSON(t, h.Router(), http.MethodPost, "/coupons", "", createCouponRequest{
		UserID:  "u1",
		StoreID: "st-1",
		EventID: "ev-a",
		Items: []createCouponItem{
			{Kind: "gift", RefID: "g1", Quantity: 1},
			{Kind: "gift", RefID: "g2", Quantity: 1},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListCoupons_RequiresUser(t *testing.T) {
	h, _ := newTestHandler(nil)

	rec := doJSON(t, h.Router(), http.MethodGet, "/coupons", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h.Router(), http.MethodGet, "/coupons?user_id=u1", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
