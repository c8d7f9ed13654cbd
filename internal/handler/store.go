package handler

import (
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/happyhour-app/happyhour/internal/domain/event"
	"github.com/happyhour-app/happyhour/internal/domain/inventory"
)

type storeResponse struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Category string  `json:"category"`
	Active   bool    `json:"active"`
}

type giftOptionResponse struct {
	RefID         string `json:"ref_id"`
	MenuID        string `json:"menu_id"`
	MenuName      string `json:"menu_name"`
	OriginalPrice string `json:"original_price"`
	Active        bool   `json:"active"`
}

// giftGroupResponse presents a pick-exactly-one bundle of free items.
type giftGroupResponse struct {
	ID      string               `json:"id"`
	Options []giftOptionResponse `json:"options"`
}

type eventResponse struct {
	ID               string              `json:"id"`
	StoreID          string              `json:"store_id"`
	Title            string              `json:"title"`
	StartDate        string              `json:"start_date"`
	EndDate          string              `json:"end_date"`
	HappyHourStart   string              `json:"happy_hour_start"`
	HappyHourEnd     string              `json:"happy_hour_end"`
	Weekdays         []int               `json:"weekdays"`
	MaxDiscountRate  *int                `json:"max_discount_rate,omitempty"`
	MaxFinalPrice    *string             `json:"max_final_price,omitempty"`
	MaxOriginalPrice *string             `json:"max_original_price,omitempty"`
	GiftGroups       []giftGroupResponse `json:"gift_groups,omitempty"`
	OpenNow          bool                `json:"open_now"`
}

func (h *Handler) getStore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "storeID")

	s, err := h.stores.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, storeResponse{
		ID: s.ID, Name: s.Name, Lat: s.Lat, Lng: s.Lng,
		Category: s.Category, Active: s.Active,
	})
}

func (h *Handler) listStoreEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "storeID")

	if _, err := h.stores.GetByID(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}

	events, err := h.events.ListByStore(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	now := h.now()
	out := make([]eventResponse, len(events))
	for i := range events {
		groups, err := h.catalog.ListGiftGroups(r.Context(), events[i].ID)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		out[i] = toEventResponse(&events[i], groups, now)
	}
	writeJSON(w, http.StatusOK, out)
}

func toEventResponse(ev *event.Event, groups []inventory.GiftGroup, now time.Time) eventResponse {
	weekdays := make([]int, 0, len(ev.Weekdays))
	for d, on := range ev.Weekdays {
		if on {
			weekdays = append(weekdays, int(d))
		}
	}
	sort.Ints(weekdays)

	resp := eventResponse{
		ID:              ev.ID,
		StoreID:         ev.StoreID,
		Title:           ev.Title,
		StartDate:       ev.StartDate.Format("2006-01-02"),
		EndDate:         ev.EndDate.Format("2006-01-02"),
		HappyHourStart:  ev.HappyHourStart.String(),
		HappyHourEnd:    ev.HappyHourEnd.String(),
		Weekdays:        weekdays,
		MaxDiscountRate: ev.MaxDiscountRate,
		OpenNow:         event.EvaluateWindow(ev, now) == nil,
	}
	if ev.MaxFinalPrice != nil {
		s := ev.MaxFinalPrice.String()
		resp.MaxFinalPrice = &s
	}
	if ev.MaxOriginalPrice != nil {
		s := ev.MaxOriginalPrice.String()
		resp.MaxOriginalPrice = &s
	}
	for _, g := range groups {
		gr := giftGroupResponse{ID: g.ID}
		for _, o := range g.Options {
			gr.Options = append(gr.Options, giftOptionResponse{
				RefID:         o.RefID,
				MenuID:        o.MenuID,
				MenuName:      o.MenuName,
				OriginalPrice: o.OriginalPrice.String(),
				Active:        o.Active,
			})
		}
		resp.GiftGroups = append(resp.GiftGroups, gr)
	}
	return resp
}
