package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tuanna1601/solibook/internal/app"
	"github.com/tuanna1601/solibook/internal/domain"
)

// OrderPlacer is the minimal interface needed to place an order.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, in app.PlaceOrderInput) (string, error)
}

// OrderLister is the minimal interface needed to list an owner's orders.
type OrderLister interface {
	OrdersByOwner(ctx context.Context, owner string) ([]domain.Order, error)
}

// HandleOrders routes POST (place) and GET (list by owner) for /orders.
func HandleOrders(placer OrderPlacer, lister OrderLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handlePlaceOrder(placer, w, r)
		case http.MethodGet:
			handleListOrders(lister, w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		}
	}
}

func handlePlaceOrder(svc OrderPlacer, w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}

	in, err := req.toInput()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	id, err := svc.PlaceOrder(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(placeOrderResponse{ID: id})
}

func handleListOrders(svc OrderLister, w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, codeOwnerRequired, domain.ErrOwnerRequired.Error())
		return
	}

	orders, err := svc.OrdersByOwner(r.Context(), owner)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toOrderResponse(o))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch err {
	case domain.ErrInvalidPrice:
		writeError(w, http.StatusBadRequest, codeInvalidPrice, err.Error())
	case domain.ErrInvalidVolume:
		writeError(w, http.StatusBadRequest, codeInvalidVolume, err.Error())
	case domain.ErrUnknownSide:
		writeError(w, http.StatusBadRequest, codeUnknownSide, err.Error())
	case domain.ErrUnknownAsset:
		writeError(w, http.StatusBadRequest, codeUnknownAsset, err.Error())
	case domain.ErrOwnerRequired:
		writeError(w, http.StatusBadRequest, codeOwnerRequired, err.Error())
	case domain.ErrInvalidID:
		writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
	case domain.ErrOrderNotFound:
		writeError(w, http.StatusNotFound, codeOrderNotFound, err.Error())
	case domain.ErrInsufficientFunds:
		writeError(w, http.StatusConflict, codeInsufficientFunds, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

type placeOrderRequest struct {
	LimitPrice string `json:"limit_price"`
	Volume     string `json:"volume"`
	Owner      string `json:"owner"`
	Side       string `json:"side"`
}

func (r placeOrderRequest) toInput() (app.PlaceOrderInput, error) {
	price, err := decimal.NewFromString(r.LimitPrice)
	if err != nil {
		return app.PlaceOrderInput{}, domain.ErrInvalidPrice
	}
	volume, err := decimal.NewFromString(r.Volume)
	if err != nil {
		return app.PlaceOrderInput{}, domain.ErrInvalidVolume
	}
	return app.PlaceOrderInput{
		LimitPrice: price,
		Volume:     volume,
		Owner:      r.Owner,
		Side:       domain.Side(r.Side),
	}, nil
}

type placeOrderResponse struct {
	ID string `json:"id"`
}

type orderResponse struct {
	ID             string    `json:"id"`
	LimitPrice     string    `json:"limit_price"`
	OriginalVolume string    `json:"original_volume"`
	CurrentVolume  string    `json:"current_volume"`
	Side           string    `json:"side"`
	PassStatus     string    `json:"pass_status"`
	Owner          string    `json:"owner"`
	CreatedAt      time.Time `json:"created_at"`
}

func toOrderResponse(o domain.Order) orderResponse {
	return orderResponse{
		ID:             o.ID,
		LimitPrice:     o.LimitPrice.String(),
		OriginalVolume: o.OriginalVolume.String(),
		CurrentVolume:  o.CurrentVolume.String(),
		Side:           string(o.Side),
		PassStatus:     string(o.PassStatus),
		Owner:          o.Owner,
		CreatedAt:      o.CreatedAt,
	}
}
