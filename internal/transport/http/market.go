package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/tuanna1601/solibook/internal/domain"
)

// MarketReader is the minimal interface needed to serve market data.
type MarketReader interface {
	LatestSnapshot(ctx context.Context) (domain.MarketSnapshot, bool, error)
}

// HandleMarket returns an HTTP handler for GET /market. It serves the most
// recent snapshot, or 404 when no pass has run yet.
func HandleMarket(svc MarketReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		snap, ok, err := svc.LatestSnapshot(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "no market snapshot yet")
			return
		}

		resp := marketResponse{
			SellVolume:  snap.SellVolume.String(),
			SellPrice:   snap.SellPrice.String(),
			BuyVolume:   snap.BuyVolume.String(),
			BuyPrice:    snap.BuyPrice.String(),
			MatchVolume: snap.MatchVolume.String(),
			MatchPrice:  snap.MatchPrice.String(),
			CreatedAt:   snap.CreatedAt,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

type marketResponse struct {
	SellVolume  string    `json:"sell_volume"`
	SellPrice   string    `json:"sell_price"`
	BuyVolume   string    `json:"buy_volume"`
	BuyPrice    string    `json:"buy_price"`
	MatchVolume string    `json:"match_volume"`
	MatchPrice  string    `json:"match_price"`
	CreatedAt   time.Time `json:"created_at"`
}
