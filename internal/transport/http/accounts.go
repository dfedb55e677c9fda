package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/tuanna1601/solibook/internal/domain"
)

// Depositor is the minimal interface needed to credit an account.
type Depositor interface {
	Deposit(ctx context.Context, owner string, asset domain.Asset, amount decimal.Decimal) error
}

// BalanceReader is the minimal interface needed to list balances.
type BalanceReader interface {
	Balances(ctx context.Context, owner string) ([]domain.Account, error)
}

// HandleDeposit returns an HTTP handler for POST /accounts/deposit.
func HandleDeposit(svc Depositor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req depositRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidVolume, domain.ErrInvalidVolume.Error())
			return
		}

		if err := svc.Deposit(r.Context(), req.Owner, domain.Asset(req.Asset), amount); err != nil {
			writeDomainError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleBalances returns an HTTP handler for GET /accounts?owner=.
func HandleBalances(svc BalanceReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		owner := r.URL.Query().Get("owner")
		if owner == "" {
			writeError(w, http.StatusBadRequest, codeOwnerRequired, domain.ErrOwnerRequired.Error())
			return
		}

		accounts, err := svc.Balances(r.Context(), owner)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := make([]accountResponse, 0, len(accounts))
		for _, a := range accounts {
			resp = append(resp, accountResponse{
				Owner:     a.Owner,
				Asset:     string(a.Asset),
				Available: a.Available.String(),
				Held:      a.Held.String(),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

type depositRequest struct {
	Owner  string `json:"owner"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type accountResponse struct {
	Owner     string `json:"owner"`
	Asset     string `json:"asset"`
	Available string `json:"available"`
	Held      string `json:"held"`
}
