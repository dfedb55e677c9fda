package http

import (
	"context"
	"net/http"
	"strings"
)

// OrderCanceler is the minimal interface needed to cancel an order.
type OrderCanceler interface {
	CancelOrder(ctx context.Context, id string) error
}

// HandleCancelOrder returns an HTTP handler for POST /orders/{id}/cancel.
func HandleCancelOrder(svc OrderCanceler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		id, ok := parseCancelOrderPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		if err := svc.CancelOrder(r.Context(), id); err != nil {
			writeDomainError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func parseCancelOrderPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 {
		return "", false
	}
	if parts[0] != "orders" || parts[2] != "cancel" {
		return "", false
	}
	if parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
