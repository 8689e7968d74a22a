package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"pledge/pkg/httpx"
)

type processExpiredRequest struct {
	CompletionPercentage *uint8 `json:"completion_percentage"`
}

// Settlement triggers are permissionless: no caller field, any party may
// invoke them. Repeated invocation is rejected by the status precondition
// before any fund movement.
func registerSettlementRoutes(api chi.Router, st escrowStore) {
	api.Post("/pledges/{pledge_id}:processCompletion", func(w http.ResponseWriter, r *http.Request) {
		p, err := st.ProcessCompletion(r.Context(), chi.URLParam(r, "pledge_id"))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"request_id": httpx.NewRequestID(),
			"pledge":     p,
		})
	})

	api.Post("/pledges/{pledge_id}:processExpired", func(w http.ResponseWriter, r *http.Request) {
		var req processExpiredRequest
		if err := httpx.ReadJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error(), nil)
			return
		}
		if req.CompletionPercentage == nil {
			httpx.WriteError(w, http.StatusBadRequest, "MISSING_PERCENTAGE", "completion_percentage is required", nil)
			return
		}
		p, err := st.ProcessExpired(r.Context(), chi.URLParam(r, "pledge_id"), *req.CompletionPercentage)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"request_id": httpx.NewRequestID(),
			"pledge":     p,
		})
	})

	api.Get("/expired", func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Unix()
		if v := r.URL.Query().Get("now"); v != "" {
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				httpx.WriteError(w, http.StatusBadRequest, "BAD_TIMESTAMP", "now must be unix seconds", nil)
				return
			}
			now = parsed
		}
		pledges, err := st.ListExpired(r.Context(), now)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"request_id": httpx.NewRequestID(),
			"pledges":    pledges,
		})
	})
}
