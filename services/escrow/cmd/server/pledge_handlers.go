package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pledge/pkg/escrow"
	"pledge/pkg/httpx"
	"pledge/services/escrow/internal/idempotency"
)

type createPledgeRequest struct {
	Caller         string `json:"caller"`
	Asset          string `json:"asset"`
	StakeAmount    uint64 `json:"stake_amount"`
	Deadline       int64  `json:"deadline"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type editPledgeRequest struct {
	Caller      string `json:"caller"`
	NewDeadline *int64 `json:"new_deadline,omitempty"`
}

type reportCompletionRequest struct {
	Caller               string `json:"caller"`
	CompletionPercentage *uint8 `json:"completion_percentage"`
}

func registerPledgeRoutes(api chi.Router, st escrowStore) {
	api.Post("/pledges", func(w http.ResponseWriter, r *http.Request) {
		var req createPledgeRequest
		if err := httpx.ReadJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error(), nil)
			return
		}
		if req.Caller == "" {
			httpx.WriteError(w, http.StatusBadRequest, "MISSING_CALLER", "caller is required", nil)
			return
		}

		caller := idempotency.Caller{Account: req.Caller, IdempotencyKey: req.IdempotencyKey}
		const endpoint = "POST /escrow/pledges"
		if status, body, replayed, err := idempotency.Replay(r.Context(), st, caller, endpoint); err == nil && replayed {
			httpx.WriteJSON(w, status, body)
			return
		}

		p, err := st.CreatePledge(r.Context(), req.Caller, req.Asset, req.StakeAmount, req.Deadline)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		resp := map[string]any{"request_id": httpx.NewRequestID(), "pledge": p}
		_ = idempotency.Save(r.Context(), st, caller, endpoint, http.StatusCreated, resp)
		httpx.WriteJSON(w, http.StatusCreated, resp)
	})

	api.Get("/pledges", func(w http.ResponseWriter, r *http.Request) {
		owner := r.URL.Query().Get("owner")
		status := escrow.PledgeStatus(r.URL.Query().Get("status"))
		pledges, err := st.ListPledges(r.Context(), owner, status)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"request_id": httpx.NewRequestID(),
			"pledges":    pledges,
		})
	})

	api.Get("/pledges/{pledge_id}", func(w http.ResponseWriter, r *http.Request) {
		p, err := st.GetPledge(r.Context(), chi.URLParam(r, "pledge_id"))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"request_id": httpx.NewRequestID(),
			"pledge":     p,
		})
	})

	api.Post("/pledges/{pledge_id}:edit", func(w http.ResponseWriter, r *http.Request) {
		var req editPledgeRequest
		if err := httpx.ReadJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error(), nil)
			return
		}
		if req.Caller == "" {
			httpx.WriteError(w, http.StatusBadRequest, "MISSING_CALLER", "caller is required", nil)
			return
		}
		p, err := st.EditPledge(r.Context(), chi.URLParam(r, "pledge_id"), req.Caller, req.NewDeadline)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"request_id": httpx.NewRequestID(),
			"pledge":     p,
		})
	})

	api.Post("/pledges/{pledge_id}:report", func(w http.ResponseWriter, r *http.Request) {
		var req reportCompletionRequest
		if err := httpx.ReadJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error(), nil)
			return
		}
		if req.Caller == "" {
			httpx.WriteError(w, http.StatusBadRequest, "MISSING_CALLER", "caller is required", nil)
			return
		}
		if req.CompletionPercentage == nil {
			httpx.WriteError(w, http.StatusBadRequest, "MISSING_PERCENTAGE", "completion_percentage is required", nil)
			return
		}
		p, err := st.ReportCompletion(r.Context(), chi.URLParam(r, "pledge_id"), req.Caller, *req.CompletionPercentage)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"request_id": httpx.NewRequestID(),
			"pledge":     p,
		})
	})

	api.Get("/pledges/{pledge_id}/events", func(w http.ResponseWriter, r *http.Request) {
		events, err := st.ListEvents(r.Context(), chi.URLParam(r, "pledge_id"))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"request_id": httpx.NewRequestID(),
			"events":     events,
		})
	})
}
