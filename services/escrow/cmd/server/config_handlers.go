package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pledge/pkg/escrow"
	"pledge/pkg/httpx"
)

type initConfigRequest struct {
	Caller             string `json:"caller"`
	Treasury           string `json:"treasury"`
	Charity            string `json:"charity"`
	TreasurySplitBps   uint16 `json:"treasury_split_bps"`
	PartialFeeBps      uint16 `json:"partial_fee_bps"`
	EditPenaltyBps     uint16 `json:"edit_penalty_bps"`
	GracePeriodSeconds int64  `json:"grace_period_seconds"`
}

type updateConfigRequest struct {
	Caller string              `json:"caller"`
	Update escrow.ConfigUpdate `json:"update"`
}

func registerConfigRoutes(api chi.Router, st escrowStore) {
	api.Post("/config", func(w http.ResponseWriter, r *http.Request) {
		var req initConfigRequest
		if err := httpx.ReadJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error(), nil)
			return
		}
		if req.Caller == "" {
			httpx.WriteError(w, http.StatusBadRequest, "MISSING_CALLER", "caller is required", nil)
			return
		}
		cfg, err := st.InitConfig(r.Context(), req.Caller, req.Treasury, req.Charity,
			req.TreasurySplitBps, req.PartialFeeBps, req.EditPenaltyBps, req.GracePeriodSeconds)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, map[string]any{
			"request_id": httpx.NewRequestID(),
			"config":     cfg,
		})
	})

	api.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		cfg, err := st.GetConfig(r.Context())
		if err != nil {
			writeStoreError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"request_id": httpx.NewRequestID(),
			"config":     cfg,
		})
	})

	api.Post("/config:update", func(w http.ResponseWriter, r *http.Request) {
		var req updateConfigRequest
		if err := httpx.ReadJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error(), nil)
			return
		}
		if req.Caller == "" {
			httpx.WriteError(w, http.StatusBadRequest, "MISSING_CALLER", "caller is required", nil)
			return
		}
		cfg, err := st.UpdateConfig(r.Context(), req.Caller, req.Update)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"request_id": httpx.NewRequestID(),
			"config":     cfg,
		})
	})
}
