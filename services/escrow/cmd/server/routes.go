package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pledge/pkg/escrow"
	"pledge/pkg/httpx"
	"pledge/services/escrow/internal/custody"
	"pledge/services/escrow/internal/store"
)

// escrowStore is the slice of *store.Store the handlers use. Tests swap in
// a fake.
type escrowStore interface {
	InitConfig(ctx context.Context, admin, treasury, charity string, treasurySplitBps, partialFeeBps, editPenaltyBps uint16, gracePeriodSeconds int64) (escrow.Config, error)
	GetConfig(ctx context.Context) (escrow.Config, error)
	UpdateConfig(ctx context.Context, caller string, update escrow.ConfigUpdate) (escrow.Config, error)

	CreatePledge(ctx context.Context, owner, asset string, stakeAmount uint64, deadline int64) (escrow.Pledge, error)
	EditPledge(ctx context.Context, pledgeID, caller string, newDeadline *int64) (escrow.Pledge, error)
	ReportCompletion(ctx context.Context, pledgeID, caller string, pct uint8) (escrow.Pledge, error)
	ProcessCompletion(ctx context.Context, pledgeID string) (escrow.Pledge, error)
	ProcessExpired(ctx context.Context, pledgeID string, pct uint8) (escrow.Pledge, error)

	GetPledge(ctx context.Context, pledgeID string) (escrow.Pledge, error)
	ListPledges(ctx context.Context, owner string, status escrow.PledgeStatus) ([]escrow.Pledge, error)
	ListExpired(ctx context.Context, now int64) ([]escrow.Pledge, error)
	ListEvents(ctx context.Context, pledgeID string) ([]map[string]any, error)

	GetIdempotencyRecord(ctx context.Context, account, idempotencyKey, endpoint string) (int, map[string]any, bool, error)
	SaveIdempotencyRecord(ctx context.Context, account, idempotencyKey, endpoint string, responseStatus int, responseBody map[string]any) error
}

func newAPIRouter(st escrowStore) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Route("/escrow", func(api chi.Router) {
		registerConfigRoutes(api, st)
		registerPledgeRoutes(api, st)
		registerSettlementRoutes(api, st)
	})
	return r
}

// writeStoreError maps any operation failure to the error envelope: domain
// violations keep their taxonomy, store sentinels get specific codes, and
// everything else is a DB error.
func writeStoreError(w http.ResponseWriter, err error) {
	var de *escrow.Error
	switch {
	case errors.As(err, &de):
		httpx.WriteDomainError(w, err)
	case errors.Is(err, store.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "NOT_FOUND", "pledge not found", nil)
	case errors.Is(err, store.ErrConfigExists):
		httpx.WriteError(w, http.StatusConflict, "ALREADY_INITIALIZED", "config already initialized", nil)
	case errors.Is(err, store.ErrConfigMissing):
		httpx.WriteError(w, http.StatusConflict, "NOT_INITIALIZED", "config not initialized", nil)
	case errors.Is(err, custody.ErrMismatch), errors.Is(err, custody.ErrNotEmpty),
		errors.Is(err, custody.ErrInsufficient), errors.Is(err, custody.ErrClosed),
		errors.Is(err, custody.ErrNotFound):
		httpx.WriteError(w, http.StatusInternalServerError, "CUSTODY_ERROR", err.Error(), nil)
	default:
		httpx.WriteError(w, http.StatusInternalServerError, "DB_ERROR", err.Error(), nil)
	}
}
