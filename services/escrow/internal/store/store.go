// Package store persists escrow state in Postgres. Every mutating operation
// runs in a single transaction that locks the pledge row, re-checks the
// domain preconditions against current state, applies custody movements and
// appends audit events, so each call either fully applies or fully aborts.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "embed"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pledge/pkg/escrow"
	"pledge/services/escrow/internal/custody"
)

//go:embed schema.sql
var schemaSQL string

var (
	ErrConfigExists  = errors.New("store: config already initialized")
	ErrConfigMissing = errors.New("store: config not initialized")
	ErrNotFound      = errors.New("store: pledge not found")
)

type Store struct {
	DB *pgxpool.Pool

	// now is read once at the start of each operation and threaded through
	// the domain, so every check within one call sees the same timestamp.
	now func() int64
}

func New(db *pgxpool.Pool) *Store {
	return &Store{DB: db, now: func() int64 { return time.Now().Unix() }}
}

// EnsureSchema applies the embedded schema. Idempotent; dev and test setup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.DB.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// --- config ---

// InitConfig creates the config singleton. A second call fails with
// ErrConfigExists and changes nothing.
func (s *Store) InitConfig(ctx context.Context, admin, treasury, charity string, treasurySplitBps, partialFeeBps, editPenaltyBps uint16, gracePeriodSeconds int64) (escrow.Config, error) {
	cfg, event, err := escrow.NewConfig(admin, treasury, charity, treasurySplitBps, partialFeeBps, editPenaltyBps, gracePeriodSeconds)
	if err != nil {
		return escrow.Config{}, err
	}
	err = s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
INSERT INTO escrow_config(id, admin, treasury, charity, treasury_split_bps, partial_fee_bps, edit_penalty_bps, grace_period_seconds, paused)
VALUES(1, $1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO NOTHING`,
			cfg.Admin, cfg.Treasury, cfg.Charity,
			int32(cfg.TreasurySplitBps), int32(cfg.PartialFeeBps), int32(cfg.EditPenaltyBps),
			cfg.GracePeriodSeconds, cfg.Paused)
		if err != nil {
			return fmt.Errorf("insert config: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return ErrConfigExists
		}
		return appendConfigEvent(ctx, tx, event)
	})
	if err != nil {
		return escrow.Config{}, err
	}
	return cfg, nil
}

func (s *Store) GetConfig(ctx context.Context) (escrow.Config, error) {
	return loadConfig(ctx, s.DB, false)
}

// querier covers both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func loadConfig(ctx context.Context, q querier, forUpdate bool) (escrow.Config, error) {
	query := `
SELECT admin, treasury, charity, treasury_split_bps, partial_fee_bps, edit_penalty_bps, grace_period_seconds, paused
FROM escrow_config WHERE id = 1`
	if forUpdate {
		query += " FOR UPDATE"
	}
	var cfg escrow.Config
	var splitBps, feeBps, penaltyBps int32
	err := q.QueryRow(ctx, query).Scan(
		&cfg.Admin, &cfg.Treasury, &cfg.Charity,
		&splitBps, &feeBps, &penaltyBps,
		&cfg.GracePeriodSeconds, &cfg.Paused)
	if errors.Is(err, pgx.ErrNoRows) {
		return escrow.Config{}, ErrConfigMissing
	}
	if err != nil {
		return escrow.Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg.TreasurySplitBps = uint16(splitBps)
	cfg.PartialFeeBps = uint16(feeBps)
	cfg.EditPenaltyBps = uint16(penaltyBps)
	return cfg, nil
}

// UpdateConfig applies an admin update and appends one ConfigUpdated event
// per supplied field.
func (s *Store) UpdateConfig(ctx context.Context, caller string, update escrow.ConfigUpdate) (escrow.Config, error) {
	var next escrow.Config
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		cfg, err := loadConfig(ctx, tx, true)
		if err != nil {
			return err
		}
		applied, changes, err := cfg.Apply(caller, update)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
UPDATE escrow_config
SET treasury=$1, charity=$2, treasury_split_bps=$3, partial_fee_bps=$4, edit_penalty_bps=$5,
    grace_period_seconds=$6, paused=$7, updated_at=now()
WHERE id = 1`,
			applied.Treasury, applied.Charity,
			int32(applied.TreasurySplitBps), int32(applied.PartialFeeBps), int32(applied.EditPenaltyBps),
			applied.GracePeriodSeconds, applied.Paused)
		if err != nil {
			return fmt.Errorf("update config: %w", err)
		}
		for _, ch := range changes {
			if err := appendConfigEvent(ctx, tx, ch.Event()); err != nil {
				return err
			}
		}
		next = applied
		return nil
	})
	if err != nil {
		return escrow.Config{}, err
	}
	return next, nil
}

// --- pledges ---

// CreatePledge opens a pledge and its custody account in one transaction:
// the stake moves into custody exactly when the pledge record is born.
func (s *Store) CreatePledge(ctx context.Context, owner, asset string, stakeAmount uint64, deadline int64) (escrow.Pledge, error) {
	var created escrow.Pledge
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		cfg, err := loadConfig(ctx, tx, false)
		if err != nil {
			return err
		}
		out, err := escrow.NewPledge(cfg, "plg_"+uuid.NewString(), owner, asset, stakeAmount, deadline, s.now())
		if err != nil {
			return err
		}
		if err := insertPledge(ctx, tx, out.Pledge); err != nil {
			return err
		}
		if err := custody.Open(ctx, tx, out.Pledge.ID, asset, stakeAmount); err != nil {
			return err
		}
		if err := appendPledgeEvent(ctx, tx, out.Pledge.ID, out.Event); err != nil {
			return err
		}
		created = out.Pledge
		return nil
	})
	if err != nil {
		return escrow.Pledge{}, err
	}
	return created, nil
}

// EditPledge charges the penalty, disburses the treasury/charity shares from
// custody and persists the reduced stake (and new deadline, if any).
func (s *Store) EditPledge(ctx context.Context, pledgeID, caller string, newDeadline *int64) (escrow.Pledge, error) {
	var edited escrow.Pledge
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		cfg, err := loadConfig(ctx, tx, false)
		if err != nil {
			return err
		}
		p, err := lockPledge(ctx, tx, pledgeID)
		if err != nil {
			return err
		}
		out, err := escrow.EditPledge(cfg, p, caller, newDeadline, s.now())
		if err != nil {
			return err
		}
		for _, d := range out.Disbursements {
			if err := custody.Disburse(ctx, tx, pledgeID, d, "EDIT_PENALTY"); err != nil {
				return err
			}
		}
		if err := custody.VerifyStake(ctx, tx, pledgeID, out.Pledge.StakeAmount); err != nil {
			return err
		}
		if err := updatePledge(ctx, tx, out.Pledge); err != nil {
			return err
		}
		if err := appendPledgeEvent(ctx, tx, pledgeID, out.Event); err != nil {
			return err
		}
		edited = out.Pledge
		return nil
	})
	if err != nil {
		return escrow.Pledge{}, err
	}
	return edited, nil
}

// ReportCompletion records the owner's report. No funds move.
func (s *Store) ReportCompletion(ctx context.Context, pledgeID, caller string, pct uint8) (escrow.Pledge, error) {
	var reported escrow.Pledge
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		cfg, err := loadConfig(ctx, tx, false)
		if err != nil {
			return err
		}
		p, err := lockPledge(ctx, tx, pledgeID)
		if err != nil {
			return err
		}
		out, err := escrow.ReportCompletion(cfg, p, caller, pct, s.now())
		if err != nil {
			return err
		}
		if err := updatePledge(ctx, tx, out.Pledge); err != nil {
			return err
		}
		if err := appendPledgeEvent(ctx, tx, pledgeID, out.Event); err != nil {
			return err
		}
		reported = out.Pledge
		return nil
	})
	if err != nil {
		return escrow.Pledge{}, err
	}
	return reported, nil
}

// ProcessCompletion settles a Reported pledge with its recorded percentage.
func (s *Store) ProcessCompletion(ctx context.Context, pledgeID string) (escrow.Pledge, error) {
	return s.settle(ctx, pledgeID, func(cfg escrow.Config, p escrow.Pledge, now int64) (escrow.Outcome, error) {
		return escrow.ProcessCompletion(cfg, p, now)
	})
}

// ProcessExpired settles an Active pledge whose report window elapsed. The
// percentage comes from the external attestation source, unverified here.
func (s *Store) ProcessExpired(ctx context.Context, pledgeID string, pct uint8) (escrow.Pledge, error) {
	return s.settle(ctx, pledgeID, func(cfg escrow.Config, p escrow.Pledge, now int64) (escrow.Outcome, error) {
		return escrow.ProcessExpired(cfg, p, pct, now)
	})
}

func (s *Store) settle(ctx context.Context, pledgeID string, run func(escrow.Config, escrow.Pledge, int64) (escrow.Outcome, error)) (escrow.Pledge, error) {
	var settled escrow.Pledge
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		cfg, err := loadConfig(ctx, tx, false)
		if err != nil {
			return err
		}
		p, err := lockPledge(ctx, tx, pledgeID)
		if err != nil {
			return err
		}
		// Custody must hold exactly the recorded stake before anything moves.
		if err := custody.VerifyStake(ctx, tx, pledgeID, p.StakeAmount); err != nil {
			return err
		}
		out, err := run(cfg, p, s.now())
		if err != nil {
			return err
		}
		for _, d := range out.Disbursements {
			if err := custody.Disburse(ctx, tx, pledgeID, d, "SETTLEMENT"); err != nil {
				return err
			}
		}
		// Close fails unless the balance reached exactly zero, which makes
		// the conservation invariant a hard stop rather than a best effort.
		if out.CloseCustody {
			if err := custody.Close(ctx, tx, pledgeID); err != nil {
				return err
			}
		}
		if err := updatePledge(ctx, tx, out.Pledge); err != nil {
			return err
		}
		if err := appendPledgeEvent(ctx, tx, pledgeID, out.Event); err != nil {
			return err
		}
		settled = out.Pledge
		return nil
	})
	if err != nil {
		return escrow.Pledge{}, err
	}
	return settled, nil
}

func (s *Store) GetPledge(ctx context.Context, pledgeID string) (escrow.Pledge, error) {
	return scanPledge(s.DB.QueryRow(ctx, `
SELECT pledge_id, owner_account, asset, stake_amount, deadline, status, completion_percentage, reported_at, created_at
FROM pledges WHERE pledge_id = $1`, pledgeID))
}

// ListPledges filters by owner and/or status; empty strings mean no filter.
func (s *Store) ListPledges(ctx context.Context, owner string, status escrow.PledgeStatus) ([]escrow.Pledge, error) {
	rows, err := s.DB.Query(ctx, `
SELECT pledge_id, owner_account, asset, stake_amount, deadline, status, completion_percentage, reported_at, created_at
FROM pledges
WHERE ($1 = '' OR owner_account = $1)
  AND ($2 = '' OR status = $2)
ORDER BY created_at DESC`, owner, string(status))
	if err != nil {
		return nil, fmt.Errorf("list pledges: %w", err)
	}
	defer rows.Close()
	var out []escrow.Pledge
	for rows.Next() {
		p, err := scanPledge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListExpired returns Active pledges whose report window has fully elapsed
// at the given time. Crank support: each returned pledge is eligible for
// ProcessExpired.
func (s *Store) ListExpired(ctx context.Context, now int64) ([]escrow.Pledge, error) {
	rows, err := s.DB.Query(ctx, `
SELECT p.pledge_id, p.owner_account, p.asset, p.stake_amount, p.deadline, p.status, p.completion_percentage, p.reported_at, p.created_at
FROM pledges p, escrow_config c
WHERE p.status = $1 AND p.deadline + c.grace_period_seconds < $2
ORDER BY p.deadline ASC`, string(escrow.StatusActive), now)
	if err != nil {
		return nil, fmt.Errorf("list expired: %w", err)
	}
	defer rows.Close()
	var out []escrow.Pledge
	for rows.Next() {
		p, err := scanPledge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListEvents returns the append-only audit trail of one pledge.
func (s *Store) ListEvents(ctx context.Context, pledgeID string) ([]map[string]any, error) {
	rows, err := s.DB.Query(ctx, `
SELECT type, payload, occurred_at FROM pledge_events WHERE pledge_id = $1 ORDER BY occurred_at ASC`, pledgeID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	var out []map[string]any
	for rows.Next() {
		var typ string
		var payload []byte
		var at time.Time
		if err := rows.Scan(&typ, &payload, &at); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var obj any
		_ = json.Unmarshal(payload, &obj)
		out = append(out, map[string]any{"type": typ, "payload": obj, "at": at.Format(time.RFC3339)})
	}
	return out, rows.Err()
}

// --- idempotency ---

func (s *Store) GetIdempotencyRecord(ctx context.Context, account, idempotencyKey, endpoint string) (int, map[string]any, bool, error) {
	var status int
	var body []byte
	err := s.DB.QueryRow(ctx, `
SELECT response_status, response_body FROM idempotency_records
WHERE account = $1 AND idempotency_key = $2 AND endpoint = $3`, account, idempotencyKey, endpoint).
		Scan(&status, &body)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, fmt.Errorf("get idempotency record: %w", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, nil, false, fmt.Errorf("decode idempotency body: %w", err)
	}
	return status, payload, true, nil
}

func (s *Store) SaveIdempotencyRecord(ctx context.Context, account, idempotencyKey, endpoint string, responseStatus int, responseBody map[string]any) error {
	b, err := json.Marshal(responseBody)
	if err != nil {
		return fmt.Errorf("encode idempotency body: %w", err)
	}
	_, err = s.DB.Exec(ctx, `
INSERT INTO idempotency_records(account, idempotency_key, endpoint, response_status, response_body)
VALUES($1, $2, $3, $4, $5::jsonb)
ON CONFLICT (account, idempotency_key, endpoint) DO NOTHING`,
		account, idempotencyKey, endpoint, responseStatus, string(b))
	if err != nil {
		return fmt.Errorf("save idempotency record: %w", err)
	}
	return nil
}

// --- row helpers ---

func insertPledge(ctx context.Context, tx pgx.Tx, p escrow.Pledge) error {
	_, err := tx.Exec(ctx, `
INSERT INTO pledges(pledge_id, owner_account, asset, stake_amount, deadline, status, completion_percentage, reported_at, created_at)
VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.Owner, p.Asset, int64(p.StakeAmount), p.Deadline, string(p.Status),
		pctColumn(p.CompletionPercentage), p.ReportedAt, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert pledge: %w", err)
	}
	return nil
}

func updatePledge(ctx context.Context, tx pgx.Tx, p escrow.Pledge) error {
	_, err := tx.Exec(ctx, `
UPDATE pledges
SET stake_amount=$2, deadline=$3, status=$4, completion_percentage=$5, reported_at=$6, updated_at=now()
WHERE pledge_id = $1`,
		p.ID, int64(p.StakeAmount), p.Deadline, string(p.Status),
		pctColumn(p.CompletionPercentage), p.ReportedAt)
	if err != nil {
		return fmt.Errorf("update pledge: %w", err)
	}
	return nil
}

func lockPledge(ctx context.Context, tx pgx.Tx, pledgeID string) (escrow.Pledge, error) {
	return scanPledge(tx.QueryRow(ctx, `
SELECT pledge_id, owner_account, asset, stake_amount, deadline, status, completion_percentage, reported_at, created_at
FROM pledges WHERE pledge_id = $1 FOR UPDATE`, pledgeID))
}

func scanPledge(row pgx.Row) (escrow.Pledge, error) {
	var p escrow.Pledge
	var stake int64
	var status string
	var pct sql.NullInt16
	var reportedAt sql.NullInt64
	err := row.Scan(&p.ID, &p.Owner, &p.Asset, &stake, &p.Deadline, &status, &pct, &reportedAt, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return escrow.Pledge{}, ErrNotFound
	}
	if err != nil {
		return escrow.Pledge{}, fmt.Errorf("scan pledge: %w", err)
	}
	p.StakeAmount = uint64(stake)
	p.Status = escrow.PledgeStatus(status)
	if pct.Valid {
		v := uint8(pct.Int16)
		p.CompletionPercentage = &v
	}
	if reportedAt.Valid {
		v := reportedAt.Int64
		p.ReportedAt = &v
	}
	return p, nil
}

func pctColumn(pct *uint8) any {
	if pct == nil {
		return nil
	}
	return int16(*pct)
}

func appendPledgeEvent(ctx context.Context, tx pgx.Tx, pledgeID string, event escrow.Event) error {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = tx.Exec(ctx, `
INSERT INTO pledge_events(event_id, pledge_id, type, payload) VALUES($1, $2, $3, $4::jsonb)`,
		"evt_"+uuid.NewString(), pledgeID, event.EventType(), string(b))
	if err != nil {
		return fmt.Errorf("append pledge event: %w", err)
	}
	return nil
}

func appendConfigEvent(ctx context.Context, tx pgx.Tx, event escrow.Event) error {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = tx.Exec(ctx, `
INSERT INTO config_events(event_id, type, payload) VALUES($1, $2, $3::jsonb)`,
		"evt_"+uuid.NewString(), event.EventType(), string(b))
	if err != nil {
		return fmt.Errorf("append config event: %w", err)
	}
	return nil
}
