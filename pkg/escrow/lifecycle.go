package escrow

// Disbursement is one outgoing transfer from a pledge's custody account.
type Disbursement struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// Outcome is the full effect of a successful lifecycle operation: the new
// pledge state, the custody movements to apply, and the audit event. The
// service layer commits all of it atomically or none of it.
type Outcome struct {
	Pledge        Pledge
	Disbursements []Disbursement
	CloseCustody  bool
	Event         Event
}

// NewPledge validates a create request and returns the pledge in its initial
// Active state. The caller becomes the owner; moving the stake into a fresh
// custody account is the service layer's side of the same transaction.
func NewPledge(cfg Config, id, owner, asset string, stakeAmount uint64, deadline, now int64) (Outcome, error) {
	if cfg.Paused {
		return Outcome{}, ErrPaused
	}
	if stakeAmount == 0 {
		return Outcome{}, ErrInvalidStakeAmount
	}
	if deadline <= now {
		return Outcome{}, ErrInvalidDeadline
	}
	p := Pledge{
		ID:          id,
		Owner:       owner,
		Asset:       asset,
		StakeAmount: stakeAmount,
		Deadline:    deadline,
		Status:      StatusActive,
		CreatedAt:   now,
	}
	return Outcome{
		Pledge: p,
		Event:  PledgeCreated{PledgeID: id, Owner: owner, StakeAmount: stakeAmount, Deadline: deadline},
	}, nil
}

// EditPledge charges the edit penalty against the remaining stake, splits it
// between treasury and charity, and optionally moves the deadline forward.
// Only the owner may edit, only while Active and before the deadline, and
// not while paused.
func EditPledge(cfg Config, p Pledge, caller string, newDeadline *int64, now int64) (Outcome, error) {
	if caller != p.Owner {
		return Outcome{}, ErrNotOwner
	}
	if cfg.Paused {
		return Outcome{}, ErrPaused
	}
	if p.Status != StatusActive {
		return Outcome{}, ErrPledgeNotActive
	}
	if now >= p.Deadline {
		return Outcome{}, ErrDeadlinePassed
	}
	if newDeadline != nil && *newDeadline <= now {
		return Outcome{}, ErrInvalidDeadline
	}

	penalty, err := EditPenalty(p.StakeAmount, cfg.EditPenaltyBps)
	if err != nil {
		return Outcome{}, err
	}
	treasuryAmt, charityAmt, err := Split(penalty, cfg.TreasurySplitBps)
	if err != nil {
		return Outcome{}, err
	}
	remaining, err := checkedSub(p.StakeAmount, penalty)
	if err != nil {
		return Outcome{}, err
	}

	next := p
	next.StakeAmount = remaining
	if newDeadline != nil {
		next.Deadline = *newDeadline
	}

	out := Outcome{
		Pledge: next,
		Event:  PledgeEdited{PledgeID: p.ID, PenaltyPaid: penalty},
	}
	if treasuryAmt > 0 {
		out.Disbursements = append(out.Disbursements, Disbursement{To: cfg.Treasury, Amount: treasuryAmt})
	}
	if charityAmt > 0 {
		out.Disbursements = append(out.Disbursements, Disbursement{To: cfg.Charity, Amount: charityAmt})
	}
	return out, nil
}

// ReportCompletion records the owner's self-reported completion percentage.
// Legal only inside the report window: deadline <= now <= deadline + grace.
// No funds move; settlement happens in ProcessCompletion.
func ReportCompletion(cfg Config, p Pledge, caller string, pct uint8, now int64) (Outcome, error) {
	if caller != p.Owner {
		return Outcome{}, ErrNotOwner
	}
	if p.Status != StatusActive {
		return Outcome{}, ErrPledgeNotActive
	}
	if pct > 100 {
		return Outcome{}, ErrInvalidPercentage
	}
	if now < p.Deadline {
		return Outcome{}, ErrDeadlineNotPassed
	}
	end, err := graceEnd(p.Deadline, cfg.GracePeriodSeconds)
	if err != nil {
		return Outcome{}, err
	}
	if now > end {
		return Outcome{}, ErrGracePeriodEnded
	}

	next := p
	next.Status = StatusReported
	next.CompletionPercentage = &pct
	next.ReportedAt = &now
	return Outcome{
		Pledge: next,
		Event:  CompletionReported{PledgeID: p.ID, CompletionPercentage: pct},
	}, nil
}

// ProcessCompletion settles a Reported pledge using the percentage the owner
// already recorded. Permissionless: the report itself satisfied the time
// window, so no further time check applies.
func ProcessCompletion(cfg Config, p Pledge, now int64) (Outcome, error) {
	if p.Status != StatusReported {
		return Outcome{}, ErrPledgeNotReported
	}
	if p.CompletionPercentage == nil {
		return Outcome{}, ErrMissingReport
	}
	return settle(cfg, p, *p.CompletionPercentage)
}

// ProcessExpired settles an Active pledge whose report window has elapsed
// unreported. Permissionless; the supplied percentage is a trust input from
// the external attestation mechanism and is not verified here.
func ProcessExpired(cfg Config, p Pledge, pct uint8, now int64) (Outcome, error) {
	if p.Status != StatusActive {
		return Outcome{}, ErrPledgeNotActive
	}
	end, err := graceEnd(p.Deadline, cfg.GracePeriodSeconds)
	if err != nil {
		return Outcome{}, err
	}
	if now <= end {
		return Outcome{}, ErrGracePeriodNotEnded
	}
	if pct > 100 {
		return Outcome{}, ErrInvalidPercentage
	}
	return settle(cfg, p, pct)
}

// settle is the terminal transition shared by both triggers. It empties the
// custody account exactly: refund + treasury + charity == stake.
func settle(cfg Config, p Pledge, pct uint8) (Outcome, error) {
	refund, fee, err := PartialRefund(p.StakeAmount, pct, cfg.PartialFeeBps)
	if err != nil {
		return Outcome{}, err
	}
	forfeited, err := checkedSub(p.StakeAmount, refund)
	if err != nil {
		return Outcome{}, err
	}
	forfeited, err = checkedSub(forfeited, fee)
	if err != nil {
		return Outcome{}, err
	}
	toSplit, err := checkedAdd(fee, forfeited)
	if err != nil {
		return Outcome{}, err
	}
	treasuryAmt, charityAmt, err := Split(toSplit, cfg.TreasurySplitBps)
	if err != nil {
		return Outcome{}, err
	}

	next := p
	next.CompletionPercentage = &pct
	var event Event
	if pct > 0 {
		next.Status = StatusCompleted
		event = PledgeCompleted{PledgeID: p.ID, CompletionPercentage: pct, RefundAmount: refund, FeeAmount: fee}
	} else {
		next.Status = StatusForfeited
		event = PledgeForfeited{PledgeID: p.ID, TreasuryAmount: treasuryAmt, CharityAmount: charityAmt}
	}

	out := Outcome{Pledge: next, CloseCustody: true, Event: event}
	if refund > 0 {
		out.Disbursements = append(out.Disbursements, Disbursement{To: p.Owner, Amount: refund})
	}
	if treasuryAmt > 0 {
		out.Disbursements = append(out.Disbursements, Disbursement{To: cfg.Treasury, Amount: treasuryAmt})
	}
	if charityAmt > 0 {
		out.Disbursements = append(out.Disbursements, Disbursement{To: cfg.Charity, Amount: charityAmt})
	}
	return out, nil
}
