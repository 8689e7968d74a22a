package escrow

// PledgeStatus is the lifecycle state of a pledge.
type PledgeStatus string

const (
	StatusActive    PledgeStatus = "ACTIVE"
	StatusReported  PledgeStatus = "REPORTED"
	StatusCompleted PledgeStatus = "COMPLETED"
	StatusForfeited PledgeStatus = "FORFEITED"

	// StatusCancelled is declared terminal but no transition produces it.
	// Reserved for an explicit cancellation flow.
	StatusCancelled PledgeStatus = "CANCELLED"
)

// Terminal reports whether no further transition is legal from s.
func (s PledgeStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusForfeited, StatusCancelled:
		return true
	}
	return false
}

// Settleable reports whether a settlement trigger may run from s.
func (s PledgeStatus) Settleable() bool {
	return s == StatusActive || s == StatusReported
}

// Pledge is one commitment. (Owner, CreatedAt) is its stable identity and
// never changes; ID is the service-level handle. StakeAmount starts > 0 and
// only ever decreases (edit penalties), and equals the custody balance while
// the pledge is Active or Reported.
type Pledge struct {
	ID                   string       `json:"pledge_id"`
	Owner                string       `json:"owner"`
	Asset                string       `json:"asset"`
	StakeAmount          uint64       `json:"stake_amount"`
	Deadline             int64        `json:"deadline"`
	Status               PledgeStatus `json:"status"`
	CompletionPercentage *uint8       `json:"completion_percentage,omitempty"`
	ReportedAt           *int64       `json:"reported_at,omitempty"`
	CreatedAt            int64        `json:"created_at"`
}

// graceEnd returns deadline + grace, overflow-checked on the signed sum.
func graceEnd(deadline, graceSeconds int64) (int64, error) {
	end := deadline + graceSeconds
	if graceSeconds > 0 && end < deadline {
		return 0, ErrOverflow
	}
	return end, nil
}
