package escrow

// Event is a tagged audit record emitted by a successful operation. The
// store appends events as-is; publication is an external collaborator.
type Event interface {
	EventType() string
}

type ConfigInitialized struct {
	Admin    string `json:"admin"`
	Treasury string `json:"treasury"`
	Charity  string `json:"charity"`
}

func (ConfigInitialized) EventType() string { return "CONFIG_INITIALIZED" }

// ConfigUpdated is emitted once per applied field change.
type ConfigUpdated struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

func (ConfigUpdated) EventType() string { return "CONFIG_UPDATED" }

type PledgeCreated struct {
	PledgeID    string `json:"pledge_id"`
	Owner       string `json:"owner"`
	StakeAmount uint64 `json:"stake_amount"`
	Deadline    int64  `json:"deadline"`
}

func (PledgeCreated) EventType() string { return "PLEDGE_CREATED" }

type PledgeEdited struct {
	PledgeID    string `json:"pledge_id"`
	PenaltyPaid uint64 `json:"penalty_paid"`
}

func (PledgeEdited) EventType() string { return "PLEDGE_EDITED" }

type CompletionReported struct {
	PledgeID             string `json:"pledge_id"`
	CompletionPercentage uint8  `json:"completion_percentage"`
}

func (CompletionReported) EventType() string { return "COMPLETION_REPORTED" }

type PledgeCompleted struct {
	PledgeID             string `json:"pledge_id"`
	CompletionPercentage uint8  `json:"completion_percentage"`
	RefundAmount         uint64 `json:"refund_amount"`
	FeeAmount            uint64 `json:"fee_amount"`
}

func (PledgeCompleted) EventType() string { return "PLEDGE_COMPLETED" }

type PledgeForfeited struct {
	PledgeID       string `json:"pledge_id"`
	TreasuryAmount uint64 `json:"treasury_amount"`
	CharityAmount  uint64 `json:"charity_amount"`
}

func (PledgeForfeited) EventType() string { return "PLEDGE_FORFEITED" }
