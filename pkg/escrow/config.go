package escrow

import "strconv"

// Config is the singleton set of global escrow parameters. It is mutated
// only through Apply, which is admin-gated; every other operation reads it.
type Config struct {
	Admin              string `json:"admin"`
	Treasury           string `json:"treasury"`
	Charity            string `json:"charity"`
	TreasurySplitBps   uint16 `json:"treasury_split_bps"`
	PartialFeeBps      uint16 `json:"partial_fee_bps"`
	EditPenaltyBps     uint16 `json:"edit_penalty_bps"`
	GracePeriodSeconds int64  `json:"grace_period_seconds"`
	Paused             bool   `json:"paused"`
}

// NewConfig validates the initial parameters and builds the config with the
// caller as admin. Singleton (insert-once) semantics are the store's job.
func NewConfig(admin, treasury, charity string, treasurySplitBps, partialFeeBps, editPenaltyBps uint16, gracePeriodSeconds int64) (Config, Event, error) {
	if treasurySplitBps > MaxTreasurySplitBps {
		return Config{}, nil, ErrInvalidTreasurySplit
	}
	if partialFeeBps > MaxPartialFeeBps {
		return Config{}, nil, ErrInvalidPartialFee
	}
	if editPenaltyBps > MaxEditPenaltyBps {
		return Config{}, nil, ErrInvalidEditPenalty
	}
	if gracePeriodSeconds < 0 {
		return Config{}, nil, ErrInvalidGracePeriod
	}
	cfg := Config{
		Admin:              admin,
		Treasury:           treasury,
		Charity:            charity,
		TreasurySplitBps:   treasurySplitBps,
		PartialFeeBps:      partialFeeBps,
		EditPenaltyBps:     editPenaltyBps,
		GracePeriodSeconds: gracePeriodSeconds,
		Paused:             false,
	}
	return cfg, ConfigInitialized{Admin: admin, Treasury: treasury, Charity: charity}, nil
}

// ConfigUpdate carries the optional per-field changes of an update_config
// call. Nil fields are left untouched.
type ConfigUpdate struct {
	Treasury           *string `json:"treasury,omitempty"`
	Charity            *string `json:"charity,omitempty"`
	TreasurySplitBps   *uint16 `json:"treasury_split_bps,omitempty"`
	PartialFeeBps      *uint16 `json:"partial_fee_bps,omitempty"`
	EditPenaltyBps     *uint16 `json:"edit_penalty_bps,omitempty"`
	GracePeriodSeconds *int64  `json:"grace_period_seconds,omitempty"`
	Paused             *bool   `json:"paused,omitempty"`
}

// ConfigChange is the audit record of one applied field change.
type ConfigChange struct {
	Field    string
	OldValue string
	NewValue string
}

func (c ConfigChange) Event() Event {
	return ConfigUpdated{Field: c.Field, OldValue: c.OldValue, NewValue: c.NewValue}
}

// Apply returns the config with the update applied, plus one ConfigChange
// audit record per supplied field. Every supplied bps field is bound-checked
// before any field is applied, so a rejected update changes nothing.
func (c Config) Apply(caller string, u ConfigUpdate) (Config, []ConfigChange, error) {
	if caller != c.Admin {
		return c, nil, ErrNotAdmin
	}
	if u.TreasurySplitBps != nil && *u.TreasurySplitBps > MaxTreasurySplitBps {
		return c, nil, ErrInvalidTreasurySplit
	}
	if u.PartialFeeBps != nil && *u.PartialFeeBps > MaxPartialFeeBps {
		return c, nil, ErrInvalidPartialFee
	}
	if u.EditPenaltyBps != nil && *u.EditPenaltyBps > MaxEditPenaltyBps {
		return c, nil, ErrInvalidEditPenalty
	}
	if u.GracePeriodSeconds != nil && *u.GracePeriodSeconds < 0 {
		return c, nil, ErrInvalidGracePeriod
	}

	var changes []ConfigChange
	next := c

	if u.Treasury != nil {
		changes = append(changes, ConfigChange{Field: "treasury", OldValue: c.Treasury, NewValue: *u.Treasury})
		next.Treasury = *u.Treasury
	}
	if u.Charity != nil {
		changes = append(changes, ConfigChange{Field: "charity", OldValue: c.Charity, NewValue: *u.Charity})
		next.Charity = *u.Charity
	}
	if u.TreasurySplitBps != nil {
		changes = append(changes, ConfigChange{
			Field:    "treasury_split_bps",
			OldValue: strconv.FormatUint(uint64(c.TreasurySplitBps), 10),
			NewValue: strconv.FormatUint(uint64(*u.TreasurySplitBps), 10),
		})
		next.TreasurySplitBps = *u.TreasurySplitBps
	}
	if u.PartialFeeBps != nil {
		changes = append(changes, ConfigChange{
			Field:    "partial_fee_bps",
			OldValue: strconv.FormatUint(uint64(c.PartialFeeBps), 10),
			NewValue: strconv.FormatUint(uint64(*u.PartialFeeBps), 10),
		})
		next.PartialFeeBps = *u.PartialFeeBps
	}
	if u.EditPenaltyBps != nil {
		changes = append(changes, ConfigChange{
			Field:    "edit_penalty_bps",
			OldValue: strconv.FormatUint(uint64(c.EditPenaltyBps), 10),
			NewValue: strconv.FormatUint(uint64(*u.EditPenaltyBps), 10),
		})
		next.EditPenaltyBps = *u.EditPenaltyBps
	}
	if u.GracePeriodSeconds != nil {
		changes = append(changes, ConfigChange{
			Field:    "grace_period_seconds",
			OldValue: strconv.FormatInt(c.GracePeriodSeconds, 10),
			NewValue: strconv.FormatInt(*u.GracePeriodSeconds, 10),
		})
		next.GracePeriodSeconds = *u.GracePeriodSeconds
	}
	if u.Paused != nil {
		changes = append(changes, ConfigChange{
			Field:    "paused",
			OldValue: strconv.FormatBool(c.Paused),
			NewValue: strconv.FormatBool(*u.Paused),
		})
		next.Paused = *u.Paused
	}

	return next, changes, nil
}
