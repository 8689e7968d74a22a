package escrow

import "fmt"

// Kind classifies a domain failure. Every operation aborts on the first
// violation it detects, before any state mutation or fund movement.
type Kind string

const (
	KindAuthorization Kind = "AUTHORIZATION"
	KindState         Kind = "STATE"
	KindTime          Kind = "TIME"
	KindRange         Kind = "RANGE"
	KindArithmetic    Kind = "ARITHMETIC"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("escrow: %s (%s)", e.Message, e.Code)
}

var (
	ErrNotAdmin = &Error{Kind: KindAuthorization, Code: "NOT_ADMIN", Message: "caller is not the config admin"}
	ErrNotOwner = &Error{Kind: KindAuthorization, Code: "NOT_PLEDGE_OWNER", Message: "caller is not the pledge owner"}

	ErrPaused            = &Error{Kind: KindState, Code: "PAUSED", Message: "escrow is paused"}
	ErrPledgeNotActive   = &Error{Kind: KindState, Code: "PLEDGE_NOT_ACTIVE", Message: "pledge is not active"}
	ErrPledgeNotReported = &Error{Kind: KindState, Code: "PLEDGE_NOT_REPORTED", Message: "pledge is not reported"}

	ErrInvalidDeadline     = &Error{Kind: KindTime, Code: "INVALID_DEADLINE", Message: "deadline must be in the future"}
	ErrDeadlineNotPassed   = &Error{Kind: KindTime, Code: "DEADLINE_NOT_PASSED", Message: "deadline has not passed yet"}
	ErrDeadlinePassed      = &Error{Kind: KindTime, Code: "DEADLINE_PASSED", Message: "deadline has already passed"}
	ErrGracePeriodNotEnded = &Error{Kind: KindTime, Code: "GRACE_PERIOD_NOT_ENDED", Message: "grace period has not ended"}
	ErrGracePeriodEnded    = &Error{Kind: KindTime, Code: "GRACE_PERIOD_ENDED", Message: "grace period has ended"}

	ErrInvalidStakeAmount    = &Error{Kind: KindRange, Code: "INVALID_STAKE_AMOUNT", Message: "stake amount must be greater than 0"}
	ErrInvalidPercentage     = &Error{Kind: KindRange, Code: "INVALID_COMPLETION_PERCENTAGE", Message: "completion percentage must be 0-100"}
	ErrInvalidTreasurySplit  = &Error{Kind: KindRange, Code: "INVALID_TREASURY_SPLIT", Message: "treasury split must be <= 10000 bps"}
	ErrInvalidPartialFee     = &Error{Kind: KindRange, Code: "INVALID_PARTIAL_FEE", Message: "partial fee must be <= 1000 bps"}
	ErrInvalidEditPenalty    = &Error{Kind: KindRange, Code: "INVALID_EDIT_PENALTY", Message: "edit penalty must be <= 1000 bps"}
	ErrInvalidGracePeriod    = &Error{Kind: KindRange, Code: "INVALID_GRACE_PERIOD", Message: "grace period must not be negative"}
	ErrMissingReport         = &Error{Kind: KindState, Code: "MISSING_REPORT", Message: "pledge has no recorded completion percentage"}

	ErrOverflow  = &Error{Kind: KindArithmetic, Code: "OVERFLOW", Message: "numeric overflow"}
	ErrUnderflow = &Error{Kind: KindArithmetic, Code: "UNDERFLOW", Message: "numeric underflow"}
)
