package enums

import "fmt"

// SplitStatus tracks where a payment split sits in the forwarding lifecycle.
type SplitStatus string

const (
	SplitStatusPending            SplitStatus = "pending"
	SplitStatusClaimed            SplitStatus = "claimed"
	SplitStatusCompleted          SplitStatus = "completed"
	SplitStatusPartiallyCompleted SplitStatus = "partially_completed"
	SplitStatusFailed             SplitStatus = "failed"
	SplitStatusExpired            SplitStatus = "expired"
	SplitStatusRetryingTip        SplitStatus = "retrying_tip"
)

var validSplitStatuses = []SplitStatus{
	SplitStatusPending,
	SplitStatusClaimed,
	SplitStatusCompleted,
	SplitStatusPartiallyCompleted,
	SplitStatusFailed,
	SplitStatusExpired,
	SplitStatusRetryingTip,
}

// splitTransitions lists the allowed edges. Anything absent is rejected.
var splitTransitions = map[SplitStatus][]SplitStatus{
	SplitStatusPending: {SplitStatusClaimed, SplitStatusExpired},
	SplitStatusClaimed: {
		SplitStatusCompleted,
		SplitStatusPartiallyCompleted,
		SplitStatusFailed,
		SplitStatusExpired,
	},
	SplitStatusPartiallyCompleted: {SplitStatusRetryingTip},
	SplitStatusRetryingTip:        {SplitStatusCompleted, SplitStatusPartiallyCompleted},
}

// String implements fmt.Stringer.
func (s SplitStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SplitStatus.
func (s SplitStatus) IsValid() bool {
	for _, candidate := range validSplitStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further automatic transition occurs.
// partially_completed is terminal but still accepts an operator-driven tip retry.
func (s SplitStatus) IsTerminal() bool {
	switch s {
	case SplitStatusCompleted, SplitStatusPartiallyCompleted, SplitStatusFailed, SplitStatusExpired:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving from s to next is an allowed edge.
func (s SplitStatus) CanTransition(next SplitStatus) bool {
	for _, candidate := range splitTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseSplitStatus converts raw input into a SplitStatus.
func ParseSplitStatus(value string) (SplitStatus, error) {
	for _, candidate := range validSplitStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid split status %q", value)
}

// ExpirableSplitStatuses are the statuses the expiry sweep reclaims.
func ExpirableSplitStatuses() []SplitStatus {
	return []SplitStatus{SplitStatusPending, SplitStatusClaimed}
}
