package enums

import "fmt"

// PaymentEventType classifies an audit log entry for a split.
type PaymentEventType string

const (
	PaymentEventReceived     PaymentEventType = "received"
	PaymentEventClaimAttempt PaymentEventType = "claim_attempt"
	PaymentEventBaseTransfer PaymentEventType = "base_transfer"
	PaymentEventTipTransfer  PaymentEventType = "tip_transfer"
	PaymentEventFinalized    PaymentEventType = "finalized"
	PaymentEventCleanup      PaymentEventType = "cleanup"
	PaymentEventTipRetry     PaymentEventType = "tip_retry"
)

var validPaymentEventTypes = []PaymentEventType{
	PaymentEventReceived,
	PaymentEventClaimAttempt,
	PaymentEventBaseTransfer,
	PaymentEventTipTransfer,
	PaymentEventFinalized,
	PaymentEventCleanup,
	PaymentEventTipRetry,
}

// String implements fmt.Stringer.
func (t PaymentEventType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known PaymentEventType.
func (t PaymentEventType) IsValid() bool {
	for _, candidate := range validPaymentEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParsePaymentEventType converts raw input into a PaymentEventType.
func ParsePaymentEventType(value string) (PaymentEventType, error) {
	for _, candidate := range validPaymentEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment event type %q", value)
}

// PaymentEventStatus is the outcome recorded with an event.
type PaymentEventStatus string

const (
	PaymentEventStatusOK      PaymentEventStatus = "ok"
	PaymentEventStatusError   PaymentEventStatus = "error"
	PaymentEventStatusSkipped PaymentEventStatus = "skipped"
)

var validPaymentEventStatuses = []PaymentEventStatus{
	PaymentEventStatusOK,
	PaymentEventStatusError,
	PaymentEventStatusSkipped,
}

// String implements fmt.Stringer.
func (s PaymentEventStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PaymentEventStatus.
func (s PaymentEventStatus) IsValid() bool {
	for _, candidate := range validPaymentEventStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParsePaymentEventStatus converts raw input into a PaymentEventStatus.
func ParsePaymentEventStatus(value string) (PaymentEventStatus, error) {
	for _, candidate := range validPaymentEventStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment event status %q", value)
}
