package enums

import "fmt"

// ConsolidatedOrderStatus tracks the lifecycle of a consolidated order draft.
// Sent and cancelled are terminal.
type ConsolidatedOrderStatus string

const (
	ConsolidatedOrderStatusDraft     ConsolidatedOrderStatus = "draft"
	ConsolidatedOrderStatusSent      ConsolidatedOrderStatus = "sent"
	ConsolidatedOrderStatusCancelled ConsolidatedOrderStatus = "cancelled"
)

var validConsolidatedOrderStatuses = []ConsolidatedOrderStatus{
	ConsolidatedOrderStatusDraft,
	ConsolidatedOrderStatusSent,
	ConsolidatedOrderStatusCancelled,
}

// String implements fmt.Stringer.
func (s ConsolidatedOrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ConsolidatedOrderStatus.
func (s ConsolidatedOrderStatus) IsValid() bool {
	for _, candidate := range validConsolidatedOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed from s.
func (s ConsolidatedOrderStatus) IsTerminal() bool {
	return s == ConsolidatedOrderStatusSent || s == ConsolidatedOrderStatusCancelled
}

// ParseConsolidatedOrderStatus converts raw input into a ConsolidatedOrderStatus.
func ParseConsolidatedOrderStatus(value string) (ConsolidatedOrderStatus, error) {
	for _, candidate := range validConsolidatedOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid consolidated order status %q", value)
}
