package model

// DeliveryStatus values match what is stored and what the UI displays.
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "Pending"
	StatusInTransit DeliveryStatus = "In Transit"
	StatusDelivered DeliveryStatus = "Delivered"
)

// Statuses lists the valid states in progression order.
var Statuses = []DeliveryStatus{StatusPending, StatusInTransit, StatusDelivered}

// ParseStatus validates a raw status string.
func ParseStatus(s string) (DeliveryStatus, bool) {
	switch DeliveryStatus(s) {
	case StatusPending, StatusInTransit, StatusDelivered:
		return DeliveryStatus(s), true
	}
	return "", false
}

func (s DeliveryStatus) Valid() bool {
	_, ok := ParseStatus(string(s))
	return ok
}

// Rank returns the position of the status in the Pending -> In Transit ->
// Delivered progression, or -1 for an unknown value.
func (s DeliveryStatus) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusInTransit:
		return 1
	case StatusDelivered:
		return 2
	}
	return -1
}

// Progress is the timeline fill percentage for the status: 0, 50 or 100.
func (s DeliveryStatus) Progress() int {
	if r := s.Rank(); r > 0 {
		return r * 50
	}
	return 0
}

// StepReached reports whether the timeline step at the given index has been
// reached under the current status.
func StepReached(step int, current DeliveryStatus) bool {
	r := current.Rank()
	return r >= 0 && step <= r
}

// IsCurrent reports whether the given step is the active one.
func IsCurrent(step int, current DeliveryStatus) bool {
	return current.Valid() && step == current.Rank()
}

// CanTransition reports whether a delivery may move between two states. Any
// pair of valid states is allowed; admin flows set statuses out of order.
// Tightening the policy only requires changing this function.
func CanTransition(from, to DeliveryStatus) bool {
	return from.Valid() && to.Valid()
}
