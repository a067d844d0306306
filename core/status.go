package core

// Status is a principal's position in the round lifecycle.
type Status string

const (
	StatusNotParticipating Status = "not_participating"
	StatusChasing          Status = "chasing"
	StatusSurrendered      Status = "chasing_surrendered"
	StatusWithheld         Status = "chasing_withheld"
	StatusSeized           Status = "chasing_seized"
)

// IsChasing reports whether the principal opted into the chase, whatever
// happened to its ember afterwards.
func (s Status) IsChasing() bool {
	switch s {
	case StatusChasing, StatusSurrendered, StatusWithheld, StatusSeized:
		return true
	default:
		return false
	}
}

// Terminal reports whether s is a valid end-of-round status.
func (s Status) Terminal() bool {
	switch s {
	case StatusNotParticipating, StatusSurrendered, StatusSeized:
		return true
	default:
		return false
	}
}

// GaveEmber reports whether the principal's ember reached the adversaries,
// voluntarily or not.
func (s Status) GaveEmber() bool {
	return s == StatusSurrendered || s == StatusSeized
}
