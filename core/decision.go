package core

// Decision is the value extracted from a decision reply.
type Decision string

const (
	DecisionAccept     Decision = "accept"
	DecisionReject     Decision = "reject"
	DecisionUnresolved Decision = "unresolved"
)

// Resolved reports whether d is accept or reject.
func (d Decision) Resolved() bool {
	return d == DecisionAccept || d == DecisionReject
}

// Accepted reports whether d is accept. Unresolved counts as not accepted.
func (d Decision) Accepted() bool {
	return d == DecisionAccept
}
