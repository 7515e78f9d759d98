package order

import "github.com/go-faster/errors"

// Status is an order lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusPaid       Status = "paid"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// transitions is the full adjacency table of the order state machine. Any
// (current, next) pair not listed here is rejected. Adding a state means
// deciding its outgoing edges here.
var transitions = map[Status][]Status{
	StatusPending:    {StatusPaid, StatusFailed},
	StatusPaid:       {StatusConfirmed, StatusFailed},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {},
	StatusFailed:     {},
	StatusCancelled:  {},
}

// ParseStatus converts a wire string into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := transitions[st]; !ok {
		return "", errors.Errorf("unknown order status %q", s)
	}
	return st, nil
}

// CanTransitionTo reports whether moving from s to next is a legal edge.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AllowedNext returns the set of states reachable from s. The returned slice
// is a copy; callers may keep it.
func (s Status) AllowedNext() []Status {
	next := transitions[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// Terminal reports whether s has no outgoing transitions.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Settled reports whether an order in this status has passed through Paid.
// Failed and Cancelled are excluded: an order can fail without ever paying.
func (s Status) Settled() bool {
	switch s {
	case StatusPaid, StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered:
		return true
	}
	return false
}
