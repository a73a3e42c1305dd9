package interview

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusCreated      Status = "created"
	StatusActive       Status = "active"
	StatusCompleted    Status = "completed"
	StatusDisqualified Status = "disqualified"
	StatusAbandoned    Status = "abandoned"
	StatusServiceError Status = "service_error"
)

var transitions = map[Status][]Status{
	StatusCreated: {StatusActive, StatusAbandoned},
	StatusActive:  {StatusCompleted, StatusDisqualified, StatusAbandoned, StatusServiceError},
}

// Terminal reports whether no transition leaves the status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusDisqualified, StatusAbandoned, StatusServiceError:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition validates the move and returns the new status.
func (s Status) Transition(next Status) (Status, error) {
	if !s.CanTransition(next) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return next, nil
}

func (s Status) String() string {
	return string(s)
}

// ParseStatus maps a stored status back to its constant.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusCreated, StatusActive, StatusCompleted, StatusDisqualified, StatusAbandoned, StatusServiceError:
		return s, nil
	default:
		return "", fmt.Errorf("unknown session status %q", raw)
	}
}
