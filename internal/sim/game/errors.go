package game

import "errors"

var (
	ErrWeights            = errors.New("bad scoring configuration")
	ErrInsufficientBudget = errors.New("insufficient budget")
	ErrUnknownDecision    = errors.New("unknown decision")
	ErrUnknownChoice      = errors.New("unknown event or choice")
	ErrUnknownPolicy      = errors.New("unknown policy")
	ErrPolicyLocked       = errors.New("policy prerequisites not met")
	ErrPolicyMaxed        = errors.New("policy already at max level")
	ErrMalformedResult    = errors.New("malformed simulation result")
	ErrBadPhase           = errors.New("action not valid in current phase")
	ErrNoActiveEvent      = errors.New("no active event")
)
