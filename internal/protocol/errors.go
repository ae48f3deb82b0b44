package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Session routing/state.
	ErrSessionBusy     = "E_SESSION_BUSY"
	ErrSessionNotFound = "E_SESSION_NOT_FOUND"
	ErrSessionEnded    = "E_SESSION_ENDED"

	// Rule/action layer.
	ErrBadRequest      = "E_BAD_REQUEST"
	ErrBadPhase        = "E_BAD_PHASE"
	ErrNoBudget        = "E_NO_BUDGET"
	ErrUnknownDecision = "E_UNKNOWN_DECISION"
	ErrUnknownChoice   = "E_UNKNOWN_CHOICE"
	ErrUnknownPolicy   = "E_UNKNOWN_POLICY"
	ErrPolicyLocked    = "E_POLICY_LOCKED"
	ErrMalformedResult = "E_MALFORMED_RESULT"
	ErrRateLimit       = "E_RATE_LIMIT"
	ErrStale           = "E_STALE"
	ErrInternal        = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrSessionBusy:     {},
	ErrSessionNotFound: {},
	ErrSessionEnded:    {},
	ErrBadRequest:      {},
	ErrBadPhase:        {},
	ErrNoBudget:        {},
	ErrUnknownDecision: {},
	ErrUnknownChoice:   {},
	ErrUnknownPolicy:   {},
	ErrPolicyLocked:    {},
	ErrMalformedResult: {},
	ErrRateLimit:       {},
	ErrStale:           {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
