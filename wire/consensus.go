package wire

// Inner-type tags carried in a GameMessagePayload.InnerType, per spec.md
// §4.2. Any inner type not in this set is passed through to the game
// adapter untouched.
const (
	InnerTypeProposeMove  = "propose-move"
	InnerTypeApproveMove  = "approve-move"
	InnerTypeFinalizeMove = "finalize-move"
	InnerTypeRequestState = "request-state"
	InnerTypeSyncState    = "sync-state"
)

// rateLimitExemptInner holds the inner types the Design Note 9 open
// question ("rate-limited approve-move would stall consensus") resolved as
// exempt from the lobby's per-peer 30/sec cap: everything the consensus
// engine needs to keep a pending move alive.
var rateLimitExemptInner = map[string]bool{
	InnerTypeApproveMove:  true,
	InnerTypeFinalizeMove: true,
	InnerTypeRequestState: true,
	InnerTypeSyncState:    true,
}

// IsRateLimitExemptInnerType reports whether a game-message inner type is
// exempt from the lobby's rate limiter.
func IsRateLimitExemptInnerType(inner string) bool {
	return rateLimitExemptInner[inner]
}
