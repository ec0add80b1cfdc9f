package proto

// Session is the body of a successful GET /session. Both fields are 32-bit
// so browsers can hold them as exact JavaScript numbers.
type Session struct {
	Token   uint32 `json:"token"`
	Expires uint32 `json:"expires"`
}

// Query parameter carrying the token on GET /ws.
const TokenParam = "token"

// ReasonSessionNotFound is the close reason sent with StatusPolicyViolation
// when a socket presents an unknown or already consumed token.
const ReasonSessionNotFound = "session not found"
