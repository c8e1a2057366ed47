package types

// Principal is the verified identity of a connection's owner. It is resolved
// exactly once during the handshake and carried unchanged for the lifetime of
// the connection; it is never re-derived per message.
type Principal struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role,omitempty"`
}
