package session

// ConnectionState tracks where the session is in its lifecycle.
type ConnectionState uint8

const (
	// StateDisconnected means no connection exists. Re-enterable: the
	// transport reconnects automatically and resets auth and key state.
	StateDisconnected ConnectionState = iota
	// StateConnecting means a dial is in progress.
	StateConnecting
	// StateConnected means the connection is up but unauthenticated.
	StateConnected
	// StateAuthenticating means an authenticate request is outstanding.
	StateAuthenticating
	// StateAuthenticated means the server acknowledged the token.
	StateAuthenticated
	// StateKeyExchanging means a server-issued session key is being
	// unwrapped and imported.
	StateKeyExchanging
	// StateSecured means the symmetric session key is active. The
	// session key is non-nil if and only if the state is Secured.
	StateSecured
	// StateFailed means authentication retries were exhausted for this
	// connection; a reconnect starts the sequence over.
	StateFailed
)

// String returns a human-readable name for the state.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateKeyExchanging:
		return "key_exchanging"
	case StateSecured:
		return "secured"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
