package crypto

// SecurityMode selects how outbound payloads are protected on the wire.
//
// The mode is a ceiling, not a guarantee: a session configured for
// SecuritySymmetric still starts on the asymmetric path until the server
// issues a session key, and individual operations fall back one tier on
// failure rather than dropping the payload.
type SecurityMode uint8

const (
	// SecurityPlaintext disables encryption entirely. Development only.
	SecurityPlaintext SecurityMode = iota
	// SecurityAsymmetric encrypts every payload under the server's RSA key.
	SecurityAsymmetric
	// SecuritySymmetric negotiates an AES-GCM session key after
	// authentication and prefers it for all subsequent traffic.
	SecuritySymmetric
)

// String returns a human-readable name for the mode.
func (m SecurityMode) String() string {
	switch m {
	case SecurityPlaintext:
		return "plaintext"
	case SecurityAsymmetric:
		return "asymmetric"
	case SecuritySymmetric:
		return "symmetric"
	default:
		return "unknown"
	}
}
