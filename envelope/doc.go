// Package envelope defines the wire shapes of overlay chat payloads and
// normalizes the heterogeneous result payloads the server is known to emit.
//
// Outbound traffic is a plaintext Request, optionally wrapped in an
// Encrypted envelope (ciphertext plus IV on the symmetric path, ciphertext
// alone on the asymmetric path). Inbound results arrive as raw strings,
// JSON-encoded strings, or objects in several historical shapes; ExtractText
// reduces all of them to a single display string.
package envelope
