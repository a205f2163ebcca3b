// Package crypto implements the key lifecycle for one overlay transport
// session.
//
// The client holds an RSA-OAEP key pair generated once per process. The
// public half is sent to the server during authentication; the private half
// never leaves the client. The server answers with an RSA-encrypted AES-GCM
// session key, after which all traffic prefers the symmetric path.
//
// Example:
//
//	keys, err := crypto.GenerateKeyPair()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	pem, _ := keys.PublicKeyPEM()
//	fmt.Println("Client public key:", pem)
package crypto
