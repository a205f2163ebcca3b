package session

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eonhr/overlink/api"
	"github.com/eonhr/overlink/crypto"
	"github.com/eonhr/overlink/envelope"
	"github.com/eonhr/overlink/transport"
)

const (
	defaultMaxAuthRetries = 5
	defaultAuthRetryWait  = 500 * time.Millisecond
	tokenFetchTimeout     = 15 * time.Second
)

// Config assembles a Session's collaborators.
type Config struct {
	// Transport is the persistent event connection. Required.
	Transport transport.Transport
	// API is the REST client used for token issuance. Required.
	API *api.Client
	// Username identifies the conversation to the token endpoint.
	Username string
	// Mode is the security posture ceiling for this session.
	Mode crypto.SecurityMode
	// ServerPublicKeyPEM is the server's public key. Required unless
	// Mode is SecurityPlaintext.
	ServerPublicKeyPEM string
	// Tokens caches the auth token across reconnects. Defaults to an
	// in-memory store.
	Tokens TokenStore
	// MaxAuthRetries bounds consecutive auth_failed recoveries per
	// connection. Zero selects the default of 5.
	MaxAuthRetries int
	// AuthRetryWait is the base backoff after auth_failed; failure n
	// waits n times this value. Zero selects the default of 500ms.
	AuthRetryWait time.Duration
}

// Session is the transport session state machine.
type Session struct {
	cfg    Config
	logger *logrus.Entry

	mu            sync.Mutex
	state         ConnectionState
	authenticated bool
	authFailures  int
	keyPair       *crypto.KeyPair
	clientPubPEM  string
	serverKey     *rsa.PublicKey
	sessionKey    *crypto.SessionKey

	onReady func()
	onReply func(text string, meta envelope.ReplyMeta)
	onState func(state ConnectionState)
}

// New creates a Session and generates its key material.
//
// Key-pair generation failure is not fatal: it is logged, and
// authentication proceeds without a client public key (the server then
// cannot issue a session key, so the session stays on whatever tier
// remains available).
func New(cfg Config) (*Session, error) {
	if cfg.Transport == nil {
		return nil, errors.New("session: transport is required")
	}
	if cfg.API == nil {
		return nil, errors.New("session: api client is required")
	}
	if cfg.Tokens == nil {
		cfg.Tokens = NewMemoryTokenStore()
	}
	if cfg.MaxAuthRetries <= 0 {
		cfg.MaxAuthRetries = defaultMaxAuthRetries
	}
	if cfg.AuthRetryWait <= 0 {
		cfg.AuthRetryWait = defaultAuthRetryWait
	}

	s := &Session{
		cfg:    cfg,
		logger: logrus.WithField("component", "Session"),
		state:  StateDisconnected,
	}

	if cfg.Mode != crypto.SecurityPlaintext {
		keyPair, err := crypto.GenerateKeyPair()
		if err != nil {
			s.logger.WithField("error", err.Error()).Error("Key pair generation failed, authenticating without client_public_key")
		} else {
			s.keyPair = keyPair
			if pemText, err := keyPair.PublicKeyPEM(); err == nil {
				s.clientPubPEM = pemText
			}
		}

		serverKey, err := crypto.ImportServerPublicKey(cfg.ServerPublicKeyPEM)
		if err != nil {
			s.logger.WithField("error", err.Error()).Error("Server public key import failed, asymmetric tier unavailable")
		} else {
			s.serverKey = serverKey
		}
	}

	return s, nil
}

// OnReady sets the callback fired whenever the send path becomes ready,
// so the outbound queue can be flushed.
func (s *Session) OnReady(fn func()) {
	s.mu.Lock()
	s.onReady = fn
	s.mu.Unlock()
}

// OnReply sets the callback fired with each decoded inbound result.
func (s *Session) OnReply(fn func(text string, meta envelope.ReplyMeta)) {
	s.mu.Lock()
	s.onReply = fn
	s.mu.Unlock()
}

// OnStateChange sets the callback fired on connection state transitions.
func (s *Session) OnStateChange(fn func(state ConnectionState)) {
	s.mu.Lock()
	s.onState = fn
	s.mu.Unlock()
}

// Start registers the event handlers and opens the connection.
func (s *Session) Start() error {
	t := s.cfg.Transport
	t.OnConnect(s.handleConnect)
	t.OnDisconnect(s.handleDisconnect)
	t.RegisterHandler("auth_success", s.handleAuthSuccess)
	t.RegisterHandler("auth_failed", s.handleAuthFailed)
	t.RegisterHandler("session_key_confirmed", s.handleKeyConfirmed)
	t.RegisterHandler("result", s.handleResult)

	s.setState(StateConnecting)
	if err := t.Connect(); err != nil {
		s.setState(StateDisconnected)
		return err
	}
	return nil
}

// Close disconnects and discards all key material.
func (s *Session) Close() error {
	err := s.cfg.Transport.Close()

	s.mu.Lock()
	s.authenticated = false
	if s.sessionKey != nil {
		s.sessionKey.Wipe()
		s.sessionKey = nil
	}
	s.keyPair = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	return err
}

// State returns the current connection state.
func (s *Session) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Secured reports whether the symmetric session key is active.
func (s *Session) Secured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionKey != nil
}

// Token returns the cached auth token, or "" before authentication.
func (s *Session) Token() string {
	return s.cfg.Tokens.Token()
}

// Ready reports whether queued messages may be sent: the transport is
// connected, the server acknowledged authentication, and either
// plaintext mode is on or an encryption tier is available. This guard
// keeps plaintext from leaking before a secure channel exists.
func (s *Session) Ready() bool {
	if !s.cfg.Transport.Connected() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authenticated {
		return false
	}
	if s.cfg.Mode == crypto.SecurityPlaintext {
		return true
	}
	return s.sessionKey != nil || (s.serverKey != nil && s.keyPair != nil)
}

// Send encrypts and emits one payload as a client_request, preferring the
// symmetric tier, then the asymmetric one, then — only as a logged
// degradation — the raw payload. The user's payload is never dropped by a
// cryptographic failure.
func (s *Session) Send(payload any) error {
	if s.cfg.Mode == crypto.SecurityPlaintext {
		return s.cfg.Transport.Emit("client_request", payload)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	sessionKey := s.sessionKey
	serverKey := s.serverKey
	s.mu.Unlock()

	if sessionKey != nil {
		ct, iv, err := sessionKey.Encrypt(data)
		if err == nil {
			return s.cfg.Transport.Emit("client_request", envelope.Encrypted{Encrypted: ct, IV: iv})
		}
		s.logger.WithFields(logrus.Fields{
			"tier":  "symmetric",
			"error": err.Error(),
		}).Error("AES encrypt failed, falling back to RSA")
	}

	if serverKey != nil {
		ct, err := crypto.EncryptToServer(serverKey, data)
		if err == nil {
			return s.cfg.Transport.Emit("client_request", envelope.Encrypted{Encrypted: ct})
		}
		s.logger.WithFields(logrus.Fields{
			"tier":  "asymmetric",
			"error": err.Error(),
		}).Error("RSA encrypt failed, sending raw payload")
	}

	s.logger.Warn("No encryption tier available, sending raw payload")
	return s.cfg.Transport.Emit("client_request", payload)
}

// ---- transport callbacks ----

func (s *Session) handleConnect() {
	s.setState(StateConnected)

	token := s.cfg.Tokens.Token()
	if token != "" {
		s.authenticate(token)
		return
	}
	go s.fetchTokenAndAuth()
}

func (s *Session) handleDisconnect(reason error) {
	s.mu.Lock()
	s.authenticated = false
	s.authFailures = 0
	if s.sessionKey != nil {
		s.sessionKey.Wipe()
		s.sessionKey = nil
	}
	s.state = StateDisconnected
	onState := s.onState
	s.mu.Unlock()

	s.logger.WithField("reason", reason.Error()).Info("Session disconnected")
	if onState != nil {
		onState(StateDisconnected)
	}
}

// authPayload is the authenticate event body.
type authPayload struct {
	Token           string `json:"token"`
	ClientPublicKey string `json:"client_public_key,omitempty"`
}

func (s *Session) authenticate(token string) {
	s.setState(StateAuthenticating)

	payload := authPayload{Token: token}
	if s.cfg.Mode != crypto.SecurityPlaintext {
		s.mu.Lock()
		payload.ClientPublicKey = s.clientPubPEM
		s.mu.Unlock()
	}

	s.logger.WithFields(logrus.Fields{
		"has_public_key": payload.ClientPublicKey != "",
		"mode":           s.cfg.Mode.String(),
	}).Info("Authenticating")

	if err := s.cfg.Transport.Emit("authenticate", payload); err != nil {
		s.logger.WithField("error", err.Error()).Error("Authenticate emit failed")
	}
}

func (s *Session) fetchTokenAndAuth() {
	ctx, cancel := context.WithTimeout(context.Background(), tokenFetchTimeout)
	defer cancel()

	token, err := s.cfg.API.FetchToken(ctx, s.cfg.Username)
	if err != nil {
		// The reconnect cycle retries the whole sequence.
		s.logger.WithField("error", err.Error()).Error("Token fetch failed")
		return
	}

	s.cfg.Tokens.SetToken(token)
	if s.cfg.Transport.Connected() {
		s.authenticate(token)
	}
}

// authSuccessPayload is the auth_success event body.
type authSuccessPayload struct {
	EncryptedSessionKey string `json:"encrypted_session_key"`
}

func (s *Session) handleAuthSuccess(data json.RawMessage) {
	var payload authSuccessPayload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			s.logger.WithField("error", err.Error()).Warn("Unparseable auth_success payload")
		}
	}

	s.mu.Lock()
	s.authenticated = true
	s.authFailures = 0
	// A re-authentication on a connection that already holds a session
	// key stays Secured; the key is valid for the connection's lifetime.
	secured := s.sessionKey != nil
	if secured {
		s.state = StateSecured
	} else {
		s.state = StateAuthenticated
	}
	state := s.state
	keyPair := s.keyPair
	s.mu.Unlock()

	s.logger.Info("Authentication succeeded")
	s.notifyState(state)

	wantKey := s.cfg.Mode == crypto.SecuritySymmetric && payload.EncryptedSessionKey != "" && keyPair != nil && !secured
	if wantKey {
		s.importSessionKey(keyPair, payload.EncryptedSessionKey)
	}

	s.mu.Lock()
	onReady := s.onReady
	s.mu.Unlock()
	if onReady != nil {
		onReady()
	}
}

// importSessionKey unwraps the server-issued key and commits to the
// symmetric tier. The server sends the key as RSA-encrypted base64 of the
// raw bytes, so the unwrap is decrypt-then-decode.
func (s *Session) importSessionKey(keyPair *crypto.KeyPair, encryptedKey string) {
	s.setState(StateKeyExchanging)

	plain, err := keyPair.DecryptOwn(encryptedKey)
	if err != nil {
		s.logger.WithField("error", err.Error()).Error("Session key decrypt failed, staying on asymmetric tier")
		s.setState(StateAuthenticated)
		return
	}

	raw, err := base64.StdEncoding.DecodeString(string(plain))
	if err != nil {
		s.logger.WithField("error", err.Error()).Error("Session key decode failed, staying on asymmetric tier")
		s.setState(StateAuthenticated)
		return
	}

	sessionKey, err := crypto.ImportSessionKey(raw)
	if err != nil {
		s.logger.WithField("error", err.Error()).Error("Session key import failed, staying on asymmetric tier")
		s.setState(StateAuthenticated)
		return
	}

	s.mu.Lock()
	s.sessionKey = sessionKey
	s.state = StateSecured
	s.mu.Unlock()

	s.logger.Info("Session key imported, symmetric tier active")
	s.notifyState(StateSecured)

	// Tell the server we hold the key so it commits to AES-GCM for the
	// rest of this connection.
	if err := s.cfg.Transport.Emit("session_key_ack", nil); err != nil {
		s.logger.WithField("error", err.Error()).Warn("session_key_ack emit failed")
	}
}

func (s *Session) handleAuthFailed(json.RawMessage) {
	s.mu.Lock()
	s.authenticated = false
	s.authFailures++
	failures := s.authFailures
	s.mu.Unlock()

	if failures > s.cfg.MaxAuthRetries {
		s.logger.WithField("failures", failures-1).Error("Authentication retries exhausted for this connection")
		s.setState(StateFailed)
		return
	}

	wait := time.Duration(failures) * s.cfg.AuthRetryWait
	s.logger.WithFields(logrus.Fields{
		"failures": failures,
		"wait":     wait.String(),
	}).Warn("Authentication failed, retrying")
	s.setState(StateAuthenticating)

	// The cached token was rejected; discard it and start from issuance.
	s.cfg.Tokens.SetToken("")

	time.AfterFunc(wait, func() {
		if s.cfg.Transport.Connected() {
			s.fetchTokenAndAuth()
		}
	})
}

func (s *Session) handleKeyConfirmed(data json.RawMessage) {
	s.logger.WithField("payload_size", len(data)).Debug("Server confirmed session key")
}

// handleResult routes one inbound result to the reply callback. A newer
// result always wins; preemption of the typing reveal happens in the
// presenter when the callback starts a new reveal.
func (s *Session) handleResult(data json.RawMessage) {
	text, meta := s.decodeResult(data)

	s.mu.Lock()
	onReply := s.onReply
	s.mu.Unlock()
	if onReply != nil {
		onReply(text, meta)
	}
}

func (s *Session) decodeResult(data json.RawMessage) (string, envelope.ReplyMeta) {
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return envelope.ExtractText(string(data)), envelope.ReplyMeta{}
	}

	if s.cfg.Mode == crypto.SecurityPlaintext {
		return envelope.ExtractText(payload), envelope.ExtractMeta(payload)
	}

	var probe envelope.Encrypted
	_ = json.Unmarshal(data, &probe)

	s.mu.Lock()
	sessionKey := s.sessionKey
	keyPair := s.keyPair
	s.mu.Unlock()

	if sessionKey != nil && probe.Encrypted != "" && probe.IV != "" {
		plain, err := sessionKey.Decrypt(probe.Encrypted, probe.IV)
		if err == nil {
			return extractFromPlaintext(plain)
		}
		s.logger.WithField("error", err.Error()).Error("AES decrypt of result failed, using raw payload")
		return envelope.ExtractText(payload), envelope.ExtractMeta(payload)
	}

	if keyPair != nil && probe.Encrypted != "" {
		plain, err := keyPair.DecryptOwn(probe.Encrypted)
		if err == nil {
			return extractFromPlaintext(plain)
		}
		s.logger.WithField("error", err.Error()).Error("RSA decrypt of result failed, using raw payload")
	}

	return envelope.ExtractText(payload), envelope.ExtractMeta(payload)
}

// extractFromPlaintext parses decrypted bytes as JSON when possible and
// extracts the display text either way.
func extractFromPlaintext(plain []byte) (string, envelope.ReplyMeta) {
	var parsed any
	if err := json.Unmarshal(plain, &parsed); err == nil {
		return envelope.ExtractText(parsed), envelope.ExtractMeta(parsed)
	}
	return envelope.ExtractText(string(plain)), envelope.ReplyMeta{}
}

// ---- state helpers ----

func (s *Session) setState(state ConnectionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.notifyState(state)
}

func (s *Session) notifyState(state ConnectionState) {
	s.mu.Lock()
	onState := s.onState
	s.mu.Unlock()
	if onState != nil {
		onState(state)
	}
}
