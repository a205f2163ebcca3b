// Package overlink is the client library for the recruiting assistant
// overlay: an encrypted chat channel with queued delivery and a typed
// reveal presenter, a read-only lookup side-channel, and a chunked
// audio recording pipeline with background upload and server-side merge.
//
// The zero-configuration path:
//
//	client, err := overlink.New(overlink.DefaultOptions())
//	if err != nil { ... }
//	client.Presenter().OnFrame(func(text string) { render(text) })
//	if err := client.Connect(); err != nil { ... }
//	client.SendMessage("hello")
package overlink

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eonhr/overlink/api"
	"github.com/eonhr/overlink/audio"
	"github.com/eonhr/overlink/capture"
	"github.com/eonhr/overlink/chat"
	"github.com/eonhr/overlink/crypto"
	"github.com/eonhr/overlink/envelope"
	"github.com/eonhr/overlink/session"
	"github.com/eonhr/overlink/transport"
	"github.com/eonhr/overlink/upload"
)

// DefaultServerPublicKeyPEM is the production server's public key. It is
// public information and safe to embed; deployments with their own key
// material override it through Options.
const DefaultServerPublicKeyPEM = `-----BEGIN PUBLIC KEY-----
MIIBIjANBgkqhkiG9w0BAQEFAAOCAQ8AMIIBCgKCAQEA1yw284NS7NawWrgGlYHN
9qvmso5dKZFr4AifmRMBSrmG+65rqs9OTpmXEyqqUmrBbgW61n11mQM1dkMJjH//
jxm1AWv0/X7yKAsYSpAfonM49+ve1AWdJDvrLVrUrRDNI0vmUtUyqjde5fbZdAgV
sNxj1Q8TfsrJzpJniW9UUmbRd9iZ8PM4vGwVQAmFxbyFkKb0S7zJ+U1kutPgjCe+
gfiG1QATa37IYXO2hoz/EUGbqX2Vfd7CfpW53OXL/fXyHPPVarLMELnk6kE1auMT
KZwnnj95F4xfZpgf7/kJ7bwQD7MHLvdLlwWlXBW5qJdjVnZJ6EMIaHHhJjJnqrRV
qwIDAQAB
-----END PUBLIC KEY-----`

const lookupTimeout = 15 * time.Second

// Options configures a Client. Zero fields take the defaults shown by
// DefaultOptions.
type Options struct {
	// APIBase is the server's HTTP base URL.
	APIBase string
	// Username identifies the conversation owner.
	Username string
	// Mode is the security posture ceiling for the chat channel.
	Mode crypto.SecurityMode
	// ServerPublicKeyPEM is the server's RSA public key.
	ServerPublicKeyPEM string
	// ChunkDuration is the recording segment cadence.
	ChunkDuration time.Duration
	// AutoStopAfter bounds one recording; negative disables the limit.
	AutoStopAfter time.Duration
	// ReconnectAttempts bounds transport reconnection after a drop;
	// negative disables reconnection.
	ReconnectAttempts int
	// TypingTick is the interval between revealed reply characters.
	TypingTick time.Duration
	// Tokens persists the auth token across reconnects. Defaults to an
	// in-memory store.
	Tokens session.TokenStore
	// AudioSource supplies encoded recording audio. Defaults to a
	// BufferSource fed through PushAudio.
	AudioSource capture.Source
	// OnUpload receives audio delivery outcomes. Optional.
	OnUpload func(upload.Result)
}

// DefaultOptions returns the production defaults.
func DefaultOptions() *Options {
	return &Options{
		APIBase:            "http://localhost:5000",
		Username:           "User",
		Mode:               crypto.SecuritySymmetric,
		ServerPublicKeyPEM: DefaultServerPublicKeyPEM,
		ChunkDuration:      capture.DefaultChunkDuration,
		AutoStopAfter:      capture.DefaultAutoStopAfter,
		TypingTick:         chat.DefaultTypingTick,
	}
}

// Client ties the subsystems together: one API client, one transport
// session, the outbound queue and reveal presenter, and the recording
// pipeline.
type Client struct {
	opts   Options
	logger *logrus.Entry

	api       *api.Client
	transport transport.Transport
	session   *session.Session
	queue     *chat.Queue
	presenter *chat.Presenter
	uploader  *upload.Worker
	recorder  *capture.Controller
	bufSource *capture.BufferSource
	monitor   *audio.Monitor

	closeOnce sync.Once
	closeErr  error
}

// New assembles a Client from options. The connection is not opened
// until Connect.
func New(opts *Options) (*Client, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Username == "" {
		return nil, errors.New("overlink: username is required")
	}
	if opts.Mode != crypto.SecurityPlaintext && opts.ServerPublicKeyPEM == "" {
		opts.ServerPublicKeyPEM = DefaultServerPublicKeyPEM
	}

	c := &Client{
		opts:   *opts,
		logger: logrus.WithField("component", "Client"),
	}

	c.api = api.NewClient(opts.APIBase)
	c.transport = transport.NewWebSocket(transport.WSConfig{
		URL:               c.api.SocketURL(),
		ReconnectAttempts: opts.ReconnectAttempts,
	})

	sess, err := session.New(session.Config{
		Transport:          c.transport,
		API:                c.api,
		Username:           opts.Username,
		Mode:               opts.Mode,
		ServerPublicKeyPEM: opts.ServerPublicKeyPEM,
		Tokens:             opts.Tokens,
	})
	if err != nil {
		return nil, err
	}
	c.session = sess

	c.queue = chat.NewQueue()
	c.presenter = chat.NewPresenter(opts.TypingTick)

	c.uploader = upload.NewWorker(upload.Config{
		API:      c.api,
		Tokens:   sess,
		Username: opts.Username,
		OnResult: opts.OnUpload,
	})

	source := opts.AudioSource
	if source == nil {
		c.bufSource = capture.NewBufferSource("")
		source = c.bufSource
	}
	c.monitor = audio.NewMonitor()
	c.recorder, err = capture.NewController(capture.Config{
		Source:        source,
		Sink:          c.uploader,
		ChunkDuration: opts.ChunkDuration,
		AutoStopAfter: opts.AutoStopAfter,
		Meter:         c.monitor,
	})
	if err != nil {
		return nil, err
	}

	// Queued messages drain whenever the send path (re)opens, replies
	// feed the reveal, and a drop resets the presentation so a stale
	// reveal never outlives its connection.
	sess.OnReady(func() { c.queue.Process(sess) })
	sess.OnReply(c.handleReply)
	sess.OnStateChange(func(state session.ConnectionState) {
		if state == session.StateDisconnected {
			c.presenter.Reveal("")
		}
	})

	return c, nil
}

// Connect opens the transport session.
func (c *Client) Connect() error {
	return c.session.Start()
}

// handleReply routes one decoded server reply into the presenter. A new
// reply always preempts whatever reveal is still running.
func (c *Client) handleReply(text string, meta envelope.ReplyMeta) {
	if meta.HistoryUsed != nil {
		c.logger.WithFields(logrus.Fields{
			"history_used": *meta.HistoryUsed,
			"history_len":  meta.HistoryLen,
		}).Debug("Reply carried history metadata")
	}
	c.presenter.Reveal(text)
}

// SendMessage submits user text. Lookup commands (">find <query>")
// resolve against the search endpoint first and carry their rows with
// the message; everything else is queued directly. Messages queued
// while the channel is down are delivered once it is ready again.
func (c *Client) SendMessage(text string) {
	c.presenter.SetThinking()

	if query, ok := chat.ParseFind(text); ok {
		go c.lookupAndSend(query, text)
		return
	}

	c.enqueue(envelope.NewAIRequest(text))
}

// lookupAndSend resolves a >find command. Any failure falls back to
// sending the user's original text untouched, so the command degrades
// to a plain chat message rather than being lost.
func (c *Client) lookupAndSend(query, original string) {
	message := original

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	result, err := c.api.Lookup(ctx, query)
	switch {
	case err != nil:
		c.logger.WithFields(logrus.Fields{
			"query": query,
			"error": err.Error(),
		}).Warn("Lookup failed, sending message without results")
	case result.Unavailable:
		c.logger.WithField("query", query).Warn("Lookup unavailable, sending message without results")
	default:
		if enriched, err := envelope.WithLookupResults(result.Rows, original); err == nil {
			message = enriched
		} else {
			c.logger.WithField("error", err.Error()).Warn("Lookup result encoding failed, sending message without results")
		}
	}

	c.enqueue(envelope.NewAIRequest(message))
}

// SendAudio ships a completed recording in one payload over the chat
// channel, as an alternative to the chunked upload pipeline.
func (c *Client) SendAudio(sessionID, audioB64 string) {
	c.enqueue(envelope.AudioRequest{
		Instruction: envelope.InstructionAudio,
		SessionID:   sessionID,
		Audio:       audioB64,
	})
}

func (c *Client) enqueue(payload any) {
	c.queue.Push(payload)
	c.queue.Process(c.session)
}

// StartRecording begins a chunked recording. A no-op when one is
// already running.
func (c *Client) StartRecording() error {
	return c.recorder.Start()
}

// StopRecording ends the recording, flushes the tail segment, and
// queues the server-side merge. A no-op when idle.
func (c *Client) StopRecording() {
	c.recorder.Stop()
}

// Recording reports whether a recording is active.
func (c *Client) Recording() bool {
	return c.recorder.Recording()
}

// RecordingSessionID returns the active recording's identifier, or ""
// when idle.
func (c *Client) RecordingSessionID() string {
	return c.recorder.SessionID()
}

// PushAudio feeds encoded audio to the default buffer source. A no-op
// when a custom AudioSource was supplied.
func (c *Client) PushAudio(data []byte) {
	if c.bufSource != nil {
		c.bufSource.Push(data)
	}
}

// AudioMonitor exposes the segment meter so a frontend can subscribe to
// input-level measurements with OnLevel while a recording runs.
func (c *Client) AudioMonitor() *audio.Monitor {
	return c.monitor
}

// UploadLedger returns a snapshot of per-segment delivery status.
func (c *Client) UploadLedger() map[int]upload.ChunkStatus {
	return c.uploader.Ledger()
}

// Presenter exposes the reveal presenter for frame and posture callbacks.
func (c *Client) Presenter() *chat.Presenter {
	return c.presenter
}

// State returns the session's connection state.
func (c *Client) State() session.ConnectionState {
	return c.session.State()
}

// Ready reports whether submitted messages would send immediately.
func (c *Client) Ready() bool {
	return c.session.Ready()
}

// QueuedMessages reports the number of messages awaiting delivery.
func (c *Client) QueuedMessages() int {
	return c.queue.Len()
}

// Close stops recording, drains pending uploads, and tears the session
// down. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.recorder.Stop()
		c.uploader.Close()
		c.presenter.Cancel()
		c.closeErr = c.session.Close()
	})
	return c.closeErr
}
