package capture

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultChunkDuration is the standard segment cadence.
	DefaultChunkDuration = 5 * time.Second
	// ExtendedChunkDuration trades latency for fewer uploads on slow links.
	ExtendedChunkDuration = 30 * time.Second
	// DefaultAutoStopAfter is the safety limit on one recording.
	DefaultAutoStopAfter = 5 * time.Minute
)

// Sink receives numbered segments and the final merge request.
// *upload.Worker satisfies it.
type Sink interface {
	EnqueueChunk(sessionID string, seq int, data []byte, mimeType string)
	EnqueueMerge()
}

// SegmentMeter observes shipped segments for local monitoring, e.g. a
// live input-level indicator. *audio.Monitor satisfies it.
type SegmentMeter interface {
	Process(frame []byte) ([]int16, uint32, error)
}

// Config assembles a Controller.
type Config struct {
	// Source supplies encoded audio. Required.
	Source Source
	// Sink receives segments. Required.
	Sink Sink
	// ChunkDuration is the flush cadence. Zero selects the 5s default.
	ChunkDuration time.Duration
	// AutoStopAfter bounds one recording; the recording stops itself and
	// merges when it elapses. Zero selects the 5-minute default; a
	// negative value disables the limit.
	AutoStopAfter time.Duration
	// Meter observes each shipped segment. Metering is best-effort: a
	// meter failure never delays or drops the segment. Optional.
	Meter SegmentMeter
	// OnStop is fired once per recording with the reason, "manual" or
	// "auto". Optional.
	OnStop func(reason string)
}

// recording is the per-recording state; a fresh one is made on every
// Start so stale timers and ticks cannot touch a later recording.
type recording struct {
	sessionID string
	quit      chan struct{}
	stopOnce  sync.Once

	mu  sync.Mutex
	seq int
}

// Controller drives the recording state machine: Idle, then Recording,
// then Idle again. Start and Stop are idempotent.
type Controller struct {
	cfg    Config
	logger *logrus.Entry

	mu  sync.Mutex
	rec *recording
}

// NewController creates an idle Controller.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Source == nil {
		return nil, errors.New("capture: source is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("capture: sink is required")
	}
	if cfg.ChunkDuration <= 0 {
		cfg.ChunkDuration = DefaultChunkDuration
	}
	if cfg.AutoStopAfter == 0 {
		cfg.AutoStopAfter = DefaultAutoStopAfter
	}

	return &Controller{
		cfg:    cfg,
		logger: logrus.WithField("component", "CaptureController"),
	}, nil
}

// Start begins a new recording. A no-op when one is already running.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.rec != nil {
		c.mu.Unlock()
		c.logger.Debug("Start ignored, recording already active")
		return nil
	}
	rec := &recording{
		sessionID: uuid.NewString(),
		quit:      make(chan struct{}),
	}
	c.rec = rec
	c.mu.Unlock()

	if err := c.cfg.Source.Start(); err != nil {
		c.mu.Lock()
		c.rec = nil
		c.mu.Unlock()
		return fmt.Errorf("start source: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"session_id":     rec.sessionID,
		"chunk_duration": c.cfg.ChunkDuration.String(),
		"auto_stop":      c.cfg.AutoStopAfter.String(),
	}).Info("Recording started")

	go c.run(rec)
	return nil
}

// Stop ends the current recording, flushes the tail segment, and queues
// the merge. A no-op when idle; safe to call repeatedly.
func (c *Controller) Stop() {
	c.mu.Lock()
	rec := c.rec
	c.mu.Unlock()
	if rec != nil {
		c.stop(rec, "manual")
	}
}

// Recording reports whether a recording is active.
func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec != nil
}

// SessionID returns the active recording's identifier, or "" when idle.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec == nil {
		return ""
	}
	return c.rec.sessionID
}

func (c *Controller) run(rec *recording) {
	ticker := time.NewTicker(c.cfg.ChunkDuration)
	defer ticker.Stop()

	var autoStop <-chan time.Time
	if c.cfg.AutoStopAfter > 0 {
		timer := time.NewTimer(c.cfg.AutoStopAfter)
		defer timer.Stop()
		autoStop = timer.C
	}

	for {
		select {
		case <-ticker.C:
			c.flush(rec)
		case <-autoStop:
			c.logger.WithField("session_id", rec.sessionID).Info("Recording limit reached, stopping")
			c.stop(rec, "auto")
			return
		case <-rec.quit:
			return
		}
	}
}

// stop tears a recording down exactly once regardless of how many
// callers race into it.
func (c *Controller) stop(rec *recording, reason string) {
	rec.stopOnce.Do(func() {
		close(rec.quit)

		c.flush(rec)
		c.cfg.Sink.EnqueueMerge()

		if err := c.cfg.Source.Close(); err != nil {
			c.logger.WithField("error", err.Error()).Warn("Source close failed")
		}

		c.mu.Lock()
		c.rec = nil
		c.mu.Unlock()

		rec.mu.Lock()
		segments := rec.seq
		rec.mu.Unlock()

		c.logger.WithFields(logrus.Fields{
			"session_id": rec.sessionID,
			"segments":   segments,
			"reason":     reason,
		}).Info("Recording stopped")

		if c.cfg.OnStop != nil {
			c.cfg.OnStop(reason)
		}
	})
}

// flush drains the source and ships one segment. Empty drains produce
// nothing: the server rejects zero-byte chunks, so they are never sent.
func (c *Controller) flush(rec *recording) {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	data, err := c.cfg.Source.Segment()
	if err != nil {
		c.logger.WithField("error", err.Error()).Error("Segment drain failed")
		return
	}
	if len(data) == 0 {
		c.logger.WithField("session_id", rec.sessionID).Debug("Empty segment skipped")
		return
	}

	rec.seq++
	c.cfg.Sink.EnqueueChunk(rec.sessionID, rec.seq, data, c.cfg.Source.MimeType())

	if c.cfg.Meter != nil {
		if _, _, err := c.cfg.Meter.Process(data); err != nil {
			c.logger.WithFields(logrus.Fields{
				"seq":   rec.seq,
				"error": err.Error(),
			}).Debug("Segment metering failed")
		}
	}
}
