package upload

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultMaxAttempts = 2
	defaultRetryWait   = 300 * time.Millisecond
)

// ChunkStatus is a segment's position in the delivery ledger.
type ChunkStatus uint8

const (
	// StatusPending means the segment is queued or mid-retry.
	StatusPending ChunkStatus = iota
	// StatusUploaded means the server accepted the segment.
	StatusUploaded
	// StatusFailed means every attempt was exhausted.
	StatusFailed
)

// String returns a human-readable name for the status.
func (s ChunkStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusUploaded:
		return "uploaded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Uploader is the server surface the worker needs. *api.Client satisfies it.
type Uploader interface {
	UploadChunk(ctx context.Context, token, sessionID string, seq int, data []byte, mimeType string) error
	MergeAudio(ctx context.Context, token, username string) (string, error)
}

// TokenSource supplies the Bearer token at send time, so a token
// refreshed mid-recording is picked up by later segments.
type TokenSource interface {
	Token() string
}

// Result is one delivery outcome reported to the result callback.
// Action is "uploaded", "merged" or "error".
type Result struct {
	Action  string
	Seq     int
	Message string
	Err     error
}

// Config assembles a Worker.
type Config struct {
	// API performs the actual HTTP calls. Required.
	API Uploader
	// Tokens supplies the auth token per request. Required.
	Tokens TokenSource
	// Username identifies the recording owner for the merge call.
	Username string
	// MaxAttempts bounds delivery tries per segment. Zero selects the
	// default of 2.
	MaxAttempts int
	// RetryWait is the base backoff between attempts; the wait after
	// attempt n is n times this value. Zero selects the default of 300ms.
	RetryWait time.Duration
	// OnResult receives delivery outcomes. Optional.
	OnResult func(Result)
}

type jobKind uint8

const (
	jobUpload jobKind = iota
	jobMerge
)

type job struct {
	kind      jobKind
	sessionID string
	seq       int
	data      []byte
	mimeType  string
}

// Worker is the background delivery actor. Jobs are processed serially
// by one goroutine, preserving enqueue order.
type Worker struct {
	cfg    Config
	logger *logrus.Entry

	mu          sync.Mutex
	queue       []job
	ledger      map[int]ChunkStatus
	session     string
	closed      bool
	mergeQueued bool

	wake chan struct{}
	done chan struct{}
}

// NewWorker creates a Worker and starts its delivery goroutine.
func NewWorker(cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = defaultRetryWait
	}

	w := &Worker{
		cfg:    cfg,
		logger: logrus.WithField("component", "UploadWorker"),
		ledger: make(map[int]ChunkStatus),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

// EnqueueChunk queues one segment for delivery and marks it pending.
// The first segment of a new recording session resets the ledger, so
// sequence numbers from an earlier recording never leak into it.
func (w *Worker) EnqueueChunk(sessionID string, seq int, data []byte, mimeType string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.logger.WithField("seq", seq).Warn("Segment dropped, worker closed")
		return
	}
	if sessionID != w.session {
		w.session = sessionID
		w.ledger = make(map[int]ChunkStatus)
	}
	w.queue = append(w.queue, job{
		kind:      jobUpload,
		sessionID: sessionID,
		seq:       seq,
		data:      data,
		mimeType:  mimeType,
	})
	w.ledger[seq] = StatusPending
	w.mu.Unlock()

	w.logger.WithFields(logrus.Fields{
		"seq":   seq,
		"bytes": len(data),
	}).Debug("Segment queued")
	w.signal()
}

// EnqueueMerge queues the merge request behind everything already
// queued. At most one merge is outstanding at a time, so racing stop
// paths within a recording cannot double-merge; once a merge has been
// delivered the next recording's merge is accepted again.
func (w *Worker) EnqueueMerge() {
	w.mu.Lock()
	if w.closed || w.mergeQueued {
		w.mu.Unlock()
		return
	}
	w.mergeQueued = true
	w.queue = append(w.queue, job{kind: jobMerge})
	w.mu.Unlock()

	w.logger.Debug("Merge queued")
	w.signal()
}

// Ledger returns a snapshot of per-segment delivery status.
func (w *Worker) Ledger() map[int]ChunkStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	snapshot := make(map[int]ChunkStatus, len(w.ledger))
	for seq, status := range w.ledger {
		snapshot[seq] = status
	}
	return snapshot
}

// Close drains the queue, stops the worker, and waits for it to finish.
// Safe to call more than once.
func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.signal()
	<-w.done
}

func (w *Worker) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Worker) run() {
	defer close(w.done)

	for {
		j, ok := w.next()
		if !ok {
			return
		}
		switch j.kind {
		case jobUpload:
			w.deliverChunk(j)
		case jobMerge:
			w.deliverMerge()
		}
	}
}

// next pops the oldest job, blocking until one arrives. Returns false
// once the worker is closed and the queue is drained.
func (w *Worker) next() (job, bool) {
	for {
		w.mu.Lock()
		if len(w.queue) > 0 {
			j := w.queue[0]
			w.queue = w.queue[1:]
			w.mu.Unlock()
			return j, true
		}
		closed := w.closed
		w.mu.Unlock()

		if closed {
			return job{}, false
		}
		<-w.wake
	}
}

func (w *Worker) deliverChunk(j job) {
	var lastErr error
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		err := w.cfg.API.UploadChunk(context.Background(), w.cfg.Tokens.Token(), j.sessionID, j.seq, j.data, j.mimeType)
		if err == nil {
			w.setStatus(j.sessionID, j.seq, StatusUploaded)
			w.logger.WithFields(logrus.Fields{
				"seq":     j.seq,
				"attempt": attempt,
				"bytes":   len(j.data),
			}).Info("Segment uploaded")
			w.report(Result{Action: "uploaded", Seq: j.seq})
			return
		}

		lastErr = err
		w.logger.WithFields(logrus.Fields{
			"seq":     j.seq,
			"attempt": attempt,
			"error":   err.Error(),
		}).Warn("Segment upload attempt failed")

		if attempt < w.cfg.MaxAttempts {
			time.Sleep(time.Duration(attempt) * w.cfg.RetryWait)
		}
	}

	w.setStatus(j.sessionID, j.seq, StatusFailed)
	w.logger.WithFields(logrus.Fields{
		"seq":      j.seq,
		"attempts": w.cfg.MaxAttempts,
		"error":    lastErr.Error(),
	}).Error("Segment delivery failed")
	w.report(Result{Action: "error", Seq: j.seq, Err: lastErr})
}

func (w *Worker) deliverMerge() {
	message, err := w.cfg.API.MergeAudio(context.Background(), w.cfg.Tokens.Token(), w.cfg.Username)

	w.mu.Lock()
	w.mergeQueued = false
	w.mu.Unlock()

	if err != nil {
		w.logger.WithField("error", err.Error()).Error("Merge request failed")
		w.report(Result{Action: "error", Err: err})
		return
	}

	w.logger.WithField("message", message).Info("Recording merged")
	w.report(Result{Action: "merged", Message: message})
}

// setStatus records an outcome unless a newer recording session has
// already taken over the ledger.
func (w *Worker) setStatus(sessionID string, seq int, status ChunkStatus) {
	w.mu.Lock()
	if sessionID == w.session {
		w.ledger[seq] = status
	}
	w.mu.Unlock()
}

func (w *Worker) report(r Result) {
	if w.cfg.OnResult != nil {
		w.cfg.OnResult(r)
	}
}
