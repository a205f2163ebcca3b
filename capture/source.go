package capture

import "sync"

// Source supplies encoded audio for one recording. Start and Close
// bracket the recording; Segment drains whatever has been captured
// since the previous drain.
type Source interface {
	Start() error
	Segment() ([]byte, error)
	MimeType() string
	Close() error
}

// BufferSource is a Source fed by the caller. Capture integrations push
// encoder output with Push; the controller drains it on its cadence.
type BufferSource struct {
	mimeType string

	mu      sync.Mutex
	buf     []byte
	started bool
}

// NewBufferSource creates a BufferSource. An empty mimeType defaults to
// audio/webm, the container the upload endpoint expects.
func NewBufferSource(mimeType string) *BufferSource {
	if mimeType == "" {
		mimeType = "audio/webm"
	}
	return &BufferSource{mimeType: mimeType}
}

// Push appends encoded audio. Data pushed while no recording is active
// is discarded.
func (b *BufferSource) Push(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return
	}
	b.buf = append(b.buf, data...)
}

// Start begins accepting pushed data.
func (b *BufferSource) Start() error {
	b.mu.Lock()
	b.started = true
	b.buf = nil
	b.mu.Unlock()
	return nil
}

// Segment returns and clears everything pushed since the last drain.
func (b *BufferSource) Segment() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data := b.buf
	b.buf = nil
	return data, nil
}

// MimeType returns the configured container type.
func (b *BufferSource) MimeType() string {
	return b.mimeType
}

// Close stops accepting pushed data.
func (b *BufferSource) Close() error {
	b.mu.Lock()
	b.started = false
	b.buf = nil
	b.mu.Unlock()
	return nil
}
