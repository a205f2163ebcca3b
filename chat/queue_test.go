package chat

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeSender records delivered payloads and a switchable ready gate.
type fakeSender struct {
	mu      sync.Mutex
	ready   bool
	sent    []any
	sendErr error
}

func (f *fakeSender) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeSender) Send(payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, payload)
	return f.sendErr
}

func (f *fakeSender) setReady(ready bool) {
	f.mu.Lock()
	f.ready = ready
	f.mu.Unlock()
}

func (f *fakeSender) delivered() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]any, len(f.sent))
	copy(out, f.sent)
	return out
}

func TestQueueHoldsUntilReady(t *testing.T) {
	q := NewQueue()
	sender := &fakeSender{}

	q.Push("a")
	q.Push("b")
	q.Process(sender)

	assert.Empty(t, sender.delivered())
	assert.Equal(t, 2, q.Len())
}

func TestQueueDrainsInOrder(t *testing.T) {
	q := NewQueue()
	sender := &fakeSender{}

	q.Push("a")
	q.Push("b")
	q.Push("c")

	sender.setReady(true)
	q.Process(sender)

	assert.Equal(t, []any{"a", "b", "c"}, sender.delivered())
	assert.Equal(t, 0, q.Len())
}

func TestQueueFireAndForgetOnSendError(t *testing.T) {
	q := NewQueue()
	sender := &fakeSender{ready: true, sendErr: errors.New("link down")}

	q.Push("doomed")
	q.Process(sender)

	// The entry was consumed despite the failure.
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, []any{"doomed"}, sender.delivered())
}

func TestQueueProcessNilSender(t *testing.T) {
	q := NewQueue()
	q.Push("x")
	q.Process(nil) // must not panic
	assert.Equal(t, 1, q.Len())
}

func TestQueueConcurrentPushes(t *testing.T) {
	q := NewQueue()
	sender := &fakeSender{ready: true}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Push("m")
			q.Process(sender)
		}()
	}
	wg.Wait()
	q.Process(sender)

	assert.Equal(t, 0, q.Len())
	assert.Len(t, sender.delivered(), 20)
}

func TestParseFind(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantQuery string
		wantOK    bool
	}{
		{name: "basic", text: ">find widgets", wantQuery: "widgets", wantOK: true},
		{name: "case_insensitive", text: ">FIND Widgets", wantQuery: "Widgets", wantOK: true},
		{name: "multi_word", text: ">find blue widgets 2024", wantQuery: "blue widgets 2024", wantOK: true},
		{name: "leading_space", text: "  >find x", wantQuery: "x", wantOK: true},
		{name: "not_a_command", text: "find widgets", wantOK: false},
		{name: "bare_find", text: ">find", wantOK: false},
		{name: "empty", text: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, ok := ParseFind(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantQuery, query)
			}
		})
	}
}
