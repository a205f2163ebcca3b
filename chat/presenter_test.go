package chat

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestPresenterRevealsCharacterByCharacter(t *testing.T) {
	p := NewPresenter(time.Millisecond)

	var mu sync.Mutex
	var frames []string
	p.OnFrame(func(text string) {
		mu.Lock()
		frames = append(frames, text)
		mu.Unlock()
	})

	p.Reveal("hi there")

	waitFor(t, 2*time.Second, func() bool { return p.DisplayedText() == "hi there" })
	waitFor(t, 2*time.Second, func() bool { return p.State() == StateNeutral })

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, frames)
	assert.Equal(t, "h", frames[0])
	assert.Equal(t, "hi there", frames[len(frames)-1])
	// Every frame is a strict extension of the previous one.
	for i := 1; i < len(frames); i++ {
		assert.Equal(t, frames[i][:len(frames[i-1])], frames[i-1])
	}
}

func TestPresenterCancelIdempotent(t *testing.T) {
	p := NewPresenter(time.Millisecond)

	// Cancel with nothing active is a no-op.
	p.Cancel()
	p.Cancel()
	assert.Equal(t, "", p.DisplayedText())

	p.Reveal("something long enough to still be running")
	time.Sleep(5 * time.Millisecond)

	p.Cancel()
	assert.Equal(t, "", p.DisplayedText())
	p.Cancel()
	assert.Equal(t, "", p.DisplayedText())

	// The cancelled reveal must not keep appending afterwards.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, "", p.DisplayedText())
}

func TestPresenterNewRevealPreemptsOld(t *testing.T) {
	p := NewPresenter(time.Millisecond)

	p.Reveal("the first long answer that will be interrupted midway")
	time.Sleep(5 * time.Millisecond)

	p.Reveal("second")
	waitFor(t, 2*time.Second, func() bool { return p.DisplayedText() == "second" })
	waitFor(t, 2*time.Second, func() bool { return p.State() == StateNeutral })
}

func TestPresenterEmptyText(t *testing.T) {
	p := NewPresenter(time.Millisecond)
	p.SetThinking()
	assert.Equal(t, StateThinking, p.State())

	p.Reveal("")
	assert.Equal(t, StateNeutral, p.State())
	assert.Equal(t, "", p.DisplayedText())
}

func TestPresenterStateCallback(t *testing.T) {
	p := NewPresenter(time.Millisecond)

	var mu sync.Mutex
	var states []PresenterState
	p.OnStateChange(func(s PresenterState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	p.SetThinking()
	p.Reveal("ok")
	waitFor(t, 2*time.Second, func() bool { return p.State() == StateNeutral })

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []PresenterState{StateThinking, StateAnswering, StateNeutral}, states)
}

func TestPresenterUnicode(t *testing.T) {
	p := NewPresenter(time.Millisecond)
	p.Reveal("héllo wörld")
	waitFor(t, 2*time.Second, func() bool { return p.DisplayedText() == "héllo wörld" })
}

func TestPresenterStateString(t *testing.T) {
	assert.Equal(t, "neutral", StateNeutral.String())
	assert.Equal(t, "thinking", StateThinking.String())
	assert.Equal(t, "answering", StateAnswering.String())
	assert.Equal(t, "unknown", PresenterState(9).String())
}
