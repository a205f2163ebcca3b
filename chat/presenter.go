package chat

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// PresenterState is the conversational posture shown to the user.
type PresenterState uint8

const (
	// StateNeutral is the idle posture.
	StateNeutral PresenterState = iota
	// StateThinking is shown between a user submit and the server reply.
	StateThinking
	// StateAnswering is shown while a reply is being revealed.
	StateAnswering
)

// String returns a human-readable name for the state.
func (s PresenterState) String() string {
	switch s {
	case StateNeutral:
		return "neutral"
	case StateThinking:
		return "thinking"
	case StateAnswering:
		return "answering"
	default:
		return "unknown"
	}
}

// DefaultTypingTick is the interval between revealed characters.
const DefaultTypingTick = 25 * time.Millisecond

// Presenter renders server replies as an interruptible character-by-
// character reveal. At most one reveal runs at a time: starting a new one
// always cancels and fully resets any previous one first.
type Presenter struct {
	mu        sync.Mutex
	displayed []rune
	target    []rune
	state     PresenterState
	// generation identifies the active reveal; bumping it is the
	// level-triggered cancel checked on every tick.
	generation uint64
	tick       time.Duration

	onFrame func(text string)
	onState func(state PresenterState)
}

// NewPresenter creates a presenter with the given tick interval; zero or
// negative selects DefaultTypingTick.
func NewPresenter(tick time.Duration) *Presenter {
	if tick <= 0 {
		tick = DefaultTypingTick
	}
	return &Presenter{tick: tick, state: StateNeutral}
}

// OnFrame sets the callback fired with the displayed text after every
// revealed character.
func (p *Presenter) OnFrame(fn func(text string)) {
	p.mu.Lock()
	p.onFrame = fn
	p.mu.Unlock()
}

// OnStateChange sets the callback fired on posture transitions.
func (p *Presenter) OnStateChange(fn func(state PresenterState)) {
	p.mu.Lock()
	p.onState = fn
	p.mu.Unlock()
}

// DisplayedText returns the currently revealed prefix.
func (p *Presenter) DisplayedText() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.displayed)
}

// State returns the current posture.
func (p *Presenter) State() PresenterState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SetThinking switches to the thinking posture, typically on user submit.
func (p *Presenter) SetThinking() {
	p.mu.Lock()
	p.state = StateThinking
	onState := p.onState
	p.mu.Unlock()

	if onState != nil {
		onState(StateThinking)
	}
}

// Cancel synchronously stops any in-flight reveal and resets the
// displayed text to empty. Idempotent: cancelling with nothing active is
// a no-op with no error.
func (p *Presenter) Cancel() {
	p.mu.Lock()
	p.generation++
	p.displayed = nil
	p.target = nil
	p.mu.Unlock()
}

// Reveal cancels any active reveal and starts a new one for text. The
// full string is shown one character per tick, then the posture returns
// to neutral. An empty text completes immediately.
func (p *Presenter) Reveal(text string) {
	p.mu.Lock()
	p.generation++
	generation := p.generation
	p.displayed = nil
	p.target = []rune(text)
	if len(p.target) == 0 {
		p.state = StateNeutral
		onState := p.onState
		p.mu.Unlock()
		if onState != nil {
			onState(StateNeutral)
		}
		return
	}
	p.state = StateAnswering
	onState := p.onState
	p.mu.Unlock()

	if onState != nil {
		onState(StateAnswering)
	}

	logrus.WithFields(logrus.Fields{
		"component": "Presenter",
		"length":    len(text),
	}).Debug("Starting typing reveal")

	go p.run(generation)
}

func (p *Presenter) run(generation uint64) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	for range ticker.C {
		p.mu.Lock()
		if p.generation != generation {
			// A newer reveal or a cancel superseded this one.
			p.mu.Unlock()
			return
		}

		p.displayed = p.target[:len(p.displayed)+1]
		frame := string(p.displayed)
		done := len(p.displayed) >= len(p.target)
		if done {
			p.state = StateNeutral
		}
		onFrame := p.onFrame
		onState := p.onState
		p.mu.Unlock()

		if onFrame != nil {
			onFrame(frame)
		}
		if done {
			if onState != nil {
				onState(StateNeutral)
			}
			return
		}
	}
}
