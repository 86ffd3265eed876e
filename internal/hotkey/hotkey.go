// Package hotkey provides a global hotkey that toggles recording sessions
// using gohook. The first press starts a session, the next stops it.
package hotkey

import (
	"sync"

	hook "github.com/robotn/gohook"
)

// EventType indicates whether a session should start or stop.
type EventType int

const (
	// EventStart signals that a session should start.
	EventStart EventType = iota
	// EventStop signals that the running session should stop.
	EventStop
)

func (t EventType) String() string {
	if t == EventStart {
		return "start"
	}
	return "stop"
}

// Event is emitted on the channel returned by Events.
type Event struct {
	Type EventType
}

// toggle alternates between start and stop on every press.
type toggle struct {
	mu        sync.Mutex
	recording bool
}

func (t *toggle) press() Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recording = !t.recording
	if t.recording {
		return Event{Type: EventStart}
	}
	return Event{Type: EventStop}
}

// sync resets the toggle to match the real session state, for sessions
// started or stopped by other means.
func (t *toggle) sync(recording bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recording = recording
}

// Listener manages a global hotkey and emits start/stop events.
type Listener struct {
	keys  []string
	state toggle
	ch    chan Event
	done  chan struct{}
	once  sync.Once
}

// NewListener creates a Listener for the given key combo.
// keys should be lowercase key names (e.g., ["ctrl", "shift", "l"]).
func NewListener(keys []string) *Listener {
	return &Listener{
		keys: keys,
		ch:   make(chan Event, 16),
		done: make(chan struct{}),
	}
}

// Events returns the channel that receives hotkey events.
// The channel is closed when the listener stops.
func (l *Listener) Events() <-chan Event {
	return l.ch
}

// SetRecording tells the listener whether a session is running, so the
// next press does the right thing after a session ended on its own.
func (l *Listener) SetRecording(recording bool) {
	l.state.sync(recording)
}

// Start begins listening for the global hotkey.
// This function blocks until Stop is called. Run it in a goroutine.
func (l *Listener) Start() {
	hook.Register(hook.KeyDown, l.keys, func(e hook.Event) {
		l.emit(l.state.press())
	})

	evChan := hook.Start()
	go func() {
		<-l.done
		hook.End()
	}()
	<-hook.Process(evChan)
	close(l.ch)
}

func (l *Listener) emit(ev Event) {
	select {
	case l.ch <- ev:
	default: // don't block the hook thread if nobody is reading
	}
}

// Stop terminates the hotkey listener.
// It is safe to call multiple times.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}
