// Package events defines the pipeline's published event stream.
//
// Three kinds of event are emitted per chunk, in causal order:
// chunk-discovered, transcription-ready and analysis-ready. Events of
// different chunks may interleave once analysis runs concurrently.
package events

import (
	"log/slog"
	"sync"
	"time"
)

// Kind names an event type. The values double as wire names.
type Kind string

const (
	KindChunk         Kind = "new-chunk"
	KindTranscription Kind = "new-transcription"
	KindAnalysis      Kind = "new-analysis"
)

// Transcription is the payload of a transcription-ready event.
type Transcription struct {
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	Speaker   string `json:"speaker"`
	Language  string `json:"language,omitempty"`
}

// Analysis is the payload of an analysis-ready event.
type Analysis struct {
	Objections      []string `json:"objections"`
	ImportantPoints []string `json:"important_points"`
	Sentiment       string   `json:"sentiment"`
	Suggestions     []string `json:"suggestions"`
}

// Event is one published pipeline result. Exactly one payload field is set
// for transcription and analysis events; chunk events carry only Chunk.
type Event struct {
	Kind          Kind           `json:"kind"`
	SessionID     string         `json:"session_id"`
	Chunk         string         `json:"chunk"`
	Time          time.Time      `json:"time"`
	Transcription *Transcription `json:"transcription,omitempty"`
	Analysis      *Analysis      `json:"analysis,omitempty"`
}

// Sink accepts published events.
type Sink interface {
	Emit(ev Event)
}

// Handler consumes events. It is called from a single delivery goroutine.
type Handler func(ev Event)

// Bus is a Sink that delivers events, in emission order, to at most one
// registered subscriber. Events emitted while nobody is subscribed are
// dropped.
type Bus struct {
	ch      chan Event
	done    chan struct{}
	stopped chan struct{}

	// sendMu orders sends against Close: an Emit holds it for reading
	// while sending, so nothing enters ch once closed is set.
	sendMu sync.RWMutex
	closed bool

	mu      sync.RWMutex
	handler Handler
}

var _ Sink = (*Bus)(nil)

// NewBus creates a bus buffering up to size undelivered events and starts
// its delivery goroutine. Call Close() when done.
func NewBus(size int) *Bus {
	if size <= 0 {
		size = 64
	}
	b := &Bus{
		ch:      make(chan Event, size),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go b.run()
	return b
}

// Subscribe registers h as the subscriber, replacing any previous one.
// The returned function unregisters it.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.handler = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			b.handler = nil
			b.mu.Unlock()
		})
	}
}

// Emit queues ev for delivery. It blocks while the buffer is full and is a
// no-op after Close.
func (b *Bus) Emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.sendMu.RLock()
	defer b.sendMu.RUnlock()
	if b.closed {
		return
	}
	b.ch <- ev
}

// Close stops accepting events, delivers those already queued, and returns
// once delivery has finished. It is safe to call multiple times.
func (b *Bus) Close() {
	b.sendMu.Lock()
	if !b.closed {
		b.closed = true
		close(b.done)
	}
	b.sendMu.Unlock()
	<-b.stopped
}

func (b *Bus) run() {
	defer close(b.stopped)
	for {
		select {
		case ev := <-b.ch:
			b.deliver(ev)
		case <-b.done:
			for {
				select {
				case ev := <-b.ch:
					b.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) deliver(ev Event) {
	b.mu.RLock()
	h := b.handler
	b.mu.RUnlock()
	if h == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("[EVENTS] subscriber panicked", "kind", ev.Kind, "panic", r)
		}
	}()
	h(ev)
}

// Tee returns a Handler that forwards every event to each of hs in order.
func Tee(hs ...Handler) Handler {
	return func(ev Event) {
		for _, h := range hs {
			if h != nil {
				h(ev)
			}
		}
	}
}
