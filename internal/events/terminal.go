package events

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	chunkStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	speakerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headingStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	sentimentStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("13"))
	analysisBox    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("11")).
			Padding(0, 1)
)

// Terminal renders events as styled text, one block per event.
type Terminal struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTerminal creates a terminal view writing to w.
func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w}
}

// Handle renders ev. It satisfies Handler.
func (t *Terminal) Handle(ev Event) {
	out := Render(ev)
	if out == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.w, out)
}

// Render formats a single event for display. Unknown kinds render empty.
func Render(ev Event) string {
	switch ev.Kind {
	case KindChunk:
		return chunkStyle.Render("· chunk " + filepath.Base(ev.Chunk))
	case KindTranscription:
		if ev.Transcription == nil {
			return ""
		}
		return speakerStyle.Render(ev.Transcription.Speaker+":") + " " + ev.Transcription.Text
	case KindAnalysis:
		if ev.Analysis == nil {
			return ""
		}
		return analysisBox.Render(renderAnalysis(ev.Analysis))
	default:
		return ""
	}
}

func renderAnalysis(a *Analysis) string {
	var b strings.Builder
	b.WriteString(headingStyle.Render("Sentiment") + " " + sentimentStyle.Render(a.Sentiment))
	section := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		b.WriteString("\n" + headingStyle.Render(title))
		for _, item := range items {
			b.WriteString("\n  • " + item)
		}
	}
	section("Objections", a.Objections)
	section("Important points", a.ImportantPoints)
	section("Suggestions", a.Suggestions)
	return b.String()
}
