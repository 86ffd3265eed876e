// Package analyze extracts call-coaching insights from transcript text
// using a chat completion model.
package analyze

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/chaz8081/gostt-live/internal/config"
)

// ErrMalformedResponse is returned when the model reply cannot be decoded
// into a Result, even after repair.
var ErrMalformedResponse = errors.New("analyze: malformed model response")

// Result is the structured analysis of one transcript.
type Result struct {
	Objections      []string `json:"objections"`
	ImportantPoints []string `json:"important_points"`
	Sentiment       string   `json:"sentiment"`
	Suggestions     []string `json:"suggestions"`
}

// Analyzer turns transcript text into a Result.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (*Result, error)
}

// New creates an Analyzer from config. The "none" backend disables
// analysis and returns a nil Analyzer with a nil error.
func New(cfg *config.AnalyzeConfig) (Analyzer, error) {
	switch cfg.Backend {
	case "openai", "":
		a, err := NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Temperature, cfg.MaxTokens, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return a, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("analyze: unknown backend %q (supported: openai, none)", cfg.Backend)
	}
}

// ParseResult decodes a model reply. Markdown code fences are stripped and
// syntactically broken JSON is repaired before giving up.
func ParseResult(reply string) (*Result, error) {
	clean := stripFences(reply)
	if clean == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrMalformedResponse)
	}

	var res Result
	err := json.Unmarshal([]byte(clean), &res)
	if err != nil {
		var syntaxErr *json.SyntaxError
		if !errors.As(err, &syntaxErr) {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		fixed, rerr := jsonrepair.JSONRepair(clean)
		if rerr != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		res = Result{}
		if err := json.Unmarshal([]byte(fixed), &res); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}

	res.normalize()
	return &res, nil
}

// normalize replaces missing lists with empty ones so consumers never see
// null arrays.
func (r *Result) normalize() {
	if r.Objections == nil {
		r.Objections = []string{}
	}
	if r.ImportantPoints == nil {
		r.ImportantPoints = []string{}
	}
	if r.Suggestions == nil {
		r.Suggestions = []string{}
	}
	r.Sentiment = strings.TrimSpace(r.Sentiment)
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
