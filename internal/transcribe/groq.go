package transcribe

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultGroqBaseURL is Groq's OpenAI-compatible API root.
const DefaultGroqBaseURL = "https://api.groq.com/openai/v1"

// Groq transcribes through an OpenAI-compatible audio transcription
// endpoint. Groq is the default, but any compatible server works.
type Groq struct {
	client openai.Client
	model  string
}

var _ Transcriber = (*Groq)(nil)

// verboseTranscription is the subset of a verbose_json reply we keep.
type verboseTranscription struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

// NewGroq creates a Groq transcriber. An empty baseURL selects Groq.
func NewGroq(apiKey, baseURL, model string, timeout time.Duration) (*Groq, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("transcribe: groq api key is required")
	}
	if baseURL == "" {
		baseURL = DefaultGroqBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if model == "" {
		model = "whisper-large-v3-turbo"
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		// Retries are decided by the pipeline's retry policy.
		option.WithMaxRetries(0),
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}

	return &Groq{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

// Transcribe uploads the chunk and returns the recognized text.
func (g *Groq) Transcribe(ctx context.Context, path, language string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("transcribe: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("transcribe: stat %s: %w", path, err)
	}
	if info.Size() < minAudioBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrEmptyAudio, info.Size())
	}

	params := openai.AudioTranscriptionNewParams{
		File:           f,
		Model:          g.model,
		ResponseFormat: openai.AudioResponseFormatVerboseJSON,
	}
	if language != "" {
		params.Language = openai.String(language)
	}

	var body verboseTranscription
	if _, err := g.client.Audio.Transcriptions.New(ctx, params, option.WithResponseBodyInto(&body)); err != nil {
		return nil, fmt.Errorf("transcribe: groq request: %w", err)
	}

	lang := body.Language
	if lang == "" {
		lang = language
	}
	return &Result{
		Text:     strings.TrimSpace(body.Text),
		Language: lang,
		Duration: body.Duration,
	}, nil
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (g *Groq) Close() error {
	return nil
}
