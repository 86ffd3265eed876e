package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Command runs an external program for each chunk. The program is invoked
// as `argv... <chunk-path> <language>` and must print a single JSON object:
//
//	{"success": true, "full_text": "...", "language": "pt", "duration": 4.9}
//	{"success": false, "error": "..."}
type Command struct {
	argv    []string
	timeout time.Duration
}

var _ Transcriber = (*Command)(nil)

type commandResult struct {
	Success  bool    `json:"success"`
	FullText *string `json:"full_text"`
	Error    string  `json:"error"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

// NewCommand creates a transcriber that shells out to argv.
func NewCommand(argv []string, timeout time.Duration) (*Command, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, fmt.Errorf("transcribe: command must not be empty")
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		return nil, fmt.Errorf("transcribe: command %q: %w", argv[0], err)
	}
	return &Command{argv: append([]string(nil), argv...), timeout: timeout}, nil
}

// Transcribe runs the command on path and parses its JSON output.
func (c *Command) Transcribe(ctx context.Context, path, language string) (*Result, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := append(append([]string(nil), c.argv[1:]...), path, language)
	cmd := exec.CommandContext(ctx, c.argv[0], args...) //nolint:gosec // argv comes from the user's config
	cmd.Env = append(os.Environ(), "PYTHONIOENCODING=utf-8")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	// A failing helper still prints its error object, so parse first.
	out := strings.ToValidUTF8(strings.TrimSpace(stdout.String()), "�")
	var res commandResult
	if perr := json.Unmarshal([]byte(out), &res); perr != nil {
		if runErr != nil {
			return nil, fmt.Errorf("transcribe: command failed: %w: %s", runErr, strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("transcribe: parse command output %q: %w", out, perr)
	}

	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "unknown error"
		}
		return nil, fmt.Errorf("transcribe: command reported failure: %s", msg)
	}
	if runErr != nil {
		return nil, fmt.Errorf("transcribe: command failed: %w", runErr)
	}

	text := ""
	if res.FullText != nil {
		text = strings.TrimSpace(*res.FullText)
	}
	if res.Language == "" {
		res.Language = language
	}
	return &Result{Text: text, Language: res.Language, Duration: res.Duration}, nil
}

// Close is a no-op.
func (c *Command) Close() error {
	return nil
}
