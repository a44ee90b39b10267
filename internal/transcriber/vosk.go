package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// voskBackend shells out to the recognition helper, which decodes the media
// file, runs the vosk model and prints one JSON document on stdout:
//
//	{"duration": 59.8, "segments": [{"start": 1.2, "end": 4.7, "text": "..."}]}
type voskBackend struct {
	command string
	model   string
}

type helperOut struct {
	Duration *float64 `json:"duration"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func NewVosk(command, model string) Transcriber {
	return &voskBackend{command: command, model: model}
}

func (v *voskBackend) Transcribe(ctx context.Context, mediaPath string) (Result, error) {
	cmd := exec.CommandContext(ctx, v.command, "--model", v.model, "--media", mediaPath)
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return Result{}, fmt.Errorf("vosk helper failed: %s", strings.TrimSpace(string(ee.Stderr)))
		}
		return Result{}, fmt.Errorf("run vosk helper: %w", err)
	}

	var parsed helperOut
	if err := json.Unmarshal(out, &parsed); err != nil {
		return Result{}, fmt.Errorf("parse helper output: %w", err)
	}

	res := Result{Duration: parsed.Duration}
	for _, s := range parsed.Segments {
		res.Segments = append(res.Segments, Segment{Start: s.Start, End: s.End, Text: strings.TrimSpace(s.Text)})
	}
	return res, nil
}

var (
	defaultMu sync.Mutex
	defaults  map[string]Transcriber
)

// Default returns the process-wide backend for a command/model pair. The
// helper keeps the loaded model resident between calls, so every worker must
// share one handle instead of spawning its own.
func Default(command, model string) Transcriber {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaults == nil {
		defaults = make(map[string]Transcriber)
	}
	key := command + "\x00" + model
	t, ok := defaults[key]
	if !ok {
		t = NewVosk(command, model)
		defaults[key] = t
	}
	return t
}
