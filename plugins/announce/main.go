// Package main provides a plugin that speaks the rep count. It uses `say` on
// macOS and `espeak` or `spd-say` elsewhere.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// Request represents the input from the plugin executor.
type Request struct {
	Event    string          `json:"event"`
	Action   string          `json:"action"`
	Exercise string          `json:"exercise"`
	Config   json.RawMessage `json:"config"`
	Params   json.RawMessage `json:"params"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config is the per-hook configuration.
type Config struct {
	Every  int  `json:"every"`
	DryRun bool `json:"dryRun"`
}

// Params carries the fields of both rep and session_end events.
type Params struct {
	Count int `json:"count"`
	Reps  int `json:"reps"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	msg, err := message(req)
	if err != nil {
		writeErrorResponse(err.Error())
		return
	}

	var cfg Config
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeErrorResponse(fmt.Sprintf("failed to parse config: %v", err))
			return
		}
	}

	if msg != "" && !cfg.DryRun {
		if err := speak(msg); err != nil {
			writeErrorResponse(fmt.Sprintf("speak failed: %v", err))
			return
		}
	}

	data, _ := json.Marshal(map[string]string{"message": msg})
	writeSuccessResponse(data)
}

// message returns the phrase for a request, or "" when nothing should be
// said for this rep.
func message(req Request) (string, error) {
	if req.Action != "" && req.Action != "say" {
		return "", fmt.Errorf("unknown action: %s", req.Action)
	}

	var p Params
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return "", fmt.Errorf("failed to parse params: %w", err)
		}
	}

	var cfg Config
	if len(req.Config) > 0 {
		_ = json.Unmarshal(req.Config, &cfg)
	}

	switch req.Event {
	case "rep":
		if cfg.Every > 1 && p.Count%cfg.Every != 0 {
			return "", nil
		}
		return fmt.Sprintf("%d", p.Count), nil
	case "session_end":
		return fmt.Sprintf("%s done, %d reps", req.Exercise, p.Reps), nil
	default:
		return "", fmt.Errorf("unknown event: %s", req.Event)
	}
}

func speak(msg string) error {
	if runtime.GOOS == "darwin" {
		return run("say", msg)
	}
	for _, name := range []string{"espeak", "spd-say"} {
		if _, err := exec.LookPath(name); err == nil {
			return run(name, msg)
		}
	}
	return errors.New("no speech synthesizer found")
}

func run(name string, args ...string) error {
	output, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: errMsg})
}

// writeSuccessResponse writes a success response to stdout.
func writeSuccessResponse(data json.RawMessage) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: true, Data: data})
}
