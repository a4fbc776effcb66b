// Package testdata embeds landmark recordings used by tests.
package testdata

import (
	"bytes"
	"embed"
	"fmt"
	"path"
	"strings"

	"github.com/ayusman/fitcheck/internal/detector"
)

//go:embed recordings/*.jsonl
var recordingsFS embed.FS

// Recording describes an embedded landmark recording and what counting it
// should produce.
type Recording struct {
	Name     string
	Exercise string
	Side     string
	Reps     int
	// Stage is the stage label after the last frame.
	Stage string
}

// Recordings lists the embedded recordings.
var Recordings = []Recording{
	{Name: "curl_left", Exercise: "curl", Side: "left", Reps: 2, Stage: "down"},
	{Name: "squat", Exercise: "squat", Side: "both", Reps: 2, Stage: "up"},
}

// LoadRecording parses an embedded recording by name, without extension.
func LoadRecording(name string) ([]*detector.Pose, error) {
	data, err := recordingsFS.ReadFile(path.Join("recordings", name+".jsonl"))
	if err != nil {
		return nil, fmt.Errorf("load recording %s: %w", name, err)
	}

	poses, err := detector.ReadRecording(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse recording %s: %w", name, err)
	}
	return poses, nil
}

// Names returns the names of all embedded recordings.
func Names() ([]string, error) {
	entries, err := recordingsFS.ReadDir("recordings")
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".jsonl"))
	}
	return names, nil
}
