package session

import "time"

// Snapshot is a read-only view of a session after a tick.
type Snapshot struct {
	SessionID string  `json:"session_id,omitempty"`
	Running   bool    `json:"running"`
	Exercise  string  `json:"exercise"`
	Side      string  `json:"side"`
	Count     int     `json:"count"`
	Stage     string  `json:"stage"`
	Angle     float64 `json:"angle"`
	Detected  bool    `json:"detected"`
	// Countdown is the number of seconds left before counting starts.
	Countdown int       `json:"countdown"`
	Frames    int       `json:"frames"`
	Skipped   int       `json:"skipped"`
	At        time.Time `json:"at"`
	// Rep is set on the snapshot of the frame that completed a repetition.
	Rep *RepEvent `json:"rep,omitempty"`
}

// RepEvent is emitted once per counted repetition.
type RepEvent struct {
	SessionID string    `json:"session_id"`
	Exercise  string    `json:"exercise"`
	Side      string    `json:"side"`
	Count     int       `json:"count"`
	Angle     float64   `json:"angle"`
	At        time.Time `json:"at"`
}

// Summary describes a finished session.
type Summary struct {
	SessionID string    `json:"session_id"`
	Exercise  string    `json:"exercise"`
	Side      string    `json:"side"`
	Reps      int       `json:"reps"`
	Frames    int       `json:"frames"`
	Skipped   int       `json:"skipped"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Duration returns how long the session ran.
func (s Summary) Duration() time.Duration {
	return s.EndedAt.Sub(s.StartedAt)
}
