package main

import (
	"encoding/json"
	"testing"
)

func TestMessage(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		want    string
		wantErr bool
	}{
		{
			name: "rep count",
			req:  Request{Event: "rep", Action: "say", Params: json.RawMessage(`{"count":7}`)},
			want: "7",
		},
		{
			name: "every skips",
			req:  Request{Event: "rep", Params: json.RawMessage(`{"count":7}`), Config: json.RawMessage(`{"every":5}`)},
			want: "",
		},
		{
			name: "every hits",
			req:  Request{Event: "rep", Params: json.RawMessage(`{"count":10}`), Config: json.RawMessage(`{"every":5}`)},
			want: "10",
		},
		{
			name: "session summary",
			req:  Request{Event: "session_end", Exercise: "squat", Params: json.RawMessage(`{"reps":12}`)},
			want: "squat done, 12 reps",
		},
		{
			name:    "unknown action",
			req:     Request{Event: "rep", Action: "shout"},
			wantErr: true,
		},
		{
			name:    "unknown event",
			req:     Request{Event: "jump"},
			wantErr: true,
		},
		{
			name:    "bad params",
			req:     Request{Event: "rep", Params: json.RawMessage(`[`)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := message(tt.req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("message() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("message() = %q, want %q", got, tt.want)
			}
		})
	}
}
