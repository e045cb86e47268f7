package types

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
)

func TestEventType(t *testing.T) {
	tests := []struct {
		eventType EventType
		name      string
		expected  string
	}{
		{name: "log", eventType: EventTypeLog, expected: "log"},
		{name: "stream", eventType: EventTypeStream, expected: "stream"},
		{name: "result", eventType: EventTypeResult, expected: "result"},
		{name: "error", eventType: EventTypeError, expected: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.eventType) != tt.expected {
				t.Errorf("EventType = %v, want %v", tt.eventType, tt.expected)
			}
		})
	}
}

func TestNewLogEvent(t *testing.T) {
	event := NewLogEvent("Browser starting...")

	if event.Type != EventTypeLog {
		t.Errorf("Type = %v, want %v", event.Type, EventTypeLog)
	}
	if event.Text() != "Browser starting..." {
		t.Errorf("Text() = %q, want %q", event.Text(), "Browser starting...")
	}
	if event.IsTerminal() {
		t.Error("log event should not be terminal")
	}
}

func TestNewStreamEvent(t *testing.T) {
	raw := []byte{0xff, 0xd8, 0xff, 0xe0}
	event := NewStreamEvent(raw)

	decoded, err := base64.StdEncoding.DecodeString(event.Text())
	if err != nil {
		t.Fatalf("stream data is not base64: %v", err)
	}
	if string(decoded) != string(raw) {
		t.Errorf("decoded = %v, want %v", decoded, raw)
	}
}

func TestNewErrorEvent(t *testing.T) {
	event := NewErrorEvent(errors.New("boom"))
	if event.Text() != "boom" {
		t.Errorf("Text() = %q, want boom", event.Text())
	}
	if !event.IsTerminal() {
		t.Error("error event should be terminal")
	}

	if NewErrorEvent(nil).Text() == "" {
		t.Error("nil error should still produce text")
	}
}

func TestEventMarshal(t *testing.T) {
	tests := []struct {
		name     string
		event    Event
		expected string
		wantErr  bool
	}{
		{
			name:     "log",
			event:    NewLogEvent("Session closed."),
			expected: `{"type":"log","data":"Session closed."}`,
		},
		{
			name:     "nil result",
			event:    NewResultEvent(nil),
			expected: `{"type":"result","data":null}`,
		},
		{
			name:     "structured result",
			event:    NewResultEvent(map[string]any{"title": "Example Domain"}),
			expected: `{"type":"result","data":{"title":"Example Domain"}}`,
		},
		{
			name:    "unknown type",
			event:   Event{Type: "bogus", Data: "x"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.event.Marshal()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(data) != tt.expected {
				t.Errorf("Marshal() = %s, want %s", data, tt.expected)
			}
		})
	}
}

func TestRunRequestNormalize(t *testing.T) {
	var req RunRequest
	if err := json.Unmarshal([]byte(`{"task":"  Open example.com  "}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	req.Normalize()

	if req.Task != "Open example.com" {
		t.Errorf("Task = %q", req.Task)
	}
	if req.Provider != DefaultProvider {
		t.Errorf("Provider = %q, want %q", req.Provider, DefaultProvider)
	}
	if req.GetTemperature() != DefaultTemperature {
		t.Errorf("Temperature = %v, want %v", req.GetTemperature(), DefaultTemperature)
	}
	if err := req.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestRunRequestExplicitZeroTemperature(t *testing.T) {
	var req RunRequest
	if err := json.Unmarshal([]byte(`{"task":"t","llm_provider":"openai","llm_temperature":0}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	req.Normalize()

	if req.GetTemperature() != 0 {
		t.Errorf("Temperature = %v, want 0", req.GetTemperature())
	}
	if req.Provider != "openai" {
		t.Errorf("Provider = %q, want openai", req.Provider)
	}
}

func TestRunRequestValidate(t *testing.T) {
	hot := 3.5
	tests := []struct {
		name    string
		req     RunRequest
		wantErr bool
	}{
		{name: "empty task", req: RunRequest{Task: ""}, wantErr: true},
		{name: "temperature too high", req: RunRequest{Task: "x", Temperature: &hot}, wantErr: true},
		{name: "valid", req: RunRequest{Task: "x"}, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
