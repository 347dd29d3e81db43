package entities

import "testing"

func TestParseIntent(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected Intent
	}{
		{"exact start", "START", IntentStart},
		{"exact stop", "STOP", IntentStop},
		{"exact interrupt", "INTERRUPT", IntentInterrupt},
		{"exact command", "COMMAND", IntentCommand},
		{"exact ignore", "IGNORE", IntentIgnore},
		{"lowercase", "start", IntentStart},
		{"surrounding whitespace", "  STOP\n", IntentStop},
		{"mixed case", "Command", IntentCommand},
		{"unknown label", "GREETING", IntentIgnore},
		{"chatty model output", "這句話的意圖是 START", IntentIgnore},
		{"empty", "", IntentIgnore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseIntent(tt.raw); got != tt.expected {
				t.Errorf("ParseIntent(%q) = %s, want %s", tt.raw, got, tt.expected)
			}
		})
	}
}
