package tui

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input string
		name  string
		args  string
	}{
		{"quit", "quit", ""},
		{"new General Chat", "new", "General Chat"},
		{"JOIN abc123", "join", "abc123"},
		{"  name  Alice  ", "name", "Alice"},
		{"", "", ""},
	}
	for _, tt := range tests {
		got := ParseCommand(tt.input)
		if got.Name != tt.name || got.Args != tt.args {
			t.Errorf("ParseCommand(%q) = %+v, want {%q %q}", tt.input, got, tt.name, tt.args)
		}
	}
}
