package cmd

import (
	"strings"
	"testing"
)

func TestFirstLine(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{name: "short single line", in: "hello", max: 10, want: "hello"},
		{name: "multiline keeps first", in: "first\nsecond\nthird", max: 20, want: "first"},
		{name: "long line truncated", in: strings.Repeat("a", 15), max: 10, want: strings.Repeat("a", 10) + "..."},
		{name: "empty", in: "", max: 10, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := firstLine(tt.in, tt.max); got != tt.want {
				t.Errorf("firstLine(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}
