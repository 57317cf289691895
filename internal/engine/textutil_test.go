package engine

import "testing"

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Build   APIs\nin Go", "Build APIs in Go"},
		{"entities only", "R&amp;D team", "R&D team"},
		{"tags", "<p>Build <b>APIs</b></p><ul><li>Go</li><li>SQL</li></ul>", "Build APIs Go SQL"},
		{"script dropped", "<p>Hello</p><script>var x = 1;</script><p>world</p>", "Hello world"},
		{"style dropped", "<style>p{color:red}</style>Text", "Text"},
		{"self closing", "line one<br/>line two", "line one line two"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripHTML(tt.in); got != tt.want {
				t.Errorf("StripHTML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRuneLen(t *testing.T) {
	if got := RuneLen("héllo"); got != 5 {
		t.Errorf("RuneLen = %d, want 5", got)
	}
}
