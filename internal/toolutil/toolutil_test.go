package toolutil

import (
	"testing"
	"time"

	"github.com/anatolykoptev/go_match/internal/engine"
	"github.com/anatolykoptev/go_match/internal/engine/queue"
)

func TestNormKind(t *testing.T) {
	tests := []struct {
		in      string
		want    engine.EntityKind
		wantErr bool
	}{
		{"", engine.KindJob, false},
		{" Candidate ", engine.KindCandidate, false},
		{"job", engine.KindJob, false},
		{"company", "", true},
	}
	for _, tt := range tests {
		got, err := NormKind(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("NormKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("NormKind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormID(t *testing.T) {
	if _, err := NormID("job_id", "  "); err == nil {
		t.Error("expected error for blank id")
	}
	if got, _ := NormID("job_id", " j1 "); got != "j1" {
		t.Errorf("NormID = %q, want j1", got)
	}
}

func TestNormPriority(t *testing.T) {
	ptr := func(v int) *int { return &v }
	tests := []struct {
		name    string
		in      *int
		want    int
		wantErr bool
	}{
		{"unset", nil, queue.DefaultPriority, false},
		{"zero is most urgent", ptr(0), 0, false},
		{"explicit", ptr(2), 2, false},
		{"negative", ptr(-1), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormPriority(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormPriority error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormPriority = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNormDuration(t *testing.T) {
	if d, err := NormDuration("", time.Hour); err != nil || d != time.Hour {
		t.Errorf("NormDuration(\"\") = %v, %v", d, err)
	}
	if d, err := NormDuration("45m", time.Hour); err != nil || d != 45*time.Minute {
		t.Errorf("NormDuration(45m) = %v, %v", d, err)
	}
	if _, err := NormDuration("soon", time.Hour); err == nil {
		t.Error("expected error for invalid duration")
	}
}
