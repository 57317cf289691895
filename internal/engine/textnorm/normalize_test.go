package textnorm

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/anatolykoptev/go_match/internal/engine"
)

func newTestNormalizer(opts Options) (*Normalizer, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(opts, logger), &buf
}

func TestJobText(t *testing.T) {
	n, _ := newTestNormalizer(Options{})
	job := &engine.Job{
		ID:           "j1",
		Title:        "Senior Backend Engineer",
		Category:     "Engineering",
		Seniority:    "senior",
		Description:  "<p>Build <b>payment</b> APIs.</p>",
		Requirements: "5+ years of Go",
		Tags:         []string{"go", "postgres"},
		JobType:      "full-time",
		Location:     "Berlin",
		Workplace:    "hybrid",
	}
	text := n.Job(job)

	if c := strings.Count(text, "Title: Senior Backend Engineer"); c != 2 {
		t.Errorf("title appears %d times, want 2:\n%s", c, text)
	}
	if c := strings.Count(text, "Category: Engineering"); c != 2 {
		t.Errorf("category appears %d times, want 2:\n%s", c, text)
	}
	lines := strings.Split(text, "\n")
	if lines[2] != "This is a Backend Developer role." {
		t.Errorf("role sentence not after titles: %q", lines[2])
	}
	if !strings.Contains(text, "Description: Build payment APIs.") {
		t.Errorf("html not stripped from description:\n%s", text)
	}
	if !strings.Contains(text, "Location: Berlin, hybrid") {
		t.Errorf("missing location line:\n%s", text)
	}
	if lines[len(lines)-1] != "Tags: go, postgres" {
		t.Errorf("tags must be the last line, got %q", lines[len(lines)-1])
	}
	if strings.Index(text, "Description:") > strings.Index(text, "Tags:") {
		t.Error("tags must follow the description")
	}
}

func TestJobTextSkipsEmptyFields(t *testing.T) {
	n, _ := newTestNormalizer(Options{})
	text := n.Job(&engine.Job{ID: "j2", Title: "Account Executive"})
	if text != "Title: Account Executive\nTitle: Account Executive" {
		t.Errorf("unexpected text %q", text)
	}
}

func TestCandidateText(t *testing.T) {
	n, _ := newTestNormalizer(Options{})
	c := &engine.Candidate{
		ID:           "c1",
		Title:        "Web Developer",
		DesiredTitle: "React Developer",
		Skills:       []string{"react", "typescript"},
		Bio:          "I build UIs.",
		Experience:   "mid",
		Location:     "Lisbon",
	}
	text := n.Candidate(c)
	if c := strings.Count(text, "Title: React Developer"); c != 2 {
		t.Errorf("desired title appears %d times, want 2:\n%s", c, text)
	}
	if !strings.Contains(text, "This is a Frontend Developer role.") {
		t.Errorf("missing role sentence:\n%s", text)
	}
	if !strings.Contains(text, "Current title: Web Developer") {
		t.Errorf("missing current title:\n%s", text)
	}
	if !strings.HasSuffix(text, "Skills: react, typescript") {
		t.Errorf("skills must come last:\n%s", text)
	}
}

func TestDescriptionTruncatedFirst(t *testing.T) {
	n, logs := newTestNormalizer(Options{MaxChars: 10000, MaxDescriptionChars: 50, MinChars: 10})
	long := strings.Repeat("word ", 100)
	text := n.Job(&engine.Job{ID: "j3", Title: "Go Developer", Description: long, Tags: []string{"go"}})

	if !strings.Contains(logs.String(), "textnorm: description truncated") {
		t.Errorf("expected description truncation to be logged, logs:\n%s", logs.String())
	}
	if strings.Contains(logs.String(), "textnorm: text truncated") {
		t.Error("overall text should fit once the description is capped")
	}
	if !strings.HasSuffix(text, "Tags: go") {
		t.Errorf("tags lost after description truncation:\n%s", text)
	}
}

func TestOverallTruncation(t *testing.T) {
	n, logs := newTestNormalizer(Options{MaxChars: 40, MaxDescriptionChars: 1000, MinChars: 10})
	text := n.Job(&engine.Job{ID: "j4", Title: "Backend Developer", Category: "Engineering", Description: "Build services"})

	if got := engine.RuneLen(text); got > 40 {
		t.Errorf("text length %d exceeds limit 40", got)
	}
	if !strings.Contains(logs.String(), "textnorm: text truncated") {
		t.Errorf("expected overall truncation to be logged, logs:\n%s", logs.String())
	}
	if !strings.HasPrefix(text, "Title: Backend Developer") {
		t.Errorf("truncation must keep the head of the text: %q", text)
	}
}

func TestAcceptable(t *testing.T) {
	n, _ := newTestNormalizer(Options{MinChars: 10})
	if n.Acceptable("  short  ") {
		t.Error("9-char text must be rejected")
	}
	if !n.Acceptable("long enough text") {
		t.Error("16-char text must be accepted")
	}
}
