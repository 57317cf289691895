// Package textnorm builds the text sent to the embedding provider for jobs and
// candidate profiles. The provider has no notion of field weights, so
// important fields are repeated and low-signal fields go last.
package textnorm

import (
	"log/slog"
	"strings"

	"github.com/anatolykoptev/go_match/internal/engine"
)

// Options bound the normalized text, in runes.
type Options struct {
	MaxChars            int
	MaxDescriptionChars int
	MinChars            int
}

// Normalizer turns entities into embedding input text.
type Normalizer struct {
	opts   Options
	logger *slog.Logger
}

// New creates a Normalizer. Zero options fall back to the engine defaults.
func New(opts Options, logger *slog.Logger) *Normalizer {
	def := engine.DefaultConfig()
	if opts.MaxChars <= 0 {
		opts.MaxChars = def.MaxTextChars
	}
	if opts.MaxDescriptionChars <= 0 {
		opts.MaxDescriptionChars = def.MaxDescriptionChars
	}
	if opts.MinChars <= 0 {
		opts.MinChars = def.MinTextChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{opts: opts, logger: logger}
}

// Acceptable reports whether text is long enough to embed.
func (n *Normalizer) Acceptable(text string) bool {
	return engine.RuneLen(strings.TrimSpace(text)) >= n.opts.MinChars
}

// Job renders a job posting. Title and category appear twice, the role
// sentence follows the titles, tags come after the description.
func (n *Normalizer) Job(j *engine.Job) string {
	var lines []string
	add := func(label, value string) {
		if value = engine.CollapseSpace(value); value != "" {
			lines = append(lines, label+": "+value)
		}
	}

	add("Title", j.Title)
	add("Title", j.Title)
	if s := roleSentence(ClassifyTitle(j.Title)); s != "" {
		lines = append(lines, s)
	}
	add("Category", j.Category)
	add("Category", j.Category)
	add("Seniority", firstNonEmpty(j.Seniority, j.ExperienceLevel))
	add("Job type", j.JobType)
	add("Location", joinNonEmpty(", ", j.Location, j.Workplace))
	add("Description", n.description(engine.EntityRef{Kind: engine.KindJob, ID: j.ID}, j.Description))
	add("Requirements", engine.StripHTML(j.Requirements))
	add("Tags", strings.Join(j.Tags, ", "))

	return n.finish(engine.EntityRef{Kind: engine.KindJob, ID: j.ID}, lines)
}

// Candidate renders a candidate profile. The desired title stands in for the
// category line; skills are the candidate's tags and come last.
func (n *Normalizer) Candidate(c *engine.Candidate) string {
	var lines []string
	add := func(label, value string) {
		if value = engine.CollapseSpace(value); value != "" {
			lines = append(lines, label+": "+value)
		}
	}

	title := firstNonEmpty(c.DesiredTitle, c.Title)
	add("Title", title)
	add("Title", title)
	if s := roleSentence(ClassifyTitle(title)); s != "" {
		lines = append(lines, s)
	}
	if c.Title != "" && !strings.EqualFold(c.Title, title) {
		add("Current title", c.Title)
	}
	add("Experience", c.Experience)
	add("Location", c.Location)
	add("Education", c.Education)
	add("Bio", n.description(engine.EntityRef{Kind: engine.KindCandidate, ID: c.ID}, c.Bio))
	add("Skills", strings.Join(c.Skills, ", "))

	return n.finish(engine.EntityRef{Kind: engine.KindCandidate, ID: c.ID}, lines)
}

// description strips markup and caps the free-text field before the overall limit applies.
func (n *Normalizer) description(ref engine.EntityRef, raw string) string {
	text := engine.StripHTML(raw)
	if l := engine.RuneLen(text); l > n.opts.MaxDescriptionChars {
		text = engine.TruncateAtWord(text, n.opts.MaxDescriptionChars)
		n.logger.Info("textnorm: description truncated",
			slog.String("entity", ref.String()),
			slog.Int("length", l),
			slog.Int("limit", n.opts.MaxDescriptionChars))
	}
	return text
}

func (n *Normalizer) finish(ref engine.EntityRef, lines []string) string {
	text := strings.Join(lines, "\n")
	if l := engine.RuneLen(text); l > n.opts.MaxChars {
		text = engine.TruncateRunes(text, n.opts.MaxChars, "")
		n.logger.Warn("textnorm: text truncated",
			slog.String("entity", ref.String()),
			slog.Int("length", l),
			slog.Int("limit", n.opts.MaxChars))
	}
	return text
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func joinNonEmpty(sep string, vals ...string) string {
	var out []string
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, sep)
}
