package scoring

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/anatolykoptev/go_match/internal/engine"
)

// Component ceilings. They sum to 100.
const (
	maxTitle        = 20.0
	maxSkills       = 25.0
	maxExperience   = 15.0
	maxLocation     = 15.0
	maxEducation    = 5.0
	maxSalary       = 10.0
	maxAvailability = 10.0
)

// Score computes the seven-part breakdown of candidate c against job j.
// Each component is rounded to one decimal so the breakdown sums to Total().
func Score(j *engine.Job, c *engine.Candidate) engine.MatchBreakdown {
	req := requirementsText(j)
	return engine.MatchBreakdown{
		Title:        engine.Round1(titleScore(candidateTitle(c), j.Title)),
		Skills:       engine.Round1(skillsScore(c.Skills, req)),
		Experience:   engine.Round1(experienceScore(c.Experience, jobExperience(j))),
		Location:     engine.Round1(locationScore(c.Location, j)),
		Education:    engine.Round1(educationScore(c.Education, req)),
		Salary:       engine.Round1(salaryScore(c.SalaryExpectation, j.SalaryMin, j.SalaryMax)),
		Availability: engine.Round1(availabilityScore(c.Availability)),
	}
}

func candidateTitle(c *engine.Candidate) string {
	if strings.TrimSpace(c.DesiredTitle) != "" {
		return c.DesiredTitle
	}
	return c.Title
}

func jobExperience(j *engine.Job) string {
	if strings.TrimSpace(j.ExperienceLevel) != "" {
		return j.ExperienceLevel
	}
	return j.Seniority
}

// requirementsText is the lower-cased haystack for skills and education:
// requirements plus tags, or the description when no requirements are given.
func requirementsText(j *engine.Job) string {
	text := engine.StripHTML(j.Requirements)
	if strings.TrimSpace(text) == "" {
		text = engine.StripHTML(j.Description)
	}
	if len(j.Tags) > 0 {
		text += " " + strings.Join(j.Tags, " ")
	}
	return strings.ToLower(text)
}

// --- title ---

func titleScore(candidate, job string) float64 {
	a := strings.ToLower(strings.TrimSpace(candidate))
	b := strings.ToLower(strings.TrimSpace(job))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return maxTitle
	}
	wa, wb := significantWords(a), significantWords(b)
	denom := max(len(wa), len(wb))
	if denom == 0 {
		return 0
	}
	shared := 0
	for w := range wa {
		if wb[w] {
			shared++
		}
	}
	return maxTitle * float64(shared) / float64(denom)
}

// significantWords returns the distinct words longer than three characters.
func significantWords(s string) map[string]bool {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '#'
	})
	out := make(map[string]bool, len(words))
	for _, w := range words {
		if len([]rune(w)) > 3 {
			out[w] = true
		}
	}
	return out
}

// --- skills ---

func skillsScore(skills []string, req string) float64 {
	total, hit := 0, 0
	for _, s := range skills {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		total++
		if strings.Contains(req, s) {
			hit++
		}
	}
	if total == 0 {
		return 0
	}
	return maxSkills * float64(hit) / float64(total)
}

// --- experience ---

type expBucket struct {
	name  string
	years int
	words []string
}

// experienceBuckets is ordered by representative years.
var experienceBuckets = []expBucket{
	{"entry", 0, []string{"entry", "intern", "internship", "graduate", "trainee", "no experience"}},
	{"junior", 1, []string{"junior", "jr"}},
	{"mid", 3, []string{"mid", "middle", "intermediate", "regular"}},
	{"senior", 5, []string{"senior", "sr"}},
	{"lead", 8, []string{"lead", "staff", "manager"}},
	{"principal", 12, []string{"principal", "architect", "director", "executive"}},
}

var yearsRe = regexp.MustCompile(`(\d{1,2})\s*\+?\s*(?:years?|yrs?|y)\b`)

// experienceBucket maps free text to a bucket index, -1 when unknown.
// Explicit years win over level words.
func experienceBucket(s string) int {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return -1
	}
	if m := yearsRe.FindStringSubmatch(s); m != nil {
		years, _ := strconv.Atoi(m[1])
		return bucketForYears(years)
	}
	if years, err := strconv.Atoi(s); err == nil {
		return bucketForYears(years)
	}
	words := strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
	joined := " " + strings.Join(words, " ") + " "
	for i := len(experienceBuckets) - 1; i >= 0; i-- {
		for _, w := range experienceBuckets[i].words {
			if strings.Contains(joined, " "+w+" ") {
				return i
			}
		}
	}
	return -1
}

// bucketForYears picks the bucket with the nearest lower representative year.
func bucketForYears(years int) int {
	idx := 0
	for i, b := range experienceBuckets {
		if years >= b.years {
			idx = i
		}
	}
	return idx
}

var (
	overqualified  = []float64{13, 11, 9, 7}
	underqualified = []float64{12, 8, 4}
)

func experienceScore(candidate, required string) float64 {
	c, r := experienceBucket(candidate), experienceBucket(required)
	if c < 0 || r < 0 {
		return maxExperience / 2
	}
	switch gap := c - r; {
	case gap == 0:
		return maxExperience
	case gap > 0:
		return overqualified[min(gap, len(overqualified))-1]
	default:
		if -gap > len(underqualified) {
			return 0
		}
		return underqualified[-gap-1]
	}
}

// --- location ---

func locationScore(candidate string, j *engine.Job) float64 {
	if cc, jc := city(candidate), city(j.Location); cc != "" && cc == jc {
		return maxLocation
	}
	if isRemote(j) {
		return 12
	}
	return 5
}

func city(loc string) string {
	loc, _, _ = strings.Cut(loc, ",")
	return strings.ToLower(engine.CollapseSpace(loc))
}

func isRemote(j *engine.Job) bool {
	s := strings.ToLower(j.Workplace + " " + j.Location + " " + j.JobType)
	return strings.Contains(s, "remote") || strings.Contains(s, "hybrid")
}

// --- education ---

// educationKeywords maps recognized terms to a degree family.
var educationKeywords = map[string]string{
	"phd":       "doctorate",
	"ph.d":      "doctorate",
	"doctorate": "doctorate",
	"doctoral":  "doctorate",
	"master":    "master",
	"masters":   "master",
	"msc":       "master",
	"mba":       "master",
	"bachelor":  "bachelor",
	"bachelors": "bachelor",
	"bsc":       "bachelor",
	"associate": "associate",
	"diploma":   "diploma",
	"degree":    "degree",
}

func educationTerms(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '.'
	}) {
		w = strings.Trim(w, ".")
		if fam, ok := educationKeywords[w]; ok {
			out[fam] = true
		}
	}
	return out
}

func educationScore(candidate, req string) float64 {
	required := educationTerms(req)
	if len(required) == 0 {
		return maxEducation
	}
	for fam := range educationTerms(candidate) {
		if required[fam] {
			return maxEducation
		}
	}
	return 2
}

// --- salary ---

func salaryScore(expected, lo, hi float64) float64 {
	if expected <= 0 || (lo <= 0 && hi <= 0) {
		return maxSalary / 2
	}
	if lo > 0 && expected < lo {
		return 8
	}
	if hi <= 0 || expected <= hi {
		return maxSalary
	}
	switch over := (expected - hi) / hi * 100; {
	case over <= 10:
		return 6
	case over <= 20:
		return 4
	case over <= 30:
		return 2
	}
	return 0
}

// --- availability ---

var availabilityTable = []struct {
	score float64
	words []string
}{
	{10, []string{"immediate", "immediately", "now", "asap"}},
	{8, []string{"2 weeks", "two weeks", "2 week"}},
	{6, []string{"1 month", "one month", "a month"}},
	{4, []string{"3 months", "three months"}},
}

func availabilityScore(s string) float64 {
	s = strings.ToLower(strings.NewReplacer("-", " ", "_", " ").Replace(s))
	s = engine.CollapseSpace(s)
	if s == "" {
		return maxAvailability / 2
	}
	s = " " + s + " "
	for _, row := range availabilityTable {
		for _, w := range row.words {
			if strings.Contains(s, " "+w+" ") || strings.Contains(s, " "+w+"s ") {
				return row.score
			}
		}
	}
	return maxAvailability / 2
}
