package textnorm

import (
	"strings"
	"unicode"
)

// RoleType is a canonical role category derived from a job title.
type RoleType string

const (
	RoleNone         RoleType = ""
	RoleFullStack    RoleType = "Full Stack Developer"
	RoleMobile       RoleType = "Mobile Developer"
	RoleDevOps       RoleType = "DevOps Engineer"
	RoleQA           RoleType = "QA Engineer"
	RoleDataEngineer RoleType = "Data Engineer"
	RoleDataScience  RoleType = "Data Science / ML Engineer"
	RoleDesigner     RoleType = "Designer"
	RoleProduct      RoleType = "Product Manager"
	RoleFrontend     RoleType = "Frontend Developer"
	RoleBackend      RoleType = "Backend Developer"
	RoleSoftware     RoleType = "Software Engineer"
)

type roleRule struct {
	role     RoleType
	keywords []string
}

// roleRules are checked in order; the first rule with a matching keyword wins.
// Keywords are matched at word starts of the normalized title, so "react"
// matches "react" and "reactjs" but not "proactive".
var roleRules = []roleRule{
	{RoleFullStack, []string{"full stack", "fullstack"}},
	{RoleMobile, []string{"react native", "ios", "android", "mobile", "flutter", "swift", "kotlin"}},
	{RoleDevOps, []string{"devops", "dev ops", "sre", "site reliability", "platform engineer", "infrastructure", "cloud engineer", "kubernetes"}},
	{RoleQA, []string{"qa", "quality assurance", "test engineer", "tester", "sdet", "test automation"}},
	{RoleDataEngineer, []string{"data engineer", "etl", "data platform", "analytics engineer"}},
	{RoleDataScience, []string{"data scien", "machine learning", "ml", "ai engineer", "deep learning", "nlp", "computer vision", "data analyst"}},
	{RoleDesigner, []string{"designer", "ux", "ui ux", "graphic design", "product design", "visual design"}},
	{RoleProduct, []string{"product manager", "product owner", "product lead"}},
	{RoleFrontend, []string{"frontend", "front end", "react", "vue", "angular", "ui developer", "ui engineer", "web developer", "javascript", "typescript"}},
	{RoleBackend, []string{"backend", "back end", "api developer", "server side", "golang", "go developer", "java", "python developer", "node", "ruby", "php"}},
	{RoleSoftware, []string{"software", "developer", "engineer", "programmer", "sde"}},
}

// ClassifyTitle maps a free-text title to a canonical role, or RoleNone.
func ClassifyTitle(title string) RoleType {
	norm := " " + normalizeTitle(title) + " "
	if strings.TrimSpace(norm) == "" {
		return RoleNone
	}
	for _, rule := range roleRules {
		for _, kw := range rule.keywords {
			if strings.Contains(norm, " "+kw) {
				return rule.role
			}
		}
	}
	return RoleNone
}

// normalizeTitle lower-cases and turns separators into single spaces:
// "Front-End / UI" → "front end ui".
func normalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '#' {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// roleSentence is the context line inserted near the top of normalized text.
func roleSentence(role RoleType) string {
	if role == RoleNone {
		return ""
	}
	return "This is a " + string(role) + " role."
}
