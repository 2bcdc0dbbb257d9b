// Package quality implements the Quality Analyzer component:
// conflict detection across retrieved sources and the pre/post-generation
// confidence score.
package quality

import (
	"regexp"
	"strings"
)

var (
	emailRe     = regexp.MustCompile(`[\w.-]+@[\w.-]+`)
	titleCaseRe = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,2}\b`)
	roleRe      = regexp.MustCompile(`(?i)\b(lead|manager|owner|on-call|oncall)\b`)
)

// MemberList is the extracted candidate member set from one source, used by
// the team_inquiry conflict heuristics.
type MemberList struct {
	Names  []string
	Emails []string
	Roles  []string
}

// Empty reports whether no member-like signal was extracted at all.
func (m MemberList) Empty() bool {
	return len(m.Names) == 0 && len(m.Emails) == 0 && len(m.Roles) == 0
}

// ExtractMembers pulls candidate names, emails, and roles from a chunk's
// text via regex + title-case heuristics.
func ExtractMembers(text string) MemberList {
	var ml MemberList
	seen := map[string]bool{}
	for _, m := range titleCaseRe.FindAllString(text, -1) {
		if !seen[m] {
			seen[m] = true
			ml.Names = append(ml.Names, m)
		}
	}
	emailSeen := map[string]bool{}
	for _, m := range emailRe.FindAllString(text, -1) {
		if !emailSeen[m] {
			emailSeen[m] = true
			ml.Emails = append(ml.Emails, m)
		}
	}
	roleSeen := map[string]bool{}
	for _, m := range roleRe.FindAllString(text, -1) {
		lower := strings.ToLower(m)
		if !roleSeen[lower] {
			roleSeen[lower] = true
			ml.Roles = append(ml.Roles, lower)
		}
	}
	return ml
}

var teamInquiryKeywords = []string{"team", "members", "lead", "who is", "contact", "on-call", "oncall"}

// IsTeamInquiry reports whether the query heuristically asks about a
// team/roster.
func IsTeamInquiry(query string) bool {
	lower := strings.ToLower(query)
	for _, kw := range teamInquiryKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// setDiff returns the elements of a not present in b, case-insensitively.
func setDiff(a, b []string) []string {
	bSet := make(map[string]bool, len(b))
	for _, v := range b {
		bSet[strings.ToLower(v)] = true
	}
	var out []string
	for _, v := range a {
		if !bSet[strings.ToLower(v)] {
			out = append(out, v)
		}
	}
	return out
}
