package alias

import (
	"math"
	"regexp"
	"strings"

	"github.com/contosowiki/sage/internal/types"
)

// Candidate is one detector hit, prior to reinforcement/decay merging.
type Candidate struct {
	TermA, TermB string
	Kind         types.AliasEdgeKind
	Confidence   float64
	DocumentID   string
}

var (
	// "X (Y)" within a sentence.
	parentheticalRe = regexp.MustCompile(`([A-Za-z][\w/&-]*(?:\s+[A-Za-z][\w/&-]*){0,4})\s*\(([^()]{2,40})\)`)
	// "X — Y" or "X - Y" with a short Y.
	dashRe = regexp.MustCompile(`([A-Za-z][\w/&]*(?:\s+[A-Za-z][\w/&]*){0,3})\s+[—-]\s+([A-Za-z][\w/&]*(?:\s+[A-Za-z][\w/&]*){0,2})`)
	// "team@..." co-mentioned with a team name.
	emailRe = regexp.MustCompile(`([a-zA-Z][\w.-]*)@[\w.-]+`)
)

// DetectParenthetical finds "X (Y)" patterns in doc text.
func DetectParenthetical(docID, text string) []Candidate {
	var out []Candidate
	for _, m := range parentheticalRe.FindAllStringSubmatch(text, -1) {
		a, b := Normalize(m[1]), Normalize(m[2])
		if ValidEndpoint(a) && ValidEndpoint(b) {
			out = append(out, Candidate{TermA: a, TermB: b, Kind: types.AliasParenthetical,
				Confidence: types.AliasParenthetical.BaseConfidence(), DocumentID: docID})
		}
	}
	return out
}

// DetectDash finds "X — Y" / "X - Y" patterns with a short right side.
func DetectDash(docID, text string) []Candidate {
	var out []Candidate
	for _, m := range dashRe.FindAllStringSubmatch(text, -1) {
		a, b := Normalize(m[1]), Normalize(m[2])
		if ValidEndpoint(a) && ValidEndpoint(b) && len(strings.Fields(b)) <= 3 {
			out = append(out, Candidate{TermA: a, TermB: b, Kind: types.AliasDash,
				Confidence: types.AliasDash.BaseConfidence(), DocumentID: docID})
		}
	}
	return out
}

// DetectHeaderContent emits a header-content candidate for each heading
// that the document body repeats. The candidate pairs the heading with
// itself (TermA == TermB); it does not link the heading to a different
// term found in the body.
func DetectHeaderContent(docID string, headings []string, body string) []Candidate {
	var out []Candidate
	lowerBody := strings.ToLower(body)
	for _, h := range headings {
		hterm := Normalize(h)
		if !ValidEndpoint(hterm) {
			continue
		}
		// A heading "repeatedly referenced" means the whole heading phrase
		// appears at least 3 times in the body (case-insensitive).
		if strings.Count(lowerBody, strings.ToLower(h)) >= 3 {
			out = append(out, Candidate{TermA: hterm, TermB: hterm, Kind: types.AliasHeaderContent,
				Confidence: types.AliasHeaderContent.BaseConfidence(), DocumentID: docID})
		}
	}
	return out
}

// DetectEmailTeam pairs a team-name mention with a co-mentioned
// "team@..." alias in the same document.
func DetectEmailTeam(docID, text string, teamNames []string) []Candidate {
	var out []Candidate
	emails := emailRe.FindAllStringSubmatch(text, -1)
	if len(emails) == 0 {
		return nil
	}
	lower := strings.ToLower(text)
	for _, team := range teamNames {
		t := Normalize(team)
		if !ValidEndpoint(t) || !strings.Contains(lower, t) {
			continue
		}
		for _, m := range emails {
			alias := Normalize(m[1])
			// The local part's '-', '.' and '_' separated words count as
			// tokens, so "identity-team" qualifies like "identity team".
			if ValidEndpoint(alias) || ValidEndpoint(strings.NewReplacer("-", " ", ".", " ", "_", " ").Replace(alias)) {
				out = append(out, Candidate{TermA: t, TermB: alias, Kind: types.AliasEmailTeam,
					Confidence: types.AliasEmailTeam.BaseConfidence(), DocumentID: docID})
			}
		}
	}
	return out
}

// DetectCooccurrence scores term pairs by PMI over the given windows of the
// corpus.
// windows is the tokenized-and-windowed corpus (one []string per window).
func DetectCooccurrence(docID string, windows [][]string, pmiThreshold float64) []Candidate {
	termFreq := map[string]int{}
	pairFreq := map[[2]string]int{}
	totalWindows := len(windows)
	for _, w := range windows {
		seen := map[string]bool{}
		for _, tok := range w {
			t := Normalize(tok)
			if !ValidEndpoint(t) || seen[t] {
				continue
			}
			seen[t] = true
			termFreq[t]++
		}
		uniq := make([]string, 0, len(seen))
		for t := range seen {
			uniq = append(uniq, t)
		}
		for i := 0; i < len(uniq); i++ {
			for j := i + 1; j < len(uniq); j++ {
				a, b := types.CanonicalPair(uniq[i], uniq[j])
				pairFreq[[2]string{a, b}]++
			}
		}
	}

	var out []Candidate
	if totalWindows == 0 {
		return out
	}
	for pair, pf := range pairFreq {
		a, b := pair[0], pair[1]
		pA := float64(termFreq[a]) / float64(totalWindows)
		pB := float64(termFreq[b]) / float64(totalWindows)
		pAB := float64(pf) / float64(totalWindows)
		if pA == 0 || pB == 0 || pAB == 0 {
			continue
		}
		pmi := math.Log2(pAB / (pA * pB))
		normalized := normalizePMI(pmi)
		if normalized < pmiThreshold {
			continue
		}
		out = append(out, Candidate{
			TermA: a, TermB: b, Kind: types.AliasCooccurrence,
			Confidence: 0.35 + 0.1*normalized, DocumentID: docID,
		})
	}
	return out
}

// normalizePMI squashes a raw PMI value into [0,1] via a logistic-ish
// clamp, since PMI is unbounded above.
func normalizePMI(pmi float64) float64 {
	if pmi <= 0 {
		return 0
	}
	n := pmi / (pmi + 1)
	if n > 1 {
		return 1
	}
	return n
}

// DetectConversational validates one term pair taken from a user/assistant
// turn (see ConversationalPairs) and returns it as a conversational
// candidate, or nil if either endpoint is invalid or both are the same.
func DetectConversational(termA, termB string) *Candidate {
	a, b := Normalize(termA), Normalize(termB)
	if !ValidEndpoint(a) || !ValidEndpoint(b) || a == b {
		return nil
	}
	return &Candidate{TermA: a, TermB: b, Kind: types.AliasConversational,
		Confidence: types.AliasConversational.BaseConfidence()}
}
