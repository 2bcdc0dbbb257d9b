package quality

import (
	"strings"
	"time"

	"github.com/contosowiki/sage/internal/types"
)

// Analyzer is the Quality Analyzer component.
type Analyzer struct{}

func NewAnalyzer() *Analyzer { return &Analyzer{} }

// Report is the ephemeral {confidence, conflicts, notes} result.
type Report struct {
	Confidence float64
	Conflicts  []types.Conflict
	Notes      []string
}

const topSourcesForConflicts = 5
const outdatedGraceDays = 90
const recentWindowDays = 30

// DetectConflicts runs the team_inquiry member-list comparison over the
// top distinct-document sources.
func (a *Analyzer) DetectConflicts(query string, results []*types.RetrievalResult) []types.Conflict {
	if !IsTeamInquiry(query) {
		return nil
	}
	sources := topDistinctSources(results, topSourcesForConflicts)
	if len(sources) < 2 {
		return nil
	}

	var conflicts []types.Conflict
	for i := 0; i < len(sources); i++ {
		for j := i + 1; j < len(sources); j++ {
			if c, ok := compareSources(sources[i], sources[j]); ok {
				conflicts = append(conflicts, c)
			}
		}
	}
	return conflicts
}

type source struct {
	documentID   string
	url          string
	text         string
	lastModified time.Time
	hasDate      bool
}

func topDistinctSources(results []*types.RetrievalResult, limit int) []source {
	seen := map[string]bool{}
	var out []source
	for _, r := range results {
		if seen[r.DocumentID] {
			continue
		}
		seen[r.DocumentID] = true
		t, err := time.Parse(time.RFC3339, r.LastModified)
		out = append(out, source{
			documentID: r.DocumentID, url: r.URL, text: r.TextExcerpt,
			lastModified: t, hasDate: err == nil,
		})
		if len(out) >= limit {
			break
		}
	}
	return out
}

// compareSources applies the three team_inquiry rules.
func compareSources(a, b source) (types.Conflict, bool) {
	ma, mb := ExtractMembers(a.text), ExtractMembers(b.text)

	if ma.Empty() != mb.Empty() {
		return types.Conflict{
			Topic: "team membership", Sources: []string{a.url, b.url},
			Kind: types.ConflictMissingInfo, Severity: types.SeverityLow,
			Suggestion: "only one source lists members; the other may be out of date or scoped differently",
		}, true
	}
	if ma.Empty() && mb.Empty() {
		return types.Conflict{}, false
	}

	missingFromB := setDiff(ma.Names, mb.Names)
	missingFromA := setDiff(mb.Names, ma.Names)
	if len(missingFromB) == 0 && len(missingFromA) == 0 {
		return types.Conflict{}, false
	}

	if a.hasDate && b.hasDate {
		gap := a.lastModified.Sub(b.lastModified).Hours() / 24
		if gap < 0 {
			gap = -gap
		}
		if gap <= recentWindowDays {
			return types.Conflict{
				Topic: "team membership", Sources: []string{a.url, b.url},
				Kind: types.ConflictContradictory, Severity: types.SeverityHigh,
				Suggestion: "both sources were updated recently but disagree on membership",
			}, true
		}
		older, newer := a, b
		if b.lastModified.Before(a.lastModified) {
			older, newer = b, a
		}
		if newer.lastModified.Sub(older.lastModified).Hours()/24 >= outdatedGraceDays {
			return types.Conflict{
				Topic: "team membership", Sources: []string{older.url, newer.url},
				Kind: types.ConflictOutdated, Severity: types.SeverityMedium,
				Suggestion: "the older source may no longer reflect current membership",
			}, true
		}
	}
	return types.Conflict{
		Topic: "team membership", Sources: []string{a.url, b.url},
		Kind: types.ConflictContradictory, Severity: types.SeverityHigh,
		Suggestion: "sources disagree on membership",
	}, true
}

// Factors bundles the pre/post-generation confidence signals. Zero-value
// fields that aren't available yet (post-generation
// ones, pre-generation) are simply omitted from the weighted sum.
type Factors struct {
	DocumentationCoverage float64
	SourceAuthority       float64
	Conflicts             []types.Conflict
	QueryComplexity       float64
	ResponseCompleteness  *float64
	AICertainty           *float64

	// NoRetrieval marks a request the Intent Analyzer answered without
	// consulting the corpus. The coverage/authority factors measure the
	// quality of retrieved documentation, which doesn't exist for such a
	// request, so the sum is pro-rated over the factors that do apply.
	// Otherwise every greeting would score as if its documentation were
	// missing.
	NoRetrieval bool
}

// PreGenerationConfidence computes confidence from the first four factors,
// pro-rated since their weights (0.30+0.20+0.15+0.10=0.75) don't sum to 1.
func PreGenerationConfidence(f Factors) float64 {
	const totalWeight = 0.30 + 0.20 + 0.15 + 0.10
	sum := 0.30*f.DocumentationCoverage +
		0.20*f.SourceAuthority +
		0.15*conflictPenaltyFactor(f.Conflicts) +
		0.10*f.QueryComplexity
	return clamp01(sum / totalWeight)
}

// PostGenerationConfidence includes all six factors at their full weights.
// For no-retrieval requests the two retrieval-bound factors drop out and
// the rest are pro-rated up to a full weight of 1.
func PostGenerationConfidence(f Factors) float64 {
	sum := 0.15 * conflictPenaltyFactor(f.Conflicts)
	total := 0.15 + 0.10
	sum += 0.10 * f.QueryComplexity
	if !f.NoRetrieval {
		sum += 0.30*f.DocumentationCoverage + 0.20*f.SourceAuthority
		total += 0.30 + 0.20
	}
	if f.ResponseCompleteness != nil {
		sum += 0.15 * *f.ResponseCompleteness
		total += 0.15
	}
	if f.AICertainty != nil {
		sum += 0.10 * *f.AICertainty
		total += 0.10
	}
	return clamp01(sum / total)
}

func conflictPenaltyFactor(conflicts []types.Conflict) float64 {
	if len(conflicts) == 0 {
		return 1
	}
	var total float64
	for _, c := range conflicts {
		total += c.Severity.Weight()
	}
	return clamp01(1 - total/float64(len(conflicts)))
}

// DocumentationCoverage computes the fraction of query terms present in the
// top-5 chunk texts.
func DocumentationCoverage(query string, results []*types.RetrievalResult) float64 {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return 0
	}
	top := results
	if len(top) > 5 {
		top = top[:5]
	}
	var corpus strings.Builder
	for _, r := range top {
		corpus.WriteString(strings.ToLower(r.TextExcerpt))
		corpus.WriteByte(' ')
	}
	blob := corpus.String()
	covered := 0
	for _, t := range terms {
		if strings.Contains(blob, t) {
			covered++
		}
	}
	return float64(covered) / float64(len(terms))
}

// MeanAuthority computes the mean authority of the top-5 results.
func MeanAuthority(results []*types.RetrievalResult) float64 {
	top := results
	if len(top) > 5 {
		top = top[:5]
	}
	if len(top) == 0 {
		return 0
	}
	var sum float64
	for _, r := range top {
		sum += r.Authority
	}
	return sum / float64(len(top))
}

// QueryComplexity is the inverse of token/entity count: simple short
// queries score near 1, long multi-entity ones near 0.
func QueryComplexity(query string, entityCount int) float64 {
	n := len(queryTerms(query)) + entityCount
	if n <= 0 {
		return 1
	}
	return 1.0 / (1.0 + float64(n)/10.0)
}

func queryTerms(query string) []string {
	var out []string
	for _, f := range strings.Fields(strings.ToLower(query)) {
		if len(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
