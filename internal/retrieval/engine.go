package retrieval

import (
	"context"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/contosowiki/sage/internal/alias"
	"github.com/contosowiki/sage/internal/config"
	"github.com/contosowiki/sage/internal/embedding"
	sageerrors "github.com/contosowiki/sage/internal/errors"
	"github.com/contosowiki/sage/internal/logger"
	"github.com/contosowiki/sage/internal/types"
	"github.com/contosowiki/sage/internal/vectorindex"
)

// Engine is the Retrieval Engine component: hybrid
// vector+keyword search over the expanded query set, deterministic given
// the same inputs.
type Engine struct {
	embedder embedding.Embedder
	index    vectorindex.Index
	aliases  *alias.Registry
	cfg      *config.Config
}

func NewEngine(embedder embedding.Embedder, index vectorindex.Index, aliases *alias.Registry, cfg *config.Config) *Engine {
	return &Engine{embedder: embedder, index: index, aliases: aliases, cfg: cfg}
}

const expandedQueryCap = 8

// Retrieve runs the full §4.4 algorithm: build the expanded query set,
// embed+search each member concurrently, merge by chunk id, score, dedup,
// and apply staged precision relaxation. aliasExpansions, when non-nil,
// is the pre-computed expansion set from the expand stage; a nil value
// makes the engine consult the registry itself.
func (e *Engine) Retrieve(ctx context.Context, query string, intent *types.IntentPlan, aliasExpansions []string) ([]*types.RetrievalResult, error) {
	queries, expansions := e.buildQuerySet(ctx, query, intent, aliasExpansions)

	vecs, keywordOnly, err := e.embedQueries(ctx, queries)
	if err != nil {
		return nil, err
	}

	candidates := map[string]*types.RetrievalResult{}
	textsByChunk := map[string]string{}

	if !keywordOnly {
		// The vector fan-out gets its own deadline so a slow index degrades
		// to keyword-only instead of eating the whole request budget.
		searchCtx, cancelSearch := context.WithTimeout(ctx, e.cfg.RetrievalTimeout())
		grp, grpCtx := errgroup.WithContext(searchCtx)
		results := make([][]vectorindex.ScoredPoint, len(queries))
		for i := range queries {
			i, vec := i, vecs[i]
			grp.Go(func() error {
				pts, serr := e.index.Search(grpCtx, vec, e.cfg.Retrieval.K, nil)
				if serr != nil {
					return serr
				}
				results[i] = pts
				return nil
			})
		}
		werr := grp.Wait()
		cancelSearch()
		switch {
		case werr == nil:
			for _, pts := range results {
				for _, p := range pts {
					mergeVectorHit(candidates, textsByChunk, p, expansions, e.cfg)
				}
			}
		case searchCtx.Err() != nil && ctx.Err() == nil:
			logger.Warnf(ctx, "retrieval: vector search timed out, falling back to keyword-only: %v", werr)
			keywordOnly = true
		default:
			return nil, sageerrors.Wrap(sageerrors.RetrievalUnavailable, "vector search failed", werr)
		}
	}
	if keywordOnly {
		// No embeddings available: scan the corpus via the index's scroll
		// cursor instead of a vector query, so keyword-only mode still has
		// chunk text to score against.
		pts, serr := e.scanCorpus(ctx)
		if serr != nil {
			return nil, sageerrors.Wrap(sageerrors.RetrievalUnavailable, "corpus scan failed", serr)
		}
		for _, p := range pts {
			mergeScanHit(candidates, textsByChunk, p, expansions, e.cfg)
		}
	}

	keywordScores := e.keywordScores(strings.Join(queries, " "), textsByChunk)
	for chunkID, score := range keywordScores {
		if r, ok := candidates[chunkID]; ok {
			r.ScoreKeyword = score
			r.CombinedScore = combinedScore(r)
		}
	}

	list := make([]*types.RetrievalResult, 0, len(candidates))
	for _, r := range candidates {
		list = append(list, r)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CombinedScore != list[j].CombinedScore {
			return list[i].CombinedScore > list[j].CombinedScore
		}
		return list[i].ChunkID < list[j].ChunkID
	})

	list = e.dedup(list)
	list = e.applyStagedPrecision(list)
	if len(list) > e.cfg.Retrieval.Cap {
		list = list[:e.cfg.Retrieval.Cap]
	}
	return list, nil
}

// buildQuerySet assembles Q = {q} ∪ alias_expansions(q) ∪
// intent.search_focus[], capped at 8. precomputed, when
// non-nil, is the expand stage's alias-expansion list reused verbatim so
// the step frame the client saw and the queries actually searched never
// diverge.
func (e *Engine) buildQuerySet(ctx context.Context, query string, intent *types.IntentPlan, precomputed []string) (queries []string, expansionTerms []string) {
	seen := map[string]bool{strings.ToLower(query): true}
	// Track individual query words too: an expansion equal to a term the
	// query already contains adds nothing.
	for _, tok := range tokenize(query) {
		seen[tok] = true
	}
	queries = []string{query}

	if intent != nil {
		for _, f := range intent.SearchFocus {
			if len(queries) >= expandedQueryCap {
				break
			}
			k := strings.ToLower(f)
			if f == "" || seen[k] {
				continue
			}
			seen[k] = true
			queries = append(queries, f)
		}
	}

	expansions := precomputed
	if expansions == nil && e.aliases != nil {
		fromRegistry, err := e.aliases.Expand(ctx, tokenize(query))
		if err != nil {
			logger.Warnf(ctx, "retrieval: alias expansion failed: %v", err)
		}
		for _, exp := range fromRegistry {
			expansions = append(expansions, exp.Term)
		}
	}
	for _, term := range expansions {
		if len(queries) >= expandedQueryCap {
			break
		}
		k := strings.ToLower(term)
		if term == "" || seen[k] {
			continue
		}
		seen[k] = true
		queries = append(queries, term)
		expansionTerms = append(expansionTerms, term)
	}
	return queries, expansionTerms
}

// Warming reports whether the embedding client is still inside its
// first-use warm-up window, so the retrieve stage can surface a "loading
// model" step instead of silently blocking.
func (e *Engine) Warming() bool {
	w, ok := e.embedder.(interface{ Warmed() bool })
	return ok && !w.Warmed()
}

// embedQueries embeds every member of Q, falling back to keyword-only mode
// on embedding failure rather than failing the whole call.
func (e *Engine) embedQueries(ctx context.Context, queries []string) (vecs [][]float32, keywordOnly bool, err error) {
	vecs, embedErr := e.embedder.Embed(ctx, queries)
	if embedErr != nil {
		logger.Warnf(ctx, "retrieval: embedding failed, falling back to keyword-only: %v", embedErr)
		return nil, true, nil
	}
	return vecs, false, nil
}

const corpusScanPageLimit = 200

// scanCorpus paginates the vector index's scroll cursor to enumerate every
// point, used only for the keyword-only fallback path.
func (e *Engine) scanCorpus(ctx context.Context) ([]vectorindex.Point, error) {
	var all []vectorindex.Point
	cursor := ""
	for page := 0; page < corpusScanPageLimit; page++ {
		pts, next, err := e.index.Scroll(ctx, nil, cursor, 200)
		if err != nil {
			return nil, err
		}
		all = append(all, pts...)
		if next == "" || len(pts) == 0 {
			break
		}
		cursor = next
	}
	return all, nil
}

func mergeScanHit(candidates map[string]*types.RetrievalResult, texts map[string]string, p vectorindex.Point, expansions []string, cfg *config.Config) {
	r := &types.RetrievalResult{
		DocumentID:   p.DocumentID,
		ChunkID:      p.ChunkID,
		Title:        p.Title,
		URL:          p.SourceURL,
		SourceKind:   types.SourceKind(p.SourceKind),
		TextExcerpt:  p.Text,
		LastModified: p.LastModifiedRFC,
		AliasTags:    p.AliasTags,
		KeywordOnly:  true,
	}
	r.Authority = cfg.AuthorityFor(p.SourceKind)
	r.Freshness = freshness(p.LastModifiedRFC)
	r.ScoreAliasBoost = aliasBoost(p.AliasTags, expansions)
	r.CombinedScore = combinedScore(r)
	candidates[p.ChunkID] = r
	texts[p.ChunkID] = p.Text
}

func mergeVectorHit(candidates map[string]*types.RetrievalResult, texts map[string]string, p vectorindex.ScoredPoint, expansions []string, cfg *config.Config) {
	r, ok := candidates[p.ChunkID]
	if !ok {
		r = &types.RetrievalResult{
			DocumentID:   p.DocumentID,
			ChunkID:      p.ChunkID,
			Title:        p.Title,
			URL:          p.SourceURL,
			SourceKind:   types.SourceKind(p.SourceKind),
			TextExcerpt:  p.Text,
			LastModified: p.LastModifiedRFC,
			AliasTags:    p.AliasTags,
		}
		r.Authority = cfg.AuthorityFor(p.SourceKind)
		r.Freshness = freshness(p.LastModifiedRFC)
		r.ScoreAliasBoost = aliasBoost(p.AliasTags, expansions)
		candidates[p.ChunkID] = r
		texts[p.ChunkID] = p.Text
	}
	if p.Score > r.ScoreVector {
		r.ScoreVector = p.Score
	}
	r.CombinedScore = combinedScore(r)
}

func aliasBoost(tags, expansions []string) float64 {
	if len(expansions) == 0 {
		return 0
	}
	set := make(map[string]bool, len(expansions))
	for _, e := range expansions {
		set[strings.ToLower(e)] = true
	}
	for _, t := range tags {
		if set[strings.ToLower(t)] {
			return 0.05
		}
	}
	return 0
}

// freshness implements clamp(1 - days_since_modified/180, 0.2, 1.0).
func freshness(lastModifiedRFC string) float64 {
	t, err := time.Parse(time.RFC3339, lastModifiedRFC)
	if err != nil {
		return 0.2
	}
	days := time.Since(t).Hours() / 24
	f := 1.0 - days/180.0
	if f < 0.2 {
		return 0.2
	}
	if f > 1.0 {
		return 1.0
	}
	return f
}

// combinedScore is the deterministic weighted ranking scalar.
func combinedScore(r *types.RetrievalResult) float64 {
	return 0.50*r.ScoreVector + 0.20*r.ScoreKeyword + 0.15*r.Authority + 0.10*r.Freshness + 0.05*r.ScoreAliasBoost
}

func (e *Engine) keywordScores(query string, texts map[string]string) map[string]float64 {
	if len(texts) == 0 {
		return nil
	}
	idx := NewKeywordIndex(texts)
	return idx.Search(query, e.cfg.Retrieval.K)
}

// dedup caps at 2 chunks per document and drops near-duplicate text via
// shingled Jaccard similarity against higher-ranked chunks.
func (e *Engine) dedup(list []*types.RetrievalResult) []*types.RetrievalResult {
	perDoc := map[string]int{}
	var kept []*types.RetrievalResult
	var keptShingles [][]string

	for _, r := range list {
		if perDoc[r.DocumentID] >= e.cfg.Retrieval.MaxPerDocument {
			continue
		}
		sh := shingles(r.TextExcerpt, 3)
		isDup := false
		for _, ks := range keptShingles {
			if jaccard(sh, ks) >= e.cfg.Retrieval.NearDupJaccard {
				isDup = true
				break
			}
		}
		if isDup {
			continue
		}
		kept = append(kept, r)
		keptShingles = append(keptShingles, sh)
		perDoc[r.DocumentID]++
	}
	return kept
}

func shingles(text string, size int) []string {
	toks := tokenize(text)
	if len(toks) < size {
		return toks
	}
	out := make([]string, 0, len(toks)-size+1)
	for i := 0; i+size <= len(toks); i++ {
		out = append(out, strings.Join(toks[i:i+size], " "))
	}
	return out
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := map[string]bool{}
	for _, s := range a {
		setA[s] = true
	}
	setB := map[string]bool{}
	for _, s := range b {
		setB[s] = true
	}
	inter := 0
	for s := range setA {
		if setB[s] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// applyStagedPrecision relaxes the precision floor until at least 3 results
// qualify, never admitting a chunk below min_score_vector.
func (e *Engine) applyStagedPrecision(list []*types.RetrievalResult) []*types.RetrievalResult {
	filtered := make([]*types.RetrievalResult, 0, len(list))
	for _, r := range list {
		if r.ScoreVector < e.cfg.Retrieval.MinScoreVector && !r.KeywordOnly {
			continue
		}
		filtered = append(filtered, r)
	}

	for _, floor := range e.cfg.Retrieval.PrecisionFloors {
		var atFloor []*types.RetrievalResult
		for _, r := range filtered {
			if r.CombinedScore >= floor {
				atFloor = append(atFloor, r)
			}
		}
		if len(atFloor) >= 3 {
			return atFloor
		}
	}
	return filtered
}
