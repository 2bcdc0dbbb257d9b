// Package retrieval implements the Retrieval Engine: hybrid
// vector + keyword search, combined-score ranking, near-duplicate dedup and
// staged precision relaxation.
package retrieval

import (
	"math"
	"regexp"
	"strings"
)

var tokenRe = regexp.MustCompile(`[A-Za-z0-9]+`)

func tokenize(s string) []string {
	toks := tokenRe.FindAllString(strings.ToLower(s), -1)
	return toks
}

// keywordDoc is one chunk's precomputed term frequencies for the inverted
// index scan.
type keywordDoc struct {
	chunkID string
	terms   map[string]int
	length  int
}

// KeywordIndex is a lightweight in-process BM25-style scan over chunk
// text, standing in for a full search engine. Built fresh per retrieval
// call from the candidate chunk set returned by the vector search
// fan-out, so it never needs its own storage layer.
type KeywordIndex struct {
	docs    []keywordDoc
	df      map[string]int
	avgLen  float64
	k1, b   float64
}

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// NewKeywordIndex builds an index over the given (chunkID, text) pairs.
func NewKeywordIndex(chunks map[string]string) *KeywordIndex {
	idx := &KeywordIndex{df: map[string]int{}, k1: bm25K1, b: bm25B}
	var totalLen int
	for chunkID, text := range chunks {
		terms := map[string]int{}
		toks := tokenize(text)
		for _, t := range toks {
			terms[t]++
		}
		for t := range terms {
			idx.df[t]++
		}
		idx.docs = append(idx.docs, keywordDoc{chunkID: chunkID, terms: terms, length: len(toks)})
		totalLen += len(toks)
	}
	if len(idx.docs) > 0 {
		idx.avgLen = float64(totalLen) / float64(len(idx.docs))
	}
	return idx
}

// Search returns normalized BM25 scores (0-1) for the top-k chunks matching
// the query, keyed by chunk id.
func (idx *KeywordIndex) Search(query string, k int) map[string]float64 {
	qterms := tokenize(query)
	if len(qterms) == 0 || len(idx.docs) == 0 {
		return nil
	}
	n := float64(len(idx.docs))

	raw := make(map[string]float64, len(idx.docs))
	for _, d := range idx.docs {
		var score float64
		for _, qt := range qterms {
			tf, ok := d.terms[qt]
			if !ok {
				continue
			}
			df := float64(idx.df[qt])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			denom := float64(tf) + idx.k1*(1-idx.b+idx.b*float64(d.length)/idx.avgLen)
			score += idf * (float64(tf) * (idx.k1 + 1)) / denom
		}
		if score > 0 {
			raw[d.chunkID] = score
		}
	}

	maxScore := 0.0
	for _, s := range raw {
		if s > maxScore {
			maxScore = s
		}
	}
	normalized := make(map[string]float64, len(raw))
	for id, s := range raw {
		if maxScore > 0 {
			normalized[id] = s / maxScore
		}
	}

	if k > 0 && len(normalized) > k {
		type kv struct {
			id    string
			score float64
		}
		pairs := make([]kv, 0, len(normalized))
		for id, s := range normalized {
			pairs = append(pairs, kv{id, s})
		}
		// partial selection: keep top-k by score, descending.
		for i := 0; i < k; i++ {
			best := i
			for j := i + 1; j < len(pairs); j++ {
				if pairs[j].score > pairs[best].score {
					best = j
				}
			}
			pairs[i], pairs[best] = pairs[best], pairs[i]
		}
		trimmed := make(map[string]float64, k)
		for i := 0; i < k; i++ {
			trimmed[pairs[i].id] = pairs[i].score
		}
		return trimmed
	}
	return normalized
}
