package search

import (
	"cmp"
	"context"
	"math"
	"slices"

	"github.com/Aman-CERP/ragpipe/internal/tokenize"
)

// lengthDamping controls how strongly long passages are penalized.
const lengthDamping = 0.1

// LexicalReranker scores passages by the fraction of distinct query terms
// they contain, damped by the log of passage length. It is deterministic
// and needs no network.
type LexicalReranker struct{}

var _ Reranker = (*LexicalReranker)(nil)

// NewLexicalReranker creates a lexical relevance oracle.
func NewLexicalReranker() *LexicalReranker {
	return &LexicalReranker{}
}

// Rerank scores every passage and orders them by descending score. Ties
// keep input order.
func (l *LexicalReranker) Rerank(ctx context.Context, query string, passages []string) ([]RerankResult, error) {
	if len(passages) == 0 {
		return []RerankResult{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, rerankError(l.Name(), err)
	}

	queryTerms := uniqueTerms(tokenize.Terms(query))
	ranked := make([]oracleScore, len(passages))
	for i, p := range passages {
		ranked[i] = oracleScore{Index: i, Score: lexicalScore(queryTerms, tokenize.Terms(p))}
	}
	slices.SortStableFunc(ranked, func(a, b oracleScore) int {
		return cmp.Compare(b.Score, a.Score)
	})

	return mapOracleResults(passages, ranked)
}

func lexicalScore(queryTerms []string, passageTerms []string) float64 {
	if len(queryTerms) == 0 || len(passageTerms) == 0 {
		return 0
	}

	present := make(map[string]struct{}, len(passageTerms))
	for _, t := range passageTerms {
		present[t] = struct{}{}
	}

	matched := 0
	for _, t := range queryTerms {
		if _, ok := present[t]; ok {
			matched++
		}
	}

	coverage := float64(matched) / float64(len(queryTerms))
	return coverage / (1 + lengthDamping*math.Log1p(float64(len(passageTerms))))
}

func uniqueTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0:0]
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Name identifies the oracle
func (l *LexicalReranker) Name() string { return "lexical" }

// Available is always true
func (l *LexicalReranker) Available(_ context.Context) bool { return true }

// Close is a no-op
func (l *LexicalReranker) Close() error { return nil }
