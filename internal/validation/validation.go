// Package validation runs data-driven retrieval checks against an engine.
//
// Query sets are YAML files listing each query with the sources or text
// fragments that should appear among its results, so retrieval quality can
// be tracked without rebuilding:
//
//	queries:
//	  - id: Q1
//	    query: who fights villains in a metal suit
//	    expected: ["Iron Man"]
//	negative:
//	  - id: N1
//	    query: "???"
package validation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	ragerrors "github.com/Aman-CERP/ragpipe/internal/errors"
	"github.com/Aman-CERP/ragpipe/internal/search"
)

// QuerySpec defines a test query with expected results.
type QuerySpec struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name,omitempty"`
	Query string `yaml:"query" json:"query"`

	// Task is a task profile name. Empty uses the engine default.
	Task string `yaml:"task" json:"task,omitempty"`

	// Expected lists fragments matched case-insensitively against each
	// result's source and text. Any match passes.
	Expected []string `yaml:"expected" json:"expected,omitempty"`

	Notes    string `yaml:"notes" json:"-"`
	Negative bool   `yaml:"-" json:"negative,omitempty"`
}

// QuerySet holds all validation queries loaded from YAML.
type QuerySet struct {
	Queries  []QuerySpec `yaml:"queries"`
	Negative []QuerySpec `yaml:"negative"`
}

// LoadQueries reads a query set from path.
func LoadQueries(path string) (*QuerySet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ragerrors.New(ragerrors.ErrCodeFileNotFound,
			fmt.Sprintf("failed to read queries file %s", path), err)
	}
	return ParseQueries(data)
}

// ParseQueries decodes and checks a query set. Positive queries need
// at least one expected fragment and IDs must be unique.
func ParseQueries(data []byte) (*QuerySet, error) {
	var set QuerySet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, ragerrors.ConfigError("failed to parse queries YAML", err)
	}

	seen := make(map[string]bool)
	check := func(q QuerySpec) error {
		if q.ID == "" {
			return ragerrors.ConfigError(fmt.Sprintf("query %q has no id", q.Query), nil)
		}
		if seen[q.ID] {
			return ragerrors.ConfigError(fmt.Sprintf("duplicate query id %s", q.ID), nil)
		}
		seen[q.ID] = true
		return nil
	}

	for _, q := range set.Queries {
		if err := check(q); err != nil {
			return nil, err
		}
		if len(q.Expected) == 0 {
			return nil, ragerrors.ConfigError(fmt.Sprintf("query %s lists nothing expected", q.ID), nil).
				WithSuggestion("move it under negative: if it only needs to not fail")
		}
	}
	for i := range set.Negative {
		if err := check(set.Negative[i]); err != nil {
			return nil, err
		}
		set.Negative[i].Negative = true
	}
	if len(set.Queries)+len(set.Negative) == 0 {
		return nil, ragerrors.ConfigError("query set is empty", nil)
	}
	return &set, nil
}

// TestResult captures the outcome of a single query.
type TestResult struct {
	Spec     QuerySpec     `json:"spec"`
	Passed   bool          `json:"passed"`
	Duration time.Duration `json:"duration_ns"`

	// TopResults are the sources returned, in rank order.
	TopResults []string `json:"top_results"`

	// MatchedAt is the 0-based position of the first match, -1 if none.
	MatchedAt int    `json:"matched_at"`
	Error     string `json:"error,omitempty"`
}

// Report captures results of a full validation run.
type Report struct {
	Timestamp time.Time    `json:"timestamp"`
	Results   []TestResult `json:"results"`
	Negative  []TestResult `json:"negative"`
	Pass      int          `json:"pass"`
	Total     int          `json:"total"`
	NegPass   int          `json:"negative_pass"`
	NegTotal  int          `json:"negative_total"`

	// MRR is the mean reciprocal rank of the first match over positive
	// queries. Misses count as zero.
	MRR float64 `json:"mrr"`

	Embedder string `json:"embedder"`
	Reranker string `json:"reranker"`
	Chunks   int    `json:"chunks"`
}

// PassRate returns the fraction of positive queries that passed.
func (r *Report) PassRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Pass) / float64(r.Total)
}

// Failed reports whether any query failed.
func (r *Report) Failed() bool {
	return r.Pass < r.Total || r.NegPass < r.NegTotal
}

// Searcher is the engine surface the validator needs.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.SearchOptions) ([]search.Result, error)
	DefaultSearchOptions(topK, rerankK int) search.SearchOptions
	Stats() search.EngineStats
}

// Validator runs query sets against a populated engine.
type Validator struct {
	engine  Searcher
	topK    int
	rerankK int
}

// NewValidator creates a validator that searches with the given depths.
func NewValidator(engine Searcher, topK, rerankK int) *Validator {
	return &Validator{engine: engine, topK: topK, rerankK: rerankK}
}

// RunQuery executes a single query and returns the result. Negative
// queries pass unless the engine fails outright; input validation errors
// count as a pass.
func (v *Validator) RunQuery(ctx context.Context, spec QuerySpec) TestResult {
	start := time.Now()
	result := TestResult{Spec: spec, MatchedAt: -1}

	opts := v.engine.DefaultSearchOptions(v.topK, v.rerankK)
	if spec.Task != "" {
		task, err := search.ParseTaskProfile(spec.Task)
		if err != nil {
			result.Error = err.Error()
			return result
		}
		opts.Task = task
	}

	results, err := v.engine.Search(ctx, spec.Query, opts)
	result.Duration = time.Since(start)

	if err != nil {
		if spec.Negative && isInputError(err) {
			result.Passed = true
		} else {
			result.Error = err.Error()
		}
		return result
	}

	for _, r := range results {
		result.TopResults = append(result.TopResults, r.Chunk.Metadata.Source)
	}

	if spec.Negative {
		result.Passed = true
		return result
	}
	result.MatchedAt = matchExpected(results, spec.Expected)
	result.Passed = result.MatchedAt >= 0
	return result
}

// RunAll executes every query in set and returns the report.
func (v *Validator) RunAll(ctx context.Context, set *QuerySet) *Report {
	stats := v.engine.Stats()
	report := &Report{
		Timestamp: time.Now(),
		Embedder:  stats.DocumentModel,
		Reranker:  stats.Reranker,
		Chunks:    stats.Chunks,
	}

	var rr float64
	for _, spec := range set.Queries {
		tr := v.RunQuery(ctx, spec)
		report.Results = append(report.Results, tr)
		report.Total++
		if tr.Passed {
			report.Pass++
			rr += 1 / float64(tr.MatchedAt+1)
		}
	}
	if report.Total > 0 {
		report.MRR = rr / float64(report.Total)
	}

	for _, spec := range set.Negative {
		tr := v.RunQuery(ctx, spec)
		report.Negative = append(report.Negative, tr)
		report.NegTotal++
		if tr.Passed {
			report.NegPass++
		}
	}
	return report
}

// matchExpected returns the position of the first result whose source or
// text contains an expected fragment, or -1.
func matchExpected(results []search.Result, expected []string) int {
	for i, r := range results {
		source := strings.ToLower(r.Chunk.Metadata.Source)
		text := strings.ToLower(r.Chunk.Text)
		for _, exp := range expected {
			e := strings.ToLower(exp)
			if strings.Contains(source, e) || strings.Contains(text, e) {
				return i
			}
		}
	}
	return -1
}

func isInputError(err error) bool {
	var re *ragerrors.RAGError
	return errors.As(err, &re) && re.Category == ragerrors.CategoryValidation
}
