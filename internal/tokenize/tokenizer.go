// Package tokenize adapts tokenizers to the encode/decode contract the
// chunker needs: text to opaque token ids and any id subsequence back to text.
package tokenize

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	ragerrors "github.com/Aman-CERP/ragpipe/internal/errors"
)

// Tokenizer maps text to token ids and back.
// Decode of a contiguous slice of Encode's output yields the matching
// text span, modulo surrounding whitespace.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
	Name() string
}

// pieceRegex matches one token: a run of letters/digits or a single other
// symbol, each carrying the whitespace that precedes it.
var pieceRegex = regexp.MustCompile(`\s*(?:[\p{L}\p{M}\p{N}]+|[^\s\p{L}\p{M}\p{N}])`)

// WordTokenizer is a reversible word-level tokenizer with a growing
// vocabulary. Ids are stable for the lifetime of the instance.
// Safe for concurrent use.
type WordTokenizer struct {
	mu     sync.RWMutex
	ids    map[string]int
	pieces []string
}

// NewWordTokenizer creates an empty word tokenizer.
func NewWordTokenizer() *WordTokenizer {
	return &WordTokenizer{ids: make(map[string]int)}
}

// Encode splits text into pieces and returns their ids, registering new pieces.
func (t *WordTokenizer) Encode(text string) ([]int, error) {
	pieces := pieceRegex.FindAllString(text, -1)
	if len(pieces) == 0 {
		return []int{}, nil
	}

	out := make([]int, len(pieces))

	t.mu.Lock()
	defer t.mu.Unlock()
	for i, p := range pieces {
		id, ok := t.ids[p]
		if !ok {
			id = len(t.pieces)
			t.ids[p] = id
			t.pieces = append(t.pieces, p)
		}
		out[i] = id
	}
	return out, nil
}

// Decode concatenates the pieces for ids and trims surrounding whitespace.
func (t *WordTokenizer) Decode(ids []int) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var sb strings.Builder
	for _, id := range ids {
		if id < 0 || id >= len(t.pieces) {
			return "", ragerrors.New(ragerrors.ErrCodeTokenizerFailed,
				fmt.Sprintf("unknown token id %d", id), nil)
		}
		sb.WriteString(t.pieces[id])
	}
	return strings.TrimSpace(sb.String()), nil
}

// Name returns "word".
func (t *WordTokenizer) Name() string { return "word" }

// VocabSize returns the number of distinct pieces seen so far.
func (t *WordTokenizer) VocabSize() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.pieces)
}

var _ Tokenizer = (*WordTokenizer)(nil)

// New returns the tokenizer named kind ("word" or "bpe").
// encoding selects the BPE vocabulary and is ignored for "word".
func New(kind, encoding string) (Tokenizer, error) {
	switch strings.ToLower(kind) {
	case "", "word":
		return NewWordTokenizer(), nil
	case "bpe":
		return NewBPETokenizer(encoding)
	default:
		return nil, ragerrors.ConfigError(fmt.Sprintf("unknown tokenizer %q", kind), nil).
			WithSuggestion("use 'word' or 'bpe'")
	}
}
