package tokenize

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	ragerrors "github.com/Aman-CERP/ragpipe/internal/errors"
)

// DefaultBPEEncoding is used when no encoding is configured.
const DefaultBPEEncoding = "cl100k_base"

// BPETokenizer wraps a tiktoken byte-pair encoding. Windows may split a
// multi-byte character, in which case the decoded edge is lossy.
type BPETokenizer struct {
	enc      *tiktoken.Tiktoken
	encoding string
}

// NewBPETokenizer loads the named encoding. The first load downloads the
// vocabulary unless TIKTOKEN_CACHE_DIR already holds it.
func NewBPETokenizer(encoding string) (*BPETokenizer, error) {
	if encoding == "" {
		encoding = DefaultBPEEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, ragerrors.New(ragerrors.ErrCodeTokenizerFailed,
			fmt.Sprintf("failed to load BPE encoding %q", encoding), err).
			WithSuggestion("set TIKTOKEN_CACHE_DIR to a directory holding the encoding file when offline")
	}
	return &BPETokenizer{enc: enc, encoding: encoding}, nil
}

// Encode returns BPE ids for text. Special tokens are treated as plain text.
func (t *BPETokenizer) Encode(text string) ([]int, error) {
	return t.enc.Encode(text, nil, nil), nil
}

// Decode returns the text for ids, trimmed of surrounding whitespace.
func (t *BPETokenizer) Decode(ids []int) (string, error) {
	return strings.TrimSpace(t.enc.Decode(ids)), nil
}

// Name returns "bpe:<encoding>".
func (t *BPETokenizer) Name() string { return "bpe:" + t.encoding }

var _ Tokenizer = (*BPETokenizer)(nil)
