// Package chunk splits text into overlapping fixed-width token windows.
package chunk

import (
	"fmt"
	"math"

	ragerrors "github.com/Aman-CERP/ragpipe/internal/errors"
	"github.com/Aman-CERP/ragpipe/internal/tokenize"
)

// Chunking defaults.
const (
	DefaultChunkSize = 192
	DefaultOverlap   = 0.85
)

// strideEpsilon absorbs binary rounding in size*(1-overlap), so that
// 10*(1-0.9) floors to 1 rather than 0.
const strideEpsilon = 1e-9

// Stride returns floor(size*(1-overlap)).
func Stride(size int, overlap float64) int {
	return int(math.Floor(float64(size)*(1-overlap) + strideEpsilon))
}

// Window is a half-open token range [Start, End).
type Window struct {
	Start int
	End   int
}

// Len returns the number of tokens in the window.
func (w Window) Len() int { return w.End - w.Start }

// WindowChunker splits text into overlapping windows of Size tokens that
// advance by Stride tokens.
type WindowChunker struct {
	tokenizer tokenize.Tokenizer
	size      int
	overlap   float64
	stride    int
}

// NewWindowChunker validates the window geometry.
// A stride below 1 would never advance and is rejected.
func NewWindowChunker(tok tokenize.Tokenizer, size int, overlap float64) (*WindowChunker, error) {
	if tok == nil {
		return nil, ragerrors.ConfigError("chunker requires a tokenizer", nil)
	}
	if size < 1 {
		return nil, ragerrors.New(ragerrors.ErrCodeInvalidChunking,
			fmt.Sprintf("chunk size must be at least 1, got %d", size), nil)
	}
	if overlap < 0 || overlap >= 1 || math.IsNaN(overlap) {
		return nil, ragerrors.New(ragerrors.ErrCodeInvalidChunking,
			fmt.Sprintf("overlap fraction must be in [0, 1), got %g", overlap), nil)
	}
	stride := Stride(size, overlap)
	if stride < 1 {
		return nil, ragerrors.New(ragerrors.ErrCodeInvalidChunking,
			fmt.Sprintf("chunk size %d with overlap %g gives stride %d", size, overlap, stride), nil).
			WithDetail("size", fmt.Sprint(size)).
			WithDetail("overlap", fmt.Sprint(overlap)).
			WithSuggestion("lower the overlap fraction or raise the chunk size")
	}

	return &WindowChunker{
		tokenizer: tok,
		size:      size,
		overlap:   overlap,
		stride:    stride,
	}, nil
}

// Size returns the window width in tokens.
func (c *WindowChunker) Size() int { return c.size }

// Stride returns the window advance in tokens.
func (c *WindowChunker) Stride() int { return c.stride }

// Overlap returns the configured overlap fraction.
func (c *WindowChunker) Overlap() float64 { return c.overlap }

// TokenizerName identifies the tokenizer.
func (c *WindowChunker) TokenizerName() string { return c.tokenizer.Name() }

// Windows returns the token windows for a stream of n tokens.
// The last window is clipped to n and always ends at n.
func (c *WindowChunker) Windows(n int) []Window {
	if n <= 0 {
		return nil
	}

	windows := make([]Window, 0, windowCount(n, c.size, c.stride))
	for offset := 0; ; offset += c.stride {
		windows = append(windows, Window{Start: offset, End: min(offset+c.size, n)})
		if offset+c.size >= n {
			break
		}
	}
	return windows
}

// Spans tokenizes text and returns its windows.
func (c *WindowChunker) Spans(text string) ([]Window, error) {
	ids, err := c.tokenizer.Encode(text)
	if err != nil {
		return nil, ragerrors.New(ragerrors.ErrCodeTokenizerFailed, "failed to tokenize text", err)
	}
	return c.Windows(len(ids)), nil
}

// Chunk splits text into decoded window texts, in order.
// Empty text yields no chunks; text of at most Size tokens yields one.
func (c *WindowChunker) Chunk(text string) ([]string, error) {
	ids, err := c.tokenizer.Encode(text)
	if err != nil {
		return nil, ragerrors.New(ragerrors.ErrCodeTokenizerFailed, "failed to tokenize text", err)
	}

	windows := c.Windows(len(ids))
	chunks := make([]string, 0, len(windows))
	for _, w := range windows {
		decoded, err := c.tokenizer.Decode(ids[w.Start:w.End])
		if err != nil {
			return nil, ragerrors.New(ragerrors.ErrCodeTokenizerFailed,
				fmt.Sprintf("failed to decode window [%d, %d)", w.Start, w.End), err)
		}
		chunks = append(chunks, decoded)
	}
	return chunks, nil
}

// windowCount is ceil((n-size)/stride)+1 for n > size, else 1.
func windowCount(n, size, stride int) int {
	if n <= size {
		return 1
	}
	return (n-size+stride-1)/stride + 1
}
