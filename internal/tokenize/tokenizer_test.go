package tokenize

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragerrors "github.com/Aman-CERP/ragpipe/internal/errors"
)

func TestWordTokenizer_RoundTrip(t *testing.T) {
	tests := []string{
		"Iron Man fights villains in a metal suit.",
		"Bananas are a popular tropical fruit eaten by monkeys.",
		"  leading and trailing  ",
		"Tabs\tand\nnewlines survive, don't they?",
		"naïve café, résumé",
	}

	tok := NewWordTokenizer()
	for _, text := range tests {
		t.Run(text, func(t *testing.T) {
			ids, err := tok.Encode(text)
			require.NoError(t, err)

			got, err := tok.Decode(ids)
			require.NoError(t, err)
			assert.Equal(t, strings.TrimSpace(text), got)
		})
	}
}

func TestWordTokenizer_Pieces(t *testing.T) {
	// Given: a sentence with punctuation
	tok := NewWordTokenizer()

	// When: encoding
	ids, err := tok.Encode("Iron Man, again.")
	require.NoError(t, err)

	// Then: words and symbols are separate tokens
	assert.Len(t, ids, 5) // Iron, " Man", ",", " again", "."
}

func TestWordTokenizer_SubsequenceDecode(t *testing.T) {
	tok := NewWordTokenizer()
	ids, err := tok.Encode("one two three four")
	require.NoError(t, err)

	got, err := tok.Decode(ids[1:3])

	require.NoError(t, err)
	assert.Equal(t, "two three", got)
}

func TestWordTokenizer_StableIDs(t *testing.T) {
	tok := NewWordTokenizer()
	a, _ := tok.Encode("metal suit")
	b, _ := tok.Encode("metal suit")

	assert.Equal(t, a, b)
	assert.Equal(t, 2, tok.VocabSize())
}

func TestWordTokenizer_Empty(t *testing.T) {
	tok := NewWordTokenizer()

	ids, err := tok.Encode("   \n\t ")

	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestWordTokenizer_UnknownID(t *testing.T) {
	tok := NewWordTokenizer()

	_, err := tok.Decode([]int{42})

	require.Error(t, err)
	assert.Equal(t, ragerrors.ErrCodeTokenizerFailed, ragerrors.GetCode(err))
}

func TestWordTokenizer_ConcurrentEncode(t *testing.T) {
	tok := NewWordTokenizer()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids, err := tok.Encode("the same sentence every time")
			assert.NoError(t, err)
			got, err := tok.Decode(ids)
			assert.NoError(t, err)
			assert.Equal(t, "the same sentence every time", got)
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, tok.VocabSize())
}

func TestNew_Kinds(t *testing.T) {
	tok, err := New("word", "")
	require.NoError(t, err)
	assert.Equal(t, "word", tok.Name())

	_, err = New("sentencepiece", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ragerrors.New(ragerrors.ErrCodeConfigInvalid, "", nil)))
}

func TestTerms(t *testing.T) {
	got := Terms("Iron Man fights villains in a metal suit.")

	assert.Equal(t, []string{"iron", "man", "fights", "villains", "metal", "suit"}, got)
	assert.True(t, IsStopWord("The"))
	assert.False(t, IsStopWord("banana"))
}
