package mcp

import (
	"fmt"
	"strings"
	"time"

	"github.com/Aman-CERP/ragpipe/internal/search"
)

// snippetRunes bounds the text shown per result in markdown output.
const snippetRunes = 600

// FormatSearchResults renders results as markdown for the tool's text content.
func FormatSearchResults(query string, results []search.Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(results))
	if len(results) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for _, r := range results {
		if r.Chunk == nil {
			continue
		}
		fmt.Fprintf(&sb, "### %d. %s (chunk %d)\n", r.Rank, r.Chunk.Metadata.Source, r.Chunk.Metadata.ChunkIndex)
		fmt.Fprintf(&sb, "score: %.4f, dense: %.4f\n\n", r.Score, r.DenseScore)
		snippet := r.Snippet(snippetRunes)
		for _, line := range strings.Split(snippet, "\n") {
			sb.WriteString("> ")
			sb.WriteString(line)
			sb.WriteString("\n")
		}
		if len(snippet) < len(r.Chunk.Text) {
			sb.WriteString("> ...\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatIngest summarizes an ingestion for the tool's text content.
func FormatIngest(stats search.IngestStats, total int) string {
	return fmt.Sprintf("Added %d document(s) as %d chunk(s) in %s. The index now holds %d chunk(s).",
		stats.Documents, stats.Chunks, stats.Duration.Round(time.Millisecond), total)
}
