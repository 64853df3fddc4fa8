// Package output formats CLI results and status lines.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Aman-CERP/ragpipe/internal/search"
	"github.com/Aman-CERP/ragpipe/internal/ui"
)

// DefaultSnippetRunes is how much chunk text a printed result shows.
const DefaultSnippetRunes = 200

// Writer provides formatted output for the CLI.
type Writer struct {
	out      io.Writer
	useColor bool
	styles   ui.Styles
}

// New creates a Writer, enabling color when out is a terminal and
// NO_COLOR is unset.
func New(out io.Writer) *Writer {
	return NewWithColor(out, ui.UseColor(out))
}

// NewWithColor creates a Writer with explicit color choice.
func NewWithColor(out io.Writer, useColor bool) *Writer {
	return &Writer{
		out:      out,
		useColor: useColor,
		styles:   ui.GetStyles(!useColor),
	}
}

// Status prints a status message with an icon.
// Errors from writing are ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (w *Writer) Success(msg string) {
	w.Status(w.styles.Score.Render("✓"), msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status(w.styles.Warning.Render("!"), msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status(w.styles.Error.Render("✗"), msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Results prints ranked results as "Score: x" followed by a text excerpt.
func (w *Writer) Results(query string, results []search.Result, snippetRunes int) {
	if snippetRunes <= 0 {
		snippetRunes = DefaultSnippetRunes
	}
	if len(results) == 0 {
		w.Warningf("No results for %q", query)
		return
	}

	for i, r := range results {
		if i > 0 {
			w.Newline()
		}
		head := fmt.Sprintf("%s Score: %s",
			w.styles.Rank.Render(fmt.Sprintf("[%d]", r.Rank)),
			w.styles.Score.Render(fmt.Sprintf("%.4f", r.Score)))
		if src := r.Chunk.Metadata.Source; src != "" {
			head += "  " + w.styles.Source.Render(src)
		}
		_, _ = fmt.Fprintln(w.out, head)
		_, _ = fmt.Fprintln(w.out, w.styles.Snippet.Render(r.Snippet(snippetRunes)))
	}
}

// Stats prints engine statistics as aligned key/value lines.
func (w *Writer) Stats(s search.EngineStats) {
	rows := [][2]string{
		{"Chunks", fmt.Sprintf("%d", s.Chunks)},
		{"Documents", fmt.Sprintf("%d", s.Documents)},
		{"Dimensions", fmt.Sprintf("%d", s.Dimensions)},
		{"Document model", s.DocumentModel},
		{"Query model", s.QueryModel},
		{"Reranker", s.Reranker},
		{"Tokenizer", s.Tokenizer},
		{"Chunk size", fmt.Sprintf("%d tokens, stride %d", s.ChunkSize, s.ChunkStride)},
	}
	w.table(rows)
}

// Ingest prints the summary of an ingest call.
func (w *Writer) Ingest(stats search.IngestStats) {
	w.Successf("Ingested %d document(s) as %d chunk(s) in %s",
		stats.Documents, stats.Chunks, stats.Duration.Round(time.Millisecond))
}

// KeyValues prints rows as an aligned two-column table.
func (w *Writer) KeyValues(rows [][2]string) {
	w.table(rows)
}

func (w *Writer) table(rows [][2]string) {
	width := 0
	for _, r := range rows {
		width = max(width, len(r[0]))
	}
	for _, r := range rows {
		key := w.styles.Source.Render(r[0] + ":" + strings.Repeat(" ", width-len(r[0])))
		_, _ = fmt.Fprintf(w.out, "  %s %s\n", key, r[1])
	}
}

// Panel prints body inside a bordered box titled title.
func (w *Writer) Panel(title, body string) {
	content := w.styles.Title.Render(title) + "\n" + body
	_, _ = fmt.Fprintln(w.out, w.styles.Panel.Render(content))
}

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// UseColor reports whether this writer emits styled text.
func (w *Writer) UseColor() bool {
	return w.useColor
}
