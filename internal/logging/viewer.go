package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"
)

// LogEntry is one parsed JSON log line.
type LogEntry struct {
	Time    time.Time
	Level   string
	Msg     string
	Attrs   map[string]any
	Raw     string
	IsValid bool
}

// ParseEntry parses a slog JSON line. Lines that are not JSON are kept raw.
func ParseEntry(line string) LogEntry {
	entry := LogEntry{Raw: line}

	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return entry
	}

	entry.IsValid = true
	if ts, ok := fields["time"].(string); ok {
		entry.Time, _ = time.Parse(time.RFC3339Nano, ts)
	}
	entry.Level, _ = fields["level"].(string)
	entry.Msg, _ = fields["msg"].(string)
	delete(fields, "time")
	delete(fields, "level")
	delete(fields, "msg")
	entry.Attrs = fields

	return entry
}

// ViewerConfig filters what the viewer prints.
type ViewerConfig struct {
	Level   string
	Pattern *regexp.Regexp
}

// Viewer prints filtered log entries.
type Viewer struct {
	config   ViewerConfig
	minLevel slog.Level
	out      io.Writer
}

// NewViewer creates a viewer writing to out.
func NewViewer(cfg ViewerConfig, out io.Writer) *Viewer {
	min := slog.LevelDebug
	if cfg.Level != "" {
		min = parseLevel(cfg.Level)
	}
	return &Viewer{config: cfg, minLevel: min, out: out}
}

// Match reports whether the entry passes the level and pattern filters.
func (v *Viewer) Match(e LogEntry) bool {
	if e.IsValid && parseLevel(e.Level) < v.minLevel {
		return false
	}
	if v.config.Pattern != nil && !v.config.Pattern.MatchString(e.Raw) {
		return false
	}
	return true
}

// Format renders an entry as "15:04:05 LEVEL msg key=value ...".
func (v *Viewer) Format(e LogEntry) string {
	if !e.IsValid {
		return e.Raw
	}

	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var sb strings.Builder
	sb.WriteString(e.Time.Format("15:04:05"))
	sb.WriteString(" ")
	sb.WriteString(fmt.Sprintf("%-5s", e.Level))
	sb.WriteString(" ")
	sb.WriteString(e.Msg)
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf(" %s=%v", k, e.Attrs[k]))
	}
	return sb.String()
}

// Tail prints the last n matching lines of path. n <= 0 prints all of them.
func (v *Viewer) Tail(path string, n int) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		e := ParseEntry(scanner.Text())
		if !v.Match(e) {
			continue
		}
		lines = append(lines, v.Format(e))
		if n > 0 && len(lines) > n {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read log file: %w", err)
	}

	for _, line := range lines {
		_, _ = fmt.Fprintln(v.out, line)
	}
	return nil
}

// Follow prints matching lines appended to path until ctx is cancelled.
func (v *Viewer) Follow(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek log file: %w", err)
	}

	reader := bufio.NewReader(f)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	var partial string
	for {
		line, err := reader.ReadString('\n')
		if err == nil {
			e := ParseEntry(strings.TrimRight(partial+line, "\n"))
			partial = ""
			if v.Match(e) {
				_, _ = fmt.Fprintln(v.out, v.Format(e))
			}
			continue
		}
		if err != io.EOF {
			return fmt.Errorf("failed to read log file: %w", err)
		}
		partial += line

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
