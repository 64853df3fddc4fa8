package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/ragpipe/internal/search"
)

// SearchFunc runs one query. The screen calls it off the UI goroutine.
type SearchFunc func(ctx context.Context, query string) ([]search.Result, error)

// SearchConfig configures the search screen.
type SearchConfig struct {
	// Header is shown above the prompt, e.g. index statistics.
	Header string

	// SnippetRunes bounds the text shown per result.
	SnippetRunes int

	NoColor bool
	Input   io.Reader
	Output  io.Writer
}

// RunSearch runs the interactive search loop until the user quits.
func RunSearch(ctx context.Context, fn SearchFunc, cfg SearchConfig) error {
	m := newSearchModel(ctx, fn, cfg)

	var opts []tea.ProgramOption
	if cfg.Input != nil {
		opts = append(opts, tea.WithInput(cfg.Input))
	}
	if cfg.Output != nil {
		opts = append(opts, tea.WithOutput(cfg.Output))
	}
	opts = append(opts, tea.WithAltScreen(), tea.WithContext(ctx))

	_, err := tea.NewProgram(m, opts...).Run()
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

type searchState int

const (
	stateIdle searchState = iota
	stateSearching
	stateDone
	stateFailed
)

type resultsMsg struct {
	query   string
	results []search.Result
	elapsed time.Duration
	err     error
}

// searchModel is the bubbletea model for the search screen.
type searchModel struct {
	ctx     context.Context
	search  SearchFunc
	header  string
	snippet int
	styles  Styles
	spinner spinner.Model

	input   []rune
	state   searchState
	query   string
	results []search.Result
	elapsed time.Duration
	err     error
	width   int
}

func newSearchModel(ctx context.Context, fn SearchFunc, cfg SearchConfig) *searchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime))

	snippet := cfg.SnippetRunes
	if snippet <= 0 {
		snippet = 200
	}

	return &searchModel{
		ctx:     ctx,
		search:  fn,
		header:  cfg.Header,
		snippet: snippet,
		styles:  GetStyles(cfg.NoColor || DetectNoColor()),
		spinner: s,
		width:   80,
	}
}

// Init implements tea.Model.
func (m *searchModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *searchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case resultsMsg:
		if msg.query != m.query {
			return m, nil // stale reply for an earlier query
		}
		m.results = msg.results
		m.elapsed = msg.elapsed
		m.err = msg.err
		m.state = stateDone
		if msg.err != nil {
			m.state = stateFailed
		}

	case spinner.TickMsg:
		if m.state != stateSearching {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *searchModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit

	case tea.KeyEnter:
		query := strings.TrimSpace(string(m.input))
		if query == "" || m.state == stateSearching {
			return m, nil
		}
		m.query = query
		m.state = stateSearching
		return m, tea.Batch(m.spinner.Tick, m.runSearch(query))

	case tea.KeyBackspace:
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}

	case tea.KeyCtrlU:
		m.input = m.input[:0]

	case tea.KeySpace:
		m.input = append(m.input, ' ')

	case tea.KeyRunes:
		m.input = append(m.input, msg.Runes...)
	}
	return m, nil
}

func (m *searchModel) runSearch(query string) tea.Cmd {
	ctx := m.ctx
	fn := m.search
	return func() tea.Msg {
		start := time.Now()
		results, err := fn(ctx, query)
		return resultsMsg{query: query, results: results, elapsed: time.Since(start), err: err}
	}
}

// View implements tea.Model.
func (m *searchModel) View() string {
	var sb strings.Builder

	sb.WriteString(m.styles.Title.Render("ragpipe search"))
	if m.header != "" {
		sb.WriteString("  ")
		sb.WriteString(m.styles.Dim.Render(m.header))
	}
	sb.WriteString("\n\n")

	sb.WriteString(m.styles.Prompt.Render("> "))
	sb.WriteString(m.styles.Input.Render(string(m.input)))
	sb.WriteString(m.styles.Dim.Render("█"))
	sb.WriteString("\n\n")

	switch m.state {
	case stateIdle:
		sb.WriteString(m.styles.Dim.Render("Type a query and press enter."))
	case stateSearching:
		sb.WriteString(m.spinner.View())
		sb.WriteString(" searching for ")
		sb.WriteString(fmt.Sprintf("%q", m.query))
	case stateFailed:
		sb.WriteString(m.styles.Error.Render("Error: " + m.err.Error()))
	case stateDone:
		sb.WriteString(m.renderResults())
	}

	sb.WriteString("\n\n")
	sb.WriteString(m.styles.Dim.Render("enter: search  ctrl+u: clear  esc: quit"))
	return sb.String()
}

func (m *searchModel) renderResults() string {
	if len(m.results) == 0 {
		return m.styles.Warning.Render(fmt.Sprintf("No results for %q", m.query))
	}

	width := m.width - 4
	if width < 20 {
		width = 20
	}

	var sb strings.Builder
	sb.WriteString(m.styles.Dim.Render(fmt.Sprintf("%d results for %q in %s",
		len(m.results), m.query, m.elapsed.Round(time.Millisecond))))
	sb.WriteString("\n")

	for _, r := range m.results {
		head := fmt.Sprintf("%s %s %s",
			m.styles.Rank.Render(fmt.Sprintf("#%d", r.Rank)),
			m.styles.Score.Render(fmt.Sprintf("%.4f", r.Score)),
			m.styles.Source.Render(r.Chunk.Metadata.Source))
		body := m.styles.Snippet.Render(strings.ReplaceAll(r.Snippet(m.snippet), "\n", " "))
		sb.WriteString(m.styles.Panel.Width(width).Render(head + "\n" + body))
		sb.WriteString("\n")
	}
	return sb.String()
}
