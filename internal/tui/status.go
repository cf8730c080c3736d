// Package tui is the optional interactive status view: a bubbletea
// dashboard that polls a running proxy's Observability HTTP API and
// renders upstream connection/health/quality in place, for an operator
// watching a terminal instead of scraping /api/servers/status by hand.
package tui

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

// PollInterval is how often the dashboard re-fetches server status.
const PollInterval = 2 * time.Second

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	downStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

type serverRow struct {
	Name         string   `json:"name"`
	Connected    bool     `json:"connected"`
	Healthy      bool     `json:"healthy"`
	Priority     int      `json:"priority"`
	Capabilities []string `json:"capabilities"`
	LastError    string   `json:"lastError,omitempty"`
}

// Model is the bubbletea model backing the status view. The table bubble
// owns cursor/selection state; Model just keeps it fed with fresh rows.
type Model struct {
	baseURL string
	client  *http.Client
	table   table.Model
	err     error
}

// New builds a Model that polls baseURL (the Observability HTTP API's
// listen address, e.g. "http://localhost:19841").
func New(baseURL string) Model {
	columns := []table.Column{
		{Title: "Upstream", Width: 20},
		{Title: "Connected", Width: 10},
		{Title: "Healthy", Width: 8},
		{Title: "Priority", Width: 8},
		{Title: "Capabilities", Width: 30},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("240")).BorderBottom(true).Bold(false)
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57")).Bold(false)
	t.SetStyles(styles)

	return Model{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		table:   t,
	}
}

type tickMsg time.Time
type rowsMsg struct {
	rows []serverRow
	err  error
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(PollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) fetch() tea.Cmd {
	return func() tea.Msg {
		resp, err := m.client.Get(m.baseURL + "/api/servers/status")
		if err != nil {
			return rowsMsg{err: err}
		}
		defer resp.Body.Close()

		var rows []serverRow
		if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
			return rowsMsg{err: err}
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
		return rowsMsg{rows: rows}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tickMsg:
		return m, tea.Batch(m.fetch(), tick())
	case rowsMsg:
		m.err = msg.err
		if msg.err == nil {
			m.table.SetRows(toTableRows(msg.rows))
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func toTableRows(rows []serverRow) []table.Row {
	out := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, table.Row{
			r.Name,
			yesNo(r.Connected),
			yesNo(r.Healthy),
			strconv.Itoa(r.Priority),
			fmt.Sprintf("%v", r.Capabilities),
		})
	}
	return out
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func (m Model) View() string {
	if m.err != nil {
		return fmt.Sprintf("%s\n\n%s\n\npress q to quit\n", headerStyle.Render("meridian status"), downStyle.Render(m.err.Error()))
	}
	return headerStyle.Render("meridian status") + "\n\n" + m.table.View() + "\n\n" + dimStyle.Render("press q to quit") + "\n"
}
