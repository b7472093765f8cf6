// Command luma-admin is a terminal dashboard over a running Luma storage
// engine instance, grounded on the teacher's cmd/tui (bubbletea model/
// update/view loop, bubbles/table for tabular views, lipgloss styling,
// tab/shift-tab view switching) generalized from graph dashboards/query
// views to collection and shard-routing views.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lumadb/luma/pkg/engine"
	"github.com/lumadb/luma/pkg/lsm"
	"github.com/lumadb/luma/pkg/shard"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF")).
			MarginLeft(2).
			MarginTop(1)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#FF00FF")).
			Padding(0, 2)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#666666")).
				Padding(0, 2)

	statsBoxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FF00")).
			Padding(1, 2).
			MarginLeft(2)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1).
			MarginLeft(2)
)

type view int

const (
	dashboardView view = iota
	collectionsView
	shardsView
)

const numViews = 3

type keyMap struct {
	Tab      key.Binding
	ShiftTab key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	Tab:      key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next view")),
	ShiftTab: key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "prev view")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

func (k keyMap) ShortHelp() []key.Binding { return []key.Binding{k.Tab, k.Quit} }
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Tab, k.ShiftTab, k.Quit}}
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type model struct {
	eng         *engine.Engine
	shardEng    *shard.Engine
	currentView view
	collTable   table.Model
	shardTable  table.Model
	help        help.Model
	keys        keyMap
	startTime   time.Time
	width       int
}

func initialModel(eng *engine.Engine, shardEng *shard.Engine) model {
	collCols := []table.Column{
		{Title: "Collection", Width: 24},
		{Title: "Count", Width: 10},
	}
	collTable := table.New(table.WithColumns(collCols), table.WithFocused(false), table.WithHeight(12))

	shardCols := []table.Column{
		{Title: "Shard", Width: 8},
		{Title: "Leader", Width: 16},
		{Title: "Replicas", Width: 24},
		{Title: "Status", Width: 12},
	}
	shardTable := table.New(table.WithColumns(shardCols), table.WithFocused(false), table.WithHeight(12))

	return model{
		eng:        eng,
		shardEng:   shardEng,
		collTable:  collTable,
		shardTable: shardTable,
		help:       help.New(),
		keys:       keys,
		startTime:  time.Now(),
	}
}

func (m model) Init() tea.Cmd {
	return tickCmd()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case tickMsg:
		m.refresh()
		return m, tickCmd()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Tab):
			m.currentView = (m.currentView + 1) % numViews
		case key.Matches(msg, m.keys.ShiftTab):
			if m.currentView == 0 {
				m.currentView = numViews - 1
			} else {
				m.currentView--
			}
		}
	}
	return m, nil
}

func (m *model) refresh() {
	var rows []table.Row
	for _, name := range m.eng.ListCollections() {
		count, _ := m.eng.Count(name)
		rows = append(rows, table.Row{name, fmt.Sprintf("%d", count)})
	}
	m.collTable.SetRows(rows)

	var shardRows []table.Row
	for id := uint32(0); id < m.shardEng.Stats().TotalShards; id++ {
		if s, ok := m.shardEng.ShardByID(id); ok {
			shardRows = append(shardRows, table.Row{
				fmt.Sprintf("%d", s.ID), s.Leader, fmt.Sprintf("%v", s.Replicas), statusName(s.Status),
			})
		}
	}
	m.shardTable.SetRows(shardRows)
}

func statusName(s shard.Status) string {
	switch s {
	case shard.StatusActive:
		return "active"
	case shard.StatusRebalancing:
		return "rebalancing"
	case shard.StatusSplitting:
		return "splitting"
	case shard.StatusRecovering:
		return "recovering"
	default:
		return "unknown"
	}
}

func (m model) View() string {
	tabs := []string{"Dashboard", "Collections", "Shards"}
	var tabBar string
	for i, t := range tabs {
		if view(i) == m.currentView {
			tabBar += activeTabStyle.Render(t)
		} else {
			tabBar += inactiveTabStyle.Render(t)
		}
	}

	title := titleStyle.Render("luma-admin")
	var body string
	switch m.currentView {
	case dashboardView:
		stats := m.shardEng.Stats()
		body = statsBoxStyle.Render(fmt.Sprintf(
			"uptime: %s\ncollections: %d\nshards: %d (active %d)\nnodes: %d",
			time.Since(m.startTime).Round(time.Second),
			len(m.eng.ListCollections()),
			stats.TotalShards, stats.ActiveShards, stats.TotalNodes,
		))
	case collectionsView:
		body = m.collTable.View()
	case shardsView:
		body = m.shardTable.View()
	}

	helpView := helpStyle.Render(m.help.View(m.keys))
	return fmt.Sprintf("%s\n\n%s\n\n%s\n%s\n", title, tabBar, body, helpView)
}

func main() {
	dataDir := flag.String("data", "./data/luma-admin", "storage data directory")
	numShards := flag.Uint("shards", 16, "number of routing shards")
	flag.Parse()

	eng, err := engine.Open(engine.Options{LSM: lsm.Options{DataDir: *dataDir}, NumShards: uint32(*numShards)})
	if err != nil {
		log.Fatalf("failed to open engine: %v", err)
	}
	defer eng.Close()

	shardEng := shard.New(shard.Config{NumShards: uint32(*numShards)})

	m := initialModel(eng, shardEng)
	m.refresh()
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		log.Fatalf("tui error: %v", err)
	}
}
