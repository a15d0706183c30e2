package cmd

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	cliapi "subscription-tracker/internal/cli"
	"subscription-tracker/internal/database"
)

// KeyMap represents the key bindings for the interactive table
type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Refresh key.Binding
	Details key.Binding
	Help    key.Binding
	Quit    key.Binding
}

// DefaultKeyMap returns the default key bindings
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Details: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "details"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// InteractiveTable is the bubbletea model for browsing a subscription
// ledger.
type InteractiveTable struct {
	table         table.Model
	subscriptions []database.Subscription
	userID        string
	client        *cliapi.Client
	formatter     *cliapi.OutputFormatter
	config        *cliapi.Config
	keys          KeyMap
	spinner       spinner.Model
	loading       bool
	err           error
	message       string
	showHelp      bool
	showDetails   bool
	quitting      bool
	useColor      bool
}

// refreshedMsg carries a reloaded ledger back into the update loop
type refreshedMsg struct {
	subscriptions []database.Subscription
	err           error
}

// NewInteractiveTable creates a new interactive subscription table
func NewInteractiveTable(subscriptions []database.Subscription, userID string, client *cliapi.Client, formatter *cliapi.OutputFormatter, config *cliapi.Config) (*InteractiveTable, error) {
	columns := []table.Column{
		{Title: "Service", Width: 25},
		{Title: "Amount", Width: 12},
		{Title: "Cycle", Width: 10},
		{Title: "Status", Width: 10},
		{Title: "Confidence", Width: 10},
		{Title: "Detected", Width: 12},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(subscriptionRows(subscriptions)),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	useColor := !formatter.NoColor()
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	if useColor {
		styles.Selected = styles.Selected.
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57")).
			Bold(false)
	}
	t.SetStyles(styles)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))

	return &InteractiveTable{
		table:         t,
		subscriptions: subscriptions,
		userID:        userID,
		client:        client,
		formatter:     formatter,
		config:        config,
		keys:          DefaultKeyMap(),
		spinner:       s,
		useColor:      useColor,
	}, nil
}

// Run starts the interactive table program
func (m *InteractiveTable) Run() error {
	_, err := tea.NewProgram(m).Run()
	return err
}

func (m *InteractiveTable) Init() tea.Cmd {
	return nil
}

func (m *InteractiveTable) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			return m, nil

		case key.Matches(msg, m.keys.Details):
			if len(m.subscriptions) > 0 {
				m.showDetails = !m.showDetails
			}
			return m, nil

		case key.Matches(msg, m.keys.Refresh):
			if !m.loading {
				m.loading = true
				m.message = ""
				m.err = nil
				return m, tea.Batch(m.spinner.Tick, m.refresh())
			}
			return m, nil
		}

	case refreshedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.subscriptions = msg.subscriptions
		m.table.SetRows(subscriptionRows(msg.subscriptions))
		m.message = fmt.Sprintf("Refreshed: %d subscriptions", len(msg.subscriptions))
		return m, nil

	case spinner.TickMsg:
		if m.loading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *InteractiveTable) View() string {
	if m.quitting {
		return ""
	}

	var view string

	if m.loading {
		view += fmt.Sprintf("%s Refreshing...\n\n", m.spinner.View())
	}

	if m.showDetails {
		view += m.detailsView()
	} else {
		view += m.table.View() + "\n"
	}

	if m.err != nil {
		view += errorStyle(m.useColor).Render(fmt.Sprintf("Error: %v", m.err)) + "\n"
	}
	if m.message != "" {
		view += statusStyle(m.useColor).Render(m.message) + "\n"
	}

	if m.showHelp {
		view += "\n↑/k up · ↓/j down · enter details · r refresh · ? help · q quit\n"
	} else {
		view += "\nPress ? for help, q to quit\n"
	}

	return view
}

func (m *InteractiveTable) detailsView() string {
	cursor := m.table.Cursor()
	if cursor < 0 || cursor >= len(m.subscriptions) {
		return "No subscription selected\n"
	}

	sub := m.subscriptions[cursor]
	view := fmt.Sprintf("Service: %s\n", sub.ServiceName)
	view += fmt.Sprintf("Amount: %s %.2f / %s\n", sub.Currency, sub.Amount, sub.BillingCycle)
	view += fmt.Sprintf("Status: %s\n", sub.Status)
	view += fmt.Sprintf("Confidence: %.2f\n", sub.ConfidenceScore)
	view += fmt.Sprintf("First Detected: %s\n", sub.FirstDetected.Format("2006-01-02 15:04"))
	if sub.NextBillingDate != nil {
		view += fmt.Sprintf("Next Billing: %s\n", sub.NextBillingDate.Format("2006-01-02"))
	}
	if sub.Category != "" {
		view += fmt.Sprintf("Category: %s\n", sub.Category)
	}
	if sub.Notes != "" {
		view += fmt.Sprintf("Notes: %s\n", sub.Notes)
	}
	view += "\nPress enter to return to the table\n"
	return view
}

func (m *InteractiveTable) refresh() tea.Cmd {
	return func() tea.Msg {
		subs, err := m.client.GetSubscriptions(m.userID)
		return refreshedMsg{subscriptions: subs, err: err}
	}
}

func subscriptionRows(subs []database.Subscription) []table.Row {
	rows := make([]table.Row, len(subs))
	for i, s := range subs {
		rows[i] = table.Row{
			s.ServiceName,
			fmt.Sprintf("%s %.2f", s.Currency, s.Amount),
			s.BillingCycle,
			s.Status,
			fmt.Sprintf("%.2f", s.ConfidenceScore),
			s.FirstDetected.Format("2006-01-02"),
		}
	}
	return rows
}

func errorStyle(useColor bool) lipgloss.Style {
	if !useColor {
		return lipgloss.NewStyle()
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
}

func statusStyle(useColor bool) lipgloss.Style {
	if !useColor {
		return lipgloss.NewStyle()
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
}
