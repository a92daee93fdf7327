package confirm

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	messageStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).PaddingLeft(2)
	statAddStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	statModStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	statDelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	cursorStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	choiceStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	containerStyle = lipgloss.NewStyle().Padding(1, 2)
)

type summaryKeymap struct {
	Accept  key.Binding
	Decline key.Binding
	Quit    key.Binding
}

var summaryKeys = summaryKeymap{
	Accept:  key.NewBinding(key.WithKeys("y", "Y", "enter"), key.WithHelp("y", "commit")),
	Decline: key.NewBinding(key.WithKeys("n", "N"), key.WithHelp("n", "skip")),
	Quit:    key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "cancel")),
}

// summaryModel shows one pending commit and waits for accept or decline.
type summaryModel struct {
	summary  CommitSummary
	accepted bool
	decided  bool
}

func newSummaryModel(summary CommitSummary) summaryModel {
	return summaryModel{summary: summary}
}

func (m summaryModel) Init() tea.Cmd {
	return nil
}

func (m summaryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(keyMsg, summaryKeys.Accept):
		m.accepted = true
		m.decided = true
		return m, tea.Quit
	case key.Matches(keyMsg, summaryKeys.Decline), key.Matches(keyMsg, summaryKeys.Quit):
		m.decided = true
		return m, tea.Quit
	}
	return m, nil
}

func (m summaryModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Commit ready"))
	b.WriteString("\n\n")
	b.WriteString(messageStyle.Render(m.summary.Message))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("  %s  %s  %s\n\n",
		statAddStyle.Render(fmt.Sprintf("+%d added", m.summary.FilesAdded)),
		statModStyle.Render(fmt.Sprintf("~%d modified", m.summary.FilesModified)),
		statDelStyle.Render(fmt.Sprintf("-%d deleted", m.summary.FilesDeleted))))
	b.WriteString(dimStyle.Render("y: commit • n: skip • q: cancel"))
	return containerStyle.Render(b.String())
}

type consentKeymap struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Quit   key.Binding
}

var consentKeys = consentKeymap{
	Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Select: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
	Quit:   key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "cancel")),
}

type consentOption struct {
	choice ConsentChoice
	label  string
}

var consentOptions = []consentOption{
	{ConsentEnable, "Enable automatic commits"},
	{ConsentDisableNow, "Not now (ask again later)"},
	{ConsentDisableAlways, "Never (disable permanently)"},
	{ConsentCancel, "Cancel"},
}

// consentModel is the first-run menu explaining the automation and asking
// for an explicit opt-in.
type consentModel struct {
	cursor int
	choice ConsentChoice
}

func newConsentModel() consentModel {
	return consentModel{choice: ConsentCancel}
}

func (m consentModel) Init() tea.Cmd {
	return nil
}

func (m consentModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(keyMsg, consentKeys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(keyMsg, consentKeys.Down):
		if m.cursor < len(consentOptions)-1 {
			m.cursor++
		}
	case key.Matches(keyMsg, consentKeys.Select):
		m.choice = consentOptions[m.cursor].choice
		return m, tea.Quit
	case key.Matches(keyMsg, consentKeys.Quit):
		m.choice = ConsentCancel
		return m, tea.Quit
	}
	return m, nil
}

func (m consentModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Automatic git commits"))
	b.WriteString("\n\n")
	b.WriteString(choiceStyle.Render("commitd can commit completed tasks for you with generated messages."))
	b.WriteString("\n")
	b.WriteString(choiceStyle.Render("Nothing is pushed; every commit stays local until you push it."))
	b.WriteString("\n\n")
	for i, opt := range consentOptions {
		if i == m.cursor {
			b.WriteString(cursorStyle.Render("> " + opt.label))
		} else {
			b.WriteString(choiceStyle.Render("  " + opt.label))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("↑/↓: navigate • enter: select • q: cancel"))
	return containerStyle.Render(b.String())
}

// TUI is the interactive Confirmer backed by terminal prompts.
type TUI struct{}

func (TUI) ConfirmCommit(ctx context.Context, summary CommitSummary) (bool, error) {
	program := tea.NewProgram(newSummaryModel(summary), tea.WithContext(ctx))
	final, err := program.Run()
	if err != nil {
		return false, fmt.Errorf("confirmation prompt: %w", err)
	}
	model, ok := final.(summaryModel)
	if !ok {
		return false, fmt.Errorf("unexpected prompt model %T", final)
	}
	return model.decided && model.accepted, nil
}

func (TUI) FirstRunConsent(ctx context.Context) (ConsentChoice, error) {
	program := tea.NewProgram(newConsentModel(), tea.WithContext(ctx))
	final, err := program.Run()
	if err != nil {
		return ConsentCancel, fmt.Errorf("consent prompt: %w", err)
	}
	model, ok := final.(consentModel)
	if !ok {
		return ConsentCancel, fmt.Errorf("unexpected prompt model %T", final)
	}
	return model.choice, nil
}

// NewConfirmer picks the interactive prompt when a terminal is available and
// the safe declining fallback otherwise.
func NewConfirmer() Confirmer {
	if IsCI() {
		return Declining{}
	}
	return TUI{}
}
