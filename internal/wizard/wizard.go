package wizard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// New creates a new login wizard model
func New(login LoginFunc, save SaveFunc, defaultURL string) Model {
	m := Model{
		state:  StateWelcome,
		login:  login,
		save:   save,
		url:    defaultURL,
		errors: make(map[string]string),
	}
	return m
}

// Init initializes the wizard (Bubble Tea Init)
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles state transitions (Bubble Tea Update)
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != StateDetails {
				return m, tea.Quit
			}
			return m.handleTextInput(msg)

		case "enter":
			return m.handleEnter()

		case "up", "down":
			return m.handleArrow(msg.String())

		case "tab", "shift+tab":
			return m.handleTab(msg.String())

		default:
			return m.handleTextInput(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case loginResultMsg:
		m.loggingIn = false
		if msg.err != nil {
			m.loginError = msg.err
			return m, nil
		}
		m.token = msg.token
		if err := m.save(m.url, m.serviceAccount, m.serviceKey, m.token); err != nil {
			m.err = err
			m.state = StateError
			return m, nil
		}
		m.state = StateDone
		return m, nil
	}

	return m, nil
}

// View renders the wizard UI (Bubble Tea View)
func (m Model) View() string {
	switch m.state {
	case StateWelcome:
		return m.renderWelcome()
	case StateDetails:
		return m.renderDetails()
	case StateLogin:
		return m.renderLogin()
	case StateDone:
		return m.renderDone()
	case StateError:
		return m.renderErrorView()
	default:
		return "Unknown state"
	}
}

// Result reports whether the wizard finished with saved credentials.
func (m Model) Result() Result {
	return Result{
		URL:            m.url,
		ServiceAccount: m.serviceAccount,
		LoggedIn:       m.state == StateDone,
	}
}

// State transition handlers

func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	switch m.state {
	case StateWelcome:
		m.state = StateDetails
		m.initializeInputs()
		return m, textinput.Blink

	case StateDetails:
		if err := m.collectInputValues(); err != nil {
			return m, nil
		}
		m.state = StateLogin
		m.loggingIn = true
		m.loginError = nil
		return m, m.attemptLogin()

	case StateLogin:
		if m.loggingIn || m.loginError == nil {
			return m, nil
		}
		switch m.retryChoice {
		case 0: // Retry
			m.loggingIn = true
			m.loginError = nil
			return m, m.attemptLogin()
		case 1: // Edit
			m.state = StateDetails
			m.loginError = nil
			m.retryChoice = 0
			return m, textinput.Blink
		case 2: // Quit
			return m, tea.Quit
		}
		return m, nil

	case StateDone, StateError:
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) handleArrow(key string) (tea.Model, tea.Cmd) {
	switch m.state {
	case StateDetails:
		if key == "up" && m.focusIndex > 0 {
			m.focusIndex--
			m.updateInputFocus()
		}
		if key == "down" && m.focusIndex < len(m.inputs)-1 {
			m.focusIndex++
			m.updateInputFocus()
		}
	case StateLogin:
		if m.loginError == nil {
			break
		}
		if key == "up" && m.retryChoice > 0 {
			m.retryChoice--
		}
		if key == "down" && m.retryChoice < 2 {
			m.retryChoice++
		}
	}
	return m, nil
}

func (m Model) handleTab(key string) (tea.Model, tea.Cmd) {
	if m.state == StateDetails && len(m.inputs) > 0 {
		if key == "shift+tab" {
			m.focusIndex = (m.focusIndex + len(m.inputs) - 1) % len(m.inputs)
		} else {
			m.focusIndex = (m.focusIndex + 1) % len(m.inputs)
		}
		m.updateInputFocus()
	}
	return m, nil
}

func (m Model) handleTextInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.state == StateDetails && len(m.inputs) > 0 {
		var cmd tea.Cmd
		m.inputs[m.focusIndex], cmd = m.inputs[m.focusIndex].Update(msg)
		return m, cmd
	}
	return m, nil
}

// Input management

func (m *Model) initializeInputs() {
	m.inputs = []textinput.Model{
		m.makeInput("Platform URL", m.url, false),
		m.makeInput("Service account", m.serviceAccount, false),
		m.makeInput("Service key", m.serviceKey, true),
	}
	m.focusIndex = 0
	m.inputs[0].Focus()
}

func (m *Model) makeInput(placeholder, value string, isPassword bool) textinput.Model {
	input := textinput.New()
	input.Placeholder = placeholder
	input.SetValue(value)
	if isPassword {
		input.EchoMode = textinput.EchoPassword
		input.EchoCharacter = '*'
	}
	return input
}

func (m *Model) updateInputFocus() {
	for i := range m.inputs {
		if i == m.focusIndex {
			m.inputs[i].Focus()
		} else {
			m.inputs[i].Blur()
		}
	}
}

func (m *Model) collectInputValues() error {
	if len(m.inputs) < 3 {
		return fmt.Errorf("not enough inputs")
	}
	m.url = strings.TrimSpace(m.inputs[0].Value())
	m.serviceAccount = strings.TrimSpace(m.inputs[1].Value())
	m.serviceKey = m.inputs[2].Value()

	m.errors = make(map[string]string)
	if err := ValidateURL(m.url); err != nil {
		m.errors["url"] = err.Error()
		return err
	}
	if err := ValidateServiceAccount(m.serviceAccount); err != nil {
		m.errors["account"] = err.Error()
		return err
	}
	if err := ValidateServiceKey(m.serviceKey); err != nil {
		m.errors["key"] = err.Error()
		return err
	}
	return nil
}

// Message types for async operations

type loginResultMsg struct {
	token string
	err   error
}

func (m Model) attemptLogin() tea.Cmd {
	url, account, key := m.url, m.serviceAccount, m.serviceKey
	login := m.login
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		token, err := login(ctx, url, account, key)
		return loginResultMsg{token: token, err: err}
	}
}

// View renderers

func (m Model) renderWelcome() string {
	var b strings.Builder

	b.WriteString(renderHeader("Shelltide Login"))
	b.WriteString("\n\n")
	b.WriteString("Let's connect Shelltide to your platform.\n\n")
	b.WriteString(renderInfo("You will need:\n" +
		"  • The platform URL\n" +
		"  • A service account email\n" +
		"  • Its service key"))
	b.WriteString("\n\n")
	b.WriteString(renderStatusBar("Press Enter to continue, q to quit"))

	return borderStyle.Render(b.String())
}

func (m Model) renderDetails() string {
	var b strings.Builder

	b.WriteString(renderHeader("Shelltide Login"))
	b.WriteString("\n\n")

	for i, input := range m.inputs {
		label := input.Placeholder
		if i == m.focusIndex {
			b.WriteString(selectedStyle.Render("► " + label + ":"))
		} else {
			b.WriteString(labelStyle.Render("  " + label + ":"))
		}
		b.WriteString("\n  ")
		b.WriteString(input.View())
		b.WriteString("\n\n")
	}

	if len(m.errors) > 0 {
		for _, errMsg := range m.errors {
			b.WriteString(renderError(errMsg))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(renderStatusBar("↑/↓ or Tab: navigate  Enter: log in  Ctrl+C: quit"))

	return borderStyle.Render(b.String())
}

func (m Model) renderLogin() string {
	var b strings.Builder

	b.WriteString(renderHeader("Shelltide Login"))
	b.WriteString("\n\n")

	if m.loggingIn {
		b.WriteString(infoStyle.Render(iconSpinner + " Logging in..."))
	} else if m.loginError != nil {
		b.WriteString(renderError("Login failed"))
		b.WriteString("\n\n")
		b.WriteString(errorStyle.Render("Error: " + m.loginError.Error()))
		b.WriteString("\n\n")
		b.WriteString("What would you like to do?\n\n")
		b.WriteString(renderOption(m.retryChoice == 0, "Retry login"))
		b.WriteString("\n")
		b.WriteString(renderOption(m.retryChoice == 1, "Edit credentials"))
		b.WriteString("\n")
		b.WriteString(renderOption(m.retryChoice == 2, "Quit"))
		b.WriteString("\n")
	}

	b.WriteString("\n\n")
	if m.loginError != nil {
		b.WriteString(renderStatusBar("↑/↓: navigate  Enter: select  q: quit"))
	} else {
		b.WriteString(renderStatusBar("Please wait"))
	}

	return borderStyle.Render(b.String())
}

func (m Model) renderDone() string {
	var b strings.Builder

	b.WriteString(renderHeader("Shelltide Login"))
	b.WriteString("\n\n")
	b.WriteString(renderSuccess("Logged in!"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("Connected to %s as %s\n", m.url, m.serviceAccount))
	b.WriteString("\n")
	b.WriteString(renderInfo("Next steps:\n" +
		"  1. Add environments: shelltide env add <name>\n" +
		"  2. Check where things stand: shelltide status\n" +
		"  3. Migrate: shelltide migrate <source-db> <env>/<db> --to LATEST"))
	b.WriteString("\n\n")
	b.WriteString(renderStatusBar("Press Enter to exit"))

	return borderStyle.Render(b.String())
}

func (m Model) renderErrorView() string {
	var b strings.Builder

	b.WriteString(renderHeader("Shelltide Login"))
	b.WriteString("\n\n")
	b.WriteString(renderError("An error occurred"))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render(m.err.Error()))
	}

	b.WriteString("\n\n")
	b.WriteString(renderStatusBar("Press Enter to exit"))

	return borderStyle.Render(b.String())
}

// Run starts the wizard and reports whether credentials were saved.
func Run(login LoginFunc, save SaveFunc, defaultURL string) (Result, error) {
	p := tea.NewProgram(New(login, save, defaultURL))
	final, err := p.Run()
	if err != nil {
		return Result{}, err
	}
	return final.(Model).Result(), nil
}
