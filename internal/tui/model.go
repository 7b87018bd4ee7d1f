// Package tui is the console's terminal interface. The root Model shows
// the login flow while the session gate is unauthenticated and the
// resource shell once it is.
package tui

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/BradenHooton/billdesk/internal/apiclient"
	"github.com/BradenHooton/billdesk/internal/loginflow"
	"github.com/BradenHooton/billdesk/internal/models"
	"github.com/BradenHooton/billdesk/internal/session"
)

// Flow is the login flow as the UI drives it.
type Flow interface {
	Snapshot() loginflow.Snapshot
	SubmitContact(ctx context.Context, contact string) error
	SetCode(ctx context.Context, input string) error
	Verify(ctx context.Context) error
	Resend(ctx context.Context) error
	Back() error
	Close()
}

// Gate is the session gate as the UI reads it.
type Gate interface {
	State() session.State
	Confirm() session.State
	OnLogout(ctx context.Context)
}

// Lister fetches shell resources.
type Lister interface {
	List(ctx context.Context, resource string) ([]apiclient.Item, error)
}

// FlowMsg carries a login flow snapshot into the program.
type FlowMsg struct{ Snapshot loginflow.Snapshot }

// SessionMsg carries a session gate change into the program.
type SessionMsg struct{ State session.State }

type flowDoneMsg struct{ err error }

type listedMsg struct {
	resource string
	items    []apiclient.Item
	err      error
}

// Config wires a Model.
type Config struct {
	Gate Gate
	// NewFlow starts a fresh login flow. It is called at startup when
	// signed out and again after every logout.
	NewFlow   func() Flow
	Lister    Lister
	Resources []string
	Keys      KeyMap
	Theme     Theme
}

// Model is the root bubbletea model.
type Model struct {
	ctx       context.Context
	gate      Gate
	newFlow   func() Flow
	lister    Lister
	resources []string
	keys      KeyMap
	theme     Theme

	session session.State

	flow     Flow
	snapshot loginflow.Snapshot
	contact  textinput.Model
	code     textinput.Model

	tab     int
	items   map[string][]apiclient.Item
	errors  map[string]string
	loading map[string]bool

	width  int
	height int
}

// New builds the root model from the gate's bootstrap state.
func New(ctx context.Context, cfg Config) Model {
	if cfg.Resources == nil {
		cfg.Resources = apiclient.Resources
	}

	contact := textinput.New()
	contact.Placeholder = "you@example.com or +33600000000"
	contact.CharLimit = 254
	contact.Prompt = "› "

	code := textinput.New()
	code.Placeholder = strings.Repeat("•", models.OTPLength)
	code.CharLimit = models.OTPLength
	code.Prompt = "› "

	m := Model{
		ctx:       ctx,
		gate:      cfg.Gate,
		newFlow:   cfg.NewFlow,
		lister:    cfg.Lister,
		resources: cfg.Resources,
		keys:      cfg.Keys,
		theme:     cfg.Theme,
		session:   cfg.Gate.State(),
		contact:   contact,
		code:      code,
		items:     make(map[string][]apiclient.Item),
		errors:    make(map[string]string),
		loading:   make(map[string]bool),
	}
	if !m.session.Authenticated {
		m.startFlow()
	}
	return m
}

func (m Model) Init() tea.Cmd {
	gate := m.gate
	confirm := func() tea.Msg { return SessionMsg{State: gate.Confirm()} }
	if m.session.Authenticated {
		return tea.Batch(confirm, m.loadTab())
	}
	return tea.Batch(confirm, textinput.Blink)
}

func (m Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = message.Width, message.Height
		return m, nil

	case SessionMsg:
		return m.applySession(message.State)

	case FlowMsg:
		m.applySnapshot(message.Snapshot)
		return m, nil

	case flowDoneMsg:
		if m.flow != nil {
			m.applySnapshot(m.flow.Snapshot())
		}
		return m, nil

	case listedMsg:
		m.loading[message.resource] = false
		if message.err != nil {
			m.errors[message.resource] = loginflow.UserMessage(message.err)
			return m, nil
		}
		delete(m.errors, message.resource)
		m.items[message.resource] = message.items
		return m, nil

	case tea.KeyMsg:
		if key.Matches(message, m.keys.Quit) {
			if m.flow != nil {
				m.flow.Close()
			}
			return m, tea.Quit
		}
		if m.session.Authenticated {
			return m.handleShellKeys(message)
		}
		return m.handleLoginKeys(message)
	}

	if !m.session.Authenticated {
		return m.updateInputs(message)
	}
	return m, nil
}

func (m Model) applySession(state session.State) (tea.Model, tea.Cmd) {
	wasAuthenticated := m.session.Authenticated
	m.session = state

	switch {
	case state.Authenticated && !wasAuthenticated:
		if m.flow != nil {
			m.flow.Close()
			m.flow = nil
		}
		m.items = make(map[string][]apiclient.Item)
		m.errors = make(map[string]string)
		m.loading = make(map[string]bool)
		m.tab = 0
		return m, m.loadTab()
	case !state.Authenticated && wasAuthenticated:
		m.startFlow()
		return m, textinput.Blink
	case !state.Authenticated && m.flow == nil:
		m.startFlow()
	}
	return m, nil
}

func (m *Model) startFlow() {
	m.flow = m.newFlow()
	m.snapshot = m.flow.Snapshot()
	m.contact.SetValue("")
	m.code.SetValue("")
	m.focusInputs()
}

func (m *Model) applySnapshot(s loginflow.Snapshot) {
	if s.Version < m.snapshot.Version {
		return
	}
	m.snapshot = s
	if m.code.Value() != s.Code {
		m.code.SetValue(s.Code)
	}
	m.focusInputs()
}

func (m *Model) focusInputs() {
	if m.snapshot.Step == loginflow.StepOTP {
		m.contact.Blur()
		m.code.Focus()
		return
	}
	m.code.Blur()
	m.contact.Focus()
}

func (m Model) handleLoginKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.flow == nil {
		return m, nil
	}
	flow, ctx := m.flow, m.ctx

	switch m.snapshot.Step {
	case loginflow.StepEmail:
		if key.Matches(message, m.keys.Submit) {
			contact := m.contact.Value()
			return m, func() tea.Msg { return flowDoneMsg{err: flow.SubmitContact(ctx, contact)} }
		}

	case loginflow.StepOTP:
		switch {
		case key.Matches(message, m.keys.Submit):
			return m, func() tea.Msg { return flowDoneMsg{err: flow.Verify(ctx)} }
		case key.Matches(message, m.keys.Resend):
			return m, func() tea.Msg { return flowDoneMsg{err: flow.Resend(ctx)} }
		case key.Matches(message, m.keys.Back):
			_ = flow.Back()
			m.applySnapshot(flow.Snapshot())
			return m, nil
		}

		before := m.code.Value()
		var cmd tea.Cmd
		m.code, cmd = m.code.Update(message)
		after := m.code.Value()
		if after == before {
			return m, cmd
		}
		return m, tea.Batch(cmd, func() tea.Msg { return flowDoneMsg{err: flow.SetCode(ctx, after)} })

	default:
		return m, nil
	}

	return m.updateInputs(message)
}

func (m Model) updateInputs(message tea.Msg) (tea.Model, tea.Cmd) {
	var contactCmd, codeCmd tea.Cmd
	m.contact, contactCmd = m.contact.Update(message)
	m.code, codeCmd = m.code.Update(message)
	return m, tea.Batch(contactCmd, codeCmd)
}

func (m Model) handleShellKeys(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, m.keys.Logout):
		gate, ctx := m.gate, m.ctx
		return m, func() tea.Msg {
			gate.OnLogout(ctx)
			return SessionMsg{State: gate.State()}
		}
	case key.Matches(message, m.keys.NextTab):
		m.tab = (m.tab + 1) % len(m.resources)
		if _, loaded := m.items[m.currentResource()]; !loaded {
			return m, m.loadTab()
		}
	case key.Matches(message, m.keys.PrevTab):
		m.tab = (m.tab + len(m.resources) - 1) % len(m.resources)
		if _, loaded := m.items[m.currentResource()]; !loaded {
			return m, m.loadTab()
		}
	case key.Matches(message, m.keys.Refresh):
		return m, m.loadTab()
	}
	return m, nil
}

func (m Model) currentResource() string { return m.resources[m.tab] }

func (m Model) loadTab() tea.Cmd {
	resource := m.currentResource()
	if m.loading[resource] {
		return nil
	}
	m.loading[resource] = true
	lister, ctx := m.lister, m.ctx
	return func() tea.Msg {
		items, err := lister.List(ctx, resource)
		return listedMsg{resource: resource, items: items, err: err}
	}
}

func (m Model) View() string {
	if m.session.Authenticated {
		return m.theme.Panel.Render(m.shellView())
	}
	return m.theme.Panel.Render(m.loginView())
}

func (m Model) loginView() string {
	var b strings.Builder
	s := m.snapshot

	b.WriteString(m.theme.Title.Render("billdesk · operator sign-in"))
	b.WriteString("\n\n")

	switch s.Step {
	case loginflow.StepEmail:
		b.WriteString(m.theme.Label.Render("Email or phone number"))
		b.WriteString("\n")
		b.WriteString(m.contact.View())
		b.WriteString("\n")
		if s.Loading {
			b.WriteString(m.theme.Muted.Render("Sending code…"))
			b.WriteString("\n")
		}

	case loginflow.StepOTP:
		b.WriteString(m.theme.Label.Render(fmt.Sprintf("Enter the %d-digit code sent to %s", models.OTPLength, s.Contact)))
		b.WriteString("\n")
		b.WriteString(m.code.View())
		b.WriteString("\n")
		if s.HasCountdown {
			if s.Expired() {
				b.WriteString(m.theme.Expired.Render("Code expired"))
			} else {
				b.WriteString(m.theme.Muted.Render("Code expires in "))
				b.WriteString(m.theme.Countdown.Render(FormatCountdown(s.Remaining)))
			}
			b.WriteString("\n")
		}
		switch {
		case s.Verifying:
			b.WriteString(m.theme.Muted.Render("Verifying…"))
			b.WriteString("\n")
		case s.Loading:
			b.WriteString(m.theme.Muted.Render("Sending a new code…"))
			b.WriteString("\n")
		}

	case loginflow.StepDone:
		b.WriteString(m.theme.Success.Render("Signed in. Loading your dashboard…"))
		b.WriteString("\n")
	}

	if s.Message != "" {
		b.WriteString("\n")
		b.WriteString(m.messageStyle(s.MessageKind).Render(s.Message))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.theme.Muted.Render(m.loginHelp()))
	return b.String()
}

func (m Model) loginHelp() string {
	s := m.snapshot
	parts := []string{}
	if s.Step == loginflow.StepOTP {
		if s.CanVerify {
			parts = append(parts, helpEntry(m.keys.Submit))
		}
		resend := helpEntry(m.keys.Resend)
		if s.ResendWait > 0 {
			resend += fmt.Sprintf(" (in %ds)", s.ResendWait)
		}
		parts = append(parts, resend, helpEntry(m.keys.Back))
	} else if s.Step == loginflow.StepEmail {
		parts = append(parts, helpEntry(m.keys.Submit))
	}
	parts = append(parts, helpEntry(m.keys.Quit))
	return strings.Join(parts, " · ")
}

func (m Model) messageStyle(kind loginflow.MessageKind) lipgloss.Style {
	switch kind {
	case loginflow.MessageError:
		return m.theme.Error
	case loginflow.MessageSuccess:
		return m.theme.Success
	default:
		return m.theme.Info
	}
}

func (m Model) shellView() string {
	var b strings.Builder

	identity := m.session.User.DisplayName()
	if role := m.session.User.String("role"); role != "" {
		identity += " (" + role + ")"
	}
	b.WriteString(m.theme.Title.Render("billdesk"))
	b.WriteString(m.theme.Muted.Render("  signed in as "))
	b.WriteString(m.theme.Label.Render(identity))
	b.WriteString("\n\n")

	tabs := make([]string, len(m.resources))
	for i, resource := range m.resources {
		style := m.theme.Tab
		if i == m.tab {
			style = m.theme.ActiveTab
		}
		tabs[i] = style.Render(resource)
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, tabs...))
	b.WriteString("\n\n")

	resource := m.currentResource()
	switch {
	case m.errors[resource] != "":
		b.WriteString(m.theme.Error.Render(m.errors[resource]))
		b.WriteString("\n")
	case m.loading[resource] && m.items[resource] == nil:
		b.WriteString(m.theme.Muted.Render("Loading…"))
		b.WriteString("\n")
	case len(m.items[resource]) == 0:
		b.WriteString(m.theme.Muted.Render("Nothing here yet."))
		b.WriteString("\n")
	default:
		for _, item := range m.items[resource] {
			b.WriteString(SummarizeItem(item))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(m.theme.Muted.Render(strings.Join([]string{
		helpEntry(m.keys.NextTab),
		helpEntry(m.keys.PrevTab),
		helpEntry(m.keys.Refresh),
		helpEntry(m.keys.Logout),
		helpEntry(m.keys.Quit),
	}, " · ")))
	return b.String()
}

// FormatCountdown renders seconds as mm:ss.
func FormatCountdown(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// SummarizeItem renders one record on a single line: its id and name
// first, then the remaining scalar fields in key order.
func SummarizeItem(item apiclient.Item) string {
	var parts []string
	for _, lead := range []string{"id", "name"} {
		if v, ok := item[lead]; ok {
			parts = append(parts, fmt.Sprint(v))
		}
	}
	for _, k := range slices.Sorted(maps.Keys(item)) {
		if k == "id" || k == "name" {
			continue
		}
		switch v := item[k].(type) {
		case map[string]any, []any:
			continue
		case nil:
			continue
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	return strings.Join(parts, "  ")
}

func helpEntry(binding key.Binding) string {
	help := binding.Help()
	return help.Key + " " + help.Desc
}
