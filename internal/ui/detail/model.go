package detail

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/hrnotify/internal/feed"
	"github.com/nhle/hrnotify/internal/keys"
	"github.com/nhle/hrnotify/internal/model"
	"github.com/nhle/hrnotify/internal/theme"
)

// BackMsg signals the parent to navigate back to the feed.
type BackMsg struct{}

// Model shows one opened notification and where it leads.
type Model struct {
	item     *model.NotificationItem
	target   feed.Target
	viewport viewport.Model
	keys     *keys.KeyMap
	width    int
	height   int
}

// New creates a new detail view model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		width:    width,
		height:   height,
	}
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, m.keys.Back) {
		return m, func() tea.Msg { return BackMsg{} }
	}

	// j/k, up/down, pgup/pgdn scroll
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	if m.item == nil {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No notification selected")
	}
	return m.viewport.View()
}

func (m Model) renderContent() string {
	if m.item == nil {
		return ""
	}

	it := m.item
	p := it.Payload
	var sections []string

	title := p.Title
	if title == "" {
		title = theme.ChannelLabel(it.Channel)
	}
	sections = append(sections, lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite).Render(title))

	badges := []string{theme.ChannelStyle(it.Channel).Render(theme.ChannelLabel(it.Channel))}
	if p.Status != "" {
		badges = append(badges, theme.StatusStyle(p.Status).Render(p.Status))
	}
	if p.Priority != "" {
		badges = append(badges, theme.PriorityStyle(p.Priority).Render(p.Priority))
	}
	sections = append(sections, strings.Join(badges, "  "), "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	row := func(label, value string) {
		if value == "" {
			return
		}
		sections = append(sections, fmt.Sprintf("%-12s %s", metaStyle.Render(label+":"), valStyle.Render(value)))
	}

	row("From", p.Sender)
	row("Details", p.Subtitle)
	if !it.Timestamp.IsZero() {
		row("When", it.Timestamp.Local().Format("2006-01-02 15:04"))
	}
	if p.AttachmentURL != "" {
		name := p.AttachmentName
		if name == "" {
			name = p.AttachmentURL
		}
		row("Attachment", name+" <"+p.AttachmentURL+">")
	}

	extra := make([]string, 0, len(p.Extra))
	for k := range p.Extra {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	for _, k := range extra {
		row(strings.ReplaceAll(k, "_", " "), p.Extra[k])
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorSubtle).Render(strings.Repeat("─", max(min(m.width-4, 80), 0)))
	sections = append(sections, "", sep, "")
	sections = append(sections, theme.HelpStyle.Render("Opens "+m.target.Route))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetItem shows it and its navigation target.
func (m *Model) SetItem(it model.NotificationItem, target feed.Target) {
	m.item = &it
	m.target = target
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	if m.item != nil {
		m.viewport.SetContent(m.renderContent())
	}
}
