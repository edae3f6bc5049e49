// Package feed is the terminal view of the notification store: a badge
// line, the newest-first list, and inline error text. It renders purely
// from store snapshots and feeds every keypress to the activity
// monitor.
package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/caseflow/notify/internal/client"
	"github.com/caseflow/notify/internal/model"
)

// StoreChangedMsg is sent whenever the store mutates; the view rebuilds
// its items from a fresh snapshot.
type StoreChangedMsg struct{}

// opDoneMsg reports the outcome of an async store operation.
type opDoneMsg struct {
	status string
	err    error
}

// opTimeout bounds the REST confirmation behind each key action.
const opTimeout = 15 * time.Second

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	badgeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// typeFilters is the cycle order for the t key: all, then each category.
var typeFilters = append([]model.Category{""}, model.Categories...)

// readFilters is the cycle order for the r key.
var readFilters = []model.ReadFilter{
	model.ReadFilterAll,
	model.ReadFilterUnread,
	model.ReadFilterRead,
}

// Model is the feed view component.
type Model struct {
	cl        *client.Client
	list      list.Model
	typeIndex int
	readIndex int
	status    string
	width     int
	height    int
}

// New creates the feed view bound to a client.
func New(cl *client.Client, width, height int) Model {
	delegate := list.NewDefaultDelegate()
	l := list.New([]list.Item{}, delegate, width, height-3)
	l.Title = "Notifications"
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = headerStyle

	return Model{
		cl:     cl,
		list:   l,
		width:  width,
		height: height,
	}
}

// Init reloads the view from the store's current state.
func (m Model) Init() tea.Cmd {
	return func() tea.Msg { return StoreChangedMsg{} }
}

// Update handles messages for the feed view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case StoreChangedMsg:
		return m.reload()

	case opDoneMsg:
		if msg.err != nil {
			m.status = errStyle.Render(msg.err.Error())
		} else {
			m.status = msg.status
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, msg.Height-3)
		return m, nil

	case tea.KeyMsg:
		// Every keypress counts as user activity.
		m.cl.Signal()
		return m.handleKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// handleKeys processes key input.
func (m Model) handleKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "enter":
		item, ok := m.list.SelectedItem().(Item)
		if !ok {
			return m, nil
		}
		return m, m.openCmd(item.Notification)

	case "a":
		return m, m.markAllCmd()

	case "x":
		item, ok := m.list.SelectedItem().(Item)
		if !ok {
			return m, nil
		}
		m.cl.Dismiss(item.Notification.ID)
		return m, nil

	case "c":
		item, ok := m.list.SelectedItem().(Item)
		if !ok {
			return m, nil
		}
		return m, m.toggleCompletedCmd(item.Notification)

	case "t":
		m.typeIndex = (m.typeIndex + 1) % len(typeFilters)
		return m, m.setTypeFilterCmd(typeFilters[m.typeIndex])

	case "r":
		m.readIndex = (m.readIndex + 1) % len(readFilters)
		return m, m.setReadFilterCmd(readFilters[m.readIndex])

	case "n":
		return m, m.nextPageCmd()

	case "R":
		return m, m.refreshCmd()
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// reload rebuilds the list items from a store snapshot.
func (m Model) reload() (Model, tea.Cmd) {
	snap := m.cl.Store().Snapshot()

	items := make([]list.Item, len(snap.Items))
	for i, n := range snap.Items {
		items[i] = Item{Notification: n}
	}
	cmd := m.list.SetItems(items)

	if snap.Err != nil {
		m.status = errStyle.Render(snap.Err.Error())
	}
	return m, cmd
}

// openCmd marks a notification read and reports its destination.
func (m Model) openCmd(n model.Notification) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()

		route, err := m.cl.Open(ctx, n)
		if err != nil {
			return opDoneMsg{err: err}
		}
		if route == nil {
			return opDoneMsg{status: "read"}
		}
		target := route.Path
		if len(route.Query) > 0 {
			target += "?" + route.Query.Encode()
		}
		return opDoneMsg{status: "→ " + target}
	}
}

// markAllCmd bulk-marks every visible unread notification.
func (m Model) markAllCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()

		if err := m.cl.Store().MarkAllVisibleRead(ctx); err != nil {
			return opDoneMsg{err: err}
		}
		return opDoneMsg{status: "all read"}
	}
}

// toggleCompletedCmd flips the completed flag of one notification.
func (m Model) toggleCompletedCmd(n model.Notification) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()

		if err := m.cl.Store().SetCompleted(ctx, n.ID, !n.Completed); err != nil {
			return opDoneMsg{err: err}
		}
		return opDoneMsg{status: "updated"}
	}
}

// setTypeFilterCmd applies a category filter (empty for all).
func (m Model) setTypeFilterCmd(c model.Category) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()

		var category *model.Category
		if c != "" {
			category = &c
		}
		if err := m.cl.Store().SetTypeFilter(ctx, category); err != nil {
			return opDoneMsg{err: err}
		}
		return opDoneMsg{}
	}
}

// setReadFilterCmd applies a read-state filter.
func (m Model) setReadFilterCmd(r model.ReadFilter) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()

		if err := m.cl.Store().SetReadFilter(ctx, r); err != nil {
			return opDoneMsg{err: err}
		}
		return opDoneMsg{}
	}
}

// nextPageCmd appends the next page when the server has more.
func (m Model) nextPageCmd() tea.Cmd {
	snap := m.cl.Store().Snapshot()
	if !snap.HasMore {
		return nil
	}
	page := snap.Page + 1
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()

		if err := m.cl.Store().FetchPage(ctx, page, false); err != nil {
			return opDoneMsg{err: err}
		}
		return opDoneMsg{}
	}
}

// refreshCmd refetches the first page and badge snapshot.
func (m Model) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()

		m.cl.Refresh(ctx)
		return opDoneMsg{}
	}
}

// View renders the badge header, the list, and the status line.
func (m Model) View() string {
	snap := m.cl.Store().Snapshot()

	header := badgeStyle.Render(fmt.Sprintf("unread %d", snap.Unread))
	header += dimStyle.Render("  " + snap.ConnState.String())
	if snap.Filter.Category != nil {
		header += dimStyle.Render("  [" + string(*snap.Filter.Category) + "]")
	}
	if snap.Filter.Read != "" && snap.Filter.Read != model.ReadFilterAll {
		header += dimStyle.Render("  [" + string(snap.Filter.Read) + "]")
	}
	if len(snap.Badges) > 0 {
		var parts []string
		for _, c := range model.Categories {
			if count := snap.Badges[c]; count > 0 {
				parts = append(parts, fmt.Sprintf("%s:%d", categoryLabels[c], count))
			}
		}
		header += dimStyle.Render("  " + strings.Join(parts, " "))
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, m.list.View(), m.status)
}
