package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"suna-chat/internal/chat"
	"suna-chat/internal/outbox"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	pinStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	botStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Bold(true)

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203"))
)

// shortIDLen is enough to disambiguate a UUID prefix on one device.
const shortIDLen = 8

type sessionRow struct {
	ID        string `json:"id" yaml:"id"`
	Title     string `json:"title" yaml:"title"`
	Pinned    bool   `json:"pinned" yaml:"pinned"`
	Messages  int    `json:"messages" yaml:"messages"`
	Pending   bool   `json:"pending" yaml:"pending"`
	UpdatedAt string `json:"updatedAt" yaml:"updatedAt"`
}

type messageView struct {
	Role      string `json:"role" yaml:"role"`
	Content   string `json:"content" yaml:"content"`
	Timestamp string `json:"timestamp" yaml:"timestamp"`
	Favorite  bool   `json:"favorite" yaml:"favorite"`
}

type sessionView struct {
	ID             string        `json:"id" yaml:"id"`
	Title          string        `json:"title" yaml:"title"`
	ConversationID string        `json:"conversationId,omitempty" yaml:"conversationId,omitempty"`
	Pinned         bool          `json:"pinned" yaml:"pinned"`
	CreatedAt      string        `json:"createdAt" yaml:"createdAt"`
	UpdatedAt      string        `json:"updatedAt" yaml:"updatedAt"`
	Messages       []messageView `json:"messages" yaml:"messages"`
}

func validFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04")
}

func pendingSet(entries []outbox.Entry) map[string]bool {
	set := make(map[string]bool, len(entries))
	for _, e := range entries {
		set[e.SessionID] = true
	}
	return set
}

func toRows(sessions []chat.Session, pending map[string]bool) []sessionRow {
	rows := make([]sessionRow, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, sessionRow{
			ID:        s.ID,
			Title:     s.Title,
			Pinned:    s.IsPinned,
			Messages:  len(s.Messages),
			Pending:   pending[s.ID],
			UpdatedAt: formatMillis(s.UpdatedAt),
		})
	}
	return rows
}

func toView(s chat.Session) sessionView {
	view := sessionView{
		ID:             s.ID,
		Title:          s.Title,
		ConversationID: s.ConversationID,
		Pinned:         s.IsPinned,
		CreatedAt:      formatMillis(s.CreatedAt),
		UpdatedAt:      formatMillis(s.UpdatedAt),
		Messages:       make([]messageView, 0, len(s.Messages)),
	}
	for _, m := range s.Messages {
		view.Messages = append(view.Messages, messageView{
			Role:      string(m.Role),
			Content:   m.Content,
			Timestamp: formatMillis(m.Timestamp),
			Favorite:  m.IsFavorite,
		})
	}
	return view
}

func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return validFormat(format)
	}
}

func renderSessions(w io.Writer, format string, rows []sessionRow) error {
	if format != formatTable {
		return writeStructured(w, format, rows)
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No sessions yet. Start one with `suna send`.")
		return err
	}

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%d session(s)", len(rows))))
	for _, r := range rows {
		marker := "  "
		if r.Pinned {
			marker = pinStyle.Render("* ")
		}
		line := marker + idStyle.Render(shortID(r.ID)) + "  " + titleStyle.Render(r.Title)
		line += "  " + dateStyle.Render(fmt.Sprintf("%d msg, %s", r.Messages, r.UpdatedAt))
		if r.Pending {
			line += "  " + pendingStyle.Render("(pending sync)")
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func renderSession(w io.Writer, format string, s chat.Session) error {
	if format != formatTable {
		return writeStructured(w, format, toView(s))
	}

	title := titleStyle.Render(s.Title)
	if s.IsPinned {
		title = pinStyle.Render("* ") + title
	}
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, idStyle.Render(s.ID)+"  "+dateStyle.Render("updated "+formatMillis(s.UpdatedAt)))
	fmt.Fprintln(w)
	for i, m := range s.Messages {
		fmt.Fprintln(w, renderMessage(i, m))
	}
	return nil
}

func renderMessage(index int, m chat.Message) string {
	label := userStyle.Render("you")
	if m.Role == chat.RoleBot {
		label = botStyle.Render("bot")
	}
	fav := ""
	if m.IsFavorite {
		fav = pinStyle.Render(" [fav]")
	}
	head := fmt.Sprintf("[%d] %s %s%s", index, label, dateStyle.Render(formatMillis(m.Timestamp)), fav)
	return head + "\n" + indent(m.Content, "    ")
}

func indent(text, prefix string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

func shortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}
	return id[:shortIDLen]
}
