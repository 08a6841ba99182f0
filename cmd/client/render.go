package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/astromechza/relay-chat/pkg/chat"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	alertStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))
	senderStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	selfStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("135")).Align(lipgloss.Right)
	separatorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Align(lipgloss.Center)
)

// render draws one frame of the chat: header, optional notification, live
// messages newest first, then the saved backlog. Own messages sit on the right.
func render(v chat.View, width int) string {
	var b strings.Builder

	nickname := "(type /nick <name> to choose a nickname)"
	if v.IdentityLocked {
		nickname = v.Identity
	}
	b.WriteString(headerStyle.Render(fmt.Sprintf("relay-chat | %d online | %s", v.Presence, nickname)))
	b.WriteString("\n")

	if v.Notification.Active() {
		b.WriteString(alertStyle.Render("! " + notificationText(v.Notification)))
		b.WriteString("\n")
	}

	for _, m := range v.Live {
		b.WriteString(line(m.Body, m.From, m.From == chat.SelfMarker, width))
	}

	b.WriteString(separatorStyle.Width(width).Render("... saved messages ..."))
	b.WriteString("\n")

	for _, m := range v.Archived {
		b.WriteString(line(m.Message, m.From, v.IsSelf(m), width))
	}
	return b.String()
}

func line(body, from string, self bool, width int) string {
	if self {
		return selfStyle.Width(width).Render(body) + "\n"
	}
	return senderStyle.Render(from+":") + " " + body + "\n"
}

// notificationText unquotes string notifications and shows anything else as
// raw json.
func notificationText(n chat.Notification) string {
	var s string
	if err := json.Unmarshal(n, &s); err == nil {
		return s
	}
	return n.String()
}
