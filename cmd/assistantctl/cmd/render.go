package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"ai-productivity-app/assistant/conversation/models"
)

func printMessages(w io.Writer, msgs []models.Message) {
	for _, m := range msgs {
		printMessage(w, m)
	}
}

func printMessage(w io.Writer, m models.Message) {
	base := m.Base()
	stamp := base.CreatedAt.Local().Format(time.DateTime)

	switch v := m.(type) {
	case models.UserMessage:
		fmt.Fprintf(w, "[%s] you (%s)\n", stamp, v.ID)
	case models.PendingAssistant:
		fmt.Fprintf(w, "[%s] assistant (%s) ...\n", stamp, v.ID)
		return
	case models.ResolvedAssistant:
		fmt.Fprintf(w, "[%s] assistant (%s)\n", stamp, v.ID)
	case models.ErroredAssistant:
		fmt.Fprintf(w, "[%s] assistant (%s) failed, retry with: %q\n", stamp, v.ID, v.Prompt)
	case models.LimitedAssistant:
		fmt.Fprintf(w, "[%s] assistant (%s) limit reached\n", stamp, v.ID)
	}

	if text := strings.TrimSpace(base.Text); text != "" {
		for _, line := range strings.Split(text, "\n") {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
	for _, att := range base.Attachments {
		fmt.Fprintf(w, "  + %s (%s, %d bytes) id=%s\n", att.Name, att.Family(), att.Size, att.ID)
	}
	if r, ok := m.(models.ResolvedAssistant); ok {
		for i, c := range r.Citations {
			fmt.Fprintf(w, "  [%d] %s %s\n", i+1, c.Title, c.URL)
		}
	}
}

func printConversations(w io.Writer, convs []models.Conversation) {
	if len(convs) == 0 {
		fmt.Fprintln(w, "no conversations")
		return
	}
	for _, c := range convs {
		title := "(untitled)"
		if c.Title != nil && *c.Title != "" {
			title = *c.Title
		}
		fmt.Fprintf(w, "%s  %s  %s\n", c.ID, c.UpdatedAt.Local().Format(time.DateTime), title)
	}
}
