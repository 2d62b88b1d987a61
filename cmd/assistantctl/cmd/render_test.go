package cmd

import (
	"bytes"
	"testing"
	"time"

	"ai-productivity-app/assistant/conversation/models"

	"github.com/stretchr/testify/assert"
)

func TestPrintMessageVariants(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msgs := []models.Message{
		models.UserMessage{Envelope: models.Envelope{ID: "u1", Text: "hello\nthere", CreatedAt: at,
			Attachments: []models.Attachment{{ID: "a1", Name: "notes.pdf", Mimetype: "application/pdf", Size: 12}}}},
		models.PendingAssistant{Envelope: models.Envelope{ID: "p1", CreatedAt: at}},
		models.ResolvedAssistant{Envelope: models.Envelope{ID: "r1", Text: "hi", CreatedAt: at},
			Citations: []models.Citation{{Title: "Docs", URL: "https://example.com"}}},
		models.ErroredAssistant{Envelope: models.Envelope{ID: "e1", CreatedAt: at}, Prompt: "hello"},
		models.LimitedAssistant{Envelope: models.Envelope{ID: "l1", Text: "limit", CreatedAt: at}},
	}

	var buf bytes.Buffer
	printMessages(&buf, msgs)
	out := buf.String()

	assert.Contains(t, out, "you (u1)")
	assert.Contains(t, out, "  hello\n  there\n")
	assert.Contains(t, out, "+ notes.pdf (doc, 12 bytes) id=a1")
	assert.Contains(t, out, "assistant (p1) ...")
	assert.Contains(t, out, "[1] Docs https://example.com")
	assert.Contains(t, out, `failed, retry with: "hello"`)
	assert.Contains(t, out, "assistant (l1) limit reached")
}

func TestPrintConversations(t *testing.T) {
	title := "Trip plans"
	var buf bytes.Buffer
	printConversations(&buf, []models.Conversation{{ID: "c1", Title: &title}, {ID: "c2"}})
	assert.Contains(t, buf.String(), "c1")
	assert.Contains(t, buf.String(), "Trip plans")
	assert.Contains(t, buf.String(), "(untitled)")

	buf.Reset()
	printConversations(&buf, nil)
	assert.Equal(t, "no conversations\n", buf.String())
}

func TestFeedbackRejectsUnknownPolarity(t *testing.T) {
	rootCmd.SetArgs([]string{"feedback", "sideways", "-c", "c1", "-m", "m1"})
	rootCmd.SetOut(&bytes.Buffer{})
	err := rootCmd.Execute()
	assert.Error(t, err)
}

func TestTokenCommandPrintsToken(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetArgs([]string{"token", "--user", "user-1"})
	rootCmd.SetOut(&buf)
	assert.NoError(t, rootCmd.Execute())
	assert.Regexp(t, `^[\w-]+\.[\w-]+\.[\w-]+\n$`, buf.String())
}
