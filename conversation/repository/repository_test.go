package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"ai-productivity-app/assistant/conversation/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRecordRoundTrip(t *testing.T) {
	w := models.WireMessage{
		ID:             "m1",
		ConversationID: "c1",
		Text:           "hello",
		Metadata: models.WireMetadata{
			Role:      models.RoleAssistant,
			Kind:      models.KindAssistant,
			Citations: []models.Citation{{Title: "Doc"}},
		},
		Attachments: []models.Attachment{{ID: "a1", Name: "x.pdf", Mimetype: "application/pdf"}},
		CreatedAt:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	rec, err := NewMessageRecord("u1", w)
	require.NoError(t, err)
	assert.Equal(t, "u1", rec.UserID)

	back, err := rec.Wire()
	require.NoError(t, err)
	assert.Equal(t, w, back)
}

func TestMemoryStoreOwnership(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateConversation(ctx, &ConversationRecord{ID: "c1", UserID: "u1"}))

	_, err := s.GetConversation(ctx, "u2", "c1")
	assert.ErrorIs(t, err, ErrNotFound)

	conv, err := s.GetConversation(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", conv.ID)
}

func TestMemoryStoreListing(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateConversation(ctx, &ConversationRecord{
			ID:        fmt.Sprintf("c%d", i),
			UserID:    "u1",
			Title:     fmt.Sprintf("Trip plan %d", i),
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	convs, err := s.ListConversations(ctx, "u1", "", 0, 2)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "c2", convs[0].ID)

	convs, err = s.ListConversations(ctx, "u1", "PLAN 1", 0, 10)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "c1", convs[0].ID)

	for i := 0; i < 5; i++ {
		role := "USER"
		if i%2 == 1 {
			role = "ASSISTANT"
		}
		require.NoError(t, s.AppendMessages(ctx, &MessageRecord{ID: fmt.Sprintf("m%d", i), ConversationID: "c1", UserID: "u1", Role: role}))
	}

	msgs, err := s.ListMessages(ctx, "c1", 0, 2)
	require.NoError(t, err)
	assert.Equal(t, "m4", msgs[0].ID)
	assert.Equal(t, "m3", msgs[1].ID)

	msgs, err = s.ListMessages(ctx, "c1", 4, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m0", msgs[0].ID)

	n, err := s.CountUserPrompts(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}
