package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeVariants(t *testing.T) {
	cases := []struct {
		name string
		meta WireMetadata
		want Message
	}{
		{"user", WireMetadata{Role: RoleUser}, UserMessage{}},
		{"assistant", WireMetadata{Role: RoleAssistant}, ResolvedAssistant{}},
		{"assistant error", WireMetadata{Role: RoleAssistant, Kind: KindAssistantError}, ErroredAssistant{}},
		{"assistant limit", WireMetadata{Role: RoleAssistant, Kind: KindAssistantLimit}, LimitedAssistant{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := Decode(WireMessage{ID: "m1", ConversationID: "c1", Metadata: tc.meta})
			require.NoError(t, err)
			assert.IsType(t, tc.want, m)
			assert.Equal(t, "m1", m.Base().ID)
			assert.Equal(t, "c1", m.Base().ConversationID)
		})
	}
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	_, err := Decode(WireMessage{ID: "m1", Metadata: WireMetadata{Role: RoleAssistant, Kind: "assistant-typing"}})
	assert.Error(t, err)

	_, err = Decode(WireMessage{ID: "m2", Metadata: WireMetadata{Role: "SYSTEM"}})
	assert.Error(t, err)

	_, err = DecodeAll([]WireMessage{{ID: "ok", Metadata: WireMetadata{Role: RoleUser}}, {ID: "bad"}})
	assert.Error(t, err)
}

func TestEncodeKeepsCitations(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	reply := ResolvedAssistant{
		Envelope:  Envelope{ID: "a1", ConversationID: "c1", Text: "hi", CreatedAt: created},
		Citations: []Citation{{Title: "Doc", URL: "https://example.com"}},
	}

	w := Encode(reply)
	assert.Equal(t, RoleAssistant, w.Metadata.Role)
	assert.Equal(t, KindAssistant, w.Metadata.Kind)
	assert.Len(t, w.Metadata.Citations, 1)

	back, err := Decode(w)
	require.NoError(t, err)
	assert.Equal(t, reply, back)
}

func TestTempIDs(t *testing.T) {
	id := NewTempID()
	assert.True(t, IsTempID(id))
	assert.NotEqual(t, id, NewTempID())
	assert.False(t, IsTempID("msg_123"))
}

func TestAttachmentFamily(t *testing.T) {
	assert.Equal(t, FamilyAudio, Attachment{Mimetype: "audio/mpeg"}.Family())
	assert.Equal(t, FamilyVideo, Attachment{Mimetype: "video/mp4"}.Family())
	assert.Equal(t, FamilyImage, Attachment{Mimetype: "IMAGE/PNG"}.Family())
	assert.Equal(t, FamilyDocument, Attachment{Mimetype: "application/pdf"}.Family())
	assert.Equal(t, FamilyDocument, Attachment{}.Family())
}

func TestPolarity(t *testing.T) {
	assert.Equal(t, ThumbsDown, ThumbsUp.Opposite())
	assert.Equal(t, ThumbsUp, ThumbsDown.Opposite())
	assert.False(t, Polarity("sideways").Valid())
}
