package service

import (
	"sync"
	"testing"

	"github.com/fathima-sithara/chat-core/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const clientID = "01HZ0000000000000000000AAA"

func TestOneToOneHappyPath(t *testing.T) {
	h := newHarness(t, "a", "b")
	conv := h.direct("a", "b")

	m, err := h.messages.IngestMessage(h.ctx, conv.ID, "a", domain.Payload{Type: domain.MessageText, Text: "hi"}, clientID)
	require.NoError(t, err)
	assert.Equal(t, clientID, m.ID)
	assert.Equal(t, 1, h.store.MessageCount(conv.ID))

	for _, u := range []string{"a", "b"} {
		evs := h.messageEvents(u)
		require.Len(t, evs, 1, u)
		assert.Equal(t, clientID, evs[0].MessageID)
		assert.Equal(t, "hi", evs[0].Payload.Text)
		assert.Equal(t, domain.EventTypeMessage, evs[0].Type)
	}

	own := h.conversationEvents("a")
	require.Len(t, own, 1)
	assert.Equal(t, domain.StatusSent, own[0].LastMessageStatus)
	assert.Nil(t, own[0].UnreadCount)

	peer := h.conversationEvents("b")
	require.Len(t, peer, 1)
	require.NotNil(t, peer[0].UnreadCount)
	assert.EqualValues(t, 1, *peer[0].UnreadCount)
	assert.Equal(t, "hi", peer[0].LastMessagePreview)

	assert.Equal(t, Accepted, h.receipts.SubmitRead(h.ctx, conv.ID, "b", clientID))

	rcpts := h.receiptEvents("a")
	require.Len(t, rcpts, 1)
	assert.Equal(t, domain.ReceiptRead, rcpts[0].Type)
	assert.Equal(t, clientID, rcpts[0].LastReadMessageID)
	assert.Equal(t, "b", rcpts[0].ActorUserID)
	assert.Empty(t, h.receiptEvents("b"), "receipts are not echoed to the actor")

	assert.Equal(t, domain.StatusRead, h.status(conv, m).Status)

	peer = h.conversationEvents("b")
	require.Len(t, peer, 2)
	last := peer[1]
	assert.Equal(t, domain.ConversationActionMessagesRead, last.Action)
	assert.Equal(t, "b", last.ReadBy)
	require.NotNil(t, last.UnreadCount)
	assert.EqualValues(t, 0, *last.UnreadCount)
}

func TestIdempotentSend(t *testing.T) {
	h := newHarness(t, "a", "b")
	conv := h.direct("a", "b")
	p := domain.Payload{Type: domain.MessageText, Text: "hi"}

	first, err := h.messages.IngestMessage(h.ctx, conv.ID, "a", p, clientID)
	require.NoError(t, err)
	second, err := h.messages.IngestMessage(h.ctx, conv.ID, "a", p, clientID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, h.store.MessageCount(conv.ID))
	assert.Len(t, h.messageEvents("b"), 1)
	assert.Len(t, h.push.calls, 1)
}

func TestConcurrentDuplicateSendsStoreOnce(t *testing.T) {
	h := newHarness(t, "a", "b")
	conv := h.direct("a", "b")
	p := domain.Payload{Type: domain.MessageText, Text: "hi"}

	var wg sync.WaitGroup
	results := make([]*domain.Message, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := h.messages.IngestMessage(h.ctx, conv.ID, "a", p, clientID)
			assert.NoError(t, err)
			results[i] = m
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, h.store.MessageCount(conv.ID))
	for _, m := range results {
		require.NotNil(t, m)
		assert.Equal(t, results[0].ServerTS, m.ServerTS)
	}
	assert.Len(t, h.messageEvents("b"), 1)
}

func TestReusedIDElsewhereIsRejected(t *testing.T) {
	h := newHarness(t, "a", "b", "c")
	conv := h.direct("a", "b")
	other := h.direct("a", "c")
	p := domain.Payload{Type: domain.MessageText, Text: "hi"}

	_, err := h.messages.IngestMessage(h.ctx, conv.ID, "a", p, clientID)
	require.NoError(t, err)

	_, err = h.messages.IngestMessage(h.ctx, conv.ID, "b", p, clientID)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.NotErrorIs(t, err, domain.ErrConflict)

	_, err = h.messages.IngestMessage(h.ctx, other.ID, "a", p, clientID)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Equal(t, 1, h.store.MessageCount(conv.ID))
	assert.Equal(t, 0, h.store.MessageCount(other.ID))
}

func TestBlockedSenderIsForbidden(t *testing.T) {
	h := newHarness(t, "a", "b")
	conv := h.direct("a", "b")
	h.store.Block("a", "b")

	_, err := h.messages.IngestMessage(h.ctx, conv.ID, "a", domain.Payload{Type: domain.MessageText, Text: "hi"}, "")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, 0, h.store.MessageCount(conv.ID))
	h.flush()
	assert.Empty(t, h.broker.Published())
	assert.Empty(t, h.push.calls)

	// the blocked side cannot reach the blocker either
	_, err = h.messages.IngestMessage(h.ctx, conv.ID, "b", domain.Payload{Type: domain.MessageText, Text: "hi"}, "")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestIngestRejections(t *testing.T) {
	h := newHarness(t, "a", "b", "c")
	conv := h.direct("a", "b")
	other := h.direct("a", "c")
	foreign := h.send(other.ID, "a", "elsewhere")

	tests := []struct {
		name   string
		conv   string
		sender string
		p      domain.Payload
		id     string
		want   error
	}{
		{"missing conversation", "nope", "a", domain.Payload{Type: domain.MessageText, Text: "x"}, "", domain.ErrNotFound},
		{"non member", conv.ID, "c", domain.Payload{Type: domain.MessageText, Text: "x"}, "", domain.ErrForbidden},
		{"empty payload", conv.ID, "a", domain.Payload{Type: domain.MessageText, Text: "  "}, "", domain.ErrInvalidArgument},
		{"unknown type", conv.ID, "a", domain.Payload{Type: "sticker", Text: "x"}, "", domain.ErrInvalidArgument},
		{"client system message", conv.ID, "a", domain.Payload{Type: domain.MessageSystem, Text: "x"}, "", domain.ErrInvalidArgument},
		{"malformed id", conv.ID, "a", domain.Payload{Type: domain.MessageText, Text: "x"}, "has space", domain.ErrInvalidArgument},
		{"reply across conversations", conv.ID, "a", domain.Payload{Type: domain.MessageText, Text: "x", ReplyToMessageID: foreign.ID}, "", domain.ErrInvalidArgument},
		{"reply to missing", conv.ID, "a", domain.Payload{Type: domain.MessageText, Text: "x", ReplyToMessageID: "ghost"}, "", domain.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.messages.IngestMessage(h.ctx, tt.conv, tt.sender, tt.p, tt.id)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, 0, h.store.MessageCount(conv.ID))
}

func TestMediaMessagePreviewAndReply(t *testing.T) {
	h := newHarness(t, "a", "b")
	conv := h.direct("a", "b")
	parent := h.send(conv.ID, "b", "look")

	m, err := h.messages.IngestMessage(h.ctx, conv.ID, "a", domain.Payload{
		Type:             domain.MessageImage,
		Media:            &domain.Media{URL: "https://cdn/p.jpg", Type: "image/jpeg", Size: 1024},
		ReplyToMessageID: parent.ID,
	}, "")
	require.NoError(t, err)
	assert.True(t, m.After(parent))

	stored, err := h.store.GetConversation(h.ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "[Media]", stored.LastMessagePreview)
	assert.Equal(t, m.ID, stored.LastMessageID)

	evs := h.messageEvents("b")
	require.Len(t, evs, 2)
	assert.Equal(t, parent.ID, evs[1].Payload.ReplyToMessageID)
	assert.Equal(t, "https://cdn/p.jpg", evs[1].Payload.Media.URL)
}

func TestMessageFanoutOrder(t *testing.T) {
	h := newHarness(t, "a", "b")
	conv := h.direct("a", "b")
	h.send(conv.ID, "a", "hi")
	h.flush()

	var topics []string
	for _, p := range h.broker.Published() {
		topics = append(topics, p.Topic)
	}
	assert.Equal(t, []string{
		"chat/v1/users/a/messages",
		"chat/v1/users/b/messages",
		"chat/v1/users/b/conversations",
		"chat/v1/users/a/conversations",
	}, topics)
	require.Len(t, h.push.calls, 1)
	assert.Equal(t, []string{"b"}, h.push.calls[0].recipients)
}

func TestEnsureDirect(t *testing.T) {
	h := newHarness(t, "a", "b", "c")

	_, err := h.messages.EnsureDirect(h.ctx, "a", "a")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	ab := h.direct("a", "b")
	ba := h.direct("b", "a")
	assert.Equal(t, ab.ID, ba.ID)
	assert.Equal(t, []string{"a", "b"}, ab.ParticipantIDs)

	ac := h.direct("c", "a")
	assert.NotEqual(t, ab.ID, ac.ID)
}

func TestEnsureDirectConcurrentConverges(t *testing.T) {
	h := newHarness(t, "a", "b")
	var wg sync.WaitGroup
	ids := make([]string, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "a", "b"
			if i%2 == 1 {
				a, b = b, a
			}
			c, err := h.messages.EnsureDirect(h.ctx, a, b)
			assert.NoError(t, err)
			if c != nil {
				ids[i] = c.ID
			}
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	list, err := h.store.ListConversationsForUser(h.ctx, "a")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreateGroup(t *testing.T) {
	h := newHarness(t, "a", "b", "d")

	_, err := h.messages.CreateGroup(h.ctx, "a", []string{"b", "a", "b"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	g, err := h.messages.CreateGroup(h.ctx, "a", []string{"d", "b", "d"})
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationGroup, g.Type)
	assert.Equal(t, []string{"a", "b", "d"}, g.ParticipantIDs)
	assert.Len(t, h.conversationEvents("d"), 1)
}

func TestGroupSendSkipsBlockCheck(t *testing.T) {
	h := newHarness(t, "a", "b", "d")
	g, err := h.messages.CreateGroup(h.ctx, "a", []string{"b", "d"})
	require.NoError(t, err)
	h.store.Block("b", "a")

	m := h.send(g.ID, "a", "hello all")
	require.Len(t, h.push.calls, 1)
	assert.Equal(t, m.ID, h.push.calls[0].messageID)
	assert.ElementsMatch(t, []string{"b", "d"}, h.push.calls[0].recipients)
}

func TestSendToUser(t *testing.T) {
	h := newHarness(t, "a", "b")

	m, err := h.messages.SendToUser(h.ctx, "a", "b", domain.Payload{Type: domain.MessageText, Text: "yo"}, "")
	require.NoError(t, err)
	conv := h.direct("a", "b")
	assert.Equal(t, conv.ID, m.ConversationID)

	_, err = h.messages.SendToUser(h.ctx, "a", "ghost", domain.Payload{Type: domain.MessageText, Text: "yo"}, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = h.messages.SendToUser(h.ctx, "a", "a", domain.Payload{Type: domain.MessageText, Text: "yo"}, "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestInjectSystemMessageIsIdempotent(t *testing.T) {
	h := newHarness(t, "owner", "commenter")
	conv := h.direct("owner", "commenter")

	m1, err := h.messages.InjectSystemMessage(h.ctx, conv.ID, "commenter", "Comment on post p1: nice", "c-1")
	require.NoError(t, err)
	m2, err := h.messages.InjectSystemMessage(h.ctx, conv.ID, "commenter", "Comment on post p1: nice", "c-1")
	require.NoError(t, err)

	assert.Equal(t, m1.ID, m2.ID)
	assert.Equal(t, domain.MessageSystem, m1.Type)
	assert.Equal(t, "commenter", m1.SenderID)
	assert.Equal(t, 1, h.store.MessageCount(conv.ID))
}
