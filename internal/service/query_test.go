package service

import (
	"encoding/json"
	"testing"

	"github.com/fathima-sithara/chat-core/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginatedReadDoesNotMark(t *testing.T) {
	h := newHarness(t, "a", "b")
	conv := h.direct("a", "b")
	h.send(conv.ID, "a", "1")
	h.send(conv.ID, "a", "2")
	m3 := h.send(conv.ID, "a", "3")

	page, err := h.queries.ReadMessages(h.ctx, conv.ID, "b", 0, m3.ID)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 2)
	assert.False(t, page.HasMore)

	assert.Empty(t, h.watermark(conv.ID, "b", domain.ReceiptRead))
	assert.Empty(t, h.receiptEvents("a"))
}

func TestOpeningLatestPageMarksRead(t *testing.T) {
	h := newHarness(t, "a", "b")
	conv := h.direct("a", "b")
	h.send(conv.ID, "a", "1")
	m2 := h.send(conv.ID, "a", "2")

	page, err := h.queries.ReadMessages(h.ctx, conv.ID, "b", 10, "")
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, m2.ID, page.Messages[0].ID)
	assert.Nil(t, page.Messages[0].StatusReport, "peer messages carry no status")

	assert.Equal(t, m2.ID, h.watermark(conv.ID, "b", domain.ReceiptRead))
	assert.Len(t, h.receiptEvents("a"), 1)
}

func TestEmptyHistoryDoesNotMark(t *testing.T) {
	h := newHarness(t, "a", "b")
	conv := h.direct("a", "b")

	page, err := h.queries.ReadMessages(h.ctx, conv.ID, "b", 10, "")
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
	assert.Empty(t, h.watermark(conv.ID, "b", domain.ReceiptRead))
}

func TestAutoMarkEqualsExplicitMarkAsRead(t *testing.T) {
	type outcome struct {
		markedLatest bool
		events       int
		unread       int64
	}
	run := func(explicit bool) outcome {
		h := newHarness(t, "a", "b")
		conv := h.direct("a", "b")
		h.send(conv.ID, "a", "1")
		last := h.send(conv.ID, "a", "2")
		if explicit {
			_, err := h.queries.MarkAsRead(h.ctx, conv.ID, "b", last.ID)
			require.NoError(t, err)
		} else {
			_, err := h.queries.ReadMessages(h.ctx, conv.ID, "b", 0, "")
			require.NoError(t, err)
		}
		n, err := h.receipts.UnreadCount(h.ctx, conv.ID, "b")
		require.NoError(t, err)
		return outcome{
			markedLatest: h.watermark(conv.ID, "b", domain.ReceiptRead) == last.ID,
			events:       len(h.receiptEvents("a")),
			unread:       n,
		}
	}

	auto := run(false)
	assert.Equal(t, run(true), auto)
	assert.Equal(t, outcome{markedLatest: true, events: 1, unread: 0}, auto)
}

func TestReadMessagesPagination(t *testing.T) {
	h := newHarness(t, "a", "b")
	conv := h.direct("a", "b")
	var sent []*domain.Message
	for i := 0; i < 25; i++ {
		sender := "a"
		if i%3 == 0 {
			sender = "b"
		}
		sent = append(sent, h.send(conv.ID, sender, "m"))
	}

	var seen []string
	cursor := ""
	for pages := 0; ; pages++ {
		require.Less(t, pages, 5)
		page, err := h.queries.ReadMessages(h.ctx, conv.ID, "a", 10, cursor)
		require.NoError(t, err)
		for _, v := range page.Messages {
			seen = append(seen, v.ID)
			if v.SenderID == "a" {
				require.NotNil(t, v.StatusReport, v.ID)
			} else {
				assert.Nil(t, v.StatusReport)
			}
		}
		if !page.HasMore {
			assert.Empty(t, page.NextCursor)
			break
		}
		assert.Equal(t, page.Messages[len(page.Messages)-1].ID, page.NextCursor)
		cursor = page.NextCursor
	}

	require.Len(t, seen, 25)
	for i, id := range seen {
		assert.Equal(t, sent[len(sent)-1-i].ID, id)
	}
}

func TestReadMessagesLimits(t *testing.T) {
	h := newHarness(t, "a", "b", "c")
	conv := h.direct("a", "b")
	for i := 0; i < 60; i++ {
		h.send(conv.ID, "a", "m")
	}

	page, err := h.queries.ReadMessages(h.ctx, conv.ID, "b", 500, "")
	require.NoError(t, err)
	assert.Len(t, page.Messages, 50)
	assert.True(t, page.HasMore)

	page, err = h.queries.ReadMessages(h.ctx, conv.ID, "b", -1, "")
	require.NoError(t, err)
	assert.Len(t, page.Messages, 20)

	_, err = h.queries.ReadMessages(h.ctx, conv.ID, "c", 10, "")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = h.queries.ReadMessages(h.ctx, conv.ID, "b", 10, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOwnMessagesCarryStatusInHistory(t *testing.T) {
	h := newHarness(t, "a", "b")
	conv := h.direct("a", "b")
	m1 := h.send(conv.ID, "a", "1")
	m2 := h.send(conv.ID, "a", "2")
	h.receipts.SubmitRead(h.ctx, conv.ID, "b", m1.ID)
	h.receipts.SubmitDelivered(h.ctx, conv.ID, "b", m2.ID)

	page, err := h.queries.ReadMessages(h.ctx, conv.ID, "a", 10, m2.ID)
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, domain.StatusRead, page.Messages[0].Status)

	page, err = h.queries.ReadMessages(h.ctx, conv.ID, "a", 10, "")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, page.Messages[0].Status)
	assert.Equal(t, domain.StatusRead, page.Messages[1].Status)
}

func TestListConversations(t *testing.T) {
	h := newHarness(t, "a", "b", "c", "d")
	h.store.PutUser(domain.Profile{ID: "b", Username: "bob", FullName: "Bob B", AvatarURL: "https://cdn/b.png"})
	h.store.AddContact(domain.Contact{OwnerID: "a", ContactUserID: "b", ContactName: "Bobby"})
	ab := h.direct("a", "b")
	ac := h.direct("a", "c")
	empty := h.direct("a", "d")

	h.send(ac.ID, "c", "from c 1")
	h.send(ac.ID, "c", "from c 2")
	mine := h.send(ab.ID, "a", "to b")
	h.receipts.SubmitRead(h.ctx, ab.ID, "b", mine.ID)
	h.store.Block("c", "a")

	rows, err := h.queries.ListConversations(h.ctx, "a")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, ab.ID, rows[0].ID)
	require.NotNil(t, rows[0].Contact)
	assert.Equal(t, "Bobby", rows[0].Contact.Name)
	assert.Equal(t, "Bob B", rows[0].Contact.FullName)
	assert.Nil(t, rows[0].Relationship, "contacts carry no relationship flags")
	assert.Equal(t, domain.StatusRead, rows[0].LastMessageStatus)
	assert.Nil(t, rows[0].LastMessageGroupStatus)
	assert.Nil(t, rows[0].UnreadCount)

	assert.Equal(t, ac.ID, rows[1].ID)
	require.NotNil(t, rows[1].UnreadCount)
	assert.EqualValues(t, 2, *rows[1].UnreadCount)
	assert.Empty(t, rows[1].LastMessageStatus)
	require.NotNil(t, rows[1].Relationship)
	assert.True(t, rows[1].Relationship.TheyBlocked)
	assert.False(t, rows[1].Relationship.CanMessage)
	assert.False(t, rows[1].Relationship.IsContact)

	assert.Equal(t, empty.ID, rows[2].ID)
	assert.Nil(t, rows[2].UnreadCount)
	assert.Empty(t, rows[2].LastMessageStatus)
	assert.Equal(t, "d", rows[2].Contact.Name)
}

func TestEnsureConversation(t *testing.T) {
	h := newHarness(t, "a", "b")

	_, err := h.queries.EnsureConversation(h.ctx, "a", "a")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = h.queries.EnsureConversation(h.ctx, "a", "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	res, err := h.queries.EnsureConversation(h.ctx, "a", "b")
	require.NoError(t, err)
	assert.Nil(t, res.LastMessage)
	assert.Len(t, res.Participants, 2)

	m := h.send(res.Conversation.ID, "b", "hey")
	again, err := h.queries.EnsureConversation(h.ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, res.Conversation.ID, again.Conversation.ID)
	require.NotNil(t, again.LastMessage)
	assert.Equal(t, m.ID, again.LastMessage.ID)
	assert.Equal(t, m.ID, h.watermark(res.Conversation.ID, "a", domain.ReceiptRead), "opening marks the peer's message read")

	own := h.send(res.Conversation.ID, "a", "back")
	_, err = h.queries.EnsureConversation(h.ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, m.ID, h.watermark(res.Conversation.ID, "a", domain.ReceiptRead), "own message does not move the watermark")
	assert.NotEqual(t, own.ID, h.watermark(res.Conversation.ID, "a", domain.ReceiptRead))
}

func TestMarkAsReadDefaultsToLatest(t *testing.T) {
	h := newHarness(t, "a", "b", "c")
	conv := h.direct("a", "b")

	res, err := h.queries.MarkAsRead(h.ctx, conv.ID, "b", "")
	require.NoError(t, err)
	assert.False(t, res.Advanced)

	h.send(conv.ID, "a", "1")
	last := h.send(conv.ID, "a", "2")

	res, err = h.queries.MarkAsRead(h.ctx, conv.ID, "b", "")
	require.NoError(t, err)
	assert.True(t, res.Advanced)
	assert.Equal(t, last.ID, res.LastReadMessageID)
	assert.EqualValues(t, 0, res.UnreadCount)

	res, err = h.queries.MarkAsRead(h.ctx, conv.ID, "b", last.ID)
	require.NoError(t, err)
	assert.False(t, res.Advanced)

	_, err = h.queries.MarkAsRead(h.ctx, conv.ID, "c", "")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestListRowStatusMatchesPushEventShape(t *testing.T) {
	h := newHarness(t, "a", "b", "c")
	group, err := h.messages.CreateGroup(h.ctx, "a", []string{"b", "c"})
	require.NoError(t, err)
	m := h.send(group.ID, "a", "hello group")
	_, err = h.receipts.MarkRead(h.ctx, group.ID, "b", m.ID)
	require.NoError(t, err)

	rows, err := h.queries.ListConversations(h.ctx, "a")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	raw, err := json.Marshal(rows[0])
	require.NoError(t, err)
	var row map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &row))

	var st domain.Status
	require.NoError(t, json.Unmarshal(row["last_message_status"], &st), "status must be a bare string")
	assert.Equal(t, h.status(group, m).Status, st)

	var counts domain.GroupStatus
	require.NoError(t, json.Unmarshal(row["last_message_group_status"], &counts))
	assert.Equal(t, 1, counts.ReadCount)
	assert.Equal(t, 2, counts.MemberCountExcludingSender)

	// the sender's own push row event uses the same key with the same value type
	var pushed domain.ConversationEvent
	for _, ev := range h.conversationEvents("a") {
		if ev.LastMessageStatus != "" {
			pushed = ev
		}
	}
	assert.NotEmpty(t, pushed.LastMessageStatus)
}
