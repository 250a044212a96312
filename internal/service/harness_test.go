package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/fathima-sithara/chat-core/internal/broker"
	"github.com/fathima-sithara/chat-core/internal/directory"
	"github.com/fathima-sithara/chat-core/internal/domain"
	"github.com/fathima-sithara/chat-core/internal/fanout"
	"github.com/fathima-sithara/chat-core/internal/repository"
	"github.com/fathima-sithara/chat-core/internal/utils"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type pushCall struct {
	messageID  string
	recipients []string
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []pushCall
}

func (n *recordingNotifier) Notify(m *domain.Message, recipients []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, pushCall{messageID: m.ID, recipients: recipients})
}

type harness struct {
	t        *testing.T
	ctx      context.Context
	store    *repository.MemoryStore
	broker   *broker.Memory
	disp     *fanout.Dispatcher
	push     *recordingNotifier
	messages *MessageService
	receipts *ReceiptService
	queries  *QueryService
}

func newHarness(t *testing.T, users ...string) *harness {
	t.Helper()
	return newWrappedHarness(t, nil, users...)
}

// newWrappedHarness lets a test interpose on store calls made by the engines.
func newWrappedHarness(t *testing.T, wrap func(*repository.MemoryStore) repository.Store, users ...string) *harness {
	t.Helper()
	log := zap.NewNop()
	mem := repository.NewMemoryStore()
	for _, u := range users {
		mem.PutUser(domain.Profile{ID: u, Username: u})
	}
	var store repository.Store = mem
	if wrap != nil {
		store = wrap(mem)
	}
	b := broker.NewMemory()
	disp := fanout.NewDispatcher(b, log, 4, 1024)
	t.Cleanup(disp.Close)

	locks := NewConversationLocks(16)
	dir := directory.NewOracle(store, nil, time.Minute, log)
	push := &recordingNotifier{}
	receipts := NewReceiptService(store, disp, locks, log)
	messages := NewMessageService(store, disp, push, dir, receipts, utils.NewMonotonicClock(), locks, log)
	queries := NewQueryService(store, dir, messages, receipts, log)

	return &harness{
		t:        t,
		ctx:      context.Background(),
		store:    mem,
		broker:   b,
		disp:     disp,
		push:     push,
		messages: messages,
		receipts: receipts,
		queries:  queries,
	}
}

func (h *harness) flush() {
	h.t.Helper()
	require.NoError(h.t, h.disp.Flush(h.ctx))
}

func (h *harness) direct(a, b string) *domain.Conversation {
	h.t.Helper()
	c, err := h.messages.EnsureDirect(h.ctx, a, b)
	require.NoError(h.t, err)
	return c
}

func (h *harness) send(conv, sender, text string) *domain.Message {
	h.t.Helper()
	m, err := h.messages.IngestMessage(h.ctx, conv, sender, domain.Payload{Type: domain.MessageText, Text: text}, "")
	require.NoError(h.t, err)
	return m
}

func (h *harness) watermark(conv, user string, kind domain.ReceiptKind) string {
	h.t.Helper()
	r, err := h.store.GetReceipt(h.ctx, conv, user)
	if err != nil {
		require.ErrorIs(h.t, err, domain.ErrNotFound)
		return ""
	}
	return r.Watermark(kind)
}

func (h *harness) status(conv *domain.Conversation, m *domain.Message) domain.StatusReport {
	h.t.Helper()
	st, err := h.receipts.Statuses(h.ctx, conv, m)
	require.NoError(h.t, err)
	return st[m.ID]
}

func events[T any](t *testing.T, raw [][]byte) []T {
	t.Helper()
	out := make([]T, 0, len(raw))
	for _, r := range raw {
		var v T
		require.NoError(t, json.Unmarshal(r, &v))
		out = append(out, v)
	}
	return out
}

func (h *harness) conversationEvents(user string) []domain.ConversationEvent {
	h.flush()
	return events[domain.ConversationEvent](h.t, h.broker.On(broker.UserConversations(user)))
}

func (h *harness) receiptEvents(user string) []domain.ReceiptEvent {
	h.flush()
	return events[domain.ReceiptEvent](h.t, h.broker.On(broker.UserReceipts(user)))
}

func (h *harness) messageEvents(user string) []domain.MessageEvent {
	h.flush()
	return events[domain.MessageEvent](h.t, h.broker.On(broker.UserMessages(user)))
}
