package fanout

import (
	"encoding/json"

	"github.com/fathima-sithara/chat-core/internal/broker"
	"github.com/fathima-sithara/chat-core/internal/domain"
)

type Family string

const (
	FamilyMessages      Family = "messages"
	FamilyReceipts      Family = "receipts"
	FamilyConversations Family = "conversations"
)

type Publication struct {
	Topic   string
	Family  Family
	Payload []byte
}

// The event types contain only strings, numbers and pointers to them, so
// marshalling cannot fail.
func mustJSON(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func MessageTo(userID string, ev domain.MessageEvent) Publication {
	return Publication{Topic: broker.UserMessages(userID), Family: FamilyMessages, Payload: mustJSON(ev)}
}

func ReceiptTo(userID string, ev domain.ReceiptEvent) Publication {
	return Publication{Topic: broker.UserReceipts(userID), Family: FamilyReceipts, Payload: mustJSON(ev)}
}

func ConversationTo(userID string, ev domain.ConversationEvent) Publication {
	return Publication{Topic: broker.UserConversations(userID), Family: FamilyConversations, Payload: mustJSON(ev)}
}
