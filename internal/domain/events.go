package domain

// Wire payloads published on the per-user topics and accepted on the receipts
// ingress topic. Timestamps are RFC3339 strings.

const EventTypeMessage = "message"

const (
	ConversationActionUpdated      = "updated"
	ConversationActionMessagesRead = "messages_read"
)

type MessageEventPayload struct {
	Text             string `json:"text,omitempty"`
	Media            *Media `json:"media,omitempty"`
	ReplyToMessageID string `json:"reply_to_message_id,omitempty"`
}

type MessageEvent struct {
	Type           string              `json:"type"`
	MessageID      string              `json:"message_id"`
	ConversationID string              `json:"conversation_id"`
	SenderID       string              `json:"sender_id"`
	ServerTS       string              `json:"server_ts"`
	MessageType    MessageType         `json:"message_type"`
	Payload        MessageEventPayload `json:"payload"`
}

type ReceiptEvent struct {
	Type                   ReceiptKind `json:"type"`
	ConversationID         string      `json:"conversation_id"`
	ActorUserID            string      `json:"actor_user_id"`
	LastDeliveredMessageID string      `json:"last_delivered_message_id,omitempty"`
	LastReadMessageID      string      `json:"last_read_message_id,omitempty"`
	TS                     string      `json:"ts"`
}

type ConversationEvent struct {
	ConversationID      string `json:"conversation_id"`
	Action              string `json:"action"`
	LastMessageAt       string `json:"last_message_at,omitempty"`
	LastMessagePreview  string `json:"last_message_preview,omitempty"`
	LastMessageSenderID string `json:"last_message_sender_id,omitempty"`
	LastMessageStatus   Status `json:"last_message_status,omitempty"`
	UnreadCount         *int64 `json:"unread_count,omitempty"`
	ReadBy              string `json:"read_by,omitempty"`
	ReadAt              string `json:"read_at,omitempty"`
}

// ReceiptIngress is what clients publish on the receipts ingress topic.
type ReceiptIngress struct {
	Type                   ReceiptKind `json:"type"`
	ConversationID         string      `json:"conversation_id"`
	ActorUserID            string      `json:"actor_user_id"`
	LastDeliveredMessageID string      `json:"last_delivered_message_id,omitempty"`
	LastReadMessageID      string      `json:"last_read_message_id,omitempty"`
	TS                     string      `json:"ts,omitempty"`
}

// PrivateCommentCreated is emitted by the posts service when a comment is
// delivered privately to the post owner.
type PrivateCommentCreated struct {
	CommentID   string `json:"comment_id"`
	PostID      string `json:"post_id"`
	PostOwnerID string `json:"post_owner_id"`
	CommenterID string `json:"commenter_id"`
	CommentText string `json:"comment_text"`
}
