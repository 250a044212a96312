package domain

import "time"

type ReceiptKind string

const (
	ReceiptDelivered ReceiptKind = "delivered_up_to"
	ReceiptRead      ReceiptKind = "read_up_to"
)

func (k ReceiptKind) Valid() bool {
	return k == ReceiptDelivered || k == ReceiptRead
}

// Receipt holds the delivered/read watermarks of one user in one conversation.
type Receipt struct {
	ConversationID         string     `bson:"conversation_id" json:"conversation_id"`
	UserID                 string     `bson:"user_id" json:"user_id"`
	LastDeliveredMessageID string     `bson:"last_delivered_message_id,omitempty" json:"last_delivered_message_id,omitempty"`
	LastDeliveredAt        *time.Time `bson:"last_delivered_at,omitempty" json:"last_delivered_at,omitempty"`
	LastReadMessageID      string     `bson:"last_read_message_id,omitempty" json:"last_read_message_id,omitempty"`
	LastReadAt             *time.Time `bson:"last_read_at,omitempty" json:"last_read_at,omitempty"`
	CreatedAt              time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt              time.Time  `bson:"updated_at" json:"updated_at"`
}

// Watermark returns the message id currently held for kind.
func (r *Receipt) Watermark(kind ReceiptKind) string {
	if r == nil {
		return ""
	}
	if kind == ReceiptRead {
		return r.LastReadMessageID
	}
	return r.LastDeliveredMessageID
}

type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

type GroupStatus struct {
	DeliveredCount             int  `json:"delivered_count"`
	ReadCount                  int  `json:"read_count"`
	MemberCountExcludingSender int  `json:"member_count_excluding_sender"`
	IsFullyDelivered           bool `json:"is_fully_delivered"`
	IsFullyRead                bool `json:"is_fully_read"`
}

// StatusReport is the derived status of an outgoing message. Group counts are
// present only for group conversations.
type StatusReport struct {
	Status Status `json:"status"`
	*GroupStatus
}
