// Package status derives sent/delivered/read for an outgoing message from the
// conversation's receipt watermarks. Nothing here touches storage; callers
// resolve watermark positions first and must not reuse results across requests.
package status

import (
	"time"

	"github.com/fathima-sithara/chat-core/internal/domain"
)

type Input struct {
	Message      *domain.Message
	Conversation *domain.Conversation
	Receipts     []*domain.Receipt
	// Positions maps watermark message ids to their server_ts. An id missing
	// from the map covers nothing.
	Positions map[string]time.Time
}

// WatermarkIDs lists the distinct message ids the receipts point at, for the
// caller to resolve into Positions.
func WatermarkIDs(receipts []*domain.Receipt) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range receipts {
		for _, id := range []string{r.LastDeliveredMessageID, r.LastReadMessageID} {
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func covers(in Input, watermark string) bool {
	if watermark == "" {
		return false
	}
	if watermark == in.Message.ID {
		return true
	}
	ts, ok := in.Positions[watermark]
	return ok && !ts.Before(in.Message.ServerTS)
}

func Derive(in Input) domain.StatusReport {
	byUser := make(map[string]*domain.Receipt, len(in.Receipts))
	for _, r := range in.Receipts {
		byUser[r.UserID] = r
	}
	others := in.Conversation.Others(in.Message.SenderID)

	if in.Conversation.Type == domain.ConversationDirect {
		var r *domain.Receipt
		if len(others) > 0 {
			r = byUser[others[0]]
		}
		switch {
		case covers(in, r.Watermark(domain.ReceiptRead)):
			return domain.StatusReport{Status: domain.StatusRead}
		case covers(in, r.Watermark(domain.ReceiptDelivered)):
			return domain.StatusReport{Status: domain.StatusDelivered}
		}
		return domain.StatusReport{Status: domain.StatusSent}
	}

	g := &domain.GroupStatus{MemberCountExcludingSender: len(others)}
	for _, uid := range others {
		r := byUser[uid]
		// read implies delivered
		read := covers(in, r.Watermark(domain.ReceiptRead))
		if read {
			g.ReadCount++
		}
		if read || covers(in, r.Watermark(domain.ReceiptDelivered)) {
			g.DeliveredCount++
		}
	}
	g.IsFullyDelivered = g.DeliveredCount == g.MemberCountExcludingSender
	g.IsFullyRead = g.ReadCount == g.MemberCountExcludingSender

	st := domain.StatusSent
	switch {
	case g.IsFullyRead:
		st = domain.StatusRead
	case g.DeliveredCount > 0:
		st = domain.StatusDelivered
	}
	return domain.StatusReport{Status: st, GroupStatus: g}
}
