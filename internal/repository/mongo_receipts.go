package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fathima-sithara/chat-core/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *MongoStore) GetReceipt(ctx context.Context, conversationID, userID string) (*domain.Receipt, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	var r domain.Receipt
	filter := bson.M{"conversation_id": conversationID, "user_id": userID}
	if err := s.receipts.FindOne(ctx, filter).Decode(&r); err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}

func (s *MongoStore) ListReceipts(ctx context.Context, conversationID string) ([]*domain.Receipt, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	cur, err := s.receipts.Find(ctx, bson.M{"conversation_id": conversationID})
	if err != nil {
		return nil, mapErr(err)
	}
	defer cur.Close(ctx)

	out := []*domain.Receipt{}
	for cur.Next(ctx) {
		var r domain.Receipt
		if err := cur.Decode(&r); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, mapErr(cur.Err())
}

func watermarkFields(kind domain.ReceiptKind) (idField, atField string) {
	if kind == domain.ReceiptRead {
		return "last_read_message_id", "last_read_at"
	}
	return "last_delivered_message_id", "last_delivered_at"
}

// AdvanceWatermark is a compare-and-set upsert. When another writer moved the
// watermark first the filter misses, the upsert collides with the unique
// (conversation_id, user_id) index and the swap reports false.
func (s *MongoStore) AdvanceWatermark(ctx context.Context, kind domain.ReceiptKind, conversationID, userID, expected, next string, at time.Time) (bool, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	idField, atField := watermarkFields(kind)
	filter := bson.M{"conversation_id": conversationID, "user_id": userID}
	if expected == "" {
		filter[idField] = nil
	} else {
		filter[idField] = expected
	}
	now := time.Now().UTC()
	update := bson.M{
		"$set":         bson.M{idField: next, atField: at, "updated_at": now},
		"$setOnInsert": bson.M{"created_at": now},
	}
	res, err := s.receipts.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		err = mapErr(err)
		if errors.Is(err, domain.ErrConflict) {
			return false, nil
		}
		return false, err
	}
	return res.MatchedCount > 0 || res.UpsertedCount > 0, nil
}
