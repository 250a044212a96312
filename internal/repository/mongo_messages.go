package repository

import (
	"context"
	"time"

	"github.com/fathima-sithara/chat-core/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var newestFirst = bson.D{{Key: "server_ts", Value: -1}, {Key: "message_id", Value: -1}}

func (s *MongoStore) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	var m domain.Message
	if err := s.messages.FindOne(ctx, bson.M{"message_id": id}).Decode(&m); err != nil {
		return nil, mapErr(err)
	}
	return &m, nil
}

func (s *MongoStore) InsertMessage(ctx context.Context, m *domain.Message) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	_, err := s.messages.InsertOne(ctx, m)
	return mapErr(err)
}

func (s *MongoStore) ListMessages(ctx context.Context, conversationID string, limit int, before *Cursor) ([]*domain.Message, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	filter := bson.M{"conversation_id": conversationID}
	if before != nil {
		filter["$or"] = bson.A{
			bson.M{"server_ts": bson.M{"$lt": before.ServerTS}},
			bson.M{"server_ts": before.ServerTS, "message_id": bson.M{"$lt": before.MessageID}},
		}
	}
	opts := options.Find().SetSort(newestFirst).SetLimit(int64(limit))
	cur, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, mapErr(err)
	}
	defer cur.Close(ctx)

	out := []*domain.Message{}
	for cur.Next(ctx) {
		var m domain.Message
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, mapErr(cur.Err())
}

func (s *MongoStore) LatestMessage(ctx context.Context, conversationID string) (*domain.Message, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	var m domain.Message
	opts := options.FindOne().SetSort(newestFirst)
	if err := s.messages.FindOne(ctx, bson.M{"conversation_id": conversationID}, opts).Decode(&m); err != nil {
		return nil, mapErr(err)
	}
	return &m, nil
}

func (s *MongoStore) CountFromOthers(ctx context.Context, conversationID, userID string, after *time.Time) (int64, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	filter := bson.M{
		"conversation_id": conversationID,
		"sender_id":       bson.M{"$ne": userID},
	}
	if after != nil {
		filter["server_ts"] = bson.M{"$gt": *after}
	}
	n, err := s.messages.CountDocuments(ctx, filter)
	return n, mapErr(err)
}
