package repository

import (
	"context"
	"time"

	"github.com/fathima-sithara/chat-core/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *MongoStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	var c domain.Conversation
	if err := s.conversations.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (s *MongoStore) FindDirect(ctx context.Context, pairKey string) (*domain.Conversation, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	var c domain.Conversation
	filter := bson.M{"type": domain.ConversationDirect, "pair_key": pairKey}
	if err := s.conversations.FindOne(ctx, filter).Decode(&c); err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (s *MongoStore) InsertConversation(ctx context.Context, c *domain.Conversation) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	_, err := s.conversations.InsertOne(ctx, c)
	return mapErr(err)
}

func (s *MongoStore) ListConversationsForUser(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	opts := options.Find().SetSort(bson.D{{Key: "last_message_at", Value: -1}, {Key: "updated_at", Value: -1}})
	cur, err := s.conversations.Find(ctx, bson.M{"participant_ids": userID}, opts)
	if err != nil {
		return nil, mapErr(err)
	}
	defer cur.Close(ctx)

	out := []*domain.Conversation{}
	for cur.Next(ctx) {
		var c domain.Conversation
		if err := cur.Decode(&c); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, mapErr(cur.Err())
}

func (s *MongoStore) TouchLastMessage(ctx context.Context, m *domain.Message) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	filter := bson.M{
		"_id": m.ConversationID,
		"$or": bson.A{
			bson.M{"last_message_at": nil},
			bson.M{"last_message_at": bson.M{"$lt": m.ServerTS}},
		},
	}
	update := bson.M{"$set": bson.M{
		"last_message_at":        m.ServerTS,
		"last_message_preview":   m.Preview(),
		"last_message_id":        m.ID,
		"last_message_sender_id": m.SenderID,
		"updated_at":             time.Now().UTC(),
	}}
	_, err := s.conversations.UpdateOne(ctx, filter, update)
	return mapErr(err)
}
