package repository

import (
	"context"
	"fmt"

	"github.com/fathima-sithara/chat-core/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// userDoc is the slice of the shared users collection the core reads. Users
// written by the auth service carry ObjectID keys; seeded users may use strings.
type userDoc struct {
	ID        interface{} `bson:"_id"`
	Username  string      `bson:"username"`
	FullName  string      `bson:"full_name"`
	AvatarURL string      `bson:"avatar_url"`
}

func (s *MongoStore) IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	n, err := s.blocks.CountDocuments(ctx, bson.M{"blocker_id": blockerID, "blocked_id": blockedID})
	if err != nil {
		return false, mapErr(err)
	}
	return n > 0, nil
}

func (s *MongoStore) ListContacts(ctx context.Context, ownerID string) ([]domain.Contact, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	cur, err := s.contacts.Find(ctx, bson.M{"owner_id": ownerID})
	if err != nil {
		return nil, mapErr(err)
	}
	defer cur.Close(ctx)
	var out []domain.Contact
	if err := cur.All(ctx, &out); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func (s *MongoStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var key interface{} = userID
	if oid, err := primitive.ObjectIDFromHex(userID); err == nil {
		key = bson.M{"$in": bson.A{oid, userID}}
	}
	var u userDoc
	if err := s.users.FindOne(ctx, bson.M{"_id": key}).Decode(&u); err != nil {
		return nil, mapErr(err)
	}
	return &domain.Profile{
		ID:        idString(u.ID),
		Username:  u.Username,
		FullName:  u.FullName,
		AvatarURL: u.AvatarURL,
	}, nil
}

func (s *MongoStore) ListDeviceTokens(ctx context.Context, userID string) ([]domain.DeviceToken, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	cur, err := s.deviceTokens.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, mapErr(err)
	}
	defer cur.Close(ctx)
	var out []domain.DeviceToken
	if err := cur.All(ctx, &out); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func idString(v interface{}) string {
	switch id := v.(type) {
	case primitive.ObjectID:
		return id.Hex()
	case string:
		return id
	default:
		return fmt.Sprint(id)
	}
}
