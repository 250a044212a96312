package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Indexes is the migration contract: collection name to the indexes it must carry.
var Indexes = map[string][]mongo.IndexModel{
	colMessages: {
		{
			Keys:    bson.D{{Key: "message_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("message_id_unique"),
		},
		{
			Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "server_ts", Value: -1}},
			Options: options.Index().SetName("conversation_ts"),
		},
		{
			Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "sender_id", Value: 1}, {Key: "server_ts", Value: -1}},
			Options: options.Index().SetName("conversation_sender_ts"),
		},
	},
	colReceipts: {
		{
			Keys:    bson.D{{Key: "conversation_id", Value: 1}, {Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("conversation_user_unique"),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "updated_at", Value: -1}},
			Options: options.Index().SetName("user_updated"),
		},
	},
	colConversations: {
		{
			// one direct conversation per unordered pair
			Keys: bson.D{{Key: "pair_key", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("direct_pair_unique").
				SetPartialFilterExpression(bson.M{"type": "direct"}),
		},
		{
			Keys:    bson.D{{Key: "participant_ids", Value: 1}, {Key: "last_message_at", Value: -1}},
			Options: options.Index().SetName("participant_last_message"),
		},
	},
	colBlocks: {
		{
			Keys:    bson.D{{Key: "blocker_id", Value: 1}, {Key: "blocked_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("blocker_blocked_unique"),
		},
	},
	colContacts: {
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "contact_user_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("owner_contact_unique"),
		},
	},
	colDeviceTokens: {
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "device_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("user_device_unique"),
		},
	},
}

// EnsureIndexes creates every index in Indexes. It is safe to run repeatedly.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	for name, models := range Indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}
