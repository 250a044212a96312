package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fathima-sithara/chat-core/internal/domain"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	colConversations = "conversations"
	colMessages      = "messages"
	colReceipts      = "receipts"
	colBlocks        = "blocks"
	colContacts      = "contacts"
	colUsers         = "users"
	colDeviceTokens  = "device_tokens"
)

type MongoStore struct {
	db            *mongo.Database
	conversations *mongo.Collection
	messages      *mongo.Collection
	receipts      *mongo.Collection
	blocks        *mongo.Collection
	contacts      *mongo.Collection
	users         *mongo.Collection
	deviceTokens  *mongo.Collection
	timeout       time.Duration
}

func Connect(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		db:            db,
		conversations: db.Collection(colConversations),
		messages:      db.Collection(colMessages),
		receipts:      db.Collection(colReceipts),
		blocks:        db.Collection(colBlocks),
		contacts:      db.Collection(colContacts),
		users:         db.Collection(colUsers),
		deviceTokens:  db.Collection(colDeviceTokens),
		timeout:       5 * time.Second,
	}
}

func (s *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return mapErr(s.db.Client().Ping(ctx, readpref.Primary()))
}

func (s *MongoStore) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.timeout)
}

// mapErr translates driver errors into the domain taxonomy.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return domain.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	case mongo.IsTimeout(err), mongo.IsNetworkError(err), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	return err
}
