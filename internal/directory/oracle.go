package directory

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fathima-sithara/chat-core/internal/domain"
	"github.com/fathima-sithara/chat-core/internal/repository"
	"go.uber.org/zap"
)

type Store interface {
	repository.UserStore
	repository.BlockStore
	repository.ContactStore
}

// Oracle answers block, profile and contact questions for the engines.
// Membership lives on the conversation itself.
type Oracle struct {
	store Store
	cache Cache
	ttl   time.Duration
	log   *zap.Logger
}

// NewOracle builds an Oracle. cache may be nil.
func NewOracle(store Store, cache Cache, ttl time.Duration, log *zap.Logger) *Oracle {
	return &Oracle{store: store, cache: cache, ttl: ttl, log: log.Named("directory")}
}

// BlockStatus reports blocks in both directions between me and other.
func (o *Oracle) BlockStatus(ctx context.Context, me, other string) (domain.BlockStatus, error) {
	var st domain.BlockStatus
	var err error
	if st.IBlocked, err = o.store.IsBlocked(ctx, me, other); err != nil {
		return st, err
	}
	if st.TheyBlocked, err = o.store.IsBlocked(ctx, other, me); err != nil {
		return st, err
	}
	return st, nil
}

func (o *Oracle) CanMessage(ctx context.Context, from, to string) (bool, error) {
	st, err := o.BlockStatus(ctx, from, to)
	if err != nil {
		return false, err
	}
	return st.CanMessage(), nil
}

func profileKey(userID string) string { return "profile:" + userID }

// Profile reads through the cache. Cache failures only cost a store read.
func (o *Oracle) Profile(ctx context.Context, userID string) (*domain.Profile, error) {
	if o.cache != nil {
		if raw, err := o.cache.Get(ctx, profileKey(userID)); err == nil {
			var p domain.Profile
			if err := json.Unmarshal([]byte(raw), &p); err == nil {
				return &p, nil
			}
		} else if !errors.Is(err, ErrCacheMiss) {
			o.log.Warn("profile cache get", zap.String("user_id", userID), zap.Error(err))
		}
	}

	p, err := o.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if o.cache != nil {
		b, _ := json.Marshal(p)
		if err := o.cache.Set(ctx, profileKey(userID), string(b), o.ttl); err != nil {
			o.log.Warn("profile cache set", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return p, nil
}

// Contacts returns owner's address book keyed by contact user id.
func (o *Oracle) Contacts(ctx context.Context, ownerID string) (map[string]domain.Contact, error) {
	list, err := o.store.ListContacts(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.Contact, len(list))
	for _, c := range list {
		out[c.ContactUserID] = c
	}
	return out, nil
}

// DisplayName labels userID as viewerID sees them. Lookup errors degrade to
// the profile name, then to an empty string.
func (o *Oracle) DisplayName(ctx context.Context, viewerID, userID string) string {
	var contactName string
	if contacts, err := o.Contacts(ctx, viewerID); err == nil {
		contactName = contacts[userID].ContactName
	}
	p, err := o.Profile(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		o.log.Warn("display name lookup", zap.String("user_id", userID), zap.Error(err))
	}
	return p.DisplayName(contactName)
}
