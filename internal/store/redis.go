package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia/marketplace-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the affected keys;
// reads check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (s *CachedStore) InsertTrade(ctx context.Context, rec *model.TradeRecord) error {
	if err := s.primary.InsertTrade(ctx, rec); err != nil {
		return err
	}
	// Invalidate; next read re-populates.
	s.rdb.Del(ctx, assetTradesKey(rec.AssetID), actorTradesKey(rec.Actor))
	return nil
}

func (s *CachedStore) TradesByAsset(ctx context.Context, assetID string) ([]model.TradeRecord, error) {
	key := assetTradesKey(assetID)
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var records []model.TradeRecord
		if json.Unmarshal(data, &records) == nil {
			return records, nil
		}
	}

	records, err := s.primary.TradesByAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, key, records)
	return records, nil
}

func (s *CachedStore) TradesByActor(ctx context.Context, actor model.Address) ([]model.TradeRecord, error) {
	key := actorTradesKey(actor)
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var records []model.TradeRecord
		if json.Unmarshal(data, &records) == nil {
			return records, nil
		}
	}

	records, err := s.primary.TradesByActor(ctx, actor)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, key, records)
	return records, nil
}

func (s *CachedStore) cache(ctx context.Context, key string, records []model.TradeRecord) {
	data, err := json.Marshal(records)
	if err != nil {
		return
	}
	s.rdb.Set(ctx, key, data, s.ttl)
}

func assetTradesKey(assetID string) string {
	return fmt.Sprintf("trades:asset:%s", assetID)
}

func actorTradesKey(actor model.Address) string {
	return fmt.Sprintf("trades:actor:%s", actor)
}
