package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"legacygrid-billing/internal/domain/model"
	"legacygrid-billing/internal/domain/ports/repository"
	"legacygrid-billing/internal/infra/metrics"
	red "legacygrid-billing/internal/infra/redis"
)

var _ repository.TierRepository = (*tierRepoCacheDecorator)(nil)

// tierRepoCacheDecorator caches tier lookups in Redis. Tiers change rarely
// and are read on every charge, so a one hour TTL is plenty.
type tierRepoCacheDecorator struct {
	inner repository.TierRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewTierRepoCacheDecorator(inner repository.TierRepository, cache red.RedisClient) repository.TierRepository {
	return &tierRepoCacheDecorator{
		inner: inner,
		cache: cache,
		ttl:   1 * time.Hour,
	}
}

func (d *tierRepoCacheDecorator) FindByID(ctx context.Context, qx repository.Tx, id string) (*model.SubscriptionTier, error) {
	key := fmt.Sprintf("tier:id:%s", id)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		metrics.IncCacheRequest("tier", "hit")
		var tier model.SubscriptionTier
		if json.Unmarshal([]byte(val), &tier) == nil {
			return &tier, nil
		}
	}

	metrics.IncCacheRequest("tier", "miss")
	tier, err := d.inner.FindByID(ctx, qx, id)
	if err != nil {
		return nil, err
	}
	if tier != nil {
		bytes, _ := json.Marshal(tier)
		d.cache.Set(ctx, key, bytes, d.ttl)
	}
	return tier, nil
}

func (d *tierRepoCacheDecorator) FindByName(ctx context.Context, qx repository.Tx, name string) (*model.SubscriptionTier, error) {
	key := fmt.Sprintf("tier:name:%s", name)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		metrics.IncCacheRequest("tier", "hit")
		var tier model.SubscriptionTier
		if json.Unmarshal([]byte(val), &tier) == nil {
			return &tier, nil
		}
	}

	metrics.IncCacheRequest("tier", "miss")
	tier, err := d.inner.FindByName(ctx, qx, name)
	if err != nil {
		return nil, err
	}
	if tier != nil {
		bytes, _ := json.Marshal(tier)
		d.cache.Set(ctx, key, bytes, d.ttl)
	}
	return tier, nil
}

func (d *tierRepoCacheDecorator) ListActive(ctx context.Context, qx repository.Tx) ([]*model.SubscriptionTier, error) {
	key := "tiers:active"
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		metrics.IncCacheRequest("tier_list", "hit")
		var tiers []*model.SubscriptionTier
		if json.Unmarshal([]byte(val), &tiers) == nil {
			return tiers, nil
		}
	}

	metrics.IncCacheRequest("tier_list", "miss")
	tiers, err := d.inner.ListActive(ctx, qx)
	if err != nil {
		return nil, err
	}
	if len(tiers) > 0 {
		bytes, _ := json.Marshal(tiers)
		d.cache.Set(ctx, key, bytes, d.ttl)
	}
	return tiers, nil
}

// Writes invalidate both the per-tier keys and the active list.
func (d *tierRepoCacheDecorator) Save(ctx context.Context, qx repository.Tx, t *model.SubscriptionTier) error {
	d.cache.Del(ctx,
		fmt.Sprintf("tier:id:%s", t.ID),
		fmt.Sprintf("tier:name:%s", t.Name),
		"tiers:active",
	)
	return d.inner.Save(ctx, qx, t)
}
