package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cipherbet/oracled/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. The most
// recently posted record per asset is stored at key "price:{asset}" with
// fields "day", "price", and "posted_at" (Unix seconds).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(asset domain.Asset) string {
	return "price:" + asset.String()
}

// SetLatest stores the most recently posted price record for an asset.
func (pc *PriceCache) SetLatest(ctx context.Context, rec domain.PriceRecord) error {
	key := priceKey(rec.Asset)
	fields := map[string]interface{}{
		"day":       strconv.FormatUint(uint64(rec.Day), 10),
		"price":     strconv.FormatUint(rec.Price, 10),
		"posted_at": strconv.FormatInt(rec.PostedAt.Unix(), 10),
	}
	if err := pc.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set latest price %s: %w", rec.Asset, err)
	}
	return nil
}

// GetLatest retrieves the most recently posted price record for an asset.
// It returns domain.ErrNotFound when no price has been cached yet.
func (pc *PriceCache) GetLatest(ctx context.Context, asset domain.Asset) (domain.PriceRecord, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(asset)).Result()
	if err != nil {
		return domain.PriceRecord{}, fmt.Errorf("redis: get latest price %s: %w", asset, err)
	}
	if len(vals) == 0 {
		return domain.PriceRecord{}, domain.ErrNotFound
	}

	day, err := strconv.ParseUint(vals["day"], 10, 32)
	if err != nil {
		return domain.PriceRecord{}, fmt.Errorf("redis: parse day for %s: %w", asset, err)
	}
	price, err := strconv.ParseUint(vals["price"], 10, 64)
	if err != nil {
		return domain.PriceRecord{}, fmt.Errorf("redis: parse price for %s: %w", asset, err)
	}
	postedAt, err := strconv.ParseInt(vals["posted_at"], 10, 64)
	if err != nil {
		return domain.PriceRecord{}, fmt.Errorf("redis: parse posted_at for %s: %w", asset, err)
	}

	return domain.PriceRecord{
		Asset:    asset,
		Day:      domain.DayIndex(day),
		Price:    price,
		PostedAt: time.Unix(postedAt, 0).UTC(),
	}, nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
