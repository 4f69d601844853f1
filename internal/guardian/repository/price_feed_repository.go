package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"stop-loss-guardian/internal/guardian/config"
	"stop-loss-guardian/internal/guardian/dto"
	"stop-loss-guardian/pkg/common"
	"stop-loss-guardian/pkg/logger"
)

// PriceFeedRepository reads the broker-sync hashes that another process keeps in Redis.
type PriceFeedRepository interface {
	Snapshot(ctx context.Context) (*dto.FeedSnapshot, error)
	GetAccountState(ctx context.Context) (*dto.AccountState, error)
}

type priceFeedRepository struct {
	rdb   redis.UniversalClient
	cfg   config.Feed
	cache *cache.Cache
	log   *logger.Logger
	now   func() time.Time
}

func NewPriceFeedRepository(rdb redis.UniversalClient, cfg config.Feed, log *logger.Logger) PriceFeedRepository {
	return &priceFeedRepository{
		rdb:   rdb,
		cfg:   cfg,
		cache: cache.New(cfg.SnapshotTTL, 10*time.Minute),
		log:   log,
		now:   time.Now,
	}
}

func (r *priceFeedRepository) Snapshot(ctx context.Context) (*dto.FeedSnapshot, error) {
	if r.cfg.SnapshotTTL > 0 {
		if cached, ok := r.cache.Get(common.CacheKeyFeedSnapshot); ok {
			return cached.(*dto.FeedSnapshot), nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()

	pipe := r.rdb.Pipeline()
	positionsCmd := pipe.HGetAll(ctx, r.cfg.PositionsKey)
	stopsCmd := pipe.HGetAll(ctx, r.cfg.StopOrdersKey)
	earningsCmd := pipe.HGetAll(ctx, r.cfg.EarningsKey)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read price feed: %w", err)
	}

	snapshot := &dto.FeedSnapshot{
		Available:  true,
		FetchedAt:  r.now(),
		Positions:  make(map[string]dto.BrokerPosition),
		StopOrders: make(map[string]dto.BrokerStopOrder),
		Earnings:   make(map[string]time.Time),
	}

	for symbol, raw := range positionsCmd.Val() {
		var p dto.BrokerPosition
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			r.log.Warn("Skipping malformed broker position", logger.StringField("symbol", symbol), logger.ErrorField(err))
			continue
		}
		p.Symbol = normalizeSymbol(symbol)
		snapshot.Positions[p.Symbol] = p
	}

	for symbol, raw := range stopsCmd.Val() {
		var o dto.BrokerStopOrder
		if err := json.Unmarshal([]byte(raw), &o); err != nil {
			r.log.Warn("Skipping malformed stop order", logger.StringField("symbol", symbol), logger.ErrorField(err))
			continue
		}
		if !o.StopPrice.IsPositive() {
			continue
		}
		o.Symbol = normalizeSymbol(symbol)
		snapshot.StopOrders[o.Symbol] = o
	}

	for symbol, raw := range earningsCmd.Val() {
		date, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
		if err != nil {
			r.log.Warn("Skipping malformed earnings date", logger.StringField("symbol", symbol), logger.StringField("value", raw))
			continue
		}
		snapshot.Earnings[normalizeSymbol(symbol)] = date
	}

	if r.cfg.SnapshotTTL > 0 {
		r.cache.SetDefault(common.CacheKeyFeedSnapshot, snapshot)
	}
	return snapshot, nil
}

func (r *priceFeedRepository) GetAccountState(ctx context.Context) (*dto.AccountState, error) {
	if r.cfg.SnapshotTTL > 0 {
		if cached, ok := r.cache.Get(common.CacheKeyAccountState); ok {
			return cached.(*dto.AccountState), nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()

	raw, err := r.rdb.Get(ctx, r.cfg.BuyingPowerKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("account state not published under %s", r.cfg.BuyingPowerKey)
		}
		return nil, fmt.Errorf("read account state: %w", err)
	}

	var state dto.AccountState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		// older publishers store the bare buying power number
		bp, parseErr := decimal.NewFromString(strings.TrimSpace(raw))
		if parseErr != nil {
			return nil, fmt.Errorf("decode account state: %w", err)
		}
		state = dto.AccountState{BuyingPower: bp, TotalEquity: bp}
	}
	if state.TotalEquity.IsZero() {
		state.TotalEquity = state.BuyingPower
	}

	if r.cfg.SnapshotTTL > 0 {
		r.cache.SetDefault(common.CacheKeyAccountState, &state)
	}
	return &state, nil
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
