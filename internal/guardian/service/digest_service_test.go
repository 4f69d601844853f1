package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stop-loss-guardian/internal/guardian/config"
	"stop-loss-guardian/internal/guardian/dto"
	"stop-loss-guardian/pkg/logger"
)

func TestDigestService_ListsUnprotectedPositions(t *testing.T) {
	h := seededHarness(t)
	_, err := h.operator.SetStopLoss(context.Background(), dto.PositionTarget{Symbol: "TSLA"}, dto.SetStopLossRequest{StopPrice: 180})
	require.NoError(t, err)
	h.advance(time.Minute, map[string]float64{"AAPL": 85, "TSLA": 190})
	h.tick()

	notifier := &fakeNotifier{}
	digest := NewDigestService(h.cfg, logger.NewNop(), h.clock, h.store, notifier)

	require.NoError(t, digest.SendDigest(context.Background()))
	require.Len(t, notifier.sent(), 1)
	assert.Contains(t, notifier.sent()[0], "AAPL")
	assert.Contains(t, notifier.sent()[0], "no stop")
	assert.NotContains(t, notifier.sent()[0], "TSLA")
}

func TestDigestService_AllProtected(t *testing.T) {
	notifier := &fakeNotifier{}
	digest := NewDigestService(config.DefaultGuardian(), logger.NewNop(), clockAt(), newMemRiskStore(), notifier)

	require.NoError(t, digest.SendDigest(context.Background()))
	assert.Contains(t, notifier.sent()[0], "All open positions are protected")
}

func TestDigestService_DeliveryFailure(t *testing.T) {
	notifier := &fakeNotifier{failAll: true}
	digest := NewDigestService(config.DefaultGuardian(), logger.NewNop(), clockAt(), newMemRiskStore(), notifier)

	assert.ErrorIs(t, digest.SendDigest(context.Background()), ErrDeliveryFailure)
}

func TestDigestService_StartValidatesSchedule(t *testing.T) {
	cfg := config.DefaultGuardian()
	cfg.MarketTimezone = "UTC"
	cfg.DigestCron = "not a cron"
	digest := NewDigestService(cfg, logger.NewNop(), clockAt(), newMemRiskStore(), &fakeNotifier{})
	assert.Error(t, digest.Start(context.Background()))

	cfg.DigestCron = "0 16 * * 1-5"
	digest = NewDigestService(cfg, logger.NewNop(), clockAt(), newMemRiskStore(), &fakeNotifier{})
	require.NoError(t, digest.Start(context.Background()))
	digest.Stop()

	cfg.MarketTimezone = "Mars/Olympus_Mons"
	digest = NewDigestService(cfg, logger.NewNop(), clockAt(), newMemRiskStore(), &fakeNotifier{})
	assert.Error(t, digest.Start(context.Background()))
}
