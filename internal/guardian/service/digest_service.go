package service

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/robfig/cron/v3"

	"stop-loss-guardian/internal/entity"
	"stop-loss-guardian/internal/guardian/config"
	"stop-loss-guardian/internal/guardian/repository"
	"stop-loss-guardian/pkg/common"
	"stop-loss-guardian/pkg/logger"
	"stop-loss-guardian/pkg/telegram"
)

// DigestService sends a scheduled summary of positions that are still at risk.
type DigestService interface {
	Start(ctx context.Context) error
	Stop()
	SendDigest(ctx context.Context) error
}

type digestService struct {
	cfg      config.Guardian
	log      *logger.Logger
	clock    clock.Clock
	riskRepo repository.PositionRiskRepository
	notifier telegram.Notifier
	cron     *cron.Cron
}

func NewDigestService(cfg config.Guardian, log *logger.Logger, clk clock.Clock, riskRepo repository.PositionRiskRepository, notifier telegram.Notifier) DigestService {
	return &digestService{
		cfg:      cfg,
		log:      log,
		clock:    clk,
		riskRepo: riskRepo,
		notifier: notifier,
	}
}

func (s *digestService) Start(ctx context.Context) error {
	loc, err := time.LoadLocation(s.cfg.MarketTimezone)
	if err != nil {
		return fmt.Errorf("invalid market timezone %q: %w", s.cfg.MarketTimezone, err)
	}

	s.cron = cron.New(cron.WithLocation(loc))
	_, err = s.cron.AddFunc(s.cfg.DigestCron, func() {
		jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
		defer cancel()
		if err := s.SendDigest(jobCtx); err != nil {
			s.log.Error("Failed to send digest", logger.StringField("job", common.JobDailyDigest), logger.ErrorField(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid digest cron %q: %w", s.cfg.DigestCron, err)
	}

	s.cron.Start()
	s.log.Info("Digest scheduled", logger.StringField("cron", s.cfg.DigestCron), logger.StringField("timezone", s.cfg.MarketTimezone))
	return nil
}

func (s *digestService) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

func (s *digestService) SendDigest(ctx context.Context) error {
	if s.notifier == nil {
		return nil
	}

	risks, err := s.riskRepo.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("%w: load positions: %v", ErrPersistenceFailure, err)
	}

	var atRisk []entity.PositionRisk
	for _, r := range risks {
		if r.CurrentSeverity >= entity.SeverityCritical || !r.HasStopLoss() {
			atRisk = append(atRisk, r)
		}
	}

	if err := s.notifier.SendMessage(telegram.FormatUnprotectedDigestForTelegram(atRisk, s.clock.Now())); err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailure, err)
	}
	s.log.Info("Digest sent", logger.StringField("job", common.JobDailyDigest), logger.IntField("at_risk", len(atRisk)))
	return nil
}
