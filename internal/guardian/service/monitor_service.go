package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"stop-loss-guardian/internal/entity"
	"stop-loss-guardian/internal/guardian/config"
	"stop-loss-guardian/internal/guardian/dto"
	"stop-loss-guardian/internal/guardian/repository"
	"stop-loss-guardian/pkg/logger"
	"stop-loss-guardian/pkg/metrics"
	"stop-loss-guardian/pkg/telegram"
	"stop-loss-guardian/pkg/utils"
)

// MonitorService drives the guardian on a fixed cadence.
type MonitorService interface {
	// Start runs ticks until ctx is cancelled. A tick in progress is allowed to finish.
	Start(ctx context.Context)
	// RunTick evaluates every open position once.
	RunTick(ctx context.Context) dto.TickReport
}

type monitorService struct {
	cfg         config.Guardian
	log         *logger.Logger
	clock       clock.Clock
	journalRepo repository.JournalPositionRepository
	riskRepo    repository.PositionRiskRepository
	feed        repository.PriceFeedRepository
	evaluator   RiskEvaluator
	policy      EscalationPolicy
	dispatcher  AlertDispatcher
	locker      *KeyedLocker
	notifier    telegram.Notifier
	recorder    *metrics.Recorder

	mu                  sync.Mutex
	consecutiveFailures int
	degradedAlertSent   bool
}

// MonitorDeps groups the collaborators of NewMonitorService.
type MonitorDeps struct {
	JournalRepo repository.JournalPositionRepository
	RiskRepo    repository.PositionRiskRepository
	Feed        repository.PriceFeedRepository
	Evaluator   RiskEvaluator
	Policy      EscalationPolicy
	Dispatcher  AlertDispatcher
	Locker      *KeyedLocker
	// Notifier receives degraded-service alerts. Optional.
	Notifier telegram.Notifier
	Recorder *metrics.Recorder
}

func NewMonitorService(cfg config.Guardian, log *logger.Logger, clk clock.Clock, deps MonitorDeps) MonitorService {
	return &monitorService{
		cfg:         cfg,
		log:         log,
		clock:       clk,
		journalRepo: deps.JournalRepo,
		riskRepo:    deps.RiskRepo,
		feed:        deps.Feed,
		evaluator:   deps.Evaluator,
		policy:      deps.Policy,
		dispatcher:  deps.Dispatcher,
		locker:      deps.Locker,
		notifier:    deps.Notifier,
		recorder:    deps.Recorder,
	}
}

func (s *monitorService) Start(ctx context.Context) {
	s.log.Info("Stop loss guardian monitor started",
		logger.DurationField("interval", s.cfg.PollingInterval),
		logger.IntField("max_workers", s.cfg.MaxWorkers),
		logger.Field("market_hours_only", s.cfg.MarketHoursOnly),
	)

	ticker := s.clock.Ticker(s.cfg.PollingInterval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Stop loss guardian monitor stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one RunTick detached from ctx cancellation so shutdown never cuts a tick short.
func (s *monitorService) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	tickCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.TickTimeout)
	defer cancel()
	s.RunTick(tickCtx)
}

func (s *monitorService) RunTick(ctx context.Context) dto.TickReport {
	report := dto.TickReport{StartedAt: s.clock.Now()}

	if s.cfg.MarketHoursOnly {
		open, err := utils.IsWithinSession(report.StartedAt, s.cfg.MarketTimezone, s.cfg.MarketOpen, s.cfg.MarketClose)
		if err != nil {
			s.log.Error("Invalid market session config, monitoring anyway", logger.ErrorField(err))
		} else if !open {
			report.Skipped = true
			s.log.Debug("Outside market hours, skipping tick")
			return report
		}
	}

	if removed, err := s.riskRepo.DeleteClosed(ctx); err != nil {
		s.log.Warn("Failed to clean up closed positions", logger.ErrorField(err))
	} else if removed > 0 {
		s.log.Info("Removed tracking for closed positions", logger.Field("count", removed))
	}

	positions, err := s.journalRepo.GetOpen(ctx)
	if err != nil {
		report.Err = fmt.Errorf("%w: load open positions: %v", ErrPersistenceFailure, err)
		s.finishTick(&report, err)
		return report
	}

	snapshot, err := s.feed.Snapshot(ctx)
	if err != nil {
		// keep going: missing-stop checks do not need prices
		s.log.Warn("Price feed unavailable, evaluating with stored prices", logger.ErrorField(err))
		snapshot = &dto.FeedSnapshot{}
	}

	outcomes := make([]dto.PositionOutcome, len(positions))
	var g errgroup.Group
	g.SetLimit(s.cfg.MaxWorkers)
	for i, p := range positions {
		g.Go(func() error {
			outcomes[i] = s.processPosition(ctx, p, snapshot)
			return nil
		})
	}
	_ = g.Wait()

	report.Outcomes = outcomes
	for _, o := range outcomes {
		if o.Skipped {
			continue
		}
		report.Evaluated++
		if o.Delivered {
			report.Dispatched++
		}
		if o.Err != nil {
			report.Failed++
		}
		if o.Severity >= entity.SeverityCritical {
			report.Unprotected++
		}
	}

	// a tick where every position hit the store counts as a failed tick
	var tickErr error
	persistenceFailures := 0
	for _, o := range outcomes {
		if errors.Is(o.Err, ErrPersistenceFailure) {
			persistenceFailures++
			tickErr = o.Err
		}
	}
	if persistenceFailures == 0 || persistenceFailures < report.Evaluated {
		tickErr = nil
	}
	report.Err = tickErr
	s.finishTick(&report, tickErr)
	return report
}

func (s *monitorService) processPosition(ctx context.Context, jp entity.JournalPosition, snapshot *dto.FeedSnapshot) dto.PositionOutcome {
	outcome := dto.PositionOutcome{Symbol: jp.Symbol, PositionID: jp.ID}
	log := s.log.With(logger.StringField("symbol", jp.Symbol), logger.Field("position_id", jp.ID))

	unlock := s.locker.Lock(jp.LockKey())
	defer unlock()

	risk, err := s.riskRepo.Sync(ctx, s.buildSync(jp, snapshot))
	if err != nil {
		outcome.Err = fmt.Errorf("%w: sync %s: %v", ErrPersistenceFailure, jp.Symbol, err)
		s.recordPersistenceFailure()
		log.Error("Failed to sync position state", logger.ErrorField(err))
		return outcome
	}
	log = log.With(logger.Field("position_risk_id", risk.ID))

	now := s.clock.Now()
	assessment, err := s.evaluator.Evaluate(*risk, now)
	if err != nil {
		outcome.Skipped = true
		outcome.Err = err
		log.Warn("Skipping position with invalid data", logger.ErrorField(err))
		return outcome
	}
	outcome.Severity = assessment.Severity
	if s.recorder != nil {
		s.recorder.RecordEvaluation(assessment.Severity.String())
	}

	decision := s.policy.Decide(assessment, *risk, now)
	outcome.Action = decision.Action

	next := s.policy.Apply(*risk, assessment, decision)
	if assessment.PriceStale {
		next.CurrentDrawdownPct = decimal.NullDecimal{}
	} else {
		next.CurrentDrawdownPct = decimal.NewNullDecimal(decimal.NewFromFloat(assessment.DrawdownPct))
	}
	next.UpdatedAt = now

	var alert *entity.UrgentAlert
	if decision.ShouldDispatch {
		result := s.dispatcher.Dispatch(ctx, next, assessment, decision)
		alert = result.Alert
		next = result.Position
		outcome.Delivered = result.Delivered
		if result.Err != nil {
			outcome.Err = result.Err
		}
	}

	if err := s.riskRepo.SaveOutcome(ctx, &next, alert); err != nil {
		s.recordPersistenceFailure()
		outcome.Err = fmt.Errorf("%w: save %s: %v", ErrPersistenceFailure, jp.Symbol, err)
		if outcome.Delivered {
			// the alert went out but its bookkeeping did not, so the next tick may repeat it
			log.Error("Alert delivered but state not persisted", logger.ErrorField(err))
		} else {
			log.Error("Failed to persist position state", logger.ErrorField(err))
		}
		outcome.Delivered = false
		return outcome
	}

	log.Debug("Position evaluated",
		logger.StringField("severity", assessment.Severity.String()),
		logger.FloatField("drawdown_pct", assessment.DrawdownPct),
		logger.StringField("action", string(decision.Action)),
		logger.StringField("level", next.EscalationLevel.String()),
		logger.StringField("reason", decision.Reason),
	)
	return outcome
}

func (s *monitorService) buildSync(jp entity.JournalPosition, snapshot *dto.FeedSnapshot) dto.PositionSync {
	now := s.clock.Now()
	sync := dto.PositionSync{
		Symbol:        jp.Symbol,
		PositionID:    jp.ID,
		Side:          sideOrLong(jp.Side),
		EntryPrice:    jp.EntryPrice,
		Quantity:      jp.Quantity.Abs(),
		FeedAvailable: snapshot.Available,
		SyncedAt:      now,
	}

	if bp, ok := snapshot.Positions[jp.Symbol]; ok {
		if price, ok := bp.CurrentPrice(); ok {
			sync.CurrentPrice = decimal.NewNullDecimal(price)
			updatedAt := snapshot.FetchedAt
			if bp.UpdatedAt != nil {
				updatedAt = *bp.UpdatedAt
			}
			sync.PriceUpdatedAt = &updatedAt
		}
	}
	if order, ok := snapshot.StopOrders[jp.Symbol]; ok {
		stop := order.StopPrice
		sync.BrokerStop = &stop
	}
	if earnings, ok := snapshot.Earnings[jp.Symbol]; ok {
		sync.NextEarningsDate = &earnings
	}
	return sync
}

func (s *monitorService) finishTick(report *dto.TickReport, err error) {
	report.Duration = s.clock.Since(report.StartedAt)

	status := "ok"
	if err != nil {
		status = "failed"
	}
	if s.recorder != nil {
		s.recorder.ObserveTick(status, report.Duration)
		if err == nil {
			s.recorder.SetUnprotected(report.Unprotected)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		if s.consecutiveFailures > 0 {
			s.log.Info("Monitor recovered", logger.IntField("after_failures", s.consecutiveFailures))
		}
		s.consecutiveFailures = 0
		s.degradedAlertSent = false
		s.log.Info("Monitor tick completed",
			logger.IntField("evaluated", report.Evaluated),
			logger.IntField("dispatched", report.Dispatched),
			logger.IntField("failed", report.Failed),
			logger.IntField("unprotected", report.Unprotected),
			logger.DurationField("duration", report.Duration),
		)
		return
	}

	s.consecutiveFailures++
	s.log.Error("Monitor tick failed",
		logger.IntField("consecutive_failures", s.consecutiveFailures),
		logger.ErrorField(err),
	)

	if s.consecutiveFailures >= s.cfg.DegradedAlertThreshold && !s.degradedAlertSent && s.notifier != nil {
		if sendErr := s.notifier.SendMessage(telegram.FormatDegradedServiceForTelegram(s.consecutiveFailures, err)); sendErr != nil {
			s.log.Error("Failed to send degraded service alert", logger.ErrorField(sendErr))
			return
		}
		s.degradedAlertSent = true
	}
}

func (s *monitorService) recordPersistenceFailure() {
	if s.recorder != nil {
		s.recorder.RecordPersistenceFailure()
	}
}
