package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"stop-loss-guardian/internal/entity"
	"stop-loss-guardian/internal/guardian/dto"
	"stop-loss-guardian/internal/guardian/repository"
	"stop-loss-guardian/pkg/logger"
	"stop-loss-guardian/pkg/telegram"
)

// OperatorService is the human-facing side of the guardian.
type OperatorService interface {
	ListPositions(ctx context.Context) ([]dto.PositionRiskResponse, error)
	ListAlerts(ctx context.Context, param dto.GetUrgentAlertsParam) ([]dto.UrgentAlertResponse, error)
	Acknowledge(ctx context.Context, target dto.PositionTarget, reason string) ([]dto.PositionRiskResponse, error)
	SetStopLoss(ctx context.Context, target dto.PositionTarget, req dto.SetStopLossRequest) ([]dto.PositionRiskResponse, error)
	PositionSize(ctx context.Context, req dto.PositionSizeRequest) (*dto.PositionSizeResult, error)
}

type operatorService struct {
	log       *logger.Logger
	clock     clock.Clock
	riskRepo  repository.PositionRiskRepository
	alertRepo repository.UrgentAlertRepository
	feed      repository.PriceFeedRepository
	sizer     PositionSizer
	locker    *KeyedLocker
	notifier  telegram.Notifier
}

func NewOperatorService(
	log *logger.Logger,
	clk clock.Clock,
	riskRepo repository.PositionRiskRepository,
	alertRepo repository.UrgentAlertRepository,
	feed repository.PriceFeedRepository,
	sizer PositionSizer,
	locker *KeyedLocker,
	notifier telegram.Notifier,
) OperatorService {
	return &operatorService{
		log:       log,
		clock:     clk,
		riskRepo:  riskRepo,
		alertRepo: alertRepo,
		feed:      feed,
		sizer:     sizer,
		locker:    locker,
		notifier:  notifier,
	}
}

func (s *operatorService) ListPositions(ctx context.Context) ([]dto.PositionRiskResponse, error) {
	risks, err := s.riskRepo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list positions: %v", ErrPersistenceFailure, err)
	}
	return toPositionResponses(risks), nil
}

func (s *operatorService) ListAlerts(ctx context.Context, param dto.GetUrgentAlertsParam) ([]dto.UrgentAlertResponse, error) {
	param.Symbol = strings.ToUpper(strings.TrimSpace(param.Symbol))
	alerts, err := s.alertRepo.FindRecent(ctx, param)
	if err != nil {
		return nil, fmt.Errorf("%w: list alerts: %v", ErrPersistenceFailure, err)
	}
	resp := make([]dto.UrgentAlertResponse, 0, len(alerts))
	for _, a := range alerts {
		resp = append(resp, dto.NewUrgentAlertResponse(a))
	}
	return resp, nil
}

func (s *operatorService) Acknowledge(ctx context.Context, target dto.PositionTarget, reason string) ([]dto.PositionRiskResponse, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: acknowledgment reason is required", ErrInvalidInput)
	}

	risks, err := s.resolveTarget(ctx, target)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(risks))
	for _, r := range risks {
		ids = append(ids, r.ID)
	}

	unlock := s.lockAll(risks)
	updated, err := s.riskRepo.Acknowledge(ctx, ids, reason, s.clock.Now())
	unlock()
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, risks[0].Symbol)
		}
		return nil, fmt.Errorf("%w: acknowledge %s: %v", ErrPersistenceFailure, risks[0].Symbol, err)
	}

	for _, risk := range updated {
		s.log.Info("Position acknowledged",
			logger.StringField("symbol", risk.Symbol),
			logger.Field("position_id", risk.PositionID),
			logger.StringField("severity", risk.AcknowledgedSeverity.String()),
			logger.StringField("reason", reason),
		)
	}
	return toPositionResponses(updated), nil
}

func (s *operatorService) SetStopLoss(ctx context.Context, target dto.PositionTarget, req dto.SetStopLossRequest) ([]dto.PositionRiskResponse, error) {
	price := decimal.NewFromFloat(req.StopPrice)
	stopType := entity.StopLossType(req.StopType)
	if stopType == "" {
		stopType = entity.StopLossManual
	}
	if !stopType.Valid() || stopType == entity.StopLossBroker {
		return nil, fmt.Errorf("%w: unknown stop type %q", ErrInvalidStopLoss, req.StopType)
	}

	risks, err := s.resolveTarget(ctx, target)
	if err != nil {
		return nil, err
	}

	for _, r := range risks {
		if err := validateStop(r, price); err != nil {
			return nil, err
		}
	}

	updated := make([]entity.PositionRisk, 0, len(risks))
	for _, r := range risks {
		update := dto.StopLossUpdate{
			Price: price,
			Type:  stopType,
			Pct:   decimal.NewNullDecimal(price.Sub(r.EntryPrice).Abs().Div(r.EntryPrice).Mul(hundred).Round(4)),
		}
		risk, err := s.withLock(r, func() (*entity.PositionRisk, error) {
			return s.riskRepo.SetStopLoss(ctx, r.ID, update, s.clock.Now())
		})
		if err != nil {
			return nil, fmt.Errorf("%w: set stop loss %s: %v", ErrPersistenceFailure, r.Symbol, err)
		}

		s.log.Info("Stop loss set",
			logger.StringField("symbol", risk.Symbol),
			logger.Field("position_id", risk.PositionID),
			logger.StringField("stop_price", price.String()),
			logger.StringField("stop_type", string(stopType)),
		)
		s.confirm(*risk)
		updated = append(updated, *risk)
	}
	return toPositionResponses(updated), nil
}

func (s *operatorService) PositionSize(ctx context.Context, req dto.PositionSizeRequest) (*dto.PositionSizeResult, error) {
	account := decimal.NewFromFloat(req.AccountValue)
	if !account.IsPositive() {
		state, err := s.feed.GetAccountState(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
		}
		account = state.TotalEquity
	}

	var target *decimal.Decimal
	if req.TargetPrice > 0 {
		t := decimal.NewFromFloat(req.TargetPrice)
		target = &t
	}

	result := s.sizer.Calculate(
		strings.ToUpper(req.Symbol),
		decimal.NewFromFloat(req.EntryPrice),
		decimal.NewFromFloat(req.StopPrice),
		account,
		target,
	)
	return &result, nil
}

func (s *operatorService) resolveTarget(ctx context.Context, target dto.PositionTarget) ([]entity.PositionRisk, error) {
	if target.ID != 0 {
		risk, err := s.riskRepo.FindByID(ctx, target.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: id %d", ErrPositionNotFound, target.ID)
			}
			return nil, fmt.Errorf("%w: find position %d: %v", ErrPersistenceFailure, target.ID, err)
		}
		return []entity.PositionRisk{*risk}, nil
	}

	symbol := strings.ToUpper(strings.TrimSpace(target.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: position id or symbol is required", ErrInvalidInput)
	}
	risks, err := s.riskRepo.FindBySymbol(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: find %s: %v", ErrPersistenceFailure, symbol, err)
	}
	if len(risks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, symbol)
	}
	return risks, nil
}

// lockAll takes the lock of every position in key order and returns one release func.
func (s *operatorService) lockAll(risks []entity.PositionRisk) func() {
	keys := make([]string, 0, len(risks))
	for _, r := range risks {
		keys = append(keys, r.LockKey())
	}
	sort.Strings(keys)

	unlocks := make([]func(), 0, len(keys))
	for _, k := range keys {
		unlocks = append(unlocks, s.locker.Lock(k))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

func (s *operatorService) withLock(r entity.PositionRisk, fn func() (*entity.PositionRisk, error)) (*entity.PositionRisk, error) {
	unlock := s.locker.Lock(r.LockKey())
	defer unlock()
	return fn()
}

// confirm is best effort. The stop is already stored.
func (s *operatorService) confirm(risk entity.PositionRisk) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendMessage(telegram.FormatStopLossConfirmationForTelegram(risk)); err != nil {
		s.log.Warn("Failed to send stop loss confirmation", logger.StringField("symbol", risk.Symbol), logger.ErrorField(err))
	}
}

// validateStop requires the stop on the losing side of entry.
func validateStop(r entity.PositionRisk, price decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("%w: stop price must be positive", ErrInvalidStopLoss)
	}
	if r.IsShort() {
		if !price.GreaterThan(r.EntryPrice) {
			return fmt.Errorf("%w: stop %s must be above entry %s for a short position", ErrInvalidStopLoss, price, r.EntryPrice)
		}
		return nil
	}
	if !price.LessThan(r.EntryPrice) {
		return fmt.Errorf("%w: stop %s must be below entry %s for a long position", ErrInvalidStopLoss, price, r.EntryPrice)
	}
	return nil
}

func toPositionResponses(risks []entity.PositionRisk) []dto.PositionRiskResponse {
	resp := make([]dto.PositionRiskResponse, 0, len(risks))
	for _, r := range risks {
		resp = append(resp, dto.NewPositionRiskResponse(r))
	}
	return resp
}
