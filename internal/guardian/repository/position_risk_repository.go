package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stop-loss-guardian/internal/entity"
	"stop-loss-guardian/internal/guardian/dto"
	"stop-loss-guardian/pkg/utils"
)

type PositionRiskRepository interface {
	// Sync upserts the tracked row for a position and returns it with the latest state.
	Sync(ctx context.Context, sync dto.PositionSync) (*entity.PositionRisk, error)
	FindByID(ctx context.Context, id uint) (*entity.PositionRisk, error)
	FindBySymbol(ctx context.Context, symbol string) ([]entity.PositionRisk, error)
	FindAll(ctx context.Context) ([]entity.PositionRisk, error)
	// SaveOutcome writes evaluation and escalation state and appends alert, all or nothing.
	SaveOutcome(ctx context.Context, risk *entity.PositionRisk, alert *entity.UrgentAlert) error
	// Acknowledge acknowledges every id in one transaction, or none of them.
	Acknowledge(ctx context.Context, ids []uint, reason string, at time.Time) ([]entity.PositionRisk, error)
	SetStopLoss(ctx context.Context, id uint, update dto.StopLossUpdate, at time.Time) (*entity.PositionRisk, error)
	// DeleteClosed removes rows whose journal position is no longer open.
	DeleteClosed(ctx context.Context) (int64, error)
}

type positionRiskRepository struct {
	db *gorm.DB
}

func NewPositionRiskRepository(db *gorm.DB) PositionRiskRepository {
	return &positionRiskRepository{
		db: db,
	}
}

func (r *positionRiskRepository) Sync(ctx context.Context, sync dto.PositionSync) (*entity.PositionRisk, error) {
	row := entity.PositionRisk{
		Symbol:           sync.Symbol,
		PositionID:       sync.PositionID,
		Side:             sync.Side,
		EntryPrice:       sync.EntryPrice,
		Quantity:         sync.Quantity,
		CurrentPrice:     sync.CurrentPrice,
		PriceUpdatedAt:   sync.PriceUpdatedAt,
		NextEarningsDate: sync.NextEarningsDate,
		CreatedAt:        sync.SyncedAt,
		UpdatedAt:        sync.SyncedAt,
	}

	updates := map[string]interface{}{
		"side":               sync.Side,
		"quantity":           sync.Quantity,
		"current_price":      gorm.Expr("COALESCE(EXCLUDED.current_price, stop_loss_tracking.current_price)"),
		"price_updated_at":   gorm.Expr("COALESCE(EXCLUDED.price_updated_at, stop_loss_tracking.price_updated_at)"),
		"next_earnings_date": gorm.Expr("COALESCE(EXCLUDED.next_earnings_date, stop_loss_tracking.next_earnings_date)"),
		"updated_at":         sync.SyncedAt,
	}

	brokerType := entity.StopLossBroker
	if sync.BrokerStop != nil {
		row.StopLossPrice.Decimal = *sync.BrokerStop
		row.StopLossPrice.Valid = true
		row.StopLossType = &brokerType
		row.StopLossSetAt = &sync.SyncedAt

		// a broker order never overrides a stop the operator set by hand
		updates["stop_loss_price"] = gorm.Expr("CASE WHEN stop_loss_tracking.stop_loss_price IS NULL OR stop_loss_tracking.stop_loss_type = ? THEN EXCLUDED.stop_loss_price ELSE stop_loss_tracking.stop_loss_price END", brokerType)
		updates["stop_loss_set_at"] = gorm.Expr("CASE WHEN stop_loss_tracking.stop_loss_price IS NULL THEN EXCLUDED.stop_loss_set_at ELSE stop_loss_tracking.stop_loss_set_at END")
		updates["stop_loss_type"] = gorm.Expr("COALESCE(stop_loss_tracking.stop_loss_type, EXCLUDED.stop_loss_type)")
	} else if sync.FeedAvailable {
		// the broker order is gone, so a stop that came from it no longer protects the position
		updates["stop_loss_price"] = gorm.Expr("CASE WHEN stop_loss_tracking.stop_loss_type = ? THEN NULL ELSE stop_loss_tracking.stop_loss_price END", brokerType)
		updates["stop_loss_type"] = gorm.Expr("CASE WHEN stop_loss_tracking.stop_loss_type = ? THEN NULL ELSE stop_loss_tracking.stop_loss_type END", brokerType)
	}

	var result entity.PositionRisk
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "position_id"}},
			DoUpdates: clause.Assignments(updates),
		}).Create(&row).Error; err != nil {
			return fmt.Errorf("upsert position risk: %w", err)
		}

		return tx.Where("symbol = ? AND position_id = ?", sync.Symbol, sync.PositionID).First(&result).Error
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *positionRiskRepository) FindByID(ctx context.Context, id uint) (*entity.PositionRisk, error) {
	var risk entity.PositionRisk
	if err := r.db.WithContext(ctx).First(&risk, id).Error; err != nil {
		return nil, err
	}
	return &risk, nil
}

func (r *positionRiskRepository) FindBySymbol(ctx context.Context, symbol string) ([]entity.PositionRisk, error) {
	var risks []entity.PositionRisk
	if err := r.db.WithContext(ctx).Where("symbol = ?", symbol).Order("position_id ASC").Find(&risks).Error; err != nil {
		return nil, err
	}
	return risks, nil
}

func (r *positionRiskRepository) FindAll(ctx context.Context) ([]entity.PositionRisk, error) {
	var risks []entity.PositionRisk
	if err := r.db.WithContext(ctx).Order("symbol ASC, position_id ASC").Find(&risks).Error; err != nil {
		return nil, err
	}
	return risks, nil
}

func (r *positionRiskRepository) SaveOutcome(ctx context.Context, risk *entity.PositionRisk, alert *entity.UrgentAlert) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked entity.PositionRisk
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&locked, risk.ID).Error; err != nil {
			return err
		}

		// an acknowledgment that landed after this risk was read wins
		if !sameInstant(locked.AcknowledgedAt, risk.AcknowledgedAt) {
			if locked.Acknowledged {
				risk.EscalationLevel = locked.EscalationLevel
				if alert != nil {
					alert.Acknowledged = true
					alert.AcknowledgedAt = locked.AcknowledgedAt
					alert.ResponseAction = utils.ToPointer(entity.ResponseAcknowledged)
				}
			}
			risk.Acknowledged = locked.Acknowledged
			risk.AcknowledgedAt = locked.AcknowledgedAt
			risk.AcknowledgedReason = locked.AcknowledgedReason
			risk.AcknowledgedSeverity = locked.AcknowledgedSeverity
		}

		if err := tx.Model(&entity.PositionRisk{}).Where("id = ?", risk.ID).Updates(map[string]interface{}{
			"current_drawdown_pct":    risk.CurrentDrawdownPct,
			"current_severity":        risk.CurrentSeverity,
			"alert_escalation_level":  risk.EscalationLevel,
			"missing_stop_alert_sent": risk.MissingStopAlertSent,
			"alert_count":             risk.AlertCount,
			"last_alert_sent":         risk.LastAlertSent,
			"episode_started_at":      risk.EpisodeStartedAt,
			"episode_severity":        risk.EpisodeSeverity,
			"acknowledged":            risk.Acknowledged,
			"acknowledged_at":         risk.AcknowledgedAt,
			"acknowledged_reason":     risk.AcknowledgedReason,
			"acknowledged_severity":   risk.AcknowledgedSeverity,
			"updated_at":              risk.UpdatedAt,
		}).Error; err != nil {
			return fmt.Errorf("update position risk: %w", err)
		}

		if alert != nil {
			alert.PositionRiskID = risk.ID
			if err := tx.Create(alert).Error; err != nil {
				return fmt.Errorf("insert urgent alert: %w", err)
			}
		}
		return nil
	})
}

func (r *positionRiskRepository) Acknowledge(ctx context.Context, ids []uint, reason string, at time.Time) ([]entity.PositionRisk, error) {
	risks := make([]entity.PositionRisk, 0, len(ids))
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			var risk entity.PositionRisk
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&risk, id).Error; err != nil {
				return err
			}

			// a bounce after the last alert does not lower the baseline
			risk.Acknowledged = true
			risk.AcknowledgedAt = &at
			risk.AcknowledgedReason = &reason
			risk.AcknowledgedSeverity = max(risk.CurrentSeverity, risk.EpisodeSeverity)
			risk.EscalationLevel = entity.EscalationNone
			risk.UpdatedAt = at

			if err := tx.Model(&entity.PositionRisk{}).Where("id = ?", id).Updates(map[string]interface{}{
				"alert_escalation_level": entity.EscalationNone,
				"acknowledged":           true,
				"acknowledged_at":        at,
				"acknowledged_reason":    reason,
				"acknowledged_severity":  risk.AcknowledgedSeverity,
				"updated_at":             at,
			}).Error; err != nil {
				return fmt.Errorf("acknowledge position risk %d: %w", id, err)
			}

			if err := markAlertsAnswered(tx, id, entity.ResponseAcknowledged, at); err != nil {
				return err
			}
			risks = append(risks, risk)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return risks, nil
}

func (r *positionRiskRepository) SetStopLoss(ctx context.Context, id uint, update dto.StopLossUpdate, at time.Time) (*entity.PositionRisk, error) {
	var risk entity.PositionRisk
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&risk, id).Error; err != nil {
			return err
		}

		stopType := update.Type
		risk.StopLossPrice.Decimal = update.Price
		risk.StopLossPrice.Valid = true
		risk.StopLossType = &stopType
		risk.StopLossPct = update.Pct
		risk.StopLossSetAt = &at
		risk.EscalationLevel = entity.EscalationNone
		risk.MissingStopAlertSent = false
		risk.EpisodeStartedAt = nil
		risk.EpisodeSeverity = entity.SeverityNone
		risk.Acknowledged = false
		risk.AcknowledgedSeverity = entity.SeverityNone
		risk.UpdatedAt = at

		if err := tx.Model(&entity.PositionRisk{}).Where("id = ?", id).Updates(map[string]interface{}{
			"stop_loss_price":         risk.StopLossPrice,
			"stop_loss_type":          stopType,
			"stop_loss_pct":           update.Pct,
			"stop_loss_set_at":        at,
			"alert_escalation_level":  entity.EscalationNone,
			"missing_stop_alert_sent": false,
			"episode_started_at":      nil,
			"episode_severity":        entity.SeverityNone,
			"acknowledged":            false,
			"acknowledged_severity":   entity.SeverityNone,
			"updated_at":              at,
		}).Error; err != nil {
			return fmt.Errorf("set stop loss: %w", err)
		}

		return markAlertsAnswered(tx, id, entity.ResponseStopLossSet, at)
	})
	if err != nil {
		return nil, err
	}
	return &risk, nil
}

func (r *positionRiskRepository) DeleteClosed(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`DELETE FROM stop_loss_tracking
		WHERE NOT EXISTS (
			SELECT 1 FROM journal_positions jp
			WHERE jp.id = stop_loss_tracking.position_id AND jp.status = ?
		)`, entity.JournalStatusOpen)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func markAlertsAnswered(tx *gorm.DB, positionRiskID uint, action string, at time.Time) error {
	if err := tx.Model(&entity.UrgentAlert{}).
		Where("stop_loss_tracking_id = ? AND acknowledged = ?", positionRiskID, false).
		Updates(map[string]interface{}{
			"acknowledged":    true,
			"acknowledged_at": at,
			"response_action": action,
		}).Error; err != nil {
		return fmt.Errorf("mark urgent alerts %s: %w", action, err)
	}
	return nil
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
