package repository

import (
	"context"

	"gorm.io/gorm"

	"stop-loss-guardian/internal/entity"
	"stop-loss-guardian/internal/guardian/dto"
)

type UrgentAlertRepository interface {
	FindRecent(ctx context.Context, param dto.GetUrgentAlertsParam) ([]entity.UrgentAlert, error)
}

type urgentAlertRepository struct {
	db *gorm.DB
}

func NewUrgentAlertRepository(db *gorm.DB) UrgentAlertRepository {
	return &urgentAlertRepository{
		db: db,
	}
}

func (r *urgentAlertRepository) FindRecent(ctx context.Context, param dto.GetUrgentAlertsParam) ([]entity.UrgentAlert, error) {
	var alerts []entity.UrgentAlert

	limit := param.Limit
	if limit <= 0 {
		limit = 50
	}

	q := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if param.Symbol != "" {
		q = q.Where("symbol = ?", param.Symbol)
	}

	if err := q.Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}
