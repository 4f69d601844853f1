package repository

import (
	"context"

	"gorm.io/gorm"

	"stop-loss-guardian/internal/entity"
)

type JournalPositionRepository interface {
	GetOpen(ctx context.Context) ([]entity.JournalPosition, error)
}

type journalPositionRepository struct {
	db *gorm.DB
}

func NewJournalPositionRepository(db *gorm.DB) JournalPositionRepository {
	return &journalPositionRepository{
		db: db,
	}
}

func (r *journalPositionRepository) GetOpen(ctx context.Context) ([]entity.JournalPosition, error) {
	var positions []entity.JournalPosition
	if err := r.db.WithContext(ctx).
		Where("status = ?", entity.JournalStatusOpen).
		Order("entry_date ASC").
		Find(&positions).Error; err != nil {
		return nil, err
	}
	return positions, nil
}
