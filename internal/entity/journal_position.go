package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const JournalStatusOpen = "open"

// JournalPosition is a trade journal row. The guardian only reads it.
type JournalPosition struct {
	ID         int64           `gorm:"primaryKey" json:"id"`
	Symbol     string          `gorm:"type:varchar(16);not null" json:"symbol"`
	Side       PositionSide    `gorm:"type:varchar(8);not null" json:"side"`
	EntryPrice decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"entry_price"`
	Quantity   decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"quantity"`
	EntryDate  time.Time       `json:"entry_date"`
	Status     string          `gorm:"type:varchar(16);not null" json:"status"`
}

func (JournalPosition) TableName() string {
	return "journal_positions"
}

func (j JournalPosition) LockKey() string {
	return PositionLockKey(j.Symbol, j.ID)
}

func PositionLockKey(symbol string, positionID int64) string {
	return fmt.Sprintf("%s:%d", symbol, positionID)
}
