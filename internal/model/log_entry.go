package model

import "time"

// LogEntry proves that an order id was processed. The unique index on
// order_id is the final barrier against double execution.
type LogEntry struct {
	ID          uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID     string    `gorm:"column:order_id;size:36;not null;uniqueIndex:idx_orders_log_order_id"`
	ProcessedAt time.Time `gorm:"column:processed_at;not null"`
}

func (LogEntry) TableName() string {
	return "orders_log"
}
