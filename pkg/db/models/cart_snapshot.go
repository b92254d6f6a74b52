package models

import "time"

// CartSnapshot is one durable cart snapshot, keyed by storage key.
type CartSnapshot struct {
	Key       string    `gorm:"column:storage_key;primaryKey"`
	Payload   string    `gorm:"column:payload;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (CartSnapshot) TableName() string {
	return "cart_snapshots"
}
