package sqlite

import "time"

type SnapshotModel struct {
	Slot    string    `gorm:"primaryKey"`
	Payload []byte    `gorm:"not null"`
	SavedAt time.Time `gorm:"not null"`
}

func (SnapshotModel) TableName() string { return "app_snapshots" }
