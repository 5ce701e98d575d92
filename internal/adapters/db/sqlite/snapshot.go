package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/atvirokodosprendimai/credbook/internal/domain"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// SnapshotStore keeps the whole AppState as one row. Every Save rewrites the
// row; there are no partial writes.
type SnapshotStore struct {
	db       *gorm.DB
	slot     string
	log      logrus.FieldLogger
	defaults domain.AppState
}

func Open(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path,
	}, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
}

// NewSnapshotStore returns a store for the given slot. defaults is returned by
// Load when the slot is empty or unreadable.
func NewSnapshotStore(db *gorm.DB, slot string, log logrus.FieldLogger, defaults domain.AppState) *SnapshotStore {
	if slot == "" {
		slot = domain.DefaultSlot
	}
	return &SnapshotStore{db: db, slot: slot, log: log.WithField("slot", slot), defaults: defaults.Normalize()}
}

func (s *SnapshotStore) Load(ctx context.Context) domain.AppState {
	var m SnapshotModel
	err := s.db.WithContext(ctx).First(&m, "slot = ?", s.slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.log.Info("no local snapshot, starting from defaults")
		return s.defaults.Clone()
	}
	if err != nil {
		s.log.WithError(err).Error("read local snapshot")
		return s.defaults.Clone()
	}

	state, err := decodeState(m.Payload)
	if err != nil {
		s.log.WithError(err).Warn("local snapshot is corrupt, starting from defaults")
		return s.defaults.Clone()
	}
	return state.Normalize()
}

func (s *SnapshotStore) Save(ctx context.Context, state domain.AppState) {
	payload, err := encodeState(state.Normalize())
	if err != nil {
		s.log.WithError(err).Error("encode local snapshot")
		return
	}

	m := SnapshotModel{Slot: s.slot, Payload: payload, SavedAt: time.Now().UTC()}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slot"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "saved_at"}),
	}).Create(&m).Error
	if err != nil {
		s.log.WithError(err).Error("write local snapshot")
		return
	}
	s.log.WithField("bytes", len(payload)).Debug("local snapshot saved")
}
