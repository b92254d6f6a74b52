package cartsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/unibazzar/unibazzar-cart/pkg/db/models"
)

// GormStore keeps snapshots in the cart_snapshots table, one row per key.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// EnsureSchema creates the snapshot table when it is missing. Postgres
// deployments use the goose migrations instead.
func (g *GormStore) EnsureSchema(ctx context.Context) error {
	if err := g.db.WithContext(ctx).AutoMigrate(&models.CartSnapshot{}); err != nil {
		return fmt.Errorf("migrate cart_snapshots: %w", err)
	}
	return nil
}

func (g *GormStore) Load(ctx context.Context, key string) ([]byte, error) {
	var row models.CartSnapshot
	err := g.db.WithContext(ctx).
		Where("storage_key = ?", key).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return []byte(row.Payload), nil
}

func (g *GormStore) Save(ctx context.Context, key string, payload []byte) error {
	row := models.CartSnapshot{
		Key:       key,
		Payload:   string(payload),
		UpdatedAt: time.Now().UTC(),
	}
	err := g.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "storage_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

func (g *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
