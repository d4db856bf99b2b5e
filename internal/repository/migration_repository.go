package repository

import (
	"context"
	"log/slog"
	"time"

	"crypto-service/internal/domain"

	"gorm.io/gorm"
)

// SchemaMigrationModel は適用済みマイグレーション1件を表す。
type SchemaMigrationModel struct {
	Version   string    `gorm:"column:version;primaryKey;type:varchar(14)"`
	AppliedAt time.Time `gorm:"column:applied_at;not null"`
}

func (SchemaMigrationModel) TableName() string {
	return "schema_migrations"
}

func (m *SchemaMigrationModel) toDomain() *domain.Migration {
	at := m.AppliedAt
	return &domain.Migration{
		Version:   m.Version,
		AppliedAt: &at,
		Status:    domain.MigrationStatusApplied,
	}
}

// MigrationRepository はschema_migrationsへの読み書きを担う。
type MigrationRepository struct {
	db *gorm.DB
}

func NewMigrationRepository(db *gorm.DB) *MigrationRepository {
	return &MigrationRepository{db: db}
}

// EnsureTable は履歴テーブルを用意する。既にあれば何もしない。
func (r *MigrationRepository) EnsureTable(ctx context.Context) error {
	err := r.db.WithContext(ctx).AutoMigrate(&SchemaMigrationModel{})
	if err != nil {
		slog.ErrorContext(ctx, "schema_migrations setup failed", "operation", "ensure_table", "error", err)
	}
	return err
}

// FindAllApplied はバージョン昇順で適用履歴を返す。
func (r *MigrationRepository) FindAllApplied(ctx context.Context) ([]*domain.Migration, error) {
	var rows []SchemaMigrationModel
	if err := r.db.WithContext(ctx).Order("version").Find(&rows).Error; err != nil {
		slog.ErrorContext(ctx, "listing applied migrations failed", "operation", "find_all_applied", "error", err)
		return nil, err
	}

	out := make([]*domain.Migration, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

// RecordApplied はtxの中で適用を記録する。マイグレーション本体と同じトランザクションで呼ぶこと。
func (r *MigrationRepository) RecordApplied(tx *gorm.DB, version string, at time.Time) error {
	row := SchemaMigrationModel{Version: version, AppliedAt: at.UTC()}
	if err := tx.Create(&row).Error; err != nil {
		slog.ErrorContext(tx.Statement.Context, "recording migration failed",
			"operation", "record_applied",
			"version", version,
			"error", err,
		)
		return err
	}
	return nil
}
