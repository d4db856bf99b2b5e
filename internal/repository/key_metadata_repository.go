// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"crypto-service/internal/domain"
)

// KeyMetadataModel はgorm用のモデル定義。
type KeyMetadataModel struct {
	ID        string `gorm:"type:char(36);primaryKey"`
	KeyID     string `gorm:"type:varchar(160);not null;uniqueIndex:uk_key_metadata_key_id"`
	TenantID  string `gorm:"type:varchar(64);not null;index:idx_key_metadata_tenant_status"`
	Algorithm string `gorm:"type:varchar(32);not null"`
	KeySize   int    `gorm:"not null"`
	Purpose   string `gorm:"type:varchar(16);not null"`
	Status    string `gorm:"type:varchar(16);not null;default:'ACTIVE';index:idx_key_metadata_tenant_status;index:idx_key_metadata_status_expires"`
	// 時刻列の型はダイアレクトに任せる（sqlite3ドライバは宣言型がdatetimeの列しかtime.Timeに変換しない）
	CreatedAt time.Time `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null;index:idx_key_metadata_status_expires"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (KeyMetadataModel) TableName() string {
	return "key_metadata"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *KeyMetadataModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// toDomain はモデルをドメインエンティティに変換する。
func (m *KeyMetadataModel) toDomain() *domain.KeyMetadata {
	return &domain.KeyMetadata{
		KeyID:     m.KeyID,
		Algorithm: m.Algorithm,
		KeySize:   m.KeySize,
		Purpose:   domain.KeyPurpose(m.Purpose),
		CreatedAt: m.CreatedAt.UTC(),
		ExpiresAt: m.ExpiresAt.UTC(),
		Status:    domain.KeyStatus(m.Status),
		TenantID:  m.TenantID,
	}
}

// KeyMetadataRepository は鍵メタデータのデータアクセスを提供する。
type KeyMetadataRepository struct {
	db *gorm.DB
}

// NewKeyMetadataRepository は新しいKeyMetadataRepositoryを生成する。
func NewKeyMetadataRepository(db *gorm.DB) *KeyMetadataRepository {
	return &KeyMetadataRepository{db: db}
}

// Create は新しい鍵メタデータを保存する。
func (r *KeyMetadataRepository) Create(ctx context.Context, metadata *domain.KeyMetadata) error {
	model := &KeyMetadataModel{
		KeyID:     metadata.KeyID,
		TenantID:  metadata.TenantID,
		Algorithm: metadata.Algorithm,
		KeySize:   metadata.KeySize,
		Purpose:   string(metadata.Purpose),
		Status:    string(metadata.Status),
		CreatedAt: metadata.CreatedAt.UTC(),
		ExpiresAt: metadata.ExpiresAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrKeyAlreadyExists
		}
		slog.ErrorContext(ctx, "failed to create key metadata",
			"operation", "create",
			"tenant_id", metadata.TenantID,
			"key_id", metadata.KeyID,
			"error", err,
		)
		return err
	}
	return nil
}

// FindByKeyID は指定されたテナント・鍵IDのメタデータを取得する。存在しない場合はnilを返す。
func (r *KeyMetadataRepository) FindByKeyID(ctx context.Context, tenantID, keyID string) (*domain.KeyMetadata, error) {
	var model KeyMetadataModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND key_id = ?", tenantID, keyID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find key metadata",
			"operation", "find_by_key_id",
			"tenant_id", tenantID,
			"key_id", keyID,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindAllByTenantID は指定されたテナントの全メタデータを作成順に取得する。
func (r *KeyMetadataRepository) FindAllByTenantID(ctx context.Context, tenantID string) ([]*domain.KeyMetadata, error) {
	var models []KeyMetadataModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find key metadata by tenant_id",
			"operation", "find_all_by_tenant_id",
			"tenant_id", tenantID,
			"error", err,
		)
		return nil, err
	}

	keys := make([]*domain.KeyMetadata, len(models))
	for i := range models {
		keys[i] = models[i].toDomain()
	}
	return keys, nil
}

// FindActiveExpiringBefore は有効期限がt以前のACTIVEなメタデータを取得する。
func (r *KeyMetadataRepository) FindActiveExpiringBefore(ctx context.Context, t time.Time) ([]*domain.KeyMetadata, error) {
	var models []KeyMetadataModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", string(domain.KeyStatusActive), t.UTC()).
		Order("expires_at ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find expiring key metadata",
			"operation", "find_active_expiring_before",
			"error", err,
		)
		return nil, err
	}

	keys := make([]*domain.KeyMetadata, len(models))
	for i := range models {
		keys[i] = models[i].toDomain()
	}
	return keys, nil
}

// UpdateStatus は現在のステータスがfromのいずれかである場合に限りtoへ更新する。
// 読み取りと更新の間に別の遷移が起きていれば更新せず、
// ErrKeyAlreadyRevoked / ErrInvalidStatusTransition / ErrKeyNotFound を返す。
func (r *KeyMetadataRepository) UpdateStatus(ctx context.Context, tenantID, keyID string, from []domain.KeyStatus, to domain.KeyStatus) error {
	sources := make([]string, len(from))
	for i, s := range from {
		sources[i] = string(s)
	}
	if len(sources) == 0 {
		return fmt.Errorf("%w: no status can move to %s", domain.ErrInvalidStatusTransition, to)
	}

	result := r.db.WithContext(ctx).
		Model(&KeyMetadataModel{}).
		Where("tenant_id = ? AND key_id = ? AND status IN ?", tenantID, keyID, sources).
		Update("status", string(to))
	if result.Error != nil {
		slog.ErrorContext(ctx, "failed to update status",
			"operation", "update_status",
			"tenant_id", tenantID,
			"key_id", keyID,
			"status", to,
			"error", result.Error,
		)
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	current, err := r.FindByKeyID(ctx, tenantID, keyID)
	switch {
	case err != nil:
		return err
	case current == nil:
		return domain.ErrKeyNotFound
	case current.Status == to && to == domain.KeyStatusRevoked:
		return domain.ErrKeyAlreadyRevoked
	}
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStatusTransition, current.Status, to)
}
