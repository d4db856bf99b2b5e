// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"crypto-service/internal/domain"
)

// KeyMetadataRepository は鍵メタデータのデータアクセスのインターフェース。
type KeyMetadataRepository interface {
	KeyMetadataStore
	FindByKeyID(ctx context.Context, tenantID, keyID string) (*domain.KeyMetadata, error)
	FindAllByTenantID(ctx context.Context, tenantID string) ([]*domain.KeyMetadata, error)
	FindActiveExpiringBefore(ctx context.Context, t time.Time) ([]*domain.KeyMetadata, error)
	// UpdateStatus は現在のステータスがfromに含まれる場合のみtoへ更新する。
	UpdateStatus(ctx context.Context, tenantID, keyID string, from []domain.KeyStatus, to domain.KeyStatus) error
}

// KeyService は鍵メタデータのライフサイクル管理を提供する。
// レコードの削除は行わず、ステータス遷移のみを扱う。
type KeyService struct {
	repo KeyMetadataRepository
}

// NewKeyService は新しいKeyServiceを生成する。
func NewKeyService(repo KeyMetadataRepository) *KeyService {
	return &KeyService{repo: repo}
}

// ListKeys は指定されたテナントの鍵メタデータ一覧を取得する。
func (s *KeyService) ListKeys(ctx context.Context, tenantID string) ([]*domain.KeyMetadata, error) {
	if err := domain.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}
	keys, err := s.repo.FindAllByTenantID(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("finding keys: %w", err)
	}
	return keys, nil
}

// GetKey は指定されたテナント・鍵IDのメタデータを取得する。
func (s *KeyService) GetKey(ctx context.Context, tenantID, keyID string) (*domain.KeyMetadata, error) {
	if err := domain.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}
	if err := domain.ValidateKeyID(keyID); err != nil {
		return nil, err
	}
	key, err := s.repo.FindByKeyID(ctx, tenantID, keyID)
	if err != nil {
		return nil, fmt.Errorf("finding key: %w", err)
	}
	if key == nil {
		return nil, domain.ErrKeyNotFound
	}
	return key, nil
}

// RevokeKey は鍵をREVOKEDに遷移させる。
func (s *KeyService) RevokeKey(ctx context.Context, tenantID, keyID string) (*domain.KeyMetadata, error) {
	key, err := s.GetKey(ctx, tenantID, keyID)
	if err != nil {
		return nil, err
	}
	if key.Status == domain.KeyStatusRevoked {
		return nil, domain.ErrKeyAlreadyRevoked
	}
	if !key.Status.CanTransitionTo(domain.KeyStatusRevoked) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStatusTransition, key.Status, domain.KeyStatusRevoked)
	}

	// 読み取り後に他の遷移が起きていれば条件付き更新が弾く
	err = s.repo.UpdateStatus(ctx, tenantID, keyID, domain.TransitionSources(domain.KeyStatusRevoked), domain.KeyStatusRevoked)
	if err != nil {
		return nil, fmt.Errorf("updating status: %w", err)
	}
	key.Status = domain.KeyStatusRevoked
	return key, nil
}

// ExpireKeys は有効期限がnow以前のACTIVEな鍵をEXPIREDに遷移させ、件数を返す。
func (s *KeyService) ExpireKeys(ctx context.Context, now time.Time) (int, error) {
	keys, err := s.repo.FindActiveExpiringBefore(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("finding expired keys: %w", err)
	}

	expired := 0
	for _, k := range keys {
		if !k.Status.CanTransitionTo(domain.KeyStatusExpired) {
			continue
		}
		err := s.repo.UpdateStatus(ctx, k.TenantID, k.KeyID, []domain.KeyStatus{domain.KeyStatusActive}, domain.KeyStatusExpired)
		if errors.Is(err, domain.ErrInvalidStatusTransition) || errors.Is(err, domain.ErrKeyAlreadyRevoked) {
			// 検索後に失効された鍵はそのまま
			slog.InfoContext(ctx, "key changed status before expiry; skipped",
				"operation", "expire_keys",
				"tenant_id", k.TenantID,
				"key_id", k.KeyID,
			)
			continue
		}
		if err != nil {
			return expired, fmt.Errorf("updating status: %w", err)
		}
		slog.InfoContext(ctx, "key expired",
			"operation", "expire_keys",
			"tenant_id", k.TenantID,
			"key_id", k.KeyID,
			"expires_at", k.ExpiresAt.Format(time.RFC3339),
		)
		expired++
	}
	return expired, nil
}
