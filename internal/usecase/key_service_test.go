package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"crypto-service/internal/domain"
)

// mockKeyMetadataRepository はテスト用のモックリポジトリ。
type mockKeyMetadataRepository struct {
	createErr       error
	findResult      *domain.KeyMetadata
	findErr         error
	findAllResult   []*domain.KeyMetadata
	findAllErr      error
	expiringResult  []*domain.KeyMetadata
	expiringErr     error
	updateStatusErr error
	created         []*domain.KeyMetadata
	statusUpdates   map[string]domain.KeyStatus
	updateFrom      [][]domain.KeyStatus
}

func (m *mockKeyMetadataRepository) Create(ctx context.Context, metadata *domain.KeyMetadata) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, metadata)
	return nil
}

func (m *mockKeyMetadataRepository) FindByKeyID(ctx context.Context, tenantID, keyID string) (*domain.KeyMetadata, error) {
	return m.findResult, m.findErr
}

func (m *mockKeyMetadataRepository) FindAllByTenantID(ctx context.Context, tenantID string) ([]*domain.KeyMetadata, error) {
	return m.findAllResult, m.findAllErr
}

func (m *mockKeyMetadataRepository) FindActiveExpiringBefore(ctx context.Context, t time.Time) ([]*domain.KeyMetadata, error) {
	return m.expiringResult, m.expiringErr
}

func (m *mockKeyMetadataRepository) UpdateStatus(ctx context.Context, tenantID, keyID string, from []domain.KeyStatus, status domain.KeyStatus) error {
	m.updateFrom = append(m.updateFrom, from)
	if m.updateStatusErr != nil {
		return m.updateStatusErr
	}
	if m.statusUpdates == nil {
		m.statusUpdates = make(map[string]domain.KeyStatus)
	}
	m.statusUpdates[tenantID+"/"+keyID] = status
	return nil
}

func testMetadata(keyID string, status domain.KeyStatus) *domain.KeyMetadata {
	created := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	return &domain.KeyMetadata{
		KeyID:     keyID,
		Algorithm: AlgorithmAES256GCM,
		KeySize:   256,
		Purpose:   domain.KeyPurposeEncryption,
		CreatedAt: created,
		ExpiresAt: created.AddDate(1, 0, 0),
		Status:    status,
		TenantID:  "tenant-001",
	}
}

func TestKeyService_ListKeys_Success(t *testing.T) {
	repo := &mockKeyMetadataRepository{
		findAllResult: []*domain.KeyMetadata{
			testMetadata("sales@1", domain.KeyStatusExpired),
			testMetadata("sales@2", domain.KeyStatusActive),
		},
	}
	svc := NewKeyService(repo)

	keys, err := svc.ListKeys(context.Background(), "tenant-001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("want 2 keys, got %d", len(keys))
	}
}

func TestKeyService_ListKeys_InvalidTenant(t *testing.T) {
	svc := NewKeyService(&mockKeyMetadataRepository{})

	_, err := svc.ListKeys(context.Background(), "invalid@tenant")
	if !errors.Is(err, domain.ErrInvalidTenantID) {
		t.Errorf("want ErrInvalidTenantID, got %v", err)
	}
}

func TestKeyService_GetKey_NotFound(t *testing.T) {
	svc := NewKeyService(&mockKeyMetadataRepository{findResult: nil})

	_, err := svc.GetKey(context.Background(), "tenant-001", "sales@1")
	if !errors.Is(err, domain.ErrKeyNotFound) {
		t.Errorf("want ErrKeyNotFound, got %v", err)
	}
}

func TestKeyService_RevokeKey_FromActive(t *testing.T) {
	repo := &mockKeyMetadataRepository{findResult: testMetadata("sales@1", domain.KeyStatusActive)}
	svc := NewKeyService(repo)

	key, err := svc.RevokeKey(context.Background(), "tenant-001", "sales@1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.Status != domain.KeyStatusRevoked {
		t.Errorf("want status REVOKED, got %s", key.Status)
	}
	if repo.statusUpdates["tenant-001/sales@1"] != domain.KeyStatusRevoked {
		t.Errorf("want status update persisted, got %v", repo.statusUpdates)
	}
	if len(repo.updateFrom) != 1 || len(repo.updateFrom[0]) != 2 {
		t.Errorf("want update conditioned on [ACTIVE EXPIRED], got %v", repo.updateFrom)
	}
}

func TestKeyService_RevokeKey_RevokedConcurrently(t *testing.T) {
	// 読み取り時はACTIVEだが、更新時には既にREVOKED
	repo := &mockKeyMetadataRepository{
		findResult:      testMetadata("sales@1", domain.KeyStatusActive),
		updateStatusErr: domain.ErrKeyAlreadyRevoked,
	}
	svc := NewKeyService(repo)

	_, err := svc.RevokeKey(context.Background(), "tenant-001", "sales@1")
	if !errors.Is(err, domain.ErrKeyAlreadyRevoked) {
		t.Errorf("want ErrKeyAlreadyRevoked, got %v", err)
	}
}

func TestKeyService_RevokeKey_FromExpired(t *testing.T) {
	repo := &mockKeyMetadataRepository{findResult: testMetadata("sales@1", domain.KeyStatusExpired)}
	svc := NewKeyService(repo)

	if _, err := svc.RevokeKey(context.Background(), "tenant-001", "sales@1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestKeyService_RevokeKey_AlreadyRevoked(t *testing.T) {
	repo := &mockKeyMetadataRepository{findResult: testMetadata("sales@1", domain.KeyStatusRevoked)}
	svc := NewKeyService(repo)

	_, err := svc.RevokeKey(context.Background(), "tenant-001", "sales@1")
	if !errors.Is(err, domain.ErrKeyAlreadyRevoked) {
		t.Errorf("want ErrKeyAlreadyRevoked, got %v", err)
	}
	if len(repo.statusUpdates) != 0 {
		t.Errorf("want no status update, got %v", repo.statusUpdates)
	}
}

func TestKeyService_ExpireKeys(t *testing.T) {
	repo := &mockKeyMetadataRepository{
		expiringResult: []*domain.KeyMetadata{
			testMetadata("sales@1", domain.KeyStatusActive),
			testMetadata("hr@1", domain.KeyStatusActive),
			testMetadata("old@1", domain.KeyStatusRevoked),
		},
	}
	svc := NewKeyService(repo)

	count, err := svc.ExpireKeys(context.Background(), time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Errorf("want 2 expired keys, got %d", count)
	}
	if _, ok := repo.statusUpdates["tenant-001/old@1"]; ok {
		t.Error("revoked key must not transition to EXPIRED")
	}
}

func TestKeyService_ExpireKeys_OnlyFromActive(t *testing.T) {
	repo := &mockKeyMetadataRepository{
		expiringResult: []*domain.KeyMetadata{testMetadata("sales@1", domain.KeyStatusActive)},
	}
	svc := NewKeyService(repo)

	if _, err := svc.ExpireKeys(context.Background(), time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.updateFrom) != 1 || len(repo.updateFrom[0]) != 1 || repo.updateFrom[0][0] != domain.KeyStatusActive {
		t.Errorf("want update conditioned on [ACTIVE], got %v", repo.updateFrom)
	}
}

func TestKeyService_ExpireKeys_RevokedAfterFind(t *testing.T) {
	// 検索結果はACTIVEのスナップショットだが、更新前に失効された
	repo := &mockKeyMetadataRepository{
		expiringResult:  []*domain.KeyMetadata{testMetadata("sales@1", domain.KeyStatusActive)},
		updateStatusErr: fmt.Errorf("%w: REVOKED -> EXPIRED", domain.ErrInvalidStatusTransition),
	}
	svc := NewKeyService(repo)

	count, err := svc.ExpireKeys(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("want concurrently revoked key to be skipped, got %v", err)
	}
	if count != 0 {
		t.Errorf("want 0 expired keys, got %d", count)
	}
}

func TestKeyService_ExpireKeys_UpdateError(t *testing.T) {
	repo := &mockKeyMetadataRepository{
		expiringResult:  []*domain.KeyMetadata{testMetadata("sales@1", domain.KeyStatusActive)},
		updateStatusErr: errors.New("db down"),
	}
	svc := NewKeyService(repo)

	count, err := svc.ExpireKeys(context.Background(), time.Now())
	if err == nil {
		t.Fatal("expected error")
	}
	if count != 0 {
		t.Errorf("want 0 expired keys, got %d", count)
	}
}
