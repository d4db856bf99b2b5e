// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	tenantIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	keyIDRegex    = regexp.MustCompile(`^[a-zA-Z0-9_.@-]+$`)
)

const (
	maxTenantIDLength = 64
	// maxKeyIDLength は基底鍵ID（ローテーション接尾辞を除いた部分）の上限。
	maxKeyIDLength = 128
	// maxRotationSuffixLength は "@" + UnixMilli（最大19桁）+ "-" + 8桁hex。
	maxRotationSuffixLength = 1 + 19 + 1 + 8
	// MaxStoredKeyIDLength は接尾辞を含めた鍵IDの上限。key_metadata.key_id（VARCHAR(160)）に収まる。
	MaxStoredKeyIDLength = maxKeyIDLength + maxRotationSuffixLength
)

// DefaultKeyID は鍵IDが省略された場合に使う論理鍵ID。
const DefaultKeyID = "default"

// RotationSeparator は基底鍵IDとローテーション接尾辞の区切り文字。
const RotationSeparator = "@"

// BaseKeyID はローテーション接尾辞を除いた基底鍵IDを返す。
func BaseKeyID(keyID string) string {
	base, _, _ := strings.Cut(keyID, RotationSeparator)
	return base
}

// KeyStatus は暗号鍵のステータスを表す。
type KeyStatus string

const (
	// KeyStatusActive は有効な鍵を表す。
	KeyStatusActive KeyStatus = "ACTIVE"
	// KeyStatusExpired は有効期限を過ぎた鍵を表す。
	KeyStatusExpired KeyStatus = "EXPIRED"
	// KeyStatusRevoked は明示的に失効させた鍵を表す。
	KeyStatusRevoked KeyStatus = "REVOKED"
)

// IsValid は定義済みのステータスかどうかを返す。
func (s KeyStatus) IsValid() bool {
	switch s {
	case KeyStatusActive, KeyStatusExpired, KeyStatusRevoked:
		return true
	}
	return false
}

// CanTransitionTo はステータス遷移が許可されるかどうかを返す。
// ACTIVE→EXPIRED、ACTIVE/EXPIRED→REVOKED のみ許可し、ACTIVEへ戻る遷移はない。
func (s KeyStatus) CanTransitionTo(next KeyStatus) bool {
	switch next {
	case KeyStatusExpired:
		return s == KeyStatusActive
	case KeyStatusRevoked:
		return s == KeyStatusActive || s == KeyStatusExpired
	}
	return false
}

// TransitionSources はnextへ遷移できる現在ステータスの一覧を返す。
// 条件付き更新（WHERE status IN ...）に使う。
func TransitionSources(next KeyStatus) []KeyStatus {
	var from []KeyStatus
	for _, s := range []KeyStatus{KeyStatusActive, KeyStatusExpired, KeyStatusRevoked} {
		if s.CanTransitionTo(next) {
			from = append(from, s)
		}
	}
	return from
}

// KeyPurpose は鍵の用途を表す。用途をまたいだ鍵の再利用はしない。
type KeyPurpose string

const (
	KeyPurposeEncryption  KeyPurpose = "ENCRYPTION"
	KeyPurposeSigning     KeyPurpose = "SIGNING"
	KeyPurposeKeyExchange KeyPurpose = "KEY_EXCHANGE"
)

// IsValid は定義済みの用途かどうかを返す。
func (p KeyPurpose) IsValid() bool {
	switch p {
	case KeyPurposeEncryption, KeyPurposeSigning, KeyPurposeKeyExchange:
		return true
	}
	return false
}

// KeyMetadata は論理鍵のライフサイクル情報を表す（鍵素材は含まない）。
type KeyMetadata struct {
	KeyID     string     `json:"keyId"`
	Algorithm string     `json:"algorithm"`
	KeySize   int        `json:"keySize"`
	Purpose   KeyPurpose `json:"purpose"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
	Status    KeyStatus  `json:"status"`
	TenantID  string     `json:"tenantId"`
}

// Validate はメタデータの不変条件を検証する。
func (m *KeyMetadata) Validate() error {
	if err := ValidateKeyID(m.KeyID); err != nil {
		return err
	}
	if err := ValidateTenantID(m.TenantID); err != nil {
		return err
	}
	if m.Algorithm == "" || m.KeySize <= 0 {
		return fmt.Errorf("%w: algorithm and key size are required", ErrInvalidKeyMetadata)
	}
	if !m.Purpose.IsValid() {
		return fmt.Errorf("%w: unknown purpose %q", ErrInvalidKeyMetadata, m.Purpose)
	}
	if !m.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidKeyMetadata, m.Status)
	}
	if !m.ExpiresAt.After(m.CreatedAt) {
		return fmt.Errorf("%w: expiresAt must be after createdAt", ErrInvalidKeyMetadata)
	}
	return nil
}

// ValidateTenantID はテナントIDの形式を検証する。
func ValidateTenantID(tenantID string) error {
	if tenantID == "" || len(tenantID) > maxTenantIDLength || !tenantIDRegex.MatchString(tenantID) {
		return ErrInvalidTenantID
	}
	return nil
}

// ValidateKeyID は論理鍵IDの形式を検証する。
// 長さの上限は基底IDに掛かり、ローテーション接尾辞はその外側に付く。
func ValidateKeyID(keyID string) error {
	if keyID == "" || len(keyID) > MaxStoredKeyIDLength || !keyIDRegex.MatchString(keyID) {
		return ErrInvalidKeyID
	}
	base, suffix, rotated := strings.Cut(keyID, RotationSeparator)
	if base == "" || len(base) > maxKeyIDLength {
		return ErrInvalidKeyID
	}
	if rotated && len(RotationSeparator)+len(suffix) > maxRotationSuffixLength {
		return ErrInvalidKeyID
	}
	return nil
}
