package usecase

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"crypto-service/internal/domain"
	"crypto-service/pkg/cryptoutil"
)

// 承認済みアルゴリズム
const (
	AlgorithmAES256GCM        = "aes-256-gcm"
	AlgorithmAES192GCM        = "aes-192-gcm"
	AlgorithmAES128GCM        = "aes-128-gcm"
	AlgorithmChaCha20Poly1305 = "chacha20-poly1305"
	AlgorithmHMACSHA256       = "hmac-sha256"
	AlgorithmHMACSHA512       = "hmac-sha512"
	AlgorithmX25519           = "x25519"
)

const (
	saltSize          = 32 // 256 bits
	gcmIVSize         = 16 // 128 bits
	defaultRandomSize = 32
	packedSeparator   = ":"
)

// minimumKeySizes はアルゴリズムごとの最小鍵長（ビット）。ここにないアルゴリズムは拒否する。
var minimumKeySizes = map[string]int{
	AlgorithmAES256GCM:        256,
	AlgorithmAES192GCM:        192,
	AlgorithmAES128GCM:        128,
	AlgorithmChaCha20Poly1305: 256,
	AlgorithmHMACSHA256:       256,
	AlgorithmHMACSHA512:       512,
	AlgorithmX25519:           256,
}

// aeadSpec は暗号化に使えるAEADの構成を表す。
type aeadSpec struct {
	keyBits int
	newAEAD func(key []byte) (cipher.AEAD, error)
}

var aeadSpecs = map[string]aeadSpec{
	AlgorithmAES256GCM: {
		keyBits: 256,
		newAEAD: func(key []byte) (cipher.AEAD, error) {
			block, err := aes.NewCipher(key)
			if err != nil {
				return nil, err
			}
			return cipher.NewGCMWithNonceSize(block, gcmIVSize)
		},
	},
	AlgorithmChaCha20Poly1305: {
		keyBits: 256,
		newAEAD: chacha20poly1305.New,
	},
}

// MasterKeyProvider は論理鍵IDに対応するマスター鍵を返す。
// 返すスライスは呼び出し側が使用後にゼロ化するため、毎回コピーを返すこと。
type MasterKeyProvider interface {
	GetMasterKey(ctx context.Context, keyID string) ([]byte, error)
}

// HMACKeyProvider は論理鍵IDに対応するHMAC鍵を返す。マスター鍵とは別の名前空間。
type HMACKeyProvider interface {
	GetHMACKey(ctx context.Context, keyID string) ([]byte, error)
}

// KeyMetadataStore は鍵メタデータの永続化先。
type KeyMetadataStore interface {
	Create(ctx context.Context, metadata *domain.KeyMetadata) error
}

// CryptoConfig は暗号パラメータを表す。
type CryptoConfig struct {
	Algorithm   string
	ScryptN     int
	ScryptR     int
	ScryptP     int
	KeyValidity time.Duration
}

// DefaultCryptoConfig は既定の暗号パラメータを返す。
func DefaultCryptoConfig() CryptoConfig {
	return CryptoConfig{
		Algorithm:   AlgorithmAES256GCM,
		ScryptN:     16384,
		ScryptR:     8,
		ScryptP:     1,
		KeyValidity: 365 * 24 * time.Hour,
	}
}

// CryptoService は認証付き暗号化、HMAC、ハッシュ、乱数生成、鍵ローテーションを提供する。
// 内部に可変状態を持たないため、並行に呼び出してよい。
type CryptoService struct {
	masterKeys MasterKeyProvider
	hmacKeys   HMACKeyProvider
	store      KeyMetadataStore
	cfg        CryptoConfig

	random io.Reader
	now    func() time.Time
}

// NewCryptoService は新しいCryptoServiceを生成する。
func NewCryptoService(masterKeys MasterKeyProvider, hmacKeys HMACKeyProvider, store KeyMetadataStore, cfg CryptoConfig) (*CryptoService, error) {
	if masterKeys == nil || hmacKeys == nil || store == nil {
		return nil, errors.New("master key provider, HMAC key provider and metadata store are required")
	}
	if _, ok := aeadSpecs[cfg.Algorithm]; !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedAlgorithm, cfg.Algorithm)
	}
	if cfg.KeyValidity <= 0 {
		return nil, errors.New("key validity must be positive")
	}
	return &CryptoService{
		masterKeys: masterKeys,
		hmacKeys:   hmacKeys,
		store:      store,
		cfg:        cfg,
		random:     rand.Reader,
		now:        time.Now,
	}, nil
}

// Encrypt は平文をkeyIDのマスター鍵から導出した鍵で暗号化する。
// ソルトとIVは呼び出しごとに新しく生成する。
func (s *CryptoService) Encrypt(ctx context.Context, plaintext, keyID string) (*domain.EncryptionResult, error) {
	if keyID == "" {
		keyID = domain.DefaultKeyID
	}
	fail := func(err error) (*domain.EncryptionResult, error) {
		return nil, fmt.Errorf("%w: keyId=%s: %w", domain.ErrEncryption, keyID, err)
	}
	if err := domain.ValidateKeyID(keyID); err != nil {
		return fail(err)
	}

	algorithm := s.cfg.Algorithm
	spec := aeadSpecs[algorithm]

	salt, err := s.randomBytes(saltSize)
	if err != nil {
		return fail(err)
	}

	key, err := s.deriveKey(ctx, keyID, salt, spec.keyBits/8)
	if err != nil {
		return fail(err)
	}
	defer cryptoutil.Zero(key)

	aead, err := spec.newAEAD(key)
	if err != nil {
		return fail(fmt.Errorf("initializing cipher: %w", err))
	}

	iv, err := s.randomBytes(aead.NonceSize())
	if err != nil {
		return fail(err)
	}

	sealed := aead.Seal(nil, iv, []byte(plaintext), associatedData(algorithm, keyID))
	tagStart := len(sealed) - aead.Overhead()

	return &domain.EncryptionResult{
		Encrypted: hex.EncodeToString(sealed[:tagStart]) + packedSeparator + hex.EncodeToString(sealed[tagStart:]),
		IV:        hex.EncodeToString(iv),
		Salt:      hex.EncodeToString(salt),
		Algorithm: algorithm,
		KeyID:     keyID,
	}, nil
}

// Decrypt はEncryptionResultを復号する。認証タグの検証に失敗した場合は平文を一切返さない。
func (s *CryptoService) Decrypt(ctx context.Context, result *domain.EncryptionResult) (string, error) {
	if result == nil {
		return "", fmt.Errorf("%w: nil encryption result", domain.ErrDecryption)
	}
	keyID := result.KeyID
	fail := func(err error) (string, error) {
		return "", fmt.Errorf("%w: keyId=%s: %w", domain.ErrDecryption, keyID, err)
	}
	if err := domain.ValidateKeyID(keyID); err != nil {
		return fail(err)
	}

	spec, ok := aeadSpecs[result.Algorithm]
	if !ok {
		return fail(fmt.Errorf("%w: %q", domain.ErrUnsupportedAlgorithm, result.Algorithm))
	}

	ctHex, tagHex, ok := strings.Cut(result.Encrypted, packedSeparator)
	if !ok {
		return fail(errors.New("malformed ciphertext: missing tag separator"))
	}
	ciphertext, err := hex.DecodeString(ctHex)
	if err != nil {
		return fail(fmt.Errorf("decoding ciphertext: %w", err))
	}
	tag, err := hex.DecodeString(tagHex)
	if err != nil {
		return fail(fmt.Errorf("decoding tag: %w", err))
	}
	iv, err := hex.DecodeString(result.IV)
	if err != nil {
		return fail(fmt.Errorf("decoding iv: %w", err))
	}
	salt, err := hex.DecodeString(result.Salt)
	if err != nil {
		return fail(fmt.Errorf("decoding salt: %w", err))
	}
	if len(salt) != saltSize {
		return fail(fmt.Errorf("invalid salt length %d", len(salt)))
	}

	key, err := s.deriveKey(ctx, keyID, salt, spec.keyBits/8)
	if err != nil {
		return fail(err)
	}
	defer cryptoutil.Zero(key)

	aead, err := spec.newAEAD(key)
	if err != nil {
		return fail(fmt.Errorf("initializing cipher: %w", err))
	}
	if len(iv) != aead.NonceSize() {
		return fail(fmt.Errorf("invalid iv length %d", len(iv)))
	}
	if len(tag) != aead.Overhead() {
		return fail(fmt.Errorf("invalid tag length %d", len(tag)))
	}

	plaintext, err := aead.Open(nil, iv, append(ciphertext, tag...), associatedData(result.Algorithm, keyID))
	if err != nil {
		return fail(fmt.Errorf("authentication failed: %w", err))
	}
	return string(plaintext), nil
}

// Reencrypt は既存の暗号文を復号し、newKeyIDの鍵で暗号化し直す。
// ローテーション後に呼び出し側がデータを移行するために使う。
func (s *CryptoService) Reencrypt(ctx context.Context, result *domain.EncryptionResult, newKeyID string) (*domain.EncryptionResult, error) {
	plaintext, err := s.Decrypt(ctx, result)
	if err != nil {
		return nil, err
	}
	return s.Encrypt(ctx, plaintext, newKeyID)
}

// CreateHMAC はdataのHMAC-SHA-256をhexで返す。
func (s *CryptoService) CreateHMAC(ctx context.Context, data, keyID string) (string, error) {
	if keyID == "" {
		keyID = domain.DefaultKeyID
	}
	key, err := s.hmacKeys.GetHMACKey(ctx, keyID)
	if err != nil {
		return "", fmt.Errorf("%w: keyId=%s: looking up hmac key: %w", domain.ErrIntegrity, keyID, err)
	}
	defer cryptoutil.Zero(key)
	if len(key) == 0 {
		return "", fmt.Errorf("%w: keyId=%s: %w", domain.ErrIntegrity, keyID, domain.ErrMasterKeyUnavailable)
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifyHMAC はHMACを再計算し、定数時間で比較する。
func (s *CryptoService) VerifyHMAC(ctx context.Context, data, expectedHMAC, keyID string) (bool, error) {
	computed, err := s.CreateHMAC(ctx, data, keyID)
	if err != nil {
		return false, err
	}
	return cryptoutil.ConstantTimeEqual(computed, strings.ToLower(expectedHMAC)), nil
}

// Hash はdata+saltのSHA-256を返す。saltが空の場合は256ビットのソルトを生成する。
// 資格情報の保存には使わないこと（HashPasswordを使う）。
func (s *CryptoService) Hash(data, salt string) (*domain.HashResult, error) {
	if salt == "" {
		b, err := s.randomBytes(saltSize)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrHashing, err)
		}
		salt = hex.EncodeToString(b)
	}
	sum := sha256.Sum256([]byte(data + salt))
	return &domain.HashResult{
		Hash: hex.EncodeToString(sum[:]),
		Salt: salt,
	}, nil
}

// VerifyHash は保存済みのハッシュとソルトでdataを検証する。
func (s *CryptoService) VerifyHash(data, salt, expectedHash string) (bool, error) {
	if salt == "" {
		return false, fmt.Errorf("%w: salt is required for verification", domain.ErrHashing)
	}
	result, err := s.Hash(data, salt)
	if err != nil {
		return false, err
	}
	return cryptoutil.ConstantTimeEqual(result.Hash, strings.ToLower(expectedHash)), nil
}

// GenerateSecureRandom はsizeバイトの暗号学的乱数をhexで返す。sizeが0の場合は32バイト。
func (s *CryptoService) GenerateSecureRandom(size int) (string, error) {
	if size == 0 {
		size = defaultRandomSize
	}
	if size < 0 {
		return "", fmt.Errorf("%w: invalid size %d", domain.ErrRandomGeneration, size)
	}
	b, err := s.randomBytes(size)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// RotateKey はkeyIDから新しい論理鍵IDを作り、ACTIVEなメタデータを登録する。
// 既存の暗号文は再暗号化しない。
func (s *CryptoService) RotateKey(ctx context.Context, keyID, tenantID string) (*domain.KeyMetadata, error) {
	return s.RotateKeyForPurpose(ctx, keyID, tenantID, domain.KeyPurposeEncryption)
}

// RotateKeyForPurpose は用途を指定して鍵をローテーションする。
func (s *CryptoService) RotateKeyForPurpose(ctx context.Context, keyID, tenantID string, purpose domain.KeyPurpose) (*domain.KeyMetadata, error) {
	if err := domain.ValidateKeyID(keyID); err != nil {
		return nil, err
	}
	if err := domain.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}

	algorithm, keySize, err := s.algorithmFor(purpose)
	if err != nil {
		return nil, err
	}
	if !s.ValidateEncryptionStandards(algorithm, keySize) {
		return nil, fmt.Errorf("%w: %s/%d", domain.ErrUnsupportedAlgorithm, algorithm, keySize)
	}

	now := s.now().UTC()
	metadata := &domain.KeyMetadata{
		KeyID:     nextKeyID(keyID, now),
		Algorithm: algorithm,
		KeySize:   keySize,
		Purpose:   purpose,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.KeyValidity),
		Status:    domain.KeyStatusActive,
		TenantID:  tenantID,
	}
	if err := metadata.Validate(); err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, metadata); err != nil {
		return nil, fmt.Errorf("creating key metadata: %w", err)
	}
	return metadata, nil
}

// ValidateEncryptionStandards はアルゴリズムが許可リストにあり、鍵長が最小値以上かを返す。
// 未知のアルゴリズムは常にfalse。
func (s *CryptoService) ValidateEncryptionStandards(algorithm string, keySize int) bool {
	minimum, ok := minimumKeySizes[strings.ToLower(algorithm)]
	return ok && keySize >= minimum
}

func (s *CryptoService) algorithmFor(purpose domain.KeyPurpose) (string, int, error) {
	switch purpose {
	case domain.KeyPurposeEncryption:
		return s.cfg.Algorithm, aeadSpecs[s.cfg.Algorithm].keyBits, nil
	case domain.KeyPurposeSigning:
		return AlgorithmHMACSHA256, 256, nil
	case domain.KeyPurposeKeyExchange:
		return AlgorithmX25519, 256, nil
	}
	return "", 0, fmt.Errorf("%w: unknown purpose %q", domain.ErrInvalidKeyMetadata, purpose)
}

func (s *CryptoService) deriveKey(ctx context.Context, keyID string, salt []byte, keyLen int) ([]byte, error) {
	master, err := s.masterKeys.GetMasterKey(ctx, keyID)
	if err != nil {
		return nil, fmt.Errorf("looking up master key: %w", err)
	}
	defer cryptoutil.Zero(master)
	if len(master) == 0 {
		return nil, domain.ErrMasterKeyUnavailable
	}

	key, err := scrypt.Key(master, salt, s.cfg.ScryptN, s.cfg.ScryptR, s.cfg.ScryptP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	return key, nil
}

func (s *CryptoService) randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(s.random, b); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRandomGeneration, err)
	}
	return b, nil
}

// associatedData はアルゴリズムと鍵IDを認証対象に含める。
func associatedData(algorithm, keyID string) []byte {
	return []byte(algorithm + "|" + keyID)
}

// nextKeyID は前回のローテーション接尾辞を除いた基底IDに、時刻と乱数片を付与する。
func nextKeyID(keyID string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s%s%d-%s", domain.BaseKeyID(keyID), domain.RotationSeparator, now.UnixMilli(), suffix)
}
