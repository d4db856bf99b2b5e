package infra

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/sync/singleflight"

	"crypto-service/internal/domain"
)

const (
	// MasterKeyPrefix はマスター鍵の環境変数名の接頭辞。
	MasterKeyPrefix = "MASTER_KEY_"
	// HMACKeyPrefix はHMAC鍵の環境変数名の接頭辞。
	HMACKeyPrefix = "HMAC_KEY_"

	// minSecretSize はマスター鍵・HMAC鍵に要求する最小バイト数。
	minSecretSize = 32
)

// Decrypter はラップされた鍵を復号する。*KMSClient が実装する。
type Decrypter interface {
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// EnvVarName は鍵IDに対応する環境変数名を返す。
// 鍵IDは大文字化し、英数字以外は "_" に置き換える。
func EnvVarName(prefix, keyID string) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, r := range strings.ToUpper(keyID) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// unwrapFunc は環境変数の値を鍵素材に変換する。
type unwrapFunc func(ctx context.Context, value string) ([]byte, error)

// secretStore は1種類の鍵（マスター鍵またはHMAC鍵）の取得とキャッシュを担う。
// キャッシュするのは環境変数に実在する基底鍵だけで、件数は設定された鍵の数で頭打ちになる。
// ローテーション後の鍵IDと開発用の鍵は呼び出しごとにHKDFで導出する。
type secretStore struct {
	prefix    string
	unwrap    unwrapFunc
	lookupEnv func(string) (string, bool)

	// devRoot は開発モードでのみ設定される、プロセス限りのランダムな根鍵。
	devRoot []byte
	devWarn sync.Once

	mu    sync.RWMutex
	cache map[string][]byte
	// loads は同じ鍵IDの同時アンラップ（KMS呼び出し）を1回にまとめる。
	loads singleflight.Group
}

func newSecretStore(prefix string, unwrap unwrapFunc, devMode bool) (*secretStore, error) {
	s := &secretStore{
		prefix:    prefix,
		unwrap:    unwrap,
		lookupEnv: os.LookupEnv,
		cache:     make(map[string][]byte),
	}
	if devMode {
		s.devRoot = make([]byte, minSecretSize)
		if _, err := io.ReadFull(rand.Reader, s.devRoot); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrRandomGeneration, err)
		}
	}
	return s, nil
}

// get は鍵素材のコピーを返す。呼び出し側は使用後にゼロ化してよい。
func (s *secretStore) get(ctx context.Context, keyID string) ([]byte, error) {
	if keyID == "" {
		return nil, fmt.Errorf("%w: empty key ID", domain.ErrMasterKeyUnavailable)
	}

	secret, found, err := s.base(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if found {
		out := make([]byte, len(secret))
		copy(out, secret)
		return out, nil
	}

	// 自身の環境変数を持たないローテーション後の鍵IDは基底鍵から派生させる
	if base := domain.BaseKeyID(keyID); base != keyID {
		baseSecret, found, err := s.base(ctx, base)
		if err != nil {
			return nil, err
		}
		if found {
			return deriveSecret(baseSecret, s.prefix+keyID)
		}
	}

	if s.devRoot == nil {
		return nil, fmt.Errorf("%w: %s is not set", domain.ErrMasterKeyUnavailable, EnvVarName(s.prefix, keyID))
	}
	s.devWarn.Do(func() {
		slog.WarnContext(ctx, "using ephemeral development keys; data encrypted with them will not survive a restart",
			"prefix", s.prefix,
			"first_env", EnvVarName(s.prefix, keyID),
		)
	})
	return deriveSecret(s.devRoot, s.prefix+keyID)
}

// base は環境変数に設定された鍵をキャッシュ経由で返す。設定がなければfound=false。
// 返すスライスはキャッシュそのものなので変更しないこと。
func (s *secretStore) base(ctx context.Context, keyID string) (secret []byte, found bool, err error) {
	s.mu.RLock()
	secret, found = s.cache[keyID]
	s.mu.RUnlock()
	if found {
		return secret, true, nil
	}

	v, err, _ := s.loads.Do(keyID, func() (any, error) {
		s.mu.RLock()
		cached, ok := s.cache[keyID]
		s.mu.RUnlock()
		if ok {
			return cached, nil
		}
		secret, found, err := s.load(ctx, keyID)
		if err != nil || !found {
			return nil, err
		}
		s.mu.Lock()
		s.cache[keyID] = secret
		s.mu.Unlock()
		return secret, nil
	})
	if err != nil {
		return nil, false, err
	}
	if v == nil {
		return nil, false, nil
	}
	return v.([]byte), true, nil
}

func (s *secretStore) load(ctx context.Context, keyID string) ([]byte, bool, error) {
	name := EnvVarName(s.prefix, keyID)
	value, ok := s.lookupEnv(name)
	if !ok || value == "" {
		return nil, false, nil
	}
	secret, err := s.unwrap(ctx, value)
	if err != nil {
		// 値そのものはエラーに含めない
		return nil, false, fmt.Errorf("%w: %s: %w", domain.ErrMasterKeyUnavailable, name, err)
	}
	if len(secret) < minSecretSize {
		return nil, false, fmt.Errorf("%w: %s must be at least %d bytes", domain.ErrMasterKeyUnavailable, name, minSecretSize)
	}
	return secret, true, nil
}

// requireAll は必須鍵IDがすべて解決できることを確認する。
func (s *secretStore) requireAll(ctx context.Context, keyIDs []string) error {
	if s.devRoot != nil {
		return nil
	}
	for _, id := range keyIDs {
		if _, err := s.get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// cached はキャッシュ済みの鍵数を返す。
func (s *secretStore) cached() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

func deriveSecret(root []byte, info string) ([]byte, error) {
	out := make([]byte, minSecretSize)
	r := hkdf.New(sha256.New, root, nil, []byte(info))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("%w: deriving key: %w", domain.ErrMasterKeyUnavailable, err)
	}
	return out, nil
}

func decodeBase64(_ context.Context, value string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("value is not valid base64")
	}
	return b, nil
}

// newStorePair はマスター鍵・HMAC鍵のストアを作り、必須鍵を検証する。
func newStorePair(ctx context.Context, unwrap unwrapFunc, requiredKeyIDs []string, devMode bool) (master, hmac *secretStore, err error) {
	if master, err = newSecretStore(MasterKeyPrefix, unwrap, devMode); err != nil {
		return nil, nil, err
	}
	if hmac, err = newSecretStore(HMACKeyPrefix, unwrap, devMode); err != nil {
		return nil, nil, err
	}
	if err := master.requireAll(ctx, requiredKeyIDs); err != nil {
		return nil, nil, err
	}
	if err := hmac.requireAll(ctx, requiredKeyIDs); err != nil {
		return nil, nil, err
	}
	return master, hmac, nil
}

// EnvKeyProvider は環境変数に置いたbase64エンコード済みの鍵を提供する。
type EnvKeyProvider struct {
	master *secretStore
	hmac   *secretStore
}

// NewEnvKeyProvider はEnvKeyProviderを生成する。
// 開発モード以外では、requiredKeyIDsの鍵が揃っていなければエラーを返す。
func NewEnvKeyProvider(ctx context.Context, requiredKeyIDs []string, devMode bool) (*EnvKeyProvider, error) {
	master, hmac, err := newStorePair(ctx, decodeBase64, requiredKeyIDs, devMode)
	if err != nil {
		return nil, err
	}
	return &EnvKeyProvider{master: master, hmac: hmac}, nil
}

// GetMasterKey はマスター鍵のコピーを返す。
func (p *EnvKeyProvider) GetMasterKey(ctx context.Context, keyID string) ([]byte, error) {
	return p.master.get(ctx, keyID)
}

// GetHMACKey はHMAC鍵のコピーを返す。
func (p *EnvKeyProvider) GetHMACKey(ctx context.Context, keyID string) ([]byte, error) {
	return p.hmac.get(ctx, keyID)
}

// KMSKeyProvider は環境変数に置いたCloud KMS暗号文（base64）を復号して鍵を提供する。
// 復号結果はプロセス内にキャッシュする。
type KMSKeyProvider struct {
	master *secretStore
	hmac   *secretStore
}

// NewKMSKeyProvider はKMSKeyProviderを生成する。必須鍵は生成時に復号して検証する。
func NewKMSKeyProvider(ctx context.Context, decrypter Decrypter, requiredKeyIDs []string, devMode bool) (*KMSKeyProvider, error) {
	unwrap := func(ctx context.Context, value string) ([]byte, error) {
		ciphertext, err := decodeBase64(ctx, value)
		if err != nil {
			return nil, err
		}
		return decrypter.Decrypt(ctx, ciphertext)
	}
	master, hmac, err := newStorePair(ctx, unwrap, requiredKeyIDs, devMode)
	if err != nil {
		return nil, err
	}
	return &KMSKeyProvider{master: master, hmac: hmac}, nil
}

// GetMasterKey はマスター鍵のコピーを返す。
func (p *KMSKeyProvider) GetMasterKey(ctx context.Context, keyID string) ([]byte, error) {
	return p.master.get(ctx, keyID)
}

// GetHMACKey はHMAC鍵のコピーを返す。
func (p *KMSKeyProvider) GetHMACKey(ctx context.Context, keyID string) ([]byte, error) {
	return p.hmac.get(ctx, keyID)
}
