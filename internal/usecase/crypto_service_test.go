package usecase

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"crypto-service/internal/domain"
)

// mockKeyProvider はテスト用のインメモリ鍵プロバイダ。
type mockKeyProvider struct {
	keys map[string][]byte
	err  error
}

func (m *mockKeyProvider) lookup(keyID string) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	k, ok := m.keys[keyID]
	if !ok {
		return nil, domain.ErrMasterKeyUnavailable
	}
	out := make([]byte, len(k))
	copy(out, k)
	return out, nil
}

func (m *mockKeyProvider) GetMasterKey(ctx context.Context, keyID string) ([]byte, error) {
	return m.lookup(keyID)
}

func (m *mockKeyProvider) GetHMACKey(ctx context.Context, keyID string) ([]byte, error) {
	return m.lookup(keyID)
}

// mockMetadataStore はテスト用のメタデータストア。
type mockMetadataStore struct {
	createErr error
	created   []*domain.KeyMetadata
}

func (m *mockMetadataStore) Create(ctx context.Context, metadata *domain.KeyMetadata) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, metadata)
	return nil
}

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("entropy source unavailable")
}

const (
	testMasterSecret = "master-default-secret-0123456789"
	testHMACSecret   = "hmac-default-secret-0123456789"
)

func newTestProviders() (*mockKeyProvider, *mockKeyProvider) {
	master := &mockKeyProvider{keys: map[string][]byte{
		"default": []byte(testMasterSecret),
		"sales":   []byte("master-sales-secret-0123456789"),
	}}
	hmacKeys := &mockKeyProvider{keys: map[string][]byte{
		"default": []byte(testHMACSecret),
		"sales":   []byte("hmac-sales-secret-0123456789"),
	}}
	return master, hmacKeys
}

func testCryptoConfig() CryptoConfig {
	cfg := DefaultCryptoConfig()
	cfg.ScryptN = 1024
	return cfg
}

func newTestCryptoService(t *testing.T) (*CryptoService, *mockMetadataStore) {
	t.Helper()
	master, hmacKeys := newTestProviders()
	store := &mockMetadataStore{}
	svc, err := NewCryptoService(master, hmacKeys, store, testCryptoConfig())
	if err != nil {
		t.Fatalf("failed to create crypto service: %v", err)
	}
	return svc, store
}

// flipHexBit はhex文字列のi番目のバイトの最下位ビットを反転する。
func flipHexBit(t *testing.T, s string, i int) string {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("invalid hex: %v", err)
	}
	b[i] ^= 0x01
	return hex.EncodeToString(b)
}

func TestNewCryptoService_UnsupportedAlgorithm(t *testing.T) {
	master, hmacKeys := newTestProviders()
	cfg := testCryptoConfig()
	cfg.Algorithm = "des"

	_, err := NewCryptoService(master, hmacKeys, &mockMetadataStore{}, cfg)
	if !errors.Is(err, domain.ErrUnsupportedAlgorithm) {
		t.Errorf("want ErrUnsupportedAlgorithm, got %v", err)
	}
}

func TestCryptoService_EncryptDecrypt_RoundTrip(t *testing.T) {
	svc, _ := newTestCryptoService(t)
	ctx := context.Background()

	plaintexts := []string{"", "a", "hello world", "日本語のテキスト 🔐", strings.Repeat("x", 10000)}
	for _, p := range plaintexts {
		result, err := svc.Encrypt(ctx, p, "sales")
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		got, err := svc.Decrypt(ctx, result)
		if err != nil {
			t.Fatalf("Decrypt failed: %v", err)
		}
		if got != p {
			t.Errorf("round-trip mismatch: want %q, got %q", p, got)
		}
	}
}

func TestCryptoService_Encrypt_ResultShape(t *testing.T) {
	svc, _ := newTestCryptoService(t)

	result, err := svc.Encrypt(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if result.KeyID != domain.DefaultKeyID {
		t.Errorf("want keyId default, got %s", result.KeyID)
	}
	if result.Algorithm != AlgorithmAES256GCM {
		t.Errorf("want algorithm %s, got %s", AlgorithmAES256GCM, result.Algorithm)
	}
	if len(result.IV) != 32 {
		t.Errorf("want 128-bit iv (32 hex chars), got %d chars", len(result.IV))
	}
	if len(result.Salt) != 64 {
		t.Errorf("want 256-bit salt (64 hex chars), got %d chars", len(result.Salt))
	}
	ct, tag, ok := strings.Cut(result.Encrypted, ":")
	if !ok {
		t.Fatalf("want packed ciphertext with separator, got %q", result.Encrypted)
	}
	if len(ct) != len("hello")*2 {
		t.Errorf("want ciphertext of %d hex chars, got %d", len("hello")*2, len(ct))
	}
	if len(tag) != 32 {
		t.Errorf("want 128-bit tag, got %d hex chars", len(tag))
	}
}

func TestCryptoService_Encrypt_Uniqueness(t *testing.T) {
	svc, _ := newTestCryptoService(t)
	ctx := context.Background()

	first, err := svc.Encrypt(ctx, "same plaintext", "sales")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	second, err := svc.Encrypt(ctx, "same plaintext", "sales")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if first.IV == second.IV {
		t.Error("iv reused across encryptions")
	}
	if first.Salt == second.Salt {
		t.Error("salt reused across encryptions")
	}
	if first.Encrypted == second.Encrypted {
		t.Error("ciphertext identical across encryptions")
	}
}

func TestCryptoService_EncryptDecrypt_PersistedAsJSON(t *testing.T) {
	svc, _ := newTestCryptoService(t)
	ctx := context.Background()

	result, err := svc.Encrypt(ctx, "hello world", "sales")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	for _, field := range []string{`"encrypted"`, `"iv"`, `"salt"`, `"algorithm"`, `"keyId"`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("persisted JSON missing %s: %s", field, data)
		}
	}

	var reloaded domain.EncryptionResult
	if err := json.Unmarshal(data, &reloaded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	got, err := svc.Decrypt(ctx, &reloaded)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if got != "hello world" {
		t.Errorf("want %q, got %q", "hello world", got)
	}
}

func TestCryptoService_Decrypt_TamperDetection(t *testing.T) {
	svc, _ := newTestCryptoService(t)
	ctx := context.Background()

	original, err := svc.Encrypt(ctx, "sensitive payroll data", "default")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	ct, tag, _ := strings.Cut(original.Encrypted, ":")

	tampered := map[string]func(r *domain.EncryptionResult){
		"ciphertext": func(r *domain.EncryptionResult) { r.Encrypted = flipHexBit(t, ct, 0) + ":" + tag },
		"tag":        func(r *domain.EncryptionResult) { r.Encrypted = ct + ":" + flipHexBit(t, tag, 15) },
		"iv":         func(r *domain.EncryptionResult) { r.IV = flipHexBit(t, original.IV, 3) },
		"salt":       func(r *domain.EncryptionResult) { r.Salt = flipHexBit(t, original.Salt, 31) },
		"keyId":      func(r *domain.EncryptionResult) { r.KeyID = "sales" },
	}

	for name, mutate := range tampered {
		r := *original
		mutate(&r)
		got, err := svc.Decrypt(ctx, &r)
		if !errors.Is(err, domain.ErrDecryption) {
			t.Errorf("%s: want ErrDecryption, got %v", name, err)
		}
		if got != "" {
			t.Errorf("%s: plaintext returned on failure: %q", name, got)
		}
	}
}

func TestCryptoService_Decrypt_Malformed(t *testing.T) {
	svc, _ := newTestCryptoService(t)
	ctx := context.Background()

	original, err := svc.Encrypt(ctx, "hello", "default")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	cases := map[string]func(r *domain.EncryptionResult){
		"missing separator":  func(r *domain.EncryptionResult) { r.Encrypted = strings.Replace(r.Encrypted, ":", "", 1) },
		"non-hex ciphertext": func(r *domain.EncryptionResult) { r.Encrypted = "zz" + r.Encrypted },
		"short iv":           func(r *domain.EncryptionResult) { r.IV = r.IV[:24] },
		"short salt":         func(r *domain.EncryptionResult) { r.Salt = r.Salt[:32] },
		"empty key id":       func(r *domain.EncryptionResult) { r.KeyID = "" },
	}
	for name, mutate := range cases {
		r := *original
		mutate(&r)
		if _, err := svc.Decrypt(ctx, &r); !errors.Is(err, domain.ErrDecryption) {
			t.Errorf("%s: want ErrDecryption, got %v", name, err)
		}
	}

	if _, err := svc.Decrypt(ctx, nil); !errors.Is(err, domain.ErrDecryption) {
		t.Errorf("nil result: want ErrDecryption, got %v", err)
	}
}

func TestCryptoService_Decrypt_UnknownAlgorithm(t *testing.T) {
	svc, _ := newTestCryptoService(t)
	ctx := context.Background()

	result, err := svc.Encrypt(ctx, "hello", "default")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	result.Algorithm = "aes-256-cbc"

	_, err = svc.Decrypt(ctx, result)
	if !errors.Is(err, domain.ErrDecryption) {
		t.Errorf("want ErrDecryption, got %v", err)
	}
	if !errors.Is(err, domain.ErrUnsupportedAlgorithm) {
		t.Errorf("want cause ErrUnsupportedAlgorithm, got %v", err)
	}
}

func TestCryptoService_Encrypt_UnknownKeyID(t *testing.T) {
	svc, _ := newTestCryptoService(t)

	_, err := svc.Encrypt(context.Background(), "hello", "unknown")
	if !errors.Is(err, domain.ErrEncryption) {
		t.Errorf("want ErrEncryption, got %v", err)
	}
	if !errors.Is(err, domain.ErrMasterKeyUnavailable) {
		t.Errorf("want cause ErrMasterKeyUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "keyId=unknown") {
		t.Errorf("want keyId in error context, got %v", err)
	}
}

func TestCryptoService_Encrypt_RandomFailure(t *testing.T) {
	svc, _ := newTestCryptoService(t)
	svc.random = failingReader{}

	_, err := svc.Encrypt(context.Background(), "hello", "default")
	if !errors.Is(err, domain.ErrEncryption) {
		t.Errorf("want ErrEncryption, got %v", err)
	}
	if !errors.Is(err, domain.ErrRandomGeneration) {
		t.Errorf("want cause ErrRandomGeneration, got %v", err)
	}
}

func TestCryptoService_Errors_DoNotLeakSecrets(t *testing.T) {
	svc, _ := newTestCryptoService(t)
	ctx := context.Background()

	result, err := svc.Encrypt(ctx, "hello", "default")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	result.IV = flipHexBit(t, result.IV, 0)

	_, err = svc.Decrypt(ctx, result)
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), testMasterSecret) || strings.Contains(err.Error(), "hello") {
		t.Errorf("error leaks secret material: %v", err)
	}
}

func TestCryptoService_ChaCha20Poly1305_RoundTrip(t *testing.T) {
	master, hmacKeys := newTestProviders()
	cfg := testCryptoConfig()
	cfg.Algorithm = AlgorithmChaCha20Poly1305
	svc, err := NewCryptoService(master, hmacKeys, &mockMetadataStore{}, cfg)
	if err != nil {
		t.Fatalf("failed to create crypto service: %v", err)
	}
	ctx := context.Background()

	result, err := svc.Encrypt(ctx, "hello world", "sales")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if result.Algorithm != AlgorithmChaCha20Poly1305 {
		t.Errorf("want algorithm %s, got %s", AlgorithmChaCha20Poly1305, result.Algorithm)
	}
	got, err := svc.Decrypt(ctx, result)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if got != "hello world" {
		t.Errorf("want %q, got %q", "hello world", got)
	}
}

func TestCryptoService_Reencrypt(t *testing.T) {
	svc, _ := newTestCryptoService(t)
	ctx := context.Background()

	old, err := svc.Encrypt(ctx, "migrate me", "default")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	migrated, err := svc.Reencrypt(ctx, old, "sales")
	if err != nil {
		t.Fatalf("Reencrypt failed: %v", err)
	}
	if migrated.KeyID != "sales" {
		t.Errorf("want keyId sales, got %s", migrated.KeyID)
	}
	got, err := svc.Decrypt(ctx, migrated)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if got != "migrate me" {
		t.Errorf("want %q, got %q", "migrate me", got)
	}
}

func TestCryptoService_CreateHMAC_Deterministic(t *testing.T) {
	svc, _ := newTestCryptoService(t)
	ctx := context.Background()

	first, err := svc.CreateHMAC(ctx, "invoice-123", "default")
	if err != nil {
		t.Fatalf("CreateHMAC failed: %v", err)
	}
	second, err := svc.CreateHMAC(ctx, "invoice-123", "default")
	if err != nil {
		t.Fatalf("CreateHMAC failed: %v", err)
	}
	if first != second {
		t.Errorf("HMAC not deterministic: %s != %s", first, second)
	}

	mac := hmac.New(sha256.New, []byte(testHMACSecret))
	mac.Write([]byte("invoice-123"))
	if want := hex.EncodeToString(mac.Sum(nil)); first != want {
		t.Errorf("want HMAC from hmac key namespace %s, got %s", want, first)
	}
}

func TestCryptoService_VerifyHMAC(t *testing.T) {
	svc, _ := newTestCryptoService(t)
	ctx := context.Background()

	mac, err := svc.CreateHMAC(ctx, "invoice-123", "sales")
	if err != nil {
		t.Fatalf("CreateHMAC failed: %v", err)
	}

	tests := []struct {
		name     string
		data     string
		expected string
		keyID    string
		want     bool
	}{
		{"match", "invoice-123", mac, "sales", true},
		{"upper-case hex", "invoice-123", strings.ToUpper(mac), "sales", true},
		{"different data", "invoice-124", mac, "sales", false},
		{"different key", "invoice-123", mac, "default", false},
		{"truncated", "invoice-123", mac[:32], "sales", false},
		{"empty", "invoice-123", "", "sales", false},
	}
	for _, tt := range tests {
		got, err := svc.VerifyHMAC(ctx, tt.data, tt.expected, tt.keyID)
		if err != nil {
			t.Fatalf("%s: VerifyHMAC failed: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: want %v, got %v", tt.name, tt.want, got)
		}
	}
}

func TestCryptoService_CreateHMAC_KeyLookupFailure(t *testing.T) {
	master, _ := newTestProviders()
	hmacKeys := &mockKeyProvider{err: errors.New("kms unavailable")}
	svc, err := NewCryptoService(master, hmacKeys, &mockMetadataStore{}, testCryptoConfig())
	if err != nil {
		t.Fatalf("failed to create crypto service: %v", err)
	}

	_, err = svc.CreateHMAC(context.Background(), "data", "default")
	if !errors.Is(err, domain.ErrIntegrity) {
		t.Errorf("want ErrIntegrity, got %v", err)
	}

	ok, err := svc.VerifyHMAC(context.Background(), "data", "00", "default")
	if ok || !errors.Is(err, domain.ErrIntegrity) {
		t.Errorf("want false and ErrIntegrity, got %v, %v", ok, err)
	}
}

func TestCryptoService_Hash_Deterministic(t *testing.T) {
	svc, _ := newTestCryptoService(t)

	first, err := svc.Hash("customer-42", "abcdef")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	second, err := svc.Hash("customer-42", "abcdef")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if first.Hash != second.Hash {
		t.Errorf("hash not deterministic: %s != %s", first.Hash, second.Hash)
	}
	if first.Salt != "abcdef" {
		t.Errorf("want salt preserved, got %s", first.Salt)
	}

	sum := sha256.Sum256([]byte("customer-42abcdef"))
	if want := hex.EncodeToString(sum[:]); first.Hash != want {
		t.Errorf("want %s, got %s", want, first.Hash)
	}
}

func TestCryptoService_Hash_GeneratesSalt(t *testing.T) {
	svc, _ := newTestCryptoService(t)

	first, err := svc.Hash("customer-42", "")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	second, err := svc.Hash("customer-42", "")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if len(first.Salt) != 64 {
		t.Errorf("want 256-bit salt, got %d hex chars", len(first.Salt))
	}
	if first.Salt == second.Salt || first.Hash == second.Hash {
		t.Error("want different salt and hash when salt omitted")
	}
}

func TestCryptoService_Hash_RandomFailure(t *testing.T) {
	svc, _ := newTestCryptoService(t)
	svc.random = failingReader{}

	_, err := svc.Hash("data", "")
	if !errors.Is(err, domain.ErrHashing) || !errors.Is(err, domain.ErrRandomGeneration) {
		t.Errorf("want ErrHashing wrapping ErrRandomGeneration, got %v", err)
	}
}

func TestCryptoService_VerifyHash(t *testing.T) {
	svc, _ := newTestCryptoService(t)

	result, err := svc.Hash("customer-42", "")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	ok, err := svc.VerifyHash("customer-42", result.Salt, result.Hash)
	if err != nil || !ok {
		t.Errorf("want match, got %v, %v", ok, err)
	}
	ok, err = svc.VerifyHash("customer-43", result.Salt, result.Hash)
	if err != nil || ok {
		t.Errorf("want mismatch, got %v, %v", ok, err)
	}
	if _, err := svc.VerifyHash("customer-42", "", result.Hash); !errors.Is(err, domain.ErrHashing) {
		t.Errorf("want ErrHashing without salt, got %v", err)
	}
}

func TestCryptoService_GenerateSecureRandom(t *testing.T) {
	svc, _ := newTestCryptoService(t)

	def, err := svc.GenerateSecureRandom(0)
	if err != nil {
		t.Fatalf("GenerateSecureRandom failed: %v", err)
	}
	if len(def) != 64 {
		t.Errorf("want 32 bytes (64 hex chars) by default, got %d", len(def))
	}

	small, err := svc.GenerateSecureRandom(16)
	if err != nil {
		t.Fatalf("GenerateSecureRandom failed: %v", err)
	}
	if len(small) != 32 {
		t.Errorf("want 16 bytes (32 hex chars), got %d", len(small))
	}

	other, err := svc.GenerateSecureRandom(16)
	if err != nil {
		t.Fatalf("GenerateSecureRandom failed: %v", err)
	}
	if small == other {
		t.Error("two random values are identical")
	}

	if _, err := svc.GenerateSecureRandom(-1); !errors.Is(err, domain.ErrRandomGeneration) {
		t.Errorf("want ErrRandomGeneration for negative size, got %v", err)
	}
}

func TestCryptoService_GenerateSecureRandom_Failure(t *testing.T) {
	svc, _ := newTestCryptoService(t)
	svc.random = failingReader{}

	if _, err := svc.GenerateSecureRandom(32); !errors.Is(err, domain.ErrRandomGeneration) {
		t.Errorf("want ErrRandomGeneration, got %v", err)
	}
}

func TestCryptoService_ValidateEncryptionStandards(t *testing.T) {
	svc, _ := newTestCryptoService(t)

	tests := []struct {
		algorithm string
		keySize   int
		want      bool
	}{
		{"aes-256-gcm", 256, true},
		{"AES-256-GCM", 256, true},
		{"aes-128-gcm", 128, true},
		{"chacha20-poly1305", 256, true},
		{"des", 56, false},
		{"aes-256-gcm", 64, false},
		{"aes-256-gcm", 128, false},
		{"hmac-sha512", 256, false},
		{"rc4", 2048, false},
		{"", 256, false},
	}
	for _, tt := range tests {
		if got := svc.ValidateEncryptionStandards(tt.algorithm, tt.keySize); got != tt.want {
			t.Errorf("ValidateEncryptionStandards(%q, %d): want %v, got %v", tt.algorithm, tt.keySize, tt.want, got)
		}
	}
}

func TestCryptoService_RotateKey_Success(t *testing.T) {
	svc, store := newTestCryptoService(t)
	fixed := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	metadata, err := svc.RotateKey(context.Background(), "sales", "tenant-001")
	if err != nil {
		t.Fatalf("RotateKey failed: %v", err)
	}

	if metadata.KeyID == "sales" {
		t.Error("rotated key id must differ from the old one")
	}
	if !strings.HasPrefix(metadata.KeyID, "sales@") {
		t.Errorf("want key id derived from sales, got %s", metadata.KeyID)
	}
	if metadata.Status != domain.KeyStatusActive {
		t.Errorf("want status ACTIVE, got %s", metadata.Status)
	}
	if !metadata.ExpiresAt.After(metadata.CreatedAt) {
		t.Errorf("want expiresAt after createdAt, got %v / %v", metadata.ExpiresAt, metadata.CreatedAt)
	}
	if !metadata.ExpiresAt.Equal(fixed.Add(365 * 24 * time.Hour)) {
		t.Errorf("want expiry one year out, got %v", metadata.ExpiresAt)
	}
	if metadata.Algorithm != AlgorithmAES256GCM || metadata.KeySize != 256 {
		t.Errorf("want aes-256-gcm/256, got %s/%d", metadata.Algorithm, metadata.KeySize)
	}
	if metadata.Purpose != domain.KeyPurposeEncryption {
		t.Errorf("want purpose ENCRYPTION, got %s", metadata.Purpose)
	}
	if metadata.TenantID != "tenant-001" {
		t.Errorf("want tenant tenant-001, got %s", metadata.TenantID)
	}
	if len(store.created) != 1 {
		t.Errorf("want 1 stored metadata, got %d", len(store.created))
	}
}

func TestCryptoService_RotateKey_Repeated(t *testing.T) {
	svc, _ := newTestCryptoService(t)
	ctx := context.Background()

	first, err := svc.RotateKey(ctx, "sales", "tenant-001")
	if err != nil {
		t.Fatalf("RotateKey failed: %v", err)
	}
	second, err := svc.RotateKey(ctx, first.KeyID, "tenant-001")
	if err != nil {
		t.Fatalf("RotateKey failed: %v", err)
	}

	if second.KeyID == first.KeyID {
		t.Error("second rotation reused the key id")
	}
	if strings.Count(second.KeyID, "@") != 1 || !strings.HasPrefix(second.KeyID, "sales@") {
		t.Errorf("want rotation suffix replaced, got %s", second.KeyID)
	}
}

func TestCryptoService_RotateKey_MaxLengthBase(t *testing.T) {
	svc, _ := newTestCryptoService(t)
	ctx := context.Background()
	base := strings.Repeat("a", 128)

	first, err := svc.RotateKey(ctx, base, "tenant-a")
	if err != nil {
		t.Fatalf("RotateKey with a 128-char key id failed: %v", err)
	}
	if !strings.HasPrefix(first.KeyID, base+"@") {
		t.Errorf("want key id derived from the base, got %s", first.KeyID)
	}
	if _, err := svc.RotateKey(ctx, first.KeyID, "tenant-a"); err != nil {
		t.Errorf("rotating the rotated id failed: %v", err)
	}
}

func TestCryptoService_RotateKeyForPurpose_Signing(t *testing.T) {
	svc, _ := newTestCryptoService(t)

	metadata, err := svc.RotateKeyForPurpose(context.Background(), "webhooks", "tenant-001", domain.KeyPurposeSigning)
	if err != nil {
		t.Fatalf("RotateKeyForPurpose failed: %v", err)
	}
	if metadata.Algorithm != AlgorithmHMACSHA256 || metadata.Purpose != domain.KeyPurposeSigning {
		t.Errorf("want hmac-sha256 signing key, got %s/%s", metadata.Algorithm, metadata.Purpose)
	}
}

func TestCryptoService_RotateKey_InvalidInput(t *testing.T) {
	svc, store := newTestCryptoService(t)
	ctx := context.Background()

	if _, err := svc.RotateKey(ctx, "sales", "invalid@tenant"); !errors.Is(err, domain.ErrInvalidTenantID) {
		t.Errorf("want ErrInvalidTenantID, got %v", err)
	}
	if _, err := svc.RotateKey(ctx, "", "tenant-001"); !errors.Is(err, domain.ErrInvalidKeyID) {
		t.Errorf("want ErrInvalidKeyID, got %v", err)
	}
	if _, err := svc.RotateKeyForPurpose(ctx, "sales", "tenant-001", "WRAPPING"); !errors.Is(err, domain.ErrInvalidKeyMetadata) {
		t.Errorf("want ErrInvalidKeyMetadata, got %v", err)
	}
	if len(store.created) != 0 {
		t.Errorf("want nothing stored, got %d", len(store.created))
	}
}

func TestCryptoService_RotateKey_StoreError(t *testing.T) {
	svc, store := newTestCryptoService(t)
	store.createErr = errors.New("db down")

	if _, err := svc.RotateKey(context.Background(), "sales", "tenant-001"); err == nil {
		t.Error("expected error when store fails")
	}
}
