package usecase

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"

	"crypto-service/internal/domain"
	"crypto-service/pkg/cryptoutil"
)

// Argon2id parameters
const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16

	// 検証時に受け付ける上限。保存済みハッシュの改ざんで巨大な計算をさせない。
	argonMaxMemory  = 4 * argonMemory
	argonMaxTime    = 16
	argonMaxThreads = 16
	argonMaxKeyLen  = 64
)

// HashPassword はパスワードをargon2idでハッシュ化し、PHC形式の文字列を返す。
// 資格情報の保存はHashではなくこちらを使う。
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("%w: %w: %w", domain.ErrHashing, domain.ErrRandomGeneration, err)
	}
	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	defer cryptoutil.Zero(key)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword はPHC形式のargon2idハッシュとパスワードを照合する。
// パラメータはエンコード済み文字列から読み取る。
func VerifyPassword(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, fmt.Errorf("%w: malformed password hash", domain.ErrHashing)
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false, fmt.Errorf("%w: unsupported argon2 version", domain.ErrHashing)
	}

	var memory, iterations uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false, fmt.Errorf("%w: malformed argon2 parameters: %w", domain.ErrHashing, err)
	}
	if memory == 0 || iterations == 0 || threads == 0 {
		return false, fmt.Errorf("%w: malformed argon2 parameters", domain.ErrHashing)
	}
	if memory > argonMaxMemory || iterations > argonMaxTime || threads > argonMaxThreads {
		return false, fmt.Errorf("%w: argon2 parameters exceed limits (m=%d,t=%d,p=%d)", domain.ErrHashing, memory, iterations, threads)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("%w: decoding salt: %w", domain.ErrHashing, err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 || len(want) > argonMaxKeyLen {
		return false, fmt.Errorf("%w: decoding hash", domain.ErrHashing)
	}

	got := argon2.IDKey([]byte(password), salt, iterations, memory, threads, uint32(len(want)))
	defer cryptoutil.Zero(got)
	return cryptoutil.ConstantTimeEqual(string(got), string(want)), nil
}
