package domain

import "errors"

// 暗号処理のエラー種別。原因は fmt.Errorf の %w で連結して保持する。
var (
	// ErrEncryption は平文を EncryptionResult に変換できない場合のエラー。
	ErrEncryption = errors.New("encryption failed")

	// ErrDecryption は EncryptionResult を平文に戻せない場合のエラー。
	ErrDecryption = errors.New("decryption failed")

	// ErrIntegrity はHMACの生成・検証に失敗した場合のエラー。
	ErrIntegrity = errors.New("integrity operation failed")

	// ErrHashing はハッシュ計算に失敗した場合のエラー。
	ErrHashing = errors.New("hashing failed")

	// ErrRandomGeneration はCSPRNGからの読み出しに失敗した場合のエラー。
	ErrRandomGeneration = errors.New("secure random generation failed")
)

var (
	// ErrKeyNotFound は指定されたテナント・鍵IDのメタデータが存在しない場合のエラー。
	ErrKeyNotFound = errors.New("key not found")

	// ErrKeyAlreadyExists は同じ鍵IDのメタデータが既に存在する場合のエラー。
	ErrKeyAlreadyExists = errors.New("key already exists")

	// ErrMasterKeyUnavailable はマスター鍵またはHMAC鍵を取得できない場合のエラー。
	ErrMasterKeyUnavailable = errors.New("master key unavailable")

	// ErrKeyAlreadyRevoked は指定された鍵が既に失効している場合のエラー。
	ErrKeyAlreadyRevoked = errors.New("key is already revoked")

	// ErrInvalidStatusTransition は許可されないステータス遷移の場合のエラー。
	ErrInvalidStatusTransition = errors.New("invalid key status transition")

	// ErrInvalidTenantID はテナントIDの形式が不正な場合のエラー。
	ErrInvalidTenantID = errors.New("invalid tenant ID")

	// ErrInvalidKeyID は鍵IDの形式が不正な場合のエラー。
	ErrInvalidKeyID = errors.New("invalid key ID")

	// ErrInvalidKeyMetadata は鍵メタデータが不変条件を満たさない場合のエラー。
	ErrInvalidKeyMetadata = errors.New("invalid key metadata")

	// ErrUnsupportedAlgorithm は許可リストにないアルゴリズムの場合のエラー。
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)
