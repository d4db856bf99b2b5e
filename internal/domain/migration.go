package domain

import "time"

// MigrationStatus はマイグレーションの適用状態を表す
type MigrationStatus string

const (
	MigrationStatusPending MigrationStatus = "pending"
	MigrationStatusApplied MigrationStatus = "applied"
)

// Migration はkey_metadataスキーマのマイグレーションを表す
type Migration struct {
	Version   string     // 例: "001"
	Name      string     // ファイル名から抽出した名前
	Path      string     // マイグレーションFS内のパス
	AppliedAt *time.Time // 未適用の場合はnil
	Status    MigrationStatus
}
