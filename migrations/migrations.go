// Package migrations はkey_metadataスキーマのSQLマイグレーションを埋め込む。
package migrations

import "embed"

// FS はバージョン順に適用する {version}_{name}.sql ファイル群。
//
//go:embed *.sql
var FS embed.FS
