package infra

import (
	"fmt"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"crypto-service/config"
)

// sqliteScheme はDATABASE_URLでSQLiteを選択する接頭辞。
const sqliteScheme = "sqlite:"

// MySQLDSN はDSNを検証し、DATETIME列をtime.Timeとして読めるよう
// parseTime=true・loc=UTCを強制したDSNを返す。
func MySQLDSN(raw string) (string, error) {
	c, err := mysqldriver.ParseDSN(raw)
	if err != nil {
		// DSNにはパスワードが含まれるため元の文字列は出さない
		return "", fmt.Errorf("DATABASE_URL is not a valid MySQL DSN")
	}
	c.ParseTime = true
	c.Loc = time.UTC
	return c.FormatDSN(), nil
}

// NewDB はgormによるデータベース接続を初期化する。
// DATABASE_URLが "sqlite:" で始まる場合はSQLite、それ以外はMySQLのDSNとして扱う。
func NewDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	var dialector gorm.Dialector
	isSQLite := strings.HasPrefix(cfg.DatabaseURL, sqliteScheme)
	if isSQLite {
		dialector = sqlite.Open(strings.TrimPrefix(cfg.DatabaseURL, sqliteScheme))
	} else {
		dsn, err := MySQLDSN(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		dialector = mysql.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		// 一意制約違反を gorm.ErrDuplicatedKey に変換する
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if cfg.OtelEnabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return nil, fmt.Errorf("registering tracing plugin: %w", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 接続プール設定
	if isSQLite {
		// :memory: は接続ごとに別DBになるため1本に固定
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}
