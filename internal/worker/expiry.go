// Package worker はバックグラウンドで定期実行する処理を提供する。
package worker

import (
	"context"
	"log/slog"
	"time"
)

// KeyExpirer は期限切れの鍵をEXPIREDに遷移させる。*usecase.KeyService が実装する。
type KeyExpirer interface {
	ExpireKeys(ctx context.Context, now time.Time) (int, error)
}

// ExpirySweeper は一定間隔で鍵の有効期限をチェックする。
type ExpirySweeper struct {
	expirer  KeyExpirer
	interval time.Duration
	now      func() time.Time
}

// NewExpirySweeper は新しいExpirySweeperを生成する。
func NewExpirySweeper(expirer KeyExpirer, interval time.Duration) *ExpirySweeper {
	return &ExpirySweeper{
		expirer:  expirer,
		interval: interval,
		now:      time.Now,
	}
}

// Start はctxがキャンセルされるまでスイープを繰り返す。起動直後に1回実行する。
// intervalが正でなければ1回だけ実行して戻る。
func (s *ExpirySweeper) Start(ctx context.Context) {
	s.sweep(ctx)
	if s.interval <= 0 {
		slog.ErrorContext(ctx, "expiry sweeper disabled: non-positive interval", "interval", s.interval)
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *ExpirySweeper) sweep(ctx context.Context) {
	n, err := s.expirer.ExpireKeys(ctx, s.now().UTC())
	if err != nil {
		slog.ErrorContext(ctx, "failed to expire keys", "operation", "expiry_sweep", "expired", n, "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "expired keys", "operation", "expiry_sweep", "expired", n)
	}
}
