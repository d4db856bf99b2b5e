package infra

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"crypto-service/config"
)

// redactedKeys は値を出力してはならないログ属性名（小文字で比較）。
var redactedKeys = map[string]struct{}{
	"plaintext":  {},
	"password":   {},
	"secret":     {},
	"master_key": {},
	"hmac_key":   {},
	"derived":    {},
}

const redactedValue = "[REDACTED]"

// RedactSecrets はslog.HandlerOptions.ReplaceAttrに渡す関数。
// 平文や鍵素材を運ぶ属性の値を置き換える。
func RedactSecrets(_ []string, a slog.Attr) slog.Attr {
	if _, ok := redactedKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, redactedValue)
	}
	return a
}

// SpanHandler は実行中スパンのIDをログに付ける。
// projectIDがあればCloud Loggingが相関に使うフィールドも出力する。
type SpanHandler struct {
	next      slog.Handler
	projectID string
	enabled   bool
}

// NewSpanHandler はnextをラップしたSpanHandlerを返す。
func NewSpanHandler(next slog.Handler, cfg *config.Config) *SpanHandler {
	return &SpanHandler{next: next, projectID: cfg.GoogleCloudProject, enabled: cfg.OtelEnabled}
}

func (h *SpanHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *SpanHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.enabled {
		return h.next.Handle(ctx, r)
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return h.next.Handle(ctx, r)
	}

	tid, sid := sc.TraceID().String(), sc.SpanID().String()
	r.AddAttrs(
		slog.String("trace", tid),
		slog.String("spanId", sid),
		slog.Bool("traceSampled", sc.IsSampled()),
	)
	if h.projectID != "" {
		r.AddAttrs(
			slog.String("logging.googleapis.com/trace", fmt.Sprintf("projects/%s/traces/%s", h.projectID, tid)),
			slog.String("logging.googleapis.com/spanId", sid),
		)
	}
	return h.next.Handle(ctx, r)
}

func (h *SpanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.next = h.next.WithAttrs(attrs)
	return &clone
}

func (h *SpanHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.next = h.next.WithGroup(name)
	return &clone
}

// ParseLogLevel はLOG_LEVELの値をslog.Levelに変換する。未知の値はINFO。
func ParseLogLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(s)))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// SetupLogger はJSON出力のデフォルトロガーを設定する。
func SetupLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{
		Level:       ParseLogLevel(cfg.LogLevel),
		ReplaceAttr: RedactSecrets,
	}
	slog.SetDefault(slog.New(NewSpanHandler(slog.NewJSONHandler(os.Stdout, opts), cfg)))
}
