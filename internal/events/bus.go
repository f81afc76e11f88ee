// Package events はAPI境界で発生したエラーを購読者へ配信する。
// コアのサービス層は購読者の存在を知らず、ハンドラーが発行する。
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/accessportal/internal/logger"
	"github.com/hitoshi/accessportal/internal/model"
)

// ErrorEvent は構造化エラーイベント（種別と診断コンテキスト）。
type ErrorEvent struct {
	Code      string
	Category  string
	Message   string
	Details   map[string]string
	Operation string
	UserID    string
	At        time.Time
}

// FromAPIError はAPIErrorからErrorEventを生成する。
func FromAPIError(apiErr *model.APIError, operation, userID string) ErrorEvent {
	details := make(map[string]string, len(apiErr.Details))
	for k, v := range apiErr.Details {
		details[k] = v
	}
	return ErrorEvent{
		Code:      apiErr.Code,
		Category:  apiErr.Category,
		Message:   apiErr.Message,
		Details:   details,
		Operation: operation,
		UserID:    userID,
		At:        time.Now(),
	}
}

// Subscriber はイベントを受け取る関数。同期的に呼ばれるため長時間ブロックしないこと。
type Subscriber func(ctx context.Context, ev ErrorEvent)

// Bus はErrorEventの配信を行う。並行利用に安全。
type Bus struct {
	mu          sync.RWMutex
	subscribers []Subscriber
}

// NewBus はBusを生成する。
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe は購読者を登録する。
func (b *Bus) Subscribe(fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, fn)
}

// Publish は登録済みの全購読者へイベントを配信する。
// nilのBusへの発行は何もしない。
func (b *Bus) Publish(ctx context.Context, ev ErrorEvent) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subscribers := b.subscribers
	b.mu.RUnlock()

	for _, fn := range subscribers {
		fn(ctx, ev)
	}
}

// LogSubscriber はイベントを構造化ログに記録する購読者を返す。
// 内部エラーはError、それ以外はWarnで記録する。
func LogSubscriber(l *slog.Logger) Subscriber {
	l = logger.Component(l, "events")
	return func(ctx context.Context, ev ErrorEvent) {
		attrs := []any{
			slog.String("code", ev.Code),
			slog.String("category", ev.Category),
			slog.String("operation", ev.Operation),
			slog.String("user_id", ev.UserID),
		}
		for k, v := range ev.Details {
			attrs = append(attrs, slog.String("detail_"+k, v))
		}

		level := slog.LevelWarn
		if ev.Code == model.ErrCodeInternal {
			level = slog.LevelError
		}
		l.Log(ctx, level, ev.Message, attrs...)
	}
}

// CodeRecorder はエラーコードの記録インターフェース（メトリクス用）。
type CodeRecorder interface {
	RecordErrorEvent(code string)
}

// MetricsSubscriber はイベントをコード別に集計する購読者を返す。
func MetricsSubscriber(rec CodeRecorder) Subscriber {
	return func(_ context.Context, ev ErrorEvent) {
		rec.RecordErrorEvent(ev.Code)
	}
}
