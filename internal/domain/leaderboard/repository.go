package leaderboard

import (
	"context"
	"errors"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// PAGE CACHE INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// ErrCacheMiss возвращается кешем, если ключа нет или он устарел.
var ErrCacheMiss = errors.New("leaderboard: cache miss")

// PageCache хранит собранные страницы целиком: один ключ - одна страница.
// Частичной инвалидации нет, страница может отставать от данных на TTL.
type PageCache interface {
	// Get возвращает страницу или ErrCacheMiss.
	Get(ctx context.Context, key string) (*Page, error)

	// Set сохраняет страницу на ttl.
	Set(ctx context.Context, key string, page *Page, ttl time.Duration) error
}

// ══════════════════════════════════════════════════════════════════════════════
// STANDINGS
// ══════════════════════════════════════════════════════════════════════════════

// StandingRecorder фиксирует появление пользователя в рейтинге.
// Реализации обязаны быть best-effort: ошибки не возвращаются вызывающему.
type StandingRecorder interface {
	RecordStanding(ctx context.Context, userID string, category Category, rank int)
}
