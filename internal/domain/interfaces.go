package domain

import (
	"context"
	"time"
)

// SubscriptionStore хранит записи подписок. Операции по разным ChatID безопасны конкурентно.
type SubscriptionStore interface {
	ListEnabled(ctx context.Context) ([]Subscription, error)
	Get(ctx context.Context, chatID string) (Subscription, error)
	// UpsertLink создаёт запись или перезаписывает UpstreamID существующей.
	UpsertLink(ctx context.Context, chatID, upstreamID string) (Subscription, error)
	// SetDeliveryTarget задаёт или очищает канал. Занятый канал даёт ErrTargetInUse.
	SetDeliveryTarget(ctx context.Context, chatID string, target *string) error
	SetSubscribedKinds(ctx context.Context, chatID string, kinds []ActivityKind) error
	// AdvanceWatermark не делает ничего, если ts не новее текущего значения.
	AdvanceWatermark(ctx context.Context, chatID string, ts time.Time) error
}

// FeedClient загружает ленту активности участника.
type FeedClient interface {
	Activity(ctx context.Context, memberID string) ([]Activity, error)
}

// MemberDirectory ищет участников и их данные в Letterboxd.
type MemberDirectory interface {
	MemberIDByUsername(ctx context.Context, username string) (string, error)
	Member(ctx context.Context, memberID string) (MemberProfile, error)
	Watchlist(ctx context.Context, memberID string) ([]string, error)
	Film(ctx context.Context, filmID string) (Film, error)
}

// Sink публикует отрендеренное сообщение в канал доставки.
type Sink interface {
	Deliver(ctx context.Context, target string, msg RenderedMessage) error
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
}
