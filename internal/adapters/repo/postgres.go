package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"boxd-notifier/internal/domain"
	"boxd-notifier/internal/infra/metrics"
)

const (
	uniqueViolation = "23505"

	upstreamConstraint = "subscriptions_upstream_id_key"
	targetConstraint   = "subscriptions_delivery_target_key"
)

const schema = `
CREATE TABLE IF NOT EXISTS subscriptions (
	chat_id          TEXT PRIMARY KEY,
	upstream_id      TEXT NOT NULL UNIQUE,
	delivery_target  TEXT UNIQUE,
	watermark        TIMESTAMPTZ NOT NULL DEFAULT now(),
	kinds            TEXT[] NOT NULL DEFAULT '{WatchlistActivity,DiaryEntryActivity}',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS subscriptions_enabled_idx ON subscriptions (chat_id) WHERE delivery_target IS NOT NULL;
`

const subscriptionColumns = `chat_id, upstream_id, delivery_target, watermark, kinds, created_at, updated_at`

// Postgres реализует domain.SubscriptionStore на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.SubscriptionStore = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// Migrate создаёт таблицу подписок, если её ещё нет.
func (p *Postgres) Migrate(ctx context.Context) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, schema)
	metrics.ObserveNetworkRequest("postgres", "migrate", "subscriptions", start, err)
	if err != nil {
		return fmt.Errorf("repo: миграция: %w", err)
	}
	return nil
}

// ListEnabled возвращает подписки с включённой доставкой.
func (p *Postgres) ListEnabled(ctx context.Context) ([]domain.Subscription, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE delivery_target IS NOT NULL ORDER BY chat_id`)
	metrics.ObserveNetworkRequest("postgres", "subscriptions_list_enabled", "subscriptions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// Get возвращает подписку пользователя чата.
func (p *Postgres) Get(ctx context.Context, chatID string) (domain.Subscription, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE chat_id=$1`, chatID)
	sub, err := scanSubscription(row)
	metrics.ObserveNetworkRequest("postgres", "subscriptions_get", "subscriptions", start, ignoreNoRows(err))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Subscription{}, domain.ErrNotFound
	}
	return sub, err
}

// UpsertLink создаёт подписку или привязывает существующую к другому аккаунту.
// При смене аккаунта водяная метка сбрасывается на текущее время.
func (p *Postgres) UpsertLink(ctx context.Context, chatID, upstreamID string) (domain.Subscription, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO subscriptions (chat_id, upstream_id)
VALUES ($1, $2)
ON CONFLICT (chat_id) DO UPDATE SET
	upstream_id = EXCLUDED.upstream_id,
	watermark = CASE WHEN subscriptions.upstream_id = EXCLUDED.upstream_id THEN subscriptions.watermark ELSE now() END,
	updated_at = now()
RETURNING `+subscriptionColumns, chatID, upstreamID)
	sub, err := scanSubscription(row)
	metrics.ObserveNetworkRequest("postgres", "subscriptions_upsert_link", "subscriptions", start, err)
	if err != nil {
		return domain.Subscription{}, mapUniqueViolation(err)
	}
	return sub, nil
}

// SetDeliveryTarget задаёт или очищает канал доставки.
func (p *Postgres) SetDeliveryTarget(ctx context.Context, chatID string, target *string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE subscriptions SET delivery_target=$2, updated_at=now() WHERE chat_id=$1`, chatID, target)
	metrics.ObserveNetworkRequest("postgres", "subscriptions_set_target", "subscriptions", start, err)
	if err != nil {
		return mapUniqueViolation(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetSubscribedKinds сохраняет набор видов активности.
func (p *Postgres) SetSubscribedKinds(ctx context.Context, chatID string, kinds []domain.ActivityKind) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	values := make([]string, 0, len(kinds))
	for _, k := range kinds {
		values = append(values, string(k))
	}

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE subscriptions SET kinds=$2, updated_at=now() WHERE chat_id=$1`, chatID, values)
	metrics.ObserveNetworkRequest("postgres", "subscriptions_set_kinds", "subscriptions", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AdvanceWatermark сдвигает метку вперёд. Более старое значение игнорируется.
func (p *Postgres) AdvanceWatermark(ctx context.Context, chatID string, ts time.Time) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `UPDATE subscriptions SET watermark=GREATEST(watermark, $2), updated_at=now() WHERE chat_id=$1`, chatID, ts.UTC())
	metrics.ObserveNetworkRequest("postgres", "subscriptions_advance_watermark", "subscriptions", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanSubscription(row pgx.Row) (domain.Subscription, error) {
	var (
		sub   domain.Subscription
		kinds []string
	)
	if err := row.Scan(&sub.ChatID, &sub.UpstreamID, &sub.Target, &sub.Watermark, &kinds, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return domain.Subscription{}, err
	}
	sub.Kinds = make([]domain.ActivityKind, 0, len(kinds))
	for _, k := range kinds {
		sub.Kinds = append(sub.Kinds, domain.ActivityKind(k))
	}
	sub.Watermark = sub.Watermark.UTC()
	return sub, nil
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case targetConstraint:
		return fmt.Errorf("%w: %s", domain.ErrTargetInUse, pgErr.Detail)
	case upstreamConstraint:
		return fmt.Errorf("%w: %s", domain.ErrUpstreamInUse, pgErr.Detail)
	default:
		return err
	}
}

func ignoreNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}
