package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"boxd-notifier/internal/domain"
)

// Memory хранит подписки в памяти процесса. Используется в dev-окружении без PG_DSN.
type Memory struct {
	mu   sync.Mutex
	subs map[string]domain.Subscription
	now  func() time.Time
}

var _ domain.SubscriptionStore = (*Memory)(nil)

// NewMemory создаёт пустое хранилище.
func NewMemory() *Memory {
	return &Memory{
		subs: make(map[string]domain.Subscription),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) ListEnabled(context.Context) ([]domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := make([]domain.Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		if sub.Enabled() {
			subs = append(subs, clone(sub))
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ChatID < subs[j].ChatID })
	return subs, nil
}

func (m *Memory) Get(_ context.Context, chatID string) (domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[chatID]
	if !ok {
		return domain.Subscription{}, domain.ErrNotFound
	}
	return clone(sub), nil
}

func (m *Memory) UpsertLink(_ context.Context, chatID, upstreamID string) (domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, other := range m.subs {
		if id != chatID && other.UpstreamID == upstreamID {
			return domain.Subscription{}, domain.ErrUpstreamInUse
		}
	}
	now := m.now()
	sub, ok := m.subs[chatID]
	if !ok {
		sub = domain.Subscription{
			ChatID:    chatID,
			Watermark: now,
			Kinds:     append([]domain.ActivityKind(nil), domain.DefaultKinds...),
			CreatedAt: now,
		}
	} else if sub.UpstreamID != upstreamID {
		sub.Watermark = now
	}
	sub.UpstreamID = upstreamID
	sub.UpdatedAt = now
	m.subs[chatID] = sub
	return clone(sub), nil
}

func (m *Memory) SetDeliveryTarget(_ context.Context, chatID string, target *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[chatID]
	if !ok {
		return domain.ErrNotFound
	}
	if target != nil {
		for id, other := range m.subs {
			if id != chatID && other.Target != nil && *other.Target == *target {
				return domain.ErrTargetInUse
			}
		}
		value := *target
		target = &value
	}
	sub.Target = target
	sub.UpdatedAt = m.now()
	m.subs[chatID] = sub
	return nil
}

func (m *Memory) SetSubscribedKinds(_ context.Context, chatID string, kinds []domain.ActivityKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[chatID]
	if !ok {
		return domain.ErrNotFound
	}
	sub.Kinds = append([]domain.ActivityKind(nil), kinds...)
	sub.UpdatedAt = m.now()
	m.subs[chatID] = sub
	return nil
}

func (m *Memory) AdvanceWatermark(_ context.Context, chatID string, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[chatID]
	if !ok {
		return domain.ErrNotFound
	}
	if ts.After(sub.Watermark) {
		sub.Watermark = ts.UTC()
		sub.UpdatedAt = m.now()
		m.subs[chatID] = sub
	}
	return nil
}

func clone(sub domain.Subscription) domain.Subscription {
	sub.Kinds = append([]domain.ActivityKind(nil), sub.Kinds...)
	if sub.Target != nil {
		value := *sub.Target
		sub.Target = &value
	}
	return sub
}
