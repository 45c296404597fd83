package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxd-notifier/internal/domain"
	"boxd-notifier/internal/usecase/render"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type stubStore struct {
	mu   sync.Mutex
	subs map[string]domain.Subscription
	// advanced фиксирует все вызовы AdvanceWatermark.
	advanced []time.Time
}

func newStubStore(subs ...domain.Subscription) *stubStore {
	s := &stubStore{subs: make(map[string]domain.Subscription)}
	for _, sub := range subs {
		s.subs[sub.ChatID] = sub
	}
	return s
}

func (s *stubStore) ListEnabled(context.Context) ([]domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Subscription
	for _, sub := range s.subs {
		if sub.Enabled() {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *stubStore) Get(_ context.Context, chatID string) (domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[chatID]
	if !ok {
		return domain.Subscription{}, domain.ErrNotFound
	}
	return sub, nil
}

func (s *stubStore) UpsertLink(context.Context, string, string) (domain.Subscription, error) {
	return domain.Subscription{}, errors.New("не используется")
}

func (s *stubStore) SetDeliveryTarget(context.Context, string, *string) error {
	return errors.New("не используется")
}

func (s *stubStore) SetSubscribedKinds(context.Context, string, []domain.ActivityKind) error {
	return errors.New("не используется")
}

func (s *stubStore) AdvanceWatermark(_ context.Context, chatID string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[chatID]
	if !ok {
		return domain.ErrNotFound
	}
	s.advanced = append(s.advanced, ts)
	if ts.After(sub.Watermark) {
		sub.Watermark = ts
		s.subs[chatID] = sub
	}
	return nil
}

func (s *stubStore) watermark(chatID string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs[chatID].Watermark
}

type stubFeed struct {
	items map[string][]domain.Activity
	errs  map[string]error
}

func (f *stubFeed) Activity(_ context.Context, memberID string) ([]domain.Activity, error) {
	if err := f.errs[memberID]; err != nil {
		return nil, err
	}
	return f.items[memberID], nil
}

type recordingSink struct {
	mu     sync.Mutex
	sent   map[string][]domain.RenderedMessage
	calls  int
	failAt map[int]bool
	onCall func(n int)
}

func (s *recordingSink) Deliver(_ context.Context, target string, msg domain.RenderedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAt[s.calls] {
		return errors.New("платформа недоступна")
	}
	if s.sent == nil {
		s.sent = make(map[string][]domain.RenderedMessage)
	}
	s.sent[target] = append(s.sent[target], msg)
	if s.onCall != nil {
		s.onCall(s.calls)
	}
	return nil
}

func (s *recordingSink) count(target string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent[target])
}

func targetOf(v string) *string { return &v }

func member(username string) domain.MemberSummary {
	return domain.MemberSummary{ID: "id-" + username, Username: username, DisplayName: strings.ToUpper(username[:1]) + username[1:]}
}

func film(name string, adult bool) domain.Film {
	return domain.Film{
		ID:    name,
		Name:  name,
		Adult: adult,
		Links: map[domain.LinkType]domain.Link{
			domain.LinkLetterboxd: {URL: "https://letterboxd.com/film/" + strings.ToLower(name) + "/"},
		},
	}
}

func diary(at time.Time, name string, rating float64, liked bool) domain.DiaryEntry {
	return domain.DiaryEntry{
		ActivityBase: domain.ActivityBase{When: at, Member: member("alice")},
		Rating:       rating,
		Liked:        liked,
		Film:         film(name, false),
	}
}

func watch(at time.Time, name string, adult bool) domain.WatchlistAdd {
	return domain.WatchlistAdd{ActivityBase: domain.ActivityBase{When: at, Member: member("alice")}, Film: film(name, adult)}
}

func newTestService(store domain.SubscriptionStore, feed domain.FeedClient, sink domain.Sink) *Service {
	return NewService(store, feed, render.New("", render.UnicodeGlyphs), sink, zerolog.Nop(), Options{Workers: 2, CallTimeout: time.Second})
}

func TestRunCycleEndToEndScenario(t *testing.T) {
	store := newStubStore(domain.Subscription{
		ChatID:     "U1",
		UpstreamID: "m1",
		Target:     targetOf("C1"),
		Watermark:  t0,
		Kinds:      []domain.ActivityKind{domain.KindDiaryEntry},
	})
	diaryAt := t0.Add(2 * time.Hour)
	feed := &stubFeed{items: map[string][]domain.Activity{
		"m1": {
			watch(t0.Add(time.Hour), "Paprika", false),
			diary(diaryAt, "Heat", 3.5, true),
		},
	}}
	sink := &recordingSink{}

	report, err := newTestService(store, feed, sink).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 1, report.Outcomes[OutcomeDelivered])

	require.Equal(t, 1, sink.count("C1"))
	text := sink.sent["C1"][0].Text
	assert.Equal(t, 3, strings.Count(text, render.UnicodeGlyphs.Full))
	assert.Equal(t, 1, strings.Count(text, render.UnicodeGlyphs.Half))
	assert.Equal(t, 1, strings.Count(text, render.UnicodeGlyphs.Empty))
	assert.Contains(t, text, render.UnicodeGlyphs.Heart)
	assert.Equal(t, diaryAt, store.watermark("U1"))
}

func TestRunCycleIdempotentReplay(t *testing.T) {
	latest := t0.Add(time.Hour)
	store := newStubStore(domain.Subscription{
		ChatID: "U1", UpstreamID: "m1", Target: targetOf("C1"), Watermark: latest, Kinds: domain.AllKinds,
	})
	feed := &stubFeed{items: map[string][]domain.Activity{
		"m1": {diary(latest, "Heat", 4, false), watch(t0, "Paprika", false)},
	}}
	sink := &recordingSink{}

	svc := newTestService(store, feed, sink)
	for i := 0; i < 2; i++ {
		_, err := svc.RunCycle(context.Background())
		require.NoError(t, err)
	}
	assert.Zero(t, sink.calls, "уже доставленные активности не должны отправляться повторно")
	assert.Empty(t, store.advanced)
}

func TestRunCyclePreservesFeedOrder(t *testing.T) {
	store := newStubStore(domain.Subscription{
		ChatID: "U1", UpstreamID: "m1", Target: targetOf("C1"), Watermark: t0, Kinds: domain.AllKinds,
	})
	// Лента идёт от новых к старым, пересортировки быть не должно.
	feed := &stubFeed{items: map[string][]domain.Activity{
		"m1": {
			diary(t0.Add(3*time.Hour), "Third", 1, false),
			watch(t0.Add(2*time.Hour), "Second", false),
			diary(t0.Add(time.Hour), "First", 2, false),
		},
	}}
	sink := &recordingSink{}

	_, err := newTestService(store, feed, sink).RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, sink.count("C1"))
	assert.Contains(t, sink.sent["C1"][0].Text, "Third")
	assert.Contains(t, sink.sent["C1"][1].Text, "Second")
	assert.Contains(t, sink.sent["C1"][2].Text, "First")
	assert.Equal(t, t0.Add(3*time.Hour), store.watermark("U1"))
}

func TestRunCycleDropsAdultFilms(t *testing.T) {
	store := newStubStore(domain.Subscription{
		ChatID: "U1", UpstreamID: "m1", Target: targetOf("C1"), Watermark: t0, Kinds: domain.AllKinds,
	})
	adultDiary := diary(t0.Add(2*time.Hour), "Adult", 5, true)
	adultDiary.Film.Adult = true
	feed := &stubFeed{items: map[string][]domain.Activity{
		"m1": {adultDiary, watch(t0.Add(time.Hour), "AdultToo", true)},
	}}
	sink := &recordingSink{}

	report, err := newTestService(store, feed, sink).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sink.calls)
	assert.Equal(t, 1, report.Outcomes[OutcomeIdle])
	// Метка всё равно сдвигается до максимума выборки.
	assert.Equal(t, t0.Add(2*time.Hour), store.watermark("U1"))
}

func TestRunCyclePartialDeliveryFailureKeepsWatermark(t *testing.T) {
	store := newStubStore(domain.Subscription{
		ChatID: "U1", UpstreamID: "m1", Target: targetOf("C1"), Watermark: t0, Kinds: domain.AllKinds,
	})
	feed := &stubFeed{items: map[string][]domain.Activity{
		"m1": {
			diary(t0.Add(3*time.Hour), "C", 1, false),
			diary(t0.Add(2*time.Hour), "B", 1, false),
			diary(t0.Add(time.Hour), "A", 1, false),
		},
	}}
	sink := &recordingSink{failAt: map[int]bool{2: true}}
	svc := newTestService(store, feed, sink)

	report, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Outcomes[OutcomeDeliveryFailed])
	assert.Equal(t, t0, store.watermark("U1"), "метка не должна сдвигаться при частичной доставке")
	assert.Empty(t, store.advanced)

	// Следующий цикл повторяет все три активности.
	report, err = svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Outcomes[OutcomeDelivered])
	assert.Equal(t, 5, sink.calls)
	assert.Equal(t, 4, sink.count("C1"))
	assert.Equal(t, t0.Add(3*time.Hour), store.watermark("U1"))
}

func TestRunCycleIsolatesUserFailures(t *testing.T) {
	store := newStubStore(
		domain.Subscription{ChatID: "U1", UpstreamID: "broken", Target: targetOf("C1"), Watermark: t0, Kinds: domain.AllKinds},
		domain.Subscription{ChatID: "U2", UpstreamID: "m2", Target: targetOf("C2"), Watermark: t0, Kinds: domain.AllKinds},
		domain.Subscription{ChatID: "U3", UpstreamID: "m3", Watermark: t0, Kinds: domain.AllKinds},
	)
	feed := &stubFeed{
		items: map[string][]domain.Activity{
			"m2": {watch(t0.Add(time.Hour), "Heat", false)},
			"m3": {watch(t0.Add(time.Hour), "Ran", false)},
		},
		errs: map[string]error{"broken": errors.New("401 unauthorized")},
	}
	sink := &recordingSink{}

	report, err := newTestService(store, feed, sink).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Users, "выключенный пользователь не попадает в снимок")
	assert.Equal(t, 1, report.Outcomes[OutcomeFetchFailed])
	assert.Equal(t, 1, report.Outcomes[OutcomeDelivered])
	assert.Equal(t, 1, sink.count("C2"))
	assert.Equal(t, t0, store.watermark("U1"))
	assert.Equal(t, t0.Add(time.Hour), store.watermark("U2"))
}

func TestRunCycleCanceledBeforeStart(t *testing.T) {
	store := newStubStore(domain.Subscription{
		ChatID: "U1", UpstreamID: "m1", Target: targetOf("C1"), Watermark: t0, Kinds: domain.AllKinds,
	})
	feed := &stubFeed{items: map[string][]domain.Activity{"m1": {watch(t0.Add(time.Hour), "Heat", false)}}}
	sink := &recordingSink{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := NewService(store, feed, render.New("", render.UnicodeGlyphs), sink, zerolog.Nop(), Options{})
	report, err := svc.RunCycle(ctx)
	// Снимок берётся с уже отменённым контекстом, заглушка хранилища его не проверяет.
	require.NoError(t, err)
	assert.Equal(t, 1, report.Outcomes[OutcomeCanceled])
	assert.Zero(t, sink.calls)
	assert.Equal(t, t0, store.watermark("U1"))
}

func TestRunCycleCanceledMidDeliveryKeepsWatermark(t *testing.T) {
	store := newStubStore(domain.Subscription{
		ChatID: "U1", UpstreamID: "m1", Target: targetOf("C1"), Watermark: t0, Kinds: domain.AllKinds,
	})
	feed := &stubFeed{items: map[string][]domain.Activity{
		"m1": {diary(t0.Add(2*time.Hour), "Heat", 4, false), watch(t0.Add(time.Hour), "Paprika", false)},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// Остановка процесса приходит сразу после первой доставки.
	sink := &recordingSink{onCall: func(n int) {
		if n == 1 {
			cancel()
		}
	}}

	report, err := newTestService(store, feed, sink).RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Outcomes[OutcomeCanceled])
	assert.Equal(t, 1, sink.calls)
	assert.Equal(t, t0, store.watermark("U1"), "метка не сдвигается, пока вся выборка не доставлена")
	assert.Empty(t, store.advanced)
}

func TestFilterRules(t *testing.T) {
	sub := domain.Subscription{Watermark: t0, Kinds: []domain.ActivityKind{domain.KindWatchlist, domain.KindFollow}}
	follow := domain.Follow{ActivityBase: domain.ActivityBase{When: t0.Add(time.Minute), Member: member("alice")}, Followed: member("dave")}
	acts := []domain.Activity{
		watch(t0, "AtWatermark", false),
		watch(t0.Add(time.Second), "Fresh", false),
		diary(t0.Add(time.Hour), "NotSubscribed", 3, false),
		watch(t0.Add(time.Hour), "Adult", true),
		follow,
	}

	got := Filter(acts, sub)
	require.Len(t, got, 2)
	assert.Equal(t, "Fresh", got[0].(domain.WatchlistAdd).Film.Name)
	assert.Equal(t, domain.KindFollow, got[1].Kind())

	high, ok := HighWatermark(acts)
	require.True(t, ok)
	assert.Equal(t, t0.Add(time.Hour), high)

	_, ok = HighWatermark(nil)
	assert.False(t, ok)
}

func TestPartitionCountsReasons(t *testing.T) {
	sub := domain.Subscription{Watermark: t0, Kinds: []domain.ActivityKind{domain.KindWatchlist}}
	acts := []domain.Activity{
		watch(t0.Add(-time.Hour), "Old", false),
		diary(t0.Add(time.Hour), "Other", 1, false),
		watch(t0.Add(time.Hour), "Adult", true),
		watch(t0.Add(time.Hour), "Fine", false),
	}
	kept, dropped := partition(acts, sub)
	require.Len(t, kept, 1)
	assert.Equal(t, map[string]int{ReasonSeen: 1, ReasonKind: 1, ReasonAdult: 1}, dropped)
}
