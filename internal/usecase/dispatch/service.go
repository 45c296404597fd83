package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"boxd-notifier/internal/domain"
	"boxd-notifier/internal/infra/metrics"
)

const (
	defaultWorkers     = 4
	defaultCallTimeout = 30 * time.Second
)

// Outcome — итог обработки одного пользователя в цикле.
type Outcome string

const (
	OutcomeDelivered       Outcome = "delivered"
	OutcomeIdle            Outcome = "idle"
	OutcomeFetchFailed     Outcome = "fetch_failed"
	OutcomeRenderFailed    Outcome = "render_failed"
	OutcomeDeliveryFailed  Outcome = "delivery_failed"
	OutcomeWatermarkFailed Outcome = "watermark_failed"
	OutcomeCanceled        Outcome = "canceled"
)

// Renderer строит сообщение из активности.
type Renderer interface {
	Render(a domain.Activity) (domain.RenderedMessage, error)
}

// Options задаёт параметры цикла рассылки.
type Options struct {
	// Workers — сколько пользователей обрабатывается параллельно.
	Workers int
	// CallTimeout ограничивает каждый сетевой вызов: загрузку ленты и каждую доставку.
	CallTimeout time.Duration
}

// Report описывает результат одного цикла.
type Report struct {
	CycleID   string
	Users     int
	Delivered int
	Outcomes  map[Outcome]int
}

// Service выполняет циклы рассылки уведомлений.
type Service struct {
	store       domain.SubscriptionStore
	feed        domain.FeedClient
	renderer    Renderer
	sink        domain.Sink
	log         zerolog.Logger
	workers     int
	callTimeout time.Duration
}

// NewService создаёт сервис рассылки.
func NewService(store domain.SubscriptionStore, feed domain.FeedClient, renderer Renderer, sink domain.Sink, logger zerolog.Logger, opts Options) *Service {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	return &Service{
		store:       store,
		feed:        feed,
		renderer:    renderer,
		sink:        sink,
		log:         logger,
		workers:     opts.Workers,
		callTimeout: opts.CallTimeout,
	}
}

// RunCycle обрабатывает снимок всех включённых подписок.
// Ошибка возвращается только если не удалось получить сам снимок.
func (s *Service) RunCycle(ctx context.Context) (Report, error) {
	start := time.Now()
	report := Report{CycleID: uuid.NewString(), Outcomes: make(map[Outcome]int)}
	cycleLog := s.log.With().Str("cycle_id", report.CycleID).Logger()

	listCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	subs, err := s.store.ListEnabled(listCtx)
	cancel()
	if err != nil {
		return report, fmt.Errorf("dispatch: список подписок: %w", err)
	}
	report.Users = len(subs)
	cycleLog.Info().Int("users", len(subs)).Msg("dispatch: цикл начат")

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.workers)
	for _, sub := range subs {
		if ctx.Err() != nil {
			mu.Lock()
			report.Outcomes[OutcomeCanceled]++
			mu.Unlock()
			metrics.IncDispatchUser(string(OutcomeCanceled))
			continue
		}
		sub := sub
		g.Go(func() error {
			userLog := cycleLog.With().
				Str("chat_identity", sub.ChatID).
				Str("upstream_identity", sub.UpstreamID).
				Logger()
			outcome, delivered := s.processUser(ctx, sub, userLog)
			metrics.IncDispatchUser(string(outcome))

			mu.Lock()
			report.Outcomes[outcome]++
			report.Delivered += delivered
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	metrics.ObserveDispatchCycle(start)
	cycleLog.Info().
		Int("users", report.Users).
		Int("delivered", report.Delivered).
		Dur("took", time.Since(start)).
		Msg("dispatch: цикл завершён")
	return report, nil
}

type pending struct {
	kind domain.ActivityKind
	msg  domain.RenderedMessage
}

// processUser загружает ленту, доставляет новые активности и двигает водяную метку только после полной доставки.
func (s *Service) processUser(ctx context.Context, sub domain.Subscription, log zerolog.Logger) (Outcome, int) {
	if !sub.Enabled() {
		return OutcomeIdle, 0
	}
	target := *sub.Target

	fetchCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	activities, err := s.feed.Activity(fetchCtx, sub.UpstreamID)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeCanceled, 0
		}
		log.Warn().Err(err).Msg("dispatch: не удалось загрузить ленту, пропускаем пользователя")
		return OutcomeFetchFailed, 0
	}

	fresh, dropped := partition(activities, sub)
	for reason, n := range dropped {
		metrics.AddDispatchFiltered(reason, n)
	}
	queue := make([]pending, 0, len(fresh))
	for _, a := range fresh {
		msg, err := s.renderer.Render(a)
		if err != nil {
			log.Error().Err(err).Str("kind", string(a.Kind())).Msg("dispatch: не удалось отрисовать активность")
			return OutcomeRenderFailed, 0
		}
		queue = append(queue, pending{kind: a.Kind(), msg: msg})
	}

	delivered := 0
	for i, item := range queue {
		if ctx.Err() != nil {
			log.Warn().Int("delivered", delivered).Int("total", len(queue)).Msg("dispatch: остановка до завершения доставки, метка не сдвигается")
			return OutcomeCanceled, delivered
		}
		deliverCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
		err := s.sink.Deliver(deliverCtx, target, item.msg)
		cancel()
		metrics.IncDispatchMessage(string(item.kind), err)
		if err != nil {
			log.Error().Err(err).
				Int("position", i+1).
				Int("total", len(queue)).
				Msg("dispatch: доставка не удалась, метка не сдвигается")
			return OutcomeDeliveryFailed, delivered
		}
		delivered++
	}

	if high, ok := HighWatermark(activities); ok && high.After(sub.Watermark) {
		// Запись метки не прерывается остановкой процесса: вся последовательность уже доставлена.
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.callTimeout)
		err := s.store.AdvanceWatermark(writeCtx, sub.ChatID, high)
		cancel()
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				log.Warn().Msg("dispatch: подписка удалена во время цикла")
			} else {
				log.Error().Err(err).Time("watermark", high).Msg("dispatch: не удалось сохранить водяную метку")
			}
			return OutcomeWatermarkFailed, delivered
		}
		log.Debug().Time("watermark", high).Int("delivered", delivered).Msg("dispatch: метка сдвинута")
	}

	if delivered == 0 {
		return OutcomeIdle, 0
	}
	return OutcomeDelivered, delivered
}
