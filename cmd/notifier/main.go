package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"boxd-notifier/internal/adapters/bot"
	"boxd-notifier/internal/adapters/letterboxd"
	"boxd-notifier/internal/adapters/repo"
	slackadapter "boxd-notifier/internal/adapters/slack"
	"boxd-notifier/internal/adapters/telegram"
	"boxd-notifier/internal/domain"
	"boxd-notifier/internal/infra/cache"
	"boxd-notifier/internal/infra/config"
	"boxd-notifier/internal/infra/db"
	apphttp "boxd-notifier/internal/infra/http"
	applog "boxd-notifier/internal/infra/log"
	"boxd-notifier/internal/infra/metrics"
	"boxd-notifier/internal/usecase/accounts"
	"boxd-notifier/internal/usecase/dispatch"
	"boxd-notifier/internal/usecase/render"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("notifier: некорректная конфигурация")
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)
	}

	store, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()

	var clientOpts []letterboxd.Option
	if cfg.RedisAddr != "" {
		redisCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		client, err := cache.Connect(redisCtx, cfg.RedisAddr)
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Msg("notifier: нет подключения к Redis")
		}
		defer client.Close()
		clientOpts = append(clientOpts, letterboxd.WithCache(cache.NewRedis(client), cfg.Letterboxd.MemberTTL))
	}

	boxd, err := letterboxd.NewClient(ctx, letterboxd.Config{
		BaseURL:      cfg.Letterboxd.BaseURL,
		ClientID:     cfg.Letterboxd.ClientID,
		ClientSecret: cfg.Letterboxd.ClientSecret,
		Username:     cfg.Letterboxd.Username,
		Password:     cfg.Letterboxd.Password,
		RPS:          cfg.Letterboxd.RPS,
		Timeout:      cfg.Letterboxd.Timeout,
	}, applog.Component(logger, "letterboxd"), clientOpts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("notifier: не удалось авторизоваться в Letterboxd")
	}

	accountsUC := accounts.NewService(store, boxd)
	server := apphttp.NewServer(applog.Component(logger, "http"))
	g, ctx := errgroup.WithContext(ctx)

	var (
		sink     domain.Sink
		renderer *render.Renderer
	)
	switch cfg.Platform {
	case config.PlatformSlack:
		renderer = render.New(cfg.Letterboxd.SiteURL, render.SlackGlyphs)
		api, socket := slackadapter.NewClients(cfg.Slack.BotToken, cfg.Slack.AppToken)
		sink = slackadapter.NewSink(api)
		commands := slackadapter.NewCommands(api, accountsUC, renderer, applog.Component(logger, "slack"))
		g.Go(func() error { return commands.Listen(ctx, socket) })
	case config.PlatformTelegram:
		renderer = render.New(cfg.Letterboxd.SiteURL, render.UnicodeGlyphs)
		botAPI, err := tgbotapi.NewBotAPIWithClient(cfg.Telegram.Token, tgbotapi.APIEndpoint, &http.Client{Timeout: cfg.Dispatch.CallTimeout})
		if err != nil {
			logger.Fatal().Err(err).Msg("notifier: не удалось создать бота")
		}
		sink = telegram.NewSink(botAPI)
		handler := bot.NewHandler(botAPI, applog.Component(logger, "bot"), accountsUC, renderer)
		mountWebhook(server, handler, cfg.Telegram.WebhookSecret)
		if cfg.Telegram.WebhookURL != "" {
			registerWebhook(botAPI, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret, logger)
		}
	}

	dispatcher := dispatch.NewService(store, boxd, renderer, sink, applog.Component(logger, "dispatch"), dispatch.Options{
		Workers:     cfg.Dispatch.Workers,
		CallTimeout: cfg.Dispatch.CallTimeout,
	})
	scheduler, err := dispatch.NewScheduler(dispatcher, cfg.Dispatch.Schedule, applog.Component(logger, "scheduler"))
	if err != nil {
		logger.Fatal().Err(err).Msg("notifier: некорректное расписание")
	}

	g.Go(func() error {
		scheduler.Run(ctx)
		return nil
	})
	g.Go(func() error { return server.Run(ctx, fmt.Sprintf(":%d", cfg.Port)) })

	logger.Info().Str("platform", cfg.Platform).Str("schedule", cfg.Dispatch.Schedule).Msg("notifier: запущен")
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("notifier: остановлен с ошибкой")
		return
	}
	logger.Info().Msg("notifier: остановлен")
}

func openStore(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (domain.SubscriptionStore, func()) {
	if cfg.PGDSN == "" {
		logger.Warn().Msg("notifier: PG_DSN не задан, подписки хранятся в памяти")
		return repo.NewMemory(), func() {}
	}
	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("notifier: нет подключения к БД")
	}
	store := repo.NewPostgres(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		logger.Fatal().Err(err).Msg("notifier: не удалось применить схему")
	}
	return store, pool.Close
}

func mountWebhook(server *apphttp.Server, h *bot.Handler, secret string) {
	server.Router.With(apphttp.WebhookSecretMiddleware(secret)).Post("/bot/webhook", func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			apphttp.WriteError(w, http.StatusBadRequest, "некорректный апдейт")
			return
		}
		h.HandleUpdate(r.Context(), update)
		w.WriteHeader(http.StatusOK)
	})
}

func registerWebhook(botAPI *tgbotapi.BotAPI, url, secret string, logger zerolog.Logger) {
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)
	start := time.Now()
	_, err := botAPI.MakeRequest("setWebhook", params)
	metrics.ObserveNetworkRequest("telegram_bot", "set_webhook", "bot", start, err)
	if err != nil {
		logger.Fatal().Err(err).Msg("notifier: не удалось зарегистрировать вебхук")
	}
}
