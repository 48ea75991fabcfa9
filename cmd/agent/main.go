package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"funpay-agent/internal/adapters/bot"
	"funpay-agent/internal/adapters/funpay"
	"funpay-agent/internal/adapters/products"
	"funpay-agent/internal/adapters/repo"
	"funpay-agent/internal/adapters/settings"
	"funpay-agent/internal/domain"
	"funpay-agent/internal/infra/cache"
	"funpay-agent/internal/infra/config"
	"funpay-agent/internal/infra/db"
	apphttp "funpay-agent/internal/infra/http"
	applog "funpay-agent/internal/infra/log"
	"funpay-agent/internal/infra/metrics"
	"funpay-agent/internal/infra/queue"
	"funpay-agent/internal/usecase/automation"
	"funpay-agent/internal/usecase/dispatch"
	"funpay-agent/internal/usecase/raise"
	"funpay-agent/internal/usecase/runner"
)

const eventBuffer = 256

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rules, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		logger.Fatal().Err(err).Str("file", cfg.RulesFile).Msg("agent: некорректные правила")
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Msg("agent: нет подключения к Redis")
		}
		defer redisClient.Close()
	}

	var store domain.Cache
	if redisClient != nil {
		store = cache.NewRedis(redisClient, "funpay-agent:")
	} else {
		store = cache.NewMemory()
	}
	agentSettings := settings.NewStore(store)

	var journal domain.JournalRepo = repo.NewLogJournal(applog.Component(logger, "journal"))
	if cfg.PGDSN != "" {
		pool, err := db.Connect(ctx, cfg.PGDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("agent: нет подключения к БД")
		}
		defer pool.Close()
		journal = repo.NewPostgres(pool)
	}

	sink, closeSink := newEventSink(cfg, redisClient, logger)
	defer closeSink()

	client := funpay.NewClient(funpay.Config{
		BaseURL:   cfg.FunPay.BaseURL,
		GoldenKey: cfg.FunPay.GoldenKey,
		UserAgent: cfg.FunPay.UserAgent,
		Timeout:   cfg.FunPay.Timeout,
	}, domain.DefaultClassifier(), applog.Component(logger, "funpay"))
	if err := client.Init(ctx); err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			logger.Fatal().Err(err).Msg("agent: golden_key недействителен")
		}
		logger.Fatal().Err(err).Msg("agent: не удалось инициализировать сессию")
	}

	agentRunner := runner.New(client, runner.Options{
		Interval:          cfg.PollInterval(),
		MessageHistory:    cfg.Runner.MessageHistory,
		OrderDetails:      cfg.Runner.OrderDetails,
		IgnoreCycleErrors: cfg.Runner.IgnoreCycleErrors,
	}, applog.Component(logger, "runner"))
	sender := automation.NewSender(client, agentRunner, applog.Component(logger, "sender"))

	var (
		notifier   domain.Notifier
		botHandler *bot.Handler
	)
	if cfg.Telegram.Token != "" {
		botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			logger.Fatal().Err(err).Msg("agent: не удалось создать бота")
		}
		if cfg.Telegram.Secret == "" {
			logger.Warn().Msg("agent: TG_SECRET не задан, авторизация в боте невозможна")
		}
		botLog := applog.Component(logger, "bot")
		notifier = bot.NewNotifier(botAPI, botLog, agentSettings, cfg.FunPay.BaseURL)
		botHandler = bot.NewHandler(botAPI, botLog, agentSettings, sender, cfg.Telegram.Secret)
	} else {
		logger.Warn().Msg("agent: TG_BOT_TOKEN не задан, уведомления отключены")
	}

	service := automation.NewService(automation.Deps{
		Rules:    rules,
		Account:  client,
		Sender:   sender,
		Settings: agentSettings,
		Products: products.NewFileStore(cfg.ProductsDir),
		Notifier: notifier,
		Journal:  journal,
		Sink:     sink,
		Lots:     client,
		Log:      applog.Component(logger, "automation"),
	})
	dispatcher := dispatch.New(applog.Component(logger, "dispatch"), cfg.Runner.DispatchWorkers)
	service.Register(dispatcher)

	maxAge := 10 * cfg.PollInterval()
	if maxAge < time.Minute {
		maxAge = time.Minute
	}
	server := apphttp.NewServer(applog.Component(logger, "http"), agentRunner.LastCycle, maxAge)

	events := make(chan domain.Event, eventBuffer)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(events)
		if err := bootstrap(gctx, agentRunner, service.Started, events, logger); err != nil {
			return err
		}
		return agentRunner.Run(gctx, events)
	})
	g.Go(func() error {
		return dispatcher.Run(gctx, events)
	})
	g.Go(func() error {
		return server.Run(gctx, cfg.HTTPAddr)
	})
	if botHandler != nil {
		g.Go(func() error {
			return botHandler.Run(gctx)
		})
	}
	if rules.Raise.Enabled {
		raiser := raise.New(client, rules.Raise.Categories, notifier, journal, applog.Component(logger, "raise"))
		g.Go(func() error {
			return raiser.Run(gctx)
		})
	}

	logger.Info().Str("username", client.Username()).Msg("agent: запущен")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("agent: остановлен с ошибкой")
		return
	}
	logger.Info().Msg("agent: остановлен")
}

type cycler interface {
	Cycle(ctx context.Context) ([]domain.Event, error)
}

// bootstrap выполняет первый цикл опроса, передаёт его события диспетчеру
// и сообщает владельцу о запуске. Начатый цикл доводится до конца даже при
// отмене ctx, как и в Runner.Run.
func bootstrap(ctx context.Context, r cycler, started func(ctx context.Context, chats, sales int), out chan<- domain.Event, logger zerolog.Logger) error {
	initial, err := r.Cycle(context.WithoutCancel(ctx))
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			return err
		}
		logger.Error().Err(err).Msg("agent: первый цикл опроса не удался")
		return nil
	}
	var chats, sales int
	for _, ev := range initial {
		switch {
		case ev.Kind == domain.EventInitialChat:
			chats++
		case ev.Kind == domain.EventInitialOrder && ev.Order != nil && ev.Order.Status == domain.OrderPaid:
			sales++
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	started(ctx, chats, sales)
	return nil
}

func newEventSink(cfg config.AppConfig, client *redis.Client, logger zerolog.Logger) (domain.EventSink, func()) {
	switch cfg.Events.Sink {
	case "redis":
		return queue.NewRedisEventQueue(client, cfg.Events.Queue, cfg.Events.MaxLen), func() {}
	case "rabbitmq":
		q, err := queue.NewRabbitEventQueue(cfg.Events.RabbitURL, cfg.Events.Queue)
		if err != nil {
			logger.Fatal().Err(err).Msg("agent: не удалось подключиться к RabbitMQ")
		}
		return q, func() {
			if err := q.Close(); err != nil {
				logger.Warn().Err(err).Msg("agent: ошибка закрытия RabbitMQ")
			}
		}
	}
	return nil, func() {}
}
