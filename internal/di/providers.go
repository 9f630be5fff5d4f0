package di

import (
	"context"
	"fmt"
	"time"

	segkafka "github.com/segmentio/kafka-go"

	"FlowScan/internal/domain/repository"
	"FlowScan/internal/handler/api"
	mid "FlowScan/internal/middleware"
	internalrepo "FlowScan/internal/repository"
	icache "FlowScan/internal/service/cache"
	"FlowScan/internal/service/ratelimit"
	"FlowScan/internal/service/scoring"
	"FlowScan/internal/service/stream"
	"FlowScan/internal/service/uw"
	"FlowScan/internal/services/marketstate"
	"FlowScan/internal/services/modes"
	"FlowScan/internal/usecase"
	pkgch "FlowScan/pkg/clickhouse"
	"FlowScan/pkg/config"
	xhttp "FlowScan/pkg/http"
	pkgkafka "FlowScan/pkg/kafka"
	"FlowScan/pkg/logger"
	"FlowScan/pkg/metrics"
	"FlowScan/pkg/server"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideGovernor creates the shared adaptive rate governor.
func ProvideGovernor(cfg *config.Config, m repository.Metrics) *ratelimit.Governor {
	return ratelimit.New(ratelimit.Config{
		RefillPerSec:  cfg.RateLimit.RequestsPerMinute / 60,
		Burst:         cfg.RateLimit.Burst,
		FloorPerSec:   cfg.RateLimit.FloorPerMinute / 60,
		FloorBurst:    cfg.RateLimit.FloorBurst,
		RecoveryStep:  cfg.RateLimit.RecoveryStep / 60,
		RecoveryAfter: cfg.RateLimit.RecoveryAfter,
	}, ratelimit.WithMetrics(m))
}

// ProvideHTTPClient creates the provider-facing HTTP client.
func ProvideHTTPClient(cfg *config.Config) *xhttp.Client {
	return xhttp.NewClient(xhttp.WithTimeout(cfg.Provider.RequestTimeout.D()))
}

// ProvideCache creates the response cache: in-process TTL map, layered
// over Redis when a shared tier is configured.
func ProvideCache(cfg *config.Config, log *logger.Logger) icache.BytesCache {
	local := icache.NewTTLCache(cfg.Cache.MaxEntries)
	if !cfg.Cache.Redis.Enabled {
		return local
	}
	shared := icache.NewRedisCache(icache.RedisConfig{
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
		Prefix:   "flowscan",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := shared.Ping(ctx); err != nil {
		log.Warn("redis unreachable, falling back to local cache",
			logger.String("addr", cfg.Cache.Redis.Addr), logger.Error(err))
		return local
	}
	return icache.NewLayered(local, shared)
}

// ProvideProviderClient creates the Unusual Whales REST client.
func ProvideProviderClient(
	cfg *config.Config,
	hc *xhttp.Client,
	gov *ratelimit.Governor,
	bc icache.BytesCache,
	m repository.Metrics,
	log *logger.Logger,
) *uw.Client {
	return uw.NewClient(uw.Config{
		APIKey:      cfg.Provider.APIKey,
		BaseURL:     cfg.Provider.BaseURL,
		MaxRetries:  cfg.Provider.MaxRetries,
		BackoffBase: cfg.Provider.BackoffBase.D(),
		BackoffMax:  cfg.Provider.BackoffMax.D(),
		DefaultTTL:  cfg.Cache.DefaultTTL.D(),
	}, hc, gov, bc, m, log)
}

// ProvideStream creates the provider websocket subscriber.
func ProvideStream(cfg *config.Config, log *logger.Logger, m repository.Metrics) repository.MarketStream {
	return stream.NewSubscriber(stream.Config{
		URL:              cfg.Provider.WebSocketURL,
		APIKey:           cfg.Provider.APIKey,
		ReconnectMin:     cfg.Stream.ReconnectMin.D(),
		ReconnectMax:     cfg.Stream.ReconnectMax.D(),
		MaxReconnects:    cfg.Stream.MaxReconnects,
		HeartbeatTimeout: cfg.Stream.HeartbeatTimeout.D(),
		PingInterval:     cfg.Stream.PingInterval.D(),
	}, log, m)
}

// ProvideBook creates the rolling in-memory view of streamed market state.
func ProvideBook() *marketstate.Book {
	return marketstate.NewBook(15*time.Minute, repository.SystemClock{})
}

// ProvidePipeline creates the validate/throttle/buffer stage between the
// websocket and the live book.
func ProvidePipeline(book *marketstate.Book, m repository.Metrics) *mid.StreamPipeline {
	return mid.NewStreamPipeline(book, m,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(1000),
	)
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when the
// store is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout.D(), cfg.ClickHouse.ReadTimeout.D(), cfg.ClickHouse.WriteTimeout.D()),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideAlertStore creates the ClickHouse alert store and initializes
// schema. Returns nil when ClickHouse is disabled.
func ProvideAlertStore(chClient *pkgch.Client, cfg *config.Config) (*internalrepo.ClickHouseAlertStore, error) {
	if chClient == nil {
		return nil, nil
	}
	store := internalrepo.NewClickHouseAlertStore(chClient, cfg.ClickHouse.Database)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithTimeouts(cfg.Kafka.WriteTimeout.D(), cfg.Kafka.WriteTimeout.D()),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideDispatchers assembles the configured outbound alert channels.
func ProvideDispatchers(cfg *config.Config, hc *xhttp.Client, producer *pkgkafka.Producer) []repository.Dispatcher {
	var out []repository.Dispatcher
	if producer != nil {
		out = append(out, internalrepo.NewKafkaDispatcher(producer, cfg.Kafka.Topic))
	}
	if cfg.Alerts.DiscordWebhookURL != "" {
		out = append(out, internalrepo.NewDiscordDispatcher(hc, cfg.Alerts.DiscordWebhookURL))
	}
	if cfg.Alerts.TelegramBotToken != "" && cfg.Alerts.TelegramChatID != "" {
		out = append(out, internalrepo.NewTelegramDispatcher(hc, cfg.Alerts.TelegramBotToken, cfg.Alerts.TelegramChatID))
	}
	return out
}

// ProvideOrchestrator builds the orchestrator and registers every enabled
// mode against the provider client and the live book.
func ProvideOrchestrator(
	cfg *config.Config,
	client *uw.Client,
	book *marketstate.Book,
	store *internalrepo.ClickHouseAlertStore,
	m repository.Metrics,
	log *logger.Logger,
) (*usecase.Orchestrator, error) {
	var cycles repository.CycleStateStore
	if store != nil {
		cycles = store
	}
	orch := usecase.NewOrchestrator(log, m, cycles)

	for id, mc := range cfg.EnabledModes() {
		engine, err := scoring.NewEngine(mc.Weights)
		if err != nil {
			return nil, fmt.Errorf("modes.%s: %w", id, err)
		}

		var mode usecase.Mode
		switch id {
		case "intraday":
			mode = modes.NewIntraday(modes.IntradayConfig{
				Tickers:  mc.Tickers,
				Interval: mc.Interval.D(),
			}, client, book, engine, log)
		case "swing":
			mode = modes.NewSwing(modes.SwingConfig{
				Tickers:  mc.Tickers,
				Interval: mc.Interval.D(),
			}, client, engine, log)
		case "longterm":
			mode = modes.NewLongterm(modes.LongtermConfig{
				Tickers:  mc.Tickers,
				Interval: mc.Interval.D(),
			}, client, engine, log)
		default:
			return nil, fmt.Errorf("unknown mode %q", id)
		}

		orch.Register(mode, usecase.ModeParams{
			AlertThreshold:   mc.AlertThreshold,
			DegradedAfter:    mc.DegradedAfter,
			MaxDegradedScale: mc.MaxDegradedScale,
		})
	}
	return orch, nil
}

// ProvideAlertGate creates the dedup/cooldown gate.
func ProvideAlertGate(
	cfg *config.Config,
	log *logger.Logger,
	m repository.Metrics,
	store *internalrepo.ClickHouseAlertStore,
	dispatchers []repository.Dispatcher,
) *usecase.AlertGate {
	cooldowns := make(map[string]time.Duration, 3)
	for id, mc := range cfg.EnabledModes() {
		cooldowns[id] = mc.Cooldown.D()
	}
	var alerts repository.AlertStore
	if store != nil {
		alerts = store
	}
	return usecase.NewAlertGate(log, m, alerts, dispatchers, cooldowns, repository.SystemClock{})
}

// ProvideKafkaConsumer creates the audit consumer, or nil when disabled.
func ProvideKafkaConsumer(cfg *config.Config, m repository.Metrics) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || !cfg.Kafka.Audit.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Audit.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Audit.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Audit.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Audit.RetryMax, cfg.Kafka.Audit.BackoffMin.D(), cfg.Kafka.Audit.BackoffMax.D()),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Audit.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(consumeErrorHook(m))
	return consumer, nil
}

// consumeErrorHook surfaces audit consume failures on the metrics port.
func consumeErrorHook(m repository.Metrics) pkgkafka.ConsumerHook {
	return pkgkafka.HookFuncs{
		Err: func(_ context.Context, topic string, _ segkafka.Message, _ []byte, _ error) {
			m.RecordError("kafka_consume:" + topic)
		},
	}
}

// ProvideAuditHandler creates the bus replay handler, or nil when there is
// no store to replay into.
func ProvideAuditHandler(cfg *config.Config, store *internalrepo.ClickHouseAlertStore, m repository.Metrics) pkgkafka.MessageHandler {
	if store == nil {
		return nil
	}
	return usecase.NewAlertAuditHandler(cfg.Kafka.Topic, store, m)
}

// ProvideStatusHandler creates the HTTP surface.
func ProvideStatusHandler(
	log *logger.Logger,
	orch *usecase.Orchestrator,
	gov *ratelimit.Governor,
	ms repository.MarketStream,
	store *internalrepo.ClickHouseAlertStore,
) *api.StatusHandler {
	var alerts repository.AlertStore
	if store != nil {
		alerts = store
	}
	return api.NewStatusHandler(log, orch, gov, ms, alerts)
}

// kafkaLogSink adapts the producer to the log collector's publisher.
type kafkaLogSink struct {
	producer *pkgkafka.Producer
}

func (s *kafkaLogSink) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return s.producer.Publish(ctx, topic, nil, payload)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	ms repository.MarketStream,
	pipeline *mid.StreamPipeline,
	gov *ratelimit.Governor,
	orch *usecase.Orchestrator,
	gate *usecase.AlertGate,
	producer *pkgkafka.Producer,
	consumer *pkgkafka.Consumer,
	auditH pkgkafka.MessageHandler,
	chClient *pkgch.Client,
	statusH *api.StatusHandler,
) *server.App {
	if producer != nil {
		log.AddCollector(&logger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          "flowscan.logs",
			Publisher:      &kafkaLogSink{producer: producer},
		})
	}
	app := server.New(cfg, log, ms, pipeline, gov, orch, gate, consumer, auditH, chClient)
	app.SetHTTPHandler(statusH)
	return app
}
