package di

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"CoinPull/internal/domain/models"
	"CoinPull/internal/domain/repository"
	"CoinPull/internal/handler/api"
	internalrepo "CoinPull/internal/repository"
	icache "CoinPull/internal/service/cache"
	"CoinPull/internal/service/coingecko"
	"CoinPull/internal/service/ratelimit"
	"CoinPull/internal/services/analytics"
	"CoinPull/internal/services/history"
	"CoinPull/internal/services/normalize"
	"CoinPull/internal/services/publish"
	"CoinPull/internal/usecase"
	pkgcache "CoinPull/pkg/cache"
	pkgch "CoinPull/pkg/clickhouse"
	"CoinPull/pkg/config"
	pkgkafka "CoinPull/pkg/kafka"
	applogger "CoinPull/pkg/logger"
	"CoinPull/pkg/metrics"
	"CoinPull/pkg/server"
	"CoinPull/pkg/util"
)

// ProvideLogger builds the process logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New(nil)
}

// ProvideClickHouseClient connects to ClickHouse and creates the database.
// It returns nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(cfg.ClickHouse.MaxOpenConns, cfg.ClickHouse.MaxOpenConns/2),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, true),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, []string{"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideRedisCache connects to Redis, or returns nil when disabled.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Redis.Host),
		pkgcache.WithRedisPort(cfg.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideCache layers an in-process cache over Redis when Redis is enabled.
func ProvideCache(rc *pkgcache.RedisCache) pkgcache.Service {
	if rc == nil {
		return pkgcache.NewMemoryCache()
	}
	return pkgcache.NewLayeredCache(rc)
}

// ProvideLease picks the lease backend. The memory backend only excludes
// runs inside this process.
func ProvideLease(cfg *config.Config, rc *pkgcache.RedisCache, c pkgcache.Service) repository.Lease {
	if cfg.Lease.Backend == "redis" && rc != nil {
		return internalrepo.NewCacheLease(rc)
	}
	return internalrepo.NewCacheLease(c)
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEventPublisher publishes pipeline events to Kafka when enabled.
func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.EventPublisher {
	if producer == nil {
		return internalrepo.NopEventPublisher{}
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.Topics.Objects, cfg.Kafka.Topics.Gold)
}

// ProvideKafkaConsumer creates the object-event consumer, or nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		// One worker: object events for the same series must not race for the lease.
		pkgkafka.WithConsumerWorkers(1),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideBlobStore roots the Bronze object store at the storage root.
func ProvideBlobStore(cfg *config.Config) repository.BlobStore {
	return internalrepo.NewFSBlobStore(cfg.Storage.Root)
}

// ProvideSeriesStore selects the Silver backend and prepares its schema.
func ProvideSeriesStore(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) (repository.SeriesStore, error) {
	if cfg.Silver.Backend != "clickhouse" {
		return internalrepo.NewParquetSeriesStore(
			filepath.Join(cfg.Storage.Root, cfg.Storage.SilverDir),
			cfg.Storage.HistoryFile,
			cfg.Storage.PartitionsDir,
		), nil
	}
	if ch == nil {
		return nil, fmt.Errorf("silver backend clickhouse: client not configured")
	}
	store := internalrepo.NewClickHouseSeriesStore(ch, cfg.ClickHouse.SeriesTable)
	store.SetLogger(l)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ch.InitSchema(ctx, store.SchemaStatements()); err != nil {
		return nil, fmt.Errorf("series schema: %w", err)
	}
	return store, nil
}

// ProvideParquetGold is the primary Gold location and the API's source.
func ProvideParquetGold(cfg *config.Config) *internalrepo.ParquetGoldStore {
	return internalrepo.NewParquetGoldStore(filepath.Join(cfg.Storage.Root, cfg.Storage.GoldFile))
}

// ProvideGoldSinks returns the Parquet table plus the optional ClickHouse mirror.
func ProvideGoldSinks(cfg *config.Config, primary *internalrepo.ParquetGoldStore, ch *pkgch.Client, l *applogger.Logger) ([]repository.GoldSink, error) {
	sinks := []repository.GoldSink{primary}
	if !cfg.Gold.ClickHouseMirror || ch == nil {
		return sinks, nil
	}
	mirror := internalrepo.NewClickHouseGoldSink(ch, cfg.ClickHouse.GoldTable)
	mirror.SetLogger(l)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ch.InitSchema(ctx, mirror.SchemaStatements()); err != nil {
		return nil, fmt.Errorf("gold schema: %w", err)
	}
	return append(sinks, mirror), nil
}

// ProvideGoldCache caches API reads of the Parquet Gold table.
func ProvideGoldCache(cfg *config.Config, primary *internalrepo.ParquetGoldStore, c pkgcache.Service, l *applogger.Logger) *icache.GoldCache {
	return icache.NewGoldCache(primary, c, cfg.Gold.CacheTTL, l)
}

// ProvideFetcher creates the CoinGecko client.
func ProvideFetcher(cfg *config.Config) repository.SnapshotFetcher {
	return coingecko.New(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Provider.VsCurrency, cfg.Provider.Timeout)
}

// ProvideAccumulator wraps the series store with the configured write mode.
func ProvideAccumulator(cfg *config.Config, store repository.SeriesStore, l *applogger.Logger) *history.Accumulator {
	return history.New(store, history.Mode(cfg.Silver.Mode),
		history.WithRetry(retryPolicy(cfg.Storage.Retry, nil)),
		history.WithTimeout(cfg.Storage.Timeout),
		history.WithLogger(l),
	)
}

// ProvideBronzeIngest creates the ingestion use case.
func ProvideBronzeIngest(cfg *config.Config, fetcher repository.SnapshotFetcher, blobs repository.BlobStore, events repository.EventPublisher, m repository.Metrics, l *applogger.Logger) *usecase.BronzeIngest {
	layout := normalize.LayoutCompact
	if cfg.Storage.BronzeLayout == "dashed" {
		layout = normalize.LayoutDashed
	}
	return usecase.NewBronzeIngest(fetcher, blobs, events, m, l, usecase.BronzeConfig{
		Bucket:     cfg.Storage.Root,
		Prefix:     cfg.Storage.BronzePrefix,
		Layout:     layout,
		Coins:      cfg.AssetIDs(),
		FetchRetry: retryPolicy(cfg.Provider.Retry, models.IsRetryable),
		StoreRetry: retryPolicy(cfg.Storage.Retry, nil),
		Timeout:    cfg.Storage.Timeout,
	})
}

// ProvideSilverProcessor creates the normalization use case.
func ProvideSilverProcessor(cfg *config.Config, blobs repository.BlobStore, acc *history.Accumulator, m repository.Metrics, l *applogger.Logger) *usecase.SilverProcessor {
	return usecase.NewSilverProcessor(blobs, normalize.New(assetSchema(cfg), l), acc, m, l,
		bronzeDir(cfg.Storage.BronzePrefix), retryPolicy(cfg.Storage.Retry, nil), cfg.Storage.Timeout)
}

// ProvideGoldBuilder creates the analytics use case.
func ProvideGoldBuilder(cfg *config.Config, acc *history.Accumulator, sinks []repository.GoldSink, gc *icache.GoldCache, events repository.EventPublisher, m repository.Metrics, l *applogger.Logger) *usecase.GoldBuilder {
	pub := publish.New(sinks,
		publish.WithRetry(retryPolicy(cfg.Storage.Retry, nil)),
		publish.WithTimeout(cfg.Storage.Timeout),
		publish.WithPreview(cfg.Gold.Preview),
		publish.WithLogger(l),
	)
	return usecase.NewGoldBuilder(acc, analytics.NewWindowEngine(cfg.Gold.Window), pub, gc, events, m, l)
}

// ProvidePipeline chains the three stages under the series lease.
func ProvidePipeline(cfg *config.Config, bronze *usecase.BronzeIngest, silver *usecase.SilverProcessor, gold *usecase.GoldBuilder, lease repository.Lease, l *applogger.Logger) *usecase.Pipeline {
	return usecase.NewPipeline(bronze, silver, gold, lease, usecase.LeaseConfig{
		Key:  cfg.Lease.Key,
		TTL:  cfg.Lease.TTL,
		Wait: cfg.Lease.Wait,
	}, l)
}

// ProvideObjectEventHandler consumes Bronze object notifications.
func ProvideObjectEventHandler(cfg *config.Config, p *usecase.Pipeline, l *applogger.Logger) *usecase.ObjectEventHandler {
	return usecase.NewObjectEventHandler(cfg.Kafka.Topics.Objects, p, l)
}

// ProvideScheduler runs the pipeline on an interval when enabled. With Kafka
// enabled a tick only ingests; the object event drives Silver and Gold.
func ProvideScheduler(cfg *config.Config, p *usecase.Pipeline, l *applogger.Logger) *usecase.Scheduler {
	if !cfg.Schedule.Enabled {
		return nil
	}
	job := func(ctx context.Context) error {
		_, err := p.RunAll(ctx, true, nil)
		return err
	}
	if cfg.Kafka.Enabled {
		job = func(ctx context.Context) error {
			_, err := p.Ingest(ctx, nil)
			return err
		}
	}
	return usecase.NewScheduler(cfg.Schedule.Interval, job, l)
}

// ProvideGoldHandler creates the HTTP API with health checks for enabled backends.
func ProvideGoldHandler(cfg *config.Config, gc *icache.GoldCache, p *usecase.Pipeline, blobs repository.BlobStore, ch *pkgch.Client, rc *pkgcache.RedisCache, l *applogger.Logger) *api.GoldHandler {
	h := api.NewGoldHandler(gc, p, ratelimit.New(cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSec), l)
	h.AddHealthCheck("storage", func(ctx context.Context) error {
		_, err := blobs.List(ctx, cfg.Storage.BronzePrefix)
		return err
	})
	if ch != nil {
		h.AddHealthCheck("clickhouse", ch.Health)
	}
	if rc != nil {
		h.AddHealthCheck("redis", rc.Health)
	}
	return h
}

// ProvideApp assembles the application and ties resource lifetimes to it.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	h *api.GoldHandler,
	consumer *pkgkafka.Consumer,
	oh *usecase.ObjectEventHandler,
	scheduler *usecase.Scheduler,
	producer *pkgkafka.Producer,
	events repository.EventPublisher,
	ch *pkgch.Client,
	c pkgcache.Service,
) *server.App {
	if producer != nil && cfg.Kafka.LogCollector.Enabled {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Kafka.LogCollector.Interval,
			CountThreshold: cfg.Kafka.LogCollector.CountThreshold,
			Topic:          cfg.Kafka.Topics.Logs,
			Publisher:      producer,
		})
	}
	var handler pkgkafka.MessageHandler
	if consumer != nil {
		handler = oh
	}
	app := server.New(cfg, l, h, consumer, handler, scheduler)
	if ch != nil {
		app.OnClose("clickhouse", ch)
	}
	app.OnClose("cache", c)
	app.OnClose("events", events)
	app.OnClose("logger", collectorCloser{l})
	return app
}

type collectorCloser struct{ l *applogger.Logger }

func (c collectorCloser) Close() error {
	c.l.RemoveCollector()
	return nil
}

func retryPolicy(rc config.RetryConfig, retryable func(error) bool) util.RetryPolicy {
	return util.RetryPolicy{Attempts: rc.Attempts, BackoffMin: rc.BackoffMin, BackoffMax: rc.BackoffMax, Retryable: retryable}
}

func assetSchema(cfg *config.Config) models.AssetSchema {
	s := make(models.AssetSchema, len(cfg.Assets))
	for i, a := range cfg.Assets {
		s[i] = models.AssetSpec{ID: a.ID, Fields: a.Fields}
	}
	return s
}

// bronzeDir is the listing prefix for Bronze objects: the directory part of
// the object name prefix.
func bronzeDir(prefix string) string {
	dir := filepath.ToSlash(filepath.Dir(prefix))
	if dir == "." {
		return ""
	}
	return dir + "/"
}

// Runner is the one-shot pipeline used by cmd/pipeline.
type Runner struct {
	Pipeline *usecase.Pipeline
	Logger   *applogger.Logger
	closers  []func() error
}

// Close releases clients opened for the run.
func (r *Runner) Close() error {
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i]()
	}
	r.closers = nil
	return nil
}

// ProvideRunner assembles the one-shot runner.
func ProvideRunner(p *usecase.Pipeline, l *applogger.Logger, events repository.EventPublisher, ch *pkgch.Client, c pkgcache.Service) *Runner {
	r := &Runner{Pipeline: p, Logger: l}
	if ch != nil {
		r.closers = append(r.closers, ch.Close)
	}
	r.closers = append(r.closers, c.Close)
	r.closers = append(r.closers, events.Close)
	return r
}
