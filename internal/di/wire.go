//go:build wireinject
// +build wireinject

package di

import (
	"CoinPull/pkg/config"
	"CoinPull/pkg/server"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideClickHouseClient,
	ProvideRedisCache,
	ProvideCache,
	ProvideLease,
	ProvideKafkaProducer,
	ProvideEventPublisher,
)

var storageSet = wire.NewSet(
	ProvideBlobStore,
	ProvideSeriesStore,
	ProvideParquetGold,
	ProvideGoldSinks,
	ProvideGoldCache,
)

var pipelineSet = wire.NewSet(
	ProvideFetcher,
	ProvideAccumulator,
	ProvideBronzeIngest,
	ProvideSilverProcessor,
	ProvideGoldBuilder,
	ProvidePipeline,
)

// InitializeApp wires the long-running service.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		infraSet,
		storageSet,
		pipelineSet,
		ProvideKafkaConsumer,
		ProvideObjectEventHandler,
		ProvideScheduler,
		ProvideGoldHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}

// InitializePipeline wires a one-shot pipeline without the HTTP API.
func InitializePipeline(cfg *config.Config) (*Runner, error) {
	wire.Build(
		infraSet,
		storageSet,
		pipelineSet,
		ProvideRunner,
	)
	return &Runner{}, nil
}
