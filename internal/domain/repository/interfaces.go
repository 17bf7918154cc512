package repository

import (
	"context"
	"io"
	"time"

	"CoinPull/internal/domain/models"
)

// SnapshotFetcher pulls one wide price snapshot from the market-data provider.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, coins []string) ([]byte, error)
}

// BlobStore is the list/get/put object store holding Bronze snapshots.
type BlobStore interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, body []byte) error
}

// SeriesStore persists the canonical Silver series.
type SeriesStore interface {
	// ReadSeries returns every stored row (possibly duplicated across
	// partitions) together with an opaque version of the stored state.
	ReadSeries(ctx context.Context) ([]models.Observation, string, error)
	// ReplaceSeries swaps the whole series if the stored version still matches.
	ReplaceSeries(ctx context.Context, rows []models.Observation, expectedVersion string) error
	// AppendPartition writes rows as one named partition, replacing a prior
	// partition of the same name.
	AppendPartition(ctx context.Context, partition string, rows []models.Observation) error
	Location() string
}

// GoldSink receives the full Gold table and replaces prior content atomically.
type GoldSink interface {
	WriteGold(ctx context.Context, rows []models.AnalyticRow) error
	Location() string
}

// GoldReader reads the published Gold table in presentation order.
type GoldReader interface {
	ReadGold(ctx context.Context) ([]models.AnalyticRow, error)
}

// Lease is an exclusive, expiring claim on a storage location.
type Lease interface {
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// Renew extends a held lease; false means the holder no longer owns it.
	Renew(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, token string) error
}

// EventPublisher emits pipeline notifications.
type EventPublisher interface {
	PublishObjectEvent(ctx context.Context, ev models.ObjectEvent) error
	PublishGoldEvent(ctx context.Context, ev models.GoldPublishedEvent) error
	io.Closer
}

// Metrics records pipeline and API measurements.
type Metrics interface {
	RecordSnapshot(stage, result string)
	RecordRowsRejected(asset string, n int)
	RecordAssetsDropped(n int)
	RecordSeriesSize(n int)
	RecordGoldRows(n int)
	RecordLastPrice(asset string, price float64)
	RecordLatency(op string, seconds float64)
	RecordError(kind string)
}
