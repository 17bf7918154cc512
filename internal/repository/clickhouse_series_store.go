package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"CoinPull/internal/domain/models"
	"CoinPull/internal/domain/repository"
	pkgch "CoinPull/pkg/clickhouse"
	applogger "CoinPull/pkg/logger"

	"github.com/shopspring/decimal"
)

// ClickHouseSeriesStore keeps the Silver series in a ReplacingMergeTree keyed
// by (coin_id, recorded_at); ingested_at decides which duplicate survives.
type ClickHouseSeriesStore struct {
	ch    *pkgch.Client
	table string
	l     *applogger.Logger

	mu   sync.Mutex
	last uint64
}

func NewClickHouseSeriesStore(ch *pkgch.Client, table string) *ClickHouseSeriesStore {
	return &ClickHouseSeriesStore{ch: ch, table: ch.Table(table)}
}

var _ repository.SeriesStore = (*ClickHouseSeriesStore)(nil)

// SetLogger injects a structured logger.
func (s *ClickHouseSeriesStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *ClickHouseSeriesStore) Location() string { return "clickhouse://" + s.table }

// SchemaStatements returns the DDL for the series and its staging table.
func (s *ClickHouseSeriesStore) SchemaStatements() []string {
	return []string{
		seriesDDL(s.table),
		seriesDDL(stagingTable(s.table)),
	}
}

func seriesDDL(table string) string {
	return fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            recorded_at   DateTime64(3, 'UTC'),
            coin_id       LowCardinality(String),
            price_usd     Decimal(38, 2),
            market_cap    Nullable(Decimal(38, 2)),
            volume_24h    Nullable(Decimal(38, 2)),
            source_object String,
            ingested_at   UInt64
        ) ENGINE = ReplacingMergeTree(ingested_at)
        ORDER BY (coin_id, recorded_at)
    `, table)
}

func stagingTable(table string) string { return table + "_staging" }

// ReadSeries returns the collapsed series. The version is the row count and
// newest ingestion stamp, which any concurrent write changes.
func (s *ClickHouseSeriesStore) ReadSeries(ctx context.Context) ([]models.Observation, string, error) {
	start := time.Now()
	version, err := s.version(ctx)
	if err != nil {
		return nil, "", err
	}
	q := fmt.Sprintf(`
        SELECT recorded_at, coin_id, toString(price_usd), toString(market_cap), toString(volume_24h)
        FROM %s FINAL
        ORDER BY ingested_at ASC, recorded_at ASC, coin_id ASC
    `, s.table)
	rows, err := s.ch.DB().QueryContext(ctx, q)
	if err != nil {
		s.logError("clickhouse read_series query error", err)
		return nil, "", fmt.Errorf("read series: %w", err)
	}
	defer rows.Close()

	out := make([]models.Observation, 0, 1024)
	for rows.Next() {
		var (
			o          models.Observation
			price      string
			mcap, vol  sql.NullString
			recordedAt time.Time
		)
		if err := rows.Scan(&recordedAt, &o.AssetID, &price, &mcap, &vol); err != nil {
			s.logError("clickhouse read_series scan error", err)
			return nil, "", fmt.Errorf("scan series: %w", err)
		}
		o.RecordedAt = recordedAt.UTC()
		if o.PriceUSD, err = decimal.NewFromString(price); err != nil {
			return nil, "", fmt.Errorf("price_usd %q: %w", price, err)
		}
		if o.MarketCap, err = nullDecimal(mcap); err != nil {
			return nil, "", fmt.Errorf("market_cap: %w", err)
		}
		if o.Volume24h, err = nullDecimal(vol); err != nil {
			return nil, "", fmt.Errorf("volume_24h: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		s.logError("clickhouse read_series rows error", err)
		return nil, "", fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse read_series ok",
			applogger.String("table", s.table),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, version, nil
}

// ReplaceSeries loads rows into the staging table and swaps it in.
func (s *ClickHouseSeriesStore) ReplaceSeries(ctx context.Context, rows []models.Observation, expectedVersion string) error {
	actual, err := s.version(ctx)
	if err != nil {
		return err
	}
	if actual != expectedVersion {
		return &models.MergeConflictError{Location: s.Location(), Expected: expectedVersion, Actual: actual}
	}
	staging := stagingTable(s.table)
	if err := s.ch.InitSchema(ctx, []string{seriesDDL(staging), "TRUNCATE TABLE " + staging}); err != nil {
		return err
	}
	if err := s.insert(ctx, staging, "", rows); err != nil {
		return err
	}
	if _, err := s.ch.DB().ExecContext(ctx, fmt.Sprintf("EXCHANGE TABLES %s AND %s", s.table, staging)); err != nil {
		s.logError("clickhouse exchange error", err)
		return fmt.Errorf("swap series: %w", err)
	}
	return nil
}

// AppendPartition removes rows of a previous load of the same object and
// inserts the new batch.
func (s *ClickHouseSeriesStore) AppendPartition(ctx context.Context, partition string, rows []models.Observation) error {
	if _, err := s.ch.DB().ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE source_object = ?", s.table), partition); err != nil {
		s.logError("clickhouse delete partition error", err)
		return fmt.Errorf("delete partition %s: %w", partition, err)
	}
	return s.insert(ctx, s.table, partition, rows)
}

func (s *ClickHouseSeriesStore) insert(ctx context.Context, table, partition string, rows []models.Observation) error {
	stamp := s.stamp()
	batch := make([][]any, len(rows))
	for i, o := range rows {
		batch[i] = []any{
			o.RecordedAt.UTC(),
			o.AssetID,
			o.PriceUSD.Round(models.Scale),
			roundedPtr(o.MarketCap),
			roundedPtr(o.Volume24h),
			partition,
			stamp,
		}
	}
	q := fmt.Sprintf("INSERT INTO %s (recorded_at, coin_id, price_usd, market_cap, volume_24h, source_object, ingested_at)", table)
	if err := s.ch.InsertBatch(ctx, q, batch); err != nil {
		s.logError("clickhouse insert series error", err)
		return err
	}
	return nil
}

func (s *ClickHouseSeriesStore) version(ctx context.Context) (string, error) {
	var (
		n    uint64
		last uint64
	)
	if err := s.ch.DB().QueryRowContext(ctx, s.versionQuery()).Scan(&n, &last); err != nil {
		return "", fmt.Errorf("series version: %w", err)
	}
	if n == 0 {
		return "", nil
	}
	return fmt.Sprintf("%d:%d", n, last), nil
}

// versionQuery reads the collapsed table so background merges do not change
// the version between read and replace.
func (s *ClickHouseSeriesStore) versionQuery() string {
	return fmt.Sprintf("SELECT count(), max(ingested_at) FROM %s FINAL", s.table)
}

func (s *ClickHouseSeriesStore) stamp() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := uint64(time.Now().UnixNano())
	if n <= s.last {
		n = s.last + 1
	}
	s.last = n
	return n
}

func (s *ClickHouseSeriesStore) logError(msg string, err error) {
	if s.l != nil {
		s.l.Error(msg, applogger.String("table", s.table), applogger.Error(err))
	}
}

func nullDecimal(ns sql.NullString) (*decimal.Decimal, error) {
	if !ns.Valid {
		return nil, nil
	}
	return models.ParseFixed(&ns.String)
}

func roundedPtr(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	r := d.Round(models.Scale)
	return &r
}
