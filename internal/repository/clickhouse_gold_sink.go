package repository

import (
	"context"
	"fmt"
	"time"

	"CoinPull/internal/domain/models"
	"CoinPull/internal/domain/repository"
	pkgch "CoinPull/pkg/clickhouse"
	applogger "CoinPull/pkg/logger"
)

// ClickHouseGoldSink mirrors the Gold table into ClickHouse for SQL access.
type ClickHouseGoldSink struct {
	ch    *pkgch.Client
	table string
	l     *applogger.Logger
}

func NewClickHouseGoldSink(ch *pkgch.Client, table string) *ClickHouseGoldSink {
	return &ClickHouseGoldSink{ch: ch, table: ch.Table(table)}
}

var _ repository.GoldSink = (*ClickHouseGoldSink)(nil)

// SetLogger injects a structured logger.
func (s *ClickHouseGoldSink) SetLogger(l *applogger.Logger) { s.l = l }

func (s *ClickHouseGoldSink) Location() string { return "clickhouse://" + s.table }

func (s *ClickHouseGoldSink) SchemaStatements() []string {
	return []string{goldDDL(s.table), goldDDL(stagingTable(s.table))}
}

func goldDDL(table string) string {
	return fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            recorded_at   DateTime64(3, 'UTC'),
            coin_id       LowCardinality(String),
            price_usd     Decimal(38, 2),
            market_cap    Nullable(Decimal(38, 2)),
            volume_24h    Nullable(Decimal(38, 2)),
            sma_7d        Decimal(38, 2),
            volatility_7d Nullable(Decimal(38, 2)),
            signal        LowCardinality(String)
        ) ENGINE = MergeTree
        ORDER BY (coin_id, recorded_at)
    `, table)
}

// WriteGold fills the staging table and exchanges it with the live one, so
// readers never see a partial table.
func (s *ClickHouseGoldSink) WriteGold(ctx context.Context, rows []models.AnalyticRow) error {
	start := time.Now()
	staging := stagingTable(s.table)
	if err := s.ch.InitSchema(ctx, []string{goldDDL(staging), "TRUNCATE TABLE " + staging}); err != nil {
		return err
	}
	batch := make([][]any, len(rows))
	for i, r := range rows {
		batch[i] = []any{
			r.RecordedAt.UTC(),
			r.AssetID,
			r.PriceUSD.Round(models.Scale),
			roundedPtr(r.MarketCap),
			roundedPtr(r.Volume24h),
			r.SMA7d.Round(models.Scale),
			roundedPtr(r.Volatility7d),
			string(r.Signal),
		}
	}
	q := fmt.Sprintf("INSERT INTO %s (recorded_at, coin_id, price_usd, market_cap, volume_24h, sma_7d, volatility_7d, signal)", staging)
	if err := s.ch.InsertBatch(ctx, q, batch); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse insert gold error", applogger.String("table", staging), applogger.Error(err))
		}
		return err
	}
	if _, err := s.ch.DB().ExecContext(ctx, fmt.Sprintf("EXCHANGE TABLES %s AND %s", s.table, staging)); err != nil {
		return fmt.Errorf("swap gold: %w", err)
	}
	if s.l != nil {
		s.l.Info("clickhouse gold mirror ok",
			applogger.String("table", s.table),
			applogger.Int("rows", len(rows)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return nil
}
