package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"CoinPull/internal/domain/models"
	"CoinPull/internal/domain/repository"

	"github.com/parquet-go/parquet-go"
)

// ParquetGoldStore publishes the Gold table as a single Parquet file and
// reads it back for the API.
type ParquetGoldStore struct {
	path string
}

func NewParquetGoldStore(path string) *ParquetGoldStore {
	return &ParquetGoldStore{path: path}
}

var (
	_ repository.GoldSink   = (*ParquetGoldStore)(nil)
	_ repository.GoldReader = (*ParquetGoldStore)(nil)
)

func (s *ParquetGoldStore) Location() string { return s.path }

// WriteGold replaces the file atomically; a failed write leaves the prior
// table in place.
func (s *ParquetGoldStore) WriteGold(ctx context.Context, rows []models.AnalyticRow) error {
	recs := make([]goldRecord, len(rows))
	for i, r := range rows {
		recs[i] = toGoldRecord(r)
	}
	var buf bytes.Buffer
	if err := parquet.Write(&buf, recs); err != nil {
		return fmt.Errorf("encode gold: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeFileAtomic(s.path, buf.Bytes())
}

// ReadGold returns the published rows in file order. A missing table reads
// as empty.
func (s *ParquetGoldStore) ReadGold(ctx context.Context) ([]models.AnalyticRow, error) {
	body, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.AnalyticRow{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read gold: %w", err)
	}
	recs, err := parquet.Read[goldRecord](bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	out := make([]models.AnalyticRow, 0, len(recs))
	for _, r := range recs {
		row, err := r.analyticRow()
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}
