package repository

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"CoinPull/internal/domain/models"
	"CoinPull/internal/domain/repository"

	"github.com/parquet-go/parquet-go"
)

const partitionExt = ".parquet"

// ParquetSeriesStore keeps the Silver series as Parquet files under one
// directory: a single history file for rewrite mode and one file per source
// snapshot under the partitions directory for append mode.
type ParquetSeriesStore struct {
	historyPath   string
	partitionsDir string

	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewParquetSeriesStore(dir, historyFile, partitionsDir string) *ParquetSeriesStore {
	return &ParquetSeriesStore{
		historyPath:   filepath.Join(dir, historyFile),
		partitionsDir: filepath.Join(dir, partitionsDir),
		now:           time.Now,
	}
}

var _ repository.SeriesStore = (*ParquetSeriesStore)(nil)

func (s *ParquetSeriesStore) Location() string { return s.historyPath }

// ReadSeries returns history rows followed by partition rows in ingestion
// order. The version is a content hash of the history file, empty when absent.
func (s *ParquetSeriesStore) ReadSeries(ctx context.Context) ([]models.Observation, string, error) {
	var records []seriesRecord

	body, err := os.ReadFile(s.historyPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		body = nil
	case err != nil:
		return nil, "", fmt.Errorf("read history: %w", err)
	default:
		recs, err := decodeSeries(body)
		if err != nil {
			return nil, "", fmt.Errorf("decode %s: %w", s.historyPath, err)
		}
		records = append(records, recs...)
	}
	version := contentVersion(body)

	parts, err := s.partitionFiles()
	if err != nil {
		return nil, "", err
	}
	for _, p := range parts {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, "", fmt.Errorf("read partition: %w", err)
		}
		recs, err := decodeSeries(b)
		if err != nil {
			return nil, "", fmt.Errorf("decode %s: %w", p, err)
		}
		records = append(records, recs...)
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].IngestedAt < records[j].IngestedAt })

	out := make([]models.Observation, 0, len(records))
	for _, r := range records {
		o, err := r.observation()
		if err != nil {
			return nil, "", err
		}
		out = append(out, o)
	}
	return out, version, nil
}

func (s *ParquetSeriesStore) ReplaceSeries(ctx context.Context, rows []models.Observation, expectedVersion string) error {
	current, err := os.ReadFile(s.historyPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read history: %w", err)
	}
	if v := contentVersion(current); v != expectedVersion {
		return &models.MergeConflictError{Location: s.historyPath, Expected: expectedVersion, Actual: v}
	}
	body, err := encodeSeries(rows, s.stamp())
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeFileAtomic(s.historyPath, body)
}

func (s *ParquetSeriesStore) AppendPartition(ctx context.Context, partition string, rows []models.Observation) error {
	name, err := partitionName(partition)
	if err != nil {
		return err
	}
	body, err := encodeSeries(rows, s.stamp())
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(s.partitionsDir, name), body)
}

func (s *ParquetSeriesStore) partitionFiles() ([]string, error) {
	entries, err := os.ReadDir(s.partitionsDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !strings.HasSuffix(e.Name(), partitionExt) {
			continue
		}
		out = append(out, filepath.Join(s.partitionsDir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// stamp returns a strictly increasing ingestion stamp for this process.
func (s *ParquetSeriesStore) stamp() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.now().UnixNano()
	if n <= s.last {
		n = s.last + 1
	}
	s.last = n
	return n
}

// partitionName flattens the full object key so objects with the same base
// name under different prefixes keep separate partitions.
func partitionName(source string) (string, error) {
	key := strings.TrimPrefix(path.Clean(filepath.ToSlash(source)), "/")
	key = strings.TrimSuffix(key, path.Ext(key))
	if key == "" || key == "." || key == ".." || strings.HasPrefix(key, "../") {
		return "", fmt.Errorf("invalid partition %q", source)
	}
	return strings.ReplaceAll(key, "/", "__") + partitionExt, nil
}

func contentVersion(body []byte) string {
	if body == nil {
		return ""
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func encodeSeries(rows []models.Observation, ingestedAt int64) ([]byte, error) {
	recs := make([]seriesRecord, len(rows))
	for i, o := range rows {
		recs[i] = toSeriesRecord(o, ingestedAt)
	}
	var buf bytes.Buffer
	if err := parquet.Write(&buf, recs); err != nil {
		return nil, fmt.Errorf("encode series: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeSeries(body []byte) ([]seriesRecord, error) {
	return parquet.Read[seriesRecord](bytes.NewReader(body), int64(len(body)))
}
