package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"CoinPull/internal/domain/models"
	applogger "CoinPull/pkg/logger"

	"github.com/shopspring/decimal"
)

// Column precisions, DECIMAL(p, 2).
const (
	PricePrecision  = 18
	VolumePrecision = 24
)

var (
	errMissing  = errors.New("required value is missing")
	errNotFloat = errors.New("not a numeric value")
)

// Result is the outcome of normalizing one snapshot.
type Result struct {
	Source     string
	RecordedAt time.Time
	Rows       []models.Observation
	Rejected   []*models.SchemaCastError
	Dropped    []string
}

// Normalizer unpivots wide snapshots into one observation per tracked asset.
type Normalizer struct {
	schema models.AssetSchema
	l      *applogger.Logger
}

func New(schema models.AssetSchema, l *applogger.Logger) *Normalizer {
	return &Normalizer{schema: schema, l: l}
}

// Normalize emits rows in schema order. A missing timestamp rejects the whole
// snapshot; a bad numeric field rejects only that asset's row.
func (n *Normalizer) Normalize(snap models.RawSnapshot) (Result, error) {
	res := Result{Source: snap.Source}
	ts, err := ParseTimestamp(snap.Source)
	if err != nil {
		return res, err
	}
	res.RecordedAt = ts

	for key := range snap.Assets {
		if !n.schema.Has(key) {
			res.Dropped = append(res.Dropped, key)
		}
	}
	sort.Strings(res.Dropped)
	if len(res.Dropped) > 0 && n.l != nil {
		n.l.Warn("dropping assets missing from schema",
			applogger.String("source", snap.Source),
			applogger.Strings("assets", res.Dropped),
		)
	}

	res.Rows = make([]models.Observation, 0, len(n.schema))
	for _, spec := range n.schema {
		raw, ok := snap.Assets[spec.ID]
		if !ok {
			continue
		}
		obs, cerr := castAsset(snap.Source, ts, spec, raw)
		if cerr != nil {
			res.Rejected = append(res.Rejected, cerr)
			if n.l != nil {
				n.l.Warn("asset row rejected", applogger.String("source", snap.Source), applogger.Error(cerr))
			}
			continue
		}
		res.Rows = append(res.Rows, obs)
	}
	return res, nil
}

func castAsset(source string, ts time.Time, spec models.AssetSpec, raw json.RawMessage) (models.Observation, *models.SchemaCastError) {
	var m models.AssetMetrics
	if err := json.Unmarshal(raw, &m); err != nil {
		return models.Observation{}, &models.SchemaCastError{Source: source, Asset: spec.ID, Err: err}
	}

	obs := models.Observation{RecordedAt: ts, AssetID: spec.ID}
	raw = m.Field(models.FieldPriceUSD)
	price, err := castField(raw, PricePrecision)
	if err != nil {
		return obs, fieldError(source, spec.ID, models.FieldPriceUSD, raw, err)
	}
	if price == nil {
		return obs, fieldError(source, spec.ID, models.FieldPriceUSD, raw, errMissing)
	}
	obs.PriceUSD = *price

	optional := []struct {
		name string
		dst  **decimal.Decimal
	}{
		{models.FieldMarketCap, &obs.MarketCap},
		{models.FieldVolume24h, &obs.Volume24h},
	}
	for _, f := range optional {
		if !spec.Wants(f.name) {
			continue
		}
		raw = m.Field(f.name)
		if *f.dst, err = castField(raw, VolumePrecision); err != nil {
			return obs, fieldError(source, spec.ID, f.name, raw, err)
		}
	}
	return obs, nil
}

func fieldError(source, asset, field string, raw json.RawMessage, err error) *models.SchemaCastError {
	return &models.SchemaCastError{Source: source, Asset: asset, Field: field, Value: string(raw), Err: err}
}

// castField parses a JSON number or numeric string into DECIMAL(precision, 2).
// null and absent values yield nil.
func castField(raw json.RawMessage, precision int32) (*decimal.Decimal, error) {
	v := bytes.TrimSpace(raw)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return nil, nil
	}
	s := string(v)
	if v[0] == '"' {
		if err := json.Unmarshal(v, &s); err != nil {
			return nil, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, errNotFloat
	}
	d = d.Round(models.Scale)
	if d.Abs().Cmp(decimal.New(1, precision-models.Scale)) >= 0 {
		return nil, fmt.Errorf("value overflows DECIMAL(%d,%d)", precision, models.Scale)
	}
	return &d, nil
}
