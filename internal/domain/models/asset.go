package models

import "encoding/json"

// Metric field names as returned by the provider's simple/price endpoint.
const (
	FieldPriceUSD  = "usd"
	FieldMarketCap = "usd_market_cap"
	FieldVolume24h = "usd_24h_vol"
	FieldChange24h = "usd_24h_change"
)

// AssetSpec declares one tracked asset and the metric fields expected for it.
type AssetSpec struct {
	ID     string   `yaml:"id" json:"id" validate:"required"`
	Fields []string `yaml:"fields" json:"fields,omitempty"`
}

// Wants reports whether the field is part of the asset's declared metrics.
// An empty field list means every known metric.
func (a AssetSpec) Wants(field string) bool {
	if field == FieldPriceUSD || len(a.Fields) == 0 {
		return true
	}
	for _, f := range a.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// AssetSchema is the ordered list of tracked assets. Its order is the
// output order of normalization.
type AssetSchema []AssetSpec

// NewAssetSchema builds a schema with default fields for the given ids.
func NewAssetSchema(ids ...string) AssetSchema {
	s := make(AssetSchema, 0, len(ids))
	for _, id := range ids {
		s = append(s, AssetSpec{ID: id})
	}
	return s
}

// Has reports whether id is a tracked asset.
func (s AssetSchema) Has(id string) bool {
	_, ok := s.Lookup(id)
	return ok
}

// Lookup returns the AssetSpec for id.
func (s AssetSchema) Lookup(id string) (AssetSpec, bool) {
	for _, a := range s {
		if a.ID == id {
			return a, true
		}
	}
	return AssetSpec{}, false
}

// RawSnapshot is one Bronze object: asset id -> raw metrics struct.
// Values stay undecoded so a malformed asset only fails itself.
type RawSnapshot struct {
	Source string
	Assets map[string]json.RawMessage
}

// AssetMetrics is the provider's per-asset payload.
type AssetMetrics struct {
	USD          json.RawMessage `json:"usd"`
	USDMarketCap json.RawMessage `json:"usd_market_cap"`
	USD24hVol    json.RawMessage `json:"usd_24h_vol"`
	USD24hChange json.RawMessage `json:"usd_24h_change"`
}

// Field returns the raw value of a named metric.
func (m AssetMetrics) Field(name string) json.RawMessage {
	switch name {
	case FieldPriceUSD:
		return m.USD
	case FieldMarketCap:
		return m.USDMarketCap
	case FieldVolume24h:
		return m.USD24hVol
	case FieldChange24h:
		return m.USD24hChange
	}
	return nil
}

// DecodeSnapshot parses a Bronze object body.
func DecodeSnapshot(source string, body []byte) (RawSnapshot, error) {
	var assets map[string]json.RawMessage
	if err := json.Unmarshal(body, &assets); err != nil {
		return RawSnapshot{}, &SchemaCastError{Source: source, Err: err}
	}
	return RawSnapshot{Source: source, Assets: assets}, nil
}
