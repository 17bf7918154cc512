package normalize

import (
	"errors"
	"path"
	"regexp"
	"time"

	"CoinPull/internal/domain/models"
)

// Supported timestamp token layouts embedded in Bronze object names.
const (
	LayoutDashed  = "2006-01-02_150405"
	LayoutCompact = "20060102_150405"
)

var stampPattern = regexp.MustCompile(`(?:^|[^0-9])(\d{4}-\d{2}-\d{2}|\d{8})_(\d{6})(?:[^0-9]|$)`)

var errNoToken = errors.New("timestamp token not found")

// ParseTimestamp extracts the recording time from a source identifier such as
// raw_2025-01-02_030405.json or raw_data/raw_prices_20250102_030405.json.
// The result is always UTC.
func ParseTimestamp(source string) (time.Time, error) {
	m := stampPattern.FindStringSubmatch(path.Base(source))
	if m == nil {
		return time.Time{}, &models.TimestampParseError{Source: source, Err: errNoToken}
	}
	layout := LayoutCompact
	if len(m[1]) == len("2006-01-02") {
		layout = LayoutDashed
	}
	t, err := time.ParseInLocation(layout, m[1]+"_"+m[2], time.UTC)
	if err != nil {
		return time.Time{}, &models.TimestampParseError{Source: source, Err: err}
	}
	return t, nil
}

// FormatStamp renders t as a timestamp token in the given layout.
func FormatStamp(t time.Time, layout string) string {
	if layout != LayoutDashed {
		layout = LayoutCompact
	}
	return t.UTC().Format(layout)
}

// ObjectName builds a Bronze object key that ParseTimestamp can read back.
func ObjectName(prefix string, t time.Time, layout string) string {
	return prefix + FormatStamp(t, layout) + ".json"
}
