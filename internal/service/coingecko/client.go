package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"CoinPull/internal/domain/models"
	drepo "CoinPull/internal/domain/repository"
	xhttp "CoinPull/pkg/http"
)

// APIKeyHeader carries the demo-plan key.
const APIKeyHeader = "x-cg-demo-api-key"

// Client fetches wide snapshots from the CoinGecko simple price endpoint.
type Client struct {
	http       *xhttp.Client
	baseURL    string
	vsCurrency string
}

// New returns a SnapshotFetcher. An empty apiKey uses the public tier.
func New(baseURL, apiKey, vsCurrency string, timeout time.Duration) drepo.SnapshotFetcher {
	if vsCurrency == "" {
		vsCurrency = "usd"
	}
	return &Client{
		http: xhttp.NewClient(
			xhttp.WithTimeout(timeout),
			xhttp.WithUserAgent("coinpull/1.0"),
			xhttp.WithHeader(APIKeyHeader, apiKey),
		),
		baseURL:    strings.TrimRight(baseURL, "/"),
		vsCurrency: vsCurrency,
	}
}

// FetchSnapshot returns the raw response body, validated to be a JSON object.
func (c *Client) FetchSnapshot(ctx context.Context, coins []string) ([]byte, error) {
	if len(coins) == 0 {
		return nil, &models.FetchError{Err: errors.New("no coins requested")}
	}
	var body []byte
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL + "/simple/price",
		QueryParams: map[string][]string{
			"ids":                 {strings.Join(coins, ",")},
			"vs_currencies":       {c.vsCurrency},
			"include_market_cap":  {"true"},
			"include_24hr_vol":    {"true"},
			"include_24hr_change": {"true"},
		},
	}, &body)
	if err != nil {
		return nil, classify(err)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, &models.FetchError{Status: http.StatusOK, Err: fmt.Errorf("response is not a JSON object: %w", err)}
	}
	return body, nil
}

// classify maps transport and status failures to FetchError. Client errors
// other than 429 will not succeed on retry.
func classify(err error) error {
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		return &models.FetchError{Status: se.Code, Retryable: se.Temporary(), Err: se}
	}
	return &models.FetchError{Retryable: true, Err: err}
}
