package price

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"cryptotrack-alerts/internal/types"

	"github.com/pkg/errors"
)

const LiveCoinWatchURL = "https://api.livecoinwatch.com"

// LiveCoinWatchProvider reads coins/single by ticker symbol. It always needs an API key.
type LiveCoinWatchProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

type lcwRequest struct {
	Currency string `json:"currency"`
	Code     string `json:"code"`
	Meta     bool   `json:"meta"`
}

type lcwResponse struct {
	Rate   *float64 `json:"rate"`
	Volume *float64 `json:"volume"`
	Delta  struct {
		Day *float64 `json:"day"`
	} `json:"delta"`
}

func NewLiveCoinWatch(baseURL, apiKey string, client *http.Client) *LiveCoinWatchProvider {
	return &LiveCoinWatchProvider{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, client: client}
}

func (p *LiveCoinWatchProvider) Name() string {
	return "livecoinwatch"
}

func (p *LiveCoinWatchProvider) Fetch(ctx context.Context, asset string) (types.Snapshot, error) {
	body, err := json.Marshal(lcwRequest{Currency: "USD", Code: Symbol(asset)})
	if err != nil {
		return types.Snapshot{}, errors.Wrap(err, p.Name())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/coins/single", bytes.NewReader(body))
	if err != nil {
		return types.Snapshot{}, errors.Wrap(err, p.Name())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)

	var payload lcwResponse
	if err := doJSON(p.client, req, &payload); err != nil {
		return types.Snapshot{}, errors.Wrap(err, p.Name())
	}
	if payload.Rate == nil {
		return types.Snapshot{}, errors.Errorf("%s: missing rate for %s", p.Name(), asset)
	}

	// delta.day is the ratio of the current rate to the rate 24h ago.
	var change float64
	if payload.Delta.Day != nil {
		change = (*payload.Delta.Day - 1) * 100
	}

	return types.Snapshot{
		CurrentPrice:     *payload.Rate,
		PercentChange24h: change,
		TotalVolume24h:   valueOrZero(payload.Volume),
	}, nil
}
