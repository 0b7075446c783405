package price

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"cryptotrack-alerts/internal/types"

	"github.com/pkg/errors"
)

const (
	CoinGeckoProURL  = "https://pro-api.coingecko.com/api/v3"
	CoinGeckoFreeURL = "https://api.coingecko.com/api/v3"
)

// CoinGeckoProvider reads the simple/price endpoint. With an API key it targets the pro tier.
type CoinGeckoProvider struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

type geckoQuote struct {
	USD       *float64 `json:"usd"`
	Change24h *float64 `json:"usd_24h_change"`
	Volume24h *float64 `json:"usd_24h_vol"`
}

func NewCoinGeckoPro(baseURL, apiKey string, client *http.Client) *CoinGeckoProvider {
	return &CoinGeckoProvider{name: "coingecko-pro", baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, client: client}
}

func NewCoinGeckoFree(baseURL string, client *http.Client) *CoinGeckoProvider {
	return &CoinGeckoProvider{name: "coingecko", baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (p *CoinGeckoProvider) Name() string {
	return p.name
}

func (p *CoinGeckoProvider) Fetch(ctx context.Context, asset string) (types.Snapshot, error) {
	query := url.Values{}
	query.Set("ids", asset)
	query.Set("vs_currencies", "usd")
	query.Set("include_24hr_change", "true")
	query.Set("include_24hr_vol", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/simple/price?"+query.Encode(), nil)
	if err != nil {
		return types.Snapshot{}, errors.Wrap(err, p.name)
	}
	if p.apiKey != "" {
		req.Header.Set("X-Cg-Pro-Api-Key", p.apiKey)
	}

	var payload map[string]geckoQuote
	if err := doJSON(p.client, req, &payload); err != nil {
		return types.Snapshot{}, errors.Wrap(err, p.name)
	}

	quote, ok := payload[asset]
	if !ok {
		return types.Snapshot{}, errors.Errorf("%s: no data for %s", p.name, asset)
	}
	if quote.USD == nil {
		return types.Snapshot{}, errors.Errorf("%s: missing usd price for %s", p.name, asset)
	}

	return types.Snapshot{
		CurrentPrice:     *quote.USD,
		PercentChange24h: valueOrZero(quote.Change24h),
		TotalVolume24h:   valueOrZero(quote.Volume24h),
	}, nil
}
