package price

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"cryptotrack-alerts/internal/types"

	"github.com/pkg/errors"
)

const CoinMarketCapURL = "https://pro-api.coinmarketcap.com"

// CoinMarketCapProvider reads quotes/latest by slug. It always needs an API key.
type CoinMarketCapProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

type cmcResponse struct {
	Data map[string]cmcCoin `json:"data"`
}

type cmcCoin struct {
	Slug  string              `json:"slug"`
	Quote map[string]cmcQuote `json:"quote"`
}

type cmcQuote struct {
	Price            *float64 `json:"price"`
	Volume24h        *float64 `json:"volume_24h"`
	PercentChange24h *float64 `json:"percent_change_24h"`
}

func NewCoinMarketCap(baseURL, apiKey string, client *http.Client) *CoinMarketCapProvider {
	return &CoinMarketCapProvider{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, client: client}
}

func (p *CoinMarketCapProvider) Name() string {
	return "coinmarketcap"
}

func (p *CoinMarketCapProvider) Fetch(ctx context.Context, asset string) (types.Snapshot, error) {
	query := url.Values{}
	query.Set("slug", asset)
	query.Set("convert", "USD")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v2/cryptocurrency/quotes/latest?"+query.Encode(), nil)
	if err != nil {
		return types.Snapshot{}, errors.Wrap(err, p.Name())
	}
	req.Header.Set("X-CMC_PRO_API_KEY", p.apiKey)

	var payload cmcResponse
	if err := doJSON(p.client, req, &payload); err != nil {
		return types.Snapshot{}, errors.Wrap(err, p.Name())
	}

	for _, coin := range payload.Data {
		if coin.Slug != asset {
			continue
		}
		usd, ok := coin.Quote["USD"]
		if !ok || usd.Price == nil {
			return types.Snapshot{}, errors.Errorf("%s: missing USD quote for %s", p.Name(), asset)
		}
		return types.Snapshot{
			CurrentPrice:     *usd.Price,
			PercentChange24h: valueOrZero(usd.PercentChange24h),
			TotalVolume24h:   valueOrZero(usd.Volume24h),
		}, nil
	}

	return types.Snapshot{}, errors.Errorf("%s: no data for %s", p.Name(), asset)
}
