package price

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"cryptotrack-alerts/internal/types"

	"github.com/coinpaprika/coinpaprika-api-go-client/v2/coinpaprika"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// PaprikaProvider resolves a slug to a CoinPaprika coin id through search, then reads its USD ticker.
type PaprikaProvider struct {
	client *coinpaprika.Client

	idMutex sync.RWMutex
	ids     map[string]string
}

func NewPaprikaProvider(httpClient *http.Client, apiProKey string) *PaprikaProvider {
	var client *coinpaprika.Client
	if apiProKey != "" {
		client = coinpaprika.NewClient(httpClient, coinpaprika.WithAPIKey(apiProKey))
	} else {
		client = coinpaprika.NewClient(httpClient)
	}
	return &PaprikaProvider{client: client, ids: make(map[string]string)}
}

func (p *PaprikaProvider) Name() string {
	return "coinpaprika"
}

// Fetch ignores ctx beyond an upfront check; the client library is not context aware
// and is bounded by the http.Client timeout instead.
func (p *PaprikaProvider) Fetch(ctx context.Context, asset string) (types.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return types.Snapshot{}, err
	}

	id, err := p.coinID(asset)
	if err != nil {
		return types.Snapshot{}, errors.Wrap(err, p.Name())
	}

	ticker, err := p.client.Tickers.GetByID(id, &coinpaprika.TickersOptions{Quotes: "USD"})
	if err != nil {
		return types.Snapshot{}, errors.Wrapf(err, "%s: ticker %s", p.Name(), id)
	}

	quote, ok := ticker.Quotes["USD"]
	if !ok {
		return types.Snapshot{}, errors.Errorf("%s: no USD quote for %s", p.Name(), id)
	}

	snapshot, err := quoteToSnapshot(quote)
	if err != nil {
		return types.Snapshot{}, errors.Wrapf(err, "%s: %s", p.Name(), id)
	}
	return snapshot, nil
}

func quoteToSnapshot(q coinpaprika.Quote) (types.Snapshot, error) {
	if q.Price == nil {
		return types.Snapshot{}, errors.New("missing price")
	}
	return types.Snapshot{
		CurrentPrice:     *q.Price,
		PercentChange24h: valueOrZero(q.PercentChange24h),
		TotalVolume24h:   valueOrZero(q.Volume24h),
	}, nil
}

func (p *PaprikaProvider) coinID(asset string) (string, error) {
	p.idMutex.RLock()
	id, ok := p.ids[asset]
	p.idMutex.RUnlock()
	if ok {
		return id, nil
	}

	result, err := p.client.Search.Search(&coinpaprika.SearchOptions{Query: asset, Categories: "currencies"})
	if err != nil {
		return "", errors.Wrap(err, "search failed")
	}
	if result == nil || len(result.Currencies) == 0 {
		return "", errors.Errorf("no coin matches %s", asset)
	}

	id = bestCoinMatch(asset, result.Currencies)
	if id == "" {
		return "", errors.Errorf("no coin matches %s", asset)
	}

	log.Debugf("Best match for asset '%s' is: %s", asset, id)

	p.idMutex.Lock()
	p.ids[asset] = id
	p.idMutex.Unlock()
	return id, nil
}

// bestCoinMatch prefers the exact "<symbol>-<slug>" id, then a coin whose name is the slug,
// then the first search hit. Suffix matches are not enough: wbtc-wrapped-bitcoin ends in -bitcoin.
func bestCoinMatch(asset string, coins []*coinpaprika.Coin) string {
	exactID := strings.ToLower(Symbol(asset)) + "-" + asset
	for _, coin := range coins {
		if coin != nil && coin.ID != nil && *coin.ID == exactID {
			return *coin.ID
		}
	}

	for _, coin := range coins {
		if coin == nil || coin.ID == nil || coin.Name == nil {
			continue
		}
		if strings.ToLower(strings.ReplaceAll(strings.TrimSpace(*coin.Name), " ", "-")) == asset {
			return *coin.ID
		}
	}

	for _, coin := range coins {
		if coin != nil && coin.ID != nil {
			return *coin.ID
		}
	}
	return ""
}
