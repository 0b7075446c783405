package price

import (
	"net/http"

	log "github.com/sirupsen/logrus"
)

// Credentials for the upstream providers. Empty keys disable the providers that require them.
type Credentials struct {
	CoinGeckoKey     string
	CoinMarketCapKey string
	LiveCoinWatchKey string
	PaprikaProKey    string
}

// DefaultProviders returns the provider chain in priority order:
// CoinGecko pro, CoinGecko free, CoinMarketCap, LiveCoinWatch, CoinPaprika.
func DefaultProviders(creds Credentials, client *http.Client) []Provider {
	var providers []Provider

	if creds.CoinGeckoKey != "" {
		providers = append(providers, NewCoinGeckoPro(CoinGeckoProURL, creds.CoinGeckoKey, client))
	}
	providers = append(providers, NewCoinGeckoFree(CoinGeckoFreeURL, client))

	if creds.CoinMarketCapKey != "" {
		providers = append(providers, NewCoinMarketCap(CoinMarketCapURL, creds.CoinMarketCapKey, client))
	} else {
		log.Debug("COINMARKETCAP_API_KEY not set, skipping CoinMarketCap")
	}

	if creds.LiveCoinWatchKey != "" {
		providers = append(providers, NewLiveCoinWatch(LiveCoinWatchURL, creds.LiveCoinWatchKey, client))
	} else {
		log.Debug("LIVECOINWATCH_API_KEY not set, skipping Live Coin Watch")
	}

	providers = append(providers, NewPaprikaProvider(client, creds.PaprikaProKey))
	return providers
}
