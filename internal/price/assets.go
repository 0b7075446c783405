package price

import "strings"

var assetAliases = map[string]string{
	"btc":     "bitcoin",
	"eth":     "ethereum",
	"bnb":     "binancecoin",
	"sol":     "solana",
	"xrp":     "ripple",
	"ada":     "cardano",
	"doge":    "dogecoin",
	"dot":     "polkadot",
	"matic":   "matic-network",
	"polygon": "matic-network",
	"avax":    "avalanche-2",
	"link":    "chainlink",
}

var assetSymbols = map[string]string{
	"bitcoin":       "BTC",
	"ethereum":      "ETH",
	"binancecoin":   "BNB",
	"solana":        "SOL",
	"ripple":        "XRP",
	"cardano":       "ADA",
	"dogecoin":      "DOGE",
	"polkadot":      "DOT",
	"matic-network": "MATIC",
	"avalanche-2":   "AVAX",
	"chainlink":     "LINK",
}

// NormalizeAsset returns the canonical lowercase slug for an asset, resolving ticker aliases.
func NormalizeAsset(asset string) string {
	slug := strings.ToLower(strings.TrimSpace(asset))
	if canonical, ok := assetAliases[slug]; ok {
		return canonical
	}
	return slug
}

// Symbol returns the ticker symbol of a canonical slug. Unknown slugs are upper-cased.
func Symbol(asset string) string {
	if symbol, ok := assetSymbols[asset]; ok {
		return symbol
	}
	return strings.ToUpper(asset)
}
