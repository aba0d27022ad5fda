package data

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mohamedkhairy/signal-engine/internal/models"
)

// coinGeckoIDs maps our symbols to CoinGecko coin ids
var coinGeckoIDs = map[string]string{
	"BTCUSD": "bitcoin",
	"ETHUSD": "ethereum",
	"SOLUSD": "solana",
}

// CoinGecko returns closes only; highs and lows are derived from them
const (
	coinGeckoHighFactor    = 1.002
	coinGeckoLowFactor     = 0.998
	coinGeckoDefaultVolume = 2000
)

type coinGeckoMarketChart struct {
	Prices       [][2]float64 `json:"prices"`
	TotalVolumes [][2]float64 `json:"total_volumes"`
}

// CoinGeckoSource reads hourly market charts from the CoinGecko public API
type CoinGeckoSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewCoinGeckoSource creates a CoinGecko source
func NewCoinGeckoSource(baseURL string, timeout time.Duration) *CoinGeckoSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CoinGeckoSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *CoinGeckoSource) Name() string {
	return "coingecko"
}

func (c *CoinGeckoSource) Fetch(ctx context.Context, symbol string) (*models.PriceSeries, error) {
	id, ok := coinGeckoIDs[symbol]
	if !ok {
		return nil, unavailable(c.Name(), symbol, ErrUnsupportedSymbol)
	}

	endpoint := fmt.Sprintf("%s/api/v3/coins/%s/market_chart?vs_currency=usd&days=1&interval=hourly",
		c.baseURL, url.PathEscape(id))

	var chart coinGeckoMarketChart
	if err := getJSON(ctx, c.httpClient, endpoint, &chart); err != nil {
		return nil, unavailable(c.Name(), symbol, err)
	}

	useVolumes := len(chart.TotalVolumes) == len(chart.Prices)
	bars := make([]models.PriceBar, len(chart.Prices))
	for i, point := range chart.Prices {
		price := point[1]
		volume := float64(coinGeckoDefaultVolume)
		if useVolumes {
			volume = chart.TotalVolumes[i][1]
		}
		bars[i] = models.PriceBar{
			Time:   time.UnixMilli(int64(point[0])).UTC(),
			Close:  price,
			High:   price * coinGeckoHighFactor,
			Low:    price * coinGeckoLowFactor,
			Volume: volume,
		}
	}

	return finish(c.Name(), symbol, bars)
}
