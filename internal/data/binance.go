package data

import (
	"context"
	"fmt"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"

	"github.com/mohamedkhairy/signal-engine/internal/models"
)

// BinanceSource reads spot klines through the go-binance client
type BinanceSource struct {
	client   *binance.Client
	interval string
	limit    int
}

// NewBinanceSource creates a Binance source. An empty baseURL keeps the
// client's default endpoint.
func NewBinanceSource(baseURL string, interval time.Duration, bars int) (*BinanceSource, error) {
	code, err := binanceInterval(interval)
	if err != nil {
		return nil, err
	}
	if bars <= 0 || bars > 1000 {
		bars = 200
	}

	client := binance.NewClient("", "")
	if baseURL != "" {
		client.BaseURL = baseURL
	}

	return &BinanceSource{client: client, interval: code, limit: bars}, nil
}

func (b *BinanceSource) Name() string {
	return "binance"
}

func (b *BinanceSource) Fetch(ctx context.Context, symbol string) (*models.PriceSeries, error) {
	klines, err := b.client.NewKlinesService().
		Symbol(quoteSymbol(symbol)).
		Interval(b.interval).
		Limit(b.limit).
		Do(ctx)
	if err != nil {
		return nil, unavailable(b.Name(), symbol, err)
	}

	bars := make([]models.PriceBar, 0, len(klines))
	for _, k := range klines {
		bar, err := binanceBar(k)
		if err != nil {
			return nil, unavailable(b.Name(), symbol, err)
		}
		bars = append(bars, bar)
	}
	return finish(b.Name(), symbol, bars)
}

func binanceBar(k *binance.Kline) (models.PriceBar, error) {
	var values [4]float64
	for i, raw := range []string{k.High, k.Low, k.Close, k.Volume} {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return models.PriceBar{}, fmt.Errorf("kline at %d: %w", k.OpenTime, err)
		}
		values[i] = v
	}
	return models.PriceBar{
		Time:   time.UnixMilli(k.OpenTime).UTC(),
		High:   values[0],
		Low:    values[1],
		Close:  values[2],
		Volume: values[3],
	}, nil
}

func binanceInterval(d time.Duration) (string, error) {
	switch {
	case d >= time.Minute && d < time.Hour && d%time.Minute == 0:
		m := int(d / time.Minute)
		switch m {
		case 1, 3, 5, 15, 30:
			return strconv.Itoa(m) + "m", nil
		}
	case d >= time.Hour && d < 24*time.Hour && d%time.Hour == 0:
		h := int(d / time.Hour)
		switch h {
		case 1, 2, 4, 6, 8, 12:
			return strconv.Itoa(h) + "h", nil
		}
	case d == 24*time.Hour:
		return "1d", nil
	}
	return "", fmt.Errorf("binance: unsupported interval %s", d)
}
