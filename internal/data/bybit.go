package data

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mohamedkhairy/signal-engine/internal/models"
)

type bybitResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		Category string     `json:"category"`
		Symbol   string     `json:"symbol"`
		List     [][]string `json:"list"`
	} `json:"result"`
}

// BybitSource reads spot klines from the Bybit v5 market API
type BybitSource struct {
	baseURL    string
	interval   string
	limit      int
	httpClient *http.Client
}

// NewBybitSource creates a Bybit source for the given bar interval
func NewBybitSource(baseURL string, interval time.Duration, bars int, timeout time.Duration) (*BybitSource, error) {
	code, err := bybitInterval(interval)
	if err != nil {
		return nil, err
	}
	if bars <= 0 || bars > 1000 {
		bars = 200
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BybitSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		interval:   code,
		limit:      bars,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (b *BybitSource) Name() string {
	return "bybit"
}

func (b *BybitSource) Fetch(ctx context.Context, symbol string) (*models.PriceSeries, error) {
	endpoint := fmt.Sprintf("%s/v5/market/kline?category=spot&symbol=%s&interval=%s&limit=%d",
		b.baseURL, quoteSymbol(symbol), b.interval, b.limit)

	var resp bybitResponse
	if err := getJSON(ctx, b.httpClient, endpoint, &resp); err != nil {
		return nil, unavailable(b.Name(), symbol, err)
	}
	if resp.RetCode != 0 {
		return nil, unavailable(b.Name(), symbol, fmt.Errorf("bybit error %d: %s", resp.RetCode, resp.RetMsg))
	}

	bars, err := parseBybitKlines(resp.Result.List)
	if err != nil {
		return nil, unavailable(b.Name(), symbol, err)
	}
	return finish(b.Name(), symbol, bars)
}

// parseBybitKlines converts rows of [start, open, high, low, close, volume,
// turnover]. Bybit lists newest first; the result is oldest first.
func parseBybitKlines(rows [][]string) ([]models.PriceBar, error) {
	bars := make([]models.PriceBar, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if len(row) < 6 {
			return nil, fmt.Errorf("kline row %d has %d fields", i, len(row))
		}
		start, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("kline row %d start: %w", i, err)
		}
		var values [4]float64
		for j, raw := range row[2:6] {
			values[j], err = strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("kline row %d field %d: %w", i, j+2, err)
			}
		}
		bars = append(bars, models.PriceBar{
			Time:   time.UnixMilli(start).UTC(),
			High:   values[0],
			Low:    values[1],
			Close:  values[2],
			Volume: values[3],
		})
	}
	return bars, nil
}

func bybitInterval(d time.Duration) (string, error) {
	switch d {
	case time.Minute, 3 * time.Minute, 5 * time.Minute, 15 * time.Minute, 30 * time.Minute,
		time.Hour, 2 * time.Hour, 4 * time.Hour, 6 * time.Hour, 12 * time.Hour:
		return strconv.Itoa(int(d / time.Minute)), nil
	case 24 * time.Hour:
		return "D", nil
	}
	return "", fmt.Errorf("bybit: unsupported interval %s", d)
}
