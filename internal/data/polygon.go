package data

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	polygonmodels "github.com/polygon-io/client-go/rest/models"

	"github.com/mohamedkhairy/signal-engine/internal/models"
)

var polygonCryptoBases = map[string]bool{
	"BTC": true,
	"ETH": true,
	"SOL": true,
}

// PolygonSource reads aggregate bars from Polygon.io. Metals and FX pairs
// use the C: ticker namespace and crypto the X: namespace.
type PolygonSource struct {
	client     *polygon.Client
	multiplier int
	timespan   polygonmodels.Timespan
	interval   time.Duration
	bars       int
	now        func() time.Time
}

// NewPolygonSource creates a Polygon source. httpClient may be nil.
func NewPolygonSource(apiKey string, interval time.Duration, bars int, httpClient *http.Client) (*PolygonSource, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("polygon: api key is required")
	}
	multiplier, timespan, err := polygonTimespan(interval)
	if err != nil {
		return nil, err
	}
	if bars <= 0 {
		bars = 100
	}

	client := polygon.New(apiKey)
	if httpClient != nil {
		client = polygon.NewWithClient(apiKey, httpClient)
	}

	return &PolygonSource{
		client:     client,
		multiplier: multiplier,
		timespan:   timespan,
		interval:   interval,
		bars:       bars,
		now:        time.Now,
	}, nil
}

func (p *PolygonSource) Name() string {
	return "polygon"
}

func (p *PolygonSource) Fetch(ctx context.Context, symbol string) (*models.PriceSeries, error) {
	now := p.now()
	// Markets close on weekends; look back far enough to still fill the window.
	from := windowStart(now, p.interval, p.bars*3)

	params := polygonmodels.ListAggsParams{
		Ticker:     polygonTicker(symbol),
		Multiplier: p.multiplier,
		Timespan:   p.timespan,
		From:       polygonmodels.Millis(from),
		To:         polygonmodels.Millis(now),
	}.WithLimit(p.bars * 3)

	var bars []models.PriceBar
	iter := p.client.ListAggs(ctx, params)
	for iter.Next() {
		agg := iter.Item()
		bars = append(bars, models.PriceBar{
			Time:   time.Time(agg.Timestamp).UTC(),
			Close:  agg.Close,
			High:   agg.High,
			Low:    agg.Low,
			Volume: agg.Volume,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, unavailable(p.Name(), symbol, err)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	if len(bars) > p.bars {
		bars = bars[len(bars)-p.bars:]
	}
	return finish(p.Name(), symbol, bars)
}

func polygonTicker(symbol string) string {
	if strings.Contains(symbol, ":") {
		return symbol
	}
	if len(symbol) > 3 && polygonCryptoBases[symbol[:len(symbol)-3]] {
		return "X:" + symbol
	}
	return "C:" + symbol
}

func polygonTimespan(d time.Duration) (int, polygonmodels.Timespan, error) {
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		return int(d / (24 * time.Hour)), polygonmodels.Day, nil
	case d >= time.Hour && d%time.Hour == 0:
		return int(d / time.Hour), polygonmodels.Hour, nil
	case d >= time.Minute && d%time.Minute == 0:
		return int(d / time.Minute), polygonmodels.Minute, nil
	}
	return 0, "", fmt.Errorf("polygon: unsupported interval %s", d)
}
