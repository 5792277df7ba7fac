// Package marketdata provides market data provider integrations.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"soar-trader/internal/models"
)

// Provider defines the interface for quote and intraday data.
type Provider interface {
	// GetQuote returns the current quote for a symbol.
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)

	// GetIntradaySeries returns 1-minute bars for the current session,
	// ordered newest-first.
	GetIntradaySeries(ctx context.Context, symbol string) ([]models.Bar, error)
}

const defaultFMPBaseURL = "https://financialmodelingprep.com/stable"

// fmpLocation is the exchange-local timezone FMP reports intraday bar
// timestamps in.
var fmpLocation *time.Location

func init() {
	var err error
	fmpLocation, err = time.LoadLocation("America/New_York")
	if err != nil {
		// Fallback to EST; DST handling degrades but parsing stays local
		fmpLocation = time.FixedZone("EST", -5*60*60)
	}
}

// FMPClient implements Provider against the Financial Modeling Prep API.
type FMPClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// FMPConfig holds configuration for the FMP client.
type FMPConfig struct {
	APIKey            string
	BaseURL           string
	RequestsPerMinute int
	Timeout           time.Duration
}

// NewFMPClient creates a new FMP API client with a request budget limiter.
func NewFMPClient(cfg FMPConfig) *FMPClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultFMPBaseURL
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 300
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 12 * time.Second
	}

	return &FMPClient{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm/10+1),
	}
}

func (f *FMPClient) get(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	if err := f.limiter.Wait(ctx); err != nil {
		return err
	}

	params.Set("apikey", f.apiKey)
	reqURL := f.baseURL + endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fmp request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("fmp rate limited on %s", endpoint)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fmp %s returned %d", endpoint, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// fmpQuote is the wire shape of the FMP quote endpoint.
type fmpQuote struct {
	Symbol           string  `json:"symbol"`
	Price            float64 `json:"price"`
	ChangePercentage float64 `json:"changePercentage"`
	Volume           int64   `json:"volume"`
}

// GetQuote implements Provider.
func (f *FMPClient) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var quotes []fmpQuote
	if err := f.get(ctx, "/quote", params, &quotes); err != nil {
		return nil, err
	}
	if len(quotes) == 0 {
		return nil, fmt.Errorf("fmp: no quote for %s", symbol)
	}

	q := quotes[0]
	quote := &models.Quote{
		Symbol:        q.Symbol,
		Price:         q.Price,
		ChangePercent: q.ChangePercentage,
		Volume:        q.Volume,
		Timestamp:     time.Now(),
	}

	// Outside regular hours the quote endpoint can report a zero price;
	// fall back to the last after-market trade.
	if quote.Price == 0 {
		if price, err := f.afterMarketPrice(ctx, symbol); err == nil && price > 0 {
			quote.Price = price
		}
	}
	if quote.Price == 0 {
		return nil, fmt.Errorf("fmp: no tradable price for %s", symbol)
	}
	return quote, nil
}

// fmpAfterMarketTrade is the wire shape of the FMP after-market trade endpoint.
type fmpAfterMarketTrade struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

func (f *FMPClient) afterMarketPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var trades []fmpAfterMarketTrade
	if err := f.get(ctx, "/aftermarket-trade", params, &trades); err != nil {
		return 0, err
	}
	if len(trades) == 0 {
		return 0, fmt.Errorf("fmp: no after-market trade for %s", symbol)
	}
	return trades[0].Price, nil
}

// fmpBar is the wire shape of the FMP intraday chart endpoint.
type fmpBar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// GetIntradaySeries implements Provider. Bars come back newest-first,
// matching the upstream API ordering.
func (f *FMPClient) GetIntradaySeries(ctx context.Context, symbol string) ([]models.Bar, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var raw []fmpBar
	if err := f.get(ctx, "/historical-chart/1min", params, &raw); err != nil {
		return nil, err
	}

	bars := make([]models.Bar, 0, len(raw))
	for _, b := range raw {
		ts, err := time.ParseInLocation("2006-01-02 15:04:05", b.Date, fmpLocation)
		if err != nil {
			continue
		}
		bars = append(bars, models.Bar{
			Open:      b.Open,
			Close:     b.Close,
			High:      b.High,
			Low:       b.Low,
			Volume:    b.Volume,
			Timestamp: ts,
		})
	}
	return bars, nil
}
