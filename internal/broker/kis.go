// Package broker provides brokerage integration implementations.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"soar-trader/internal/models"
	"soar-trader/pkg/utils"
)

const (
	kisLiveBaseURL = "https://openapi.koreainvestment.com:9443"
	kisMockBaseURL = "https://openapivts.koreainvestment.com:29443"

	// tokenRefreshMargin renews the access token before it actually expires
	// so an in-flight order never races token expiry.
	tokenRefreshMargin = 10 * time.Minute
)

// KISBroker implements the Brokerage interface for the Korea Investment &
// Securities overseas-stock REST API.
type KISBroker struct {
	appKey    string
	appSecret string
	accountNo string // "12345678-01"
	mock      bool
	baseURL   string
	exchange  models.Exchange
	tokenPath string

	client  *http.Client
	breaker *gobreaker.CircuitBreaker

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// KISConfig holds configuration for the KIS broker.
type KISConfig struct {
	AppKey    string
	AppSecret string
	AccountNo string
	Mock      bool
	BaseURL   string
	Exchange  models.Exchange
	TokenPath string
	Timeout   time.Duration
}

// NewKISBroker creates a new KIS broker instance.
// It loads any cached access token from disk.
func NewKISBroker(cfg KISConfig) *KISBroker {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		if cfg.Mock {
			baseURL = kisMockBaseURL
		} else {
			baseURL = kisLiveBaseURL
		}
	}

	tokenPath := cfg.TokenPath
	if tokenPath == "" {
		homeDir, _ := os.UserHomeDir()
		tokenPath = filepath.Join(homeDir, ".config", "soar-trader", "kis_token.json")
	}

	exchange := cfg.Exchange
	if exchange == "" {
		exchange = models.ExchangeNASDAQ
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 12 * time.Second
	}

	kb := &KISBroker{
		appKey:    cfg.AppKey,
		appSecret: cfg.AppSecret,
		accountNo: cfg.AccountNo,
		mock:      cfg.Mock,
		baseURL:   baseURL,
		exchange:  exchange,
		tokenPath: tokenPath,
		client:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "kis-api",
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}

	_ = kb.loadToken()

	return kb
}

// CurrentAccount returns the account context orders are placed against.
func (k *KISBroker) CurrentAccount() models.AccountContext {
	cano, prdt := k.splitAccount()
	return models.AccountContext{
		AccountNo:   cano,
		ProductCode: prdt,
		Mock:        k.mock,
	}
}

func (k *KISBroker) splitAccount() (string, string) {
	parts := strings.SplitN(k.accountNo, "-", 2)
	if len(parts) != 2 {
		return k.accountNo, "01"
	}
	return parts[0], parts[1]
}

// trID picks the mock or live transaction ID for an API call.
func (k *KISBroker) trID(live, mock string) string {
	if k.mock {
		return mock
	}
	return live
}

// tokenData represents the persisted access token.
type tokenData struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (k *KISBroker) loadToken() error {
	data, err := os.ReadFile(k.tokenPath)
	if err != nil {
		return err
	}
	var td tokenData
	if err := json.Unmarshal(data, &td); err != nil {
		return err
	}
	if time.Until(td.ExpiresAt) < tokenRefreshMargin {
		return fmt.Errorf("cached token expired")
	}
	k.mu.Lock()
	k.accessToken = td.AccessToken
	k.tokenExpiry = td.ExpiresAt
	k.mu.Unlock()
	return nil
}

func (k *KISBroker) saveToken(token string, expiresAt time.Time) {
	if err := os.MkdirAll(filepath.Dir(k.tokenPath), 0700); err != nil {
		return
	}
	data, err := json.Marshal(tokenData{AccessToken: token, ExpiresAt: expiresAt})
	if err != nil {
		return
	}
	_ = os.WriteFile(k.tokenPath, data, 0600)
}

// ensureToken returns a valid access token, refreshing it when close to expiry.
func (k *KISBroker) ensureToken(ctx context.Context) (string, error) {
	k.mu.Lock()
	if k.accessToken != "" && time.Until(k.tokenExpiry) > tokenRefreshMargin {
		token := k.accessToken
		k.mu.Unlock()
		return token, nil
	}
	k.mu.Unlock()

	body, err := json.Marshal(map[string]string{
		"grant_type": "client_credentials",
		"appkey":     k.appKey,
		"appsecret":  k.appSecret,
	})
	if err != nil {
		return "", err
	}

	type tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}

	tr, err := utils.RetryWithResult(ctx, utils.DefaultRetryConfig(), func() (tokenResp, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.baseURL+"/oauth2/tokenP", bytes.NewReader(body))
		if err != nil {
			return tokenResp{}, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := k.client.Do(req)
		if err != nil {
			return tokenResp{}, fmt.Errorf("requesting access token: %w", err)
		}
		defer resp.Body.Close()

		var tr tokenResp
		if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
			return tokenResp{}, fmt.Errorf("decoding token response: %w", err)
		}
		if tr.AccessToken == "" {
			return tokenResp{}, fmt.Errorf("token response missing access_token (status %d)", resp.StatusCode)
		}
		return tr, nil
	})
	if err != nil {
		return "", err
	}

	expiresAt := time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)

	k.mu.Lock()
	k.accessToken = tr.AccessToken
	k.tokenExpiry = expiresAt
	k.mu.Unlock()

	k.saveToken(tr.AccessToken, expiresAt)

	return tr.AccessToken, nil
}

// doRequest performs an authenticated KIS API call through the circuit breaker
// and decodes the response into out.
func (k *KISBroker) doRequest(ctx context.Context, method, endpoint, trID string, params url.Values, payload interface{}, out interface{}) error {
	token, err := k.ensureToken(ctx)
	if err != nil {
		return err
	}

	_, err = k.breaker.Execute(func() (interface{}, error) {
		reqURL := k.baseURL + endpoint
		if len(params) > 0 {
			reqURL += "?" + params.Encode()
		}

		var body io.Reader
		if payload != nil {
			data, err := json.Marshal(payload)
			if err != nil {
				return nil, err
			}
			body = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		req.Header.Set("authorization", "Bearer "+token)
		req.Header.Set("appkey", k.appKey)
		req.Header.Set("appsecret", k.appSecret)
		req.Header.Set("tr_id", trID)
		req.Header.Set("custtype", "P")

		resp, err := k.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("kis api %s returned %d: %s", endpoint, resp.StatusCode, string(data))
		}

		return nil, json.NewDecoder(resp.Body).Decode(out)
	})
	return err
}

// kisResponse is the common envelope of KIS API responses.
type kisResponse struct {
	RtCd  string `json:"rt_cd"`
	MsgCd string `json:"msg_cd"`
	Msg1  string `json:"msg1"`
}

func (r kisResponse) ok() bool { return r.RtCd == "0" }

// classifyOrderError maps a KIS rejection message onto a sentinel error.
func classifyOrderError(msg string) error {
	switch {
	case strings.Contains(msg, "시간") || strings.Contains(msg, "장종료") || strings.Contains(msg, "휴장"):
		return fmt.Errorf("%w: %s", ErrMarketClosed, msg)
	case strings.Contains(msg, "부족") || strings.Contains(msg, "증거금"):
		return fmt.Errorf("%w: %s", ErrInsufficientFunds, msg)
	case strings.Contains(msg, "종목"):
		return fmt.Errorf("%w: %s", ErrInvalidSymbol, msg)
	default:
		return fmt.Errorf("broker: order rejected: %s", msg)
	}
}

// GetCurrentPrice returns the brokerage's last price for a symbol.
// Outside regular hours the brokerage often has no data and ErrNoQuote is
// returned so callers can fall back to the market-data provider.
func (k *KISBroker) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("AUTH", "")
	params.Set("EXCD", string(k.exchange))
	params.Set("SYMB", symbol)

	var resp struct {
		kisResponse
		Output struct {
			Last string `json:"last"`
		} `json:"output"`
	}

	if err := k.doRequest(ctx, http.MethodGet, "/uapi/overseas-price/v1/quotations/price", "HHDFS00000300", params, nil, &resp); err != nil {
		return 0, err
	}
	if !resp.ok() {
		return 0, fmt.Errorf("broker: quote failed: %s", resp.Msg1)
	}

	price, err := strconv.ParseFloat(strings.TrimSpace(resp.Output.Last), 64)
	if err != nil || price <= 0 {
		return 0, ErrNoQuote
	}
	return price, nil
}

// GetBalance returns available cash and the brokerage position snapshot.
func (k *KISBroker) GetBalance(ctx context.Context) (*models.Balance, error) {
	cano, prdt := k.splitAccount()

	params := url.Values{}
	params.Set("CANO", cano)
	params.Set("ACNT_PRDT_CD", prdt)
	params.Set("OVRS_EXCG_CD", "NASD")
	params.Set("TR_CRCY_CD", "USD")
	params.Set("CTX_AREA_FK200", "")
	params.Set("CTX_AREA_NK200", "")

	var resp struct {
		kisResponse
		Output1 []struct {
			Symbol       string `json:"ovrs_pdno"`
			Quantity     string `json:"ovrs_cblc_qty"`
			AveragePrice string `json:"pchs_avg_pric"`
			CurrentPrice string `json:"now_pric2"`
			PnLPercent   string `json:"evlu_pfls_rt"`
		} `json:"output1"`
		Output2 struct {
			AvailableCash string `json:"frcr_dncl_amt1"`
		} `json:"output2"`
	}

	trID := k.trID("TTTS3012R", "VTTS3012R")
	if err := k.doRequest(ctx, http.MethodGet, "/uapi/overseas-stock/v1/trading/inquire-balance", trID, params, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, fmt.Errorf("broker: balance query failed: %s", resp.Msg1)
	}

	balance := &models.Balance{
		AvailableCash: parseFloat(resp.Output2.AvailableCash),
	}
	for _, row := range resp.Output1 {
		qty := int(parseFloat(row.Quantity))
		if qty <= 0 {
			continue
		}
		balance.Positions = append(balance.Positions, models.BrokeragePosition{
			Symbol:       row.Symbol,
			Quantity:     qty,
			AveragePrice: parseFloat(row.AveragePrice),
			CurrentPrice: parseFloat(row.CurrentPrice),
			PnLPercent:   parseFloat(row.PnLPercent),
		})
	}

	return balance, nil
}

// BuyStock places a limit buy order for the overseas market.
func (k *KISBroker) BuyStock(ctx context.Context, symbol string, quantity int, price float64) (*OrderResult, error) {
	return k.placeOrder(ctx, symbol, quantity, price, k.trID("TTTT1002U", "VTTT1002U"))
}

// SellStock places a limit sell order for the overseas market.
func (k *KISBroker) SellStock(ctx context.Context, symbol string, quantity int, price float64) (*OrderResult, error) {
	return k.placeOrder(ctx, symbol, quantity, price, k.trID("TTTT1001U", "VTTT1001U"))
}

func (k *KISBroker) placeOrder(ctx context.Context, symbol string, quantity int, price float64, trID string) (*OrderResult, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("broker: quantity must be at least 1")
	}
	if price <= 0 {
		return nil, fmt.Errorf("broker: price must be positive")
	}

	cano, prdt := k.splitAccount()

	payload := map[string]string{
		"CANO":            cano,
		"ACNT_PRDT_CD":    prdt,
		"OVRS_EXCG_CD":    string(k.exchange),
		"PDNO":            symbol,
		"ORD_QTY":         strconv.Itoa(quantity),
		"OVRS_ORD_UNPR":   strconv.FormatFloat(price, 'f', 2, 64),
		"ORD_SVR_DVSN_CD": "0",
		"ORD_DVSN":        "00",
	}

	var resp struct {
		kisResponse
		Output struct {
			OrderNo string `json:"ODNO"`
		} `json:"output"`
	}

	if err := k.doRequest(ctx, http.MethodPost, "/uapi/overseas-stock/v1/trading/order", trID, nil, payload, &resp); err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, classifyOrderError(resp.Msg1)
	}

	return &OrderResult{
		Success: true,
		OrderID: resp.Output.OrderNo,
		Message: resp.Msg1,
	}, nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v
}
