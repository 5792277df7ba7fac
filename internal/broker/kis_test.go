package broker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"soar-trader/internal/models"
)

// newKISTestServer serves the token endpoint plus per-path handlers.
func newKISTestServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/tokenP", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "test-token",
			"expires_in":   86400,
		})
	})
	for path, handler := range handlers {
		mux.HandleFunc(path, handler)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestKISBroker(t *testing.T, baseURL string) *KISBroker {
	t.Helper()
	return NewKISBroker(KISConfig{
		AppKey:    "test-key",
		AppSecret: "test-secret",
		AccountNo: "12345678-01",
		Mock:      true,
		BaseURL:   baseURL,
		Exchange:  models.ExchangeNASDAQ,
		TokenPath: filepath.Join(t.TempDir(), "token.json"),
	})
}

func TestKISGetCurrentPrice(t *testing.T) {
	srv := newKISTestServer(t, map[string]http.HandlerFunc{
		"/uapi/overseas-price/v1/quotations/price": func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("tr_id"); got != "HHDFS00000300" {
				t.Errorf("tr_id = %q, want HHDFS00000300", got)
			}
			if got := r.Header.Get("authorization"); got != "Bearer test-token" {
				t.Errorf("authorization = %q", got)
			}
			if got := r.URL.Query().Get("SYMB"); got != "AAPL" {
				t.Errorf("SYMB = %q, want AAPL", got)
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"rt_cd":  "0",
				"output": map[string]string{"last": "173.5400"},
			})
		},
	})

	k := newTestKISBroker(t, srv.URL)
	price, err := k.GetCurrentPrice(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetCurrentPrice: %v", err)
	}
	if price != 173.54 {
		t.Errorf("price = %v, want 173.54", price)
	}
}

func TestKISGetCurrentPriceNoQuote(t *testing.T) {
	srv := newKISTestServer(t, map[string]http.HandlerFunc{
		"/uapi/overseas-price/v1/quotations/price": func(w http.ResponseWriter, r *http.Request) {
			// Outside regular hours the brokerage returns an empty last.
			json.NewEncoder(w).Encode(map[string]interface{}{
				"rt_cd":  "0",
				"output": map[string]string{"last": ""},
			})
		},
	})

	k := newTestKISBroker(t, srv.URL)
	_, err := k.GetCurrentPrice(context.Background(), "AAPL")
	if !errors.Is(err, ErrNoQuote) {
		t.Errorf("err = %v, want ErrNoQuote", err)
	}
}

func TestKISGetBalance(t *testing.T) {
	srv := newKISTestServer(t, map[string]http.HandlerFunc{
		"/uapi/overseas-stock/v1/trading/inquire-balance": func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("tr_id"); got != "VTTS3012R" {
				t.Errorf("tr_id = %q, want mock VTTS3012R", got)
			}
			q := r.URL.Query()
			if q.Get("CANO") != "12345678" || q.Get("ACNT_PRDT_CD") != "01" {
				t.Errorf("account split = %q/%q", q.Get("CANO"), q.Get("ACNT_PRDT_CD"))
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"rt_cd": "0",
				"output1": []map[string]string{
					{
						"ovrs_pdno":     "AAPL",
						"ovrs_cblc_qty": "5",
						"pchs_avg_pric": "150.00",
						"now_pric2":     "157.50",
						"evlu_pfls_rt":  "5.00",
					},
					{
						"ovrs_pdno":     "SOLD",
						"ovrs_cblc_qty": "0",
					},
				},
				"output2": map[string]string{"frcr_dncl_amt1": "1234.56"},
			})
		},
	})

	k := newTestKISBroker(t, srv.URL)
	balance, err := k.GetBalance(context.Background())
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if balance.AvailableCash != 1234.56 {
		t.Errorf("cash = %v, want 1234.56", balance.AvailableCash)
	}
	// Zero-quantity rows are dropped.
	if len(balance.Positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(balance.Positions))
	}
	pos := balance.Positions[0]
	if pos.Symbol != "AAPL" || pos.Quantity != 5 || pos.PnLPercent != 5.0 {
		t.Errorf("position = %+v", pos)
	}
}

func TestKISBuyStock(t *testing.T) {
	srv := newKISTestServer(t, map[string]http.HandlerFunc{
		"/uapi/overseas-stock/v1/trading/order": func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("tr_id"); got != "VTTT1002U" {
				t.Errorf("tr_id = %q, want mock buy VTTT1002U", got)
			}
			var payload map[string]string
			json.NewDecoder(r.Body).Decode(&payload)
			if payload["PDNO"] != "AAPL" || payload["ORD_QTY"] != "3" {
				t.Errorf("payload = %v", payload)
			}
			if payload["OVRS_ORD_UNPR"] != "150.25" {
				t.Errorf("price = %q, want 150.25", payload["OVRS_ORD_UNPR"])
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"rt_cd":  "0",
				"msg1":   "주문 전송 완료 되었습니다.",
				"output": map[string]string{"ODNO": "0000117057"},
			})
		},
	})

	k := newTestKISBroker(t, srv.URL)
	result, err := k.BuyStock(context.Background(), "AAPL", 3, 150.25)
	if err != nil {
		t.Fatalf("BuyStock: %v", err)
	}
	if !result.Success || result.OrderID != "0000117057" {
		t.Errorf("result = %+v", result)
	}
}

func TestKISSellUsesSellTransactionID(t *testing.T) {
	srv := newKISTestServer(t, map[string]http.HandlerFunc{
		"/uapi/overseas-stock/v1/trading/order": func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("tr_id"); got != "VTTT1001U" {
				t.Errorf("tr_id = %q, want mock sell VTTT1001U", got)
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"rt_cd":  "0",
				"output": map[string]string{"ODNO": "42"},
			})
		},
	})

	k := newTestKISBroker(t, srv.URL)
	if _, err := k.SellStock(context.Background(), "AAPL", 1, 100); err != nil {
		t.Fatalf("SellStock: %v", err)
	}
}

func TestKISOrderRejectionMapsToSentinels(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want error
	}{
		{"market closed by hours", "주문시간이 아닙니다", ErrMarketClosed},
		{"market closed by holiday", "금일은 휴장일입니다", ErrMarketClosed},
		{"insufficient funds", "주문가능금액이 부족합니다", ErrInsufficientFunds},
		{"margin shortfall", "증거금이 부족합니다", ErrInsufficientFunds},
		{"invalid symbol", "해당 종목 정보가 없습니다", ErrInvalidSymbol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.msg
			srv := newKISTestServer(t, map[string]http.HandlerFunc{
				"/uapi/overseas-stock/v1/trading/order": func(w http.ResponseWriter, r *http.Request) {
					json.NewEncoder(w).Encode(map[string]interface{}{
						"rt_cd": "1",
						"msg1":  msg,
					})
				},
			})

			k := newTestKISBroker(t, srv.URL)
			_, err := k.BuyStock(context.Background(), "AAPL", 1, 100)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestClassifyOrderErrorUnknownMessage(t *testing.T) {
	err := classifyOrderError("something else entirely")
	for _, sentinel := range []error{ErrMarketClosed, ErrInsufficientFunds, ErrInvalidSymbol} {
		if errors.Is(err, sentinel) {
			t.Errorf("unknown message must not map to %v", sentinel)
		}
	}
}

func TestKISOrderValidation(t *testing.T) {
	k := newTestKISBroker(t, "http://unreachable.invalid")

	if _, err := k.BuyStock(context.Background(), "AAPL", 0, 100); err == nil {
		t.Error("zero quantity must be rejected before any network call")
	}
	if _, err := k.BuyStock(context.Background(), "AAPL", 1, 0); err == nil {
		t.Error("zero price must be rejected before any network call")
	}
}
