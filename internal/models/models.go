// Package models provides domain models for the trading engine.
package models

import (
	"time"
)

// Exchange represents a stock exchange code as used by the brokerage.
type Exchange string

const (
	ExchangeNASDAQ Exchange = "NAS"
	ExchangeNYSE   Exchange = "NYS"
	ExchangeAMEX   Exchange = "AMS"
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// PriceMode determines how an order's execution price is resolved.
type PriceMode string

const (
	PriceModeMarket PriceMode = "MARKET"
	PriceModeLimit  PriceMode = "LIMIT"
)

// SessionPhase classifies the current time against the exchange calendar.
type SessionPhase string

const (
	PhaseWeekend    SessionPhase = "WEEKEND"
	PhasePreOpen    SessionPhase = "PRE_OPEN"
	PhaseRegular    SessionPhase = "REGULAR"
	PhaseAfterClose SessionPhase = "AFTER_CLOSE"
)

// AccountContext identifies the brokerage account orders are placed against.
type AccountContext struct {
	AccountNo   string
	ProductCode string
	Mock        bool
}

// Key returns a stable identifier for the account, used to scope
// pending orders and positions in the store.
func (a AccountContext) Key() string {
	if a.AccountNo == "" {
		return "default"
	}
	return a.AccountNo + "-" + a.ProductCode
}

// Quote represents a market quote from the brokerage or the data provider.
type Quote struct {
	Symbol        string
	Price         float64
	ChangePercent float64
	Volume        int64
	Timestamp     time.Time
}

// Bar represents one intraday OHLC bar.
type Bar struct {
	Open      float64
	Close     float64
	High      float64
	Low       float64
	Volume    int64
	Timestamp time.Time
}

// BrokeragePosition is a position row from the brokerage balance snapshot.
type BrokeragePosition struct {
	Symbol       string
	Quantity     int
	AveragePrice float64
	CurrentPrice float64
	PnLPercent   float64
}

// Balance represents the account balance snapshot from the brokerage.
type Balance struct {
	AvailableCash float64
	Positions     []BrokeragePosition
}
