package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"soar-trader/internal/models"
)

// PaperBroker is an in-memory Brokerage used for dry runs and tests.
// Fills are immediate at the requested price; no partial fills.
type PaperBroker struct {
	mu        sync.Mutex
	cash      float64
	positions map[string]*models.BrokeragePosition
	prices    map[string]float64
	account   models.AccountContext
}

// NewPaperBroker creates a paper broker seeded with starting cash.
func NewPaperBroker(startingCash float64) *PaperBroker {
	return &PaperBroker{
		cash:      startingCash,
		positions: make(map[string]*models.BrokeragePosition),
		prices:    make(map[string]float64),
		account: models.AccountContext{
			AccountNo:   "paper",
			ProductCode: "01",
			Mock:        true,
		},
	}
}

// SetPrice sets the simulated market price for a symbol.
func (p *PaperBroker) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
	if pos, ok := p.positions[symbol]; ok {
		pos.CurrentPrice = price
		if pos.AveragePrice > 0 {
			pos.PnLPercent = (price - pos.AveragePrice) / pos.AveragePrice * 100
		}
	}
}

// CurrentAccount implements Brokerage.
func (p *PaperBroker) CurrentAccount() models.AccountContext {
	return p.account
}

// GetBalance implements Brokerage.
func (p *PaperBroker) GetBalance(ctx context.Context) (*models.Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	balance := &models.Balance{AvailableCash: p.cash}
	for _, pos := range p.positions {
		balance.Positions = append(balance.Positions, *pos)
	}
	return balance, nil
}

// GetCurrentPrice implements Brokerage.
func (p *PaperBroker) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	price, ok := p.prices[symbol]
	if !ok || price <= 0 {
		return 0, ErrNoQuote
	}
	return price, nil
}

// BuyStock implements Brokerage.
func (p *PaperBroker) BuyStock(ctx context.Context, symbol string, quantity int, price float64) (*OrderResult, error) {
	if quantity < 1 || price <= 0 {
		return nil, fmt.Errorf("broker: invalid order: qty=%d price=%.2f", quantity, price)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cost := float64(quantity) * price
	if cost > p.cash {
		return nil, fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientFunds, cost, p.cash)
	}

	p.cash -= cost
	pos, ok := p.positions[symbol]
	if !ok {
		p.positions[symbol] = &models.BrokeragePosition{
			Symbol:       symbol,
			Quantity:     quantity,
			AveragePrice: price,
			CurrentPrice: price,
		}
	} else {
		total := float64(pos.Quantity)*pos.AveragePrice + cost
		pos.Quantity += quantity
		pos.AveragePrice = total / float64(pos.Quantity)
		pos.CurrentPrice = price
	}

	return &OrderResult{
		Success: true,
		OrderID: uuid.NewString(),
		Message: fmt.Sprintf("paper buy %s x%d @ %.2f at %s", symbol, quantity, price, time.Now().Format(time.RFC3339)),
	}, nil
}

// SellStock implements Brokerage.
func (p *PaperBroker) SellStock(ctx context.Context, symbol string, quantity int, price float64) (*OrderResult, error) {
	if quantity < 1 || price <= 0 {
		return nil, fmt.Errorf("broker: invalid order: qty=%d price=%.2f", quantity, price)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[symbol]
	if !ok || pos.Quantity < quantity {
		return nil, fmt.Errorf("broker: no position to sell: %s", symbol)
	}

	p.cash += float64(quantity) * price
	pos.Quantity -= quantity
	if pos.Quantity == 0 {
		delete(p.positions, symbol)
	}

	return &OrderResult{
		Success: true,
		OrderID: uuid.NewString(),
		Message: fmt.Sprintf("paper sell %s x%d @ %.2f", symbol, quantity, price),
	}, nil
}
