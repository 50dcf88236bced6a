package portfolio

import (
	"math"
	"time"

	"github.com/aricooperman/golean/model"
	"github.com/aricooperman/golean/tools/log"
)

// defaultSettlementDelay is the T+2 window applied to equity sale proceeds.
const defaultSettlementDelay = 48 * time.Hour

// marginWarningBuffer triggers the margin warning when remaining margin
// falls under this share of total portfolio value.
const marginWarningBuffer = 0.05

// Portfolio is the algorithm's account state: registered securities, settled
// and unsettled cash, and the scan routines the manager loop drives.
type Portfolio struct {
	Securities *Registry
	Cash       *CashBook
	Unsettled  *UnsettledCashBook

	settlementDelay time.Duration
}

// Option customises a portfolio at construction.
type Option func(*Portfolio)

// WithSettlementDelay overrides the cash settlement window.
func WithSettlementDelay(d time.Duration) Option {
	return func(p *Portfolio) { p.settlementDelay = d }
}

func New(accountCurrency string, initialCash float64, options ...Option) *Portfolio {
	p := &Portfolio{
		Securities:      NewRegistry(),
		Cash:            NewCashBook(accountCurrency, initialCash),
		Unsettled:       NewUnsettledCashBook(),
		settlementDelay: defaultSettlementDelay,
	}
	for _, option := range options {
		option(p)
	}
	log.Infof("[SETUP] Initial portfolio = %f %s", initialCash, accountCurrency)
	return p
}

// TotalPortfolioValue is settled cash plus the market value of every holding
// in the account currency.
func (p *Portfolio) TotalPortfolioValue() float64 {
	total := p.Cash.TotalValue()
	for _, security := range p.Securities.Snapshot() {
		total += security.Holdings.Quantity * security.Price
	}
	return total
}

// TotalMarginUsed sums the margin each open position consumes.
func (p *Portfolio) TotalMarginUsed() float64 {
	var used float64
	for _, security := range p.Securities.Snapshot() {
		leverage := security.Leverage
		if leverage <= 0 {
			leverage = 1
		}
		used += security.Holdings.AbsoluteValue(security.Price) / leverage
	}
	return used
}

// MarginRemaining is the buying power left before a margin call.
func (p *Portfolio) MarginRemaining() float64 {
	return p.TotalPortfolioValue() - p.TotalMarginUsed()
}

// ScanForMarginCall produces liquidation requests when margin is exhausted,
// or a warning when remaining margin drops under the buffer. Requests reduce
// the largest position first.
func (p *Portfolio) ScanForMarginCall() (requests []model.Order, warning bool) {
	remaining := p.MarginRemaining()
	total := p.TotalPortfolioValue()

	if remaining >= 0 {
		if total > 0 && remaining < total*marginWarningBuffer {
			return nil, true
		}
		return nil, false
	}

	var largest *Security
	for _, security := range p.Securities.Snapshot() {
		if !security.Holdings.Invested() {
			continue
		}
		if largest == nil ||
			security.Holdings.AbsoluteValue(security.Price) > largest.Holdings.AbsoluteValue(largest.Price) {
			largest = security
		}
	}
	if largest == nil || largest.Price == 0 {
		return nil, false
	}

	// free enough margin to cover the deficit
	deficit := -remaining
	quantity := math.Ceil(deficit / largest.Price)
	if quantity > math.Abs(largest.Holdings.Quantity) {
		quantity = math.Abs(largest.Holdings.Quantity)
	}
	side := model.SideTypeSell
	if largest.Holdings.Quantity < 0 {
		side = model.SideTypeBuy
	}
	requests = append(requests, model.Order{
		Symbol:   largest.Symbol.Value,
		Side:     side,
		Type:     model.OrderTypeMarket,
		Quantity: quantity,
		Tag:      "Margin call",
	})
	return requests, false
}

// ScanForCashSettlement moves due unsettled funds into the cash book.
func (p *Portfolio) ScanForCashSettlement(now time.Time) {
	if settled := p.Unsettled.Scan(now, p.Cash); settled > 0 {
		log.Debugf("settled %d cash entries at %s", settled, now)
	}
}

// AddUnsettledProceeds defers sale proceeds by the settlement window.
func (p *Portfolio) AddUnsettledProceeds(currency string, amount float64, at time.Time) {
	p.Unsettled.AddUnsettled(currency, amount, at.Add(p.settlementDelay))
}

// ApplyDividend credits the per-share distribution for the current holding.
func (p *Portfolio) ApplyDividend(symbol model.Symbol, distribution float64) {
	security, ok := p.Securities.Get(symbol)
	if !ok || !security.Holdings.Invested() {
		return
	}
	payout := distribution * security.Holdings.Quantity
	p.Cash.Deposit(p.Cash.AccountCurrency(), payout)
	log.Infof("dividend %s: %.4f x %.0f shares = %.4f", symbol, distribution,
		security.Holdings.Quantity, payout)
}

// ApplySplit rescales the holding and the security price by the split
// factor. A factor of 0.5 doubles the share count and halves the prices.
func (p *Portfolio) ApplySplit(symbol model.Symbol, factor float64) {
	if factor == 0 {
		return
	}
	security, ok := p.Securities.Get(symbol)
	if !ok {
		return
	}
	security.Holdings.Quantity /= factor
	security.Holdings.AveragePrice *= factor
	security.Price *= factor
}
