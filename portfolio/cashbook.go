package portfolio

import (
	"sort"
	"sync"
	"time"

	"github.com/aricooperman/golean/model"
)

// Cash is the settled amount of one currency with its conversion rate into
// the account currency.
type Cash struct {
	Currency       string
	Amount         float64
	ConversionRate float64
}

// ValueInAccountCurrency converts the amount at the current rate.
func (c *Cash) ValueInAccountCurrency() float64 {
	return c.Amount * c.ConversionRate
}

// CashBook holds the settled cash per currency. The account currency always
// converts at one.
type CashBook struct {
	mu              sync.Mutex
	accountCurrency string
	items           map[string]*Cash
	conversions     map[string][]string
}

func NewCashBook(accountCurrency string, initialCash float64) *CashBook {
	book := &CashBook{
		accountCurrency: accountCurrency,
		items:           make(map[string]*Cash),
		conversions:     make(map[string][]string),
	}
	book.items[accountCurrency] = &Cash{
		Currency: accountCurrency, Amount: initialCash, ConversionRate: 1,
	}
	return book
}

// TrackConversion registers symbol as the conversion-rate source for the
// currency; slices carrying the symbol's data then update the currency's
// rate through Apply.
func (b *CashBook) TrackConversion(currency, symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, tracked := range b.conversions[symbol] {
		if tracked == currency {
			return
		}
	}
	b.conversions[symbol] = append(b.conversions[symbol], currency)
	b.get(currency)
}

// CurrenciesFor returns the currencies whose conversion rate the symbol
// backs; the slice assembler uses it to extract cash-book updates.
func (b *CashBook) CurrenciesFor(symbol model.Symbol) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversions[symbol.Value]
}

func (b *CashBook) AccountCurrency() string { return b.accountCurrency }

func (b *CashBook) get(currency string) *Cash {
	cash, ok := b.items[currency]
	if !ok {
		cash = &Cash{Currency: currency}
		b.items[currency] = cash
	}
	return cash
}

// Deposit credits the currency with amount (negative to debit).
func (b *CashBook) Deposit(currency string, amount float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.get(currency).Amount += amount
}

// Balance returns the settled amount of the currency.
func (b *CashBook) Balance(currency string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	cash, ok := b.items[currency]
	if !ok {
		return 0
	}
	return cash.Amount
}

// Apply refreshes conversion rates from the slice's cash updates.
func (b *CashBook) Apply(updates []model.CashUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, update := range updates {
		if update.Data == nil || update.Data.Value == 0 {
			continue
		}
		b.get(update.Currency).ConversionRate = update.Data.Value
	}
}

// TotalValue sums every currency converted into the account currency.
func (b *CashBook) TotalValue() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var total float64
	for _, cash := range b.items {
		total += cash.ValueInAccountCurrency()
	}
	return total
}

// unsettledEntry is cash waiting out its settlement period.
type unsettledEntry struct {
	currency  string
	amount    float64
	settlesAt time.Time
}

// UnsettledCashBook defers sale proceeds until their settlement date; the
// settlement scan moves due funds into the cash book.
type UnsettledCashBook struct {
	mu      sync.Mutex
	entries []unsettledEntry
}

func NewUnsettledCashBook() *UnsettledCashBook {
	return &UnsettledCashBook{}
}

// AddUnsettled records funds that settle at the given time.
func (u *UnsettledCashBook) AddUnsettled(currency string, amount float64, settlesAt time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.entries = append(u.entries, unsettledEntry{currency: currency, amount: amount, settlesAt: settlesAt})
	sort.SliceStable(u.entries, func(i, j int) bool {
		return u.entries[i].settlesAt.Before(u.entries[j].settlesAt)
	})
}

// TotalUnsettled sums the amounts still pending for the currency.
func (u *UnsettledCashBook) TotalUnsettled(currency string) float64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	var total float64
	for _, entry := range u.entries {
		if entry.currency == currency {
			total += entry.amount
		}
	}
	return total
}

// Scan settles every entry due at or before now into the cash book and
// reports how many settled.
func (u *UnsettledCashBook) Scan(now time.Time, book *CashBook) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	settled := 0
	for len(u.entries) > 0 && !u.entries[0].settlesAt.After(now) {
		entry := u.entries[0]
		u.entries = u.entries[1:]
		book.Deposit(entry.currency, entry.amount)
		settled++
	}
	return settled
}
