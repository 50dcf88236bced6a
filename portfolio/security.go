// Package portfolio tracks the algorithm's securities, cash and holdings and
// runs the margin-call and settlement scans the manager loop triggers.
package portfolio

import (
	"github.com/aricooperman/golean/data"
	"github.com/aricooperman/golean/model"
	"github.com/aricooperman/golean/tools"
)

// Holdings is the position carried in one security.
type Holdings struct {
	Quantity     float64
	AveragePrice float64
}

// Invested reports whether the position is open in either direction.
func (h Holdings) Invested() bool { return h.Quantity != 0 }

// AbsoluteValue is the unsigned market value of the position at price.
func (h Holdings) AbsoluteValue(price float64) float64 {
	v := h.Quantity * price
	if v < 0 {
		return -v
	}
	return v
}

// Security pairs a symbol with its subscription, exchange hours, latest price
// and holdings. Leverage scales the margin the position consumes.
type Security struct {
	Symbol   model.Symbol
	Config   *model.SubscriptionConfig
	Hours    *data.ExchangeHours
	Price    float64
	Leverage float64
	Holdings Holdings
}

func NewSecurity(config *model.SubscriptionConfig, hours *data.ExchangeHours) *Security {
	return &Security{Symbol: config.Symbol, Config: config, Hours: hours, Leverage: 1}
}

// Update refreshes the market price from the update's last datum.
func (s *Security) Update(points []*model.DataPoint) {
	for _, dp := range points {
		if dp.Value != 0 {
			s.Price = dp.Value
		}
	}
}

// Registry is the set of registered securities. Writes happen only while the
// manager applies universe changes; reads take a shared token.
type Registry struct {
	lock       tools.ScopedLock
	securities map[string]*Security
}

func NewRegistry() *Registry {
	return &Registry{securities: make(map[string]*Security)}
}

func (r *Registry) Add(security *Security) {
	release := r.lock.Write()
	defer release()
	r.securities[security.Symbol.Value] = security
}

func (r *Registry) Remove(symbol model.Symbol) {
	release := r.lock.Write()
	defer release()
	delete(r.securities, symbol.Value)
}

func (r *Registry) Get(symbol model.Symbol) (*Security, bool) {
	release := r.lock.Read()
	defer release()
	s, ok := r.securities[symbol.Value]
	return s, ok
}

func (r *Registry) Contains(symbol model.Symbol) bool {
	_, ok := r.Get(symbol)
	return ok
}

// Snapshot returns the registered securities at this instant.
func (r *Registry) Snapshot() []*Security {
	release := r.lock.Read()
	defer release()
	out := make([]*Security, 0, len(r.securities))
	for _, s := range r.securities {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Len() int {
	release := r.lock.Read()
	defer release()
	return len(r.securities)
}
