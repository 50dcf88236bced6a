package model

import (
	"time"
)

// Packet carries the data points one subscription produced for a single
// frontier advance.
type Packet struct {
	Config *SubscriptionConfig
	Data   []*DataPoint
}

// OptionContract is one leg of a materialised option chain.
type OptionContract struct {
	Symbol              Symbol
	LastPrice           float64
	Bid                 float64
	Ask                 float64
	BidSize             float64
	AskSize             float64
	UnderlyingLastPrice float64
}

// OptionChain groups every contract of one underlying under the canonical
// chain symbol, frozen once the slice is assembled.
type OptionChain struct {
	Symbol            Symbol
	Underlying        *DataPoint
	Contracts         map[string]*OptionContract
	FilteredContracts []Symbol
}

// Contract returns the contract for the given symbol, creating it on first
// touch during assembly.
func (c *OptionChain) Contract(symbol Symbol) *OptionContract {
	if contract, ok := c.Contracts[symbol.Value]; ok {
		return contract
	}
	contract := &OptionContract{Symbol: symbol}
	c.Contracts[symbol.Value] = contract
	return contract
}

// Slice is the user-facing view of one time slice, keyed by symbol value and
// stamped with the algorithm's local time.
type Slice struct {
	Time time.Time

	Bars          map[string]*DataPoint
	QuoteBars     map[string]*DataPoint
	Ticks         map[string][]*DataPoint
	OptionChains  map[string]*OptionChain
	Splits        map[string]*DataPoint
	Dividends     map[string]*DataPoint
	Delistings    map[string]*DataPoint
	SymbolChanges map[string]*DataPoint
}

func NewSlice(localTime time.Time) *Slice {
	return &Slice{
		Time:          localTime,
		Bars:          make(map[string]*DataPoint),
		QuoteBars:     make(map[string]*DataPoint),
		Ticks:         make(map[string][]*DataPoint),
		OptionChains:  make(map[string]*OptionChain),
		Splits:        make(map[string]*DataPoint),
		Dividends:     make(map[string]*DataPoint),
		Delistings:    make(map[string]*DataPoint),
		SymbolChanges: make(map[string]*DataPoint),
	}
}

// SecurityUpdate carries the data used to refresh one security's market
// price.
type SecurityUpdate struct {
	Symbol Symbol
	Data   []*DataPoint
}

// CashUpdate refreshes the conversion rate of one cash holding from the
// latest datum of its backing symbol.
type CashUpdate struct {
	Currency string
	Data     *DataPoint
}

// SecurityChanges is the universe-selection delta applied with a slice.
type SecurityChanges struct {
	Added   []Symbol
	Removed []Symbol
}

func (s SecurityChanges) Count() int { return len(s.Added) + len(s.Removed) }

// Merge combines two deltas, later removals winning over earlier additions.
func (s SecurityChanges) Merge(other SecurityChanges) SecurityChanges {
	merged := SecurityChanges{
		Added:   append(append([]Symbol{}, s.Added...), other.Added...),
		Removed: append(append([]Symbol{}, s.Removed...), other.Removed...),
	}
	return merged
}

// TimeSlice is the atomic unit consumed by the algorithm manager: every datum
// valid at the UTC frontier, pre-sorted into the structures each step of the
// iteration consumes.
type TimeSlice struct {
	Time      time.Time // UTC frontier
	DataCount int

	Packets             []*Packet
	Slice               *Slice
	Data                []*DataPoint
	SecuritiesUpdates   []SecurityUpdate
	CashUpdates         []CashUpdate
	ConsolidatorUpdates []*Packet
	CustomData          []*DataPoint
	SecurityChanges     SecurityChanges
}
