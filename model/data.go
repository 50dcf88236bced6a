package model

import (
	"time"
)

// DataType tags the variant carried by a DataPoint.
type DataType string

const (
	DataTypeTick        DataType = "tick"
	DataTypeTradeBar    DataType = "tradebar"
	DataTypeQuoteBar    DataType = "quotebar"
	DataTypeOptionChain DataType = "optionchain"
	DataTypeAuxiliary   DataType = "auxiliary"
	DataTypeUniverse    DataType = "universe"
	DataTypeCustom      DataType = "custom"
)

// AuxKind identifies the auxiliary event carried by an Auxiliary payload.
type AuxKind string

const (
	AuxSplit            AuxKind = "split"
	AuxDividend         AuxKind = "dividend"
	AuxDelistingWarning AuxKind = "delisting-warning"
	AuxDelisted         AuxKind = "delisted"
	AuxSymbolChanged    AuxKind = "symbol-changed"
)

// Bar is an OHLCV aggregate over one resolution period.
type Bar struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	Period time.Duration
}

// QuoteBar aggregates the bid and ask sides over one period.
type QuoteBar struct {
	Bid     Bar
	Ask     Bar
	BidSize float64
	AskSize float64
	Period  time.Duration
}

// Tick is a single trade print or quote update.
type Tick struct {
	Kind          TickKind
	Price         float64
	Quantity      float64
	Bid           float64
	Ask           float64
	BidSize       float64
	AskSize       float64
	Exchange      string
	SaleCondition string
	Suspicious    bool
}

// Auxiliary is a non-price event: split, dividend, delisting phase or ticker
// rename. Only the fields matching Kind are meaningful.
type Auxiliary struct {
	Kind AuxKind

	// split
	SplitFactor    float64
	ReferencePrice float64

	// dividend
	Distribution float64

	// symbol change
	OldSymbol string
	NewSymbol string
}

// UniverseCollection bundles data points produced by a universe subscription
// in a single step, plus the contracts selected by an option filter.
type UniverseCollection struct {
	Data              []*DataPoint
	FilteredContracts []Symbol
}

// DataPoint is the single datum type flowing through the pipeline. Type
// selects which payload pointer is set; Value mirrors the representative
// price (close, last or mid) so consumers that only need one number never
// unpack the payload.
type DataPoint struct {
	Symbol  Symbol
	Type    DataType
	EndTime time.Time // UTC
	Value   float64

	Tick     *Tick
	Bar      *Bar
	Quote    *QuoteBar
	Aux      *Auxiliary
	Universe *UniverseCollection
}

// IsAuxiliary reports whether the datum is a non-price event.
func (d *DataPoint) IsAuxiliary() bool {
	return d.Type == DataTypeAuxiliary
}

// Price returns the representative price of the datum.
func (d *DataPoint) Price() float64 { return d.Value }

// NewTradeBar builds a trade-bar datum; endTime is the bar close in UTC.
func NewTradeBar(symbol Symbol, endTime time.Time, bar Bar) *DataPoint {
	return &DataPoint{Symbol: symbol, Type: DataTypeTradeBar, EndTime: endTime, Value: bar.Close, Bar: &bar}
}

// NewQuoteBar builds a quote-bar datum valued at the closing mid price.
func NewQuoteBar(symbol Symbol, endTime time.Time, quote QuoteBar) *DataPoint {
	mid := (quote.Bid.Close + quote.Ask.Close) / 2
	if quote.Bid.Close == 0 {
		mid = quote.Ask.Close
	} else if quote.Ask.Close == 0 {
		mid = quote.Bid.Close
	}
	return &DataPoint{Symbol: symbol, Type: DataTypeQuoteBar, EndTime: endTime, Value: mid, Quote: &quote}
}

// NewTick builds a tick datum.
func NewTick(symbol Symbol, endTime time.Time, tick Tick) *DataPoint {
	value := tick.Price
	if tick.Kind == TickKindQuote {
		switch {
		case tick.Bid != 0 && tick.Ask != 0:
			value = (tick.Bid + tick.Ask) / 2
		case tick.Bid != 0:
			value = tick.Bid
		default:
			value = tick.Ask
		}
	}
	return &DataPoint{Symbol: symbol, Type: DataTypeTick, EndTime: endTime, Value: value, Tick: &tick}
}

// NewSplit builds a split auxiliary using the previous close as reference.
func NewSplit(symbol Symbol, date time.Time, referencePrice, factor float64) *DataPoint {
	return &DataPoint{
		Symbol: symbol, Type: DataTypeAuxiliary, EndTime: date, Value: referencePrice,
		Aux: &Auxiliary{Kind: AuxSplit, SplitFactor: factor, ReferencePrice: referencePrice},
	}
}

// NewDividend builds a dividend auxiliary with the given distribution.
func NewDividend(symbol Symbol, date time.Time, distribution float64) *DataPoint {
	return &DataPoint{
		Symbol: symbol, Type: DataTypeAuxiliary, EndTime: date, Value: distribution,
		Aux: &Auxiliary{Kind: AuxDividend, Distribution: distribution},
	}
}

// NewDelisting builds a delisting auxiliary in the given phase.
func NewDelisting(symbol Symbol, date time.Time, kind AuxKind) *DataPoint {
	return &DataPoint{Symbol: symbol, Type: DataTypeAuxiliary, EndTime: date, Aux: &Auxiliary{Kind: kind}}
}

// NewSymbolChanged builds a ticker-rename auxiliary.
func NewSymbolChanged(symbol Symbol, date time.Time, oldSymbol, newSymbol string) *DataPoint {
	return &DataPoint{
		Symbol: symbol, Type: DataTypeAuxiliary, EndTime: date,
		Aux: &Auxiliary{Kind: AuxSymbolChanged, OldSymbol: oldSymbol, NewSymbol: newSymbol},
	}
}

// Less orders data points by end time, breaking ties by symbol, so they can
// be queued in the shared priority queue.
func (d *DataPoint) Less(other Item) bool {
	o := other.(*DataPoint)
	if !d.EndTime.Equal(o.EndTime) {
		return d.EndTime.Before(o.EndTime)
	}
	return d.Symbol.Value < o.Symbol.Value
}
