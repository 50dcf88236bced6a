package feed

import (
	"time"

	"github.com/aricooperman/golean/model"
)

// Assembler merges per-subscription packets valid at one frontier into an
// immutable TimeSlice.
type Assembler struct {
	// TimeZone is the algorithm's local zone used to stamp the slice view.
	TimeZone *time.Location
	// CashCurrencies returns the currencies whose conversion rate the
	// symbol backs; nil means no cash book tracking.
	CashCurrencies func(symbol model.Symbol) []string
}

// Assemble builds the slice for the given UTC frontier.
func (a *Assembler) Assemble(utc time.Time, packets []*model.Packet,
	changes model.SecurityChanges) *model.TimeSlice {

	tz := a.TimeZone
	if tz == nil {
		tz = time.UTC
	}

	slice := model.NewSlice(utc.In(tz))
	ts := &model.TimeSlice{
		Time:            utc,
		Packets:         packets,
		Slice:           slice,
		SecurityChanges: changes,
	}

	for _, packet := range packets {
		update := model.SecurityUpdate{Symbol: packet.Config.Symbol}
		consolidator := &model.Packet{Config: packet.Config}

		for _, dp := range packet.Data {
			ts.DataCount += a.countPoints(dp)

			if dp.Type == model.DataTypeUniverse {
				a.applyUniverse(slice, dp)
				continue
			}

			if !packet.Config.IsInternal {
				ts.Data = append(ts.Data, dp)
			}

			if dp.IsAuxiliary() {
				a.routeAuxiliary(slice, dp)
				continue
			}

			a.routeMarketData(slice, dp)
			update.Data = append(update.Data, dp)
			if !packet.Config.IsInternal {
				consolidator.Data = append(consolidator.Data, dp)
			}
			if packet.Config.IsCustom {
				ts.CustomData = append(ts.CustomData, dp)
			}
		}

		if len(update.Data) > 0 {
			ts.SecuritiesUpdates = append(ts.SecuritiesUpdates, update)
		}
		if len(consolidator.Data) > 0 {
			ts.ConsolidatorUpdates = append(ts.ConsolidatorUpdates, consolidator)
		}

		a.appendCashUpdates(ts, packet)
	}

	a.resolveUnderlyings(slice)
	return ts
}

func (a *Assembler) countPoints(dp *model.DataPoint) int {
	if dp.Type == model.DataTypeUniverse && dp.Universe != nil {
		return len(dp.Universe.Data)
	}
	return 1
}

func (a *Assembler) routeAuxiliary(slice *model.Slice, dp *model.DataPoint) {
	key := dp.Symbol.Value
	switch dp.Aux.Kind {
	case model.AuxSplit:
		slice.Splits[key] = dp
	case model.AuxDividend:
		slice.Dividends[key] = dp
	case model.AuxDelistingWarning, model.AuxDelisted:
		slice.Delistings[key] = dp
	case model.AuxSymbolChanged:
		slice.SymbolChanges[key] = dp
	}
}

func (a *Assembler) routeMarketData(slice *model.Slice, dp *model.DataPoint) {
	key := dp.Symbol.Value
	switch dp.Type {
	case model.DataTypeTradeBar, model.DataTypeCustom:
		slice.Bars[key] = dp
	case model.DataTypeQuoteBar:
		slice.QuoteBars[key] = dp
	case model.DataTypeTick:
		slice.Ticks[key] = append(slice.Ticks[key], dp)
	}

	if dp.Symbol.SecurityType == model.SecurityTypeOption && !dp.Symbol.IsCanonicalOption() {
		a.updateContract(a.chainFor(slice, dp.Symbol), dp)
	}
}

// chainFor materialises the canonical chain for a contract's underlying.
func (a *Assembler) chainFor(slice *model.Slice, contract model.Symbol) *model.OptionChain {
	underlying := model.NewSymbol(contract.Underlying, model.SecurityTypeEquity, contract.Market)
	canonical := model.CanonicalOption(underlying)
	chain, ok := slice.OptionChains[canonical.Value]
	if !ok {
		chain = &model.OptionChain{
			Symbol:    canonical,
			Contracts: make(map[string]*model.OptionContract),
		}
		slice.OptionChains[canonical.Value] = chain
	}
	return chain
}

// updateContract folds a datum into its contract record: ticks route by
// kind, quote bars update the sides from their closes, trade bars update the
// last price.
func (a *Assembler) updateContract(chain *model.OptionChain, dp *model.DataPoint) {
	contract := chain.Contract(dp.Symbol)
	switch dp.Type {
	case model.DataTypeTick:
		tick := dp.Tick
		if tick.Kind == model.TickKindTrade {
			contract.LastPrice = tick.Price
			break
		}
		if tick.Bid != 0 {
			contract.Bid = tick.Bid
			contract.BidSize = tick.BidSize
		}
		if tick.Ask != 0 {
			contract.Ask = tick.Ask
			contract.AskSize = tick.AskSize
		}
	case model.DataTypeQuoteBar:
		quote := dp.Quote
		if quote.Bid.Close != 0 {
			contract.Bid = quote.Bid.Close
			contract.BidSize = quote.BidSize
		}
		if quote.Ask.Close != 0 {
			contract.Ask = quote.Ask.Close
			contract.AskSize = quote.AskSize
		}
	case model.DataTypeTradeBar:
		contract.LastPrice = dp.Bar.Close
	}
}

// applyUniverse folds an option universe collection into its chain; the
// datum itself is consumed and never routed further.
func (a *Assembler) applyUniverse(slice *model.Slice, dp *model.DataPoint) {
	if dp.Universe == nil {
		return
	}
	if dp.Symbol.IsCanonicalOption() {
		chain, ok := slice.OptionChains[dp.Symbol.Value]
		if !ok {
			chain = &model.OptionChain{
				Symbol:    dp.Symbol,
				Contracts: make(map[string]*model.OptionContract),
			}
			slice.OptionChains[dp.Symbol.Value] = chain
		}
		chain.FilteredContracts = dp.Universe.FilteredContracts
	}
}

func (a *Assembler) appendCashUpdates(ts *model.TimeSlice, packet *model.Packet) {
	if a.CashCurrencies == nil {
		return
	}
	currencies := a.CashCurrencies(packet.Config.Symbol)
	if len(currencies) == 0 {
		return
	}

	var latest *model.DataPoint
	for _, dp := range packet.Data {
		if !dp.IsAuxiliary() && dp.Type != model.DataTypeUniverse {
			latest = dp
		}
	}
	if latest == nil {
		return
	}
	for _, currency := range currencies {
		ts.CashUpdates = append(ts.CashUpdates, model.CashUpdate{Currency: currency, Data: latest})
	}
}

// resolveUnderlyings stamps each chain with the underlying's latest datum
// from the same slice.
func (a *Assembler) resolveUnderlyings(slice *model.Slice) {
	for _, chain := range slice.OptionChains {
		underlying := chain.Symbol.Underlying
		dp, ok := slice.Bars[underlying]
		if !ok {
			continue
		}
		chain.Underlying = dp
		for _, contract := range chain.Contracts {
			contract.UnderlyingLastPrice = dp.Value
		}
	}
}
