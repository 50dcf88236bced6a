package model

import (
	"time"
)

// NormalizationMode selects how the subscription reader scales raw prices.
type NormalizationMode string

const (
	NormalizationRaw           NormalizationMode = "raw"
	NormalizationAdjusted      NormalizationMode = "adjusted"
	NormalizationSplitAdjusted NormalizationMode = "split-adjusted"
	NormalizationTotalReturn   NormalizationMode = "total-return"
)

// SubscriptionConfig identifies one configured data source. All fields except
// MappedSymbol are fixed at creation; MappedSymbol tracks ticker renames and
// is written only by the subscription reader.
type SubscriptionConfig struct {
	Symbol        Symbol
	SecurityType  SecurityType
	Resolution    Resolution
	DataTimeZone  *time.Location
	ExchangeTZ    *time.Location
	ExtendedHours bool
	FillForward   bool
	IsCustom      bool
	IsInternal    bool
	IsFiltered    bool
	DataType      DataType
	TickKind      TickKind
	Normalization NormalizationMode

	MappedSymbol string
}

// NewSubscriptionConfig fills the identity fields and defaults MappedSymbol
// to the symbol itself.
func NewSubscriptionConfig(symbol Symbol, resolution Resolution,
	dataTZ, exchangeTZ *time.Location) *SubscriptionConfig {

	return &SubscriptionConfig{
		Symbol:        symbol,
		SecurityType:  symbol.SecurityType,
		Resolution:    resolution,
		DataTimeZone:  dataTZ,
		ExchangeTZ:    exchangeTZ,
		FillForward:   true,
		DataType:      DataTypeTradeBar,
		TickKind:      TickKindTrade,
		Normalization: NormalizationAdjusted,
		MappedSymbol:  symbol.Value,
	}
}

// Equal compares the immutable identity fields; MappedSymbol is ignored.
func (c *SubscriptionConfig) Equal(other *SubscriptionConfig) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.Symbol == other.Symbol &&
		c.SecurityType == other.SecurityType &&
		c.Resolution == other.Resolution &&
		c.DataTimeZone == other.DataTimeZone &&
		c.ExchangeTZ == other.ExchangeTZ &&
		c.ExtendedHours == other.ExtendedHours &&
		c.FillForward == other.FillForward &&
		c.IsCustom == other.IsCustom &&
		c.IsInternal == other.IsInternal &&
		c.IsFiltered == other.IsFiltered &&
		c.DataType == other.DataType &&
		c.TickKind == other.TickKind
}
