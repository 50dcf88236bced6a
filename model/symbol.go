package model

import (
	"fmt"
	"strings"
	"time"
)

type SecurityType string

const (
	SecurityTypeEquity    SecurityType = "equity"
	SecurityTypeForex     SecurityType = "forex"
	SecurityTypeCfd       SecurityType = "cfd"
	SecurityTypeOption    SecurityType = "option"
	SecurityTypeCrypto    SecurityType = "crypto"
	SecurityTypeCommodity SecurityType = "commodity"
	SecurityTypeFuture    SecurityType = "future"
)

type Resolution string

const (
	ResolutionTick   Resolution = "tick"
	ResolutionSecond Resolution = "second"
	ResolutionMinute Resolution = "minute"
	ResolutionHour   Resolution = "hour"
	ResolutionDaily  Resolution = "daily"
)

// Duration returns the bar period of the resolution. Tick has no period and
// reports zero.
func (r Resolution) Duration() time.Duration {
	switch r {
	case ResolutionSecond:
		return time.Second
	case ResolutionMinute:
		return time.Minute
	case ResolutionHour:
		return time.Hour
	case ResolutionDaily:
		return 24 * time.Hour
	default:
		return 0
	}
}

// IsIntraday reports whether data for the resolution is stored in per-day
// source files.
func (r Resolution) IsIntraday() bool {
	return r == ResolutionTick || r == ResolutionSecond || r == ResolutionMinute
}

type TickKind string

const (
	TickKindTrade TickKind = "trade"
	TickKindQuote TickKind = "quote"
)

type OptionRight string

const (
	OptionRightCall OptionRight = "call"
	OptionRightPut  OptionRight = "put"
)

type OptionStyle string

const (
	OptionStyleAmerican OptionStyle = "american"
	OptionStyleEuropean OptionStyle = "european"
)

// Symbol identifies a tradeable instrument. For options the underlying and
// the contract identity fields are set; the canonical chain symbol carries
// the underlying with a zero strike and expiry.
type Symbol struct {
	Value        string
	SecurityType SecurityType
	Market       string

	Underlying string
	Right      OptionRight
	Style      OptionStyle
	Strike     float64
	Expiry     time.Time
}

func NewSymbol(value string, securityType SecurityType, market string) Symbol {
	return Symbol{Value: strings.ToUpper(value), SecurityType: securityType, Market: market}
}

// NewOptionSymbol builds a contract symbol for the given underlying.
func NewOptionSymbol(underlying Symbol, style OptionStyle, right OptionRight,
	strike float64, expiry time.Time) Symbol {

	value := fmt.Sprintf("%s %s %s %.2f %s",
		underlying.Value, strings.ToUpper(string(style))[:1]+string(style)[1:],
		right, strike, expiry.Format("20060102"))
	return Symbol{
		Value:        value,
		SecurityType: SecurityTypeOption,
		Market:       underlying.Market,
		Underlying:   underlying.Value,
		Right:        right,
		Style:        style,
		Strike:       strike,
		Expiry:       expiry,
	}
}

// CanonicalOption returns the chain symbol for an underlying, shared by every
// contract of that underlying.
func CanonicalOption(underlying Symbol) Symbol {
	return Symbol{
		Value:        "?" + underlying.Value,
		SecurityType: SecurityTypeOption,
		Market:       underlying.Market,
		Underlying:   underlying.Value,
	}
}

func (s Symbol) IsCanonicalOption() bool {
	return s.SecurityType == SecurityTypeOption && strings.HasPrefix(s.Value, "?")
}

func (s Symbol) IsEmpty() bool { return s.Value == "" }

func (s Symbol) String() string { return s.Value }
