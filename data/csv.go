package data

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aricooperman/golean/model"
)

const priceScale = 10000.0

// barTimeFormat is the timestamp used by hour and daily rows.
const barTimeFormat = "20060102 15:04"

// ParseRow decodes one csv row into a raw, unnormalized data point. For
// intraday rows date is midnight of the trade date in the data time zone;
// hour and daily rows carry their own timestamp.
func ParseRow(config *model.SubscriptionConfig, date time.Time, fields []string) (*model.DataPoint, error) {
	switch config.SecurityType {
	case model.SecurityTypeCommodity, model.SecurityTypeFuture:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSecurityType, config.SecurityType)
	}

	if config.Resolution == model.ResolutionTick {
		return parseTick(config, date, fields)
	}
	return parseBar(config, date, fields)
}

func parseTick(config *model.SubscriptionConfig, date time.Time, fields []string) (*model.DataPoint, error) {
	millis, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("tick time: %w", err)
	}
	at := date.Add(time.Duration(millis) * time.Millisecond).UTC()

	switch config.SecurityType {
	case model.SecurityTypeForex, model.SecurityTypeCfd, model.SecurityTypeCrypto:
		if len(fields) < 3 {
			return nil, fmt.Errorf("quote tick: want 3 fields, got %d", len(fields))
		}
		bid, err := parseFloat(fields[1])
		if err != nil {
			return nil, err
		}
		ask, err := parseFloat(fields[2])
		if err != nil {
			return nil, err
		}
		return model.NewTick(config.Symbol, at, model.Tick{
			Kind: model.TickKindQuote, Bid: bid, Ask: ask,
		}), nil

	case model.SecurityTypeOption:
		if config.TickKind == model.TickKindQuote {
			if len(fields) < 7 {
				return nil, fmt.Errorf("option quote tick: want 7 fields, got %d", len(fields))
			}
			bid, err := parseScaled(fields[1])
			if err != nil {
				return nil, err
			}
			bidSize, err := parseFloat(fields[2])
			if err != nil {
				return nil, err
			}
			ask, err := parseScaled(fields[3])
			if err != nil {
				return nil, err
			}
			askSize, err := parseFloat(fields[4])
			if err != nil {
				return nil, err
			}
			return model.NewTick(config.Symbol, at, model.Tick{
				Kind: model.TickKindQuote,
				Bid:  bid, BidSize: bidSize,
				Ask: ask, AskSize: askSize,
				Exchange:   fields[5],
				Suspicious: fields[6] == "1",
			}), nil
		}
		fallthrough

	default:
		// equity trade tick and option trade tick share the layout
		if len(fields) < 6 {
			return nil, fmt.Errorf("trade tick: want 6 fields, got %d", len(fields))
		}
		price, err := parseScaled(fields[1])
		if err != nil {
			return nil, err
		}
		quantity, err := parseFloat(fields[2])
		if err != nil {
			return nil, err
		}
		return model.NewTick(config.Symbol, at, model.Tick{
			Kind:          model.TickKindTrade,
			Price:         price,
			Quantity:      quantity,
			Exchange:      fields[3],
			SaleCondition: fields[4],
			Suspicious:    fields[5] == "1",
		}), nil
	}
}

func parseBar(config *model.SubscriptionConfig, date time.Time, fields []string) (*model.DataPoint, error) {
	scaled := config.SecurityType == model.SecurityTypeEquity ||
		config.SecurityType == model.SecurityTypeOption
	withVolume := config.SecurityType != model.SecurityTypeForex &&
		config.SecurityType != model.SecurityTypeCfd

	want := 5
	if withVolume {
		want = 6
	}
	if len(fields) < want {
		return nil, fmt.Errorf("bar: want %d fields, got %d", want, len(fields))
	}

	var start time.Time
	if config.Resolution.IsIntraday() {
		millis, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bar time: %w", err)
		}
		start = date.Add(time.Duration(millis) * time.Millisecond)
	} else {
		var err error
		start, err = time.ParseInLocation(barTimeFormat, fields[0], config.DataTimeZone)
		if err != nil {
			return nil, fmt.Errorf("bar time: %w", err)
		}
	}

	parse := parseFloat
	if scaled {
		parse = parseScaled
	}
	open, err := parse(fields[1])
	if err != nil {
		return nil, err
	}
	high, err := parse(fields[2])
	if err != nil {
		return nil, err
	}
	low, err := parse(fields[3])
	if err != nil {
		return nil, err
	}
	closePrice, err := parse(fields[4])
	if err != nil {
		return nil, err
	}

	var volume float64
	if withVolume {
		volume, err = parseFloat(fields[5])
		if err != nil {
			return nil, err
		}
	}

	period := config.Resolution.Duration()
	return model.NewTradeBar(config.Symbol, start.Add(period).UTC(), model.Bar{
		Open: open, High: high, Low: low, Close: closePrice,
		Volume: volume, Period: period,
	}), nil
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("price: %w", err)
	}
	return v, nil
}

func parseScaled(s string) (float64, error) {
	v, err := parseFloat(s)
	if err != nil {
		return 0, err
	}
	return v / priceScale, nil
}
