// Package data implements the on-disk market data layer: deterministic
// zip/csv source paths, row codecs, map files, factor files and the
// market-hours database.
package data

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/aricooperman/golean/model"
)

var ErrUnsupportedSecurityType = errors.New("unsupported security type")

const dateFormat = "20060102"

// Source locates one day (or one full history for hour/daily) of data for a
// subscription: the zip file below the data root and the csv entry inside it.
type Source struct {
	ZipPath string
	Entry   string
}

// SourceFor computes the deterministic source location for the given
// subscription config and trade date. Commodity and future types are declared
// in the model but have no path scheme and are rejected.
func SourceFor(config *model.SubscriptionConfig, date time.Time) (Source, error) {
	symbol := config.Symbol
	switch symbol.SecurityType {
	case model.SecurityTypeCommodity, model.SecurityTypeFuture:
		return Source{}, fmt.Errorf("%w: %s", ErrUnsupportedSecurityType, symbol.SecurityType)
	case model.SecurityTypeOption:
		return optionSource(config, date), nil
	default:
		return securitySource(config, date), nil
	}
}

func securitySource(config *model.SubscriptionConfig, date time.Time) Source {
	symbol := strings.ToLower(config.MappedSymbol)
	if symbol == "" {
		symbol = strings.ToLower(config.Symbol.Value)
	}
	root := filepath.Join(
		string(config.SecurityType),
		strings.ToLower(config.Symbol.Market),
		string(config.Resolution),
	)

	if !config.Resolution.IsIntraday() {
		return Source{
			ZipPath: filepath.Join(root, symbol+".zip"),
			Entry:   symbol + ".csv",
		}
	}

	day := date.Format(dateFormat)
	kind := string(config.TickKind)
	return Source{
		ZipPath: filepath.Join(root, symbol, fmt.Sprintf("%s_%s.zip", day, kind)),
		Entry: fmt.Sprintf("%s_%s_%s_%s.csv",
			day, symbol, config.Resolution, kind),
	}
}

func optionSource(config *model.SubscriptionConfig, date time.Time) Source {
	symbol := config.Symbol
	underlying := strings.ToLower(symbol.Underlying)
	root := filepath.Join(
		string(model.SecurityTypeOption),
		strings.ToLower(symbol.Market),
		string(config.Resolution),
	)
	kind := string(config.TickKind)
	style := strings.ToLower(string(symbol.Style))
	contract := fmt.Sprintf("%s_%d_%s",
		strings.ToLower(string(symbol.Right)),
		ScaledStrike(symbol.Strike),
		symbol.Expiry.Format(dateFormat))

	if config.Resolution.IsIntraday() {
		day := date.Format(dateFormat)
		return Source{
			ZipPath: filepath.Join(root, underlying,
				fmt.Sprintf("%s_%s_%s.zip", day, kind, style)),
			Entry: fmt.Sprintf("%s_%s_%s_%s_%s_%s.csv",
				day, underlying, config.Resolution, kind, style, contract),
		}
	}

	return Source{
		ZipPath: filepath.Join(root,
			fmt.Sprintf("%s_%s_%s.zip", underlying, kind, style)),
		Entry: fmt.Sprintf("%s_%s_%s_%s.csv",
			underlying, kind, style, contract),
	}
}

// ScaledStrike serialises a strike price as round(price x 10000).
func ScaledStrike(price float64) int64 {
	return int64(math.Round(price * 10000))
}
