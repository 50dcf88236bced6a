package data

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aricooperman/golean/model"
)

// FactorRow applies to every date at or before Date. PriceFactor carries the
// cumulative dividend adjustment, SplitFactor the cumulative split
// adjustment.
type FactorRow struct {
	Date        time.Time
	PriceFactor float64
	SplitFactor float64
}

// FactorFile is the per-symbol table of multiplicative price factors, sorted
// ascending by date. The row dated D is the last trading day before the
// corporate action takes effect.
type FactorFile struct {
	Symbol string
	Rows   []FactorRow
}

// FactorFileProvider resolves the factor file for a symbol; nil means raw
// prices.
type FactorFileProvider interface {
	FactorFile(symbol string) *FactorFile
}

// ParseFactorFile reads rows of the form yyyymmdd,priceFactor,splitFactor.
func ParseFactorFile(symbol string, r io.Reader) (*FactorFile, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("factor file %s: %w", symbol, err)
	}

	file := &FactorFile{Symbol: strings.ToUpper(symbol)}
	for _, record := range records {
		if len(record) < 3 {
			continue
		}
		date, err := time.Parse(dateFormat, strings.TrimSpace(record[0]))
		if err != nil {
			return nil, fmt.Errorf("factor file %s: %w", symbol, err)
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("factor file %s: %w", symbol, err)
		}
		split, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("factor file %s: %w", symbol, err)
		}
		file.Rows = append(file.Rows, FactorRow{Date: date, PriceFactor: price, SplitFactor: split})
	}
	sort.Slice(file.Rows, func(i, j int) bool { return file.Rows[i].Date.Before(file.Rows[j].Date) })
	return file, nil
}

// FactorsAt returns the cumulative price and split factors applying on the
// given date. Dates past the last row scale by one.
func (f *FactorFile) FactorsAt(date time.Time) (price, split float64) {
	if f == nil {
		return 1, 1
	}
	day := date.Truncate(24 * time.Hour)
	for _, row := range f.Rows {
		if !day.After(row.Date) {
			return row.PriceFactor, row.SplitFactor
		}
	}
	return 1, 1
}

// PriceScaleFactor returns the multiplier for the given normalization mode on
// the given date.
func (f *FactorFile) PriceScaleFactor(mode model.NormalizationMode, date time.Time) float64 {
	price, split := f.FactorsAt(date)
	switch mode {
	case model.NormalizationRaw:
		return 1
	case model.NormalizationSplitAdjusted, model.NormalizationTotalReturn:
		return split
	default: // adjusted
		return price * split
	}
}

// ChangeOn reports the factor ratios of the row dated on the given trading
// day; a split or dividend takes effect on the following trading day. ok is
// false when no row carries that date.
func (f *FactorFile) ChangeOn(date time.Time) (splitRatio, priceRatio float64, ok bool) {
	if f == nil {
		return 1, 1, false
	}
	day := date.Truncate(24 * time.Hour)
	for i, row := range f.Rows {
		if !row.Date.Equal(day) {
			continue
		}
		nextPrice, nextSplit := 1.0, 1.0
		if i+1 < len(f.Rows) {
			nextPrice = f.Rows[i+1].PriceFactor
			nextSplit = f.Rows[i+1].SplitFactor
		}
		return row.SplitFactor / nextSplit, row.PriceFactor / nextPrice, true
	}
	return 1, 1, false
}
