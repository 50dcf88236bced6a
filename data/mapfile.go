package data

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// MapFileRow records the ticker in effect up to and including Date.
type MapFileRow struct {
	Date   time.Time
	Ticker string
}

// MapFile is the per-symbol table of ticker remappings and first/last trading
// dates. Rows are kept sorted ascending by date; the last row's date is the
// delisting date.
type MapFile struct {
	Symbol string
	Rows   []MapFileRow
}

// MapFileProvider resolves the map file for a symbol; a nil file means the
// symbol has no mapping history (custom data, forex...).
type MapFileProvider interface {
	MapFile(symbol string) *MapFile
}

// ParseMapFile reads rows of the form yyyymmdd,ticker.
func ParseMapFile(symbol string, r io.Reader) (*MapFile, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("map file %s: %w", symbol, err)
	}

	file := &MapFile{Symbol: strings.ToUpper(symbol)}
	for _, record := range records {
		if len(record) < 2 {
			continue
		}
		date, err := time.Parse(dateFormat, strings.TrimSpace(record[0]))
		if err != nil {
			return nil, fmt.Errorf("map file %s: %w", symbol, err)
		}
		file.Rows = append(file.Rows, MapFileRow{
			Date:   date,
			Ticker: strings.ToUpper(strings.TrimSpace(record[1])),
		})
	}
	sort.Slice(file.Rows, func(i, j int) bool { return file.Rows[i].Date.Before(file.Rows[j].Date) })
	return file, nil
}

// FirstDate is the first trading date covered by the map file.
func (m *MapFile) FirstDate() time.Time {
	if m == nil || len(m.Rows) == 0 {
		return time.Time{}
	}
	return m.Rows[0].Date
}

// DelistingDate is the last trading date; data after it does not exist.
func (m *MapFile) DelistingDate() time.Time {
	if m == nil || len(m.Rows) == 0 {
		return time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	}
	return m.Rows[len(m.Rows)-1].Date
}

// HasData reports whether the symbol traded on the given date.
func (m *MapFile) HasData(date time.Time) bool {
	if m == nil || len(m.Rows) == 0 {
		return true
	}
	day := date.Truncate(24 * time.Hour)
	return !day.Before(m.FirstDate()) && !day.After(m.DelistingDate())
}

// MappedSymbol returns the ticker in effect on the given date.
func (m *MapFile) MappedSymbol(date time.Time) string {
	if m == nil || len(m.Rows) == 0 {
		return ""
	}
	day := date.Truncate(24 * time.Hour)
	for _, row := range m.Rows {
		if !day.After(row.Date) {
			return row.Ticker
		}
	}
	return m.Rows[len(m.Rows)-1].Ticker
}
