package data

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aricooperman/golean/model"
	"github.com/aricooperman/golean/tools"
)

// SegmentKind classifies one session segment of a trading day.
type SegmentKind string

const (
	SegmentPreMarket  SegmentKind = "pre-market"
	SegmentMarket     SegmentKind = "market"
	SegmentPostMarket SegmentKind = "post-market"
)

// Segment is a half-open [Start, End) interval in exchange-local time.
type Segment struct {
	Kind  SegmentKind `json:"kind"`
	Start string      `json:"start"`
	End   string      `json:"end"`
}

// holidayFormat follows the invariant culture M/d/yyyy.
const holidayFormat = "1/2/2006"

type marketHoursEntry struct {
	DataTimeZone     string    `json:"dataTimeZone"`
	ExchangeTimeZone string    `json:"exchangeTimeZone"`
	Sunday           []Segment `json:"sunday"`
	Monday           []Segment `json:"monday"`
	Tuesday          []Segment `json:"tuesday"`
	Wednesday        []Segment `json:"wednesday"`
	Thursday         []Segment `json:"thursday"`
	Friday           []Segment `json:"friday"`
	Saturday         []Segment `json:"saturday"`
	Holidays         []string  `json:"holidays"`
}

type marketHoursFile struct {
	Entries map[string]marketHoursEntry `json:"entries"`
}

// ExchangeHours describes one security's trading calendar and time zones.
type ExchangeHours struct {
	DataTimeZone     *time.Location
	ExchangeTimeZone *time.Location

	segments map[time.Weekday][]Segment
	holidays map[string]struct{}
}

// MarketHoursDatabase maps "<securityType>-<market>-<symbol>" entries to
// exchange hours, with a "[*]" symbol wildcard fallback.
type MarketHoursDatabase struct {
	entries map[string]*ExchangeHours
}

// ParseMarketHoursDatabase decodes the JSON database.
func ParseMarketHoursDatabase(r io.Reader) (*MarketHoursDatabase, error) {
	var file marketHoursFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("market hours database: %w", err)
	}

	db := &MarketHoursDatabase{entries: make(map[string]*ExchangeHours)}
	for key, entry := range file.Entries {
		hours, err := newExchangeHours(entry)
		if err != nil {
			return nil, fmt.Errorf("market hours entry %s: %w", key, err)
		}
		db.entries[strings.ToLower(key)] = hours
	}
	return db, nil
}

// Get resolves the hours for a symbol, falling back to the market wildcard.
func (db *MarketHoursDatabase) Get(securityType model.SecurityType, market, symbol string) (*ExchangeHours, error) {
	key := strings.ToLower(fmt.Sprintf("%s-%s-%s", securityType, market, symbol))
	if hours, ok := db.entries[key]; ok {
		return hours, nil
	}
	wildcard := strings.ToLower(fmt.Sprintf("%s-%s-[*]", securityType, market))
	if hours, ok := db.entries[wildcard]; ok {
		return hours, nil
	}
	return nil, fmt.Errorf("market hours not found for %s", key)
}

func newExchangeHours(entry marketHoursEntry) (*ExchangeHours, error) {
	dataTZ, err := time.LoadLocation(entry.DataTimeZone)
	if err != nil {
		return nil, err
	}
	exchangeTZ, err := time.LoadLocation(entry.ExchangeTimeZone)
	if err != nil {
		return nil, err
	}

	hours := &ExchangeHours{
		DataTimeZone:     dataTZ,
		ExchangeTimeZone: exchangeTZ,
		segments: map[time.Weekday][]Segment{
			time.Sunday:    entry.Sunday,
			time.Monday:    entry.Monday,
			time.Tuesday:   entry.Tuesday,
			time.Wednesday: entry.Wednesday,
			time.Thursday:  entry.Thursday,
			time.Friday:    entry.Friday,
			time.Saturday:  entry.Saturday,
		},
		holidays: make(map[string]struct{}, len(entry.Holidays)),
	}
	for _, holiday := range entry.Holidays {
		date, err := time.Parse(holidayFormat, holiday)
		if err != nil {
			return nil, err
		}
		hours.holidays[date.Format(dateFormat)] = struct{}{}
	}
	return hours, nil
}

// AlwaysOpenHours is used by custom data and crypto subscriptions.
func AlwaysOpenHours(tz *time.Location) *ExchangeHours {
	allDay := []Segment{{Kind: SegmentMarket, Start: "00:00:00", End: "24:00:00"}}
	return &ExchangeHours{
		DataTimeZone:     tz,
		ExchangeTimeZone: tz,
		segments: map[time.Weekday][]Segment{
			time.Sunday: allDay, time.Monday: allDay, time.Tuesday: allDay,
			time.Wednesday: allDay, time.Thursday: allDay, time.Friday: allDay,
			time.Saturday: allDay,
		},
		holidays: map[string]struct{}{},
	}
}

// IsDateOpen reports whether the exchange trades at all on the given date.
func (h *ExchangeHours) IsDateOpen(date time.Time) bool {
	if _, holiday := h.holidays[date.Format(dateFormat)]; holiday {
		return false
	}
	for _, segment := range h.segments[date.Weekday()] {
		if segment.Kind == SegmentMarket {
			return true
		}
	}
	return false
}

// MarketClose returns the regular close time on the given date in the
// exchange time zone.
func (h *ExchangeHours) MarketClose(date time.Time) time.Time {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, h.ExchangeTimeZone)
	var latest time.Duration
	for _, segment := range h.segments[date.Weekday()] {
		if segment.Kind != SegmentMarket {
			continue
		}
		if end, err := parseClock(segment.End); err == nil && end > latest {
			latest = end
		}
	}
	return day.Add(latest)
}

func parseClock(s string) (time.Duration, error) {
	var hh, mm, ss int
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &hh, &mm, &ss); err != nil {
		return 0, err
	}
	return time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute + time.Duration(ss)*time.Second, nil
}

// TradeableDates enumerates the open dates in [start, finish] in the exchange
// time zone, one per day at midnight.
func TradeableDates(hours *ExchangeHours, start, finish time.Time) tools.Enumerator[time.Time] {
	current := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, hours.ExchangeTimeZone)
	end := time.Date(finish.Year(), finish.Month(), finish.Day(), 0, 0, 0, 0, hours.ExchangeTimeZone)

	return tools.NewFuncEnumerator(func() (time.Time, bool) {
		for !current.After(end) {
			date := current
			current = current.AddDate(0, 0, 1)
			if hours.IsDateOpen(date) {
				return date, true
			}
		}
		return time.Time{}, false
	})
}
