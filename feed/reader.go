package feed

import (
	"strings"
	"time"

	"github.com/aricooperman/golean/data"
	"github.com/aricooperman/golean/model"
	"github.com/aricooperman/golean/tools"
)

// SourceFunc resolves the csv rows of one trade date; the default reads the
// zip layout under the data root.
type SourceFunc func(config *model.SubscriptionConfig, date time.Time) ([][]string, error)

// FileSource builds a SourceFunc over the on-disk layout rooted at root.
func FileSource(root string) SourceFunc {
	return func(config *model.SubscriptionConfig, date time.Time) ([][]string, error) {
		src, err := data.SourceFor(config, date)
		if err != nil {
			return nil, err
		}
		return data.ReadSource(root, src)
	}
}

// ReaderSignals surface reader-side problems to the result handler. Both are
// optional.
type ReaderSignals struct {
	OnInvalidSource func(source string, err error)
	OnReaderError   func(err error)
}

func (s ReaderSignals) invalidSource(source string, err error) {
	if s.OnInvalidSource != nil {
		s.OnInvalidSource(source, err)
	}
}

func (s ReaderSignals) readerError(err error) {
	if s.OnReaderError != nil {
		s.OnReaderError(err)
	}
}

// normalizer applies the subscription's price normalization and remembers
// the state needed to invert it.
type normalizer struct {
	mode         model.NormalizationMode
	factor       float64
	sumDividends float64
}

func (n *normalizer) scale(p float64) float64 {
	switch n.mode {
	case model.NormalizationRaw:
		return p
	case model.NormalizationTotalReturn:
		return p*n.factor + n.sumDividends
	default:
		return p * n.factor
	}
}

// rawClose inverts the applied normalization for the given scaled value.
func (n *normalizer) rawClose(scaled float64) float64 {
	switch n.mode {
	case model.NormalizationRaw:
		return scaled
	case model.NormalizationTotalReturn:
		return (scaled - n.sumDividends) / n.factor
	default:
		return scaled / n.factor
	}
}

// Reader walks per-day sources for one subscription and emits normalized
// price data interleaved with the auxiliary events discovered from the map
// and factor files.
type Reader struct {
	config     *model.SubscriptionConfig
	hours      *data.ExchangeHours
	start      time.Time
	finish     time.Time
	dates      tools.Enumerator[time.Time]
	mapFile    *data.MapFile
	factorFile *data.FactorFile
	source     SourceFunc
	signals    ReaderSignals

	norm     normalizer
	current  *model.DataPoint
	pending  *model.DataPoint
	auxQueue []*model.DataPoint

	allRows  [][]string // whole-file cache for hour/daily
	rows     [][]string
	rowIdx   int
	dayStart time.Time
	prevDate time.Time

	lastEnd      time.Time
	lastRawClose float64
	auxSeen      *tools.DedupQueue[string]
	exhausted    bool
	closed       bool
}

// NewReader wires a subscription reader. mapFile and factorFile may be nil
// for data without corporate actions.
func NewReader(config *model.SubscriptionConfig, hours *data.ExchangeHours,
	start, finish time.Time, dates tools.Enumerator[time.Time],
	mapFile *data.MapFile, factorFile *data.FactorFile,
	source SourceFunc, signals ReaderSignals) *Reader {

	r := &Reader{
		config:     config,
		hours:      hours,
		start:      start,
		finish:     finish,
		dates:      dates,
		mapFile:    mapFile,
		factorFile: factorFile,
		source:     source,
		signals:    signals,
		norm:       normalizer{mode: config.Normalization, factor: 1},
		auxSeen:    tools.NewDedupQueue[string](128),
	}
	return r
}

// queueAux appends an auxiliary event at most once per kind and date,
// reporting whether it was queued.
func (r *Reader) queueAux(dp *model.DataPoint) bool {
	if !r.auxSeen.TryAdd(auxKey(dp.Aux.Kind, dp.EndTime)) {
		return false
	}
	r.auxQueue = append(r.auxQueue, dp)
	return true
}

func auxKey(kind model.AuxKind, at time.Time) string {
	return string(kind) + "|" + at.Format("20060102")
}

func (r *Reader) Current() *model.DataPoint { return r.current }

func (r *Reader) Close() error {
	r.closed = true
	return r.dates.Close()
}

func (r *Reader) MoveNext() bool {
	if r.closed {
		return false
	}
	for {
		// queued auxiliaries go out before the pending price instance,
		// but only once they are strictly earlier than it
		if len(r.auxQueue) > 0 {
			aux := r.auxQueue[0]
			if r.pending == nil || aux.EndTime.Before(r.pending.EndTime) {
				r.auxQueue = r.auxQueue[1:]
				r.current = aux
				return true
			}
		}

		if r.pending == nil {
			if r.exhausted || !r.loadNextPrice() {
				if len(r.auxQueue) > 0 {
					r.current = r.auxQueue[0]
					r.auxQueue = r.auxQueue[1:]
					return true
				}
				return false
			}
			continue
		}

		r.current = r.pending
		r.pending = nil
		return true
	}
}

// loadNextPrice fills r.pending with the next acceptable price datum,
// advancing dates as day sources drain.
func (r *Reader) loadNextPrice() bool {
	for {
		for r.rowIdx < len(r.rows) {
			row := r.rows[r.rowIdx]
			r.rowIdx++

			dp, err := data.ParseRow(r.config, r.dayStart, row)
			if err != nil {
				r.signals.readerError(err)
				continue
			}
			if dp.EndTime.After(r.finish) {
				r.exhausted = true
				return false
			}
			if dp.EndTime.Before(r.start) {
				r.lastRawClose = r.rawCloseOf(dp)
				continue
			}
			if !r.acceptTime(dp) {
				continue
			}
			if r.config.IsFiltered && dp.Tick != nil && dp.Tick.Suspicious {
				continue
			}

			r.lastRawClose = r.rawCloseOf(dp)
			r.applyNormalization(dp)
			r.lastEnd = dp.EndTime
			r.pending = dp
			return true
		}

		if !r.advanceDate() {
			return false
		}
	}
}

// acceptTime enforces the per-subscription ordering rules.
func (r *Reader) acceptTime(dp *model.DataPoint) bool {
	if r.lastEnd.IsZero() {
		return true
	}
	if r.config.IsCustom {
		// out-of-order custom data is skipped, equal times pass
		return !dp.EndTime.Before(r.lastEnd)
	}
	if r.config.Resolution == model.ResolutionTick {
		return !dp.EndTime.Before(r.lastEnd)
	}
	return dp.EndTime.After(r.lastEnd)
}

// rawCloseOf extracts the raw close before normalization is applied.
func (r *Reader) rawCloseOf(dp *model.DataPoint) float64 {
	if dp.Bar != nil {
		return dp.Bar.Close
	}
	return dp.Value
}

func (r *Reader) applyNormalization(dp *model.DataPoint) {
	if r.norm.mode == model.NormalizationRaw || r.factorFile == nil {
		return
	}
	if dp.Bar != nil {
		dp.Bar.Open = r.norm.scale(dp.Bar.Open)
		dp.Bar.High = r.norm.scale(dp.Bar.High)
		dp.Bar.Low = r.norm.scale(dp.Bar.Low)
		dp.Bar.Close = r.norm.scale(dp.Bar.Close)
		dp.Value = dp.Bar.Close
		return
	}
	if dp.Tick != nil {
		if dp.Tick.Price != 0 {
			dp.Tick.Price = r.norm.scale(dp.Tick.Price)
		}
		if dp.Tick.Bid != 0 {
			dp.Tick.Bid = r.norm.scale(dp.Tick.Bid)
		}
		if dp.Tick.Ask != 0 {
			dp.Tick.Ask = r.norm.scale(dp.Tick.Ask)
		}
		dp.Value = r.norm.scale(dp.Value)
	}
}

// RawClose inverts the normalization currently applied to scaled.
func (r *Reader) RawClose(scaled float64) float64 {
	return r.norm.rawClose(scaled)
}

// advanceDate moves to the next tradeable date, running the map-file and
// factor-file checks before the day's source is read.
func (r *Reader) advanceDate() bool {
	for r.dates.MoveNext() {
		date := r.dates.Current()

		if r.mapFile != nil && len(r.mapFile.Rows) > 0 {
			delist := r.mapFile.DelistingDate()
			if dateOnly(date).After(delist) {
				r.queueDelisted(delist)
				r.exhausted = true
				return false
			}
			if dateOnly(date).Equal(delist) {
				r.queueAux(model.NewDelisting(r.config.Symbol, delist, model.AuxDelistingWarning))
			}
			if !r.mapFile.HasData(date) {
				continue
			}
			if mapped := r.mapFile.MappedSymbol(date); mapped != "" &&
				!strings.EqualFold(mapped, r.config.MappedSymbol) {
				r.queueAux(model.NewSymbolChanged(
					r.config.Symbol, dateOnly(date).UTC(), r.config.MappedSymbol, mapped))
				r.config.MappedSymbol = mapped
			}
		}

		r.checkFactorChange(date)
		r.updateFactor(date)
		r.prevDate = date

		if !r.loadDayRows(date) {
			continue
		}
		return true
	}

	// dates exhausted; a delisting past the period still emits
	if r.mapFile != nil && len(r.mapFile.Rows) > 0 {
		delist := r.mapFile.DelistingDate()
		warned := r.auxSeen.Contains(auxKey(model.AuxDelistingWarning, delist))
		if warned && !delist.After(dateOnly(r.finish)) {
			r.queueDelisted(delist)
		}
	}
	r.exhausted = true
	return false
}

func (r *Reader) queueDelisted(delist time.Time) {
	r.queueAux(model.NewDelisting(r.config.Symbol, delist, model.AuxDelistingWarning))
	r.queueAux(model.NewDelisting(r.config.Symbol, delist.AddDate(0, 0, 1), model.AuxDelisted))
}

// checkFactorChange queues split and dividend auxiliaries when the previous
// trading day's factor row differs from the next one; the event lands on the
// new date using the previous close as reference.
func (r *Reader) checkFactorChange(date time.Time) {
	if r.factorFile == nil || r.prevDate.IsZero() || r.lastRawClose == 0 {
		return
	}
	splitRatio, priceRatio, ok := r.factorFile.ChangeOn(dateOnly(r.prevDate))
	if !ok {
		return
	}
	at := dateOnly(date).UTC()
	if priceRatio != 1 {
		distribution := r.lastRawClose * (1/priceRatio - 1)
		if r.queueAux(model.NewDividend(r.config.Symbol, at, distribution)) {
			r.norm.sumDividends += distribution
		}
	}
	if splitRatio != 1 {
		r.queueAux(model.NewSplit(r.config.Symbol, at, r.lastRawClose, splitRatio))
	}
}

func (r *Reader) updateFactor(date time.Time) {
	if r.factorFile == nil {
		return
	}
	r.norm.factor = r.factorFile.PriceScaleFactor(r.norm.mode, date)
	if r.norm.factor == 0 {
		r.norm.factor = 1
	}
}

// loadDayRows resolves the day's rows; for hour and daily subscriptions the
// whole file is cached and sliced per date.
func (r *Reader) loadDayRows(date time.Time) bool {
	r.dayStart = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0,
		r.config.DataTimeZone)

	if !r.config.Resolution.IsIntraday() {
		if r.allRows == nil {
			rows, err := r.source(r.config, date)
			if err != nil {
				r.signals.invalidSource(r.config.Symbol.Value, err)
				r.allRows = [][]string{}
				return false
			}
			r.allRows = rows
		}
		day := date.Format("20060102")
		var dayRows [][]string
		for _, row := range r.allRows {
			if len(row) > 0 && strings.HasPrefix(row[0], day) {
				dayRows = append(dayRows, row)
			}
		}
		if len(dayRows) == 0 {
			return false
		}
		r.rows, r.rowIdx = dayRows, 0
		return true
	}

	rows, err := r.source(r.config, date)
	if err != nil {
		r.signals.invalidSource(r.config.Symbol.Value, err)
		return false
	}
	r.rows, r.rowIdx = rows, 0
	return true
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
