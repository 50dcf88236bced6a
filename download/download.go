// Package download fetches historical bars from a market-data feeder and
// stores them in the on-disk zip layout the feed readers consume.
package download

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/xhit/go-str2duration/v2"

	"github.com/aricooperman/golean/data"
	"github.com/aricooperman/golean/model"
	"github.com/aricooperman/golean/service"
	"github.com/aricooperman/golean/tools/log"
)

// batchSize is the number of bars requested per history call.
const batchSize = 500

const priceScale = 10000.0

const barTimeFormat = "20060102 15:04"

// Downloader pulls history through a feeder and persists it below a data
// root.
type Downloader struct {
	feeder service.Feeder
}

func NewDownloader(feeder service.Feeder) Downloader {
	return Downloader{feeder: feeder}
}

// Parameters bound the downloaded period.
type Parameters struct {
	Start time.Time
	End   time.Time
}

type Option func(*Parameters)

// WithInterval downloads the explicit period.
func WithInterval(start, end time.Time) Option {
	return func(parameters *Parameters) {
		parameters.Start = start
		parameters.End = end
	}
}

// WithDays downloads the trailing number of days.
func WithDays(days int) Option {
	return func(parameters *Parameters) {
		parameters.Start = time.Now().AddDate(0, 0, -days)
		parameters.End = time.Now()
	}
}

// ParseTimeframe maps a shorthand like "1m" or "1h" to a bar resolution.
func ParseTimeframe(timeframe string) (model.Resolution, error) {
	duration, err := str2duration.ParseDuration(timeframe)
	if err != nil {
		return "", err
	}
	switch {
	case duration <= time.Second:
		return model.ResolutionSecond, nil
	case duration <= time.Minute:
		return model.ResolutionMinute, nil
	case duration <= time.Hour:
		return model.ResolutionHour, nil
	default:
		return model.ResolutionDaily, nil
	}
}

// Download fetches the subscription's bars in batches and writes them below
// root in the deterministic source layout: one archive per trade date for
// intraday resolutions, a single archive for hour and daily.
func (d Downloader) Download(ctx context.Context, config *model.SubscriptionConfig,
	root string, options ...Option) error {

	now := time.Now()
	parameters := &Parameters{
		Start: now.AddDate(0, -1, 0),
		End:   now,
	}
	for _, option := range options {
		option(parameters)
	}

	parameters.Start = midnight(parameters.Start)
	if now.Sub(parameters.End) > 0 {
		parameters.End = midnight(parameters.End)
	} else {
		parameters.End = now
	}

	period := config.Resolution.Duration()
	if period <= 0 {
		return fmt.Errorf("resolution %s has no bar period", config.Resolution)
	}
	expected := int(parameters.End.Sub(parameters.Start)/period) + 1
	log.Infof("Downloading %d bars of %s for %s", expected, config.Resolution, config.Symbol)

	progressBar := progressbar.Default(int64(expected))
	lostData := 0
	isLastLoop := false

	byDate := make(map[time.Time][][]string)
	var dates []time.Time

	for begin := parameters.Start; begin.Before(parameters.End); begin = begin.Add(period * batchSize) {
		end := begin.Add(period * batchSize)
		if end.Before(parameters.End) {
			end = end.Add(-1 * time.Second)
		} else {
			end = parameters.End
			isLastLoop = true
		}

		bars, err := d.feeder.History(ctx, config, begin, end)
		if err != nil {
			return err
		}

		for _, bar := range bars {
			if bar.Bar == nil {
				continue
			}
			date := midnight(bar.EndTime.Add(-period))
			if _, ok := byDate[date]; !ok {
				dates = append(dates, date)
			}
			byDate[date] = append(byDate[date], rowFor(config, bar))
		}

		if !isLastLoop {
			lostData += batchSize - len(bars)
		}
		if err = progressBar.Add(len(bars)); err != nil {
			log.Warnf("update progressbar fail: %s", err.Error())
		}
	}

	if err := d.persist(config, root, byDate, dates); err != nil {
		return err
	}

	if err := progressBar.Close(); err != nil {
		log.Warnf("close progressbar fail: %s", err.Error())
	}
	if lostData > 0 {
		log.Warnf("%d missing bars", lostData)
	}
	log.Info("Done!")
	return nil
}

func (d Downloader) persist(config *model.SubscriptionConfig, root string,
	byDate map[time.Time][][]string, dates []time.Time) error {

	if !config.Resolution.IsIntraday() {
		var rows [][]string
		for _, date := range dates {
			rows = append(rows, byDate[date]...)
		}
		src, err := data.SourceFor(config, time.Time{})
		if err != nil {
			return err
		}
		return data.WriteSource(root, src, rows)
	}

	for _, date := range dates {
		src, err := data.SourceFor(config, date)
		if err != nil {
			return err
		}
		if err := data.WriteSource(root, src, byDate[date]); err != nil {
			return err
		}
	}
	return nil
}

// rowFor serialises one bar in the csv layout the reader parses back:
// millisecond offsets for intraday rows, full timestamps otherwise. Equity
// and option prices are stored scaled.
func rowFor(config *model.SubscriptionConfig, dp *model.DataPoint) []string {
	period := config.Resolution.Duration()
	start := dp.EndTime.Add(-period)

	var stamp string
	if config.Resolution.IsIntraday() {
		offset := start.Sub(midnight(start))
		stamp = strconv.FormatInt(int64(offset/time.Millisecond), 10)
	} else {
		stamp = start.In(timeZone(config)).Format(barTimeFormat)
	}

	scaled := config.SecurityType == model.SecurityTypeEquity ||
		config.SecurityType == model.SecurityTypeOption

	bar := dp.Bar
	return []string{
		stamp,
		formatPrice(bar.Open, scaled),
		formatPrice(bar.High, scaled),
		formatPrice(bar.Low, scaled),
		formatPrice(bar.Close, scaled),
		strconv.FormatFloat(bar.Volume, 'f', -1, 64),
	}
}

func formatPrice(v float64, scaled bool) string {
	if scaled {
		return strconv.FormatInt(int64(math.Round(v*priceScale)), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func timeZone(config *model.SubscriptionConfig) *time.Location {
	if config.DataTimeZone != nil {
		return config.DataTimeZone
	}
	return time.UTC
}

func midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
