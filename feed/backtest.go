package feed

import (
	"context"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/aricooperman/golean/model"
	"github.com/aricooperman/golean/tools/log"
)

// UniverseSelector maps the data a universe subscription produced for one
// frontier to the securities delta it implies.
type UniverseSelector func(sub *Subscription, data []*model.DataPoint) model.SecurityChanges

// BacktestFeed replays the subscribed sources in simulated time, publishing
// one slice per frontier advance into the hand-off queue.
type BacktestFeed struct {
	Subscriptions  *SubscriptionCollection
	Queue          *HandoffQueue[*model.TimeSlice]
	Assembler      *Assembler
	Start          time.Time
	End            time.Time
	SelectUniverse UniverseSelector
	ShowProgress   bool

	pendingChanges model.SecurityChanges
}

// Run drives the frontier until every subscription is exhausted, the period
// end is reached, or the context is cancelled. The queue is completed on
// exit so the consumer's Consume loop terminates.
func (f *BacktestFeed) Run(ctx context.Context) error {
	defer f.Queue.CompleteAdding()

	var bar *progressbar.ProgressBar
	if f.ShowProgress {
		bar = progressbar.NewOptions(int(f.End.Sub(f.Start)/time.Hour)+1,
			progressbar.OptionSetDescription("backtesting"),
			progressbar.OptionShowCount(),
		)
	}

	for ctx.Err() == nil {
		frontier, ok := f.nextFrontier()
		if !ok || frontier.After(f.End) {
			break
		}

		packets := f.pull(frontier)
		changes := f.pendingChanges
		f.pendingChanges = model.SecurityChanges{}

		slice := f.Assembler.Assemble(frontier, packets, changes)
		if err := f.Queue.Add(ctx, slice); err != nil {
			return err
		}

		f.reapFinished()
		if bar != nil {
			log.CheckErr(log.WarnLevel, bar.Set(int(frontier.Sub(f.Start)/time.Hour)))
		}
	}
	return ctx.Err()
}

// nextFrontier primes every subscription and computes the minimum current
// end-time, rounded up to the finest subscribed resolution.
func (f *BacktestFeed) nextFrontier() (time.Time, bool) {
	var (
		minEnd time.Time
		minRes = 24 * time.Hour
		found  bool
	)
	for _, sub := range f.Subscriptions.Snapshot() {
		if sub.Current == nil && !sub.Advance() {
			continue
		}
		if d := sub.Config.Resolution.Duration(); d > 0 && d < minRes {
			minRes = d
		}
		if !found || sub.Current.EndTime.Before(minEnd) {
			minEnd = sub.Current.EndTime
			found = true
		}
	}
	if !found {
		return time.Time{}, false
	}
	return ceilTime(minEnd, minRes), true
}

// pull drains every datum valid at the frontier from each subscription,
// folding universe output into the pending securities delta.
func (f *BacktestFeed) pull(frontier time.Time) []*model.Packet {
	var packets []*model.Packet
	for _, sub := range f.Subscriptions.Snapshot() {
		data := sub.TakeUpTo(frontier)
		if len(data) == 0 {
			continue
		}
		if sub.IsUniverse && f.SelectUniverse != nil {
			f.pendingChanges = f.pendingChanges.Merge(f.SelectUniverse(sub, data))
		}
		packets = append(packets, &model.Packet{Config: sub.Config, Data: data})
	}
	return packets
}

// reapFinished disposes subscriptions whose sequence ended.
func (f *BacktestFeed) reapFinished() {
	for _, sub := range f.Subscriptions.Snapshot() {
		if sub.Finished() && sub.Current == nil {
			sub.Dispose()
			f.Subscriptions.Remove(sub.Config)
		}
	}
}

func ceilTime(t time.Time, d time.Duration) time.Time {
	if d <= 0 {
		return t
	}
	rounded := t.Truncate(d)
	if rounded.Before(t) {
		rounded = rounded.Add(d)
	}
	return rounded
}
