package feed

import (
	"context"
	"time"

	"github.com/aricooperman/golean/model"
	"github.com/aricooperman/golean/tools/log"
)

// LiveFeed drives the frontier by wall clock. Push data lands in per
// subscription stream enumerators via the fan-out exchange; each second
// boundary the driver drains whatever arrived and publishes one slice, even
// an empty heartbeat one.
type LiveFeed struct {
	Subscriptions  *SubscriptionCollection
	Queue          *HandoffQueue[*model.TimeSlice]
	Assembler      *Assembler
	Exchange       *Exchange
	SelectUniverse UniverseSelector

	// Now is the clock source; nil means time.Now.
	Now func() time.Time
	// OnRuntimeError records driver-side failures; nil means log only.
	OnRuntimeError func(err error)
}

func (f *LiveFeed) clock() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now().UTC()
}

func (f *LiveFeed) runtimeError(err error) {
	log.Error("feed/live: ", err)
	if f.OnRuntimeError != nil {
		f.OnRuntimeError(err)
	}
}

// Run starts the exchange and emits slices until the context is cancelled.
// The queue is completed on exit.
func (f *LiveFeed) Run(ctx context.Context) error {
	defer f.Queue.CompleteAdding()

	f.Exchange.Start(ctx)
	defer f.Exchange.Stop()

	for {
		frontier := f.clock().Truncate(time.Second)
		if err := f.emit(ctx, frontier); err != nil {
			return err
		}
		if err := f.sleepUntil(ctx, frontier.Add(time.Second)); err != nil {
			return err
		}
	}
}

// emit drains every subscription up to the frontier and publishes one slice.
// A universe subscription that produced data forces a wait on the idle
// handle first, so the new selection never overtakes a slice still being
// consumed.
func (f *LiveFeed) emit(ctx context.Context, frontier time.Time) error {
	var (
		packets []*model.Packet
		changes model.SecurityChanges
	)
	for _, sub := range f.Subscriptions.Snapshot() {
		data := sub.TakeUpTo(frontier)
		if len(data) == 0 {
			continue
		}
		if sub.IsUniverse && f.SelectUniverse != nil {
			if err := f.Queue.WaitIdle(ctx); err != nil {
				return err
			}
			changes = changes.Merge(f.SelectUniverse(sub, data))
		}
		packets = append(packets, &model.Packet{Config: sub.Config, Data: data})
	}

	// cancellation may have landed while waiting idle
	if ctx.Err() != nil {
		return ctx.Err()
	}

	slice := f.Assembler.Assemble(frontier, packets, changes)
	if err := f.Queue.Add(ctx, slice); err != nil {
		if err != ErrAddingCompleted {
			return err
		}
		f.runtimeError(err)
	}
	return nil
}

func (f *LiveFeed) sleepUntil(ctx context.Context, boundary time.Time) error {
	wait := boundary.Sub(f.clock())
	if wait <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
