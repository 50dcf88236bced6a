package feed

import (
	"fmt"
	"sync"
	"time"

	"github.com/StudioSol/set"

	"github.com/aricooperman/golean/data"
	"github.com/aricooperman/golean/model"
	"github.com/aricooperman/golean/tools"
)

// Subscription pairs a configuration with its lazy datum sequence. Current
// holds the next datum not yet consumed by the driver; the owning feed
// driver is the only goroutine that advances it.
type Subscription struct {
	Config     *model.SubscriptionConfig
	Hours      *data.ExchangeHours
	Source     tools.Enumerator[*model.DataPoint]
	IsUniverse bool

	Current  *model.DataPoint
	finished bool
}

func NewSubscription(config *model.SubscriptionConfig, hours *data.ExchangeHours,
	source tools.Enumerator[*model.DataPoint]) *Subscription {
	return &Subscription{Config: config, Hours: hours, Source: source}
}

// Advance loads the next datum into Current; false means the sequence ended
// (backtest) or no datum is buffered right now (live).
func (s *Subscription) Advance() bool {
	if s.finished {
		return false
	}
	if !s.Source.MoveNext() {
		if _, streaming := s.Source.(*StreamEnumerator); !streaming {
			s.finished = true
		}
		s.Current = nil
		return false
	}
	s.Current = s.Source.Current()
	return true
}

// Finished reports whether the sequence ended for good.
func (s *Subscription) Finished() bool { return s.finished }

// Dispose closes the underlying source.
func (s *Subscription) Dispose() {
	s.finished = true
	_ = s.Source.Close()
}

// TakeUpTo drains every buffered datum with end time at or before frontier.
func (s *Subscription) TakeUpTo(frontier time.Time) []*model.DataPoint {
	var taken []*model.DataPoint
	for {
		if s.Current == nil {
			if !s.Advance() {
				return taken
			}
		}
		if s.Current.EndTime.After(frontier) {
			return taken
		}
		taken = append(taken, s.Current)
		s.Current = nil
	}
}

// SubscriptionCollection holds the active subscriptions keyed by symbol and
// resolution. Adds and removes are lock-free for readers; iteration walks a
// consistent snapshot of the keys.
type SubscriptionCollection struct {
	keys *set.LinkedHashSetString
	subs sync.Map
	mu   sync.Mutex
}

func NewSubscriptionCollection() *SubscriptionCollection {
	return &SubscriptionCollection{keys: set.NewLinkedHashSetString()}
}

func subscriptionKey(config *model.SubscriptionConfig) string {
	return fmt.Sprintf("%s--%s", config.Symbol.Value, config.Resolution)
}

// Add registers the subscription; an existing entry for the same key is
// replaced.
func (c *SubscriptionCollection) Add(sub *Subscription) {
	key := subscriptionKey(sub.Config)
	c.mu.Lock()
	c.keys.Add(key)
	c.mu.Unlock()
	c.subs.Store(key, sub)
}

// Remove disposes and drops the subscription for the symbol.
func (c *SubscriptionCollection) Remove(config *model.SubscriptionConfig) *Subscription {
	key := subscriptionKey(config)
	value, ok := c.subs.LoadAndDelete(key)
	c.mu.Lock()
	c.keys.Remove(key)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return value.(*Subscription)
}

// Get returns the subscription for the config's key.
func (c *SubscriptionCollection) Get(config *model.SubscriptionConfig) (*Subscription, bool) {
	value, ok := c.subs.Load(subscriptionKey(config))
	if !ok {
		return nil, false
	}
	return value.(*Subscription), true
}

// Snapshot returns the current subscriptions in registration order.
func (c *SubscriptionCollection) Snapshot() []*Subscription {
	c.mu.Lock()
	keys := make([]string, 0, c.keys.Length())
	for key := range c.keys.Iter() {
		keys = append(keys, key)
	}
	c.mu.Unlock()

	subs := make([]*Subscription, 0, len(keys))
	for _, key := range keys {
		if value, ok := c.subs.Load(key); ok {
			subs = append(subs, value.(*Subscription))
		}
	}
	return subs
}

// Len counts the active subscriptions.
func (c *SubscriptionCollection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keys.Length()
}
