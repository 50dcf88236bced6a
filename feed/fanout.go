package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aricooperman/golean/model"
	"github.com/aricooperman/golean/tools"
	"github.com/aricooperman/golean/tools/log"
)

// DataHandler consumes items routed by symbol.
type DataHandler func(*model.DataPoint)

// enumeratorRegistration ties a source to its advance gate, completion hook
// and optional self-handler.
type enumeratorRegistration struct {
	symbol        model.Symbol
	source        tools.Enumerator[*model.DataPoint]
	shouldAdvance func() bool
	onFinished    func(model.Symbol)
	handler       DataHandler // self-handling when set
}

// Exchange multiplexes pull-based sources on a single worker, routing each
// produced item to the handler registered for its symbol. Ordering is
// guaranteed per symbol only; global ordering is re-established downstream
// by the slice assembler.
type Exchange struct {
	lock        tools.ScopedLock
	enumerators map[string]*enumeratorRegistration
	handlers    map[string]DataHandler

	idleSleep time.Duration
	isFatal   func(error) bool

	wg      sync.WaitGroup
	cancel  context.CancelFunc
	started bool
	mu      sync.Mutex
}

// NewExchange builds an exchange sleeping idleSleep between empty passes;
// zero means busy-spin.
func NewExchange(idleSleep time.Duration) *Exchange {
	return &Exchange{
		enumerators: make(map[string]*enumeratorRegistration),
		handlers:    make(map[string]DataHandler),
		idleSleep:   idleSleep,
		isFatal:     func(error) bool { return false },
	}
}

// EnumeratorOption customises a registration.
type EnumeratorOption func(*enumeratorRegistration)

// WithShouldAdvance gates each advance of the enumerator.
func WithShouldAdvance(fn func() bool) EnumeratorOption {
	return func(r *enumeratorRegistration) { r.shouldAdvance = fn }
}

// WithOnFinished runs after the enumerator ends and is unregistered.
func WithOnFinished(fn func(model.Symbol)) EnumeratorOption {
	return func(r *enumeratorRegistration) { r.onFinished = fn }
}

// WithSelfHandler makes the enumerator consume its own items instead of the
// symbol data handler; used for universe-feed packaging.
func WithSelfHandler(handler DataHandler) EnumeratorOption {
	return func(r *enumeratorRegistration) { r.handler = handler }
}

// AddEnumerator registers a source under its symbol.
func (e *Exchange) AddEnumerator(symbol model.Symbol, source tools.Enumerator[*model.DataPoint],
	options ...EnumeratorOption) {

	registration := &enumeratorRegistration{symbol: symbol, source: source}
	for _, option := range options {
		option(registration)
	}

	release := e.lock.Write()
	defer release()
	e.enumerators[symbol.Value] = registration
}

// RemoveEnumerator unregisters and returns the source for disposal.
func (e *Exchange) RemoveEnumerator(symbol model.Symbol) tools.Enumerator[*model.DataPoint] {
	release := e.lock.Write()
	defer release()

	registration, ok := e.enumerators[symbol.Value]
	if !ok {
		return nil
	}
	delete(e.enumerators, symbol.Value)
	return registration.source
}

// SetDataHandler routes items of the symbol to handler.
func (e *Exchange) SetDataHandler(symbol model.Symbol, handler DataHandler) {
	release := e.lock.Write()
	defer release()
	e.handlers[symbol.Value] = handler
}

// RemoveDataHandler drops the symbol's handler; its items are then discarded.
func (e *Exchange) RemoveDataHandler(symbol model.Symbol) {
	release := e.lock.Write()
	defer release()
	delete(e.handlers, symbol.Value)
}

// SetErrorHandler classifies advance errors; a true return stops the worker.
func (e *Exchange) SetErrorHandler(isFatal func(error) bool) {
	if isFatal != nil {
		e.isFatal = isFatal
	}
}

// Start launches the worker; calling it twice is a no-op.
func (e *Exchange) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true

	ctx, e.cancel = context.WithCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(ctx)
	}()
}

// Stop cancels the worker and waits for it to exit.
func (e *Exchange) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.wg.Wait()

	e.mu.Lock()
	e.started = false
	e.mu.Unlock()
}

func (e *Exchange) run(ctx context.Context) {
	for ctx.Err() == nil {
		handled, fatal := e.pass()
		if fatal {
			return
		}
		if !handled && e.idleSleep > 0 {
			select {
			case <-time.After(e.idleSleep):
			case <-ctx.Done():
				return
			}
		}
	}
}

// pass advances every registered enumerator once, round-robin, and reports
// whether any produced work.
func (e *Exchange) pass() (handled, fatal bool) {
	registrations := e.snapshot()
	if len(registrations) == 0 {
		return false, false
	}
	cycle := tools.NewCircularQueue(registrations...)
	completed := false
	cycle.OnCircleCompleted(func() { completed = true })

	for !completed {
		registration := cycle.Next()
		if registration.shouldAdvance != nil && !registration.shouldAdvance() {
			continue
		}

		item, finished, err := e.advance(registration)
		if err != nil {
			log.Error("feed/exchange: ", err)
			if e.isFatal(err) {
				return handled, true
			}
			continue
		}
		if finished {
			_ = registration.source.Close()
			e.RemoveEnumerator(registration.symbol)
			if registration.onFinished != nil {
				registration.onFinished(registration.symbol)
			}
			continue
		}
		if item == nil {
			continue
		}

		handled = true
		if registration.handler != nil {
			registration.handler(item)
			continue
		}
		if handler := e.handlerFor(item.Symbol); handler != nil {
			handler(item)
		}
		// no handler registered: item dropped silently
	}
	return handled, false
}

func (e *Exchange) advance(registration *enumeratorRegistration) (item *model.DataPoint, finished bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("enumerator %s: %v", registration.symbol, r)
		}
	}()
	if !registration.source.MoveNext() {
		return nil, true, nil
	}
	return registration.source.Current(), false, nil
}

func (e *Exchange) snapshot() []*enumeratorRegistration {
	release := e.lock.Read()
	defer release()

	registrations := make([]*enumeratorRegistration, 0, len(e.enumerators))
	for _, registration := range e.enumerators {
		registrations = append(registrations, registration)
	}
	return registrations
}

func (e *Exchange) handlerFor(symbol model.Symbol) DataHandler {
	release := e.lock.Read()
	defer release()
	return e.handlers[symbol.Value]
}
